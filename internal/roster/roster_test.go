package roster

import (
	"errors"
	"testing"
)

func TestDefaultRosterSymbolsPerVenue(t *testing.T) {
	cex := Default("cex")
	if len(cex) != 10 {
		t.Fatalf("expected 10 profiles, got %d", len(cex))
	}
	if cex[0].Name != "Dragonite" || cex[0].SpotSymbol != "BTCUSDT" || cex[0].PerpSymbol != "BTCUSDT" {
		t.Fatalf("unexpected cex profile %+v", cex[0])
	}
	dex := Default("dex")
	if dex[1].Name != "Lapras" || dex[1].PerpSymbol != "ETH" {
		t.Fatalf("unexpected dex profile %+v", dex[1])
	}
	if dex[0].MaxLeverage != 50 {
		t.Fatalf("expected max leverage 50, got %d", dex[0].MaxLeverage)
	}
}

func TestProfilePrecisionPerRoute(t *testing.T) {
	p, ok := New(Default("cex")).Lookup("Snorlax")
	if !ok {
		t.Fatalf("expected Snorlax in roster")
	}
	if p.SizeDecimals(false) != 4 || p.SizeDecimals(true) != 3 {
		t.Fatalf("expected size decimals 4/3, got %d/%d", p.SizeDecimals(false), p.SizeDecimals(true))
	}
	if p.PriceDecimals(true) != 2 {
		t.Fatalf("expected perp price decimals 2, got %d", p.PriceDecimals(true))
	}
}

func TestResolveAcceptsNameBaseAndSymbol(t *testing.T) {
	r := New(Default("cex"))
	for _, token := range []string{"dragonite", " Drago-nite ", "btc", "BTCUSDT", "btc-usdt"} {
		p, err := r.Resolve(token)
		if err != nil {
			t.Fatalf("resolve %q: %v", token, err)
		}
		if p.Name != "Dragonite" {
			t.Fatalf("resolve %q: expected Dragonite, got %s", token, p.Name)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	r := New(Default("cex"))
	if _, err := r.Resolve("Mewtwo"); !errors.Is(err, ErrUnknownSpecies) {
		t.Fatalf("expected unknown species error, got %v", err)
	}
	if _, err := r.Resolve("  "); !errors.Is(err, ErrUnknownSpecies) {
		t.Fatalf("expected unknown species error for empty token, got %v", err)
	}
}

func TestLookupIsExact(t *testing.T) {
	r := New(Default("cex"))
	if _, ok := r.Lookup("dragonite"); ok {
		t.Fatalf("expected lookup by display name to be case sensitive")
	}
}

func TestDescribeBalanceClampsHP(t *testing.T) {
	r := New(Default("cex"))
	bal, err := r.DescribeBalance("ethusdt", 150)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if bal.Species != "Lapras" || bal.HP != 1 {
		t.Fatalf("expected Lapras at full hp, got %+v", bal)
	}
	bal, _ = r.DescribeBalance("BTCUSDT", 25)
	if bal.HP != 0.25 {
		t.Fatalf("expected hp 0.25, got %v", bal.HP)
	}
	if _, err := r.DescribeBalance("PEPEUSDT", 1); err == nil {
		t.Fatalf("expected error for unsupported symbol")
	}
}

func TestReplaceSwapsProfiles(t *testing.T) {
	r := New(Default("cex"))
	r.Replace([]Profile{{Name: "Mew", Base: "PEPE", SpotSymbol: "PEPEUSDT", PricePrecision: 8, SizePrecision: 0}})
	if _, ok := r.Lookup("Dragonite"); ok {
		t.Fatalf("expected old profiles to be dropped")
	}
	p, ok := r.BySymbol("pepeusdt")
	if !ok || p.HasPerp() {
		t.Fatalf("expected spot-only Mew, got %+v ok=%v", p, ok)
	}
	if p.HPScale != 100 {
		t.Fatalf("expected default hp scale, got %v", p.HPScale)
	}
}

func TestPinnedOrder(t *testing.T) {
	pinned := Pinned("dex", []string{"sol", "BTC", "NOPE"})
	if len(pinned) != 2 || pinned[0].Name != "Typhlosion" || pinned[1].Name != "Dragonite" {
		t.Fatalf("unexpected pinned roster %+v", pinned)
	}
}

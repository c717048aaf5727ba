package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGuardrailDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Guardrails.Cooldown != 300*time.Second {
		t.Fatalf("expected cooldown 300s, got %v", cfg.Guardrails.Cooldown)
	}
	if cfg.Guardrails.MaxPartySize != 6 {
		t.Fatalf("expected max party size 6, got %d", cfg.Guardrails.MaxPartySize)
	}
	if cfg.Guardrails.MinimumReserve != 25 {
		t.Fatalf("expected minimum reserve 25, got %v", cfg.Guardrails.MinimumReserve)
	}
}

func TestOrderDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Venue != VenueCEX {
		t.Fatalf("expected default venue cex, got %q", cfg.Venue)
	}
	if !cfg.Orders.EmbedStopLossValue() {
		t.Fatalf("expected embed stop loss enabled by default")
	}
	if !cfg.Orders.ShowEnergyNumbersValue() {
		t.Fatalf("expected energy numbers shown by default")
	}
	if cfg.Orders.EnergySource != "perp" {
		t.Fatalf("expected energy source perp, got %q", cfg.Orders.EnergySource)
	}
	if cfg.Orders.MarginMode != "crossed" {
		t.Fatalf("expected margin mode crossed, got %q", cfg.Orders.MarginMode)
	}
	if cfg.Orders.DefaultLevel != 1 {
		t.Fatalf("expected default level 1, got %d", cfg.Orders.DefaultLevel)
	}
	if cfg.Contracts.TTL != time.Minute {
		t.Fatalf("expected contract ttl 60s, got %v", cfg.Contracts.TTL)
	}
	if cfg.Journal.SQLitePath != ":memory:" {
		t.Fatalf("expected in-memory journal, got %q", cfg.Journal.SQLitePath)
	}
}

func TestEmbedStopLossFalseRespected(t *testing.T) {
	disabled := false
	cfg := &Config{Orders: OrdersConfig{EmbedStopLoss: &disabled}}
	applyDefaults(cfg)
	if cfg.Orders.EmbedStopLossValue() {
		t.Fatalf("expected embed_stop_loss=false to be preserved")
	}
}

func TestPriceFeedDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.PriceFeed.Interval != 3*time.Second {
		t.Fatalf("expected interval 3s, got %v", cfg.PriceFeed.Interval)
	}
	if cfg.PriceFeed.Timeout != 2*time.Second {
		t.Fatalf("expected timeout 2s, got %v", cfg.PriceFeed.Timeout)
	}
	if cfg.PriceFeed.Retries != 2 {
		t.Fatalf("expected 2 retries, got %d", cfg.PriceFeed.Retries)
	}
	if len(cfg.PriceFeed.PinnedBases) != 10 || cfg.PriceFeed.PinnedBases[0] != "BTC" {
		t.Fatalf("unexpected pinned bases %v", cfg.PriceFeed.PinnedBases)
	}
}

func TestMetricsDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Metrics.Address != "127.0.0.1:9001" {
		t.Fatalf("expected metrics address default, got %q", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
}

func TestDEXTestnetBaseURL(t *testing.T) {
	cfg := &Config{DEX: DEXConfig{Testnet: true}}
	applyDefaults(cfg)
	if cfg.DEX.BaseURL != "https://api.hyperliquid-testnet.xyz" {
		t.Fatalf("expected testnet base url, got %q", cfg.DEX.BaseURL)
	}
	if cfg.DEX.WSURL != "wss://api.hyperliquid-testnet.xyz/ws" {
		t.Fatalf("expected derived testnet ws url, got %q", cfg.DEX.WSURL)
	}
}

func TestWSURLDerivedFromRESTHTTP(t *testing.T) {
	cfg := &Config{DEX: DEXConfig{BaseURL: "http://example.com"}}
	applyDefaults(cfg)
	if cfg.DEX.WSURL != "ws://example.com/ws" {
		t.Fatalf("expected derived ws url, got %q", cfg.DEX.WSURL)
	}
}

func TestWSURLRespectsExplicitValue(t *testing.T) {
	cfg := &Config{DEX: DEXConfig{BaseURL: "https://example.com", WSURL: "wss://override.example/ws"}}
	applyDefaults(cfg)
	if cfg.DEX.WSURL != "wss://override.example/ws" {
		t.Fatalf("expected explicit ws url, got %q", cfg.DEX.WSURL)
	}
}

func TestValidateRejectsUnknownVenue(t *testing.T) {
	cfg := &Config{Venue: "otc"}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown venue")
	}
}

func TestValidateRejectsUnknownEnergySource(t *testing.T) {
	cfg := &Config{Orders: OrdersConfig{EnergySource: "spot"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown energy source")
	}
}

func TestValidateRejectsNegativeCooldown(t *testing.T) {
	cfg := &Config{Guardrails: GuardrailsConfig{Cooldown: -time.Second}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for negative cooldown")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Path: "metrics"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true}}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing telegram token/chat_id")
	}
}

func TestValidateRejectsAuditWithoutDSN(t *testing.T) {
	t.Setenv("AUDIT_DSN", "")
	cfg := &Config{Audit: AuditConfig{Enabled: true}}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for audit without dsn")
	}
}

func TestCredentialEnvOverrides(t *testing.T) {
	t.Setenv("CEX_API_KEY", "")
	t.Setenv("BITGET_API_KEY", "legacy-key")
	t.Setenv("CEX_API_SECRET", "secret")
	t.Setenv("CEX_PASSPHRASE", "phrase")
	cfg := &Config{CEX: CEXConfig{APIKey: "config-key"}}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if cfg.CEX.APIKey != "legacy-key" {
		t.Fatalf("expected legacy env key override, got %q", cfg.CEX.APIKey)
	}
	if !cfg.HasCredentials() {
		t.Fatalf("expected credentials to be present")
	}
	if cfg.TradingLocked() {
		t.Fatalf("expected trading unlocked with credentials")
	}
}

func TestTradingLockedWithoutCredentials(t *testing.T) {
	cfg := &Config{Venue: VenueDEX}
	applyDefaults(cfg)
	if !cfg.TradingLocked() {
		t.Fatalf("expected trading locked without credentials")
	}
	cfg.Orders.DemoMode = true
	if cfg.TradingLocked() {
		t.Fatalf("expected demo mode to unlock trading")
	}
}

func TestDemoEnvOverride(t *testing.T) {
	t.Setenv("POKEDESK_DEMO", "true")
	t.Setenv("POKEDESK_VENUE", "DEX")
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if !cfg.Orders.DemoMode {
		t.Fatalf("expected demo mode from env")
	}
	if cfg.Venue != VenueDEX {
		t.Fatalf("expected venue dex, got %q", cfg.Venue)
	}
}

func TestLoadReadsYAML(t *testing.T) {
	t.Setenv("POKEDESK_VENUE", "")
	t.Setenv("POKEDESK_DEMO", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"venue: dex\n" +
		"guardrails:\n" +
		"  cooldown: 90s\n" +
		"  max_party_size: 3\n" +
		"orders:\n" +
		"  demo_mode: true\n" +
		"  embed_stop_loss: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Venue != VenueDEX {
		t.Fatalf("expected venue dex, got %q", cfg.Venue)
	}
	if cfg.Guardrails.Cooldown != 90*time.Second {
		t.Fatalf("expected cooldown 90s, got %v", cfg.Guardrails.Cooldown)
	}
	if cfg.Guardrails.MaxPartySize != 3 {
		t.Fatalf("expected party size 3, got %d", cfg.Guardrails.MaxPartySize)
	}
	if !cfg.Orders.DemoMode || cfg.Orders.EmbedStopLossValue() {
		t.Fatalf("unexpected orders config %+v", cfg.Orders)
	}
}

package engine

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/exchange"
)

const openOrdersPerSpecies = 2

type OpenOrder struct {
	Side      string   `json:"side,omitempty"`
	OrderType string   `json:"orderType,omitempty"`
	Size      *float64 `json:"size,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	Route     string   `json:"route"`
	UpdatedTs int64    `json:"updatedTs"`
}

// SpeciesOrders holds the newest pending orders of one species.
type SpeciesOrders struct {
	Symbol  string      `json:"symbol"`
	Element string      `json:"element"`
	Sprite  string      `json:"sprite"`
	Entries []OpenOrder `json:"entries"`
}

// ListOpenOrdersBySpecies groups pending orders by species. Symbols outside
// the roster are skipped.
func (s *Service) ListOpenOrdersBySpecies(ctx context.Context, demo bool) map[string]SpeciesOrders {
	out := map[string]SpeciesOrders{}
	if demo || !s.adapter.HasCredentials() {
		return out
	}
	env, err := s.adapter.ListOpenOrders(ctx, demo)
	if err != nil {
		s.log.Debug("open orders fetch failed", zap.Error(err))
		return out
	}
	r := s.translator.Roster()
	for _, entry := range env.Records {
		symbol := strings.ToUpper(exchange.String(entry, "symbol"))
		if symbol == "" {
			continue
		}
		size, hasSize := exchange.Float(entry, "size", "baseVolume", "baseSize", "total")
		amount := 0.0
		if hasSize {
			size = math.Abs(size)
			amount = size
		}
		desc, err := r.DescribeBalance(symbol, amount)
		if err != nil {
			continue
		}
		item := OpenOrder{
			Side:      orderSide(entry),
			OrderType: strings.ToLower(exchange.String(entry, "orderType", "type")),
			Route:     inferRoute(entry),
		}
		if hasSize {
			item.Size = &size
		}
		if px, ok := exchange.Float(entry, "price", "triggerPrice", "planPrice", "px"); ok {
			item.Price = &px
		}
		if ts, ok := exchange.Int64(entry, "uTime", "updateTime", "cTime", "createTime", "createdTime", "mtime"); ok {
			item.UpdatedTs = ts
		}

		bucket, ok := out[desc.Species]
		if !ok {
			bucket = SpeciesOrders{Symbol: symbol, Element: desc.Element, Sprite: desc.Sprite}
		}
		bucket.Entries = append(bucket.Entries, item)
		out[desc.Species] = bucket
	}
	for species, bucket := range out {
		sort.SliceStable(bucket.Entries, func(i, j int) bool {
			return bucket.Entries[i].UpdatedTs > bucket.Entries[j].UpdatedTs
		})
		if len(bucket.Entries) > openOrdersPerSpecies {
			bucket.Entries = bucket.Entries[:openOrdersPerSpecies]
		}
		out[species] = bucket
	}
	return out
}

func inferRoute(entry map[string]any) string {
	product := strings.ToLower(exchange.String(entry, "productType"))
	switch {
	case strings.Contains(product, "spot"):
		return "spot"
	case strings.Contains(product, "future"), strings.Contains(product, "mix"), strings.Contains(product, "perp"):
		return "perp"
	}
	for _, key := range []string{"marginMode", "posSide", "holdSide", "leverage", "marginCoin"} {
		if _, ok := entry[key]; ok {
			return "perp"
		}
	}
	return "spot"
}

func orderSide(entry map[string]any) string {
	for _, key := range []string{"tradeSide", "posSide", "side", "direction"} {
		text := strings.ToLower(exchange.String(entry, key))
		switch {
		case text == "":
			continue
		case strings.Contains(text, "buy"), strings.Contains(text, "long"):
			return "long"
		case strings.Contains(text, "sell"), strings.Contains(text, "short"):
			return "short"
		}
	}
	return ""
}

type CancelRecord struct {
	Symbol string `json:"symbol"`
	OK     bool   `json:"ok"`
	Msg    string `json:"msg"`
}

type CancelResult struct {
	OK             bool           `json:"ok"`
	Species        string         `json:"species"`
	Symbol         string         `json:"symbol"`
	Cancelled      []CancelRecord `json:"cancelled"`
	Failed         []CancelRecord `json:"failed"`
	CancelledCount int            `json:"cancelled_count"`
}

// CancelAllForInstrument cancels every open order of the species resolved
// from token. Candidate spellings are tried until one succeeds.
func (s *Service) CancelAllForInstrument(ctx context.Context, token string) (CancelResult, error) {
	profile, err := s.translator.Roster().Resolve(token)
	if err != nil {
		return CancelResult{}, invalid(msgUnknownSpecies, token)
	}
	symbol := profile.PerpSymbol
	if symbol == "" {
		symbol = profile.SpotSymbol
	}
	if symbol == "" {
		return CancelResult{}, invalid(msgNoSymbol, profile.Name)
	}
	demo := s.opts.DemoMode

	result := CancelResult{Species: profile.Name, Symbol: symbol, Cancelled: []CancelRecord{}, Failed: []CancelRecord{}}
	candidates := []string{symbol}
	if s.adapter.Name() == config.VenueCEX {
		candidates = cancelCandidates(symbol, profile.Base)
	}
	for _, candidate := range candidates {
		env, err := s.adapter.CancelAll(ctx, candidate, demo)
		if err != nil {
			result.Failed = append(result.Failed, CancelRecord{Symbol: candidate, Msg: friendlyError(err, nil).Message})
			continue
		}
		if !env.OK {
			result.Failed = append(result.Failed, CancelRecord{Symbol: candidate, Msg: exchange.SanitizeVendor(env.Msg)})
			continue
		}
		result.Cancelled = append(result.Cancelled, CancelRecord{Symbol: candidate, OK: true, Msg: "All orders cancelled"})
		result.Failed = result.Failed[:0]
		break
	}
	result.CancelledCount = len(result.Cancelled)
	result.OK = result.CancelledCount > 0 && len(result.Failed) == 0
	if result.OK {
		s.log.Info("cancelled open orders", zap.String("species", profile.Name), zap.String("symbol", symbol))
		s.appendEvent(ctx, "Trainer recalled every pending throw for "+profile.Name+".", "", map[string]any{"symbol": symbol})
	} else {
		s.log.Warn("cancel orders incomplete",
			zap.String("species", profile.Name),
			zap.String("symbol", symbol),
			zap.Int("failed", len(result.Failed)),
		)
	}
	return result, nil
}

func cancelCandidates(symbol, base string) []string {
	out := symbolCandidates(symbol)
	if b := strings.ToUpper(strings.TrimSpace(base)); b != "" && !slices.Contains(out, b) {
		out = append(out, b)
	}
	return out
}

package engine

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"pokedesk/internal/exchange"
	"pokedesk/internal/order"
)

const energyUnit = "USDT"

// PartyMember is one open position described as a species.
type PartyMember struct {
	Species       string   `json:"species"`
	Symbol        string   `json:"symbol"`
	Element       string   `json:"element"`
	Sprite        string   `json:"sprite"`
	Amount        float64  `json:"amount"`
	HP            float64  `json:"hp"`
	HoldSide      string   `json:"holdSide,omitempty"`
	MarginMode    string   `json:"marginMode,omitempty"`
	Leverage      string   `json:"leverage,omitempty"`
	AvgOpenPrice  *float64 `json:"avgOpenPrice,omitempty"`
	UnrealizedPnL *float64 `json:"unrealizedPnL,omitempty"`
	ProductType   string   `json:"productType,omitempty"`
}

type Energy struct {
	Present     bool     `json:"present"`
	Fill        float64  `json:"fill"`
	Source      string   `json:"source"`
	Unit        string   `json:"unit"`
	Value       *float64 `json:"value"`
	Available   *float64 `json:"available"`
	Total       *float64 `json:"total"`
	ShowNumbers bool     `json:"showNumbers"`
}

// PartyStatus is the trainer snapshot: positions, energy and guardrails.
type PartyStatus struct {
	Party        []PartyMember         `json:"party"`
	LinkShell    string                `json:"linkShell"`
	Energy       Energy                `json:"energy"`
	Guardrails   order.GuardrailStatus `json:"guardrails"`
	PositionMode string                `json:"positionMode,omitempty"`
}

// ListPartyStatus polls balances and positions. Demo mode, missing
// credentials or a failed balance probe produce an offline snapshot.
func (s *Service) ListPartyStatus(ctx context.Context, demo bool) PartyStatus {
	s.mu.Lock()
	s.lastDemo = demo
	s.mu.Unlock()

	if demo || s.locked(demo) {
		s.mu.Lock()
		s.positionMode = order.PositionModeUnknown
		s.mu.Unlock()
		return s.offlineStatus()
	}

	summary, err := s.adapter.Balances(ctx)
	if err != nil {
		s.log.Warn("link shell energy fetch failed", zap.Error(err))
		return s.offlineStatus()
	}

	var display *float64
	source := summary.Source()
	if s.opts.EnergySource == "perp" {
		switch {
		case summary.Perp != nil:
			display, source = summary.Perp, "perp"
		case summary.Spot != nil:
			source = "fallback"
		default:
			source = "none"
		}
	} else {
		total := summary.Total
		display = &total
		if source == "none" {
			source = "fallback"
		}
	}
	if display == nil {
		return s.offlineStatus()
	}

	fill := 0.0
	if s.opts.EnergyScale > 0 {
		fill = clamp01(*display / s.opts.EnergyScale)
	}
	s.resolvePositionMode(ctx)

	party := s.fetchParty(ctx)
	value := *display
	total := summary.Total
	return s.statusPayload("online", Energy{
		Present:     true,
		Fill:        fill,
		Source:      source,
		Unit:        energyUnit,
		Value:       &value,
		Available:   summary.Available,
		Total:       &total,
		ShowNumbers: s.opts.ShowEnergyNumbers,
	}, party)
}

func (s *Service) offlineStatus() PartyStatus {
	return s.statusPayload("offline", Energy{
		Source:      "none",
		Unit:        energyUnit,
		ShowNumbers: s.opts.ShowEnergyNumbers,
	}, nil)
}

func (s *Service) statusPayload(linkShell string, energy Energy, party []PartyMember) PartyStatus {
	if party == nil {
		party = []PartyMember{}
	}
	s.mu.Lock()
	s.energy = energyState{
		present: energy.Present,
		fill:    energy.Fill,
		source:  energy.Source,
		online:  linkShell == "online",
	}
	if energy.Present && energy.Total != nil {
		s.energy.snapshot = *energy.Total
	}
	s.updateGuardrailsLocked()
	status := PartyStatus{
		Party:      party,
		LinkShell:  linkShell,
		Energy:     energy,
		Guardrails: s.guardrails,
	}
	if s.positionMode != order.PositionModeUnknown {
		status.PositionMode = string(s.positionMode)
	}
	s.mu.Unlock()
	return status
}

// fetchParty lists open positions as species, largest first. Errors yield
// an empty party.
func (s *Service) fetchParty(ctx context.Context) []PartyMember {
	env, err := s.adapter.ListPositions(ctx, false)
	if err != nil {
		s.log.Debug("party positions fetch failed", zap.Error(err))
		return nil
	}
	r := s.translator.Roster()
	party := make([]PartyMember, 0, len(env.Records))
	for _, entry := range env.Records {
		symbol := strings.ToUpper(exchange.String(entry, "symbol"))
		if symbol == "" {
			continue
		}
		amount := 0.0
		if v, ok := partyAmount(entry); ok {
			amount = math.Abs(v)
		}
		member := PartyMember{Species: symbol, Symbol: symbol, Element: exchange.String(entry, "marginCoin"), Amount: amount}
		if desc, err := r.DescribeBalance(symbol, amount); err == nil {
			member.Species = desc.Species
			member.Element = desc.Element
			member.Sprite = desc.Sprite
			member.HP = desc.HP
		}
		member.HoldSide = exchange.String(entry, "holdSide")
		member.MarginMode = exchange.String(entry, "marginMode")
		member.Leverage = exchange.String(entry, "leverage")
		member.ProductType = exchange.String(entry, "productType")
		if v, ok := exchange.Float(entry, "avgOpenPrice", "openPriceAvg"); ok {
			member.AvgOpenPrice = &v
		}
		if v, ok := exchange.Float(entry, "unrealizedPL"); ok {
			member.UnrealizedPnL = &v
		}
		party = append(party, member)
	}
	sort.SliceStable(party, func(i, j int) bool { return party[i].Amount > party[j].Amount })
	return party
}

func partyAmount(entry map[string]any) (float64, bool) {
	return exchange.Float(entry,
		"usdtValue", "equity", "positionMargin", "margin", "quote",
		"total", "base", "baseSize", "available",
	)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

package engine

import (
	"strings"

	"pokedesk/internal/pricefeed"
)

const mysterySlots = 5

type RosterSlot struct {
	Species string   `json:"species"`
	Symbol  string   `json:"symbol,omitempty"`
	Base    string   `json:"base,omitempty"`
	Element string   `json:"element,omitempty"`
	Sprite  string   `json:"sprite,omitempty"`
	Price   *float64 `json:"price,omitempty"`
	Source  string   `json:"source,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`
	Mystery bool     `json:"mystery"`
}

// Roster lists the pinned species with their latest feed price, followed by
// placeholder slots.
func (s *Service) Roster() []RosterSlot {
	profiles := s.translator.Roster().Profiles()
	if len(s.opts.PinnedBases) > 0 {
		pinned := make(map[string]bool, len(s.opts.PinnedBases))
		for _, b := range s.opts.PinnedBases {
			pinned[strings.ToUpper(strings.TrimSpace(b))] = true
		}
		kept := profiles[:0]
		for _, p := range profiles {
			if pinned[p.Base] {
				kept = append(kept, p)
			}
		}
		profiles = kept
	}

	slots := make([]RosterSlot, 0, len(profiles)+mysterySlots)
	for _, p := range profiles {
		slot := RosterSlot{
			Species: p.Name,
			Symbol:  p.PerpSymbol,
			Base:    p.Base,
			Element: p.Element,
			Sprite:  p.Sprite,
		}
		if slot.Symbol == "" {
			slot.Symbol = p.SpotSymbol
		}
		if s.prices != nil {
			if q, ok := s.prices.Price(p.Base); ok && q.Price > 0 {
				price, weight := q.Price, q.Weight
				if weight == 0 {
					weight = pricefeed.Weight(price)
				}
				slot.Price = &price
				slot.Weight = &weight
				slot.Source = q.Source
			}
		}
		slots = append(slots, slot)
	}
	for i := 0; i < mysterySlots; i++ {
		slots = append(slots, RosterSlot{Species: "Mystery Egg", Mystery: true})
	}
	return slots
}

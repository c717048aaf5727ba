package roster

import "strings"

const defaultMaxLeverage = 50

type seed struct {
	name     string
	base     string
	element  string
	spotPip  int
	spotSize int
	perpPip  int
	perpSize int
	hpScale  float64
}

var johto = []seed{
	{"Dragonite", "BTC", "Dragon", 1, 4, 1, 3, 100},
	{"Lapras", "ETH", "Water", 2, 4, 2, 3, 75},
	{"Typhlosion", "SOL", "Fire", 2, 3, 2, 3, 50},
	{"Ampharos", "XRP", "Electric", 4, 2, 4, 2, 50},
	{"Umbreon", "DOGE", "Dark", 5, 2, 5, 2, 20},
	{"Gengar", "HYPE", "Ghost", 3, 3, 3, 3, 20},
	{"Espeon", "AVAX", "Psychic", 2, 3, 2, 3, 40},
	{"Scizor", "SUI", "Steel", 4, 3, 4, 3, 40},
	{"Snorlax", "BNB", "Normal", 2, 4, 2, 3, 60},
	{"Heracross", "WLD", "Bug", 3, 2, 3, 2, 10},
}

// Default returns the pinned roster with symbols for the given venue:
// "dex" markets are named by base token, anything else uses BASEUSDT.
func Default(venue string) []Profile {
	profiles := make([]Profile, 0, len(johto))
	for _, s := range johto {
		symbol := s.base + "USDT"
		if venue == "dex" {
			symbol = s.base
		}
		profiles = append(profiles, Profile{
			Name:               s.name,
			Element:            s.element,
			Sprite:             strings.ToLower(s.name),
			Base:               s.base,
			SpotSymbol:         symbol,
			PerpSymbol:         symbol,
			PricePrecision:     s.spotPip,
			SizePrecision:      s.spotSize,
			PerpPricePrecision: s.perpPip,
			PerpSizePrecision:  s.perpSize,
			MaxLeverage:        defaultMaxLeverage,
			HPScale:            s.hpScale,
		})
	}
	return profiles
}

// Pinned reorders the default roster to follow the configured bases.
// Unknown bases are skipped.
func Pinned(venue string, bases []string) []Profile {
	all := Default(venue)
	if len(bases) == 0 {
		return all
	}
	byBase := make(map[string]Profile, len(all))
	for _, p := range all {
		byBase[p.Base] = p
	}
	out := make([]Profile, 0, len(bases))
	for _, b := range bases {
		if p, ok := byBase[strings.ToUpper(strings.TrimSpace(b))]; ok {
			out = append(out, p)
			delete(byBase, p.Base)
		}
	}
	return out
}

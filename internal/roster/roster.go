package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownSpecies = errors.New("unknown species")

// Profile maps a species to its exchange markets. Profiles are immutable;
// the roster swaps the whole set on refresh.
type Profile struct {
	Name               string
	Element            string
	Sprite             string
	Base               string
	SpotSymbol         string
	PerpSymbol         string
	PricePrecision     int
	SizePrecision      int
	PerpPricePrecision int
	PerpSizePrecision  int
	MaxLeverage        int
	HPScale            float64
}

func (p Profile) HasPerp() bool {
	return p.PerpSymbol != ""
}

func (p Profile) Symbol(perp bool) string {
	if perp && p.HasPerp() {
		return p.PerpSymbol
	}
	return p.SpotSymbol
}

func (p Profile) PriceDecimals(perp bool) int {
	if perp {
		return max(0, p.PerpPricePrecision)
	}
	return max(0, p.PricePrecision)
}

func (p Profile) SizeDecimals(perp bool) int {
	if perp {
		return max(0, p.PerpSizePrecision)
	}
	return max(0, p.SizePrecision)
}

type Balance struct {
	Species string  `json:"species"`
	Symbol  string  `json:"symbol"`
	Element string  `json:"element"`
	Sprite  string  `json:"sprite"`
	Amount  float64 `json:"amount"`
	HP      float64 `json:"hp"`
}

type Roster struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Profile
	bySym  map[string]Profile
	byBase map[string]Profile
}

func New(profiles []Profile) *Roster {
	r := &Roster{}
	r.Replace(profiles)
	return r
}

// Replace swaps the full profile set.
func (r *Roster) Replace(profiles []Profile) {
	order := make([]string, 0, len(profiles))
	byName := make(map[string]Profile, len(profiles))
	bySym := make(map[string]Profile, len(profiles)*2)
	byBase := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		if p.PerpSymbol != "" && p.PerpPricePrecision == 0 && p.PerpSizePrecision == 0 {
			p.PerpPricePrecision = p.PricePrecision
			p.PerpSizePrecision = p.SizePrecision
		}
		if p.HPScale <= 0 {
			p.HPScale = 100
		}
		if _, dup := byName[p.Name]; !dup {
			order = append(order, p.Name)
		}
		byName[p.Name] = p
		bySym[strings.ToUpper(p.SpotSymbol)] = p
		if p.PerpSymbol != "" {
			bySym[strings.ToUpper(p.PerpSymbol)] = p
		}
		if p.Base != "" {
			byBase[strings.ToUpper(p.Base)] = p
		}
	}
	r.mu.Lock()
	r.order = order
	r.byName = byName
	r.bySym = bySym
	r.byBase = byBase
	r.mu.Unlock()
}

// Lookup finds a profile by exact display name.
func (r *Roster) Lookup(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

func (r *Roster) BySymbol(symbol string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.bySym[strings.ToUpper(strings.TrimSpace(symbol))]
	return p, ok
}

func (r *Roster) ByBase(base string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byBase[strings.ToUpper(strings.TrimSpace(base))]
	return p, ok
}

// Resolve accepts a species name, base token or market symbol in any case,
// ignoring dashes and spaces.
func (r *Roster) Resolve(token string) (Profile, error) {
	cleaned := canonical(token)
	if cleaned == "" {
		return Profile{}, fmt.Errorf("%w: species lookup value is empty", ErrUnknownSpecies)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if canonical(name) == cleaned {
			return r.byName[name], nil
		}
	}
	for base, p := range r.byBase {
		if canonical(base) == cleaned {
			return p, nil
		}
	}
	for sym, p := range r.bySym {
		if canonical(sym) == cleaned {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w %q: try a roster species name, base token, or market symbol", ErrUnknownSpecies, token)
}

// Profiles returns profiles in roster order.
func (r *Roster) Profiles() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

func (r *Roster) Names() []string {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// DescribeBalance converts a holding into an HP fill between 0 and 1.
func (r *Roster) DescribeBalance(symbol string, amount float64) (Balance, error) {
	p, ok := r.BySymbol(symbol)
	if !ok {
		return Balance{}, fmt.Errorf("%w: unsupported balance symbol %s", ErrUnknownSpecies, symbol)
	}
	hp := amount / p.HPScale
	if hp < 0 {
		hp = 0
	}
	if hp > 1 {
		hp = 1
	}
	return Balance{
		Species: p.Name,
		Symbol:  symbol,
		Element: p.Element,
		Sprite:  p.Sprite,
		Amount:  amount,
		HP:      hp,
	}, nil
}

func canonical(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

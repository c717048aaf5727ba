package contract

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/exchange"
)

const DefaultTTL = 60 * time.Second

// Lister is the slice of the exchange adapter the cache depends on.
type Lister interface {
	ListContracts(ctx context.Context) (exchange.Envelope, error)
}

// Cache keeps one symbol map refreshed as a whole. Concurrent misses share
// a single refresh; failed refreshes keep serving the previous map.
type Cache struct {
	source Lister
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	meta        map[string]Meta
	fetchedAt   time.Time
	attemptedAt time.Time
}

func NewCache(source Lister, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		source: source,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
		meta:   map[string]Meta{},
	}
}

// Get returns the meta for symbol. The bool is false when the exchange has
// never described the symbol; callers pick their own fallback.
func (c *Cache) Get(ctx context.Context, symbol string) (Meta, bool) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" {
		return Meta{}, false
	}
	start := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stale(start) && c.attemptedAt.Before(start) {
		c.refreshLocked(ctx)
	}
	meta, ok := c.meta[key]
	if !ok && c.attemptedAt.Before(start) {
		c.refreshLocked(ctx)
		meta, ok = c.meta[key]
	}
	return meta, ok
}

// Len reports how many symbols are cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.meta)
}

func (c *Cache) stale(at time.Time) bool {
	return c.fetchedAt.IsZero() || at.Sub(c.fetchedAt) > c.ttl
}

func (c *Cache) refreshLocked(ctx context.Context) {
	c.attemptedAt = c.now()
	env, err := c.source.ListContracts(ctx)
	if err != nil {
		c.log.Warn("contract metadata refresh failed", zap.Error(err))
		return
	}
	fresh := make(map[string]Meta, len(env.Records))
	for _, entry := range env.Records {
		if meta, ok := ParseEntry(entry); ok {
			fresh[meta.Symbol] = meta
		}
	}
	if len(fresh) == 0 {
		c.log.Warn("contract metadata refresh returned no symbols", zap.String("code", env.Code))
		return
	}
	c.meta = fresh
	c.fetchedAt = c.attemptedAt
	c.log.Debug("contract metadata refreshed", zap.Int("symbols", len(fresh)))
}

// ParseEntry reads one contract description. Missing ticks derive from the
// scale; missing scales fall back to the default meta.
func ParseEntry(entry map[string]any) (Meta, bool) {
	symbol := strings.ToUpper(exchange.String(entry, "symbol", "symbolName", "name"))
	if symbol == "" {
		return Meta{}, false
	}
	def := DefaultMeta()
	meta := Meta{Symbol: symbol, PriceScale: def.PriceScale, SizeScale: def.SizeScale}
	priceScale, hasPriceScale := exchange.Int64(entry, "priceScale", "pricePlace", "priceDigits")
	if hasPriceScale {
		meta.PriceScale = int(priceScale)
	}
	sizeScale, hasSizeScale := exchange.Int64(entry, "sizeScale", "sizePlace", "sizeDigits", "volumePlace", "szDecimals")
	if hasSizeScale {
		meta.SizeScale = int(sizeScale)
	}
	meta.PriceTick = positive(entry, "priceTick", "priceStep")
	if meta.PriceTick == 0 {
		meta.PriceTick = TickForScale(meta.PriceScale)
	}
	meta.SizeTick = positive(entry, "sizeTick", "sizeStep", "volumeTick", "sizeMultiplier")
	if meta.SizeTick == 0 {
		meta.SizeTick = TickForScale(meta.SizeScale)
	}
	meta.MinSize = positive(entry, "minTradeNum", "minOrderNum", "minTradeAmount", "minSize")
	if lev, ok := exchange.Int64(entry, "maxLever", "maxLeverage"); ok && lev > 0 {
		meta.MaxLeverage = int(lev)
	}
	return meta, true
}

func positive(entry map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := exchange.Float(entry, key); ok && v > 0 {
			return v
		}
	}
	return 0
}

package registrar

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// priceCacheTTL is how long a per-TLD pricing entry stays fresh.
const priceCacheTTL = 300 * time.Second

// PriceEntry is a cached per-TLD pricing quote.
type PriceEntry struct {
	Price        decimal.Decimal `json:"price"`
	Premium      bool            `json:"premium"`
	PrivacyPrice decimal.Decimal `json:"privacy_price"`
}

// PriceCache is a Redis-backed, TTL-bounded cache of per-TLD pricing
// metadata, keyed per driver so a pricing refresh on one instance is
// visible to every other instance instead of being rebuilt per process.
type PriceCache struct {
	rdb    *redis.Client
	prefix string
}

// NewPriceCache creates a PriceCache for driverName, backed by rdb.
func NewPriceCache(rdb *redis.Client, driverName string) *PriceCache {
	return &PriceCache{rdb: rdb, prefix: "registrar:price:" + driverName + ":"}
}

// Get returns the cached entry for tld if present and not expired. A Redis
// error or miss is treated identically: the caller falls back to a live
// quote.
func (c *PriceCache) Get(ctx context.Context, tld string) (PriceEntry, bool) {
	raw, err := c.rdb.Get(ctx, c.prefix+tld).Bytes()
	if err != nil {
		return PriceEntry{}, false
	}

	var entry PriceEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return PriceEntry{}, false
	}
	return entry, true
}

// Set stores or refreshes the entry for tld with the shared TTL. Failures
// are not fatal: the next Quote call simply misses the cache and re-fetches.
func (c *PriceCache) Set(ctx context.Context, tld string, entry PriceEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, c.prefix+tld, raw, priceCacheTTL)
}

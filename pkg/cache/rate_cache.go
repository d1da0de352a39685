package cache

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultTTL = 10 * time.Minute

type CachedRate struct {
	Rate      decimal.Decimal
	Timestamp time.Time
}

// RateCache holds exchange rates for a fixed time.
type RateCache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	rates map[string]CachedRate
}

func NewRateCache(ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RateCache{ttl: ttl, now: time.Now, rates: make(map[string]CachedRate)}
}

// Get returns the rate for key, or false if it is missing or stale.
func (c *RateCache) Get(key string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rateData, ok := c.rates[key]
	if !ok {
		return decimal.Zero, false
	}
	if c.now().Sub(rateData.Timestamp) > c.ttl {
		delete(c.rates, key)
		return decimal.Zero, false
	}

	logrus.WithField("key", key).Debug("rate served from cache")
	return rateData.Rate, true
}

func (c *RateCache) Set(key string, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rates[key] = CachedRate{Rate: rate, Timestamp: c.now()}
	logrus.WithField("key", key).Debug("rate cached")
}

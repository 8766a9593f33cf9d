package timetable

import (
	"time"

	"github.com/bluele/gcache"
)

// CacheObserver receives trip-pair cache outcomes, typically a metrics sink.
type CacheObserver interface {
	TripCacheHit()
	TripCacheMiss()
}

// Cached memoizes TripsBetween per origin/destination pair. The underlying
// lookup scans every call at the origin, so each pair is computed at most once
// per expiry period.
type Cached struct {
	*Index
	pairs    gcache.Cache
	observer CacheObserver
}

// NewCached wraps idx with an LRU of size entries expiring after ttl.
// observer may be nil.
func NewCached(idx *Index, size int, ttl time.Duration, observer CacheObserver) *Cached {
	if size <= 0 {
		size = 256
	}
	return &Cached{
		Index:    idx,
		pairs:    gcache.New(size).LRU().Expiration(ttl).Build(),
		observer: observer,
	}
}

// TripsBetween returns the cached trip set for the pair, computing it on miss.
func (c *Cached) TripsBetween(origin, destination string) []string {
	key := origin + "\x00" + destination
	if v, err := c.pairs.Get(key); err == nil {
		if trips, ok := v.([]string); ok {
			if c.observer != nil {
				c.observer.TripCacheHit()
			}
			return trips
		}
	}
	if c.observer != nil {
		c.observer.TripCacheMiss()
	}
	trips := c.Index.TripsBetween(origin, destination)
	_ = c.pairs.Set(key, trips)
	return trips
}

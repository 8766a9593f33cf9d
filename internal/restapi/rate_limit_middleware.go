package restapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"ovwatch.transit.nl/internal/clock"
)

// idleClientTimeout is how long a client may stay quiet before its limiter is dropped.
const idleClientTimeout = 10 * time.Minute

type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // Unix nanoseconds
}

// RateLimitMiddleware limits requests per client. A client is its API key
// when one is sent, its remote IP otherwise.
type RateLimitMiddleware struct {
	limiters    map[string]*rateLimitClient
	mu          sync.RWMutex
	rateLimit   rate.Limit
	burstSize   int
	cleanupTick *time.Ticker
	stopChan    chan struct{}
	stopOnce    sync.Once
	clock       clock.Clock
}

// NewRateLimitMiddleware allows requestsPerInterval requests per interval and
// client. A non-positive count disables limiting.
func NewRateLimitMiddleware(requestsPerInterval int, interval time.Duration, c clock.Clock) *RateLimitMiddleware {
	if c == nil {
		c = clock.RealClock{}
	}
	limit := rate.Inf
	burst := 1
	if requestsPerInterval > 0 {
		limit = rate.Every(interval / time.Duration(requestsPerInterval))
		burst = requestsPerInterval
	}

	rl := &RateLimitMiddleware{
		limiters:    make(map[string]*rateLimitClient),
		rateLimit:   limit,
		burstSize:   burst,
		cleanupTick: time.NewTicker(5 * time.Minute),
		stopChan:    make(chan struct{}),
		clock:       c,
	}
	go rl.cleanup()
	return rl
}

// Handler returns the HTTP middleware handler function
func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return rl.rateLimitHandler
}

func (rl *RateLimitMiddleware) getLimiter(client string) *rate.Limiter {
	now := rl.clock.Now().UnixNano()

	rl.mu.RLock()
	if c, ok := rl.limiters[client]; ok {
		c.lastSeen.Store(now)
		rl.mu.RUnlock()
		return c.limiter
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if c, ok := rl.limiters[client]; ok {
		c.lastSeen.Store(now)
		return c.limiter
	}
	c := &rateLimitClient{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
	c.lastSeen.Store(now)
	rl.limiters[client] = c
	return c.limiter
}

func clientKey(r *http.Request) string {
	if key := r.URL.Query().Get("key"); key != "" {
		return "key:" + key
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (rl *RateLimitMiddleware) rateLimitHandler(next http.Handler) http.Handler {
	if rl.rateLimit == rate.Inf {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(clientKey(r)).Allow() {
			rl.sendRateLimitExceeded(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	retryAfter := time.Duration(float64(time.Second) / float64(rl.rateLimit))
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")

	writeJSON(w, r, http.StatusTooManyRequests, ResponseModel{
		Code:        http.StatusTooManyRequests,
		CurrentTime: rl.clock.NowUnixMilli(),
		Text:        "Rate limit exceeded. Please try again later.",
	})
}

// cleanupOnce evicts limiters idle for longer than idleClientTimeout.
func (rl *RateLimitMiddleware) cleanupOnce() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, c := range rl.limiters {
		last := c.lastSeen.Load()
		if last == 0 {
			continue
		}
		if now.Sub(time.Unix(0, last)) > idleClientTimeout {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call multiple times.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		rl.cleanupTick.Stop()
	})
}

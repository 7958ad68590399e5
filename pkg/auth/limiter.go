package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Fallback limits used when the security config leaves them unset.
const (
	defaultRPS   = 5
	defaultBurst = 10
)

// maxTrackedKeys bounds the pool. Unauthenticated callers are keyed by
// client IP, so without a bound the map grows with every new source
// address.
const maxTrackedKeys = 4096

// limiterPool hands out one token bucket per caller identity: the API
// key for authenticated requests, the client IP otherwise.
type limiterPool struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func newLimiterPool(cfg SecConfig) *limiterPool {
	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &limiterPool{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the caller identified by key may proceed. A new
// key arriving at a full pool resets it; active keys simply get a fresh
// bucket on their next request.
func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.buckets[key]
	if !ok {
		if len(p.buckets) >= maxTrackedKeys {
			p.buckets = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(p.rps, p.burst)
		p.buckets[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}

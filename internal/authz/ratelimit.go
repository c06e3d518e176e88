package authz

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter keeps one token bucket per source address. Entries idle longer
// than staleAfter are pruned opportunistically on access.
type IPLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const staleAfter = 10 * time.Minute

// NewIPLimiter returns nil when rps is zero so callers can disable limiting
// through config alone.
func NewIPLimiter(rps float64, burst int) *IPLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &IPLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *IPLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[addr]
	if !ok {
		if len(l.buckets) > 1024 {
			l.prune(now)
		}
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[addr] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

func (l *IPLimiter) prune(now time.Time) {
	for addr, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(l.buckets, addr)
		}
	}
}

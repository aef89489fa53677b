package relay

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter is a per-source-IP token bucket (spec §4.6: "Per-IP
// packets/sec limiter (token bucket, default 1000 pps)"), built on
// golang.org/x/time/rate the way nishisan-dev-n-backup and
// snapetech-plexTuner pace their own outbound/tuner traffic (SPEC_FULL.md
// domain stack).
type IPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	pps      int
}

type entry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// NewIPLimiter returns a limiter admitting up to pps packets/sec per
// source IP, bursting to pps.
func NewIPLimiter(pps int) *IPLimiter {
	if pps < 1 {
		pps = 1
	}
	return &IPLimiter{limiters: make(map[string]*entry), pps: pps}
}

// Allow reports whether a packet from ip may proceed, consuming a token if
// so.
func (l *IPLimiter) Allow(ip net.IP) bool {
	key := ip.String()
	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.pps), l.pps)}
		l.limiters[key] = e
	}
	e.lastUse = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

// Cleanup discards per-IP limiter state untouched for longer than maxIdle,
// bounding memory under churn from transient source addresses.
func (l *IPLimiter) Cleanup(maxIdle time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.limiters {
		if now.Sub(e.lastUse) > maxIdle {
			delete(l.limiters, k)
		}
	}
}

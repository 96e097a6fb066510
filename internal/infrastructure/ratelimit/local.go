package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Local is a per-key token bucket refilling limit tokens every window. It is used when
// no Redis server is configured.
type Local struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	r        rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

func NewLocal(limit int, window time.Duration) *Local {
	return &Local{
		limiters: make(map[string]*keyLimiter),
		r:        rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idle:     window,
		now:      time.Now,
	}
}

func (l *Local) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Buckets idle for a full window are full again; dropping them changes nothing.
	for k, v := range l.limiters {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.limiters, k)
		}
	}
	if v, ok := l.limiters[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(l.r, l.burst)
	l.limiters[key] = &keyLimiter{limiter: lim, lastSeen: now}
	return lim
}

func (l *Local) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	res := l.get(key, now).ReserveN(now, 1)
	if !res.OK() {
		return false, 0, nil
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

func (l *Local) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

package httpapi

import (
	"sync"
	"time"
)

const sweepEvery = time.Minute

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// rateLimiter is a per-key token bucket. Buckets that have refilled
// completely are swept, so the map only holds keys that spent tokens
// recently.
type rateLimiter struct {
	mu        sync.Mutex
	rps       float64
	burst     int
	bkts      map[string]*bucket // key: ip
	now       func() time.Time
	lastSweep time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{rps: rps, burst: burst, bkts: make(map[string]*bucket), now: time.Now}
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= sweepEvery {
		rl.sweep(now)
	}

	bkt, ok := rl.bkts[key]
	if !ok {
		bkt = &bucket{tokens: float64(rl.burst), lastRefill: now}
		rl.bkts[key] = bkt
	}
	bkt.tokens = rl.refill(bkt, now)
	bkt.lastRefill = now

	if bkt.tokens >= 1 {
		bkt.tokens -= 1
		return true
	}
	return false
}

func (rl *rateLimiter) refill(b *bucket, now time.Time) float64 {
	return min(float64(rl.burst), b.tokens+now.Sub(b.lastRefill).Seconds()*rl.rps)
}

func (rl *rateLimiter) sweep(now time.Time) {
	for k, b := range rl.bkts {
		if rl.refill(b, now) >= float64(rl.burst) {
			delete(rl.bkts, k)
		}
	}
	rl.lastSweep = now
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.bkts)
}

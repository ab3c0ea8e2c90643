package http

import (
	"sync"
	"time"
)

// CallRateLimiter is a sliding window limiter keyed by destination number.
// A limit of zero or less disables it.
type CallRateLimiter struct {
	mu        sync.Mutex
	history   map[string][]time.Time
	limit     int
	interval  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewCallRateLimiter(limit int, interval time.Duration) *CallRateLimiter {
	return &CallRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *CallRateLimiter) Allow(number string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	rl.sweep(now, windowStart)

	fresh := prune(rl.history[number], windowStart)
	if len(fresh) >= rl.limit {
		rl.history[number] = fresh
		return false
	}
	rl.history[number] = append(fresh, now)
	return true
}

// sweep drops numbers with no attempt inside the window, at most once per
// interval.
func (rl *CallRateLimiter) sweep(now, windowStart time.Time) {
	if now.Sub(rl.lastSweep) < rl.interval {
		return
	}
	rl.lastSweep = now
	for number, attempts := range rl.history {
		if fresh := prune(attempts, windowStart); len(fresh) == 0 {
			delete(rl.history, number)
		} else {
			rl.history[number] = fresh
		}
	}
}

func prune(attempts []time.Time, windowStart time.Time) []time.Time {
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}

package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginThrottle is a per-client token bucket for the login endpoint. Idle
// buckets are dropped by the janitor.
type LoginThrottle struct {
	mu      sync.Mutex
	entries map[string]*throttleEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	clock   func() time.Time
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewLoginThrottle(perSecond float64, burst int, idleTTL time.Duration) *LoginThrottle {
	if burst <= 0 {
		burst = 5
	}
	if idleTTL <= 0 {
		idleTTL = 15 * time.Minute
	}
	return &LoginThrottle{
		entries: make(map[string]*throttleEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: idleTTL,
		clock:   time.Now,
	}
}

// Allow consumes one token for key and reports whether the attempt may
// proceed, plus the wait until the next token when it may not.
func (t *LoginThrottle) Allow(key string) (bool, time.Duration) {
	now := t.clock()

	t.mu.Lock()
	ent, ok := t.entries[key]
	if !ok {
		ent = &throttleEntry{lim: rate.NewLimiter(t.limit, t.burst)}
		t.entries[key] = ent
	}
	ent.lastSeen = now
	t.mu.Unlock()

	r := ent.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Reset forgets key, e.g. after a successful login.
func (t *LoginThrottle) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Cleanup removes buckets idle longer than the TTL.
func (t *LoginThrottle) Cleanup() {
	cutoff := t.clock().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, ent := range t.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}

func (t *LoginThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (t *LoginThrottle) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Cleanup()
			}
		}
	}()
}

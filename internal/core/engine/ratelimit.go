package engine

import (
	"context"
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/metrics"
)

const (
	// DefaultStorageKey is the attempt log key for the public contact form.
	DefaultStorageKey = "contact_form_attempts"

	DefaultMaxAttempts = 3
	DefaultWindow      = time.Minute
)

// RateLimiter enforces a sliding window over persisted submission timestamps.
// Storage failures never block a caller: the limiter fails open.
type RateLimiter struct {
	StorageKey  string
	MaxAttempts int
	Window      time.Duration
	Store       AttemptStore
	Clock       func() time.Time
	Logger      *logging.Logger
}

// RateLimitResult is the outcome of a limit check.
type RateLimitResult struct {
	Allowed          bool `json:"allowed"`
	RemainingSeconds int  `json:"remainingSeconds"`
}

// AttemptStore persists attempt logs as JSON arrays of epoch milliseconds.
// A missing key loads as nil bytes and a nil error.
type AttemptStore interface {
	LoadAttempts(ctx context.Context, key string) ([]byte, error)
	SaveAttempts(ctx context.Context, key string, data []byte) error
	ClearAttempts(ctx context.Context, key string) error
}

// NewRateLimiter returns a limiter with the contact form defaults.
func NewRateLimiter(store AttemptStore) *RateLimiter {
	return &RateLimiter{
		StorageKey:  DefaultStorageKey,
		MaxAttempts: DefaultMaxAttempts,
		Window:      DefaultWindow,
		Store:       store,
	}
}

// WithKey derives a limiter sharing configuration and storage but tracking a
// separate log, e.g. one per client address.
func (r *RateLimiter) WithKey(suffix string) *RateLimiter {
	if r == nil {
		return nil
	}
	derived := *r
	suffix = strings.TrimSpace(suffix)
	if suffix != "" {
		derived.StorageKey = r.key() + ":" + suffix
	}
	return &derived
}

// CheckLimit reports whether another attempt fits in the current window and,
// if not, how many whole seconds remain until the oldest attempt expires.
func (r *RateLimiter) CheckLimit(ctx context.Context) RateLimitResult {
	if r == nil || r.Store == nil {
		return RateLimitResult{Allowed: true}
	}

	now := r.now()
	recent := r.recentAttempts(ctx, now)

	if len(recent) < r.maxAttempts() {
		metrics.RecordRateLimitDecision(true)
		return RateLimitResult{Allowed: true}
	}

	oldest := slices.Min(recent)
	remaining := r.window() - time.Duration(now.UnixMilli()-oldest)*time.Millisecond
	metrics.RecordRateLimitDecision(false)
	return RateLimitResult{
		Allowed:          false,
		RemainingSeconds: int(math.Ceil(remaining.Seconds())),
	}
}

// RecordAttempt appends the current time to the pruned log and persists it.
func (r *RateLimiter) RecordAttempt(ctx context.Context) {
	if r == nil || r.Store == nil {
		return
	}

	now := r.now()
	recent := append(r.recentAttempts(ctx, now), now.UnixMilli())

	data, err := json.Marshal(recent)
	if err != nil {
		r.debug("encode attempt log", err)
		return
	}
	if err := r.Store.SaveAttempts(ctx, r.key(), data); err != nil {
		r.debug("save attempt log", err)
	}
}

// Clear drops the attempt log for this limiter's key.
func (r *RateLimiter) Clear(ctx context.Context) {
	if r == nil || r.Store == nil {
		return
	}
	if err := r.Store.ClearAttempts(ctx, r.key()); err != nil {
		r.debug("clear attempt log", err)
	}
}

// Attempts returns the timestamps still inside the window.
func (r *RateLimiter) Attempts(ctx context.Context) []time.Time {
	if r == nil || r.Store == nil {
		return nil
	}
	recent := r.recentAttempts(ctx, r.now())
	out := make([]time.Time, 0, len(recent))
	for _, ms := range recent {
		out = append(out, time.UnixMilli(ms).UTC())
	}
	return out
}

func (r *RateLimiter) recentAttempts(ctx context.Context, now time.Time) []int64 {
	data, err := r.Store.LoadAttempts(ctx, r.key())
	if err != nil {
		r.debug("load attempt log", err)
		return nil
	}
	attempts, err := DecodeAttempts(data)
	if err != nil {
		r.debug("decode attempt log", err)
		return nil
	}
	return PruneAttempts(attempts, now, r.window())
}

// DecodeAttempts parses a stored attempt log. Empty input decodes to nil.
func DecodeAttempts(data []byte) ([]int64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var attempts []int64
	if err := json.Unmarshal(data, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

// PruneAttempts keeps timestamps with now - t < window, preserving order.
func PruneAttempts(attempts []int64, now time.Time, window time.Duration) []int64 {
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	recent := make([]int64, 0, len(attempts))
	for _, t := range attempts {
		if nowMs-t < windowMs {
			recent = append(recent, t)
		}
	}
	return recent
}

func (r *RateLimiter) key() string {
	if strings.TrimSpace(r.StorageKey) == "" {
		return DefaultStorageKey
	}
	return r.StorageKey
}

func (r *RateLimiter) maxAttempts() int {
	if r.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

func (r *RateLimiter) window() time.Duration {
	if r.Window <= 0 {
		return DefaultWindow
	}
	return r.Window
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) debug(msg string, err error) {
	if r.Logger == nil {
		return
	}
	r.Logger.Debug("rate limiter: "+msg+" (failing open)",
		zap.String("storage_key", r.key()),
		zap.Error(err))
}

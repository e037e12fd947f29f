// Package ratelimit enforces per-identity request admission using a
// fixed-window counter in the fast store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"authgrid.org/internal/kv"
)

const (
	// DefaultCeiling is the per-minute request ceiling per caller.
	DefaultCeiling = 20

	window = time.Minute
	// Counter keys expire just under one window so a bucket never leaks
	// into the next minute.
	counterTTL = 59 * time.Second
)

// Limiter admits or rejects requests per caller identity. The counter
// increment and expiry run as one atomic fast-store operation, so two
// concurrent requests cannot both observe a stale low count.
type Limiter struct {
	fast    kv.Store
	ceiling int64
	now     func() time.Time
}

// New constructs a Limiter; ceiling <= 0 falls back to DefaultCeiling.
func New(fast kv.Store, ceiling int64) *Limiter {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Limiter{fast: fast, ceiling: ceiling, now: time.Now}
}

// SetClock overrides the time source; test use only.
func (l *Limiter) SetClock(fn func() time.Time) {
	if fn != nil {
		l.now = fn
	}
}

// Allow increments the caller's counter for the current window and reports
// whether the request may proceed.
func (l *Limiter) Allow(ctx context.Context, callerID string) (bool, error) {
	key := fmt.Sprintf("%s:%d", callerID, l.now().UTC().Minute())
	n, err := l.fast.IncrWindow(ctx, key, counterTTL)
	if err != nil {
		return false, err
	}
	return n <= l.ceiling, nil
}

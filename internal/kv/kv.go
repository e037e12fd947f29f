// Package kv provides the ephemeral TTL key-value store used for refresh
// token revocation state and admission counters.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the fast-store contract. Implementations must be safe for
// concurrent use; IncrWindow must be atomic with respect to concurrent
// callers of the same key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// IncrWindow increments the counter at key and, when the key is newly
	// created, sets its expiry to ttl. Returns the post-increment value.
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

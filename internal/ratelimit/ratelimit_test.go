package ratelimit

import (
	"context"
	"testing"
	"time"

	"authgrid.org/internal/kv"
)

func TestAllowEnforcesCeiling(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC)
	fast := kv.NewMemory()
	fast.SetClock(func() time.Time { return now })

	limiter := New(fast, 5)
	limiter.SetClock(func() time.Time { return now })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("Allow %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("request %d rejected below ceiling", i+1)
		}
	}

	ok, err := limiter.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("Allow over ceiling: %v", err)
	}
	if ok {
		t.Fatalf("request above ceiling was admitted")
	}

	// A different caller has its own counter.
	ok, err = limiter.Allow(ctx, "user-2")
	if err != nil {
		t.Fatalf("Allow other caller: %v", err)
	}
	if !ok {
		t.Fatalf("independent caller was rejected")
	}

	// The next minute opens a fresh window.
	now = now.Add(time.Minute)
	ok, err = limiter.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("Allow next window: %v", err)
	}
	if !ok {
		t.Fatalf("request in a new window was rejected")
	}
}

func TestNewFallsBackToDefaultCeiling(t *testing.T) {
	limiter := New(kv.NewMemory(), 0)
	if limiter.ceiling != DefaultCeiling {
		t.Fatalf("ceiling = %d, want %d", limiter.ceiling, DefaultCeiling)
	}
}

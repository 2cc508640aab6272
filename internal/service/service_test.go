package service

import (
	"context"
	"testing"
	"time"

	"github.com/nimbleworks/chatrelay/internal/cache"
	"github.com/nimbleworks/chatrelay/internal/policy"
	"github.com/nimbleworks/chatrelay/internal/remote"
	"github.com/nimbleworks/chatrelay/internal/state"
)

func newTestService(t *testing.T) (*Service, *remote.MockClient) {
	t.Helper()

	c, err := cache.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	mock := remote.NewMockClient()
	svc := New(state.NewStore(), c, mock, engine, Config{
		UserID:      "user_test",
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	})

	// Backoff waits resolve immediately in tests.
	svc.after = func(d time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	return svc, mock
}

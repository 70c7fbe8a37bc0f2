package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPool_SignAll_RunsEveryIndex(t *testing.T) {
	pool := New(4)
	var count int32
	err := pool.SignAll(context.Background(), 10, func(ctx context.Context, i int) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("SignAll: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected all 10 tasks to run, got %d", count)
	}
}

func TestPool_SignAll_PropagatesFirstError(t *testing.T) {
	pool := New(2)
	wantErr := errors.New("boom")
	err := pool.SignAll(context.Background(), 5, func(ctx context.Context, i int) error {
		if i == 2 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the injected error to propagate, got %v", err)
	}
}

func TestPool_New_ClampsNonPositiveConcurrency(t *testing.T) {
	pool := New(0)
	var count int32
	err := pool.SignAll(context.Background(), 3, func(ctx context.Context, i int) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("SignAll: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected a clamped pool to still run every task, got %d", count)
	}
}

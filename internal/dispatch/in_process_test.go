package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestInProcessPoolExecutesAllIDs(t *testing.T) {
	pool := NewInProcessPool(3)
	ids := make(chan int64, 10)
	for i := int64(1); i <= 10; i++ {
		ids <- i
	}
	close(ids)

	var count int64
	var seen sync.Map

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- pool.Run(ctx, ids, func(ctx context.Context, id int64) {
			atomic.AddInt64(&count, 1)
			seen.Store(id, true)
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pool to drain")
	}

	if count != 10 {
		t.Fatalf("expected 10 executions, got %d", count)
	}
	for i := int64(1); i <= 10; i++ {
		if _, ok := seen.Load(i); !ok {
			t.Fatalf("id %d was never executed", i)
		}
	}
}

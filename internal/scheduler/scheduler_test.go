package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/monitron/monitron/internal/clock"
	"github.com/monitron/monitron/internal/domain/monitor"
)

// fakeMonitorsRepo is a hand-written fake implementing MonitorsRepo.
type fakeMonitorsRepo struct {
	mu     sync.Mutex
	due    []monitor.Monitor
	claims [][]int64
}

func (f *fakeMonitorsRepo) ClaimDue(ctx context.Context, limit int, now time.Time, claimTTL time.Duration) ([]monitor.Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := limit
	if n > len(f.due) {
		n = len(f.due)
	}
	claimed := f.due[:n]
	f.due = f.due[n:]

	ids := make([]int64, len(claimed))
	for i, m := range claimed {
		ids[i] = m.ID
	}
	f.claims = append(f.claims, ids)

	return claimed, nil
}

type sequentialDispatcher struct{}

func (sequentialDispatcher) Run(ctx context.Context, ids <-chan int64, exec func(ctx context.Context, id int64)) error {
	for id := range ids {
		exec(ctx, id)
	}
	return nil
}

func TestSchedulerTickClaimsAndDispatches(t *testing.T) {
	due := make([]monitor.Monitor, 0, 10)
	for i := int64(1); i <= 10; i++ {
		due = append(due, monitor.Monitor{ID: i, Enabled: true})
	}
	repo := &fakeMonitorsRepo{due: due}

	var mu sync.Mutex
	var executed []int64

	s := New(
		Config{MaxConcurrency: 5, PollInterval: time.Second, ClaimTTL: 30 * time.Second},
		repo,
		sequentialDispatcher{},
		clock.NewFrozenClock(time.Now()),
		nil,
		func(ctx context.Context, id int64) {
			mu.Lock()
			executed = append(executed, id)
			mu.Unlock()
		},
	)

	// L = 5*4 = 20, so one tick claims all 10 due monitors.
	s.tick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(executed) != 10 {
		t.Fatalf("expected 10 dispatched ids, got %d", len(executed))
	}
}

func TestSchedulerEmptyDueIsNoOp(t *testing.T) {
	repo := &fakeMonitorsRepo{}
	called := false

	s := New(
		Config{MaxConcurrency: 5},
		repo,
		sequentialDispatcher{},
		clock.NewFrozenClock(time.Now()),
		nil,
		func(ctx context.Context, id int64) { called = true },
	)

	s.tick(context.Background())

	if called {
		t.Fatal("exec should not be called when nothing is due")
	}
}

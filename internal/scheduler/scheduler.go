// Package scheduler implements the claim-and-dispatch loop: identify due
// monitors, claim them atomically by advancing next_run_at, and hand the
// ids to a dispatch.Dispatcher.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/monitron/monitron/internal/clock"
	"github.com/monitron/monitron/internal/domain/monitor"
	"github.com/monitron/monitron/internal/observability"
)

// MonitorsRepo is the narrow repo surface the scheduler needs.
type MonitorsRepo interface {
	ClaimDue(ctx context.Context, limit int, now time.Time, claimTTL time.Duration) ([]monitor.Monitor, error)
}

// Dispatcher hands claimed ids off for execution.
type Dispatcher interface {
	Run(ctx context.Context, ids <-chan int64, exec func(ctx context.Context, id int64)) error
}

type Config struct {
	MaxConcurrency int
	PollInterval   time.Duration
	ClaimTTL       time.Duration
}

type Scheduler struct {
	cfg    Config
	repo   MonitorsRepo
	disp   Dispatcher
	clock  clock.Clock
	prom   *observability.Prom
	exec   func(ctx context.Context, monitorID int64)
}

func New(cfg Config, repo MonitorsRepo, disp Dispatcher, clk clock.Clock, prom *observability.Prom, exec func(ctx context.Context, monitorID int64)) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Second
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Scheduler{cfg: cfg, repo: repo, disp: disp, clock: clk, prom: prom, exec: exec}
}

// Run polls on cfg.PollInterval until ctx is cancelled. Each tick claims up
// to L = MaxConcurrency*4 due monitors in one round trip and dispatches
// them; the next tick is no sooner than PollInterval after the last,
// subtracting the time already spent claiming and dispatching.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	limit := s.cfg.MaxConcurrency * 4

	now := s.clock.Now()
	claimed, err := s.repo.ClaimDue(ctx, limit, now, s.cfg.ClaimTTL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "scheduler.claim_error", "err", err)
		return
	}

	if len(claimed) == 0 {
		return
	}

	ids := make(chan int64, len(claimed))
	for _, m := range claimed {
		ids <- m.ID
	}
	close(ids)

	if err := s.disp.Run(ctx, ids, s.exec); err != nil {
		slog.Default().ErrorContext(ctx, "scheduler.dispatch_error", "err", err)
	}

	tickDuration := time.Since(start)

	if s.prom != nil {
		s.prom.SchedulerClaimedTotal.Add(float64(len(claimed)))
		s.prom.SchedulerTickDuration.Observe(tickDuration.Seconds())
	}

	slog.Default().InfoContext(ctx, "scheduler.tick",
		"claimed_count", len(claimed),
		"tick_duration_ms", tickDuration.Milliseconds(),
	)
}

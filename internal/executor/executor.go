// Package executor runs one complete probe cycle for a claimed monitor:
// snapshot, probe, classify, persist, alert. Each check gets its own span,
// structured start/done/error logs, and duration/result metrics.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/monitron/monitron/internal/backoff"
	"github.com/monitron/monitron/internal/clock"
	"github.com/monitron/monitron/internal/domain/monitor"
	"github.com/monitron/monitron/internal/observability"
	"github.com/monitron/monitron/internal/probe"
)

// MonitorsRepo is the narrow surface the executor needs.
type MonitorsRepo interface {
	GetByID(ctx context.Context, id int64) (monitor.Monitor, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (monitor.Monitor, error)
	ApplyCheckResult(ctx context.Context, tx pgx.Tx, id int64, completedAt time.Time, outcome monitor.Outcome, statusCode, latencyMs *int, consecutiveFailures int, nextRunAt time.Time) error
}

type ChecksRepo interface {
	Insert(ctx context.Context, tx pgx.Tx, c monitor.MonitorCheck) (int64, error)
}

// AlertEngine is consulted after commit with the persisted result.
type AlertEngine interface {
	Evaluate(ctx context.Context, tx pgx.Tx, m monitor.Monitor, now time.Time, outcome monitor.Outcome, statusCode *int, errorMessage *string)
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Config struct {
	JitterSeconds float64
}

type Executor struct {
	cfg      Config
	db       TxBeginner
	monitors MonitorsRepo
	checks   ChecksRepo
	prober   probe.Prober
	clock    clock.Clock
	backoff  backoff.Policy
	alerts   AlertEngine
	prom     *observability.Prom
	rng      *rand.Rand
}

var tracer = otel.Tracer("monitron-executor")

func New(cfg Config, db TxBeginner, monitors MonitorsRepo, checks ChecksRepo, prober probe.Prober, clk clock.Clock, policy backoff.Policy, alerts AlertEngine, prom *observability.Prom) *Executor {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Executor{
		cfg:      cfg,
		db:       db,
		monitors: monitors,
		checks:   checks,
		prober:   prober,
		clock:    clk,
		backoff:  policy,
		alerts:   alerts,
		prom:     prom,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes one complete probe cycle for monitorID.
func (e *Executor) Run(ctx context.Context, monitorID int64) {
	ctx, span := tracer.Start(ctx, "probe.run", trace.WithAttributes(
		attribute.Int64("monitor.id", monitorID),
	))
	defer span.End()

	start := time.Now()

	// Step 1: Snapshot.
	snapshot, err := e.monitors.GetByID(ctx, monitorID)
	if err != nil {
		if errors.Is(err, monitor.ErrMonitorNotFound) {
			slog.Default().DebugContext(ctx, "executor.monitor_vanished", "monitor_id", monitorID)
			return
		}
		span.RecordError(err)
		slog.Default().ErrorContext(ctx, "executor.snapshot_failed", "monitor_id", monitorID, "err", err)
		return
	}
	if err := snapshot.Runnable(); err != nil {
		if errors.Is(err, monitor.ErrMonitorDisabled) {
			slog.Default().DebugContext(ctx, "executor.monitor_disabled", "monitor_id", monitorID)
			return
		}
		slog.Default().WarnContext(ctx, "executor.monitor_invalid", "monitor_id", monitorID, "err", err)
		return
	}

	slog.Default().InfoContext(ctx, "probe.start", "monitor_id", monitorID, "url", snapshot.URL)

	// Step 2: Probe.
	result, probeErr := e.prober.Probe(ctx, probe.Request{
		Method:  snapshot.Method,
		URL:     snapshot.URL,
		Timeout: time.Duration(snapshot.TimeoutSeconds) * time.Second,
	})

	// Step 3: Classify.
	outcome, statusCode, latencyMs, errorMessage := classify(result, probeErr)
	completedAt := e.clock.Now()

	// Step 4: Persist.
	committed, persistErr := e.persist(ctx, monitorID, completedAt, outcome, statusCode, latencyMs, errorMessage)

	d := time.Since(start)

	if persistErr != nil {
		span.RecordError(persistErr)
		span.SetStatus(codes.Error, persistErr.Error())
		if e.prom != nil {
			e.prom.ProbeDuration.WithLabelValues(string(outcome), "persist_error").Observe(d.Seconds())
			e.prom.ProbeResultsTotal.WithLabelValues(string(outcome), "persist_error").Inc()
		}
		slog.Default().ErrorContext(ctx, "probe.persist_failed", "monitor_id", monitorID, "err", persistErr)
		return
	}

	span.SetStatus(codes.Ok, "done")
	span.SetAttributes(
		attribute.String("probe.outcome", string(outcome)),
		attribute.Int64("probe.duration_ms", d.Milliseconds()),
		attribute.String("probe.request_id", result.RequestID),
	)

	if e.prom != nil {
		e.prom.ProbeDuration.WithLabelValues(string(outcome), "done").Observe(d.Seconds())
		e.prom.ProbeResultsTotal.WithLabelValues(string(outcome), "done").Inc()
	}

	slog.Default().InfoContext(ctx, "probe.done",
		"monitor_id", monitorID,
		"outcome", outcome,
		"status_code", optionalInt(statusCode),
		"duration_ms", d.Milliseconds(),
		"request_id", result.RequestID,
	)

	// Step 5: Alert (after commit).
	if committed != nil {
		e.alerts.Evaluate(ctx, nil, *committed, completedAt, outcome, statusCode, errorMessage)
	}
}

func classify(result probe.Result, probeErr error) (monitor.Outcome, *int, *int, *string) {
	if probeErr != nil {
		msg := probeErr.Error()
		return monitor.OutcomeDown, nil, nil, &msg
	}

	status := result.StatusCode
	latency := int(result.Elapsed.Milliseconds())

	outcome := monitor.OutcomeDown
	if status >= 200 && status < 400 {
		outcome = monitor.OutcomeUp
	}

	return outcome, &status, &latency, nil
}

// persist runs step 4 in one transaction: reload the row, apply the
// state-update rules, insert the MonitorCheck row, commit. Returns the
// post-commit monitor so the caller can invoke the alert engine with a
// consistent view, or nil if the monitor vanished mid-check.
func (e *Executor) persist(ctx context.Context, monitorID int64, completedAt time.Time, outcome monitor.Outcome, statusCode, latencyMs *int, errorMessage *string) (*monitor.Monitor, error) {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin persist tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := e.monitors.GetForUpdate(ctx, tx, monitorID)
	if err != nil {
		if errors.Is(err, monitor.ErrMonitorNotFound) {
			slog.Default().DebugContext(ctx, "executor.monitor_vanished_at_persist", "monitor_id", monitorID)
			return nil, nil
		}
		return nil, err
	}

	consecutiveFailures := current.ConsecutiveFailures
	if outcome == monitor.OutcomeUp {
		consecutiveFailures = 0
	} else {
		consecutiveFailures++
	}

	nextRunAt := e.scheduleNextRun(completedAt, outcome, consecutiveFailures, current.IntervalSeconds)

	if err := e.monitors.ApplyCheckResult(ctx, tx, monitorID, completedAt, outcome, statusCode, latencyMs, consecutiveFailures, nextRunAt); err != nil {
		return nil, fmt.Errorf("apply check result: %w", err)
	}

	if _, err := e.checks.Insert(ctx, tx, monitor.MonitorCheck{
		MonitorID:    monitorID,
		OccurredAt:   completedAt,
		Outcome:      outcome,
		StatusCode:   statusCode,
		LatencyMs:    latencyMs,
		ErrorMessage: errorMessage,
	}); err != nil {
		return nil, fmt.Errorf("insert check: %w", err)
	}

	current.ConsecutiveFailures = consecutiveFailures
	current.LastCheckedAt = &completedAt
	current.LastStatusCode = statusCode
	current.LastLatencyMs = latencyMs
	current.LastOutcome = &outcome
	current.NextRunAt = nextRunAt

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit persist tx: %w", err)
	}

	return &current, nil
}

// scheduleNextRun picks the base interval: the monitor's configured
// interval on success, or the staged backoff interval on failure; jitter is
// applied uniformly on top.
func (e *Executor) scheduleNextRun(now time.Time, outcome monitor.Outcome, consecutiveFailures int, intervalSeconds int) time.Time {
	defaultInterval := time.Duration(intervalSeconds) * time.Second

	var base time.Duration
	if outcome == monitor.OutcomeUp {
		base = defaultInterval
	} else {
		base = e.backoff.Retry(consecutiveFailures, defaultInterval)
	}

	jitter := clock.Jitter(e.cfg.JitterSeconds, e.rng)
	return now.Add(base).Add(jitter)
}

func optionalInt(v *int) any {
	if v == nil {
		return "null"
	}
	return *v
}

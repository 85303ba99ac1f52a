package executor

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/monitron/monitron/internal/backoff"
	"github.com/monitron/monitron/internal/domain/monitor"
	"github.com/monitron/monitron/internal/probe"
)

// classify and scheduleNextRun carry the executor's decision logic; the
// transactional persist/alert wiring around them needs a live Postgres
// connection to test meaningfully, so these tests stick to the pure
// functions.

func TestClassifyUpOnSuccessStatus(t *testing.T) {
	// healthy schedule: 200 in 42ms.
	outcome, status, latency, errMsg := classify(probe.Result{StatusCode: 200, Elapsed: 42 * time.Millisecond}, nil)

	if outcome != monitor.OutcomeUp {
		t.Fatalf("expected up outcome, got %s", outcome)
	}
	if status == nil || *status != 200 {
		t.Fatalf("expected status 200, got %v", status)
	}
	if latency == nil || *latency != 42 {
		t.Fatalf("expected latency 42ms, got %v", latency)
	}
	if errMsg != nil {
		t.Fatalf("expected no error message, got %v", *errMsg)
	}
}

func TestClassifyDownOnServerError(t *testing.T) {
	// 503 is down.
	outcome, status, _, errMsg := classify(probe.Result{StatusCode: 503, Elapsed: 10 * time.Millisecond}, nil)

	if outcome != monitor.OutcomeDown {
		t.Fatalf("expected down outcome for 503, got %s", outcome)
	}
	if status == nil || *status != 503 {
		t.Fatalf("expected status 503, got %v", status)
	}
	if errMsg != nil {
		t.Fatalf("expected no error message for a completed 503 response, got %v", *errMsg)
	}
}

func TestClassifyDownOnTransportError(t *testing.T) {
	// transport error: connection refused, no status/latency, error message set.
	probeErr := &probe.ProbeError{Elapsed: 1200 * time.Millisecond, Err: errors.New("connection refused")}
	outcome, status, latency, errMsg := classify(probe.Result{}, probeErr)

	if outcome != monitor.OutcomeDown {
		t.Fatalf("expected down outcome on transport error, got %s", outcome)
	}
	if status != nil {
		t.Fatalf("expected nil status_code on transport error, got %v", *status)
	}
	if latency != nil {
		t.Fatalf("expected nil latency_ms on transport error, got %v", *latency)
	}
	if errMsg == nil || *errMsg == "" {
		t.Fatal("expected a non-empty error message on transport error")
	}
}

func newTestExecutor() *Executor {
	return &Executor{
		cfg:     Config{JitterSeconds: 0},
		backoff: backoff.DefaultPolicy(),
		rng:     rand.New(rand.NewSource(1)),
	}
}

func TestScheduleNextRunHealthyUsesBaseInterval(t *testing.T) {
	// interval_seconds=60, jitter_seconds=0, t=1000 -> next_run_at=1060.
	e := newTestExecutor()
	now := time.Unix(1000, 0).UTC()

	next := e.scheduleNextRun(now, monitor.OutcomeUp, 0, 60)

	want := now.Add(60 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("expected next_run_at %s, got %s", want, next)
	}
}

func TestScheduleNextRunStagedBackoff(t *testing.T) {
	// default stages, interval_seconds=60. consecutive_failures 1..5 all
	// land in stage 1 (2 attempts @ 30s) then stage 2 (5 attempts @ 60s).
	e := newTestExecutor()
	now := time.Unix(0, 0).UTC()

	cases := []struct {
		consecutiveFailures int
		wantInterval        time.Duration
	}{
		{1, 30 * time.Second},
		{2, 30 * time.Second},
		{3, 60 * time.Second},
		{4, 60 * time.Second},
		{5, 60 * time.Second},
	}

	for _, c := range cases {
		next := e.scheduleNextRun(now, monitor.OutcomeDown, c.consecutiveFailures, 60)
		want := now.Add(c.wantInterval)
		if !next.Equal(want) {
			t.Fatalf("consecutive_failures=%d: expected next_run_at %s, got %s", c.consecutiveFailures, want, next)
		}
	}
}

func TestScheduleNextRunRecoveryRestoresBaseInterval(t *testing.T) {
	// after staged backoff, a successful check restores the plain
	// interval regardless of how deep the failure streak had gone.
	e := newTestExecutor()
	now := time.Unix(0, 0).UTC()

	next := e.scheduleNextRun(now, monitor.OutcomeUp, 0, 60)

	want := now.Add(60 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("expected base interval restored, got %s want %s", next, want)
	}
}

func TestScheduleNextRunTransportErrorUsesFailureStages(t *testing.T) {
	// a transport-error down check schedules from the failure stages,
	// same as any other down outcome.
	e := newTestExecutor()
	now := time.Unix(0, 0).UTC()

	next := e.scheduleNextRun(now, monitor.OutcomeDown, 1, 60)

	want := now.Add(30 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("expected stage-1 interval after first failure, got %s want %s", next, want)
	}
}

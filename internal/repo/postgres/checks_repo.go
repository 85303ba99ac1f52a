package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/monitron/monitron/internal/domain/monitor"
	"github.com/monitron/monitron/internal/observability"
)

// ChecksRepo owns the append-only monitor_checks log.
type ChecksRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewChecksRepo(pool *pgxpool.Pool, prom *observability.Prom) *ChecksRepo {
	return &ChecksRepo{pool: pool, prom: prom}
}

func (r *ChecksRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Insert writes one MonitorCheck row inside the caller's transaction.
func (r *ChecksRepo) Insert(ctx context.Context, tx pgx.Tx, c monitor.MonitorCheck) (int64, error) {
	op := "checks.insert"

	var id int64
	err := r.observe(op, func() error {
		return tx.QueryRow(ctx, `
			INSERT INTO monitor_checks (monitor_id, occurred_at, outcome, status_code, latency_ms, error_message)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, c.MonitorID, c.OccurredAt, string(c.Outcome), c.StatusCode, c.LatencyMs, c.ErrorMessage).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CountDownInWindow counts down checks for one monitor with occurred_at at
// or after now-W, counted after the current check has been inserted. The
// caller decides the transaction boundary: pass the persist tx to count
// inside it, or nil to count against the pool after commit. Both orderings
// see the just-inserted row.
func (r *ChecksRepo) CountDownInWindow(ctx context.Context, tx pgx.Tx, monitorID int64, now time.Time, window time.Duration) (int, error) {
	op := "checks.count_down_in_window"

	var q interface {
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	} = r.pool
	if tx != nil {
		q = tx
	}

	var count int
	err := r.observe(op, func() error {
		return q.QueryRow(ctx, `
			SELECT COUNT(*) FROM monitor_checks
			WHERE monitor_id = $1 AND outcome = 'down' AND occurred_at >= $2
		`, monitorID, now.Add(-window)).Scan(&count)
	})
	return count, err
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/monitron/monitron/internal/domain/monitor"
	"github.com/monitron/monitron/internal/observability"
)

// MonitorsRepo is the claim/snapshot/update surface over the monitors
// table. Every statement goes through observe(op, fn) so DB latency and
// error class are recorded per logical operation.
type MonitorsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewMonitorsRepo(pool *pgxpool.Pool, prom *observability.Prom) *MonitorsRepo {
	return &MonitorsRepo{pool: pool, prom: prom}
}

func (r *MonitorsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const monitorColumns = `id, name, url, method, interval_seconds, timeout_seconds, enabled,
	owner_id, next_run_at, last_checked_at, last_status_code, last_latency_ms,
	last_outcome, consecutive_failures, created_at, updated_at`

func scanMonitor(row pgx.Row) (monitor.Monitor, error) {
	var m monitor.Monitor
	var outcome *string

	err := row.Scan(
		&m.ID, &m.Name, &m.URL, &m.Method, &m.IntervalSeconds, &m.TimeoutSeconds, &m.Enabled,
		&m.OwnerID, &m.NextRunAt, &m.LastCheckedAt, &m.LastStatusCode, &m.LastLatencyMs,
		&outcome, &m.ConsecutiveFailures, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return monitor.Monitor{}, err
	}
	if outcome != nil {
		o := monitor.Outcome(*outcome)
		m.LastOutcome = &o
	}
	return m, nil
}

// ClaimDue runs the scheduler's single-statement claim: up to limit due,
// enabled rows, skip-locked, advanced to now+claimTTL in the same
// statement. Rows another scheduler instance holds locked are skipped, so
// concurrent schedulers never claim the same monitor twice in a cycle.
func (r *MonitorsRepo) ClaimDue(ctx context.Context, limit int, now time.Time, claimTTL time.Duration) ([]monitor.Monitor, error) {
	op := "monitors.claim_due"

	var claimed []monitor.Monitor

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
			WITH due AS (
				SELECT id
				FROM monitors
				WHERE enabled = true AND next_run_at <= $1
				ORDER BY next_run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			UPDATE monitors
			SET next_run_at = $1 + ($3 * INTERVAL '1 second'), updated_at = $1
			WHERE id IN (SELECT id FROM due)
			RETURNING `+monitorColumns,
			now, limit, claimTTL.Seconds(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, scanErr := scanMonitor(rows)
			if scanErr != nil {
				return scanErr
			}
			claimed = append(claimed, m)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// GetByID is a plain unlocked read used for the executor's initial
// snapshot. The row is not held across the probe; the persist step reloads
// it under a row lock.
func (r *MonitorsRepo) GetByID(ctx context.Context, id int64) (monitor.Monitor, error) {
	op := "monitors.get_by_id"

	var m monitor.Monitor
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
		scanned, scanErr := scanMonitor(row)
		if scanErr != nil {
			return scanErr
		}
		m = scanned
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.Monitor{}, monitor.ErrMonitorNotFound
		}
		return monitor.Monitor{}, err
	}
	return m, nil
}

// GetForUpdate reloads a single monitor row inside the caller's transaction,
// row-locked, ahead of the persist step's state-update rules. Returns
// monitor.ErrMonitorNotFound if the row has vanished mid-check.
func (r *MonitorsRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (monitor.Monitor, error) {
	op := "monitors.get_for_update"

	var m monitor.Monitor
	err := r.observe(op, func() error {
		row := tx.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1 FOR UPDATE`, id)
		scanned, scanErr := scanMonitor(row)
		if scanErr != nil {
			return scanErr
		}
		m = scanned
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.Monitor{}, monitor.ErrMonitorNotFound
		}
		return monitor.Monitor{}, err
	}
	return m, nil
}

// ApplyCheckResult writes one check's state update inside the caller's
// transaction: runtime fields, consecutive_failures, and the next
// scheduled run.
func (r *MonitorsRepo) ApplyCheckResult(ctx context.Context, tx pgx.Tx, id int64, completedAt time.Time, outcome monitor.Outcome, statusCode, latencyMs *int, consecutiveFailures int, nextRunAt time.Time) error {
	op := "monitors.apply_check_result"

	return r.observe(op, func() error {
		tag, err := tx.Exec(ctx, `
			UPDATE monitors
			SET last_checked_at = $2,
			    last_status_code = $3,
			    last_latency_ms = $4,
			    last_outcome = $5,
			    consecutive_failures = $6,
			    next_run_at = $7,
			    updated_at = $2
			WHERE id = $1
		`, id, completedAt, statusCode, latencyMs, string(outcome), consecutiveFailures, nextRunAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return monitor.ErrMonitorNotFound
		}
		return nil
	})
}

// Package alert implements the sliding-window sustained-down trigger: on a
// down outcome, count recent down checks for the monitor and send exactly
// one email on the check that first crosses the configured threshold.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/monitron/monitron/internal/domain/monitor"
	"github.com/monitron/monitron/internal/mailer"
	"github.com/monitron/monitron/internal/observability"
)

// ChecksRepo is the narrow surface the alert engine needs from the checks
// table. The count runs after the current check is recorded: callers pass
// the persist transaction to count inside it, or nil to count after commit.
type ChecksRepo interface {
	CountDownInWindow(ctx context.Context, tx pgx.Tx, monitorID int64, now time.Time, window time.Duration) (int, error)
}

// UsersRepo resolves the alert recipient.
type UsersRepo interface {
	GetByID(ctx context.Context, id int64) (monitor.User, error)
}

type Config struct {
	SustainedDownThreshold int
	SustainedDownWindow    time.Duration
	EmailFrom              string
}

type Engine struct {
	cfg    Config
	checks ChecksRepo
	users  UsersRepo
	mail   mailer.Mailer
	prom   *observability.Prom
}

func New(cfg Config, checks ChecksRepo, users UsersRepo, mail mailer.Mailer, prom *observability.Prom) *Engine {
	return &Engine{cfg: cfg, checks: checks, users: users, mail: mail, prom: prom}
}

// Evaluate is called after the check insert with the freshly-persisted
// result; tx may be nil when the caller evaluates after commit. It has no
// error return: a failed count or send must never fail the probe pipeline,
// so every failure mode is logged and swallowed here.
func (e *Engine) Evaluate(ctx context.Context, tx pgx.Tx, m monitor.Monitor, now time.Time, outcome monitor.Outcome, statusCode *int, errorMessage *string) {
	if outcome != monitor.OutcomeDown {
		return
	}

	if e.cfg.SustainedDownThreshold <= 0 || e.cfg.SustainedDownWindow <= 0 {
		return
	}

	if m.OwnerID == nil {
		return
	}

	if e.mail == nil || e.cfg.EmailFrom == "" {
		slog.Default().DebugContext(ctx, "alert.mailer_unconfigured", "monitor_id", m.ID)
		return
	}

	count, err := e.checks.CountDownInWindow(ctx, tx, m.ID, now, e.cfg.SustainedDownWindow)
	if err != nil {
		slog.Default().ErrorContext(ctx, "alert.window_count_failed", "monitor_id", m.ID, "err", err)
		return
	}

	// Exact-equality trigger: fire only on the check that first crosses the
	// threshold, never on every subsequent down check. The edge fires once
	// as the window count ratchets up, so no "alert sent" flag is needed.
	if count != e.cfg.SustainedDownThreshold {
		return
	}

	owner, err := e.users.GetByID(ctx, *m.OwnerID)
	if err != nil {
		slog.Default().WarnContext(ctx, "alert.owner_unresolved", "monitor_id", m.ID, "owner_id", *m.OwnerID, "err", err)
		return
	}

	msg := e.compose(m, owner, count, statusCode, errorMessage)

	if err := e.mail.Send(ctx, msg); err != nil {
		if e.prom != nil {
			e.prom.AlertSendTotal.WithLabelValues("error").Inc()
		}
		if errors.Is(err, mailer.ErrMailerNotConfigured) {
			slog.Default().DebugContext(ctx, "alert.mailer_not_configured", "monitor_id", m.ID)
			return
		}
		slog.Default().ErrorContext(ctx, "alert.send_failed", "monitor_id", m.ID, "err", err)
		return
	}

	if e.prom != nil {
		e.prom.AlertSendTotal.WithLabelValues("sent").Inc()
	}
	slog.Default().InfoContext(ctx, "alert.sent", "monitor_id", m.ID, "owner_email", owner.Email, "window_count", count)
}

func (e *Engine) compose(m monitor.Monitor, owner monitor.User, count int, statusCode *int, errorMessage *string) mailer.Message {
	subject := fmt.Sprintf("Monitron alert: %s is down", m.Name)

	status := "down"
	if statusCode != nil {
		status = fmt.Sprintf("down (HTTP %d)", *statusCode)
	}

	body := fmt.Sprintf(
		"Monitor %q has failed %d checks in the last %s.\n\nURL: %s\nLatest status: %s",
		m.Name, count, e.cfg.SustainedDownWindow, m.URL, status,
	)
	if errorMessage != nil && *errorMessage != "" {
		body += fmt.Sprintf("\nLatest error: %s", *errorMessage)
	}

	return mailer.Message{
		To:      owner.Email,
		Subject: subject,
		Body:    body,
	}
}

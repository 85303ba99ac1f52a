package mailer

import (
	"context"
	"log/slog"
)

// LogMailer stands in when no SMTP config is present. It logs at debug and
// returns ErrMailerNotConfigured so callers can tell the send was a no-op.
type LogMailer struct{}

func NewLogMailer() *LogMailer { return &LogMailer{} }

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	slog.Default().DebugContext(ctx, "mailer.not_configured",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return ErrMailerNotConfigured
}

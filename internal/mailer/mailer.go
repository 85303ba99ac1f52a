// Package mailer sends the alert engine's one-shot emails.
package mailer

import (
	"context"
	"errors"
)

// ErrMailerNotConfigured is returned by LogMailer so the alert engine can
// distinguish "alerting disabled" from "sent" without an extra boolean.
var ErrMailerNotConfigured = errors.New("mailer not configured")

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

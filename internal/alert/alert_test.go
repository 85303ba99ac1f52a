package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/monitron/monitron/internal/domain/monitor"
	"github.com/monitron/monitron/internal/mailer"
)

type fakeChecksRepo struct {
	count int
}

func (f *fakeChecksRepo) CountDownInWindow(ctx context.Context, tx pgx.Tx, monitorID int64, now time.Time, window time.Duration) (int, error) {
	return f.count, nil
}

type fakeUsersRepo struct {
	user monitor.User
	err  error
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (monitor.User, error) {
	return f.user, f.err
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func ownerMonitor(id int64, ownerID int64) monitor.Monitor {
	return monitor.Monitor{ID: id, Name: "homepage", URL: "http://h/ok", OwnerID: &ownerID}
}

// threshold=3: count==3 fires exactly once; count==4 on the next probe
// does not fire again.
func TestEvaluateFiresOnlyAtExactThreshold(t *testing.T) {
	checks := &fakeChecksRepo{count: 3}
	users := &fakeUsersRepo{user: monitor.User{ID: 1, Email: "owner@example.com", IsActive: true}}
	mail := &fakeMailer{}

	e := New(Config{SustainedDownThreshold: 3, SustainedDownWindow: time.Hour, EmailFrom: "alerts@example.com"}, checks, users, mail, nil)
	m := ownerMonitor(1, 1)

	e.Evaluate(context.Background(), nil, m, time.Now(), monitor.OutcomeDown, nil, nil)

	if len(mail.sent) != 1 {
		t.Fatalf("expected exactly one email at count==threshold, got %d", len(mail.sent))
	}

	// Next probe still down, count now 4; must not fire again.
	checks.count = 4
	e.Evaluate(context.Background(), nil, m, time.Now(), monitor.OutcomeDown, nil, nil)

	if len(mail.sent) != 1 {
		t.Fatalf("expected no additional email past the threshold edge, got %d total", len(mail.sent))
	}
}

func TestEvaluateSkipsOnUpOutcome(t *testing.T) {
	checks := &fakeChecksRepo{count: 3}
	users := &fakeUsersRepo{user: monitor.User{ID: 1, Email: "owner@example.com"}}
	mail := &fakeMailer{}

	e := New(Config{SustainedDownThreshold: 3, SustainedDownWindow: time.Hour, EmailFrom: "alerts@example.com"}, checks, users, mail, nil)
	m := ownerMonitor(1, 1)

	e.Evaluate(context.Background(), nil, m, time.Now(), monitor.OutcomeUp, nil, nil)

	if len(mail.sent) != 0 {
		t.Fatalf("expected no email on up outcome, got %d", len(mail.sent))
	}
}

func TestEvaluateSkipsWithoutOwner(t *testing.T) {
	checks := &fakeChecksRepo{count: 3}
	users := &fakeUsersRepo{}
	mail := &fakeMailer{}

	e := New(Config{SustainedDownThreshold: 3, SustainedDownWindow: time.Hour, EmailFrom: "alerts@example.com"}, checks, users, mail, nil)
	m := monitor.Monitor{ID: 1, Name: "homepage", URL: "http://h/ok"} // no OwnerID

	e.Evaluate(context.Background(), nil, m, time.Now(), monitor.OutcomeDown, nil, nil)

	if len(mail.sent) != 0 {
		t.Fatalf("expected no email without an owner, got %d", len(mail.sent))
	}
}

func TestEvaluateSwallowsMailerFailure(t *testing.T) {
	checks := &fakeChecksRepo{count: 3}
	users := &fakeUsersRepo{user: monitor.User{ID: 1, Email: "owner@example.com"}}
	mail := &fakeMailer{err: errors.New("smtp timeout")}

	e := New(Config{SustainedDownThreshold: 3, SustainedDownWindow: time.Hour, EmailFrom: "alerts@example.com"}, checks, users, mail, nil)
	m := ownerMonitor(1, 1)

	// Must not panic and must not propagate the mailer error anywhere;
	// Evaluate has no error return, this test just documents that calling
	// it with a failing mailer completes normally.
	e.Evaluate(context.Background(), nil, m, time.Now(), monitor.OutcomeDown, nil, nil)
}

func TestEvaluateSkipsWhenOwnerUnresolved(t *testing.T) {
	checks := &fakeChecksRepo{count: 3}
	users := &fakeUsersRepo{err: errors.New("not found")}
	mail := &fakeMailer{}

	e := New(Config{SustainedDownThreshold: 3, SustainedDownWindow: time.Hour, EmailFrom: "alerts@example.com"}, checks, users, mail, nil)
	m := ownerMonitor(1, 1)

	e.Evaluate(context.Background(), nil, m, time.Now(), monitor.OutcomeDown, nil, nil)

	if len(mail.sent) != 0 {
		t.Fatalf("expected no email when owner cannot be resolved, got %d", len(mail.sent))
	}
}

// Package monitor holds the core data model: Monitor, MonitorCheck, and the
// read-only User projection used for alert routing.
package monitor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrMonitorDisabled = errors.New("monitor disabled")
)

// Outcome is the result classification of one probe.
type Outcome string

const (
	OutcomeUp   Outcome = "up"
	OutcomeDown Outcome = "down"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeUp, OutcomeDown:
		return true
	default:
		return false
	}
}

// Monitor is a scheduled probe target, the row the scheduler claims and the
// executor updates.
type Monitor struct {
	ID                  int64
	Name                string
	URL                 string
	Method              string
	IntervalSeconds     int
	TimeoutSeconds      int
	Enabled             bool
	OwnerID             *int64
	NextRunAt           time.Time
	LastCheckedAt       *time.Time
	LastStatusCode      *int
	LastLatencyMs       *int
	LastOutcome         *Outcome
	ConsecutiveFailures int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate re-checks the configuration bounds on load, since a row can be
// edited directly in the shared store between checks by the API layer.
func (m Monitor) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("monitor %d: name is required", m.ID)
	}
	if strings.TrimSpace(m.URL) == "" {
		return fmt.Errorf("monitor %d: url is required", m.ID)
	}
	if m.IntervalSeconds < 30 || m.IntervalSeconds > 86400 {
		return fmt.Errorf("monitor %d: interval_seconds %d out of bounds [30,86400]", m.ID, m.IntervalSeconds)
	}
	if m.TimeoutSeconds < 1 || m.TimeoutSeconds > 60 {
		return fmt.Errorf("monitor %d: timeout_seconds %d out of bounds [1,60]", m.ID, m.TimeoutSeconds)
	}
	if m.Method != strings.ToUpper(m.Method) {
		return fmt.Errorf("monitor %d: method %q must be uppercase", m.ID, m.Method)
	}
	return nil
}

// Runnable reports whether a probe may be executed against the monitor:
// disabled monitors return ErrMonitorDisabled, and rows edited out of
// bounds in the shared store fail Validate.
func (m Monitor) Runnable() error {
	if !m.Enabled {
		return ErrMonitorDisabled
	}
	return m.Validate()
}

// MonitorCheck is an append-only record of one probe result.
type MonitorCheck struct {
	ID           int64
	MonitorID    int64
	OccurredAt   time.Time
	Outcome      Outcome
	StatusCode   *int
	LatencyMs    *int
	ErrorMessage *string
}

// User is referenced only for alert routing; the core never mutates it.
type User struct {
	ID       int64
	Email    string
	IsActive bool
}

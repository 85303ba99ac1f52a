package mailer

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by CircuitBreaker while the circuit is open or
// the half-open trial slots are exhausted.
var ErrCircuitOpen = errors.New("mailer circuit breaker open")

// CircuitBreakerConfig bounds the damage a flapping SMTP server can do:
// without it every down-check during an SMTP outage would pay a
// multi-second dial timeout before its fire-and-forget send is dropped.
type CircuitBreakerConfig struct {
	Timeout          time.Duration // hard timeout per send
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// CircuitBreaker wraps any Mailer with a closed/open/half-open state
// machine: consecutive failures open the circuit, sends fail fast until the
// cooldown elapses, then a bounded number of trial calls probe recovery.
type CircuitBreaker struct {
	inner Mailer
	cfg   CircuitBreakerConfig
	mu    sync.Mutex

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewCircuitBreaker(inner Mailer, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &CircuitBreaker{
		inner: inner,
		cfg:   cfg,
		state: "closed",
	}
}

func (b *CircuitBreaker) Send(ctx context.Context, msg Message) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	err := b.inner.Send(sendCtx, msg)
	b.afterRequest(err)
	return err
}

func (b *CircuitBreaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case "closed":
		return true
	case "open":
		if time.Since(b.openedAt) >= b.cfg.Cooldown {
			b.state = "half_open"
			b.halfOpenInFlight = 1
			return true
		}
		return false
	case "half_open":
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (b *CircuitBreaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == "half_open" && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if err == nil {
		b.consecutiveFailures = 0
		b.state = "closed"
		return
	}

	b.consecutiveFailures++

	if b.state == "half_open" {
		b.state = "open"
		b.openedAt = time.Now()
		return
	}

	if b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = "open"
		b.openedAt = time.Now()
	}
}

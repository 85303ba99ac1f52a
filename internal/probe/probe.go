// Package probe performs the single HTTP request a check executor issues
// against a monitor's URL.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Request is the per-call contract: method, url, and a hard deadline.
type Request struct {
	Method  string
	URL     string
	Timeout time.Duration
}

// Result carries whatever a received HTTP response tells us. Probe never
// populates both Result and a non-nil error. RequestID correlates this call
// across logs and the X-Request-Id header sent upstream.
type Result struct {
	StatusCode int
	Elapsed    time.Duration
	RequestID  string
}

// ProbeError wraps a transport or timeout failure. The executor treats both
// categories identically, but the underlying error is kept for the check's
// error_message.
type ProbeError struct {
	Elapsed time.Duration
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe failed after %s: %v", e.Elapsed, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober issues one HTTP request and classifies the outcome.
type Prober interface {
	Probe(ctx context.Context, req Request) (Result, error)
}

// HTTPProber wraps an *http.Client. Timeout is applied per-call via
// context.WithTimeout rather than a shared client-level timeout, since each
// monitor may carry a different timeout_seconds.
type HTTPProber struct {
	Client    *http.Client
	UserAgent string
}

// maxRedirects caps the follow chain so a redirect loop cannot hold a
// worker slot until the deadline.
const maxRedirects = 10

func NewHTTPProber(userAgent string) *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		UserAgent: userAgent,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	requestID := uuid.New().String()

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return Result{}, &ProbeError{Elapsed: time.Since(start), Err: err}
	}
	if p.UserAgent != "" {
		httpReq.Header.Set("User-Agent", p.UserAgent)
	}
	httpReq.Header.Set("X-Request-Id", requestID)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return Result{}, &ProbeError{Elapsed: time.Since(start), Err: classify(err)}
	}
	defer resp.Body.Close()

	return Result{
		StatusCode: resp.StatusCode,
		Elapsed:    time.Since(start),
		RequestID:  requestID,
	}, nil
}

func classify(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	return err
}

package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "monitron-test" {
			t.Errorf("expected User-Agent monitron-test, got %q", ua)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber("monitron-test")
	result, err := p.Probe(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}
	if result.RequestID == "" {
		t.Fatal("expected a non-empty RequestID")
	}
}

func TestProbeNonSuccessStatusStillReturnsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProber("monitron-test")
	result, err := p.Probe(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("a received response must not produce a ProbeError: %v", err)
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", result.StatusCode)
	}
}

func TestProbeTimeoutReturnsProbeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber("monitron-test")
	_, err := p.Probe(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected a timeout error")
	}

	var probeErr *ProbeError
	if !isProbeError(err, &probeErr) {
		t.Fatalf("expected *ProbeError, got %T: %v", err, err)
	}
}

func isProbeError(err error, target **ProbeError) bool {
	pe, ok := err.(*ProbeError)
	if !ok {
		return false
	}
	*target = pe
	return true
}

func TestProbeConnectionRefused(t *testing.T) {
	p := NewHTTPProber("monitron-test")
	_, err := p.Probe(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     "http://127.0.0.1:1", // nothing listens on port 1
		Timeout: 2 * time.Second,
	})
	if err == nil {
		t.Fatal("expected connection error")
	}
}

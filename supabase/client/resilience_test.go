package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/R3E-Network/renkonet/internal/logging"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           5 * time.Millisecond,
		BackoffMultiplier:    2.0,
		RetryableStatusCodes: []int{http.StatusServiceUnavailable},
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 100*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 100ms", cfg.InitialBackoff)
	}
	if len(cfg.RetryableStatusCodes) == 0 {
		t.Error("RetryableStatusCodes should not be empty")
	}
}

func TestCircuitBreaker_OpenThenHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	cb.RecordFailure(errors.New("a"))
	if cb.State() != CircuitClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}
	cb.RecordFailure(errors.New("b"))
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after timeout = %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
	if cb.LastError() == nil || cb.LastError().Error() != "b" {
		t.Errorf("LastError() = %v, want b", cb.LastError())
	}
}

func TestCircuitState_String(t *testing.T) {
	if CircuitHalfOpen.String() != "half-open" {
		t.Errorf("String() = %s", CircuitHalfOpen.String())
	}
	if CircuitState(99).String() != "unknown" {
		t.Errorf("String() = %s", CircuitState(99).String())
	}
}

func TestResilientTransport_RetriesGet(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, fastRetry(), DefaultCircuitBreakerConfig())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if rt.Metrics()["retried_requests"] != 2 {
		t.Errorf("retried_requests = %d, want 2", rt.Metrics()["retried_requests"])
	}
}

func TestResilientTransport_NeverRetriesPost(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, fastRetry(), DefaultCircuitBreakerConfig())
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"content":"hi"}`))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestResilientTransport_CircuitOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, RetryConfig{
		RetryableStatusCodes: []int{http.StatusServiceUnavailable},
	}, CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		if resp, err := rt.RoundTrip(req); err == nil {
			resp.Body.Close()
		}
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("RoundTrip() error = %v, want ErrCircuitOpen", err)
	}
	if rt.CircuitState() != CircuitOpen {
		t.Errorf("CircuitState() = %v, want open", rt.CircuitState())
	}
}

func TestResilientTransport_PropagatesTraceID(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-Id")
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, fastRetry(), DefaultCircuitBreakerConfig())
	ctx := logging.WithTraceID(context.Background(), "trace-42")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if seen != "trace-42" {
		t.Errorf("X-Request-Id = %q, want trace-42", seen)
	}
}

func TestResilientTransport_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	rt := NewResilientTransport(nil, fastRetry(), DefaultCircuitBreakerConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Error("RoundTrip() should error on context cancellation")
	}
}

func TestNewResilient(t *testing.T) {
	c, rt, err := NewResilient(ResilienceConfig{
		Config:               Config{URL: "https://demo.supabase.co", AnonKey: "anon"},
		RetryConfig:          DefaultRetryConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})
	if err != nil {
		t.Fatalf("NewResilient() error: %v", err)
	}
	if c.httpClient.Transport != rt {
		t.Error("client transport is not the resilient transport")
	}
	if c.httpClient.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", c.httpClient.Timeout)
	}
}

package circuitbreaker

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestHTTPWrapper_SuccessPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wrapper := NewHTTPWrapper(nil, "upstream", "test-service", zaptest.NewLogger(t), nil)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := wrapper.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("breaker should remain closed after a success")
	}
}

func TestHTTPWrapper_ServerErrorTripsBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	wrapper := NewHTTPWrapper(nil, "upstream", "test-service", zaptest.NewLogger(t), nil)
	wrapper.cb.config.FailureThreshold = 1

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := wrapper.Do(req)
	if err != nil {
		t.Fatalf("expected the 5xx response to pass through without a wrapper error, got %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}

	if !wrapper.IsCircuitBreakerOpen() {
		t.Error("expected breaker to be open after a 5xx response with FailureThreshold=1")
	}
}

func TestHTTPWrapper_ClientErrorDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	wrapper := NewHTTPWrapper(nil, "upstream", "test-service", zaptest.NewLogger(t), nil)
	wrapper.cb.config.FailureThreshold = 1

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := wrapper.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("4xx responses should not trip the breaker")
	}
}

func TestHTTPWrapper_DoWithRetryRecoversFromTransientFailure(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wrapper := NewHTTPWrapper(nil, "upstream", "test-service", zaptest.NewLogger(t), nil)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := wrapper.DoWithRetry(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected the retried request to eventually succeed with 200, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected the server to be hit twice, got %d", hits)
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("a failure recovered within DoWithRetry should not count against the breaker")
	}
}

func TestHTTPWrapper_DoWithRetryStillTripsBreakerOnPersistentFailure(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	wrapper := NewHTTPWrapper(nil, "upstream", "test-service", zaptest.NewLogger(t), nil)
	wrapper.cb.config.FailureThreshold = 1

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := wrapper.DoWithRetry(req)
	if err != nil {
		t.Fatalf("expected the 5xx response to pass through without a wrapper error, got %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&hits) < 2 {
		t.Errorf("expected the retry handler to have attempted more than once, got %d hits", hits)
	}
	if !wrapper.IsCircuitBreakerOpen() {
		t.Error("a single DoWithRetry call exhausting its retries should still count as one breaker failure at FailureThreshold=1")
	}
}

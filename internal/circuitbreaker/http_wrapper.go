package circuitbreaker

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shannon-labs/resilientd/internal/retry"
)

// HTTPWrapper wraps an http.Client with a circuit breaker. metrics may be nil;
// when set, the breaker is registered with it so its state changes are
// exported. Individual requests are not recorded.
type HTTPWrapper struct {
	client  *http.Client
	cb      *CircuitBreaker
	name    string
	service string
	logger  *zap.Logger
	retry   *retry.Handler
}

// NewHTTPWrapper creates a new HTTP wrapper with circuit breaker and metrics.
func NewHTTPWrapper(client *http.Client, name, service string, logger *zap.Logger, metrics *MetricsCollector) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker(name, GetHTTPConfig().ToConfig(), logger)
	if metrics != nil {
		metrics.RegisterCircuitBreaker(name, service, cb)
	}
	retryPolicy := retry.DefaultPolicy()
	retryPolicy.MaxAttempts = 2
	retryPolicy.BaseDelay = 50 * time.Millisecond
	return &HTTPWrapper{
		client:  client,
		cb:      cb,
		name:    name,
		service: service,
		logger:  logger,
		retry:   retry.NewHandler(service, retryPolicy, nil, logger),
	}
}

// Do executes an HTTP request through the circuit breaker. 5xx responses are treated as failures
// for breaker purposes; 4xx do not trip the breaker.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var err2 error
		resp, err2 = hw.client.Do(req)
		if err2 != nil {
			return err2
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// DoWithRetry behaves like Do but retries a classified-retryable failure
// (per internal/retry) before the breaker sees a final outcome, so a
// transient 5xx or network error doesn't by itself cost the service a
// breaker failure. The retry loop runs inside the single Execute call: the
// breaker still only ever counts one success or one failure per DoWithRetry,
// it just sees the outcome after retries are exhausted. Requests with a body
// are only retried when req.GetBody is set, so the body can be replayed;
// otherwise the request runs once, same as Do.
func (hw *HTTPWrapper) DoWithRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	attempt := func(ctx context.Context) error {
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return err
			}
			req.Body = body
		}
		var err2 error
		resp, err2 = hw.client.Do(req.WithContext(ctx))
		if err2 != nil {
			return err2
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	}

	err := hw.cb.Execute(req.Context(), func() error {
		if req.Body != nil && req.GetBody == nil {
			return attempt(req.Context())
		}
		return hw.retry.Execute(req.Context(), attempt)
	})

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// IsCircuitBreakerOpen reports whether the guarding breaker is open.
func (hw *HTTPWrapper) IsCircuitBreakerOpen() bool {
	return hw.cb.State() == StateOpen
}

// Breaker exposes the underlying breaker for health/metrics composition.
func (hw *HTTPWrapper) Breaker() *CircuitBreaker {
	return hw.cb
}

// httpStatusError marks 5xx responses for breaker accounting
type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string  { return http.StatusText(e.code) }
func (e *httpStatusError) StatusCode() int { return e.code }

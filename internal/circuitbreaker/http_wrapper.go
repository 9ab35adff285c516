package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper sends requests through a breaker and records breaker metrics.
type HTTPWrapper struct {
	client  *http.Client
	cb      *CircuitBreaker
	name    string
	service string
}

// NewHTTPWrapper wraps client. A nil client gets a 30s timeout.
func NewHTTPWrapper(client *http.Client, name, service string, settings Settings, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cb := NewCircuitBreaker(name, settings.ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, service, cb)
	return &HTTPWrapper{client: client, cb: cb, name: name, service: service}
}

// Do executes req. 5xx responses count as breaker failures but are still
// returned to the caller with a nil error; 4xx responses do not trip the
// breaker.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var doErr error
		resp, doErr = hw.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	GlobalMetricsCollector.RecordRequest(hw.name, hw.service, hw.cb.State(), err == nil)

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// Breaker exposes the underlying breaker for health checks.
func (hw *HTTPWrapper) Breaker() *CircuitBreaker { return hw.cb }

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }

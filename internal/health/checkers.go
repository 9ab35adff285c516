package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/circuitbreaker"
)

// ProviderClient is the research provider as seen by its checker.
type ProviderClient interface {
	Ping(ctx context.Context) error
	Breaker() *circuitbreaker.CircuitBreaker
	BaseURL() string
}

// ProviderHealthChecker checks that the research provider is reachable.
type ProviderHealthChecker struct {
	client  ProviderClient
	logger  *zap.Logger
	timeout time.Duration
}

// NewProviderHealthChecker creates a provider health checker
func NewProviderHealthChecker(client ProviderClient, logger *zap.Logger) *ProviderHealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderHealthChecker{client: client, logger: logger, timeout: 10 * time.Second}
}

func (p *ProviderHealthChecker) Name() string           { return "provider" }
func (p *ProviderHealthChecker) IsCritical() bool       { return true }
func (p *ProviderHealthChecker) Timeout() time.Duration { return p.timeout }

func (p *ProviderHealthChecker) Check(ctx context.Context) CheckResult {
	startTime := time.Now()
	result := CheckResult{
		Component: "provider",
		Critical:  true,
		Timestamp: startTime,
		Details:   map[string]interface{}{"base_url": p.client.BaseURL()},
	}

	if cb := p.client.Breaker(); cb != nil && cb.IsOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Provider circuit breaker is open"
		return result
	}

	err := p.client.Ping(ctx)
	latency := time.Since(startTime)
	result.Details["latency_ms"] = latency.Milliseconds()
	if err != nil {
		p.logger.Debug("Provider ping failed", zap.Error(err))
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Provider ping failed"
		return result
	}

	if latency > 2*time.Second {
		result.Status = StatusDegraded
		result.Message = "Provider responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Provider healthy"
	}
	return result
}

// SessionStore is the clarification session table as seen by its checker.
type SessionStore interface {
	Len() int
	MaxSessions() int
}

// SessionStoreHealthChecker reports session table occupancy. A nearly full
// table evicts live sessions, so it is reported as degraded.
type SessionStoreHealthChecker struct {
	store SessionStore
}

func NewSessionStoreHealthChecker(store SessionStore) *SessionStoreHealthChecker {
	return &SessionStoreHealthChecker{store: store}
}

func (s *SessionStoreHealthChecker) Name() string           { return "sessions" }
func (s *SessionStoreHealthChecker) IsCritical() bool       { return false }
func (s *SessionStoreHealthChecker) Timeout() time.Duration { return time.Second }

func (s *SessionStoreHealthChecker) Check(context.Context) CheckResult {
	size, capacity := s.store.Len(), s.store.MaxSessions()
	result := CheckResult{
		Status:  StatusHealthy,
		Message: "Session store healthy",
		Details: map[string]interface{}{"size": size, "capacity": capacity},
	}
	if capacity > 0 && size*10 >= capacity*9 {
		result.Status = StatusDegraded
		result.Message = "Session store near capacity"
	}
	return result
}

// PromptSource lists the loadable prompt templates.
type PromptSource interface {
	List() map[string][]string
	Dir() string
}

// PromptHealthChecker verifies that prompt templates are available.
type PromptHealthChecker struct {
	prompts PromptSource
}

func NewPromptHealthChecker(prompts PromptSource) *PromptHealthChecker {
	return &PromptHealthChecker{prompts: prompts}
}

func (p *PromptHealthChecker) Name() string           { return "prompts" }
func (p *PromptHealthChecker) IsCritical() bool       { return false }
func (p *PromptHealthChecker) Timeout() time.Duration { return time.Second }

func (p *PromptHealthChecker) Check(context.Context) CheckResult {
	listed := p.prompts.List()
	count := 0
	for _, names := range listed {
		count += len(names)
	}
	result := CheckResult{
		Status:  StatusHealthy,
		Message: "Prompt templates available",
		Details: map[string]interface{}{"templates": count, "dir": p.prompts.Dir()},
	}
	if count == 0 {
		result.Status = StatusUnhealthy
		result.Message = "No prompt templates found"
	}
	return result
}

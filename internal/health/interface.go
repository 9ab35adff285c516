package health

import (
	"context"
	"time"
)

// CheckStatus represents the result of a health check
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusDegraded
	StatusUnhealthy
	StatusUnknown
)

func (s CheckStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON.
func (s CheckStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CheckResult contains the result of a health check
type CheckResult struct {
	Status    CheckStatus            `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	Critical  bool                   `json:"critical"` // Whether failure affects service availability
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	// IsCritical returns true if this check's failure should mark the service as unhealthy
	IsCritical() bool
	Timeout() time.Duration
}

// OverallHealth represents the overall service health
type OverallHealth struct {
	Status    CheckStatus   `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Degraded  bool          `json:"degraded"`
	Ready     bool          `json:"ready"`
	Live      bool          `json:"live"`
}

// DetailedHealth provides detailed health information
type DetailedHealth struct {
	Overall    OverallHealth          `json:"overall"`
	Components map[string]CheckResult `json:"components"`
	Summary    HealthSummary          `json:"summary"`
	Timestamp  time.Time              `json:"timestamp"`
}

// HealthSummary provides summary statistics
type HealthSummary struct {
	Total       int `json:"total"`
	Healthy     int `json:"healthy"`
	Degraded    int `json:"degraded"`
	Unhealthy   int `json:"unhealthy"`
	Critical    int `json:"critical"`
	NonCritical int `json:"non_critical"`
}

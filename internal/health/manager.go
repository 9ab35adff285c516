package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers on demand and in the background.
type Manager struct {
	checkers      map[string]Checker
	lastResults   map[string]CheckResult
	checkInterval time.Duration
	started       bool
	stopCh        chan struct{}
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewManager creates a new health manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		checkers:      make(map[string]Checker),
		lastResults:   make(map[string]CheckResult),
		checkInterval: 30 * time.Second,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}

	m.checkers[name] = checker
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", checker.IsCritical()),
		zap.Duration("timeout", checker.Timeout()),
	)
	return nil
}

// UnregisterChecker removes a health check
func (m *Manager) UnregisterChecker(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.checkers[name]; !exists {
		return fmt.Errorf("checker %s not found", name)
	}
	delete(m.checkers, name)
	delete(m.lastResults, name)
	return nil
}

// GetOverallHealth returns the overall health status
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	start := time.Now()
	overall := m.GetDetailedHealth(ctx).Overall
	overall.Duration = time.Since(start)
	return overall
}

// GetDetailedHealth runs every checker concurrently and aggregates.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = runCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()

	components := make(map[string]CheckResult, len(results))
	for _, r := range results {
		components[r.Component] = r
	}

	m.mu.Lock()
	for name, r := range components {
		m.lastResults[name] = r
	}
	m.mu.Unlock()

	now := time.Now()
	summary := summarize(components)
	overall := calculateOverallStatus(components, summary)
	overall.Timestamp = now
	return DetailedHealth{
		Overall:    overall,
		Components: components,
		Summary:    summary,
		Timestamp:  now,
	}
}

// runCheck executes a single health check with its timeout
func runCheck(ctx context.Context, checker Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, checker.Timeout())
	defer cancel()

	startTime := time.Now()
	result := checker.Check(checkCtx)

	result.Component = checker.Name()
	result.Critical = checker.IsCritical()
	result.Duration = time.Since(startTime)
	result.Timestamp = startTime
	return result
}

func summarize(components map[string]CheckResult) HealthSummary {
	summary := HealthSummary{Total: len(components)}
	for _, r := range components {
		switch r.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
		if r.Critical {
			summary.Critical++
		} else {
			summary.NonCritical++
		}
	}
	return summary
}

// calculateOverallStatus determines overall health from component results
func calculateOverallStatus(components map[string]CheckResult, summary HealthSummary) OverallHealth {
	if summary.Total == 0 {
		return OverallHealth{
			Status:  StatusUnknown,
			Message: "No health checks registered",
			Live:    true,
		}
	}

	criticalFailures := 0
	nonCriticalFailures := 0
	degradedComponents := 0
	for _, result := range components {
		if result.Status == StatusDegraded {
			degradedComponents++
		}
		if result.Status == StatusUnhealthy {
			if result.Critical {
				criticalFailures++
			} else {
				nonCriticalFailures++
			}
		}
	}

	switch {
	case criticalFailures > 0:
		// Still alive but not ready
		return OverallHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d critical component(s) failing", criticalFailures),
			Live:    true,
		}
	case degradedComponents > 0:
		return OverallHealth{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("%d component(s) degraded", degradedComponents),
			Degraded: true,
			Ready:    true,
			Live:     true,
		}
	case nonCriticalFailures > 0:
		return OverallHealth{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("%d non-critical component(s) failing", nonCriticalFailures),
			Degraded: true,
			Ready:    true,
			Live:     true,
		}
	default:
		return OverallHealth{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("All %d components healthy", summary.Total),
			Ready:   true,
			Live:    true,
		}
	}
}

// IsReady returns true if the service is ready to serve requests
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive reports whether the process can serve at all. It runs no checks.
func (m *Manager) IsLive(context.Context) bool { return true }

// Start begins background health checking
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	m.started = true
	go m.backgroundChecker(ctx)

	m.logger.Info("Health manager started",
		zap.Duration("check_interval", m.checkInterval),
		zap.Int("registered_checkers", len(m.checkers)),
	)
	return nil
}

// Stop stops background health checking
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	close(m.stopCh)
	m.started = false
	m.logger.Info("Health manager stopped")
	return nil
}

func (m *Manager) backgroundChecker(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			detailed := m.GetDetailedHealth(checkCtx)
			cancel()
			if detailed.Overall.Status != StatusHealthy {
				m.logger.Warn("Background health check not healthy",
					zap.String("status", detailed.Overall.Status.String()),
					zap.String("message", detailed.Overall.Message),
				)
			}
		}
	}
}

// SetCheckInterval updates the background check interval. It applies on
// the next Start.
func (m *Manager) SetCheckInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkInterval = interval
}

// GetLastResults returns the most recent health check results without running new checks
func (m *Manager) GetLastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]CheckResult, len(m.lastResults))
	for name, result := range m.lastResults {
		results[name] = result
	}
	return results
}

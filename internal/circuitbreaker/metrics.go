package circuitbreaker

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deep_research_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	breakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "service", "state", "result"},
	)

	breakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_circuit_breaker_state_changes_total",
			Help: "Total number of state changes in circuit breaker",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)
)

// MetricsCollector tracks registered breakers for metric export.
type MetricsCollector struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewMetricsCollector returns an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{breakers: make(map[string]*CircuitBreaker)}
}

// RegisterCircuitBreaker hooks state changes of cb into the metrics.
func (mc *MetricsCollector) RegisterCircuitBreaker(name, service string, cb *CircuitBreaker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.breakers[service+":"+name] = cb

	cb.mu.Lock()
	previous := cb.config.OnStateChange
	cb.config.OnStateChange = func(cbName string, from, to State) {
		if previous != nil {
			previous(cbName, from, to)
		}
		breakerStateChanges.WithLabelValues(name, service, from.String(), to.String()).Inc()
		breakerState.WithLabelValues(name, service).Set(float64(to))
	}
	cb.mu.Unlock()
	breakerState.WithLabelValues(name, service).Set(float64(StateClosed))
}

// RecordRequest counts one request through a breaker.
func (mc *MetricsCollector) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	breakerRequests.WithLabelValues(name, service, state.String(), result).Inc()
}

// UpdateMetrics refreshes the state gauge of every registered breaker. Open
// breakers only move to half-open when observed, so this also advances them.
func (mc *MetricsCollector) UpdateMetrics() {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	for key, cb := range mc.breakers {
		service, name, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		breakerState.WithLabelValues(name, service).Set(float64(cb.State()))
	}
}

// GlobalMetricsCollector is shared by every wrapper in the process.
var GlobalMetricsCollector = NewMetricsCollector()

// StartMetricsCollection refreshes breaker gauges every 10s until stop is
// closed.
func StartMetricsCollection(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				GlobalMetricsCollector.UpdateMetrics()
			case <-stop:
				return
			}
		}
	}()
}

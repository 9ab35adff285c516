package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker position. Values are exported as metric gauge values.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests in half-open state")
)

// Config holds breaker thresholds.
type Config struct {
	MaxRequests      uint32        // trial requests allowed while half-open
	Interval         time.Duration // closed-state counter reset period, 0 disables
	Timeout          time.Duration // open duration before probing
	FailureThreshold uint32        // consecutive failures that open the breaker
	SuccessThreshold uint32        // consecutive half-open successes that close it
	OnStateChange    func(name string, from State, to State)
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// Counts holds per-generation statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreaker guards calls to a remote dependency. Every state change
// starts a new generation; results from an older generation are ignored.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger

	mu         sync.RWMutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(name string, config Config, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
	}
	cb.resetGeneration(time.Now())
	return cb
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker rejects the call. A cancelled context is
// returned as-is and does not count as a dependency failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	generation, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.record(generation, false)
			panic(r)
		}
	}()

	err = fn()
	cb.record(generation, err == nil || errors.Is(err, context.Canceled))
	return err
}

// State returns the current state, advancing open breakers whose timeout
// has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	state, _ := cb.advance(time.Now())
	return state
}

// IsOpen reports whether calls are currently being rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// Counts returns a snapshot of the current generation counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.counts
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, generation := cb.advance(time.Now())
	switch {
	case state == StateOpen:
		return generation, ErrCircuitBreakerOpen
	case state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests:
		return generation, ErrTooManyRequests
	}
	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) record(generation uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, current := cb.advance(now)
	if current != generation {
		return
	}

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transition(StateClosed, now)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		cb.transition(StateOpen, now)
	}
}

// advance applies time-based transitions. Callers hold cb.mu.
func (cb *CircuitBreaker) advance(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.resetGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.transition(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.resetGeneration(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (cb *CircuitBreaker) resetGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		if cb.config.Interval == 0 {
			cb.expiry = time.Time{}
		} else {
			cb.expiry = now.Add(cb.config.Interval)
		}
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	default:
		cb.expiry = time.Time{}
	}
}

package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the state of a circuit breaker
type State int

const (
	// StateClosed represents normal operation, requests are allowed
	StateClosed State = iota
	// StateOpen represents circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen represents testing if the upstream is healthy again
	StateHalfOpen
)

// String returns the string representation of the circuit breaker state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config defines the configuration for a circuit breaker.
// Configuration is fixed at construction and not re-read dynamically.
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit
	FailureThreshold int
	// RecoveryTimeout is the time to keep the circuit open before admitting a probe
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes required to close
	// the circuit from half-open state
	SuccessThreshold int
}

// DefaultConfig returns the default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// Snapshot is a point-in-time copy of a circuit breaker's state, used by the
// admin endpoint and by breaker state metrics.
type Snapshot struct {
	Name         string     `json:"name"`
	State        string     `json:"state"`
	FailureCount int        `json:"failure_count"`
	SuccessCount int        `json:"success_count"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

// CircuitBreaker guards calls to a single named upstream endpoint.
//
// The state machine is CLOSED -> OPEN on FailureThreshold consecutive
// failures, OPEN -> HALF_OPEN lazily on the next call attempt once
// RecoveryTimeout has elapsed (no timer), HALF_OPEN -> CLOSED after
// SuccessThreshold consecutive successes, and HALF_OPEN -> OPEN on any
// single failure. A success while CLOSED resets the failure count.
//
// The read-check-transition sequence runs as one critical section, so two
// callers racing on a half-open probe cannot both reset the counters.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	// lastFailure is nil until the first recorded failure
	lastFailure *time.Time

	logger *zap.Logger
	// now is replaced in tests to step through the recovery window
	now func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker for the named endpoint
func NewCircuitBreaker(name string, cfg Config, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the breaker's registry name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow decides whether a call may proceed. It returns nil if the call is
// admitted, or a *CircuitOpenError if the circuit is open and the recovery
// timeout has not elapsed. When the timeout has elapsed it transitions the
// breaker to half-open and admits the call as a probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		elapsed := cb.now().Sub(*cb.lastFailure)
		if elapsed >= cb.cfg.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			return nil
		}
		return &CircuitOpenError{
			Name:       cb.name,
			RetryAfter: cb.cfg.RecoveryTimeout - elapsed,
		}
	default:
		return nil
	}
}

// RecordSuccess records a successful call and applies the success
// transition rules.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		// Self-healing: any success while closed forgives earlier isolated failures
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

// RecordFailure records a failed call and applies the failure transition rules
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.lastFailure = &now

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// No tolerance while probing
		cb.transition(StateOpen)
	}
}

// Execute runs fn under circuit breaker protection. If the circuit is open
// and not eligible for a probe, fn is never invoked and a *CircuitOpenError
// is returned immediately. Otherwise the outcome of fn is recorded and its
// error, if any, is returned unmodified.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.Allow(); err != nil {
		cb.logger.Debug("circuit breaker rejected call",
			zap.String("name", cb.name))
		return nil, err
	}

	result, err := fn(ctx)
	if err != nil {
		cb.RecordFailure()
		return nil, err
	}

	cb.RecordSuccess()
	return result, nil
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a point-in-time copy of the breaker's state and counters
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := Snapshot{
		Name:         cb.name,
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
	}
	if cb.lastFailure != nil {
		t := *cb.lastFailure
		snap.LastFailure = &t
	}
	return snap
}

// Reset forces the breaker to closed with all counters zeroed. This is an
// administrative escape hatch, not part of the normal call flow.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateClosed)
	cb.lastFailure = nil
}

// transition moves to a new state and zeroes the counters.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) transition(newState State) {
	if cb.state == newState {
		cb.failureCount = 0
		cb.successCount = 0
		return
	}

	old := cb.state
	cb.state = newState
	cb.failureCount = 0
	cb.successCount = 0

	cb.logger.Info("circuit breaker state transition",
		zap.String("name", cb.name),
		zap.String("from", old.String()),
		zap.String("to", newState.String()))
}

// Package resilience provides resilience patterns for outbound calls to
// unreliable third-party services.
//
// This package implements the patterns used by the NFL data fetchers:
//
// - Circuit Breaker pattern: Stops calling an upstream that is known to be failing
// - Retry pattern: Automatically retries failed operations with exponential backoff
// - Bulkhead pattern: Caps the number of concurrent outbound calls per upstream
//
// Circuit breakers are owned by a Registry that is constructed by the
// composing application and injected wherever breaker lookup is needed, so
// tests can build a fresh registry instead of resetting shared state.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Common errors used throughout the resilience package
var (
	// ErrCircuitOpen is returned when a request is rejected because the circuit breaker is open.
	// Match with errors.Is; the concrete error is a *CircuitOpenError carrying the breaker name.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBulkheadFull is returned when a request is rejected because the bulkhead is full
	ErrBulkheadFull = errors.New("bulkhead is full")
)

// CircuitOpenError is the rejection produced by an open circuit breaker.
// It is surfaced immediately, never retried, and never wrapped around the
// upstream's own errors, so operators can distinguish "dependency is
// known-bad" from "dependency is merely slow".
type CircuitOpenError struct {
	// Name is the breaker name (one per upstream endpoint)
	Name string
	// RetryAfter is the remaining time until the breaker is eligible for a probe
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open (retry after %s)", e.Name, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// Is reports whether target matches the ErrCircuitOpen sentinel
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

package resilience

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry owns the circuit breakers of the process, keyed by endpoint name.
// It is constructed once by the composing application and injected into any
// component that needs breaker lookup.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults Config
	logger   *zap.Logger
}

// NewRegistry creates a registry that hands out breakers with the given
// default configuration
func NewRegistry(defaults Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
		logger:   logger,
	}
}

// Get returns the circuit breaker for the named endpoint, creating it with
// the registry defaults on first reference. Creation is lock-guarded, so
// concurrent callers always observe the same instance.
func (r *Registry) Get(name string) *CircuitBreaker {
	return r.GetWithConfig(name, r.defaults)
}

// GetWithConfig returns the circuit breaker for the named endpoint, creating
// it with cfg on first reference. An existing breaker keeps the configuration
// it was created with.
func (r *Registry) GetWithConfig(name string, cfg Config) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, cfg, r.logger)
	r.breakers[name] = cb

	r.logger.Info("created circuit breaker",
		zap.String("name", name),
		zap.Int("failure_threshold", cfg.FailureThreshold),
		zap.Duration("recovery_timeout", cfg.RecoveryTimeout))

	return cb
}

// Lookup returns the breaker for name, or nil if none has been created
func (r *Registry) Lookup(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[name]
}

// Snapshots returns point-in-time copies of every breaker, sorted by name
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	snaps := make([]Snapshot, 0, len(breakers))
	for _, cb := range breakers {
		snaps = append(snaps, cb.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// Reset resets the named breaker to closed. It returns false if no breaker
// with that name exists.
func (r *Registry) Reset(name string) bool {
	cb := r.Lookup(name)
	if cb == nil {
		return false
	}
	cb.Reset()
	return true
}

// ResetAll resets every breaker in the registry to closed
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}

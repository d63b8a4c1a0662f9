package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// BulkheadConfig defines the configuration for a bulkhead
type BulkheadConfig struct {
	// MaxConcurrentCalls is the maximum number of concurrent calls
	MaxConcurrentCalls int64
	// AcquireTimeout is how long a caller may wait for a permit
	AcquireTimeout time.Duration
}

// DefaultBulkheadConfig returns the default bulkhead configuration
func DefaultBulkheadConfig() BulkheadConfig {
	return BulkheadConfig{
		MaxConcurrentCalls: 10,
		AcquireTimeout:     time.Second,
	}
}

// Bulkhead limits the number of concurrent outbound calls so a slow upstream
// cannot exhaust the process
type Bulkhead struct {
	name string
	cfg  BulkheadConfig
	sem  *semaphore.Weighted

	mu       sync.Mutex
	active   int64
	rejected uint64

	logger *zap.Logger
}

// NewBulkhead creates a new bulkhead
func NewBulkhead(name string, cfg BulkheadConfig, logger *zap.Logger) *Bulkhead {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bulkhead{
		name:   name,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentCalls),
		logger: logger,
	}
}

// Acquire obtains a permit, waiting up to the configured acquire timeout.
// It returns false if the bulkhead stayed full or the context was canceled.
func (b *Bulkhead) Acquire(ctx context.Context) bool {
	acquireCtx, cancel := context.WithTimeout(ctx, b.cfg.AcquireTimeout)
	defer cancel()

	if err := b.sem.Acquire(acquireCtx, 1); err != nil {
		b.mu.Lock()
		b.rejected++
		b.mu.Unlock()

		b.logger.Warn("bulkhead rejected call",
			zap.String("name", b.name),
			zap.Error(err))
		return false
	}

	b.mu.Lock()
	b.active++
	b.mu.Unlock()
	return true
}

// Release returns a permit after the call completes
func (b *Bulkhead) Release() {
	b.mu.Lock()
	if b.active > 0 {
		b.active--
	}
	b.mu.Unlock()

	b.sem.Release(1)
}

// Active returns the current number of in-flight calls
func (b *Bulkhead) Active() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Rejected returns the total number of rejected calls
func (b *Bulkhead) Rejected() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// Execute runs fn under bulkhead protection, returning ErrBulkheadFull if no
// permit could be acquired
func (b *Bulkhead) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if !b.Acquire(ctx) {
		return nil, ErrBulkheadFull
	}
	defer b.Release()

	return fn(ctx)
}

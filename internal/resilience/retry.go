package resilience

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig defines the configuration for exponential backoff retries
type RetryConfig struct {
	// MaxAttempts is the number of retries, so total tries = MaxAttempts+1
	MaxAttempts int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the backoff delay
	MaxDelay time.Duration
	// BackoffBase is the multiplier applied per attempt
	BackoffBase float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		BackoffBase:  2.0,
	}
}

// Retrier executes functions with exponential backoff, optionally guarded by
// a circuit breaker. Backoff waits suspend on a timer and honor context
// cancellation; they never block other concurrent callers.
type Retrier struct {
	cfg    RetryConfig
	logger *zap.Logger
	// sleep is replaced in tests to capture delays without waiting
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a new retrier
func NewRetrier(cfg RetryConfig, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Do executes fn with retries and no circuit breaker
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	return r.DoWithBreaker(ctx, nil, fn)
}

// DoWithBreaker executes fn with retries, consulting cb before every attempt
// and reporting each outcome to it. The behavior is:
//
//   - If cb is open and not eligible for a probe, abort immediately with the
//     circuit's open error. No attempt is made and no delay is spent.
//   - On success, return immediately; a success on attempt k>0 is logged as
//     recovered after retries.
//   - If fn itself surfaces a circuit-open error, propagate it without
//     retrying; retrying against an open circuit is pointless.
//   - On any other failure, report it to cb; if attempts remain, wait
//     min(InitialDelay*BackoffBase^attempt, MaxDelay) and try again. The
//     error surfaced to the caller is always the last one observed.
func (r *Retrier) DoWithBreaker(ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxAttempts; attempt++ {
		if cb != nil {
			if err := cb.Allow(); err != nil {
				r.logger.Debug("retry aborted, circuit open",
					zap.String("breaker", cb.Name()),
					zap.Int("attempt", attempt))
				return nil, err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if cb != nil {
				cb.RecordSuccess()
			}
			if attempt > 0 {
				r.logger.Info("call recovered after retries",
					zap.Int("attempts", attempt+1))
			}
			return result, nil
		}

		if errors.Is(err, ErrCircuitOpen) {
			return nil, err
		}

		if cb != nil {
			cb.RecordFailure()
		}
		lastErr = err

		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.backoffDelay(attempt)
		r.logger.Debug("attempt failed, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxAttempts+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	r.logger.Warn("all retry attempts exhausted",
		zap.Int("attempts", r.cfg.MaxAttempts+1),
		zap.Error(lastErr))

	return nil, lastErr
}

// backoffDelay returns min(InitialDelay * BackoffBase^attempt, MaxDelay)
func (r *Retrier) backoffDelay(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.BackoffBase, float64(attempt))
	return time.Duration(math.Min(d, float64(r.cfg.MaxDelay)))
}

// sleepContext waits for d or until ctx is done, whichever comes first
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

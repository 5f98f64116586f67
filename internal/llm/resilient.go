package llm

import (
	"context"
	"errors"
	"time"

	"digestbot/pkg/logger"
	"digestbot/pkg/resilience"

	"go.uber.org/zap"
)

type ResilienceOptions struct {
	// Timeout bounds a single attempt; zero means no per-attempt bound.
	Timeout         time.Duration
	MaxAttempts     int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Resilient wraps a Generator with per-attempt timeouts, bounded retries
// and a circuit breaker shared by all callers.
type Resilient struct {
	next    Generator
	timeout time.Duration
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

func NewResilient(next Generator, opts ResilienceOptions) *Resilient {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxAttempts
	retry.InitialInterval = 500 * time.Millisecond
	retry.MaxInterval = 5 * time.Second
	retry.Retryable = retryable

	return &Resilient{
		next:    next,
		timeout: opts.Timeout,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(opts.BreakerFailures, opts.BreakerCooldown),
	}
}

func (r *Resilient) Generate(ctx context.Context, req Request) (string, error) {
	var text string

	err := r.breaker.Execute(func() error {
		return resilience.RetryWithExponentialBackoff(ctx, r.retry, func(ctx context.Context) error {
			attemptCtx := ctx
			if r.timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}

			out, err := r.next.Generate(attemptCtx, req)
			if err != nil {
				logger.Debug("Generation attempt failed", zap.Error(err))
				return err
			}
			text = out
			return nil
		})
	}, countsAgainstBackend)

	if errors.Is(err, resilience.ErrCircuitOpen) {
		logger.Warn("AI backend circuit open, skipping request",
			zap.Stringer("breaker_state", r.BreakerState()))
	}

	return text, err
}

// BreakerState reports the breaker state
func (r *Resilient) BreakerState() resilience.State {
	return r.breaker.GetState()
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrMediaUnsupported),
		errors.Is(err, resilience.ErrCircuitOpen):
		return false
	default:
		return true
	}
}

// countsAgainstBackend keeps caller-side failures from tripping the breaker
func countsAgainstBackend(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrMediaUnsupported)
}

package executor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// RetryOptions configures exponential backoff around an executor.
type RetryOptions struct {
	InitialInterval     time.Duration // first wait between attempts (default 100ms)
	MaxInterval         time.Duration // cap on the wait between attempts (default 10s)
	MaxElapsedTime      time.Duration // total retry budget (default 2min)
	Multiplier          float64       // wait growth factor (default 2.0)
	RandomizationFactor float64       // jitter factor (default 0.5)

	// Logger receives a warning per retried attempt.
	Logger logging.Logger
}

// Retry wraps an executor with exponential backoff. Context errors and an
// open circuit breaker end the attempts immediately.
type Retry struct {
	inner  core.Executor
	logger logging.Logger
	opts   RetryOptions
}

// NewRetry creates a new Retry around inner.
func NewRetry(inner core.Executor, optFns ...func(o *RetryOptions)) *Retry {
	opts := RetryOptions{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		Logger:              logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Retry{
		inner:  inner,
		logger: opts.Logger,
		opts:   opts,
	}
}

// Execute implements core.Executor.
func (r *Retry) Execute(ctx context.Context, task *core.Task) (any, error) {
	var result any

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		out, err := r.inner.Execute(ctx, task)
		if err != nil {
			// An open breaker will not close within our budget.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}

			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}

			return err
		}

		result = out

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.opts.InitialInterval
	policy.MaxInterval = r.opts.MaxInterval
	policy.MaxElapsedTime = r.opts.MaxElapsedTime
	policy.Multiplier = r.opts.Multiplier
	policy.RandomizationFactor = r.opts.RandomizationFactor

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Task execution failed, retrying", "task_id", task.ID, "wait", wait.String(), "error", err.Error())
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}

	return result, nil
}

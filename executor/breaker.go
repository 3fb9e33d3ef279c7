package executor

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// BreakerOptions configures circuit breaking around an executor.
type BreakerOptions struct {
	// Name identifies the breaker in logs.
	Name string

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Timeout is how long the breaker stays open before probing recovery.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold uint32

	// Logger receives a warning per state change.
	Logger logging.Logger
}

// Breaker sheds load from a repeatedly failing executor. While open it
// fails fast with gobreaker.ErrOpenState instead of invoking the inner
// executor. Context cancellations do not count as failures; a cancelled
// caller says nothing about executor health.
type Breaker struct {
	inner  core.Executor
	cb     *gobreaker.CircuitBreaker
	logger logging.Logger
}

// NewBreaker creates a new Breaker around inner.
func NewBreaker(inner core.Executor, optFns ...func(o *BreakerOptions)) *Breaker {
	opts := BreakerOptions{
		Name:             "executor",
		MaxRequests:      3,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		Logger:           logging.NewDefaultSlogLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	b := &Breaker{
		inner:  inner,
		logger: opts.Logger,
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: opts.MaxRequests,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}

			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return b
}

// Execute implements core.Executor.
func (b *Breaker) Execute(ctx context.Context, task *core.Task) (any, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.Execute(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Package retry re-runs idempotent remote calls with a fixed backoff schedule.
package retry

import (
	"context"
	"errors"
	"time"
)

// DefaultBackoff is the delay before the 2nd and 3rd attempts.
var DefaultBackoff = []time.Duration{500 * time.Millisecond, 2 * time.Second}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying (e.g. a 404 or 422 from GitHub).
// Do and DoVal return the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type options struct {
	maxAttempts int
	backoff     []time.Duration
}

// Option configures retry behavior.
type Option func(*options)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff sets the delays between attempts. When there are more attempts
// than delays, the last delay repeats.
func WithBackoff(delays ...time.Duration) Option {
	return func(o *options) {
		if len(delays) > 0 {
			o.backoff = delays
		}
	}
}

// Do runs fn until it succeeds, returns a permanent error, attempts run out,
// or ctx is cancelled. The last error is returned.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	_, err := DoVal(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	}, opts...)
	return err
}

// DoVal is Do for functions that also return a value.
func DoVal[T any](ctx context.Context, fn func() (T, error), opts ...Option) (T, error) {
	o := options{maxAttempts: 3, backoff: DefaultBackoff}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	var lastErr error
	for attempt := range o.maxAttempts {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		lastErr = err

		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}

		if attempt == o.maxAttempts-1 {
			break
		}
		delay := o.backoff[len(o.backoff)-1]
		if attempt < len(o.backoff) {
			delay = o.backoff[attempt]
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

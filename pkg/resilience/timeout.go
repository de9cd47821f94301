package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports an operation that overran its own limit while the
// caller's context was still live. It unwraps to context.DeadlineExceeded.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %v", e.Op, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// WithTimeout runs fn under a context that expires after timeout. When fn
// overruns, the result is a *TimeoutError and fn's eventual result is
// discarded; when the parent context ends first, its error is returned
// wrapped. A non-positive timeout calls fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(attemptCtx)
	}()
	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && attemptCtx.Err() != nil {
			return &TimeoutError{Op: op, Limit: timeout}
		}
		return err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return &TimeoutError{Op: op, Limit: timeout}
	}
}

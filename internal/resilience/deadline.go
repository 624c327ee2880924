package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrDeadlineExceeded is returned by RunWithTimeout when fn did not finish in time.
var ErrDeadlineExceeded = errors.New("operation deadline exceeded")

// RunWithTimeout runs fn with a context bounded by timeout and returns as soon as either
// fn returns or the deadline passes. fn keeps running in the background if it ignores ctx;
// its late result is discarded.
func RunWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ErrDeadlineExceeded
	}
}

// WaitClosed blocks until ch is closed or ctx is done, reporting whether ch closed.
func WaitClosed(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

package cli

import (
	"context"
	"time"

	"github.com/matzehuels/refcheck/pkg/errors"
)

// waitFor runs fn in its own goroutine and waits for it, for at most timeout
// when timeout is positive. On timeout fn is abandoned, not cancelled: it
// keeps running with ctx and its result is discarded.
func waitFor[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	var zero T
	select {
	case r := <-ch:
		return r.v, r.err
	case <-expired:
		return zero, errors.New(errors.ErrCodeTimeout, "gave up waiting after %s", timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

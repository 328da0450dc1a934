package apperror

import (
	"context"
	"time"
)

// RetryPolicy bounds store calls: each attempt gets Timeout (when set) and
// retryable failures are retried up to Attempts times.
type RetryPolicy struct {
	Attempts int
	BaseWait time.Duration
	Timeout  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseWait: 100 * time.Millisecond, Timeout: 5 * time.Second}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. The wait doubles after every retryable failure.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.BaseWait

	var err error
	for i := 0; i < attempts; i++ {
		err = attempt(ctx, p.Timeout, fn)
		if err == nil || !Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Wrap(KindConnectionError, ctx.Err(), "retry aborted")
		case <-t.C:
		}
		wait *= 2
	}
	return Classify(err)
}

func attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

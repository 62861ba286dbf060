// Package retry re-runs an operation while it fails with a retryable error.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// On runs fn until it succeeds, fails with an error for which retryable is false,
// or MaxAttempts is reached. The last error is returned unchanged.
func On[T any](ctx context.Context, cfg Config, retryable func(error) bool, notify func(attempt int, err error), fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		b.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		b.MaxInterval = cfg.MaxDelay
	} else {
		b.MaxInterval = 20 * b.InitialInterval
	}

	attempt := 0
	op := func() (T, error) {
		attempt++
		res, err := fn(ctx)
		if err != nil && !retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if notify != nil {
				notify(attempt, err)
			}
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return res, perm.Err
		}
	}
	return res, err
}

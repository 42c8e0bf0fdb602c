package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medicrawl/internal/types"
)

// RetryPolicy controls the bounded retry loop around fetch operations.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	Factor      float64       // multiplier applied per attempt
}

// retryable reports whether an error warrants another attempt. Fetch
// errors carry their own verdict; ErrNotFound and quota exhaustion are
// always definitive.
func retryable(err error) bool {
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrQuotaExhausted) {
		return false
	}
	var fe *types.FetchError
	if errors.As(err, &fe) {
		return fe.IsRetryable()
	}
	return false
}

// Retry runs fn until it succeeds, the error is definitive, or attempts
// run out. Between attempts it sleeps with exponential backoff, honoring
// a server-provided Retry-After when one is larger, and aborts early on
// context cancellation.
func Retry(ctx context.Context, logger *slog.Logger, policy RetryPolicy, op string, fn func() error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	delay := policy.BaseDelay
	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == policy.MaxAttempts {
			return err
		}

		wait := delay
		var fe *types.FetchError
		if errors.As(err, &fe) && fe.RetryAfter > wait {
			wait = fe.RetryAfter
		}

		logger.Warn("retrying after error",
			"op", op,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"wait", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * policy.Factor)
	}
	return err
}

package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Default retry policy: 3 extra attempts with 1s, 2s, 4s waits.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
)

// RetryPolicy wraps a fallible operation with exponential backoff.
// Only errors marked retryable by IsRetryable are retried; everything
// else propagates immediately. After exhaustion the last error is
// returned as-is.
type RetryPolicy struct {
	MaxRetries  uint64
	BackoffBase time.Duration
	Logger      *slog.Logger
}

// DefaultRetryPolicy returns the standard policy used by the client.
func DefaultRetryPolicy(logger *slog.Logger) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  DefaultMaxRetries,
		BackoffBase: DefaultBackoffBase,
		Logger:      logger,
	}
}

// Do executes op, sleeping BackoffBase, 2*BackoffBase, 4*BackoffBase...
// between attempts, up to MaxRetries additional tries.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	base := p.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	attempt := 0

	backoff := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if p.Logger != nil {
			p.Logger.Warn("operation failed, will retry",
				"attempt", attempt, "max_attempts", p.MaxRetries+1, "error", err)
		}
		return retry.RetryableError(err)
	})
}

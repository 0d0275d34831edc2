package backoff

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Base is the first retry delay; each later attempt doubles it.
var Base = 500 * time.Millisecond

// Ping calls ping until it succeeds, attempts retries are exhausted or ctx ends.
func Ping(ctx context.Context, what string, attempts int, ping func(context.Context) error) error {
	if attempts < 0 {
		attempts = 0
	}
	b := retry.WithCappedDuration(10*time.Second, retry.NewExponential(Base))
	b = retry.WithMaxRetries(uint64(attempts), b)
	try := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		try++
		if err := ping(ctx); err != nil {
			slog.Warn("connection attempt failed", "target", what, "attempt", try, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

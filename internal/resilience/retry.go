package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is a retry policy with doubling backoff.
type RetryConfig struct {
	// Attempts counts the first try. 1 disables retries. Default: 3.
	Attempts int
	// Backoff is the delay before the first retry. Default: 250ms.
	Backoff time.Duration
	// MaxBackoff caps the delay. Default: 5s.
	MaxBackoff time.Duration
	// Retryable decides which errors are retried. Default: IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the retry policy used for spreadsheet reads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Backoff: 250 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.Attempts <= 0 {
		c.Attempts = def.Attempts
	}
	if c.Backoff <= 0 {
		c.Backoff = def.Backoff
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = max(def.MaxBackoff, c.Backoff)
	}
	if c.Retryable == nil {
		c.Retryable = IsTransient
	}
	return c
}

// delay is the wait after the given failed attempt (1-based): Backoff
// doubled per attempt, capped at MaxBackoff, with up to 20% jitter either way.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.Backoff
	for i := 1; i < attempt && d < c.MaxBackoff; i++ {
		d *= 2
	}
	d = min(d, c.MaxBackoff)
	jitter := time.Duration((rand.Float64()*0.4 - 0.2) * float64(d))
	return max(d+jitter, 0)
}

// Retry calls fn until it succeeds, returns an error cfg does not retry,
// or runs out of attempts. The last error is returned unchanged so callers
// can still match it. A cancelled ctx stops the loop during a wait.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= cfg.Attempts || ctx.Err() != nil || !cfg.Retryable(err) {
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		t := time.NewTimer(cfg.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// RetryLogger returns an OnRetry callback that warns about each retry.
func RetryLogger(source string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying read",
			zap.String("source", source),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

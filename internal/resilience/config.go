package resilience

import (
	"time"

	"github.com/sells-group/caseaudit/internal/config"
)

// FromLookupConfig converts the lookup section of the configuration into a
// retry policy and a breaker configuration. Zero values keep the defaults.
func FromLookupConfig(cfg config.LookupConfig) (RetryConfig, BreakerConfig) {
	retry := DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		retry.Attempts = cfg.RetryAttempts
	}
	if cfg.RetryBackoffMs > 0 {
		retry.Backoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	}

	breaker := DefaultBreakerConfig()
	if cfg.BreakerThreshold > 0 {
		breaker.Threshold = cfg.BreakerThreshold
	}
	if cfg.BreakerResetSecs > 0 {
		breaker.Cooldown = time.Duration(cfg.BreakerResetSecs) * time.Second
	}
	return retry, breaker
}

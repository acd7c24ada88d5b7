package outbox

import (
	"math/rand"
	"time"
)

// BackoffConfig bounds the wait between failed sends of one entry.
type BackoffConfig struct {
	// BaseDelay is the longest wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the wait as it doubles with every attempt.
	MaxDelay time.Duration
}

// DefaultBackoff waits up to a second before the first retry and never more
// than a minute.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{BaseDelay: time.Second, MaxDelay: time.Minute}
}

// ceiling is the longest wait before retry number attempt.
func (c BackoffConfig) ceiling(attempt int) time.Duration {
	ceil, limit := c.BaseDelay, c.MaxDelay
	if ceil <= 0 {
		ceil = time.Second
	}
	if limit <= 0 {
		limit = time.Minute
	}
	for n := 1; n < attempt && ceil < limit; n++ {
		ceil *= 2
	}
	return min(ceil, limit)
}

// NextRetryAt schedules retry number attempt (1-based) at now plus a random
// wait no longer than the attempt's ceiling. A nil rng uses the global
// source.
func NextRetryAt(now time.Time, attempt int, cfg BackoffConfig, rng *rand.Rand) time.Time {
	bound := int64(cfg.ceiling(attempt)) + 1
	var wait int64
	if rng != nil {
		wait = rng.Int63n(bound)
	} else {
		wait = rand.Int63n(bound)
	}
	return now.Add(time.Duration(wait)).UTC()
}

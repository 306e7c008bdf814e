package infra

import (
	"math/rand"
	"time"
)

const (
	baseDelay = 1 * time.Second
	maxDelay  = 30 * time.Second
)

// CalculateBackoff returns the exponential backoff delay for a REST retry:
// baseDelay * 2^attempt, capped at maxDelay. Negative attempts get baseDelay.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		return baseDelay
	}
	// 2^30s already exceeds the cap; avoid shift overflow.
	if attempt > 30 {
		return maxDelay
	}
	backoff := baseDelay * time.Duration(1<<attempt)
	if backoff > maxDelay {
		return maxDelay
	}
	return backoff
}

// BackoffWithJitter adds up to 25% random jitter so parallel retries against
// the exchange don't synchronize.
func BackoffWithJitter(attempt int) time.Duration {
	d := CalculateBackoff(attempt)
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

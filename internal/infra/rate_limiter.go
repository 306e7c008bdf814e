package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket limiter guarding outbound REST calls.
// Safe for concurrent use.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a limiter allowing perSecond sustained requests
// with a burst of maxBurst.
func NewRateLimiter(maxBurst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(maxBurst),
		maxTokens:  float64(maxBurst),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		waitTime := time.Duration(float64(time.Second) / r.refillRate)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// TryAcquire attempts to take a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time. Caller holds the mutex.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// Binance futures weight limits are generous (2400/min) but order endpoints
// are tighter. Conservative buckets keep us clear of IP bans.
var (
	binanceOrderLimiter  *RateLimiter
	binanceQueryLimiter  *RateLimiter
	binanceMarketLimiter *RateLimiter
	rateLimiterOnce      sync.Once
)

// OrderLimiter returns the shared limiter for order placement endpoints.
func OrderLimiter() *RateLimiter {
	rateLimiterOnce.Do(initLimiters)
	return binanceOrderLimiter
}

// QueryLimiter returns the shared limiter for account/position queries.
func QueryLimiter() *RateLimiter {
	rateLimiterOnce.Do(initLimiters)
	return binanceQueryLimiter
}

// MarketLimiter returns the shared limiter for public market data.
func MarketLimiter() *RateLimiter {
	rateLimiterOnce.Do(initLimiters)
	return binanceMarketLimiter
}

func initLimiters() {
	binanceOrderLimiter = NewRateLimiter(5, 8)
	binanceQueryLimiter = NewRateLimiter(5, 10)
	binanceMarketLimiter = NewRateLimiter(10, 20)
}

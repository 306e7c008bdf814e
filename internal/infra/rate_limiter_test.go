package infra

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("Expected token %d within burst", i)
		}
	}
	if rl.TryAcquire() {
		t.Error("Expected rejection after burst exhausted")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(1, 50) // refills every 20ms

	if !rl.TryAcquire() {
		t.Fatal("Expected initial token")
	}
	if rl.TryAcquire() {
		t.Fatal("Expected empty bucket")
	}

	time.Sleep(50 * time.Millisecond)
	if !rl.TryAcquire() {
		t.Error("Expected token after refill interval")
	}
}

func TestRateLimiter_WaitBlocks(t *testing.T) {
	rl := NewRateLimiter(1, 20)
	ctx := context.Background()

	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("First Wait failed: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Second Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected Wait to block for a refill, returned after %v", elapsed)
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 0.1) // next token in 10s
	rl.TryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestSharedLimiters(t *testing.T) {
	if OrderLimiter() == nil || QueryLimiter() == nil || MarketLimiter() == nil {
		t.Fatal("Expected all shared limiters to be initialized")
	}
	if OrderLimiter() != OrderLimiter() {
		t.Error("Expected OrderLimiter to return a singleton")
	}
}

package infra

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1, time.Minute)

	if !cb.Allow() {
		t.Fatal("Expected closed breaker to allow")
	}

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.CurrentState() != BreakerClosed {
		t.Errorf("Expected CLOSED below threshold, got %s", cb.CurrentState())
	}

	cb.RecordFailure()
	if cb.CurrentState() != BreakerOpen {
		t.Errorf("Expected OPEN at threshold, got %s", cb.CurrentState())
	}
	if cb.Allow() {
		t.Error("Expected open breaker to reject")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.CurrentState() != BreakerClosed {
		t.Errorf("Expected CLOSED after interleaved success, got %s", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("Expected rejection while open")
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("Expected half-open probe after cooldown")
	}
	if cb.CurrentState() != BreakerHalfOpen {
		t.Fatalf("Expected HALF_OPEN, got %s", cb.CurrentState())
	}

	cb.RecordSuccess()
	if cb.CurrentState() != BreakerHalfOpen {
		t.Errorf("Expected HALF_OPEN until success threshold, got %s", cb.CurrentState())
	}
	cb.RecordSuccess()
	if cb.CurrentState() != BreakerClosed {
		t.Errorf("Expected CLOSED after recovery, got %s", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("Expected half-open probe")
	}

	cb.RecordFailure()
	if cb.CurrentState() != BreakerOpen {
		t.Errorf("Expected reopened breaker, got %s", cb.CurrentState())
	}
	if cb.Allow() {
		t.Error("Expected rejection after failed probe")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1, time.Minute)
	cb.RecordFailure()
	cb.Reset()

	if cb.CurrentState() != BreakerClosed {
		t.Errorf("Expected CLOSED after reset, got %s", cb.CurrentState())
	}
	if !cb.Allow() {
		t.Error("Expected reset breaker to allow")
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state BreakerState
		want  string
	}{
		{BreakerClosed, "CLOSED"},
		{BreakerOpen, "OPEN"},
		{BreakerHalfOpen, "HALF_OPEN"},
		{BreakerState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

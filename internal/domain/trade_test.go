package domain

import (
	"math"
	"testing"
)

func TestTrade_ExitCheck(t *testing.T) {
	long := Trade{Side: Long, Status: StatusOpen, EntryPrice: 100, StopLoss: 98, TakeProfit: 103}
	short := Trade{Side: Short, Status: StatusOpen, EntryPrice: 100, StopLoss: 102, TakeProfit: 97}

	tests := []struct {
		name   string
		trade  Trade
		price  float64
		hit    bool
		reason string
	}{
		{"long holds", long, 100.5, false, ""},
		{"long sl", long, 97.9, true, ExitStopLoss},
		{"long tp", long, 103.2, true, ExitTakeProfit},
		{"short holds", short, 99.5, false, ""},
		{"short sl", short, 102.1, true, ExitStopLoss},
		{"short tp", short, 96.8, true, ExitTakeProfit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, reason := tt.trade.ExitCheck(tt.price)
			if hit != tt.hit || reason != tt.reason {
				t.Errorf("ExitCheck(%v) = (%v, %q), want (%v, %q)",
					tt.price, hit, reason, tt.hit, tt.reason)
			}
		})
	}

	closed := long
	closed.Status = StatusClosed
	if hit, _ := closed.ExitCheck(90); hit {
		t.Error("closed trade must never exit again")
	}
}

func TestTrade_NetPnL(t *testing.T) {
	// entry=100, exit=110, qty=10, fee=0.0005:
	// gross=100, fee=(1000+1100)*0.0005=1.05, net=98.95
	tr := Trade{Side: Long, EntryPrice: 100, Quantity: 10}
	if got := tr.GrossPnL(110); got != 100 {
		t.Errorf("GrossPnL = %v, want 100", got)
	}
	if got := tr.NetPnL(110, 0.0005); math.Abs(got-98.95) > 1e-9 {
		t.Errorf("NetPnL = %v, want 98.95", got)
	}

	sh := Trade{Side: Short, EntryPrice: 100, Quantity: 10}
	if got := sh.GrossPnL(90); got != 100 {
		t.Errorf("short GrossPnL = %v, want 100", got)
	}
}

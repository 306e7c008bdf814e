package domain

import "time"

// Trade lifecycle states. A trade transitions OPEN -> CLOSED exactly once.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Exit reasons recorded when a trade closes.
const (
	ExitStopLoss   = "SL"
	ExitTakeProfit = "TP"
)

// Trade is a ledger record. Created on an admitted signal, mutated only on
// exit, never deleted.
type Trade struct {
	ID         int64
	Symbol     string
	Side       Direction
	Strategy   string
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Status     string
	EntryTime  time.Time
	ExitTime   time.Time
	ExitPrice  float64
	PnL        float64 // net of fees
}

// IsOpen reports whether the trade is still live.
func (t *Trade) IsOpen() bool { return t.Status == StatusOpen }

// ExitCheck reports whether the given price triggers an exit, and why.
// Stop-loss is checked before take-profit on both sides; when a large move
// satisfies both on the same tick, the stop wins.
func (t *Trade) ExitCheck(price float64) (bool, string) {
	if !t.IsOpen() || t.StopLoss == 0 || t.TakeProfit == 0 {
		return false, ""
	}
	switch t.Side {
	case Long:
		if price <= t.StopLoss {
			return true, ExitStopLoss
		}
		if price >= t.TakeProfit {
			return true, ExitTakeProfit
		}
	case Short:
		if price >= t.StopLoss {
			return true, ExitStopLoss
		}
		if price <= t.TakeProfit {
			return true, ExitTakeProfit
		}
	}
	return false, ""
}

// GrossPnL returns the fee-free profit of closing at exitPrice.
func (t *Trade) GrossPnL(exitPrice float64) float64 {
	if t.Side == Short {
		return (t.EntryPrice - exitPrice) * t.Quantity
	}
	return (exitPrice - t.EntryPrice) * t.Quantity
}

// NetPnL returns the profit of closing at exitPrice after entry and exit
// fees: fee = (entryNotional + exitNotional) * feeRate.
func (t *Trade) NetPnL(exitPrice, feeRate float64) float64 {
	fee := (t.EntryPrice*t.Quantity + exitPrice*t.Quantity) * feeRate
	return t.GrossPnL(exitPrice) - fee
}

// Package strategy holds the trading logic variants. Every variant consumes
// the same enriched candle window and produces a directional signal with
// entry, stop, and target prices.
package strategy

import (
	"time"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/indicator"
)

// Context carries per-evaluation identity into a strategy. Now is the
// injected clock so day-boundary logic is testable without real time
// passing.
type Context struct {
	Symbol string
	Now    time.Time
}

// Strategy is the shared contract for all variants. Analyze must be safe to
// call repeatedly for the same window and must return a NONE signal, not an
// error, when the window is shorter than the warmup length.
type Strategy interface {
	Name() string
	Analyze(w *indicator.EnrichedWindow, sctx Context) domain.Signal
}

// ResultRecorder is implemented by strategies that keep private per-symbol
// state (trade-frequency counters, loss-streak cooldowns). The orchestrator
// feeds outcomes back through it; the state stays strategy-owned.
type ResultRecorder interface {
	RecordOpen(symbol string, at time.Time)
	RecordResult(symbol string, pnl float64, at time.Time)
}

// RiskParams are the ATR-multiple risk settings shared by the variants.
type RiskParams struct {
	StopLossATRMultiplier float64
	TakeProfitRR          float64
}

// DefaultRiskParams mirrors the shipped configuration defaults.
func DefaultRiskParams() RiskParams {
	return RiskParams{StopLossATRMultiplier: 2.0, TakeProfitRR: 1.5}
}

// warmedUp reports whether the window has enough closed candles for valid
// indicator output.
func warmedUp(w *indicator.EnrichedWindow) bool {
	return w != nil && w.Len() >= domain.WarmupLength
}

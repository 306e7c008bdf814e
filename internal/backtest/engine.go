// Package backtest replays historical candles through a strategy offline,
// using the same enrichment and exit rules the live loop applies.
package backtest

import (
	"fmt"
	"time"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/indicator"
	"github.com/chhaycheu1/future/internal/risk"
	"github.com/chhaycheu1/future/internal/strategy"
)

// Config for a backtest run.
type Config struct {
	Symbol         string
	InitialBalance float64
	FeeRate        float64
	Warmup         int // candles before evaluation starts
}

// ClosedTrade is one simulated round trip.
type ClosedTrade struct {
	Side       domain.Direction
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	ExitReason string
}

// Result summarizes a run.
type Result struct {
	Trades       []ClosedTrade
	FinalBalance float64
	TotalPnL     float64
	Wins         int
	Losses       int
	MaxDrawdown  float64
}

// WinRate returns the fraction of winning trades, 0 with no trades.
func (r *Result) WinRate() float64 {
	total := r.Wins + r.Losses
	if total == 0 {
		return 0
	}
	return float64(r.Wins) / float64(total)
}

// Engine replays candles through one strategy with at most one position.
type Engine struct {
	cfg     Config
	strat   strategy.Strategy
	riskMgr *risk.Manager
}

// NewEngine creates a backtest engine.
func NewEngine(cfg Config, strat strategy.Strategy, riskMgr *risk.Manager) *Engine {
	if cfg.Warmup <= 0 {
		cfg.Warmup = domain.WarmupLength
	}
	return &Engine{cfg: cfg, strat: strat, riskMgr: riskMgr}
}

// Run replays the candles, oldest first, and returns the summary.
// Exits are resolved intra-candle against the candle's range: the stop is
// checked before the target, so a candle spanning both counts as a loss.
func (e *Engine) Run(candles []domain.Candle) (*Result, error) {
	if len(candles) <= e.cfg.Warmup {
		return nil, fmt.Errorf("need more than %d candles, got %d", e.cfg.Warmup, len(candles))
	}

	result := &Result{FinalBalance: e.cfg.InitialBalance}
	balance := e.cfg.InitialBalance
	peak := balance
	var open *domain.Trade

	window := domain.NewCandleWindow(domain.WindowCapacity)
	for _, c := range candles[:e.cfg.Warmup] {
		window.Append(c)
	}

	for _, candle := range candles[e.cfg.Warmup:] {
		if open != nil {
			if exitPrice, reason, hit := resolveExit(open, candle); hit {
				pnl := open.NetPnL(exitPrice, e.cfg.FeeRate)
				balance += pnl
				result.Trades = append(result.Trades, ClosedTrade{
					Side:       open.Side,
					EntryTime:  open.EntryTime,
					ExitTime:   candle.OpenTime,
					EntryPrice: open.EntryPrice,
					ExitPrice:  exitPrice,
					Quantity:   open.Quantity,
					PnL:        pnl,
					ExitReason: reason,
				})
				if pnl >= 0 {
					result.Wins++
				} else {
					result.Losses++
				}
				if rec, ok := e.strat.(strategy.ResultRecorder); ok {
					rec.RecordResult(e.cfg.Symbol, pnl, candle.OpenTime)
				}
				open = nil

				if balance > peak {
					peak = balance
				}
				if dd := peak - balance; dd > result.MaxDrawdown {
					result.MaxDrawdown = dd
				}
			}
		}

		window.Append(candle)

		if open == nil && e.riskMgr.CanOpen(balance) {
			enriched := indicator.Enrich(window.Candles())
			sctx := strategy.Context{Symbol: e.cfg.Symbol, Now: candle.OpenTime}
			signal := e.strat.Analyze(enriched, sctx)
			if signal.Direction == domain.None {
				continue
			}
			if err := signal.Validate(); err != nil {
				continue
			}

			qty := e.riskMgr.Size(balance, signal.Entry, signal.StopLoss)
			qty = risk.RoundQuantity(qty, signal.Entry)
			if qty <= 0 {
				continue
			}
			open = &domain.Trade{
				Symbol:     e.cfg.Symbol,
				Side:       signal.Direction,
				Strategy:   e.strat.Name(),
				EntryPrice: signal.Entry,
				Quantity:   qty,
				StopLoss:   signal.StopLoss,
				TakeProfit: signal.TakeProfit,
				Status:     domain.StatusOpen,
				EntryTime:  candle.OpenTime,
			}
			if rec, ok := e.strat.(strategy.ResultRecorder); ok {
				rec.RecordOpen(e.cfg.Symbol, candle.OpenTime)
			}
		}
	}

	result.FinalBalance = balance
	for _, t := range result.Trades {
		result.TotalPnL += t.PnL
	}
	return result, nil
}

// resolveExit checks a candle's range against the trade's levels. The fill
// is assumed at the level itself, not the candle extreme.
func resolveExit(t *domain.Trade, c domain.Candle) (float64, string, bool) {
	switch t.Side {
	case domain.Long:
		if c.Low <= t.StopLoss {
			return t.StopLoss, domain.ExitStopLoss, true
		}
		if c.High >= t.TakeProfit {
			return t.TakeProfit, domain.ExitTakeProfit, true
		}
	case domain.Short:
		if c.High >= t.StopLoss {
			return t.StopLoss, domain.ExitStopLoss, true
		}
		if c.Low <= t.TakeProfit {
			return t.TakeProfit, domain.ExitTakeProfit, true
		}
	}
	return 0, "", false
}

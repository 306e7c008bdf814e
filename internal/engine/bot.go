// Package engine wires the market feed, strategies, risk gate, venue and
// ledger into the trading loop. All trade lifecycle writes happen here;
// every other package is a pure producer or a passive store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/exchange"
	"github.com/chhaycheu1/future/internal/indicator"
	"github.com/chhaycheu1/future/internal/infra"
	"github.com/chhaycheu1/future/internal/ledger"
	"github.com/chhaycheu1/future/internal/risk"
	"github.com/chhaycheu1/future/internal/strategy"
	"github.com/chhaycheu1/future/internal/stream"
)

// Streamer is the market feed surface the bot consumes. Satisfied by
// stream.Manager and by test fakes.
type Streamer interface {
	Events() <-chan stream.CandleClose
	Ready(symbol string) bool
	Candles(symbol string) []domain.Candle
	CurrentPrice(symbol string) (float64, bool)
	ConnState() stream.State
}

// Config for the trading loop.
type Config struct {
	Symbols              []string
	Interval             string // candle interval for history fallback
	DryRun               bool
	FeeRate              float64
	Leverage             int
	PollInterval         time.Duration // exit sweep cadence
	DegradedPollInterval time.Duration // sweep cadence when the feed is down
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.DegradedPollInterval <= 0 {
		c.DegradedPollInterval = 10 * time.Second
	}
}

// Bot is the orchestrator. One instance per process.
type Bot struct {
	cfg        Config
	venue      exchange.Exchange
	feed       Streamer
	store      *ledger.Store
	riskMgr    *risk.Manager
	strategies []strategy.Strategy
	logger     *slog.Logger
	now        func() time.Time

	running      atomic.Bool
	evalMu       sync.Mutex // serializes evaluation cycles
	lastFallback map[string]time.Time
}

// New creates the bot. Strategies are evaluated in the given order.
func New(cfg Config, venue exchange.Exchange, feed Streamer, store *ledger.Store,
	riskMgr *risk.Manager, strategies []strategy.Strategy, logger *slog.Logger) *Bot {
	cfg.applyDefaults()
	return &Bot{
		cfg:          cfg,
		venue:        venue,
		feed:         feed,
		store:        store,
		riskMgr:      riskMgr,
		strategies:   strategies,
		logger:       logger.With(slog.String("component", "engine")),
		now:          time.Now,
		lastFallback: make(map[string]time.Time),
	}
}

// Start flips the control flag on and persists it.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.store.SetRunning(ctx, true); err != nil {
		return fmt.Errorf("failed to persist running state: %w", err)
	}
	b.running.Store(true)
	b.logger.Info("bot started", slog.Bool("dry_run", b.cfg.DryRun))
	return nil
}

// Stop flips the control flag off. Open trades stay open; only new entries
// are suspended.
func (b *Bot) Stop(ctx context.Context) error {
	if err := b.store.SetRunning(ctx, false); err != nil {
		return fmt.Errorf("failed to persist running state: %w", err)
	}
	b.running.Store(false)
	b.logger.Info("bot stopped")
	return nil
}

// IsRunning reports the control flag.
func (b *Bot) IsRunning() bool { return b.running.Load() }

// Run drives the loop until ctx is cancelled. It restores the persisted
// control flag, consumes candle close events, and sweeps exits on a timer
// so stops fire even when no candle closes.
func (b *Bot) Run(ctx context.Context) error {
	state, err := b.store.BotState(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore bot state: %w", err)
	}
	b.running.Store(state.IsRunning)
	b.logger.Info("run loop starting", slog.Bool("running", state.IsRunning))

	ticker := time.NewTicker(b.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("run loop stopping")
			return ctx.Err()

		case ev, ok := <-b.feed.Events():
			if !ok {
				return fmt.Errorf("candle event channel closed")
			}
			if !b.running.Load() {
				continue
			}
			b.evaluateSymbol(ctx, ev.Symbol, ev.Candle.Close)

		case <-ticker.C:
			ticker.Reset(b.pollInterval())
			b.refreshRunning(ctx)
			if !b.running.Load() {
				continue
			}
			b.sweepExits(ctx)
			b.evaluateStaleSymbols(ctx)
		}
	}
}

// refreshRunning re-reads the persisted control flag so an external toggle
// (the dashboard writing the ledger) takes effect within one poll tick.
func (b *Bot) refreshRunning(ctx context.Context) {
	state, err := b.store.BotState(ctx)
	if err != nil {
		b.logger.Warn("failed to refresh bot state", slog.Any("error", err))
		return
	}
	if b.running.Load() != state.IsRunning {
		b.running.Store(state.IsRunning)
		b.logger.Info("running flag changed externally", slog.Bool("running", state.IsRunning))
	}
}

func (b *Bot) pollInterval() time.Duration {
	if b.feed.ConnState() == stream.Degraded {
		return b.cfg.DegradedPollInterval
	}
	return b.cfg.PollInterval
}

// evaluateSymbol runs one full cycle for a symbol at the given price:
// exits first, then entries. A panic in one cycle is contained so a bad
// strategy cannot take down the loop.
func (b *Bot) evaluateSymbol(ctx context.Context, symbol string, price float64) {
	b.evalMu.Lock()
	defer b.evalMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			infra.EvalErrors.WithLabelValues(symbol).Inc()
			b.logger.Error("evaluation panic",
				slog.String("symbol", symbol),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := b.checkExits(ctx, symbol, price); err != nil {
		infra.EvalErrors.WithLabelValues(symbol).Inc()
		b.logger.Error("exit check failed", slog.String("symbol", symbol), slog.Any("error", err))
		return
	}
	if err := b.checkEntries(ctx, symbol); err != nil {
		infra.EvalErrors.WithLabelValues(symbol).Inc()
		b.logger.Error("entry check failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
}

// sweepExits checks every open trade against the latest price so stops
// trigger between candle closes too.
func (b *Bot) sweepExits(ctx context.Context) {
	b.evalMu.Lock()
	defer b.evalMu.Unlock()

	open, err := b.store.OpenTrades(ctx)
	if err != nil {
		b.logger.Error("failed to load open trades", slog.Any("error", err))
		return
	}
	for i := range open {
		t := &open[i]
		price, ok := b.feed.CurrentPrice(t.Symbol)
		if !ok {
			p, err := b.venue.MarketPrice(ctx, t.Symbol)
			if err != nil {
				b.logger.Warn("no price for exit sweep",
					slog.String("symbol", t.Symbol), slog.Any("error", err))
				continue
			}
			price = p
		}
		if hit, reason := t.ExitCheck(price); hit {
			if err := b.closeTrade(ctx, t, price, reason); err != nil {
				b.logger.Error("failed to close trade",
					slog.Int64("trade_id", t.ID), slog.Any("error", err))
			}
		}
	}
}

// evaluateStaleSymbols covers symbols the feed cannot serve (degraded or
// still warming): candles come from the venue's REST history instead. Each
// distinct latest candle is evaluated once.
func (b *Bot) evaluateStaleSymbols(ctx context.Context) {
	for _, symbol := range b.cfg.Symbols {
		if b.feed.Ready(symbol) {
			continue
		}
		candles, err := b.venue.HistoricalCandles(ctx, symbol, b.interval(), domain.WindowCapacity)
		if err != nil {
			b.logger.Warn("history fallback failed",
				slog.String("symbol", symbol), slog.Any("error", err))
			continue
		}
		if len(candles) < domain.WarmupLength {
			continue
		}
		latest := candles[len(candles)-1].OpenTime
		b.evalMu.Lock()
		seen := b.lastFallback[symbol]
		if !latest.After(seen) {
			b.evalMu.Unlock()
			continue
		}
		b.lastFallback[symbol] = latest
		b.evalMu.Unlock()

		b.evaluateHistory(ctx, symbol, candles)
	}
}

// evaluateHistory runs the entry pass over REST-fetched candles.
func (b *Bot) evaluateHistory(ctx context.Context, symbol string, candles []domain.Candle) {
	b.evalMu.Lock()
	defer b.evalMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			infra.EvalErrors.WithLabelValues(symbol).Inc()
			b.logger.Error("evaluation panic",
				slog.String("symbol", symbol), slog.Any("panic", r))
		}
	}()

	if err := b.entryPass(ctx, symbol, candles); err != nil {
		infra.EvalErrors.WithLabelValues(symbol).Inc()
		b.logger.Error("entry check failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
}

func (b *Bot) interval() string {
	if b.cfg.Interval == "" {
		return "5m"
	}
	return b.cfg.Interval
}

func (b *Bot) checkExits(ctx context.Context, symbol string, price float64) error {
	open, err := b.store.OpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open trades: %w", err)
	}
	for i := range open {
		t := &open[i]
		if t.Symbol != symbol {
			continue
		}
		if hit, reason := t.ExitCheck(price); hit {
			if err := b.closeTrade(ctx, t, price, reason); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bot) checkEntries(ctx context.Context, symbol string) error {
	if !b.feed.Ready(symbol) {
		return nil
	}
	return b.entryPass(ctx, symbol, b.feed.Candles(symbol))
}

func (b *Bot) entryPass(ctx context.Context, symbol string, candles []domain.Candle) error {
	enriched := indicator.Enrich(candles)
	sctx := strategy.Context{Symbol: symbol, Now: b.now()}

	for _, strat := range b.strategies {
		has, err := b.store.HasOpenTrade(ctx, symbol, strat.Name())
		if err != nil {
			return fmt.Errorf("failed to check open trade: %w", err)
		}
		if has {
			continue
		}

		signal := strat.Analyze(enriched, sctx)
		if signal.Direction == domain.None {
			continue
		}
		if err := signal.Validate(); err != nil {
			b.logger.Warn("rejecting malformed signal",
				slog.String("symbol", symbol),
				slog.String("strategy", strat.Name()),
				slog.Any("error", err))
			continue
		}
		if err := b.openTrade(ctx, symbol, strat, signal); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) openTrade(ctx context.Context, symbol string, strat strategy.Strategy, signal domain.Signal) error {
	balance, err := b.venue.AccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	if !b.riskMgr.CanOpen(balance.Available) {
		b.logger.Warn("risk gate rejected entry",
			slog.String("symbol", symbol),
			slog.Float64("available", balance.Available))
		return nil
	}

	qty := b.riskMgr.Size(balance.Available, signal.Entry, signal.StopLoss)
	qty = risk.RoundQuantity(qty, signal.Entry)
	if qty <= 0 {
		return nil
	}

	entryPrice := signal.Entry
	if !b.cfg.DryRun {
		side := exchange.SideBuy
		if signal.Direction == domain.Short {
			side = exchange.SideSell
		}
		ack, err := b.venue.PlaceOrder(ctx, symbol, side, qty)
		if err != nil {
			return fmt.Errorf("order placement failed: %w", err)
		}
		if ack == nil {
			return fmt.Errorf("order placement returned no acknowledgement for %s", symbol)
		}
		if ack.Quantity > 0 {
			qty = ack.Quantity
		}
	}

	trade := domain.Trade{
		Symbol:     symbol,
		Side:       signal.Direction,
		Strategy:   strat.Name(),
		EntryPrice: entryPrice,
		Quantity:   qty,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
		EntryTime:  b.now().UTC(),
	}
	saved, err := b.store.AddTrade(ctx, trade)
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}

	if rec, ok := strat.(strategy.ResultRecorder); ok {
		rec.RecordOpen(symbol, b.now())
	}
	infra.TradesOpened.WithLabelValues(symbol, strat.Name()).Inc()
	infra.OpenTrades.Inc()

	b.logger.Info("trade opened",
		slog.Int64("trade_id", saved.ID),
		slog.String("symbol", symbol),
		slog.String("strategy", strat.Name()),
		slog.String("side", string(saved.Side)),
		slog.Float64("entry", saved.EntryPrice),
		slog.Float64("quantity", saved.Quantity),
		slog.Float64("stop_loss", saved.StopLoss),
		slog.Float64("take_profit", saved.TakeProfit))
	return nil
}

func (b *Bot) closeTrade(ctx context.Context, t *domain.Trade, price float64, reason string) error {
	if !b.cfg.DryRun {
		side := exchange.SideSell
		if t.Side == domain.Short {
			side = exchange.SideBuy
		}
		if _, err := b.venue.PlaceOrder(ctx, t.Symbol, side, t.Quantity); err != nil {
			return fmt.Errorf("close order failed: %w", err)
		}
	}

	pnl := t.NetPnL(price, b.cfg.FeeRate)
	closed, err := b.store.CloseTrade(ctx, t.ID, price, pnl)
	if err != nil {
		return fmt.Errorf("failed to record close: %w", err)
	}
	if closed == nil {
		return nil // already closed by a concurrent sweep
	}

	for _, strat := range b.strategies {
		if strat.Name() != t.Strategy {
			continue
		}
		if rec, ok := strat.(strategy.ResultRecorder); ok {
			rec.RecordResult(t.Symbol, pnl, b.now())
		}
	}
	infra.TradesClosed.WithLabelValues(t.Symbol, reason).Inc()
	infra.OpenTrades.Dec()

	b.logger.Info("trade closed",
		slog.Int64("trade_id", t.ID),
		slog.String("symbol", t.Symbol),
		slog.String("reason", reason),
		slog.Float64("exit", price),
		slog.Float64("pnl", pnl))
	return nil
}

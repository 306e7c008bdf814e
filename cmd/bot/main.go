package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/engine"
	"github.com/chhaycheu1/future/internal/exchange"
	"github.com/chhaycheu1/future/internal/infra"
	"github.com/chhaycheu1/future/internal/ledger"
	"github.com/chhaycheu1/future/internal/risk"
	"github.com/chhaycheu1/future/internal/strategy"
	"github.com/chhaycheu1/future/internal/stream"

	_ "net/http/pprof" // profiling endpoint
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Config & Logger
	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		slog.Error("❌ Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("🚀 Starting bot",
		slog.String("version", cfg.App.Version),
		slog.Bool("dry_run", cfg.Trading.DryRun),
		slog.Any("symbols", cfg.Trading.Symbols))

	// 2. Pprof server (localhost only)
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 3. Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			slog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	// 4. Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		slog.Error("❌ Bot exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("👋 Shutdown complete")
}

func run(ctx context.Context, cfg *infra.Config, logger *slog.Logger) error {
	// Trade ledger
	store, err := ledger.Open(cfg.Engine.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("✅ Ledger ready", slog.String("path", cfg.Engine.DBPath))

	// Venue REST client
	venue := exchange.NewBinanceClient(cfg.API.Key, cfg.API.Secret, cfg.Trading.Testnet, logger)
	defer venue.Close()

	if !cfg.Trading.DryRun {
		for _, symbol := range cfg.Trading.Symbols {
			if err := venue.SetLeverage(ctx, symbol, cfg.Trading.Leverage); err != nil {
				return err
			}
		}
	}

	// Market feed, seeded with history so strategies evaluate immediately
	feed := stream.NewManager(stream.Config{
		URL:         cfg.API.WSURL,
		Interval:    cfg.Trading.Interval,
		Symbols:     cfg.Trading.Symbols,
		EventBuffer: cfg.Engine.EventBuffer,
	}, logger)

	for _, symbol := range cfg.Trading.Symbols {
		candles, err := venue.HistoricalCandles(ctx, symbol, cfg.Trading.Interval, domain.WindowCapacity)
		if err != nil {
			slog.Warn("History backfill failed, warming from stream",
				slog.String("symbol", symbol), slog.Any("error", err))
			continue
		}
		feed.Seed(symbol, candles)
		slog.Info("✅ History seeded", slog.String("symbol", symbol), slog.Int("candles", len(candles)))
	}

	if err := feed.Subscribe(ctx); err != nil {
		// The engine falls back to REST history until the feed recovers.
		slog.Warn("Stream not ready, starting degraded", slog.Any("error", err))
	}
	defer feed.Close()

	// Strategies and risk gate
	strategies := []strategy.Strategy{
		strategy.NewScalping(strategy.DefaultRiskParams()),
		strategy.NewTrendPullback(strategy.DefaultRiskParams()),
		strategy.NewMeanReversion(),
		strategy.NewLiquidityGrab(),
	}
	riskMgr := risk.NewManager(risk.Config{
		RiskPerTrade:     cfg.Risk.RiskPerTrade,
		PositionSizeUSDT: cfg.Risk.PositionSizeUSDT,
		Leverage:         cfg.Trading.Leverage,
	})

	bot := engine.New(engine.Config{
		Symbols:              cfg.Trading.Symbols,
		Interval:             cfg.Trading.Interval,
		DryRun:               cfg.Trading.DryRun,
		FeeRate:              cfg.Trading.FeeRate,
		Leverage:             cfg.Trading.Leverage,
		PollInterval:         time.Duration(cfg.Engine.PollIntervalSec) * time.Second,
		DegradedPollInterval: time.Duration(cfg.Engine.DegradedPollIntervalSec) * time.Second,
	}, venue, feed, store, riskMgr, strategies, logger)

	if err := bot.Start(ctx); err != nil {
		return err
	}
	slog.Info("✨ Bot operational. Press Ctrl+C to exit.")
	return bot.Run(ctx)
}

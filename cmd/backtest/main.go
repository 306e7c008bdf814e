package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/chhaycheu1/future/internal/backtest"
	"github.com/chhaycheu1/future/internal/exchange"
	"github.com/chhaycheu1/future/internal/risk"
	"github.com/chhaycheu1/future/internal/strategy"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "symbol to replay")
	interval := flag.String("interval", "5m", "candle interval")
	limit := flag.Int("limit", 1000, "candles to fetch")
	stratName := flag.String("strategy", "scalping", "scalping | pullback | meanreversion | liquiditygrab")
	balance := flag.Float64("balance", 10000, "starting balance in USDT")
	feeRate := flag.Float64("fee", 0.0004, "taker fee rate per leg")
	riskPerTrade := flag.Float64("risk", 0.01, "fraction of balance risked per trade")
	testnet := flag.Bool("testnet", false, "use the testnet venue")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	strat, err := buildStrategy(*stratName)
	if err != nil {
		slog.Error("Unknown strategy", slog.Any("error", err))
		os.Exit(1)
	}

	// Public market data needs no credentials.
	venue := exchange.NewBinanceClient("", "", *testnet, logger)
	defer venue.Close()

	ctx := context.Background()
	candles, err := venue.HistoricalCandles(ctx, *symbol, *interval, *limit)
	if err != nil {
		slog.Error("Failed to fetch candles", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Candles loaded", slog.String("symbol", *symbol), slog.Int("count", len(candles)))

	eng := backtest.NewEngine(backtest.Config{
		Symbol:         *symbol,
		InitialBalance: *balance,
		FeeRate:        *feeRate,
	}, strat, risk.NewManager(risk.Config{RiskPerTrade: *riskPerTrade}))

	result, err := eng.Run(candles)
	if err != nil {
		slog.Error("Backtest failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Printf("strategy:      %s\n", strat.Name())
	fmt.Printf("trades:        %d (%d wins / %d losses)\n",
		len(result.Trades), result.Wins, result.Losses)
	fmt.Printf("win rate:      %.1f%%\n", result.WinRate()*100)
	fmt.Printf("total pnl:     %+.2f USDT\n", result.TotalPnL)
	fmt.Printf("final balance: %.2f USDT\n", result.FinalBalance)
	fmt.Printf("max drawdown:  %.2f USDT\n", result.MaxDrawdown)
	for _, tr := range result.Trades {
		fmt.Printf("  %s %s entry %.2f exit %.2f (%s) pnl %+.2f\n",
			tr.EntryTime.Format("2006-01-02 15:04"), tr.Side,
			tr.EntryPrice, tr.ExitPrice, tr.ExitReason, tr.PnL)
	}
}

func buildStrategy(name string) (strategy.Strategy, error) {
	switch name {
	case "scalping":
		return strategy.NewScalping(strategy.DefaultRiskParams()), nil
	case "pullback":
		return strategy.NewTrendPullback(strategy.DefaultRiskParams()), nil
	case "meanreversion":
		return strategy.NewMeanReversion(), nil
	case "liquiditygrab":
		return strategy.NewLiquidityGrab(), nil
	default:
		return nil, fmt.Errorf("no strategy named %q", name)
	}
}

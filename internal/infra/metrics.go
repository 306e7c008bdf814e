package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors, registered on the default registry and served by
// the /metrics endpoint in cmd/bot.
var (
	CandlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "future",
		Name:      "candles_total",
		Help:      "Closed candles received per symbol.",
	}, []string{"symbol"})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "future",
		Name:      "stream_reconnects_total",
		Help:      "Websocket reconnect attempts.",
	})

	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "future",
		Name:      "dropped_events_total",
		Help:      "Candle close events dropped because the consumer lagged.",
	})

	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "future",
		Name:      "trades_opened_total",
		Help:      "Trades opened per symbol and strategy.",
	}, []string{"symbol", "strategy"})

	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "future",
		Name:      "trades_closed_total",
		Help:      "Trades closed per symbol and exit reason.",
	}, []string{"symbol", "reason"})

	EvalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "future",
		Name:      "eval_errors_total",
		Help:      "Evaluation cycles aborted by an error, per symbol.",
	}, []string{"symbol"})

	OpenTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "future",
		Name:      "open_trades",
		Help:      "Trades currently open in the ledger.",
	})
)

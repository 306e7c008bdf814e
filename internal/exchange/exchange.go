// Package exchange talks to the trading venue over REST. The websocket
// market feed lives in internal/stream; this package covers everything
// request/response: prices, history, balances, positions, orders.
package exchange

import (
	"context"
	"time"

	"github.com/chhaycheu1/future/internal/domain"
)

// OrderAck is the venue's acknowledgement of a placed order.
// A nil *OrderAck from PlaceOrder means the order was not accepted.
type OrderAck struct {
	OrderID  int64
	Symbol   string
	Side     string
	Quantity float64
	Status   string
}

// Balance is a futures wallet snapshot.
type Balance struct {
	Wallet    float64 // total wallet balance
	Available float64 // free margin
}

// Exchange is the venue surface the orchestrator depends on. The live
// client and test fakes both satisfy it.
type Exchange interface {
	// MarketPrice returns the latest traded price for symbol.
	MarketPrice(ctx context.Context, symbol string) (float64, error)

	// HistoricalCandles returns up to limit closed candles for the
	// interval, oldest first.
	HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)

	// AccountBalance returns the USDT futures wallet snapshot.
	AccountBalance(ctx context.Context) (Balance, error)

	// AllPositions returns open positions with nonzero amounts.
	AllPositions(ctx context.Context) ([]domain.Position, error)

	// PlaceOrder submits a market order. A nil ack with nil error does
	// not occur; failures always carry an error.
	PlaceOrder(ctx context.Context, symbol, side string, quantity float64) (*OrderAck, error)

	// SetLeverage sets the leverage for a symbol before trading it.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// Sides accepted by PlaceOrder.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

const defaultTimeout = 10 * time.Second

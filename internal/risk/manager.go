// Package risk sizes candidate trades and gates admission.
package risk

import "github.com/shopspring/decimal"

// Config selects the sizing mode. A positive PositionSizeUSDT switches the
// manager to fixed-notional sizing; otherwise the percentage-risk mode is
// used.
type Config struct {
	RiskPerTrade     float64 // fraction of balance risked per trade, e.g. 0.01
	PositionSizeUSDT float64 // fixed notional per trade; 0 disables
	Leverage         int
}

// Manager implements position sizing and the trade-admission policy.
type Manager struct {
	cfg Config
}

// NewManager creates a risk manager.
func NewManager(cfg Config) *Manager {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &Manager{cfg: cfg}
}

// Size returns the quantity (in base units) for a candidate trade.
//
// Fixed-notional mode: quantity = (fixedUSDT * leverage) / entry.
// Percentage mode: quantity = (balance * riskPct) / |entry - stop|,
// yielding 0 when the stop distance is zero or the balance is not positive.
func (m *Manager) Size(balance, entry, stop float64) float64 {
	if balance <= 0 || entry <= 0 {
		return 0
	}

	if m.cfg.PositionSizeUSDT > 0 {
		return m.cfg.PositionSizeUSDT * float64(m.cfg.Leverage) / entry
	}

	dist := entry - stop
	if dist < 0 {
		dist = -dist
	}
	if dist == 0 {
		return 0
	}
	return balance * m.cfg.RiskPerTrade / dist
}

// CanOpen reports whether a new trade may be admitted. Only a non-positive
// balance blocks admission; trade-count and drawdown limits are owned by the
// strategies themselves.
func (m *Manager) CanOpen(balance float64) bool {
	return balance > 0
}

// RoundQuantity snaps a raw quantity to the exchange-friendly precision for
// the asset's price magnitude: high-priced assets get finer lot sizes,
// low-priced assets whole units. Callers must round before order placement.
func RoundQuantity(qty, entry float64) float64 {
	var places int32
	switch {
	case entry > 1000:
		places = 3
	case entry > 10:
		places = 2
	case entry > 1:
		places = 1
	default:
		places = 0
	}
	out, _ := decimal.NewFromFloat(qty).Round(places).Float64()
	return out
}

package domain

import "time"

// BotState is the process-wide control flag. Written only by the
// orchestrator's start/stop operations, read by external consumers.
type BotState struct {
	IsRunning  bool
	LastUpdate time.Time
}

// Position is a live exchange position, exposed to read-only consumers.
type Position struct {
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	Amount           float64 `json:"amount"`
	EntryPrice       float64 `json:"entry_price"`
	Leverage         int     `json:"leverage"`
	Notional         float64 `json:"notional"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	LiquidationPrice float64 `json:"liquidation_price"`
}

// Package ledger is the authoritative record of trade lifecycle state.
// All mutation goes through the orchestrator (single-writer discipline);
// external consumers only read.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/chhaycheu1/future/internal/domain"
)

// Store persists trades and the bot control state in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the ledger database with WAL mode enabled.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			strategy TEXT NOT NULL,
			entry_price REAL NOT NULL,
			quantity REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'OPEN',
			entry_time INTEGER NOT NULL,
			exit_time INTEGER,
			exit_price REAL,
			pnl REAL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create trades table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_trades_open ON trades(status, symbol, strategy);`)
	if err != nil {
		return nil, fmt.Errorf("failed to create trades index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bot_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			is_running INTEGER NOT NULL DEFAULT 0,
			last_update INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot_state table: %w", err)
	}
	_, err = db.Exec(
		"INSERT INTO bot_state (id, is_running, last_update) VALUES (1, 0, ?) ON CONFLICT(id) DO NOTHING",
		time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to seed bot_state: %w", err)
	}

	return &Store{db: db}, nil
}

// AddTrade records a newly opened trade and returns it with its assigned ID.
func (s *Store) AddTrade(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	t.Status = domain.StatusOpen
	if t.EntryTime.IsZero() {
		t.EntryTime = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (symbol, side, strategy, entry_price, quantity, stop_loss, take_profit, status, entry_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, string(t.Side), t.Strategy, t.EntryPrice, t.Quantity,
		t.StopLoss, t.TakeProfit, t.Status, t.EntryTime.UnixMilli(),
	)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("failed to insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Trade{}, fmt.Errorf("failed to read trade id: %w", err)
	}
	t.ID = id
	return t, nil
}

// CloseTrade transitions a trade OPEN -> CLOSED. Closing an already-closed
// (or unknown) trade is a no-op and returns nil: exit evaluation may fire
// twice for the same trade and must never double-close it.
func (s *Store) CloseTrade(ctx context.Context, id int64, exitPrice, pnl float64) (*domain.Trade, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, exit_price = ?, pnl = ?, exit_time = ?
		WHERE id = ? AND status = ?`,
		domain.StatusClosed, exitPrice, pnl, time.Now().UTC().UnixMilli(),
		id, domain.StatusOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to close trade %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.tradeByID(ctx, id)
}

// OpenTrades returns all trades currently in OPEN status.
func (s *Store) OpenTrades(ctx context.Context) ([]domain.Trade, error) {
	return s.queryTrades(ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE status = ? ORDER BY id ASC",
		domain.StatusOpen)
}

// RecentTrades returns the most recently opened trades, newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryTrades(ctx,
		"SELECT "+tradeColumns+" FROM trades ORDER BY entry_time DESC, id DESC LIMIT ?",
		limit)
}

// HasOpenTrade reports whether an OPEN trade exists for (symbol, strategy).
// The orchestrator consults this before every entry evaluation to hold the
// one-open-trade-per-pair invariant.
func (s *Store) HasOpenTrade(ctx context.Context, symbol, strategy string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM trades WHERE status = ? AND symbol = ? AND strategy = ?)",
		domain.StatusOpen, symbol, strategy,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check open trade: %w", err)
	}
	return exists, nil
}

// BotState returns the process control state.
func (s *Store) BotState(ctx context.Context) (domain.BotState, error) {
	var running int
	var updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT is_running, last_update FROM bot_state WHERE id = 1",
	).Scan(&running, &updated)
	if err != nil {
		return domain.BotState{}, fmt.Errorf("failed to read bot state: %w", err)
	}
	return domain.BotState{
		IsRunning:  running != 0,
		LastUpdate: time.UnixMilli(updated).UTC(),
	}, nil
}

// SetRunning updates the control flag. Written only by the orchestrator's
// start/stop operations (or the dashboard toggle on its behalf).
func (s *Store) SetRunning(ctx context.Context, running bool) error {
	v := 0
	if running {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE bot_state SET is_running = ?, last_update = ? WHERE id = 1",
		v, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to update bot state: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const tradeColumns = "id, symbol, side, strategy, entry_price, quantity, stop_loss, take_profit, status, entry_time, exit_time, exit_price, pnl"

func (s *Store) tradeByID(ctx context.Context, id int64) (*domain.Trade, error) {
	rows, err := s.queryTrades(ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) queryTrades(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		var entryTime int64
		var exitTime sql.NullInt64
		var exitPrice, pnl sql.NullFloat64

		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Strategy,
			&t.EntryPrice, &t.Quantity, &t.StopLoss, &t.TakeProfit,
			&t.Status, &entryTime, &exitTime, &exitPrice, &pnl); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		t.Side = domain.Direction(side)
		t.EntryTime = time.UnixMilli(entryTime).UTC()
		if exitTime.Valid {
			t.ExitTime = time.UnixMilli(exitTime.Int64).UTC()
		}
		t.ExitPrice = exitPrice.Float64
		t.PnL = pnl.Float64
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

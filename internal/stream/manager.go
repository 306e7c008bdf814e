// Package stream maintains the live market data feed: one websocket
// connection carrying kline updates for every traded symbol, a per-symbol
// candle cache, and a channel of candle close events for the orchestrator.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/infra"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Degraded // reconnect budget exhausted, feed is dead until restart
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	case Degraded:
		return "DEGRADED"
	default:
		return "UNKNOWN"
	}
}

// CandleClose is emitted on the Events channel when a candle closes.
type CandleClose struct {
	Symbol string
	Candle domain.Candle
}

// Config for the stream manager.
type Config struct {
	URL            string // websocket base, e.g. wss://fstream.binance.com
	Interval       string // kline interval, e.g. "5m"
	Symbols        []string
	EventBuffer    int           // candle close channel capacity
	ReconnectDelay time.Duration // fixed delay between reconnect attempts
	MaxReconnects  int           // attempts before giving up as Degraded
	ConnectTimeout time.Duration // initial connect wait in Subscribe
}

func (c *Config) applyDefaults() {
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 10
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Manager owns the websocket connection and the candle caches.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	state   State
	windows map[string]*domain.CandleWindow
	prices  map[string]float64

	events    chan CandleClose
	connected chan struct{} // closed on first successful connect
	connOnce  sync.Once

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a stream manager for the configured symbols.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	windows := make(map[string]*domain.CandleWindow, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		windows[s] = domain.NewCandleWindow(domain.WindowCapacity)
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "stream")),
		state:     Disconnected,
		windows:   windows,
		prices:    make(map[string]float64, len(cfg.Symbols)),
		events:    make(chan CandleClose, cfg.EventBuffer),
		connected: make(chan struct{}),
	}
}

// Seed preloads a symbol's cache with historical candles, oldest first.
// Called once before Subscribe so strategies have warmup depth immediately.
func (m *Manager) Seed(symbol string, candles []domain.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[symbol]
	if !ok {
		return
	}
	for _, c := range candles {
		w.Append(c)
	}
}

// Subscribe starts the connection loop and waits for the first successful
// connect. It returns an error if the feed cannot be established in time;
// the loop keeps retrying in the background either way.
func (m *Manager) Subscribe(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.runLoop(runCtx)

	select {
	case <-m.connected:
		return nil
	case <-time.After(m.cfg.ConnectTimeout):
		return fmt.Errorf("stream not connected after %s", m.cfg.ConnectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the candle close channel. Events are dropped, not queued
// indefinitely, when the consumer falls behind.
func (m *Manager) Events() <-chan CandleClose {
	return m.events
}

// Ready reports whether symbol has enough cached candles to evaluate.
// A degraded feed is never ready: its cache is stale by definition.
func (m *Manager) Ready(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == Degraded {
		return false
	}
	w, ok := m.windows[symbol]
	return ok && w.Len() >= domain.WarmupLength
}

// Candles returns a copy of the cached candles for symbol, oldest first.
func (m *Manager) Candles(symbol string) []domain.Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[symbol]
	if !ok {
		return nil
	}
	return w.Candles()
}

// CurrentPrice returns the latest observed price for symbol, closed candle
// or not, and whether one has been seen.
func (m *Manager) CurrentPrice(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prices[symbol]
	return p, ok
}

// ConnState returns the connection state for monitoring.
func (m *Manager) ConnState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Close stops the connection loop and waits for it to exit.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// healthyConnDuration is how long a connection must stay up before the
// reconnect budget resets. An endpoint that accepts the upgrade and drops
// immediately keeps burning the budget down until the feed goes Degraded.
const healthyConnDuration = time.Minute

var errConnDropped = errors.New("connection dropped")

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()
	attempts := 0
	m.setState(Connecting)

	for {
		select {
		case <-ctx.Done():
			m.setState(Disconnected)
			return
		default:
		}

		conn, err := m.dial(ctx)
		if err != nil {
			if !m.retry(ctx, &attempts, err) {
				return
			}
			continue
		}

		m.setState(Connected)
		m.connOnce.Do(func() { close(m.connected) })
		m.logger.Info("stream connected", slog.Int("symbols", len(m.cfg.Symbols)))

		connectedAt := time.Now()
		m.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			m.setState(Disconnected)
			return
		}
		if time.Since(connectedAt) >= healthyConnDuration {
			attempts = 0
		}
		if !m.retry(ctx, &attempts, errConnDropped) {
			return
		}
	}
}

// retry charges one failed attempt against the reconnect budget and waits
// the fixed delay. It returns false when the budget is exhausted or the
// context is cancelled, leaving the manager Degraded or Disconnected.
func (m *Manager) retry(ctx context.Context, attempts *int, err error) bool {
	*attempts++
	if *attempts > m.cfg.MaxReconnects {
		m.setState(Degraded)
		m.logger.Error("stream degraded, reconnect attempts exhausted",
			slog.Int("attempts", *attempts-1))
		return false
	}
	m.setState(Reconnecting)
	infra.StreamReconnects.Inc()
	m.logger.Warn("stream reconnecting",
		slog.Int("attempt", *attempts),
		slog.Any("error", err))
	select {
	case <-ctx.Done():
		m.setState(Disconnected)
		return false
	case <-time.After(m.cfg.ReconnectDelay):
		return true
	}
}

// streamURL builds the combined kline stream path for all symbols.
func (m *Manager) streamURL() string {
	parts := make([]string, 0, len(m.cfg.Symbols))
	for _, s := range m.cfg.Symbols {
		parts = append(parts, strings.ToLower(s)+"@kline_"+m.cfg.Interval)
	}
	return m.cfg.URL + "/stream?streams=" + strings.Join(parts, "/")
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, m.streamURL(), nil)
	return conn, err
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("stream read error", slog.Any("error", err))
			}
			return
		}
		m.handleMessage(msg)
	}
}

// combinedMessage is the combined stream envelope.
type combinedMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Kline  struct {
			OpenTime int64  `json:"t"`
			Open     string `json:"o"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Volume   string `json:"v"`
			IsClosed bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (m *Manager) handleMessage(msg []byte) {
	var env combinedMessage
	if err := json.Unmarshal(msg, &env); err != nil {
		m.logger.Warn("stream message decode failed", slog.Any("error", err))
		return
	}
	if env.Data.Event != "kline" {
		return
	}

	k := env.Data.Kline
	candle, err := parseKline(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		m.logger.Warn("stream kline parse failed",
			slog.String("symbol", env.Data.Symbol),
			slog.Any("error", err))
		return
	}
	symbol := env.Data.Symbol

	m.mu.Lock()
	m.prices[symbol] = candle.Close
	if k.IsClosed {
		if w, ok := m.windows[symbol]; ok {
			w.Append(candle)
		}
	}
	m.mu.Unlock()

	if !k.IsClosed {
		return
	}
	infra.CandlesTotal.WithLabelValues(symbol).Inc()

	select {
	case m.events <- CandleClose{Symbol: symbol, Candle: candle}:
	default:
		infra.DroppedEvents.Inc()
		m.logger.Warn("candle close event dropped", slog.String("symbol", symbol))
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.logger.Info("stream state change",
			slog.String("from", prev.String()),
			slog.String("to", s.String()))
	}
}

func parseKline(openMs int64, open, high, low, clos, volume string) (domain.Candle, error) {
	fields := [5]float64{}
	for i, s := range []string{open, high, low, clos, volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("invalid kline field %q: %w", s, err)
		}
		fields[i] = v
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

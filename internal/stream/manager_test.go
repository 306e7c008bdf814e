package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chhaycheu1/future/internal/domain"
)

// createMockWSServer serves the combined stream path with the given
// per-connection handler.
func createMockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func klineMessage(symbol string, openMs int64, close string, isClosed bool) []byte {
	return []byte(fmt.Sprintf(
		`{"stream":"%s@kline_5m","data":{"e":"kline","s":"%s","k":{"t":%d,"o":"100","h":"101","l":"99","c":%q,"v":"1000","x":%t}}}`,
		strings.ToLower(symbol), symbol, openMs, close, isClosed))
}

func newTestManager(t *testing.T, serverURL string, buffer int) *Manager {
	t.Helper()
	return NewManager(Config{
		URL:            httpToWS(serverURL),
		Interval:       "5m",
		Symbols:        []string{"BTCUSDT"},
		EventBuffer:    buffer,
		ReconnectDelay: 20 * time.Millisecond,
		MaxReconnects:  3,
		ConnectTimeout: 2 * time.Second,
	}, slog.Default())
}

func TestManager_StreamURL(t *testing.T) {
	m := NewManager(Config{
		URL:      "wss://fstream.binance.com",
		Interval: "5m",
		Symbols:  []string{"BTCUSDT", "ETHUSDT"},
	}, slog.Default())

	want := "wss://fstream.binance.com/stream?streams=btcusdt@kline_5m/ethusdt@kline_5m"
	if got := m.streamURL(); got != want {
		t.Errorf("streamURL() = %s, want %s", got, want)
	}
}

func TestManager_CandleCloseEvents(t *testing.T) {
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, klineMessage("BTCUSDT", 1700000000000, "104.5", true))
		conn.WriteMessage(websocket.TextMessage, klineMessage("BTCUSDT", 1700000300000, "105.1", false))
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	m := newTestManager(t, server.URL, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer m.Close()

	select {
	case ev := <-m.Events():
		if ev.Symbol != "BTCUSDT" {
			t.Errorf("Expected BTCUSDT event, got %s", ev.Symbol)
		}
		if ev.Candle.Close != 104.5 {
			t.Errorf("Expected close 104.5, got %v", ev.Candle.Close)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a candle close event")
	}

	// Only the closed candle lands in the cache; the forming one just
	// moves the current price.
	deadline := time.Now().Add(time.Second)
	for {
		if p, ok := m.CurrentPrice("BTCUSDT"); ok && p == 105.1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected current price from forming candle")
		}
		time.Sleep(10 * time.Millisecond)
	}
	candles := m.Candles("BTCUSDT")
	if len(candles) != 1 {
		t.Fatalf("Expected 1 cached candle, got %d", len(candles))
	}
	if candles[0].Close != 104.5 {
		t.Errorf("Cached candle mismatch: %+v", candles[0])
	}
}

func TestManager_ReadyRequiresWarmup(t *testing.T) {
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	m := newTestManager(t, server.URL, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer m.Close()

	if m.Ready("BTCUSDT") {
		t.Error("Expected not ready with empty cache")
	}

	seed := make([]domain.Candle, domain.WarmupLength)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range seed {
		seed[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:     100, High: 101, Low: 99, Close: 100, Volume: 1000,
		}
	}
	m.Seed("BTCUSDT", seed)

	if !m.Ready("BTCUSDT") {
		t.Error("Expected ready after seeding warmup depth")
	}
	if m.Ready("ETHUSDT") {
		t.Error("Unknown symbol must never be ready")
	}
}

func TestManager_DegradedAfterReconnectBudget(t *testing.T) {
	// Server that refuses the upgrade entirely.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer server.Close()

	m := NewManager(Config{
		URL:            httpToWS(server.URL),
		Interval:       "5m",
		Symbols:        []string{"BTCUSDT"},
		ReconnectDelay: 10 * time.Millisecond,
		MaxReconnects:  2,
		ConnectTimeout: 50 * time.Millisecond,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Subscribe(ctx); err == nil {
		t.Error("Expected Subscribe to time out with unreachable feed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.ConnState() != Degraded {
		if time.Now().After(deadline) {
			t.Fatalf("Expected DEGRADED, got %s", m.ConnState())
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.Close()

	// A degraded feed never reports ready, cache depth notwithstanding.
	seed := make([]domain.Candle, domain.WarmupLength)
	for i := range seed {
		seed[i] = domain.Candle{Close: 100}
	}
	m.Seed("BTCUSDT", seed)
	if m.Ready("BTCUSDT") {
		t.Error("Degraded feed must not be ready")
	}
}

func TestManager_FlappingConnectionBurnsReconnectBudget(t *testing.T) {
	// Server that accepts the upgrade and immediately closes. Every drop
	// must count toward the budget and wait the fixed delay before the
	// next dial, ending in DEGRADED rather than a hot redial loop.
	var dials atomic.Int64
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
	})
	defer server.Close()

	const (
		maxReconnects  = 2
		reconnectDelay = 30 * time.Millisecond
	)
	m := NewManager(Config{
		URL:            httpToWS(server.URL),
		Interval:       "5m",
		Symbols:        []string{"BTCUSDT"},
		ReconnectDelay: reconnectDelay,
		MaxReconnects:  maxReconnects,
		ConnectTimeout: 2 * time.Second,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	if err := m.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.ConnState() != Degraded {
		if time.Now().After(deadline) {
			t.Fatalf("Expected DEGRADED after flapping, got %s", m.ConnState())
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.Close()

	if got := dials.Load(); got != maxReconnects+1 {
		t.Errorf("Expected %d dials before degrading, got %d", maxReconnects+1, got)
	}
	if elapsed := time.Since(start); elapsed < maxReconnects*reconnectDelay {
		t.Errorf("Expected at least %v of reconnect delays, degraded after %v",
			maxReconnects*reconnectDelay, elapsed)
	}
}

func TestManager_DropsEventsWhenConsumerLags(t *testing.T) {
	const sent = 5
	server := createMockWSServer(t, func(conn *websocket.Conn) {
		for i := 0; i < sent; i++ {
			openMs := int64(1700000000000 + i*300000)
			conn.WriteMessage(websocket.TextMessage, klineMessage("BTCUSDT", openMs, "100", true))
		}
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	m := newTestManager(t, server.URL, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Nobody reads the events channel. The cache must still advance.
	deadline := time.Now().Add(2 * time.Second)
	for len(m.Candles("BTCUSDT")) < sent {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d cached candles, got %d", sent, len(m.Candles("BTCUSDT")))
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.Close()

	if got := len(m.Events()); got != 1 {
		t.Errorf("Expected exactly the buffered event to remain, got %d", got)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "DISCONNECTED"},
		{Connecting, "CONNECTING"},
		{Connected, "CONNECTED"},
		{Reconnecting, "RECONNECTING"},
		{Degraded, "DEGRADED"},
		{State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

package domain

import "time"

const (
	// WindowCapacity bounds the per-symbol candle cache. Oldest candles are
	// evicted once the capacity is exceeded.
	WindowCapacity = 250

	// WarmupLength is the minimum number of closed candles required before
	// indicators and strategies produce valid output.
	WarmupLength = 200
)

// Candle is a fixed-interval OHLCV summary. Immutable once closed.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// CandleWindow is an owned, append-only ring buffer of closed candles for a
// single symbol. Insertion order is significant; index 0 is always the oldest
// retained candle.
type CandleWindow struct {
	buf   []Candle
	head  int // next write position
	count int
}

// NewCandleWindow creates a window with the given capacity.
// Capacity values below 1 fall back to WindowCapacity.
func NewCandleWindow(capacity int) *CandleWindow {
	if capacity < 1 {
		capacity = WindowCapacity
	}
	return &CandleWindow{buf: make([]Candle, capacity)}
}

// Append adds a closed candle, evicting the oldest once full.
func (w *CandleWindow) Append(c Candle) {
	w.buf[w.head] = c
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of retained candles.
func (w *CandleWindow) Len() int { return w.count }

// At returns the candle at index i, where 0 is the oldest retained candle.
func (w *CandleWindow) At(i int) Candle {
	if i < 0 || i >= w.count {
		panic("domain: candle window index out of range")
	}
	if w.count < len(w.buf) {
		return w.buf[i]
	}
	return w.buf[(w.head+i)%len(w.buf)]
}

// Last returns the most recent candle, or false when empty.
func (w *CandleWindow) Last() (Candle, bool) {
	if w.count == 0 {
		return Candle{}, false
	}
	return w.At(w.count - 1), true
}

// Candles returns a copy of the window, oldest first. Callers may mutate
// the slice freely.
func (w *CandleWindow) Candles() []Candle {
	return w.Tail(w.count)
}

// Tail returns a copy of up to limit most recent candles,
// oldest first.
func (w *CandleWindow) Tail(limit int) []Candle {
	if limit > w.count {
		limit = w.count
	}
	if limit <= 0 {
		return nil
	}
	out := make([]Candle, limit)
	start := w.count - limit
	for i := 0; i < limit; i++ {
		out[i] = w.At(start + i)
	}
	return out
}

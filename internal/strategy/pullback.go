package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/indicator"
)

// TrendPullback is the pullback-and-bounce variant. It only trades in a
// favorable regime (enough volatility, trending EMAs, strong volume) and
// waits for price to retrace to the fast EMA or VWAP and bounce instead of
// chasing breakouts. It also rate-limits itself: per-symbol and global daily
// trade caps with a cooldown after consecutive losses.
type TrendPullback struct {
	risk RiskParams

	maxTradesPerSymbolDay int
	maxTradesPerDay       int
	lossStreakThreshold   int
	cooldown              time.Duration

	minATRPercentile  float64
	minEMACompression float64
	minVolumeStrength float64

	mu         sync.Mutex
	day        time.Time // midnight of the day the counters cover
	totalToday int
	perSymbol  map[string]int
	streaks    map[string]*lossStreak
}

type lossStreak struct {
	count int
	last  time.Time
}

// NewTrendPullback creates the pullback strategy with its frequency limits.
func NewTrendPullback(risk RiskParams) *TrendPullback {
	return &TrendPullback{
		risk:                  risk,
		maxTradesPerSymbolDay: 10,
		maxTradesPerDay:       50,
		lossStreakThreshold:   2,
		cooldown:              30 * time.Minute,
		minATRPercentile:      30,
		minEMACompression:     0.5,
		minVolumeStrength:     1.2,
		perSymbol:             make(map[string]int),
		streaks:               make(map[string]*lossStreak),
	}
}

func (s *TrendPullback) Name() string { return "TrendPullback" }

// rollDay resets the daily counters when the wall-clock date changes.
// Caller holds s.mu.
func (s *TrendPullback) rollDay(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if day.Equal(s.day) {
		return
	}
	s.day = day
	s.totalToday = 0
	s.perSymbol = make(map[string]int)
}

// canTrade checks the frequency limits and the loss-streak cooldown.
func (s *TrendPullback) canTrade(symbol string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollDay(now)
	if s.totalToday >= s.maxTradesPerDay {
		return false
	}
	if s.perSymbol[symbol] >= s.maxTradesPerSymbolDay {
		return false
	}
	if st, ok := s.streaks[symbol]; ok && st.count >= s.lossStreakThreshold {
		if now.Sub(st.last) < s.cooldown {
			return false
		}
	}
	return true
}

// RecordOpen increments the daily counters for an admitted trade.
func (s *TrendPullback) RecordOpen(symbol string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDay(at)
	s.totalToday++
	s.perSymbol[symbol]++
}

// RecordResult tracks consecutive losses per symbol for the cooldown.
func (s *TrendPullback) RecordResult(symbol string, pnl float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pnl < 0 {
		st, ok := s.streaks[symbol]
		if !ok {
			st = &lossStreak{}
			s.streaks[symbol] = st
		}
		st.count++
		st.last = at
		return
	}
	delete(s.streaks, symbol)
}

// regimeOK filters out low-volatility, compressed, or thin markets.
func (s *TrendPullback) regimeOK(w *indicator.EnrichedWindow, i int) bool {
	if w.ATRPercentile[i] < s.minATRPercentile || math.IsNaN(w.ATRPercentile[i]) {
		return false
	}
	if w.EMACompression[i] < s.minEMACompression {
		return false
	}
	return w.VolumeStrength[i] >= s.minVolumeStrength
}

// Analyze evaluates the latest closed candle.
func (s *TrendPullback) Analyze(w *indicator.EnrichedWindow, sctx Context) domain.Signal {
	if !warmedUp(w) {
		return domain.NoSignal(s.Name())
	}
	if !s.canTrade(sctx.Symbol, sctx.Now) {
		return domain.NoSignal(s.Name())
	}

	last := w.Len() - 1
	prev := last - 1
	c := w.Candles[last]
	p := w.Candles[prev]
	atr := w.ATR[last]

	if !s.regimeOK(w, last) || atr <= 0 {
		return domain.NoSignal(s.Name())
	}

	dir := domain.None

	if c.Close > w.EMATrend[last] &&
		w.EMAFast[last] > w.EMASlow[last] &&
		c.Close > w.VWAP[last] &&
		w.RSI[last] > 50 && w.RSI[last] < 65 {
		nearEMA := math.Abs(c.Close-w.EMAFast[last])/atr < 0.3
		bouncing := p.Close < w.EMAFast[prev] && c.Close >= w.EMAFast[last]
		vwapReclaim := p.Close < w.VWAP[prev] && c.Close > w.VWAP[last]
		if bouncing || (nearEMA && vwapReclaim) {
			dir = domain.Long
		}
	} else if c.Close < w.EMATrend[last] &&
		w.EMAFast[last] < w.EMASlow[last] &&
		c.Close < w.VWAP[last] &&
		w.RSI[last] < 50 && w.RSI[last] > 35 {
		nearEMA := math.Abs(c.Close-w.EMAFast[last])/atr < 0.3
		bouncing := p.Close > w.EMAFast[prev] && c.Close <= w.EMAFast[last]
		vwapRejection := p.Close > w.VWAP[prev] && c.Close < w.VWAP[last]
		if bouncing || (nearEMA && vwapRejection) {
			dir = domain.Short
		}
	}

	if dir == domain.None {
		return domain.NoSignal(s.Name())
	}

	// Volatility stop with a 0.5% floor so quiet markets still get a
	// tradeable distance. Wider targets in calmer regimes.
	entry := c.Close
	slDist := math.Max(atr*s.risk.StopLossATRMultiplier, entry*0.005)
	rr := 2.0
	if w.ATRPercentile[last] > 60 {
		rr = 1.5
	}

	sig := domain.Signal{Direction: dir, Entry: entry, Strategy: s.Name()}
	if dir == domain.Long {
		sig.StopLoss = entry - slDist
		sig.TakeProfit = entry + slDist*rr
	} else {
		sig.StopLoss = entry + slDist
		sig.TakeProfit = entry - slDist*rr
	}
	return sig
}

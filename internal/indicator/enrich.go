package indicator

import (
	"math"

	"github.com/chhaycheu1/future/internal/domain"
)

// Indicator lengths shared by every strategy.
const (
	FastEMALength  = 9
	SlowEMALength  = 21
	EMA20Length    = 20
	EMA50Length    = 50
	TrendEMALength = 200
	RSILength      = 14
	ATRLength      = 14
	VolMALength    = 20
	VolMASlowLen   = 50
	RegimeLookback = 100
)

// EnrichedWindow is a derived, disposable copy of a candle window plus the
// indicator series computed over it. It is never aliased back into a cache;
// index i in every series refers to Candles[i].
type EnrichedWindow struct {
	Candles []domain.Candle

	EMAFast  []float64
	EMASlow  []float64
	EMA20    []float64
	EMA50    []float64
	EMATrend []float64

	RSI  []float64
	ATR  []float64
	VWAP []float64

	VolMA     []float64
	VolMASlow []float64

	ATRPercentile  []float64
	EMACompression []float64
	VolumeStrength []float64
}

// Len returns the number of candles in the window.
func (e *EnrichedWindow) Len() int { return len(e.Candles) }

// Enrich computes every derived series from the given closed candles.
// It is a pure transform: no I/O, no shared state. An empty input yields an
// empty result with no derived fields.
func Enrich(candles []domain.Candle) *EnrichedWindow {
	e := &EnrichedWindow{Candles: candles}
	if len(candles) == 0 {
		return e
	}

	n := len(candles)
	high := make([]float64, n)
	low := make([]float64, n)
	closeP := make([]float64, n)
	volume := make([]float64, n)
	for i, c := range candles {
		high[i], low[i], closeP[i], volume[i] = c.High, c.Low, c.Close, c.Volume
	}

	e.EMAFast = EMA(closeP, FastEMALength)
	e.EMASlow = EMA(closeP, SlowEMALength)
	e.EMA20 = EMA(closeP, EMA20Length)
	e.EMA50 = EMA(closeP, EMA50Length)
	e.EMATrend = EMA(closeP, TrendEMALength)

	e.RSI = RSI(closeP, RSILength)
	e.ATR = ATR(high, low, closeP, ATRLength)
	e.VWAP = VWAP(high, low, closeP, volume)

	e.VolMA = SMA(volume, VolMALength)
	e.VolMASlow = SMA(volume, VolMASlowLen)

	e.ATRPercentile = PercentileRank(e.ATR, RegimeLookback)
	e.EMACompression = compression(e.EMAFast, e.EMASlow, e.ATR)
	e.VolumeStrength = ratio(e.VolMA, e.VolMASlow, 1)

	return e
}

// compression measures EMA spread in ATR units. Zero ATR collapses the
// reading to 0 (fully compressed) rather than infinity.
func compression(fast, slow, atr []float64) []float64 {
	out := make([]float64, len(fast))
	for i := range fast {
		if atr[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = math.Abs(fast[i]-slow[i]) / atr[i]
	}
	return out
}

// ratio divides num by den element-wise, substituting fallback for a zero
// denominator.
func ratio(num, den []float64, fallback float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		if den[i] == 0 {
			out[i] = fallback
			continue
		}
		out[i] = num[i] / den[i]
	}
	return out
}

package strategy

import (
	"math"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/indicator"
)

// MeanReversion is the divergence variant. It fades extreme deviations from
// VWAP in ranging markets, confirmed by an RSI divergence and drying volume,
// and targets a return to VWAP.
type MeanReversion struct {
	deviationATR       float64
	maxADX             float64
	volumeDeclineRatio float64
	minRR              float64
	divergenceLookback int
}

// NewMeanReversion creates the divergence strategy.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{
		deviationATR:       2.0,
		maxADX:             25,
		volumeDeclineRatio: 0.7,
		minRR:              2.0,
		divergenceLookback: 5,
	}
}

func (s *MeanReversion) Name() string { return "MeanReversion" }

// bullishDivergence reports a lower price low with a higher RSI low over the
// last two candles of the lookback span.
func bullishDivergence(w *indicator.EnrichedWindow, last, lookback int) bool {
	if last < lookback {
		return false
	}
	priceLowerLow := w.Candles[last].Low < w.Candles[last-1].Low
	rsiHigherLow := w.RSI[last] > w.RSI[last-1]
	return priceLowerLow && rsiHigherLow
}

// bearishDivergence reports a higher price high with a lower RSI high.
func bearishDivergence(w *indicator.EnrichedWindow, last, lookback int) bool {
	if last < lookback {
		return false
	}
	priceHigherHigh := w.Candles[last].High > w.Candles[last-1].High
	rsiLowerHigh := w.RSI[last] < w.RSI[last-1]
	return priceHigherHigh && rsiLowerHigh
}

// Analyze evaluates the latest closed candle.
func (s *MeanReversion) Analyze(w *indicator.EnrichedWindow, sctx Context) domain.Signal {
	if !warmedUp(w) {
		return domain.NoSignal(s.Name())
	}

	last := w.Len() - 1
	c := w.Candles[last]
	atr := w.ATR[last]
	if atr <= 0 {
		return domain.NoSignal(s.Name())
	}

	// Only fade in ranging markets.
	n := w.Len()
	high := make([]float64, n)
	low := make([]float64, n)
	closeP := make([]float64, n)
	for i, cd := range w.Candles {
		high[i], low[i], closeP[i] = cd.High, cd.Low, cd.Close
	}
	adx := indicator.ADX(high, low, closeP, 14)
	if v := adx[last]; !math.IsNaN(v) && v > s.maxADX {
		return domain.NoSignal(s.Name())
	}

	vwapDistance := (c.Close - w.VWAP[last]) / atr
	volumeDeclining := c.Volume < w.VolMA[last]*s.volumeDeclineRatio

	if vwapDistance < -s.deviationATR {
		if bullishDivergence(w, last, s.divergenceLookback) &&
			volumeDeclining && w.RSI[last] < 30 {
			entry := c.Close
			stop := lowest(low[last-9:last+1]) - atr*0.5
			target := w.VWAP[last]
			// Widen, never narrow, to the minimum reward:risk.
			minTP := entry + (entry-stop)*s.minRR
			if target < minTP {
				target = minTP
			}
			return domain.Signal{
				Direction: domain.Long, Entry: entry,
				StopLoss: stop, TakeProfit: target, Strategy: s.Name(),
			}
		}
		return domain.NoSignal(s.Name())
	}

	if vwapDistance > s.deviationATR {
		if bearishDivergence(w, last, s.divergenceLookback) &&
			volumeDeclining && w.RSI[last] > 70 {
			entry := c.Close
			stop := highest(high[last-9:last+1]) + atr*0.5
			target := w.VWAP[last]
			minTP := entry - (stop-entry)*s.minRR
			if target > minTP {
				target = minTP
			}
			return domain.Signal{
				Direction: domain.Short, Entry: entry,
				StopLoss: stop, TakeProfit: target, Strategy: s.Name(),
			}
		}
	}

	return domain.NoSignal(s.Name())
}

func lowest(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func highest(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

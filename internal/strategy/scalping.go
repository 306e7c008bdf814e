package strategy

import (
	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/indicator"
)

// Scalping is the crossover variant: trades in the direction of the long
// trend when a fast/slow EMA cross or a price/fast-EMA cross fires with
// momentum and volume confirmation. Targets are tight (1.2R) because
// winners close fast on low timeframes.
type Scalping struct {
	risk RiskParams

	minRSILong  float64
	maxRSIShort float64
	tpRR        float64
}

// NewScalping creates the crossover strategy.
func NewScalping(risk RiskParams) *Scalping {
	return &Scalping{
		risk:        risk,
		minRSILong:  52,
		maxRSIShort: 48,
		tpRR:        1.2,
	}
}

func (s *Scalping) Name() string { return "Scalping" }

// Analyze evaluates the latest closed candle.
func (s *Scalping) Analyze(w *indicator.EnrichedWindow, sctx Context) domain.Signal {
	if !warmedUp(w) {
		return domain.NoSignal(s.Name())
	}

	last := w.Len() - 1
	prev := last - 1
	c := w.Candles[last]

	dir := domain.None

	longFilter := c.Close > w.EMATrend[last] &&
		c.Close > w.VWAP[last] &&
		w.EMAFast[last] > w.EMASlow[last] &&
		w.RSI[last] > s.minRSILong &&
		c.Volume > w.VolMA[last]

	if longFilter {
		crossUp := w.EMAFast[prev] <= w.EMASlow[prev] && w.EMAFast[last] > w.EMASlow[last]
		priceCrossUp := w.Candles[prev].Close <= w.EMAFast[prev] && c.Close > w.EMAFast[last]
		if crossUp || priceCrossUp {
			dir = domain.Long
		}
	}

	if dir == domain.None {
		shortFilter := c.Close < w.EMATrend[last] &&
			c.Close < w.VWAP[last] &&
			w.EMAFast[last] < w.EMASlow[last] &&
			w.RSI[last] < s.maxRSIShort &&
			c.Volume > w.VolMA[last]

		if shortFilter {
			crossDown := w.EMAFast[prev] >= w.EMASlow[prev] && w.EMAFast[last] < w.EMASlow[last]
			priceCrossDown := w.Candles[prev].Close >= w.EMAFast[prev] && c.Close < w.EMAFast[last]
			if crossDown || priceCrossDown {
				dir = domain.Short
			}
		}
	}

	if dir == domain.None {
		return domain.NoSignal(s.Name())
	}

	atr := w.ATR[last]
	slDist := atr * s.risk.StopLossATRMultiplier
	if slDist <= 0 {
		return domain.NoSignal(s.Name())
	}

	sig := domain.Signal{Direction: dir, Entry: c.Close, Strategy: s.Name()}
	if dir == domain.Long {
		sig.StopLoss = sig.Entry - slDist
		sig.TakeProfit = sig.Entry + slDist*s.tpRR
	} else {
		sig.StopLoss = sig.Entry + slDist
		sig.TakeProfit = sig.Entry - slDist*s.tpRR
	}
	return sig
}

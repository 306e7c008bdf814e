package strategy

import (
	"math"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/indicator"
)

// LiquidityGrab is the sweep variant. It trades the reversal after a stop
// hunt: a wick pierces a clustered support or resistance level, the candle
// closes back inside with a strong recovery, and volume spikes.
type LiquidityGrab struct {
	levelLookback     int
	levelTolerance    float64 // fraction of average price
	minTouches        int
	sweepThresholdATR float64
	volumeSurge       float64
	minRR             float64
}

// NewLiquidityGrab creates the sweep strategy.
func NewLiquidityGrab() *LiquidityGrab {
	return &LiquidityGrab{
		levelLookback:     50,
		levelTolerance:    0.002,
		minTouches:        2,
		sweepThresholdATR: 0.3,
		volumeSurge:       1.5,
		minRR:             2.0,
	}
}

func (s *LiquidityGrab) Name() string { return "LiquidityGrab" }

// keyLevels returns the clustered support and resistance levels over the
// lookback span: prices touched at least minTouches times within tolerance.
func (s *LiquidityGrab) keyLevels(w *indicator.EnrichedWindow) (support, resistance []float64) {
	n := w.Len()
	start := n - s.levelLookback
	if start < 0 {
		start = 0
	}

	var avg float64
	for i := start; i < n; i++ {
		avg += w.Candles[i].Close
	}
	avg /= float64(n - start)
	tolerance := avg * s.levelTolerance

	seen := make(map[float64]bool)
	for i := start; i < n; i++ {
		level := math.Round(w.Candles[i].High*100) / 100
		if seen[level] {
			continue
		}
		seen[level] = true
		touches := 0
		for j := start; j < n; j++ {
			if math.Abs(w.Candles[j].High-level) <= tolerance {
				touches++
			}
		}
		if touches >= s.minTouches {
			resistance = append(resistance, level)
		}
	}

	seen = make(map[float64]bool)
	for i := start; i < n; i++ {
		level := math.Round(w.Candles[i].Low*100) / 100
		if seen[level] {
			continue
		}
		seen[level] = true
		touches := 0
		for j := start; j < n; j++ {
			if math.Abs(w.Candles[j].Low-level) <= tolerance {
				touches++
			}
		}
		if touches >= s.minTouches {
			support = append(support, level)
		}
	}
	return support, resistance
}

func nearestLevel(price float64, levels []float64) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	best := levels[0]
	for _, l := range levels[1:] {
		if math.Abs(l-price) < math.Abs(best-price) {
			best = l
		}
	}
	return best, true
}

// bullishSweep: wick below support, close back above it, bullish close with
// at least 70% recovery of the candle range.
func (s *LiquidityGrab) bullishSweep(c domain.Candle, support, atr float64) bool {
	threshold := atr * s.sweepThresholdATR
	wickSwept := c.Low < support-threshold
	closedAbove := c.Close > support
	bullishClose := c.Close > c.Open
	rng := c.High - c.Low
	strongRecovery := rng > 0 && (c.Close-c.Low) > rng*0.7
	return wickSwept && closedAbove && bullishClose && strongRecovery
}

// bearishSweep mirrors bullishSweep against resistance.
func (s *LiquidityGrab) bearishSweep(c domain.Candle, resistance, atr float64) bool {
	threshold := atr * s.sweepThresholdATR
	wickSwept := c.High > resistance+threshold
	closedBelow := c.Close < resistance
	bearishClose := c.Close < c.Open
	rng := c.High - c.Low
	strongRejection := rng > 0 && (c.High-c.Close) > rng*0.7
	return wickSwept && closedBelow && bearishClose && strongRejection
}

// Analyze evaluates the latest closed candle.
func (s *LiquidityGrab) Analyze(w *indicator.EnrichedWindow, sctx Context) domain.Signal {
	if !warmedUp(w) {
		return domain.NoSignal(s.Name())
	}

	last := w.Len() - 1
	c := w.Candles[last]
	atr := w.ATR[last]
	if atr <= 0 {
		return domain.NoSignal(s.Name())
	}

	support, resistance := s.keyLevels(w)
	if len(support) == 0 && len(resistance) == 0 {
		return domain.NoSignal(s.Name())
	}

	volumeSpike := c.Volume > w.VolMA[last]*s.volumeSurge

	if sup, ok := nearestLevel(c.Close, support); ok && volumeSpike && s.bullishSweep(c, sup, atr) {
		entry := c.Close
		stop := c.Low - atr*s.sweepThresholdATR

		// Target the opposite side of the range, widened to the minimum R:R.
		target := entry + (entry-stop)*s.minRR
		if len(resistance) > 0 {
			if r := lowest(resistance); r > target {
				target = r
			}
		}
		return domain.Signal{
			Direction: domain.Long, Entry: entry,
			StopLoss: stop, TakeProfit: target, Strategy: s.Name(),
		}
	}

	if res, ok := nearestLevel(c.Close, resistance); ok && volumeSpike && s.bearishSweep(c, res, atr) {
		entry := c.Close
		stop := c.High + atr*s.sweepThresholdATR

		target := entry - (stop-entry)*s.minRR
		if len(support) > 0 {
			if sp := highest(support); sp < target {
				target = sp
			}
		}
		return domain.Signal{
			Direction: domain.Short, Entry: entry,
			StopLoss: stop, TakeProfit: target, Strategy: s.Name(),
		}
	}

	return domain.NoSignal(s.Name())
}

// Package indicator derives technical series from raw candle windows.
// All functions are pure; values that lack enough history are NaN.
package indicator

import "math"

var nan = math.NaN()

// EMA computes a recursive exponential moving average seeded on the first
// value, with smoothing alpha = 2/(length+1).
func EMA(values []float64, length int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(length) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA computes a simple moving average; NaN until length samples exist.
// A NaN inside the window yields NaN for that position only, so series with
// NaN warmup prefixes recover once the prefix slides out.
func SMA(values []float64, length int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < length-1 {
			out[i] = nan
			continue
		}
		var sum float64
		for j := i - length + 1; j <= i; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(length)
	}
	return out
}

// RSI computes the Wilder-smoothed relative strength index. The average gain
// and loss use alpha = 1/length; output is NaN until length deltas exist.
// A flat series (no gains, no losses) reads as neutral 50.
func RSI(values []float64, length int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = nan
	}
	if len(values) < 2 {
		return out
	}

	alpha := 1.0 / float64(length)
	var avgGain, avgLoss float64
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else if delta < 0 {
			loss = -delta
		}
		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}
		if i < length {
			continue
		}
		switch {
		case avgGain == 0 && avgLoss == 0:
			out[i] = 50
		case avgLoss == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgGain/avgLoss)
		}
	}
	return out
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
// The first element has no previous close and degrades to high-low.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		tr := high[i] - low[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(high[i]-close[i-1]))
			tr = math.Max(tr, math.Abs(low[i]-close[i-1]))
		}
		out[i] = tr
	}
	return out
}

// ATR computes the EMA-smoothed average true range.
func ATR(high, low, close []float64, length int) []float64 {
	return EMA(TrueRange(high, low, close), length)
}

// VWAP computes the cumulative volume-weighted average price, accumulated
// from the start of the window. There is no daily reset: the anchor is the
// oldest retained candle.
func VWAP(high, low, close, volume []float64) []float64 {
	out := make([]float64, len(close))
	var cumPV, cumV float64
	for i := range close {
		typical := (high[i] + low[i] + close[i]) / 3
		cumPV += typical * volume[i]
		cumV += volume[i]
		if cumV == 0 {
			out[i] = nan
			continue
		}
		out[i] = cumPV / cumV
	}
	return out
}

// PercentileRank computes, for each position, the percentage of values in
// the trailing lookback window that are at or below the latest value.
// NaN until lookback samples exist.
func PercentileRank(values []float64, lookback int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < lookback-1 {
			out[i] = nan
			continue
		}
		latest := values[i]
		count := 0
		for j := i - lookback + 1; j <= i; j++ {
			if latest >= values[j] {
				count++
			}
		}
		out[i] = float64(count) / float64(lookback) * 100
	}
	return out
}

// ADX computes a rolling-mean approximation of the average directional
// index over the given period. Low readings (< 25) indicate a ranging
// market.
func ADX(high, low, close []float64, period int) []float64 {
	n := len(close)
	tr := TrueRange(high, low, close)
	atr := SMA(tr, period)

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	plusMA := SMA(plusDM, period)
	minusMA := SMA(minusDM, period)

	dx := make([]float64, n)
	for i := range dx {
		if atr[i] == 0 || math.IsNaN(atr[i]) {
			dx[i] = nan
			continue
		}
		plusDI := 100 * plusMA[i] / atr[i]
		minusDI := 100 * minusMA[i] / atr[i]
		sum := plusDI + minusDI
		if sum == 0 || math.IsNaN(sum) {
			dx[i] = nan
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}
	return SMA(dx, period)
}

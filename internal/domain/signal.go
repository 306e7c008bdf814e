package domain

import "fmt"

// Direction is the side of a trading signal or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	None  Direction = "NONE"
)

// Signal is the output of a strategy evaluation. A NONE signal carries no
// price fields.
type Signal struct {
	Direction  Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Strategy   string
}

// NoSignal returns the empty signal for the given strategy.
func NoSignal(strategy string) Signal {
	return Signal{Direction: None, Strategy: strategy}
}

// Validate checks the price-ordering invariant:
// LONG requires stopLoss < entry < takeProfit, SHORT the reverse.
func (s Signal) Validate() error {
	switch s.Direction {
	case None:
		return nil
	case Long:
		if !(s.StopLoss < s.Entry && s.Entry < s.TakeProfit) {
			return fmt.Errorf("invalid LONG signal from %s: sl=%.8f entry=%.8f tp=%.8f",
				s.Strategy, s.StopLoss, s.Entry, s.TakeProfit)
		}
	case Short:
		if !(s.TakeProfit < s.Entry && s.Entry < s.StopLoss) {
			return fmt.Errorf("invalid SHORT signal from %s: tp=%.8f entry=%.8f sl=%.8f",
				s.Strategy, s.TakeProfit, s.Entry, s.StopLoss)
		}
	default:
		return fmt.Errorf("unknown signal direction %q", s.Direction)
	}
	return nil
}

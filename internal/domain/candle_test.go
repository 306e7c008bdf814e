package domain

import (
	"testing"
	"time"
)

func mkCandle(i int, close float64) Candle {
	return Candle{
		OpenTime: time.Unix(int64(i)*60, 0),
		Open:     close,
		High:     close,
		Low:      close,
		Close:    close,
		Volume:   1,
	}
}

func TestCandleWindow_AppendAndEvict(t *testing.T) {
	w := NewCandleWindow(3)

	for i := 0; i < 5; i++ {
		w.Append(mkCandle(i, float64(i)))
	}

	if w.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", w.Len())
	}

	// Oldest two were evicted; window should hold closes 2, 3, 4.
	want := []float64{2, 3, 4}
	for i, wc := range want {
		if got := w.At(i).Close; got != wc {
			t.Errorf("At(%d).Close = %v, want %v", i, got, wc)
		}
	}

	last, ok := w.Last()
	if !ok || last.Close != 4 {
		t.Errorf("Last() = %v, %v; want close 4", last.Close, ok)
	}
}

func TestCandleWindow_TailIsCopy(t *testing.T) {
	w := NewCandleWindow(4)
	for i := 0; i < 4; i++ {
		w.Append(mkCandle(i, float64(i)))
	}

	tail := w.Tail(2)
	if len(tail) != 2 || tail[0].Close != 2 || tail[1].Close != 3 {
		t.Fatalf("Tail(2) = %v", tail)
	}

	// Mutating the copy must not touch the window.
	tail[0].Close = 99
	if w.At(2).Close != 2 {
		t.Error("Tail returned aliased storage")
	}

	if got := w.Tail(0); got != nil {
		t.Errorf("Tail(0) = %v, want nil", got)
	}
	if got := w.Tail(10); len(got) != 4 {
		t.Errorf("Tail(10) len = %d, want 4", len(got))
	}
}

func TestSignal_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sig     Signal
		wantErr bool
	}{
		{"none", NoSignal("x"), false},
		{"long ok", Signal{Direction: Long, Entry: 100, StopLoss: 98, TakeProfit: 103}, false},
		{"long inverted", Signal{Direction: Long, Entry: 100, StopLoss: 101, TakeProfit: 103}, true},
		{"short ok", Signal{Direction: Short, Entry: 100, StopLoss: 102, TakeProfit: 97}, false},
		{"short inverted", Signal{Direction: Short, Entry: 100, StopLoss: 99, TakeProfit: 97}, true},
		{"unknown", Signal{Direction: "SIDEWAYS"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.sig.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

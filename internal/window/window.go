// Package window provides a fixed-capacity rolling window of candles.
// It backs the pattern detector's lookback: once full, each push evicts the
// oldest candle. Single-goroutine usage, no locks.
package window

import "pattern-traderv1/internal/model"

// Window is a circular buffer of the most recent candles.
type Window struct {
	buf   []model.Candle
	start int // index of the oldest element
	n     int
}

// New creates a window holding at most capacity candles. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.Candle, capacity)}
}

// Push appends a candle, evicting the oldest when the window is full.
func (w *Window) Push(c model.Candle) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = c
		w.n++
		return
	}
	w.buf[w.start] = c
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of candles currently held.
func (w *Window) Len() int { return w.n }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// At returns the candle i positions from the oldest (At(0) = oldest,
// At(Len()-1) = newest). Panics on out-of-range, like a slice.
func (w *Window) At(i int) model.Candle {
	if i < 0 || i >= w.n {
		panic("window: index out of range")
	}
	return w.buf[(w.start+i)%len(w.buf)]
}

// FromEnd returns the candle i positions from the newest (FromEnd(0) = newest).
func (w *Window) FromEnd(i int) model.Candle {
	return w.At(w.n - 1 - i)
}

// Last returns the newest candle and false if the window is empty.
func (w *Window) Last() (model.Candle, bool) {
	if w.n == 0 {
		return model.Candle{}, false
	}
	return w.At(w.n - 1), true
}

// Tail copies the newest n candles into a fresh slice, oldest first.
// Returns fewer when the window holds fewer.
func (w *Window) Tail(n int) []model.Candle {
	if n > w.n {
		n = w.n
	}
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = w.At(w.n - n + i)
	}
	return out
}

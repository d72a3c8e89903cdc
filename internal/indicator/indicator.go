// Package indicator provides technical indicator calculations over candle data.
//
// Value-based indicators (SMA, EMA, RSI, MACD, Bollinger) consume a single
// float64 series; ATR consumes full candles. All updates are O(1) or
// O(period) with no history scans, and every indicator is a pure function of
// the values it has been fed: recomputing from scratch over the same series
// yields the same result as incremental updates.
package indicator

// Value is the common shape of a series-fed indicator.
type Value interface {
	// Update feeds the next value of the series and recalculates.
	Update(v float64)

	// Value returns the current calculated value. 0 until Ready.
	Value() float64

	// Ready returns true once enough data has been accumulated.
	Ready() bool
}

// Package model defines the shared domain types: candles, positions, trades
// and the engine's output events.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Candle represents one OHLCV bar for a single instrument and timeframe.
// Prices are float64 (crypto pairs trade at fractional ticks). Immutable
// once produced.
type Candle struct {
	OpenTime time.Time `json:"open_time"` // bucket start (UTC, timeframe-aligned)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Body returns the absolute size of the candle body.
func (c Candle) Body() float64 {
	b := c.Close - c.Open
	if b < 0 {
		return -b
	}
	return b
}

// Range returns high − low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Input-contract violations. Both are fatal: indicator math assumes strictly
// increasing, regularly spaced candles, so the engine refuses to process a
// sequence that breaks either.
var (
	ErrOutOfOrder = errors.New("candle open_time not after previous candle")
	ErrGap        = errors.New("candle open_time skips one or more timeframe buckets")
)

// ValidateNext checks that next follows prev at exactly one timeframe step.
// prev may be the zero Candle for the first bar of a sequence.
func ValidateNext(prev, next Candle, tf time.Duration) error {
	if prev.OpenTime.IsZero() {
		return nil
	}
	if !next.OpenTime.After(prev.OpenTime) {
		return fmt.Errorf("%w: prev=%s next=%s",
			ErrOutOfOrder, prev.OpenTime.Format(time.RFC3339), next.OpenTime.Format(time.RFC3339))
	}
	if want := prev.OpenTime.Add(tf); !next.OpenTime.Equal(want) {
		return fmt.Errorf("%w: want=%s got=%s",
			ErrGap, want.Format(time.RFC3339), next.OpenTime.Format(time.RFC3339))
	}
	return nil
}

// DayKey returns the UTC calendar day of the candle, used for daily
// trade/loss counters.
func (c Candle) DayKey() string {
	return c.OpenTime.UTC().Format("2006-01-02")
}

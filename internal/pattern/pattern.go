// Package pattern classifies the current indicator snapshot plus recent
// candles into at most one trading signal.
//
// Matchers are evaluated in a fixed priority order (trend pullback,
// breakout, mean reversion, momentum) and evaluation stops at the first
// match. Trend-following setups are considered more reliable than the
// momentum catch-all, and stopping at the first match prevents one market
// move from being counted as two independent signals.
package pattern

import (
	"pattern-traderv1/internal/indicator"
	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/window"
)

// Kind identifies the detected chart pattern.
type Kind string

const (
	KindNone          Kind = "none"
	KindTrendPullback Kind = "trend_pullback"
	KindBreakout      Kind = "breakout"
	KindMeanReversion Kind = "mean_reversion"
	KindMomentum      Kind = "momentum"
)

// Signal is the detector's output. Kind == KindNone means no action this
// cycle.
type Signal struct {
	Kind       Kind            `json:"kind"`
	Direction  model.Direction `json:"direction"`
	Confidence float64         `json:"confidence"`
	Index      int             `json:"index"` // triggering candle index
}

// None returns the empty signal for the given index.
func None(index int) Signal { return Signal{Kind: KindNone, Index: index} }

// Input is the shared contract of all matchers: the recent candle window
// (newest last) and the recent snapshots (newest last, same alignment).
type Input struct {
	Candles *window.Window
	Snaps   []indicator.Snapshot
}

func (in Input) cur() indicator.Snapshot  { return in.Snaps[len(in.Snaps)-1] }
func (in Input) prev() indicator.Snapshot { return in.Snaps[len(in.Snaps)-2] }

// Config holds the detector thresholds.
type Config struct {
	SlopeLookback     int     // bars to confirm EMA slope direction
	TrendSepATR       float64 // min EMA12-EMA26 separation, in ATRs, to call it a trend
	PullbackBandATR   float64 // how far above/below EMA12 a pullback close may sit, in ATRs
	ConsolidationBars int     // range lookback for breakouts
	RangeWidthATR     float64 // max consolidation width, in ATRs
	VolumeSurge       float64 // breakout volume vs its rolling average
	RSIOversold       float64
	RSIOverbought     float64
	MomentumBodyATR   float64 // min candle body, in ATRs
	MomentumBodyFrac  float64 // min body as a fraction of the candle range
}

// DefaultConfig returns the thresholds of the production strategy.
func DefaultConfig() Config {
	return Config{
		SlopeLookback:     3,
		TrendSepATR:       0.1,
		PullbackBandATR:   1.0,
		ConsolidationBars: 12,
		RangeWidthATR:     3.0,
		VolumeSurge:       1.5,
		RSIOversold:       30,
		RSIOverbought:     70,
		MomentumBodyATR:   1.0,
		MomentumBodyFrac:  0.7,
	}
}

type matcher func(cfg Config, in Input) (Signal, bool)

// Detector runs the ordered matcher list over one cycle's input.
type Detector struct {
	cfg      Config
	matchers []matcher
}

// New creates a detector with the given thresholds.
func New(cfg Config) *Detector {
	return &Detector{
		cfg: cfg,
		// Priority order is part of the strategy contract.
		matchers: []matcher{
			matchTrendPullback,
			matchBreakout,
			matchMeanReversion,
			matchMomentum,
		},
	}
}

// minSnaps is the least snapshot history any matcher may look back on.
const minSnaps = 4

// needSnaps returns the snapshot history the configured matchers index
// into: the pullback matcher reaches SlopeLookback+1 snapshots back.
func (d *Detector) needSnaps() int {
	if n := d.cfg.SlopeLookback + 1; n > minSnaps {
		return n
	}
	return minSnaps
}

// Detect returns at most one signal for the newest candle. Insufficient
// warm-up data yields KindNone, never an error.
func (d *Detector) Detect(in Input) Signal {
	if len(in.Snaps) < d.needSnaps() || in.Candles.Len() < d.cfg.ConsolidationBars+1 {
		return None(lastIndex(in))
	}
	if !in.cur().Warm() {
		return None(lastIndex(in))
	}
	for _, m := range d.matchers {
		if sig, ok := m(d.cfg, in); ok {
			return sig
		}
	}
	return None(lastIndex(in))
}

func lastIndex(in Input) int {
	if len(in.Snaps) == 0 {
		return 0
	}
	return in.cur().Index
}

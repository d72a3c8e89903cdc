package model

import "time"

// Direction of a position or trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign returns +1 for long, −1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// ExitReason describes what closed a trade.
type ExitReason string

const (
	ExitStop         ExitReason = "stop"
	ExitTarget       ExitReason = "target"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitLiquidation  ExitReason = "liquidation"
	ExitManual       ExitReason = "manual"
)

// Position is the single open trade. At most one Position exists at any time.
type Position struct {
	Direction     Direction `json:"direction"`
	EntryPrice    float64   `json:"entry_price"`
	Size          float64   `json:"size"` // units of the base asset
	StopPrice     float64   `json:"stop_price"`
	TargetPrice   float64   `json:"target_price"`
	TrailingStop  float64   `json:"trailing_stop,omitempty"` // 0 = not active
	Liquidation   float64   `json:"liquidation_price"`
	Pattern       string    `json:"pattern"`
	Confidence    float64   `json:"confidence"`
	OpenedAt      time.Time `json:"opened_at"`
	OpenedAtIndex int       `json:"opened_at_index"`
	EntryEquity   float64   `json:"entry_equity"`
}

// UnrealizedPnL computes the mark-to-market P&L at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return p.Direction.Sign() * (price - p.EntryPrice) * p.Size
}

// TrailingActive reports whether the trailing stop has been armed.
func (p *Position) TrailingActive() bool { return p.TrailingStop != 0 }

// Trade is a closed position. Immutable once written; appended to an
// ordered ledger.
type Trade struct {
	Direction   Direction  `json:"direction"`
	Pattern     string     `json:"pattern"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	Size        float64    `json:"size"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    time.Time  `json:"closed_at"`
	ExitReason  ExitReason `json:"exit_reason"`
	RealizedPnL float64    `json:"realized_pnl"`
	PnLPercent  float64    `json:"pnl_percent"` // relative to equity at entry
}

// EquityPoint is one sample of the equity curve. Exactly one is appended per
// cycle, whether or not a trade event occurred.
type EquityPoint struct {
	Index  int       `json:"index"`
	TS     time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}

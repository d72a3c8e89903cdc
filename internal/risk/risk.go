// Package risk converts detector signals into sized order proposals and
// enforces the account's daily guardrails. Rejections are reasons, not
// errors: a turned-down signal is a normal outcome of a cycle.
package risk

import (
	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/pattern"
)

// Rejection reasons recorded for observability.
const (
	ReasonPositionOpen    = "position already open"
	ReasonDailyTradeLimit = "daily trade limit"
	ReasonDailyLossLimit  = "daily loss limit"
	ReasonNoVolatility    = "atr unavailable"
	ReasonZeroSize        = "position size rounds to zero"
)

// Limits is the immutable risk policy of one engine instance.
type Limits struct {
	RiskPerTrade     float64 // fraction of equity risked per trade
	LeverageCap      float64 // size × entry may not exceed this multiple of equity
	StopATR          float64 // stop distance in ATRs
	TargetATR        float64 // target distance in ATRs
	MaxTradesPerDay  int
	MaxDailyLossFrac float64 // of start-of-day equity
}

// DefaultLimits returns the production policy: 2% risk per trade, 3x
// leverage, 2 ATR stop / 3.5 ATR target (1.75:1 reward to risk), at most 8
// trades and an 8% loss per UTC day.
func DefaultLimits() Limits {
	return Limits{
		RiskPerTrade:     0.02,
		LeverageCap:      3,
		StopATR:          2.0,
		TargetATR:        3.5,
		MaxTradesPerDay:  8,
		MaxDailyLossFrac: 0.08,
	}
}

// Counters tracks per-day trade activity. Values only increase within a day;
// the reset is atomic with the day-key change.
type Counters struct {
	DayKey         string  `json:"day_key"`
	Trades         int     `json:"trades"`
	LossTotal      float64 `json:"loss_total"` // sum of losing-trade magnitudes
	DayStartEquity float64 `json:"day_start_equity"`
}

// Proposal is a sized, stopped order ready for the simulator. Never persisted
// independently of the position it becomes.
type Proposal struct {
	Direction   model.Direction
	Pattern     string
	Confidence  float64
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Size        float64 // units of the base asset
	Leverage    float64
}

// Manager applies Limits to incoming signals. Single-writer: the cycle
// driver owns it, no locking.
type Manager struct {
	limits   Limits
	counters Counters
}

func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// Limits returns the policy the manager was built with.
func (m *Manager) Limits() Limits { return m.limits }

// Counters returns a copy of the current daily counters.
func (m *Manager) Counters() Counters { return m.counters }

// Roll advances the counters to the given UTC day, resetting them and
// capturing start-of-day equity on a day change. Idempotent within a day,
// and a candle from an already-counted day never resets forward state
// (restored counters survive a backfill replay of earlier days). ISO day
// keys order lexicographically.
func (m *Manager) Roll(dayKey string, equity float64) {
	if dayKey <= m.counters.DayKey {
		return
	}
	m.counters = Counters{DayKey: dayKey, DayStartEquity: equity}
}

// Restore seeds the counters from a journaled session, so a restart on the
// same UTC day keeps honoring the daily limits. Roll ignores candles whose
// day key matches the restored one.
func (m *Manager) Restore(c Counters) { m.counters = c }

// RecordOpen counts an accepted trade against today's limit.
func (m *Manager) RecordOpen() { m.counters.Trades++ }

// RecordClose accumulates today's realized losses. Wins never reduce the
// running loss total.
func (m *Manager) RecordClose(pnl float64) {
	if pnl < 0 {
		m.counters.LossTotal += -pnl
	}
}

// Evaluate turns a signal into a sized proposal, or a rejection reason.
// The empty reason means accepted. Entry is the signal candle's close.
func (m *Manager) Evaluate(sig pattern.Signal, entry, atr, equity float64, hasPosition bool) (Proposal, string) {
	if hasPosition {
		return Proposal{}, ReasonPositionOpen
	}
	if m.counters.Trades >= m.limits.MaxTradesPerDay {
		return Proposal{}, ReasonDailyTradeLimit
	}
	if m.counters.DayStartEquity > 0 &&
		m.counters.LossTotal >= m.limits.MaxDailyLossFrac*m.counters.DayStartEquity {
		return Proposal{}, ReasonDailyLossLimit
	}
	if atr <= 0 || entry <= 0 {
		return Proposal{}, ReasonNoVolatility
	}

	stopDist := m.limits.StopATR * atr
	size := m.limits.RiskPerTrade * equity / stopDist
	if maxSize := m.limits.LeverageCap * equity / entry; size > maxSize {
		size = maxSize
	}
	if size <= 0 {
		return Proposal{}, ReasonZeroSize
	}

	sign := sig.Direction.Sign()
	return Proposal{
		Direction:   sig.Direction,
		Pattern:     string(sig.Kind),
		Confidence:  sig.Confidence,
		EntryPrice:  entry,
		StopPrice:   entry - sign*stopDist,
		TargetPrice: entry + sign*m.limits.TargetATR*atr,
		Size:        size,
		Leverage:    m.limits.LeverageCap,
	}, ""
}

// Package execution simulates fills for the single open position. Entries
// fill at the signal candle's close; exits are resolved intrabar against each
// subsequent candle's high/low, with gap-throughs filling at the candle open.
package execution

import (
	"time"

	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/risk"
)

// liqBuffer places the liquidation price at 90% of the margin distance, the
// standard maintenance-margin approximation for cross positions.
const liqBuffer = 0.9

// Config tunes the fill model. Immutable for the engine's lifetime.
type Config struct {
	TrailingActivationPct float64 // unrealized profit, % of entry, that arms the trail
	TrailingATR           float64 // trail distance in ATRs
	FeePerTrade           float64 // flat fee charged when a trade closes
}

// DefaultConfig matches the production strategy: the trail arms at 1.5%
// profit and follows price at 1.5 ATR (three quarters of the 2 ATR stop).
func DefaultConfig() Config {
	return Config{
		TrailingActivationPct: 1.5,
		TrailingATR:           1.5,
		FeePerTrade:           0,
	}
}

// Simulator applies candles to the open position. Stateless apart from
// config; position state lives in model.Position owned by the cycle driver.
type Simulator struct {
	cfg Config
}

func New(cfg Config) *Simulator {
	return &Simulator{cfg: cfg}
}

// Open fills an accepted proposal at the signal candle's close and returns
// the resulting position.
func (s *Simulator) Open(p risk.Proposal, c model.Candle, index int, equity float64) model.Position {
	sign := p.Direction.Sign()
	return model.Position{
		Direction:     p.Direction,
		EntryPrice:    p.EntryPrice,
		Size:          p.Size,
		StopPrice:     p.StopPrice,
		TargetPrice:   p.TargetPrice,
		Liquidation:   p.EntryPrice * (1 - sign*liqBuffer/p.Leverage),
		Pattern:       p.Pattern,
		Confidence:    p.Confidence,
		OpenedAt:      c.OpenTime,
		OpenedAtIndex: index,
		EntryEquity:   equity,
	}
}

// Advance checks pos against one candle. Exit levels are checked in a fixed
// order (liquidation, trailing stop, stop, target) so that when several
// levels fall inside one candle's range the adverse one wins (conservative
// tie-break; intrabar ordering is not derivable from OHLC data). If no level
// is hit, the trailing stop is updated from the candle close and Advance
// returns false.
func (s *Simulator) Advance(pos *model.Position, c model.Candle, atr float64) (model.Trade, bool) {
	sign := pos.Direction.Sign()

	if hit, fill := touched(pos.Direction, c, pos.Liquidation, true); hit {
		t := s.close(pos, fill, c.OpenTime, model.ExitLiquidation)
		// A liquidation wipes the margin regardless of the printed fill.
		t.RealizedPnL = -liqBuffer*pos.EntryEquity - s.cfg.FeePerTrade
		t.PnLPercent = pct(t.RealizedPnL, pos.EntryEquity)
		return t, true
	}
	if pos.TrailingActive() {
		if hit, fill := touched(pos.Direction, c, pos.TrailingStop, true); hit {
			return s.close(pos, fill, c.OpenTime, model.ExitTrailingStop), true
		}
	}
	if hit, fill := touched(pos.Direction, c, pos.StopPrice, true); hit {
		return s.close(pos, fill, c.OpenTime, model.ExitStop), true
	}
	if hit, fill := touched(pos.Direction, c, pos.TargetPrice, false); hit {
		return s.close(pos, fill, c.OpenTime, model.ExitTarget), true
	}

	// Survived the candle: ratchet the trail off the close.
	profitPct := sign * (c.Close - pos.EntryPrice) / pos.EntryPrice * 100
	if atr > 0 && profitPct >= s.cfg.TrailingActivationPct {
		trail := c.Close - sign*s.cfg.TrailingATR*atr
		if !pos.TrailingActive() || sign*(trail-pos.TrailingStop) > 0 {
			pos.TrailingStop = trail
		}
	}
	return model.Trade{}, false
}

// CloseAt closes the position at an arbitrary price, e.g. the manual close
// at the end of a backtest's data.
func (s *Simulator) CloseAt(pos *model.Position, price float64, ts time.Time, reason model.ExitReason) model.Trade {
	return s.close(pos, price, ts, reason)
}

func (s *Simulator) close(pos *model.Position, fill float64, ts time.Time, reason model.ExitReason) model.Trade {
	pnl := pos.Direction.Sign()*(fill-pos.EntryPrice)*pos.Size - s.cfg.FeePerTrade
	return model.Trade{
		Direction:   pos.Direction,
		Pattern:     pos.Pattern,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   fill,
		Size:        pos.Size,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    ts,
		ExitReason:  reason,
		RealizedPnL: pnl,
		PnLPercent:  pct(pnl, pos.EntryEquity),
	}
}

// touched reports whether the candle reached the level on the adverse
// (adverse=true: below entry for longs, above for shorts) or favorable side,
// and the fill price. A candle that opens beyond the level fills at the open.
func touched(dir model.Direction, c model.Candle, level float64, adverse bool) (bool, float64) {
	if level <= 0 {
		return false, 0
	}
	// Side of the level relative to price movement: −1 means the level is
	// hit from above (checked against the low), +1 against the high.
	side := dir.Sign()
	if adverse {
		side = -side
	}
	if side < 0 {
		if c.Low <= level {
			if c.Open <= level {
				return true, c.Open
			}
			return true, level
		}
		return false, 0
	}
	if c.High >= level {
		if c.Open >= level {
			return true, c.Open
		}
		return true, level
	}
	return false, 0
}

func pct(pnl, base float64) float64 {
	if base == 0 {
		return 0
	}
	return pnl / base * 100
}

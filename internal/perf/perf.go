// Package perf computes summary statistics over the closed-trade ledger and
// the equity curve. Pure functions: no engine state, safe to call on
// snapshots at any time.
package perf

import (
	"math"
	"time"

	"pattern-traderv1/internal/model"
)

// Summary aggregates the ledger and equity curve. Ratio fields are pointers:
// nil means undefined (no trades, no losses, or not enough equity points),
// which marshals as JSON null instead of a misleading zero.
type Summary struct {
	TotalTrades int `json:"total_trades"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`

	WinRate      *float64 `json:"win_rate"`      // wins / total, 0..1
	NetProfit    float64  `json:"net_profit"`    // account currency
	AvgWin       float64  `json:"avg_win"`       // mean winning pnl, 0 if none
	AvgLoss      float64  `json:"avg_loss"`      // mean losing magnitude, 0 if none
	ProfitFactor *float64 `json:"profit_factor"` // nil when there are no losses
	Expectancy   *float64 `json:"expectancy"`    // mean pnl per trade
	Sharpe       *float64 `json:"sharpe"`        // annualized, nil if undefined

	MaxDrawdownPct       float64 `json:"max_drawdown_pct"` // peak-to-trough, 0..100
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

// Analyze computes the summary. The timeframe parameterizes the Sharpe
// annualization: equity points are one candle apart.
func Analyze(trades []model.Trade, equity []model.EquityPoint, tf time.Duration) Summary {
	s := Summary{}

	var grossWin, grossLoss, net float64
	var run, maxRun int
	for _, t := range trades {
		net += t.RealizedPnL
		if t.RealizedPnL > 0 {
			s.Wins++
			grossWin += t.RealizedPnL
			run = 0
			continue
		}
		// Flat trades count as losses: they paid the fee for nothing.
		s.Losses++
		grossLoss += -t.RealizedPnL
		run++
		if run > maxRun {
			maxRun = run
		}
	}
	s.TotalTrades = len(trades)
	s.NetProfit = net
	s.MaxConsecutiveLosses = maxRun

	if s.TotalTrades > 0 {
		s.WinRate = ptr(float64(s.Wins) / float64(s.TotalTrades))
		s.Expectancy = ptr(net / float64(s.TotalTrades))
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLoss / float64(s.Losses)
	}
	if grossLoss > 0 {
		s.ProfitFactor = ptr(grossWin / grossLoss)
	}

	s.MaxDrawdownPct = maxDrawdownPct(equity)
	s.Sharpe = sharpe(equity, tf)
	return s
}

// maxDrawdownPct tracks the running equity peak and returns the deepest
// percentage decline from it.
func maxDrawdownPct(equity []model.EquityPoint) float64 {
	var peak, maxDD float64
	for _, pt := range equity {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			if dd := (peak - pt.Equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpe computes mean/stdev of point-to-point equity returns, annualized by
// the number of timeframe periods in a year. Crypto trades around the clock,
// so a year is 365 full days.
func sharpe(equity []model.EquityPoint, tf time.Duration) *float64 {
	if len(equity) < 2 || tf <= 0 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			return nil
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var varSum float64
	for _, r := range returns {
		d := r - mean
		varSum += d * d
	}
	sd := math.Sqrt(varSum / float64(len(returns)))
	if sd == 0 {
		return nil
	}

	periodsPerYear := (365 * 24 * time.Hour).Seconds() / tf.Seconds()
	return ptr(mean / sd * math.Sqrt(periodsPerYear))
}

func ptr(v float64) *float64 { return &v }

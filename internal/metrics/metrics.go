// Package metrics exposes Prometheus metrics and a health endpoint for
// the strategy engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"pattern-traderv1/internal/model"
)

// Metrics holds all Prometheus metrics for the strategy engine.
type Metrics struct {
	CyclesTotal     prometheus.Counter
	PositionsOpened *prometheus.CounterVec // labels: pattern, direction
	TradesTotal     *prometheus.CounterVec // labels: pattern, exit_reason
	RejectionsTotal *prometheus.CounterVec // labels: reason
	Equity          prometheus.Gauge
	PositionOpen    prometheus.Gauge // 0 or 1
	RealizedPnL     prometheus.Counter
	RealizedLoss    prometheus.Counter
}

// New registers and returns all engine metrics on reg. Pass
// prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_cycles_total",
			Help: "Total strategy cycles processed",
		}),
		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_positions_opened_total",
			Help: "Positions opened (by pattern and direction)",
		}, []string{"pattern", "direction"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Trades closed (by pattern and exit reason)",
		}, []string{"pattern", "exit_reason"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signal_rejections_total",
			Help: "Signals rejected by the risk manager (by reason)",
		}, []string{"reason"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_equity",
			Help: "Current mark-to-market equity",
		}),
		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_position_open",
			Help: "Whether a position is currently open (0 or 1)",
		}),
		RealizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_realized_profit_total",
			Help: "Sum of positive realized P&L",
		}),
		RealizedLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_realized_loss_total",
			Help: "Sum of absolute negative realized P&L",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.PositionsOpened,
		m.TradesTotal,
		m.RejectionsTotal,
		m.Equity,
		m.PositionOpen,
		m.RealizedPnL,
		m.RealizedLoss,
	)
	return m
}

// Sink returns a model.Sink view of the metrics, so the engine's event
// fan-out keeps the counters current.
func (m *Metrics) Sink() model.Sink { return sink{m} }

type sink struct{ m *Metrics }

func (s sink) PositionOpened(pos model.Position) {
	s.m.PositionsOpened.WithLabelValues(pos.Pattern, string(pos.Direction)).Inc()
	s.m.PositionOpen.Set(1)
}

func (s sink) TradeClosed(t model.Trade, equity float64) {
	s.m.TradesTotal.WithLabelValues(t.Pattern, string(t.ExitReason)).Inc()
	s.m.PositionOpen.Set(0)
	s.m.Equity.Set(equity)
	if t.RealizedPnL >= 0 {
		s.m.RealizedPnL.Add(t.RealizedPnL)
	} else {
		s.m.RealizedLoss.Add(-t.RealizedPnL)
	}
}

func (s sink) EquityAppended(pt model.EquityPoint) {
	s.m.CyclesTotal.Inc()
	s.m.Equity.Set(pt.Equity)
}

func (s sink) SignalRejected(_, reason string) {
	s.m.RejectionsTotal.WithLabelValues(reason).Inc()
}

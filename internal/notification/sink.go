package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/risk"
)

const sendTimeout = 10 * time.Second

// TradeSink adapts a Notifier to model.Sink. Delivery happens on a
// separate goroutine per event so a slow channel never stalls a cycle;
// failed sends are logged and dropped.
type TradeSink struct {
	notifier   Notifier
	instrument string
}

// NewTradeSink wraps a notifier for one instrument's engine events.
func NewTradeSink(n Notifier, instrument string) *TradeSink {
	return &TradeSink{notifier: n, instrument: instrument}
}

func (s *TradeSink) dispatch(alert Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := s.notifier.Send(ctx, alert); err != nil {
			log.Printf("[notify] send %q: %v", alert.Title, err)
		}
	}()
}

func (s *TradeSink) PositionOpened(pos model.Position) {
	s.dispatch(Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s opened", s.instrument, pos.Direction),
		Message: fmt.Sprintf("pattern=%s entry=%.4f size=%.6f stop=%.4f target=%.4f",
			pos.Pattern, pos.EntryPrice, pos.Size, pos.StopPrice, pos.TargetPrice),
	})
}

func (s *TradeSink) TradeClosed(t model.Trade, equity float64) {
	level := AlertInfo
	if t.RealizedPnL < 0 {
		level = AlertWarning
	}
	if t.ExitReason == model.ExitLiquidation {
		level = AlertCritical
	}
	s.dispatch(Alert{
		Level: level,
		Title: fmt.Sprintf("%s %s closed (%s)", s.instrument, t.Direction, t.ExitReason),
		Message: fmt.Sprintf("pattern=%s entry=%.4f exit=%.4f pnl=%.2f (%.2f%%) equity=%.2f",
			t.Pattern, t.EntryPrice, t.ExitPrice, t.RealizedPnL, t.PnLPercent, equity),
	})
}

// EquityAppended is a no-op: per-cycle equity samples are far too chatty
// for an alert channel.
func (s *TradeSink) EquityAppended(model.EquityPoint) {}

// SignalRejected alerts only when the daily loss limit trips, which halts
// trading for the rest of the day. Routine rejections stay in the logs.
func (s *TradeSink) SignalRejected(pattern, reason string) {
	if reason != risk.ReasonDailyLossLimit {
		return
	}
	s.dispatch(Alert{
		Level:   AlertCritical,
		Title:   fmt.Sprintf("%s trading halted", s.instrument),
		Message: fmt.Sprintf("daily loss limit reached; last signal %s rejected", pattern),
	})
}

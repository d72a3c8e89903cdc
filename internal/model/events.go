package model

// Sink receives engine events exactly once per occurrence. Implementations
// (journal, stream publisher, dashboard hub, notifier) must not block the
// cycle for long and must not mutate engine state.
type Sink interface {
	// PositionOpened fires when the simulator opens a new position.
	PositionOpened(pos Position)

	// TradeClosed fires when a position is closed and the trade appended
	// to the ledger.
	TradeClosed(trade Trade, equity float64)

	// EquityAppended fires once per cycle with the new equity point.
	EquityAppended(pt EquityPoint)

	// SignalRejected fires when the risk manager turns a signal down.
	// Rejections never fail a cycle; they are recorded for observability.
	SignalRejected(pattern string, reason string)
}

// MultiSink fans events out to several sinks in registration order.
type MultiSink []Sink

func (m MultiSink) PositionOpened(pos Position) {
	for _, s := range m {
		s.PositionOpened(pos)
	}
}

func (m MultiSink) TradeClosed(trade Trade, equity float64) {
	for _, s := range m {
		s.TradeClosed(trade, equity)
	}
}

func (m MultiSink) EquityAppended(pt EquityPoint) {
	for _, s := range m {
		s.EquityAppended(pt)
	}
}

func (m MultiSink) SignalRejected(pattern, reason string) {
	for _, s := range m {
		s.SignalRejected(pattern, reason)
	}
}

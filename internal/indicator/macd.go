package indicator

// MACD calculates Moving Average Convergence Divergence: the difference of a
// fast and slow EMA as the line, an EMA of the line as the signal, and
// line − signal as the histogram.
//
// The line becomes defined once the slow EMA is ready; the signal EMA is
// seeded from the first signalPeriod line values after that.
type MACD struct {
	fast      *EMA
	slow      *EMA
	signalEMA *EMA

	line   float64
	signal float64
	hist   float64
}

// NewMACD creates a MACD with the given fast/slow/signal periods
// (typically 12, 26, 9).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:      NewEMA(fastPeriod),
		slow:      NewEMA(slowPeriod),
		signalEMA: NewEMA(signalPeriod),
	}
}

func (m *MACD) Update(v float64) {
	m.fast.Update(v)
	m.slow.Update(v)

	if !m.fast.Ready() || !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signalEMA.Update(m.line)
	if m.signalEMA.Ready() {
		m.signal = m.signalEMA.Value()
		m.hist = m.line - m.signal
	}
}

// Line returns the MACD line (fast EMA − slow EMA).
func (m *MACD) Line() float64 { return m.line }

// Signal returns the signal line (EMA of the MACD line).
func (m *MACD) Signal() float64 { return m.signal }

// Hist returns the histogram (line − signal).
func (m *MACD) Hist() float64 { return m.hist }

// LineReady reports whether the MACD line is defined.
func (m *MACD) LineReady() bool { return m.slow.Ready() }

// Ready reports whether line, signal and histogram are all defined.
func (m *MACD) Ready() bool { return m.signalEMA.Ready() }

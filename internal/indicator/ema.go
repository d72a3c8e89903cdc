package indicator

// EMA calculates Exponential Moving Average, seeded by a simple moving
// average over the first period values. O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Update(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA = (value * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

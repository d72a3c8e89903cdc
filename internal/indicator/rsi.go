package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// When the average loss is zero (all gains), RSI is defined as 100.
type RSI struct {
	period    int
	count     int
	prevValue float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Update(v float64) {
	r.count++

	if r.count == 1 {
		// First value: just record it, no delta yet
		r.prevValue = v
		return
	}

	delta := v - r.prevValue
	r.prevValue = v

	gain := 0.0
	loss := 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			// First RSI value using SMA seed
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.recalc()
		}
		return
	}

	// Wilder's smoothing: avgGain = (prevAvgGain * (period-1) + gain) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.recalc()
}

func (r *RSI) recalc() {
	if r.avgLoss == 0 {
		r.current = 100.0
		return
	}
	rs := r.avgGain / r.avgLoss
	r.current = 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

package indicator

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation updates.
type SMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

package indicator

import "math"

// Bollinger calculates Bollinger Bands: a simple moving average ± dev
// population standard deviations over a rolling window.
type Bollinger struct {
	period int
	dev    float64

	buf   []float64
	idx   int
	count int
	sum   float64

	upper float64
	mid   float64
	lower float64
}

// NewBollinger creates Bollinger Bands with the given period and deviation
// multiplier (typically 20 and 2).
func NewBollinger(period int, dev float64) *Bollinger {
	return &Bollinger{
		period: period,
		dev:    dev,
		buf:    make([]float64, period),
	}
}

func (b *Bollinger) Update(v float64) {
	if b.count >= b.period {
		b.sum -= b.buf[b.idx]
	}
	b.buf[b.idx] = v
	b.sum += v
	b.idx = (b.idx + 1) % b.period
	b.count++

	if b.count < b.period {
		return
	}

	mean := b.sum / float64(b.period)

	// Population variance over the window. O(period), but period is small
	// and the direct sum stays numerically in step with batch recomputation.
	var acc float64
	for _, x := range b.buf {
		d := x - mean
		acc += d * d
	}
	sd := math.Sqrt(acc / float64(b.period))

	b.mid = mean
	b.upper = mean + b.dev*sd
	b.lower = mean - b.dev*sd
}

// Upper returns the upper band.
func (b *Bollinger) Upper() float64 { return b.upper }

// Mid returns the middle band (SMA).
func (b *Bollinger) Mid() float64 { return b.mid }

// Lower returns the lower band.
func (b *Bollinger) Lower() float64 { return b.lower }

func (b *Bollinger) Ready() bool { return b.count >= b.period }

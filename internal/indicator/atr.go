package indicator

import "pattern-traderv1/internal/model"

// ATR calculates Average True Range with Wilder smoothing, seeded by a
// simple average of the first period true ranges. The first candle's true
// range is high−low (no previous close exists yet).
type ATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64
	current   float64
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) UpdateCandle(c model.Candle) {
	a.count++

	tr := c.High - c.Low
	if a.count > 1 {
		if d := abs(c.High - a.prevClose); d > tr {
			tr = d
		}
		if d := abs(c.Low - a.prevClose); d > tr {
			tr = d
		}
	}
	a.prevClose = c.Close

	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

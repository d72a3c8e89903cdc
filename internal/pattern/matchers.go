package pattern

import (
	"pattern-traderv1/internal/model"
)

// matchTrendPullback: price is trending with real EMA separation, closed
// against the fast EMA on the pullback leg, has just reclaimed it, and the
// MACD histogram has turned back in the trend direction.
func matchTrendPullback(cfg Config, in Input) (Signal, bool) {
	if in.Candles.Len() < 2 {
		return Signal{}, false
	}
	n := len(in.Snaps)
	cur, prev, prev2 := in.Snaps[n-1], in.Snaps[n-2], in.Snaps[n-3]
	old := in.Snaps[n-1-cfg.SlopeLookback]
	c := in.Candles.FromEnd(0)
	pull := in.Candles.FromEnd(1)
	sep := cfg.TrendSepATR * cur.ATR
	band := cfg.PullbackBandATR * cur.ATR

	upTrend := cur.EMA12 > cur.EMA26+sep &&
		cur.EMA12 > old.EMA12 && cur.EMA26 > old.EMA26
	reclaimedUp := pull.Close < prev.EMA12 &&
		c.Close > cur.EMA12 && c.Close <= cur.EMA12+band
	turnedUp := cur.MACDHist > prev.MACDHist && prev.MACDHist <= prev2.MACDHist

	if upTrend && reclaimedUp && turnedUp {
		return Signal{Kind: KindTrendPullback, Direction: model.Long, Confidence: 0.7, Index: cur.Index}, true
	}

	downTrend := cur.EMA12 < cur.EMA26-sep &&
		cur.EMA12 < old.EMA12 && cur.EMA26 < old.EMA26
	reclaimedDown := pull.Close > prev.EMA12 &&
		c.Close < cur.EMA12 && c.Close >= cur.EMA12-band
	turnedDown := cur.MACDHist < prev.MACDHist && prev.MACDHist >= prev2.MACDHist

	if downTrend && reclaimedDown && turnedDown {
		return Signal{Kind: KindTrendPullback, Direction: model.Short, Confidence: 0.7, Index: cur.Index}, true
	}
	return Signal{}, false
}

// matchBreakout: close breaks out of a tight consolidation range on a volume
// surge, with MACD agreeing on direction.
func matchBreakout(cfg Config, in Input) (Signal, bool) {
	cur := in.cur()
	c, _ := in.Candles.Last()

	// Range over the N candles preceding the current one.
	rangeHigh, rangeLow := priorRange(in, cfg.ConsolidationBars)
	if rangeHigh-rangeLow > cfg.RangeWidthATR*cur.ATR {
		return Signal{}, false
	}
	if cur.VolAvg <= 0 || c.Volume < cfg.VolumeSurge*cur.VolAvg {
		return Signal{}, false
	}

	if c.Close > rangeHigh && cur.MACD > cur.MACDSignal {
		return Signal{Kind: KindBreakout, Direction: model.Long, Confidence: 0.8, Index: cur.Index}, true
	}
	if c.Close < rangeLow && cur.MACD < cur.MACDSignal {
		return Signal{Kind: KindBreakout, Direction: model.Short, Confidence: 0.8, Index: cur.Index}, true
	}
	return Signal{}, false
}

// matchMeanReversion: close at or beyond a Bollinger extreme with RSI
// confirming exhaustion. Direction is back toward the mid-band.
func matchMeanReversion(cfg Config, in Input) (Signal, bool) {
	cur := in.cur()
	c, _ := in.Candles.Last()

	if c.Close <= cur.BBLower && cur.RSI <= cfg.RSIOversold {
		return Signal{Kind: KindMeanReversion, Direction: model.Long, Confidence: 0.6, Index: cur.Index}, true
	}
	if c.Close >= cur.BBUpper && cur.RSI >= cfg.RSIOverbought {
		return Signal{Kind: KindMeanReversion, Direction: model.Short, Confidence: 0.6, Index: cur.Index}, true
	}
	return Signal{}, false
}

// matchMomentum: the previous candle printed a full-ATR body and the current
// candle confirms continuation in the same direction. The catch-all, lowest
// confidence.
func matchMomentum(cfg Config, in Input) (Signal, bool) {
	if in.Candles.Len() < 2 {
		return Signal{}, false
	}
	cur := in.cur()
	prevSnap := in.prev()
	c := in.Candles.FromEnd(0)
	impulse := in.Candles.FromEnd(1)

	if prevSnap.ATR <= 0 || impulse.Range() <= 0 {
		return Signal{}, false
	}
	if impulse.Body() < cfg.MomentumBodyATR*prevSnap.ATR {
		return Signal{}, false
	}
	if impulse.Body() < cfg.MomentumBodyFrac*impulse.Range() {
		return Signal{}, false
	}

	if impulse.Bullish() && c.Close > impulse.Close {
		return Signal{Kind: KindMomentum, Direction: model.Long, Confidence: 0.5, Index: cur.Index}, true
	}
	if !impulse.Bullish() && c.Close < impulse.Close {
		return Signal{Kind: KindMomentum, Direction: model.Short, Confidence: 0.5, Index: cur.Index}, true
	}
	return Signal{}, false
}

// priorRange returns the high/low of the n candles before the newest one.
func priorRange(in Input, n int) (high, low float64) {
	first := true
	for i := 1; i <= n && i < in.Candles.Len(); i++ {
		c := in.Candles.FromEnd(i)
		if first {
			high, low = c.High, c.Low
			first = false
			continue
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}

package indicator

import "pattern-traderv1/internal/model"

// Standard parameters of the strategy's indicator set.
const (
	EMAShortPeriod  = 12
	EMAMidPeriod    = 26
	EMALongPeriod   = 50
	RSIPeriod       = 14
	MACDFastPeriod  = 12
	MACDSlowPeriod  = 26
	MACDSignalSpan  = 9
	BollingerPeriod = 20
	BollingerDev    = 2.0
	ATRPeriod       = 14
	VolumeAvgPeriod = 20
)

// Snapshot is the full indicator state derived from candles at or before one
// index. Values are only meaningful when their Ready flag is set.
type Snapshot struct {
	Index int     `json:"index"`
	Close float64 `json:"close"`

	EMA12    float64 `json:"ema12"`
	EMA26    float64 `json:"ema26"`
	EMA50    float64 `json:"ema50"`
	EMAReady bool    `json:"ema_ready"` // all three EMAs

	RSI      float64 `json:"rsi"`
	RSIReady bool    `json:"rsi_ready"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	MACDReady  bool    `json:"macd_ready"`

	BBUpper float64 `json:"bb_upper"`
	BBMid   float64 `json:"bb_mid"`
	BBLower float64 `json:"bb_lower"`
	BBReady bool    `json:"bb_ready"`

	ATR      float64 `json:"atr"`
	ATRReady bool    `json:"atr_ready"`

	VolAvg   float64 `json:"vol_avg"`
	VolReady bool    `json:"vol_ready"`
}

// Warm reports whether every indicator in the set is defined. The long EMA
// dominates the warm-up: 50 candles.
func (s Snapshot) Warm() bool {
	return s.EMAReady && s.RSIReady && s.MACDReady && s.BBReady && s.ATRReady && s.VolReady
}

// Tracker feeds each candle to the full indicator set and emits one Snapshot
// per candle. Strictly causal: a snapshot depends only on candles already fed.
// Single-goroutine usage, no locks.
type Tracker struct {
	ema12  *EMA
	ema26  *EMA
	ema50  *EMA
	rsi    *RSI
	macd   *MACD
	bb     *Bollinger
	atr    *ATR
	volAvg *SMA

	index int
}

// NewTracker creates a tracker with the standard parameter set.
func NewTracker() *Tracker {
	return &Tracker{
		ema12:  NewEMA(EMAShortPeriod),
		ema26:  NewEMA(EMAMidPeriod),
		ema50:  NewEMA(EMALongPeriod),
		rsi:    NewRSI(RSIPeriod),
		macd:   NewMACD(MACDFastPeriod, MACDSlowPeriod, MACDSignalSpan),
		bb:     NewBollinger(BollingerPeriod, BollingerDev),
		atr:    NewATR(ATRPeriod),
		volAvg: NewSMA(VolumeAvgPeriod),
		index:  -1,
	}
}

// WarmupCandles returns how many candles are needed before Warm snapshots.
func (t *Tracker) WarmupCandles() int { return EMALongPeriod }

// Update feeds one candle and returns the snapshot at its index.
func (t *Tracker) Update(c model.Candle) Snapshot {
	t.index++
	t.ema12.Update(c.Close)
	t.ema26.Update(c.Close)
	t.ema50.Update(c.Close)
	t.rsi.Update(c.Close)
	t.macd.Update(c.Close)
	t.bb.Update(c.Close)
	t.atr.UpdateCandle(c)
	t.volAvg.Update(c.Volume)

	return Snapshot{
		Index: t.index,
		Close: c.Close,

		EMA12:    t.ema12.Value(),
		EMA26:    t.ema26.Value(),
		EMA50:    t.ema50.Value(),
		EMAReady: t.ema12.Ready() && t.ema26.Ready() && t.ema50.Ready(),

		RSI:      t.rsi.Value(),
		RSIReady: t.rsi.Ready(),

		MACD:       t.macd.Line(),
		MACDSignal: t.macd.Signal(),
		MACDHist:   t.macd.Hist(),
		MACDReady:  t.macd.Ready(),

		BBUpper: t.bb.Upper(),
		BBMid:   t.bb.Mid(),
		BBLower: t.bb.Lower(),
		BBReady: t.bb.Ready(),

		ATR:      t.atr.Value(),
		ATRReady: t.atr.Ready(),

		VolAvg:   t.volAvg.Value(),
		VolReady: t.volAvg.Ready(),
	}
}

// Compute recomputes the snapshot at index from scratch over candles[0..index].
// Used to cross-check incremental updates; the two must agree within
// floating-point tolerance.
func Compute(candles []model.Candle, index int) Snapshot {
	t := NewTracker()
	var snap Snapshot
	for i := 0; i <= index && i < len(candles); i++ {
		snap = t.Update(candles[i])
	}
	return snap
}

package pattern

import (
	"math"
	"testing"
	"time"

	"pattern-traderv1/internal/indicator"
	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/window"
)

// ──────────────────────────── harness ────────────────────────────

// harness feeds candles through a live tracker, window and detector the way
// the engine does, one cycle per candle.
type harness struct {
	tracker *indicator.Tracker
	win     *window.Window
	snaps   []indicator.Snapshot
	det     *Detector
	ts      time.Time
}

func newHarness() *harness {
	return &harness{
		tracker: indicator.NewTracker(),
		win:     window.New(64),
		det:     New(DefaultConfig()),
		ts:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (h *harness) push(open, high, low, close, vol float64) Signal {
	c := model.Candle{OpenTime: h.ts, Open: open, High: high, Low: low, Close: close, Volume: vol}
	h.ts = h.ts.Add(time.Hour)
	h.win.Push(c)
	h.snaps = append(h.snaps, h.tracker.Update(c))
	return h.det.Detect(Input{Candles: h.win, Snaps: h.snaps})
}

func (h *harness) cur() indicator.Snapshot { return h.snaps[len(h.snaps)-1] }

// warmSnap builds a fully-ready snapshot around a calm 100-level market.
func warmSnap(index int, close float64) indicator.Snapshot {
	return indicator.Snapshot{
		Index: index, Close: close,
		EMA12: 100, EMA26: 100, EMA50: 100, EMAReady: true,
		RSI: 50, RSIReady: true,
		MACDReady: true,
		BBUpper:   110, BBMid: 100, BBLower: 90, BBReady: true,
		ATR: 2, ATRReady: true,
		VolAvg: 1000, VolReady: true,
	}
}

// ──────────────────────────── warm-up gating ────────────────────────────

func TestDetectSilentDuringWarmup(t *testing.T) {
	h := newHarness()
	cl := 100.0
	for i := 0; i < 40; i++ {
		sig := h.push(cl, cl+1.5, cl-0.5, cl+1, 1000)
		if sig.Kind != KindNone {
			t.Fatalf("candle %d: got %s before warm-up completed", i, sig.Kind)
		}
		cl++
	}
}

func TestDetectNeedsConsolidationHistory(t *testing.T) {
	win := window.New(64)
	for i := 0; i < 5; i++ {
		win.Push(model.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 1000})
	}
	snaps := []indicator.Snapshot{warmSnap(0, 100), warmSnap(1, 100), warmSnap(2, 100), warmSnap(3, 100)}
	sig := New(DefaultConfig()).Detect(Input{Candles: win, Snaps: snaps})
	if sig.Kind != KindNone {
		t.Fatalf("got %s with only 5 candles of history", sig.Kind)
	}
}

func TestDetectGateCoversLongSlopeLookback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlopeLookback = 6

	win := window.New(64)
	var snaps []indicator.Snapshot
	for i := 0; i < cfg.ConsolidationBars+2; i++ {
		win.Push(model.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 1000})
	}
	for i := 0; i < 5; i++ {
		snaps = append(snaps, warmSnap(i, 100))
	}

	// 5 snapshots satisfy the fixed minimum but not SlopeLookback+1; the
	// gate must skip the cycle instead of letting a matcher index past the
	// history.
	sig := New(cfg).Detect(Input{Candles: win, Snaps: snaps})
	if sig.Kind != KindNone {
		t.Fatalf("got %s with less history than slope lookback needs", sig.Kind)
	}

	snaps = append(snaps, warmSnap(5, 100), warmSnap(6, 100))
	sig = New(cfg).Detect(Input{Candles: win, Snaps: snaps})
	if sig.Kind != KindNone {
		t.Fatalf("flat market produced %s", sig.Kind)
	}
}

// ──────────────────────────── trend pullback ────────────────────────────

// A 60-candle uptrend, a short pullback leg that closes under EMA12, then a
// single reclaim candle with the MACD histogram turning back up. Exactly one
// signal must fire, on the reclaim candle.
func TestDetectTrendPullbackReclaim(t *testing.T) {
	h := newHarness()
	var signals []Signal
	record := func(s Signal) {
		if s.Kind != KindNone {
			signals = append(signals, s)
		}
	}

	cl := 100.0
	for i := 0; i < 60; i++ {
		record(h.push(cl, cl+1.5, cl-0.5, cl+1, 1000))
		cl++
	}

	// Pullback leg: drift down until the close crosses under the fast EMA.
	crossed := false
	for i := 0; i < 8; i++ {
		record(h.push(cl, cl+0.2, cl-2.0, cl-1.8, 1000))
		cl -= 1.8
		if cl < h.cur().EMA12 {
			crossed = true
			break
		}
	}
	if !crossed {
		t.Fatal("pullback leg never closed under EMA12")
	}

	reclaim := h.push(cl, cl+2.4, cl-0.2, cl+2.2, 1000)
	record(reclaim)

	if len(signals) != 1 {
		t.Fatalf("want exactly 1 signal, got %d: %+v", len(signals), signals)
	}
	got := signals[0]
	if got.Kind != KindTrendPullback {
		t.Fatalf("kind = %s, want %s", got.Kind, KindTrendPullback)
	}
	if got.Direction != model.Long {
		t.Fatalf("direction = %s, want long", got.Direction)
	}
	if got.Index != h.cur().Index {
		t.Fatalf("signal index = %d, want reclaim candle %d", got.Index, h.cur().Index)
	}
	if got.Confidence != 0.7 {
		t.Fatalf("confidence = %v, want 0.7", got.Confidence)
	}
}

// ──────────────────────────── breakout ────────────────────────────

// pushRange feeds an alternating ±0.8 consolidation around 100 and fails the
// test if anything fires during it. Returns the last close.
func pushRange(t *testing.T, h *harness, n int, vol float64) float64 {
	t.Helper()
	open := 100.0
	for i := 0; i < n; i++ {
		cl := 100.8
		if i%2 == 1 {
			cl = 99.2
		}
		hi := math.Max(open, cl) + 0.2
		lo := math.Min(open, cl) - 0.2
		if sig := h.push(open, hi, lo, cl, vol); sig.Kind != KindNone {
			t.Fatalf("candle %d: %s fired inside a flat range", i, sig.Kind)
		}
		open = cl
	}
	return open
}

func TestDetectBreakoutOnVolumeSurge(t *testing.T) {
	h := newHarness()
	open := pushRange(t, h, 60, 1200)

	// Close above the range high on double volume.
	sig := h.push(open, 102.2, 99.0, 102.0, 2400)
	if sig.Kind != KindBreakout {
		t.Fatalf("kind = %s, want %s", sig.Kind, KindBreakout)
	}
	if sig.Direction != model.Long {
		t.Fatalf("direction = %s, want long", sig.Direction)
	}
	if sig.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", sig.Confidence)
	}
}

func TestDetectBreakoutNeedsVolume(t *testing.T) {
	h := newHarness()
	open := pushRange(t, h, 60, 1200)

	// Same breakout candle at average volume: not a breakout (it becomes a
	// momentum impulse only if the next candle confirms).
	sig := h.push(open, 102.2, 99.0, 102.0, 1200)
	if sig.Kind == KindBreakout {
		t.Fatal("breakout fired without a volume surge")
	}
	if sig.Kind != KindNone {
		t.Fatalf("kind = %s, want none on the impulse candle", sig.Kind)
	}
}

// ──────────────────────────── momentum ────────────────────────────

func TestDetectMomentumContinuation(t *testing.T) {
	h := newHarness()
	open := pushRange(t, h, 60, 1200)

	// Full-ATR impulse body on normal volume: nothing fires yet.
	if sig := h.push(open, 102.2, 99.0, 102.0, 1200); sig.Kind != KindNone {
		t.Fatalf("impulse candle: kind = %s, want none", sig.Kind)
	}

	// Next candle confirms the direction.
	sig := h.push(102.0, 102.8, 101.8, 102.6, 1200)
	if sig.Kind != KindMomentum {
		t.Fatalf("kind = %s, want %s", sig.Kind, KindMomentum)
	}
	if sig.Direction != model.Long {
		t.Fatalf("direction = %s, want long", sig.Direction)
	}
	if sig.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", sig.Confidence)
	}
}

// ──────────────────────────── priority order ────────────────────────────

// A capitulation bar that satisfies both mean reversion (close under the lower
// band, RSI oversold) and momentum continuation must resolve as mean
// reversion: it sits higher in the matcher order.
func TestDetectMeanReversionBeforeMomentum(t *testing.T) {
	win := window.New(64)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	push := func(i int, open, high, low, close float64) {
		win.Push(model.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     open, High: high, Low: low, Close: close, Volume: 1000,
		})
	}
	for i := 0; i < 14; i++ {
		push(i, 100, 100.5, 99.5, 100)
	}
	push(14, 100, 100.5, 84.5, 85) // impulse: full-ATR bear body
	push(15, 85, 85.5, 83.5, 84)   // continuation under the lower band

	snaps := []indicator.Snapshot{
		warmSnap(12, 100), warmSnap(13, 100), warmSnap(14, 85), warmSnap(15, 84),
	}
	snaps[3].RSI = 20

	d := New(DefaultConfig())
	sig := d.Detect(Input{Candles: win, Snaps: snaps})
	if sig.Kind != KindMeanReversion {
		t.Fatalf("kind = %s, want %s", sig.Kind, KindMeanReversion)
	}
	if sig.Direction != model.Long {
		t.Fatalf("direction = %s, want long (back toward the mid-band)", sig.Direction)
	}

	// With RSI back in neutral territory the same bar falls through to the
	// momentum catch-all, short side.
	snaps[3].RSI = 50
	sig = d.Detect(Input{Candles: win, Snaps: snaps})
	if sig.Kind != KindMomentum {
		t.Fatalf("kind = %s, want %s after RSI reset", sig.Kind, KindMomentum)
	}
	if sig.Direction != model.Short {
		t.Fatalf("direction = %s, want short", sig.Direction)
	}
}

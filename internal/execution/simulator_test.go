package execution

import (
	"math"
	"testing"
	"time"

	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/risk"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func candle(open, high, low, close float64) model.Candle {
	return model.Candle{OpenTime: t0, Open: open, High: high, Low: low, Close: close, Volume: 1000}
}

func openLong(s *Simulator) model.Position {
	p := risk.Proposal{
		Direction: model.Long, Pattern: "breakout", Confidence: 0.8,
		EntryPrice: 1000, StopPrice: 900, TargetPrice: 1175, Size: 2, Leverage: 3,
	}
	return s.Open(p, candle(995, 1002, 990, 1000), 60, 10000)
}

func openShort(s *Simulator) model.Position {
	p := risk.Proposal{
		Direction: model.Short, Pattern: "mean_reversion", Confidence: 0.6,
		EntryPrice: 1000, StopPrice: 1100, TargetPrice: 825, Size: 2, Leverage: 3,
	}
	return s.Open(p, candle(1005, 1010, 998, 1000), 60, 10000)
}

func assertClose(t *testing.T, got, want, tol float64, name string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

// ──────────────────────────── opening ────────────────────────────

func TestOpenSetsLevels(t *testing.T) {
	s := New(DefaultConfig())

	long := openLong(s)
	assertClose(t, long.EntryPrice, 1000, 1e-9, "entry")
	assertClose(t, long.StopPrice, 900, 1e-9, "stop")
	assertClose(t, long.TargetPrice, 1175, 1e-9, "target")
	assertClose(t, long.Liquidation, 700, 1e-9, "liquidation") // 1000×(1−0.9/3)
	if long.TrailingActive() {
		t.Error("trailing stop armed at open")
	}
	assertClose(t, long.EntryEquity, 10000, 1e-9, "entry equity")

	short := openShort(s)
	assertClose(t, short.Liquidation, 1300, 1e-9, "short liquidation")
}

// ──────────────────────────── exits ────────────────────────────

func TestStopWinsWhenBothLevelsInOneCandle(t *testing.T) {
	s := New(DefaultConfig())
	pos := openLong(s)

	// One wide candle spans both the 900 stop and the 1175 target.
	tr, closed := s.Advance(&pos, candle(1000, 1200, 880, 1150), 50)
	if !closed {
		t.Fatal("position not closed")
	}
	if tr.ExitReason != model.ExitStop {
		t.Fatalf("exit reason = %s, want stop", tr.ExitReason)
	}
	assertClose(t, tr.ExitPrice, 900, 1e-9, "fill")
	assertClose(t, tr.RealizedPnL, -200, 1e-9, "pnl")
	assertClose(t, tr.PnLPercent, -2, 1e-9, "pnl %")
}

func TestGapThroughStopFillsAtOpen(t *testing.T) {
	s := New(DefaultConfig())
	pos := openLong(s)

	tr, closed := s.Advance(&pos, candle(850, 870, 840, 860), 50)
	if !closed {
		t.Fatal("position not closed")
	}
	if tr.ExitReason != model.ExitStop {
		t.Fatalf("exit reason = %s, want stop", tr.ExitReason)
	}
	assertClose(t, tr.ExitPrice, 850, 1e-9, "fill")
	assertClose(t, tr.RealizedPnL, -300, 1e-9, "pnl")
}

func TestTargetExit(t *testing.T) {
	s := New(DefaultConfig())
	pos := openLong(s)

	tr, closed := s.Advance(&pos, candle(1150, 1180, 1140, 1170), 50)
	if !closed {
		t.Fatal("position not closed")
	}
	if tr.ExitReason != model.ExitTarget {
		t.Fatalf("exit reason = %s, want target", tr.ExitReason)
	}
	assertClose(t, tr.ExitPrice, 1175, 1e-9, "fill")
	assertClose(t, tr.RealizedPnL, 350, 1e-9, "pnl")
	assertClose(t, tr.PnLPercent, 3.5, 1e-9, "pnl %")
}

func TestShortStopExit(t *testing.T) {
	s := New(DefaultConfig())
	pos := openShort(s)

	tr, closed := s.Advance(&pos, candle(1050, 1120, 1040, 1110), 50)
	if !closed {
		t.Fatal("position not closed")
	}
	if tr.ExitReason != model.ExitStop {
		t.Fatalf("exit reason = %s, want stop", tr.ExitReason)
	}
	assertClose(t, tr.ExitPrice, 1100, 1e-9, "fill")
	assertClose(t, tr.RealizedPnL, -200, 1e-9, "pnl")
}

func TestLiquidationWipesMargin(t *testing.T) {
	s := New(DefaultConfig())
	pos := openLong(s)

	tr, closed := s.Advance(&pos, candle(980, 985, 690, 700), 50)
	if !closed {
		t.Fatal("position not closed")
	}
	if tr.ExitReason != model.ExitLiquidation {
		t.Fatalf("exit reason = %s, want liquidation", tr.ExitReason)
	}
	assertClose(t, tr.ExitPrice, 700, 1e-9, "fill")
	// The loss is 90% of entry equity, not the marked fill distance.
	assertClose(t, tr.RealizedPnL, -9000, 1e-9, "pnl")
	assertClose(t, tr.PnLPercent, -90, 1e-9, "pnl %")
}

// ──────────────────────────── trailing stop ────────────────────────────

func TestTrailingStopArmsRatchetsAndExits(t *testing.T) {
	s := New(DefaultConfig())
	pos := openLong(s)

	// +2% close arms the trail at close − 1.5×ATR.
	if _, closed := s.Advance(&pos, candle(1000, 1025, 995, 1020), 10); closed {
		t.Fatal("closed on the arming candle")
	}
	assertClose(t, pos.TrailingStop, 1005, 1e-9, "armed trail")

	// Higher close ratchets it up.
	if _, closed := s.Advance(&pos, candle(1020, 1035, 1010, 1030), 10); closed {
		t.Fatal("closed on the ratchet candle")
	}
	assertClose(t, pos.TrailingStop, 1015, 1e-9, "ratcheted trail")

	// A weaker close never loosens the trail.
	if _, closed := s.Advance(&pos, candle(1030, 1031, 1016, 1020), 10); closed {
		t.Fatal("closed on the weak candle")
	}
	assertClose(t, pos.TrailingStop, 1015, 1e-9, "trail after weak close")

	// Finally the low tags the trail.
	tr, closed := s.Advance(&pos, candle(1030, 1032, 1012, 1013), 10)
	if !closed {
		t.Fatal("position not closed")
	}
	if tr.ExitReason != model.ExitTrailingStop {
		t.Fatalf("exit reason = %s, want trailing_stop", tr.ExitReason)
	}
	assertClose(t, tr.ExitPrice, 1015, 1e-9, "fill")
	assertClose(t, tr.RealizedPnL, 30, 1e-9, "pnl")
}

func TestTrailingNotArmedBelowActivation(t *testing.T) {
	s := New(DefaultConfig())
	pos := openLong(s)

	// +1% is below the 1.5% activation threshold.
	if _, closed := s.Advance(&pos, candle(1000, 1015, 998, 1010), 10); closed {
		t.Fatal("unexpected close")
	}
	if pos.TrailingActive() {
		t.Errorf("trail armed at +1%%: %v", pos.TrailingStop)
	}
}

// ──────────────────────────── manual close & fees ────────────────────────────

func TestManualClose(t *testing.T) {
	s := New(DefaultConfig())
	pos := openLong(s)

	tr := s.CloseAt(&pos, 1010, t0.Add(time.Hour), model.ExitManual)
	if tr.ExitReason != model.ExitManual {
		t.Fatalf("exit reason = %s, want manual", tr.ExitReason)
	}
	assertClose(t, tr.RealizedPnL, 20, 1e-9, "pnl")
}

func TestPerTradeFee(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeePerTrade = 5
	s := New(cfg)
	pos := openLong(s)

	tr, closed := s.Advance(&pos, candle(1150, 1180, 1140, 1170), 50)
	if !closed {
		t.Fatal("position not closed")
	}
	assertClose(t, tr.RealizedPnL, 345, 1e-9, "pnl net of fee")
}

// Package engine drives the strategy cycle: once per closed candle it
// sequences indicators → pattern detector → risk manager → fill simulator →
// equity bookkeeping. The same driver serves live paper trading and
// historical replay; given the same candle sequence it produces identical
// decisions.
//
// All mutation happens inside one cycle on one goroutine. The RWMutex only
// guards the read-only snapshot accessors used by the dashboard.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"pattern-traderv1/internal/execution"
	"pattern-traderv1/internal/indicator"
	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/pattern"
	"pattern-traderv1/internal/perf"
	"pattern-traderv1/internal/risk"
	"pattern-traderv1/internal/window"
)

// snapKeep bounds the snapshot history handed to the detector.
const snapKeep = 16

// Params is the immutable configuration of one engine instance.
type Params struct {
	Instrument      string
	Timeframe       time.Duration
	StartingCapital float64
	WindowSize      int // candle lookback, must cover the detector's needs

	Limits   risk.Limits
	Detector pattern.Config
	Fills    execution.Config
}

// DefaultParams returns production defaults for the given instrument.
func DefaultParams(instrument string, tf time.Duration, capital float64) Params {
	return Params{
		Instrument:      instrument,
		Timeframe:       tf,
		StartingCapital: capital,
		WindowSize:      64,
		Limits:          risk.DefaultLimits(),
		Detector:        pattern.DefaultConfig(),
		Fills:           execution.DefaultConfig(),
	}
}

// CandleSource delivers closed candles in order. Next blocks until a candle
// is available; it returns io.EOF when the sequence is exhausted.
type CandleSource interface {
	Next(ctx context.Context) (model.Candle, error)
}

// SliceSource replays a recorded candle sequence. It never blocks.
type SliceSource struct {
	candles []model.Candle
	i       int
}

func NewSliceSource(candles []model.Candle) *SliceSource {
	return &SliceSource{candles: candles}
}

func (s *SliceSource) Next(_ context.Context) (model.Candle, error) {
	if s.i >= len(s.candles) {
		return model.Candle{}, io.EOF
	}
	c := s.candles[s.i]
	s.i++
	return c, nil
}

// Rejection records why the last signal was turned down.
type Rejection struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
}

// Engine holds all strategy state for a single instrument.
type Engine struct {
	params   Params
	tracker  *indicator.Tracker
	win      *window.Window
	detector *pattern.Detector
	riskMgr  *risk.Manager
	sim      *execution.Simulator
	sink     model.Sink

	mu        sync.RWMutex
	snaps     []indicator.Snapshot
	pos       *model.Position
	trades    []model.Trade
	equity    []model.EquityPoint
	cash      float64 // realized equity
	rejection *Rejection
	cycles    int
	eqNext    int // index of the next equity point
	prev      model.Candle
}

// New creates an engine. A nil sink discards events.
func New(p Params, sink model.Sink) *Engine {
	if p.WindowSize <= 0 {
		p.WindowSize = 64
	}
	if sink == nil {
		sink = model.MultiSink{}
	}
	return &Engine{
		params:   p,
		tracker:  indicator.NewTracker(),
		win:      window.New(p.WindowSize),
		detector: pattern.New(p.Detector),
		riskMgr:  risk.NewManager(p.Limits),
		sim:      execution.New(p.Fills),
		sink:     sink,
		cash:     p.StartingCapital,
	}
}

// Step runs one full cycle for a closed candle. A continuity violation
// (model.ErrOutOfOrder, model.ErrGap) is fatal and leaves state untouched.
func (e *Engine) Step(c model.Candle) error {
	if err := model.ValidateNext(e.prev, c, e.params.Timeframe); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.prev = c
	snap := e.tracker.Update(c)
	e.win.Push(c)
	e.snaps = append(e.snaps, snap)
	if len(e.snaps) > snapKeep {
		e.snaps = e.snaps[1:]
	}
	e.riskMgr.Roll(c.DayKey(), e.cash)

	// Exits resolve before any new signal: the same candle may close one
	// position and open the next.
	if e.pos != nil {
		if trade, closed := e.sim.Advance(e.pos, c, snap.ATR); closed {
			e.applyClose(trade)
		}
	}

	if e.pos == nil {
		sig := e.detector.Detect(pattern.Input{Candles: e.win, Snaps: e.snaps})
		if sig.Kind != pattern.KindNone {
			prop, reason := e.riskMgr.Evaluate(sig, c.Close, snap.ATR, e.cash, false)
			if reason != "" {
				e.rejection = &Rejection{Pattern: string(sig.Kind), Reason: reason}
				e.sink.SignalRejected(string(sig.Kind), reason)
			} else {
				pos := e.sim.Open(prop, c, snap.Index, e.cash)
				e.pos = &pos
				e.riskMgr.RecordOpen()
				log.Printf("[engine] %s open %s %s size=%.6f entry=%.2f stop=%.2f target=%.2f",
					e.params.Instrument, pos.Direction, pos.Pattern,
					pos.Size, pos.EntryPrice, pos.StopPrice, pos.TargetPrice)
				e.sink.PositionOpened(pos)
			}
		}
	}

	// Exactly one equity point per cycle: realized plus mark-to-market.
	eq := e.cash
	if e.pos != nil {
		eq += e.pos.UnrealizedPnL(c.Close)
	}
	pt := model.EquityPoint{Index: e.eqNext, TS: c.OpenTime, Equity: eq}
	e.eqNext++
	e.equity = append(e.equity, pt)
	e.sink.EquityAppended(pt)
	e.cycles++
	return nil
}

// Warmup feeds one candle into the indicators and the lookback window
// without trading or equity bookkeeping. Backfilled history goes through
// here so a session starts with warm indicators but no replayed trades.
func (e *Engine) Warmup(c model.Candle) error {
	if err := model.ValidateNext(e.prev, c, e.params.Timeframe); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prev = c
	snap := e.tracker.Update(c)
	e.win.Push(c)
	e.snaps = append(e.snaps, snap)
	if len(e.snaps) > snapKeep {
		e.snaps = e.snaps[1:]
	}
	return nil
}

// Restore seeds the engine from a journaled prior session: the closed-trade
// ledger, the equity curve, the realized capital they imply, and the daily
// counters of the journal's last day. Call before the first candle. The
// open position, if any, is not restored: the indicator state that produced
// its trailing exits cannot be reproduced from the journal.
func (e *Engine) Restore(trades []model.Trade, equity []model.EquityPoint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trades = append([]model.Trade(nil), trades...)
	e.equity = append([]model.EquityPoint(nil), equity...)

	cash := e.params.StartingCapital
	for _, t := range trades {
		cash += t.RealizedPnL
	}
	e.cash = cash

	if len(equity) == 0 {
		return
	}
	e.eqNext = equity[len(equity)-1].Index + 1

	day := equity[len(equity)-1].TS.UTC().Format("2006-01-02")
	ctr := risk.Counters{DayKey: day, DayStartEquity: cash}
	for _, t := range trades {
		if t.ClosedAt.UTC().Format("2006-01-02") != day {
			continue
		}
		ctr.Trades++
		ctr.DayStartEquity -= t.RealizedPnL
		if t.RealizedPnL < 0 {
			ctr.LossTotal += -t.RealizedPnL
		}
	}
	e.riskMgr.Restore(ctr)
	log.Printf("[engine] %s restored %d trades, equity %.2f (day %s: %d trades, loss %.2f)",
		e.params.Instrument, len(trades), cash, day, ctr.Trades, ctr.LossTotal)
}

// applyClose settles a closed trade. Caller holds the lock.
func (e *Engine) applyClose(t model.Trade) {
	e.cash += t.RealizedPnL
	e.trades = append(e.trades, t)
	e.riskMgr.RecordClose(t.RealizedPnL)
	e.pos = nil
	log.Printf("[engine] %s close %s %s @ %.2f pnl=%.2f (%s)",
		e.params.Instrument, t.Direction, t.Pattern, t.ExitPrice, t.RealizedPnL, t.ExitReason)
	e.sink.TradeClosed(t, e.cash)
}

// Run pulls candles from src until it is exhausted or ctx is cancelled.
// Cancellation is cooperative: only checked between cycles, so no cycle is
// ever interrupted mid-mutation.
func (e *Engine) Run(ctx context.Context, src CandleSource) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("candle source: %w", err)
		}
		if err := e.Step(c); err != nil {
			return fmt.Errorf("cycle %d: %w", e.cycles, err)
		}
	}
}

// CloseOpenPosition manually closes any dangling position at the last seen
// close, e.g. at the end of a replay. Returns false if none was open.
func (e *Engine) CloseOpenPosition(reason model.ExitReason) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos == nil {
		return false
	}
	t := e.sim.CloseAt(e.pos, e.prev.Close, e.prev.OpenTime, reason)
	e.applyClose(t)
	return true
}

// ──────────────────────────── snapshot accessors ────────────────────────────

// Position returns a copy of the open position, if any.
func (e *Engine) Position() (model.Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pos == nil {
		return model.Position{}, false
	}
	return *e.pos, true
}

// Trades returns a copy of the last n closed trades, oldest first.
// n <= 0 returns the full ledger.
func (e *Engine) Trades(n int) []model.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n <= 0 || n > len(e.trades) {
		n = len(e.trades)
	}
	out := make([]model.Trade, n)
	copy(out, e.trades[len(e.trades)-n:])
	return out
}

// EquityCurve returns a copy of the full equity point sequence.
func (e *Engine) EquityCurve() []model.EquityPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.EquityPoint, len(e.equity))
	copy(out, e.equity)
	return out
}

// Equity returns current equity: realized cash plus open-position
// mark-to-market at the last close.
func (e *Engine) Equity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	eq := e.cash
	if e.pos != nil {
		eq += e.pos.UnrealizedPnL(e.prev.Close)
	}
	return eq
}

// Performance computes the analyzer summary over the current ledger.
func (e *Engine) Performance() perf.Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return perf.Analyze(e.trades, e.equity, e.params.Timeframe)
}

// LastRejection returns the most recent risk rejection, if any.
func (e *Engine) LastRejection() (Rejection, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.rejection == nil {
		return Rejection{}, false
	}
	return *e.rejection, true
}

// Counters returns today's risk counters.
func (e *Engine) Counters() risk.Counters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.riskMgr.Counters()
}

// Cycles returns how many candles have been processed.
func (e *Engine) Cycles() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycles
}

// Params returns the engine's immutable configuration.
func (e *Engine) Params() Params { return e.params }

// LastSnapshot returns the newest indicator snapshot.
func (e *Engine) LastSnapshot() (indicator.Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.snaps) == 0 {
		return indicator.Snapshot{}, false
	}
	return e.snaps[len(e.snaps)-1], true
}

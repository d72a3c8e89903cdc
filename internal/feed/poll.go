package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pattern-traderv1/internal/model"
)

// closeGrace is how long after a candle's nominal close we wait before
// asking for it, covering exchange-side publication delay.
const closeGrace = 3 * time.Second

// retryDelay paces re-polls while the wanted candle is not yet published.
const retryDelay = 2 * time.Second

// PollSource is a live CandleSource: it emits each candle exactly once,
// strictly in order, and only after the candle has closed.
type PollSource struct {
	client *Client
	symbol string
	tf     time.Duration
	last   time.Time // open time of the last emitted candle
}

func NewPollSource(client *Client, symbol string, tf time.Duration) *PollSource {
	return &PollSource{client: client, symbol: symbol, tf: tf}
}

// Backfill fetches the most recent n closed candles, oldest first, and marks
// them as emitted so Next continues seamlessly after them.
func (p *PollSource) Backfill(ctx context.Context, n int) ([]model.Candle, error) {
	candles, err := p.client.Recent(ctx, p.symbol, p.tf, n+1)
	if err != nil {
		return nil, fmt.Errorf("backfill %s: %w", p.symbol, err)
	}
	candles = closedOnly(candles, p.tf)
	if len(candles) == 0 {
		return nil, fmt.Errorf("backfill %s: %w", p.symbol, ErrNoData)
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	p.last = candles[len(candles)-1].OpenTime
	return candles, nil
}

// Next blocks until the candle after the last emitted one has closed, then
// returns it. Timeout/retry policy lives here, not in the engine.
func (p *PollSource) Next(ctx context.Context) (model.Candle, error) {
	want := p.next()
	closeAt := want.Add(p.tf).Add(closeGrace)

	for {
		if wait := time.Until(closeAt); wait > 0 {
			select {
			case <-ctx.Done():
				return model.Candle{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		candles, err := p.client.Recent(ctx, p.symbol, p.tf, 4)
		if err != nil {
			return model.Candle{}, err
		}
		for _, c := range closedOnly(candles, p.tf) {
			if c.OpenTime.Equal(want) {
				p.last = want
				return c, nil
			}
		}

		slog.Debug("candle not yet published", "symbol", p.symbol, "open_time", want)
		select {
		case <-ctx.Done():
			return model.Candle{}, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// next returns the open time of the candle to emit.
func (p *PollSource) next() time.Time {
	if !p.last.IsZero() {
		return p.last.Add(p.tf)
	}
	// First call without backfill: the current in-progress bucket.
	return time.Now().UTC().Truncate(p.tf)
}

// closedOnly drops any candle whose bucket has not finished yet.
func closedOnly(candles []model.Candle, tf time.Duration) []model.Candle {
	now := time.Now().UTC()
	out := candles[:0]
	for _, c := range candles {
		if !c.OpenTime.Add(tf).After(now) {
			out = append(out, c)
		}
	}
	return out
}

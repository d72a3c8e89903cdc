// Package feed supplies candles: a Binance REST client for backfill, a
// polling live source that emits only closed candles, and a CSV loader for
// recorded sequences.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"pattern-traderv1/internal/model"
)

const (
	defaultBase = "https://api.binance.com"

	// Spot REST weight limit is 6000/min; klines cost 2. Stay well under.
	requestsPerSec = 10
	maxPerRequest  = 1000

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// ErrNoData means the exchange returned an empty kline set for the range.
var ErrNoData = errors.New("feed: no candles returned")

// Client is a Binance spot REST client with rate limiting and retries.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient creates a client. An empty base uses production Binance.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(requestsPerSec, 5),
	}
}

// Klines fetches closed candles for [start, end) in chunks of 1000,
// oldest first. A zero end means "up to now".
func (c *Client) Klines(ctx context.Context, symbol string, tf time.Duration, start, end time.Time) ([]model.Candle, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	var out []model.Candle
	cursor := start
	for cursor.Before(end) {
		batch, err := c.klinesPage(ctx, symbol, tf, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
		cursor = batch[len(batch)-1].OpenTime.Add(tf)
		if len(batch) < maxPerRequest {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, Interval(tf))
	}
	return out, nil
}

// Recent fetches the newest n candles, oldest first. The last one may still
// be in progress; callers filter by close time.
func (c *Client) Recent(ctx context.Context, symbol string, tf time.Duration, n int) ([]model.Candle, error) {
	if n > maxPerRequest {
		n = maxPerRequest
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", Interval(tf))
	q.Set("limit", strconv.Itoa(n))
	return c.fetch(ctx, q)
}

func (c *Client) klinesPage(ctx context.Context, symbol string, tf time.Duration, start, end time.Time) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", Interval(tf))
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli()-1, 10))
	q.Set("limit", strconv.Itoa(maxPerRequest))
	return c.fetch(ctx, q)
}

func (c *Client) fetch(ctx context.Context, q url.Values) ([]model.Candle, error) {
	var raw [][]any
	if err := c.get(ctx, c.base+"/api/v3/klines?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	out := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}
	return out, nil
}

// get performs a rate-limited GET with exponential backoff on 429/5xx.
func (c *Client) get(ctx context.Context, u string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("feed retrying", "status", resp.StatusCode, "attempt", attempt+1)
			sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("klines status %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode klines: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func sleep(ctx context.Context, attempt int) {
	wait := baseRetryWait << attempt
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

// parseKline decodes one Binance kline row:
// [openTime, open, high, low, close, volume, closeTime, ...] where prices
// and volume arrive as strings.
func parseKline(k []any) (model.Candle, error) {
	if len(k) < 6 {
		return model.Candle{}, fmt.Errorf("kline row has %d fields, want >= 6", len(k))
	}
	ms, ok := k[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("kline open time %v is not a number", k[0])
	}
	c := model.Candle{OpenTime: time.UnixMilli(int64(ms)).UTC()}
	for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		s, ok := k[i+1].(string)
		if !ok {
			return model.Candle{}, fmt.Errorf("kline field %d: %v is not a string", i+1, k[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		*dst = v
	}
	return c, nil
}

// Interval maps a timeframe to Binance's kline interval string.
func Interval(tf time.Duration) string {
	switch tf {
	case time.Minute:
		return "1m"
	case 3 * time.Minute:
		return "3m"
	case 5 * time.Minute:
		return "5m"
	case 15 * time.Minute:
		return "15m"
	case 30 * time.Minute:
		return "30m"
	case time.Hour:
		return "1h"
	case 2 * time.Hour:
		return "2h"
	case 4 * time.Hour:
		return "4h"
	case 6 * time.Hour:
		return "6h"
	case 12 * time.Hour:
		return "12h"
	case 24 * time.Hour:
		return "1d"
	default:
		return fmt.Sprintf("%dm", int(tf.Minutes()))
	}
}

// Package redis publishes engine events to Redis streams so external
// consumers (dashboards, alerting, research notebooks) can tail them without
// touching the engine. Streams are MAXLEN-trimmed; Redis being down degrades
// to dropped events, never a stalled cycle.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"pattern-traderv1/internal/model"
)

const (
	defaultMaxLen = 10000
	writeTimeout  = 2 * time.Second
)

// Config configures the publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	MaxLen   int64 // stream trim length, 0 = default
}

// Publisher is a model.Sink writing one stream per event type, keyed by
// instrument: pt:trades:<sym>, pt:equity:<sym>, pt:positions:<sym>,
// pt:rejections:<sym>.
type Publisher struct {
	client  *goredis.Client
	breaker *breaker
	maxLen  int64

	trades     string
	equity     string
	positions  string
	rejections string
}

// New connects and pings the server.
func New(cfg Config, instrument string) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{
		client:     client,
		breaker:    newBreaker(5, 10*time.Second),
		maxLen:     maxLen,
		trades:     "pt:trades:" + instrument,
		equity:     "pt:equity:" + instrument,
		positions:  "pt:positions:" + instrument,
		rejections: "pt:rejections:" + instrument,
	}, nil
}

// Close closes the connection.
func (p *Publisher) Close() error { return p.client.Close() }

// Client exposes the underlying client for liveness probes.
func (p *Publisher) Client() *goredis.Client { return p.client }

func (p *Publisher) PositionOpened(pos model.Position) {
	p.add(p.positions, pos)
}

func (p *Publisher) TradeClosed(t model.Trade, equity float64) {
	p.add(p.trades, struct {
		model.Trade
		Equity float64 `json:"equity"`
	}{t, equity})
}

func (p *Publisher) EquityAppended(pt model.EquityPoint) {
	p.add(p.equity, pt)
}

func (p *Publisher) SignalRejected(pattern, reason string) {
	p.add(p.rejections, map[string]string{"pattern": pattern, "reason": reason})
}

func (p *Publisher) add(stream string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("[redis] marshal %s: %v", stream, err)
		return
	}
	err = p.breaker.do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return p.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]any{"json": string(payload)},
		}).Err()
	})
	if err != nil && err != errBreakerOpen {
		log.Printf("[redis] xadd %s: %v", stream, err)
	}
}

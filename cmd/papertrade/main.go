// cmd/papertrade runs the strategy live against exchange candles with
// simulated fills. It persists the trade journal to SQLite, publishes
// events to Redis streams, serves the dashboard API and WebSocket feed,
// and exposes Prometheus metrics.
//
// Usage:
//
//	go run ./cmd/papertrade --config=config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pattern-traderv1/config"
	"pattern-traderv1/internal/engine"
	"pattern-traderv1/internal/feed"
	"pattern-traderv1/internal/gateway"
	"pattern-traderv1/internal/logger"
	"pattern-traderv1/internal/metrics"
	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/notification"
	redisstore "pattern-traderv1/internal/store/redis"
	sqlitestore "pattern-traderv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[papertrade] starting...")

	cfgPath := flag.String("config", "config.yaml", "Path to YAML config")
	flag.Parse()

	// ---- Load config ----
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[papertrade] config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[papertrade] config: %v", err)
	}
	logger.Init("papertrade", level)
	tf, _ := cfg.TimeframeDuration()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.New(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddr, health)
	metricsSrv.Start()

	// ---- SQLite journal ----
	os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755)
	journal, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.Storage.SQLitePath}, cfg.Instrument)
	if err != nil {
		log.Fatalf("[papertrade] sqlite init failed: %v", err)
	}
	defer journal.Close()
	if pos, ok, err := journal.OpenPosition(); err == nil && ok {
		log.Printf("[papertrade] WARNING: journal has an unfinished %s position from %s; it will not be resumed",
			pos.Direction, pos.OpenedAt.Format(time.RFC3339))
	}

	// ---- Sinks ----
	sinks := model.MultiSink{journal, prom.Sink()}

	var publisher *redisstore.Publisher
	if cfg.Storage.Redis.Enabled {
		publisher, err = redisstore.New(redisstore.Config{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			MaxLen:   cfg.Storage.Redis.MaxLen,
		}, cfg.Instrument)
		if err != nil {
			log.Printf("[papertrade] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer publisher.Close()
			sinks = append(sinks, publisher)
		}
	}

	hub := gateway.NewHub()
	sinks = append(sinks, hub)
	sinks = append(sinks, notification.NewTradeSink(buildNotifier(cfg), cfg.Instrument))
	sinks = append(sinks, healthSink{health})

	// ---- Liveness checks ----
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), journal.DB(), 30*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, journal.DB(), 30*time.Second)
	}

	// ---- Engine ----
	params := engine.DefaultParams(cfg.Instrument, tf, cfg.StartingCapital)
	params.Limits = cfg.Limits()
	params.Fills = cfg.Fills()
	eng := engine.New(params, sinks)

	// ---- Restore journaled session ----
	priorTrades, err := journal.Trades(0)
	if err != nil {
		log.Fatalf("[papertrade] journal trades: %v", err)
	}
	priorEquity, err := journal.Equity()
	if err != nil {
		log.Fatalf("[papertrade] journal equity: %v", err)
	}
	if len(priorTrades) > 0 || len(priorEquity) > 0 {
		eng.Restore(priorTrades, priorEquity)
	}

	// ---- Feed: backfill then live polling ----
	client := feed.NewClient(cfg.Feed.BaseURL)
	src := feed.NewPollSource(client, cfg.Instrument, tf)

	backfillCtx, backfillCancel := context.WithTimeout(ctx, 2*time.Minute)
	warmup, err := src.Backfill(backfillCtx, cfg.Feed.Backfill)
	backfillCancel()
	if err != nil {
		log.Fatalf("[papertrade] backfill failed: %v", err)
	}
	for _, c := range warmup {
		if err := eng.Warmup(c); err != nil {
			log.Fatalf("[papertrade] warmup: %v", err)
		}
	}
	log.Printf("[papertrade] warmed indicators on %d backfilled candles", len(warmup))
	health.SetFeedOK(true)

	// ---- Dashboard API ----
	api := &gateway.API{Engine: eng, Hub: hub, Started: time.Now()}
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	apiSrv := &http.Server{Addr: cfg.Server.APIAddr, Handler: mux}
	go func() {
		log.Printf("[papertrade] api listening on %s", cfg.Server.APIAddr)
		if err := apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[papertrade] api server error: %v", err)
		}
	}()

	// ---- Periodic status line ----
	go func() {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Println(statusLine(eng))
			}
		}
	}()

	// ---- Live loop ----
	runErr := make(chan error, 1)
	go func() {
		log.Printf("[papertrade] live: %s %s, equity %.2f",
			cfg.Instrument, cfg.Timeframe, eng.Equity())
		runErr <- eng.Run(ctx, src)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("[papertrade] received %v, shutting down", sig)
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			log.Printf("[papertrade] engine stopped: %v", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[papertrade] bye")
}

// buildNotifier picks the configured alert channel. Telegram wins when both
// its settings are present; without any channel, alerts go to the log.
func buildNotifier(cfg *config.Config) notification.Notifier {
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		return notification.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	}
	if cfg.Notify.WebhookURL != "" {
		return notification.NewWebhookNotifier(cfg.Notify.WebhookURL)
	}
	return notification.NewLogNotifier()
}

// statusInterval paces the periodic session summary in the log.
const statusInterval = 5 * time.Minute

// statusLine summarizes the session: equity, cycle count, the open
// position and today's risk counters.
func statusLine(e *engine.Engine) string {
	ctr := e.Counters()
	posDesc := "none"
	if pos, ok := e.Position(); ok {
		posDesc = fmt.Sprintf("%s %s @ %.2f", pos.Direction, pos.Pattern, pos.EntryPrice)
	}
	return fmt.Sprintf("[papertrade] status: equity=%.2f cycles=%d position=%s trades_today=%d loss_today=%.2f",
		e.Equity(), e.Cycles(), posDesc, ctr.Trades, ctr.LossTotal)
}

// healthSink tracks feed liveness from cycle events.
type healthSink struct {
	h *metrics.HealthStatus
}

func (s healthSink) PositionOpened(model.Position)       {}
func (s healthSink) TradeClosed(model.Trade, float64)    {}
func (s healthSink) SignalRejected(string, string)       {}
func (s healthSink) EquityAppended(pt model.EquityPoint) { s.h.SetLastCandleTime(pt.TS) }

// cmd/backtest replays historical candles through the strategy engine and
// prints the trade ledger and performance summary.
//
// Usage:
//
//	go run ./cmd/backtest --config=config.yaml --from=2024-01-01 --to=2024-06-01
//	go run ./cmd/backtest --csv=data/btc_1h.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"pattern-traderv1/config"
	"pattern-traderv1/internal/engine"
	"pattern-traderv1/internal/feed"
	"pattern-traderv1/internal/logger"
	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/perf"
)

const dateLayout = "2006-01-02"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfgPath := flag.String("config", "config.yaml", "Path to YAML config")
	csvPath := flag.String("csv", "", "Replay candles from CSV instead of fetching")
	fromStr := flag.String("from", "", "Fetch start date (YYYY-MM-DD)")
	toStr := flag.String("to", "", "Fetch end date (YYYY-MM-DD, default now)")
	savePath := flag.String("save", "", "Save fetched candles to CSV for later replay")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	logger.Init("backtest", level)

	tf, _ := cfg.TimeframeDuration()

	// ---- Load candles ----
	candles, err := loadCandles(cfg, tf, *csvPath, *fromStr, *toStr)
	if err != nil {
		log.Fatalf("[backtest] load candles: %v", err)
	}
	log.Printf("[backtest] %s %s: %d candles from %s to %s",
		cfg.Instrument, cfg.Timeframe, len(candles),
		candles[0].OpenTime.Format(dateLayout),
		candles[len(candles)-1].OpenTime.Format(dateLayout))

	if *savePath != "" {
		if err := feed.SaveCSV(*savePath, candles); err != nil {
			log.Fatalf("[backtest] save csv: %v", err)
		}
		log.Printf("[backtest] saved candles to %s", *savePath)
	}

	// ---- Replay ----
	params := engine.DefaultParams(cfg.Instrument, tf, cfg.StartingCapital)
	params.Limits = cfg.Limits()
	params.Fills = cfg.Fills()

	e := engine.New(params, nil)
	if err := e.Run(context.Background(), engine.NewSliceSource(candles)); err != nil {
		log.Fatalf("[backtest] replay: %v", err)
	}
	e.CloseOpenPosition(model.ExitManual)

	report(e)
}

func loadCandles(cfg *config.Config, tf time.Duration, csvPath, fromStr, toStr string) ([]model.Candle, error) {
	if csvPath != "" {
		return feed.LoadCSV(csvPath)
	}
	if fromStr == "" {
		return nil, fmt.Errorf("either --csv or --from is required")
	}
	from, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return nil, fmt.Errorf("parse --from: %w", err)
	}
	to := time.Now().UTC()
	if toStr != "" {
		if to, err = time.Parse(dateLayout, toStr); err != nil {
			return nil, fmt.Errorf("parse --to: %w", err)
		}
	}

	client := feed.NewClient(cfg.Feed.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return client.Klines(ctx, cfg.Instrument, tf, from, to)
}

func report(e *engine.Engine) {
	trades := e.Trades(0)

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Dir", "Pattern", "Opened", "Entry", "Exit", "Reason", "PnL", "PnL %"})
	for i, t := range trades {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			string(t.Direction),
			t.Pattern,
			t.OpenedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.4f", t.EntryPrice),
			fmt.Sprintf("%.4f", t.ExitPrice),
			string(t.ExitReason),
			fmt.Sprintf("%+.2f", t.RealizedPnL),
			fmt.Sprintf("%+.2f%%", t.PnLPercent),
		})
	}
	table.Render()

	printSummary(e.Performance(), e.Params().StartingCapital, e.Equity())
}

func printSummary(s perf.Summary, startCapital, finalEquity float64) {
	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Starting capital", fmt.Sprintf("%.2f", startCapital)})
	table.Append([]string{"Final equity", fmt.Sprintf("%.2f", finalEquity)})
	table.Append([]string{"Net profit", fmt.Sprintf("%+.2f", s.NetProfit)})
	table.Append([]string{"Total trades", fmt.Sprintf("%d", s.TotalTrades)})
	table.Append([]string{"Wins / losses", fmt.Sprintf("%d / %d", s.Wins, s.Losses)})
	table.Append([]string{"Win rate", fmtRatio(s.WinRate, "%.1f%%", 100)})
	table.Append([]string{"Avg win", fmt.Sprintf("%.2f", s.AvgWin)})
	table.Append([]string{"Avg loss", fmt.Sprintf("%.2f", s.AvgLoss)})
	table.Append([]string{"Profit factor", fmtRatio(s.ProfitFactor, "%.2f", 1)})
	table.Append([]string{"Expectancy", fmtRatio(s.Expectancy, "%.2f", 1)})
	table.Append([]string{"Sharpe (annualized)", fmtRatio(s.Sharpe, "%.2f", 1)})
	table.Append([]string{"Max drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdownPct)})
	table.Append([]string{"Max consecutive losses", fmt.Sprintf("%d", s.MaxConsecutiveLosses)})
	table.Render()
}

// fmtRatio renders optional metrics, printing "n/a" when undefined.
func fmtRatio(v *float64, format string, scale float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v*scale)
}

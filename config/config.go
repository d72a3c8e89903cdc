// Package config loads application configuration from an optional YAML
// file, with environment variables taking precedence. A .env file is
// honored for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pattern-traderv1/internal/execution"
	"pattern-traderv1/internal/risk"
)

// Config holds all application configuration.
type Config struct {
	Instrument      string  `yaml:"instrument"`
	Timeframe       string  `yaml:"timeframe"` // e.g. "1m", "1h", "1d"
	StartingCapital float64 `yaml:"starting_capital"`

	Risk struct {
		RiskPerTrade     float64 `yaml:"risk_per_trade"`
		LeverageCap      float64 `yaml:"leverage_cap"`
		StopATR          float64 `yaml:"stop_atr"`
		TargetATR        float64 `yaml:"target_atr"`
		MaxTradesPerDay  int     `yaml:"max_trades_per_day"`
		MaxDailyLossFrac float64 `yaml:"max_daily_loss_frac"`
	} `yaml:"risk"`

	Execution struct {
		TrailingActivationPct float64 `yaml:"trailing_activation_pct"`
		TrailingATR           float64 `yaml:"trailing_atr"`
		FeePerTrade           float64 `yaml:"fee_per_trade"`
	} `yaml:"execution"`

	Feed struct {
		BaseURL  string `yaml:"base_url"` // empty = exchange default
		Backfill int    `yaml:"backfill"` // candles to preload before live polling
	} `yaml:"feed"`

	Storage struct {
		SQLitePath string `yaml:"sqlite_path"`
		Redis      struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			MaxLen   int64  `yaml:"max_len"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Server struct {
		APIAddr     string `yaml:"api_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`

	Notify struct {
		TelegramToken  string `yaml:"telegram_token"`
		TelegramChatID string `yaml:"telegram_chat_id"`
		WebhookURL     string `yaml:"webhook_url"`
	} `yaml:"notify"`

	LogLevel string `yaml:"log_level"`
}

// defaults mirrors a conservative single-instrument setup.
func defaults() *Config {
	c := &Config{
		Instrument:      "BTCUSDT",
		Timeframe:       "1h",
		StartingCapital: 10000,
		LogLevel:        "info",
	}
	l := risk.DefaultLimits()
	c.Risk.RiskPerTrade = l.RiskPerTrade
	c.Risk.LeverageCap = l.LeverageCap
	c.Risk.StopATR = l.StopATR
	c.Risk.TargetATR = l.TargetATR
	c.Risk.MaxTradesPerDay = l.MaxTradesPerDay
	c.Risk.MaxDailyLossFrac = l.MaxDailyLossFrac

	f := execution.DefaultConfig()
	c.Execution.TrailingActivationPct = f.TrailingActivationPct
	c.Execution.TrailingATR = f.TrailingATR
	c.Execution.FeePerTrade = f.FeePerTrade

	c.Feed.Backfill = 200
	c.Storage.SQLitePath = "data/trader.db"
	c.Storage.Redis.Addr = "localhost:6379"
	c.Storage.Redis.MaxLen = 10000
	c.Server.APIAddr = ":8080"
	c.Server.MetricsAddr = ":9090"
	return c
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	godotenv.Load()

	c := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.Instrument = getEnv("INSTRUMENT", c.Instrument)
	c.Timeframe = getEnv("TIMEFRAME", c.Timeframe)
	c.StartingCapital = getEnvFloat("STARTING_CAPITAL", c.StartingCapital)
	c.Feed.BaseURL = getEnv("FEED_BASE_URL", c.Feed.BaseURL)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.Redis.Addr = getEnv("REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnv("REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Server.APIAddr = getEnv("API_ADDR", c.Server.APIAddr)
	c.Server.MetricsAddr = getEnv("METRICS_ADDR", c.Server.MetricsAddr)
	c.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)
	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Instrument == "" {
		return fmt.Errorf("config: instrument must be set")
	}
	if _, err := c.TimeframeDuration(); err != nil {
		return err
	}
	if c.StartingCapital <= 0 {
		return fmt.Errorf("config: starting_capital must be positive, got %v", c.StartingCapital)
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade >= 1 {
		return fmt.Errorf("config: risk_per_trade must be in (0,1), got %v", c.Risk.RiskPerTrade)
	}
	if c.Risk.LeverageCap < 1 {
		return fmt.Errorf("config: leverage_cap must be >= 1, got %v", c.Risk.LeverageCap)
	}
	if c.Risk.StopATR <= 0 || c.Risk.TargetATR <= 0 {
		return fmt.Errorf("config: stop_atr and target_atr must be positive")
	}
	return nil
}

// TimeframeDuration parses the configured timeframe. "1d" style day
// suffixes are accepted alongside time.ParseDuration forms.
func (c *Config) TimeframeDuration() (time.Duration, error) {
	s := c.Timeframe
	if n := len(s); n > 1 && s[n-1] == 'd' {
		days, err := strconv.Atoi(s[:n-1])
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("config: invalid timeframe %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: invalid timeframe %q", s)
	}
	return d, nil
}

// Limits converts the risk section into the risk manager's limits.
func (c *Config) Limits() risk.Limits {
	return risk.Limits{
		RiskPerTrade:     c.Risk.RiskPerTrade,
		LeverageCap:      c.Risk.LeverageCap,
		StopATR:          c.Risk.StopATR,
		TargetATR:        c.Risk.TargetATR,
		MaxTradesPerDay:  c.Risk.MaxTradesPerDay,
		MaxDailyLossFrac: c.Risk.MaxDailyLossFrac,
	}
}

// Fills converts the execution section into the fill simulator's config.
func (c *Config) Fills() execution.Config {
	return execution.Config{
		TrailingActivationPct: c.Execution.TrailingActivationPct,
		TrailingATR:           c.Execution.TrailingATR,
		FeePerTrade:           c.Execution.FeePerTrade,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Instrument)
	assert.Equal(t, 10000.0, cfg.StartingCapital)
	assert.Equal(t, 0.02, cfg.Risk.RiskPerTrade)
	assert.Equal(t, 8, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, 1.5, cfg.Execution.TrailingActivationPct)

	tf, err := cfg.TimeframeDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, tf)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
instrument: ETHUSDT
timeframe: 15m
starting_capital: 25000
risk:
  risk_per_trade: 0.01
  leverage_cap: 3
  stop_atr: 2.0
  target_atr: 3.5
  max_trades_per_day: 4
  max_daily_loss_frac: 0.05
storage:
  sqlite_path: /tmp/eth.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Instrument)
	assert.Equal(t, 25000.0, cfg.StartingCapital)
	assert.Equal(t, "/tmp/eth.db", cfg.Storage.SQLitePath)

	limits := cfg.Limits()
	assert.Equal(t, 0.01, limits.RiskPerTrade)
	assert.Equal(t, 4, limits.MaxTradesPerDay)

	tf, err := cfg.TimeframeDuration()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, tf)
}

func TestEnvBeatsYAML(t *testing.T) {
	path := writeYAML(t, "instrument: ETHUSDT\n")
	t.Setenv("INSTRUMENT", "SOLUSDT")
	t.Setenv("STARTING_CAPITAL", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", cfg.Instrument)
	assert.Equal(t, 5000.0, cfg.StartingCapital)
}

func TestDaySuffixTimeframe(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Timeframe = "1d"

	tf, err := cfg.TimeframeDuration()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, tf)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"zero capital":  "starting_capital: 0\n",
		"risk too high": "risk:\n  risk_per_trade: 1.5\n",
		"bad timeframe": "timeframe: fast\n",
		"zero leverage": "risk:\n  leverage_cap: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			assert.Error(t, err)
		})
	}
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Instrument)
}

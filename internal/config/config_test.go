package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
trading:
  symbols: ["BTCUSDT"]
  initial_capital: 1000
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Trading.Mode)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, defaultAppStore, cfg.App.StorePath)
	assert.InDelta(t, defaultRiskMaxDailyLoss, cfg.Risk.MaxDailyLoss, 1e-9)
	assert.InDelta(t, defaultRiskPerTrade, cfg.Risk.RiskPerTrade, 1e-9)
	assert.Equal(t, defaultRiskMaxOpenPositions, cfg.Risk.MaxOpenPositions)
	assert.InDelta(t, defaultTradingThreshold, cfg.Trading.SignalThreshold, 1e-9)
	assert.Equal(t, defaultSignalMinConfirmations, cfg.Signal.MinConfirmations)
	assert.Equal(t, defaultMonStatsWindow, cfg.Monitoring.Thresholds.StatsWindow)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  http_addr: ":7070"
  log_level: debug
risk:
  max_daily_loss: 0.01
  max_weekly_loss: 0.04
  risk_per_trade: 0.005
trading:
  mode: live
  symbols: ["btc/usdt", "ETHUSDT"]
  signal_threshold: 0.7
  initial_capital: 2500
monitoring:
  thresholds:
    connectivity_timeout: 45
    slippage_zscore: 2.5
`))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.App.HTTPAddr)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.InDelta(t, 0.01, cfg.Risk.MaxDailyLoss, 1e-9)
	assert.InDelta(t, 0.005, cfg.Risk.RiskPerTrade, 1e-9)
	assert.Equal(t, "live", cfg.Trading.Mode)
	assert.False(t, cfg.Trading.Paper())
	assert.InDelta(t, 0.7, cfg.Trading.SignalThreshold, 1e-9)
	assert.InDelta(t, 2500, cfg.Trading.InitialCapital, 1e-9)
	assert.Equal(t, 45, cfg.Monitoring.Thresholds.ConnectivityTimeoutSec)
	assert.InDelta(t, 2.5, cfg.Monitoring.Thresholds.SlippageZScore, 1e-9)
}

func TestLoadRejectsBadMode(t *testing.T) {
	_, err := Load(writeConfig(t, `
trading:
  mode: backtest
  symbols: ["BTCUSDT"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading.mode")
}

func TestLoadRejectsInvertedLossWindows(t *testing.T) {
	_, err := Load(writeConfig(t, `
risk:
  max_daily_loss: 0.08
  max_weekly_loss: 0.05
trading:
  symbols: ["BTCUSDT"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_daily_loss")
}

func TestLoadRejectsLossFractionOutOfRange(t *testing.T) {
	_, err := Load(writeConfig(t, `
risk:
  risk_per_trade: 1.5
trading:
  symbols: ["BTCUSDT"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk_per_trade")
}

func TestLoadRejectsBlankSymbol(t *testing.T) {
	_, err := Load(writeConfig(t, `
trading:
  mode: paper
  symbols: ["BTCUSDT", "  "]
  initial_capital: 1000
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbols")
}

func TestLoadPaperModeRequiresCapital(t *testing.T) {
	_, err := Load(writeConfig(t, `
trading:
  mode: paper
  symbols: ["BTCUSDT"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial_capital")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = Load("  ")
	assert.Error(t, err)
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", " key ")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	s := LoadSecrets()
	assert.Equal(t, "key", s.ExchangeAPIKey)
	assert.Equal(t, "secret", s.ExchangeAPISecret)
	assert.Empty(t, s.TelegramBotToken)
	assert.Equal(t, "42", s.TelegramChatID)
}

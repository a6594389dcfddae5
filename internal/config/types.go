package config

import (
	"os"
	"strings"
	"time"
)

// Config is the root configuration of the execution core. Numeric risk
// bounds live under [risk]; they are copied into an immutable risk.Limits
// snapshot at load time and on every reload.
type Config struct {
	App        AppConfig        `toml:"app"`
	Risk       RiskConfig       `toml:"risk"`
	Trading    TradingConfig    `toml:"trading"`
	Signal     SignalConfig     `toml:"signal"`
	Monitoring MonitoringConfig `toml:"monitoring"`
	Exchange   ExchangeConfig   `toml:"exchange"`
	Notify     NotifyConfig     `toml:"notify"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
	StorePath string `toml:"store_path"`
}

// RiskConfig carries every pre-trade bound. All loss limits are positive
// fractions of capital (0.02 means 2%); they are compared against negative
// PnL ratios internally.
type RiskConfig struct {
	MaxDailyLoss     float64   `toml:"max_daily_loss"`
	MaxWeeklyLoss    float64   `toml:"max_weekly_loss"`
	MaxMonthlyLoss   float64   `toml:"max_monthly_loss"`
	MaxPositionSize  float64   `toml:"max_position_size"`
	MaxPositionRatio float64   `toml:"max_position_ratio"`
	MaxTotalExposure float64   `toml:"max_total_exposure"`
	RiskPerTrade     float64   `toml:"risk_per_trade"`
	MaxOpenPositions int       `toml:"max_open_positions"`
	MaxDailyTrades   int       `toml:"max_daily_trades"`
	MinConfidence    float64   `toml:"min_confidence"`
	MaxSlippage      float64   `toml:"max_slippage"`
	MinVolume24h     float64   `toml:"min_volume_24h"`
	StopLossPct      float64   `toml:"stop_loss_pct"`
	TakeProfitPct    float64   `toml:"take_profit_pct"`
	TakeProfitLevels []float64 `toml:"take_profit_levels"`
	TrailingStop     bool      `toml:"trailing_stop"`
}

type TradingConfig struct {
	Mode                string   `toml:"mode"` // "live" | "paper"
	Symbols             []string `toml:"symbols"`
	MaxPositions        int      `toml:"max_positions"`
	MinOrderIntervalSec int      `toml:"min_order_interval"`
	SignalThreshold     float64  `toml:"signal_threshold"`
	ExchangeMinNotional float64  `toml:"exchange_min_notional"`
	InitialCapital      float64  `toml:"initial_capital"`
	ReserveRatio        float64  `toml:"reserve_ratio"`
}

func (t TradingConfig) MinOrderInterval() time.Duration {
	return time.Duration(t.MinOrderIntervalSec) * time.Second
}

func (t TradingConfig) Paper() bool {
	return strings.EqualFold(strings.TrimSpace(t.Mode), "paper")
}

// SignalConfig controls the validator: composite weights and market-quality
// gates. Weights are normalized at load time so they always sum to one.
type SignalConfig struct {
	Weights          WeightConfig `toml:"weights"`
	MinConfirmations int          `toml:"min_confirmations"`
	MaxSpread        float64      `toml:"max_spread"`
	MaxVolatility    float64      `toml:"max_volatility"`
}

type WeightConfig struct {
	Indicator float64 `toml:"indicator"`
	Pattern   float64 `toml:"pattern"`
	Volume    float64 `toml:"volume"`
	Context   float64 `toml:"context"`
}

func (w WeightConfig) Sum() float64 {
	return w.Indicator + w.Pattern + w.Volume + w.Context
}

type MonitoringConfig struct {
	Thresholds        ThresholdConfig `toml:"thresholds"`
	HealthIntervalSec int             `toml:"health_interval"`
}

func (m MonitoringConfig) HealthInterval() time.Duration {
	return time.Duration(m.HealthIntervalSec) * time.Second
}

type ThresholdConfig struct {
	ConnectivityTimeoutSec int     `toml:"connectivity_timeout"`
	LiquidationTimeoutSec  int     `toml:"liquidation_timeout"`
	SlippageZScore         float64 `toml:"slippage_zscore"`
	FillLatencyZScore      float64 `toml:"fill_latency_zscore"`
	StatsWindow            int     `toml:"stats_window"`
}

func (t ThresholdConfig) ConnectivityTimeout() time.Duration {
	return time.Duration(t.ConnectivityTimeoutSec) * time.Second
}

func (t ThresholdConfig) LiquidationTimeout() time.Duration {
	return time.Duration(t.LiquidationTimeoutSec) * time.Second
}

type ExchangeConfig struct {
	Name    string `toml:"name"`
	Testnet bool   `toml:"testnet"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled bool `toml:"enabled"`
}

// Secrets are read exclusively from the environment and are never part of
// the config file, never logged.
type Secrets struct {
	ExchangeAPIKey    string
	ExchangeAPISecret string
	TelegramBotToken  string
	TelegramChatID    string
}

func LoadSecrets() Secrets {
	return Secrets{
		ExchangeAPIKey:    strings.TrimSpace(os.Getenv("BINANCE_API_KEY")),
		ExchangeAPISecret: strings.TrimSpace(os.Getenv("BINANCE_API_SECRET")),
		TelegramBotToken:  strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:    strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
	}
}

// keySet tracks which field paths were explicitly set in the config file so
// defaults never clobber deliberate zero values.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

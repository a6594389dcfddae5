package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9980"
	defaultAppStore    = "data/tradecore.db"

	defaultRiskMaxDailyLoss     = 0.02
	defaultRiskMaxWeeklyLoss    = 0.05
	defaultRiskMaxMonthlyLoss   = 0.10
	defaultRiskMaxTotalExposure = 0.50
	defaultRiskMaxPositionRatio = 0.10
	defaultRiskPerTrade         = 0.01
	defaultRiskMaxOpenPositions = 3
	defaultRiskMaxDailyTrades   = 10
	defaultRiskMinConfidence    = 0.80
	defaultRiskMaxSlippage      = 0.003
	defaultRiskStopLossPct      = 0.015
	defaultRiskTakeProfitPct    = 0.03

	defaultTradingMode         = "paper"
	defaultTradingMaxPositions = 3
	defaultTradingInterval     = 30
	defaultTradingThreshold    = 0.65
	defaultTradingMinNotional  = 10
	defaultTradingReserve      = 0.10

	defaultSignalMinConfirmations = 2
	defaultSignalMaxSpread        = 0.002
	defaultSignalMaxVolatility    = 0.05

	defaultMonHealthInterval     = 10
	defaultMonConnectivityTmout  = 60
	defaultMonLiquidationTmout   = 30
	defaultMonSlippageZScore     = 3.0
	defaultMonFillLatencyZScore  = 3.0
	defaultMonStatsWindow        = 50

	defaultExchangeName = "binance"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Monitoring.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.store_path", &a.StorePath, defaultAppStore),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_daily_loss", &r.MaxDailyLoss, defaultRiskMaxDailyLoss),
		floatFieldDefault("risk.max_weekly_loss", &r.MaxWeeklyLoss, defaultRiskMaxWeeklyLoss),
		floatFieldDefault("risk.max_monthly_loss", &r.MaxMonthlyLoss, defaultRiskMaxMonthlyLoss),
		floatFieldDefault("risk.max_total_exposure", &r.MaxTotalExposure, defaultRiskMaxTotalExposure),
		floatFieldDefault("risk.max_position_ratio", &r.MaxPositionRatio, defaultRiskMaxPositionRatio),
		floatFieldDefault("risk.risk_per_trade", &r.RiskPerTrade, defaultRiskPerTrade),
		intFieldDefault("risk.max_open_positions", &r.MaxOpenPositions, defaultRiskMaxOpenPositions),
		intFieldDefault("risk.max_daily_trades", &r.MaxDailyTrades, defaultRiskMaxDailyTrades),
		floatFieldDefault("risk.min_confidence", &r.MinConfidence, defaultRiskMinConfidence),
		floatFieldDefault("risk.max_slippage", &r.MaxSlippage, defaultRiskMaxSlippage),
		floatFieldDefault("risk.stop_loss_pct", &r.StopLossPct, defaultRiskStopLossPct),
		floatFieldDefault("risk.take_profit_pct", &r.TakeProfitPct, defaultRiskTakeProfitPct),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("trading.mode", &t.Mode, defaultTradingMode),
		intFieldDefault("trading.max_positions", &t.MaxPositions, defaultTradingMaxPositions),
		intFieldDefault("trading.min_order_interval", &t.MinOrderIntervalSec, defaultTradingInterval),
		floatFieldDefault("trading.signal_threshold", &t.SignalThreshold, defaultTradingThreshold),
		floatFieldDefault("trading.exchange_min_notional", &t.ExchangeMinNotional, defaultTradingMinNotional),
		floatFieldDefault("trading.reserve_ratio", &t.ReserveRatio, defaultTradingReserve),
	)
	if len(t.Symbols) == 0 {
		t.Symbols = []string{"BTCUSDT"}
	}
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("signal.min_confirmations", &s.MinConfirmations, defaultSignalMinConfirmations),
		floatFieldDefault("signal.max_spread", &s.MaxSpread, defaultSignalMaxSpread),
		floatFieldDefault("signal.max_volatility", &s.MaxVolatility, defaultSignalMaxVolatility),
	)
	if s.Weights.Sum() <= 0 {
		s.Weights = WeightConfig{Indicator: 0.30, Pattern: 0.25, Volume: 0.25, Context: 0.20}
	}
}

func (m *MonitoringConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("monitoring.health_interval", &m.HealthIntervalSec, defaultMonHealthInterval),
		intFieldDefault("monitoring.thresholds.connectivity_timeout", &m.Thresholds.ConnectivityTimeoutSec, defaultMonConnectivityTmout),
		intFieldDefault("monitoring.thresholds.liquidation_timeout", &m.Thresholds.LiquidationTimeoutSec, defaultMonLiquidationTmout),
		floatFieldDefault("monitoring.thresholds.slippage_zscore", &m.Thresholds.SlippageZScore, defaultMonSlippageZScore),
		floatFieldDefault("monitoring.thresholds.fill_latency_zscore", &m.Thresholds.FillLatencyZScore, defaultMonFillLatencyZScore),
		intFieldDefault("monitoring.thresholds.stats_window", &m.Thresholds.StatsWindow, defaultMonStatsWindow),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.name", &e.Name, defaultExchangeName),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

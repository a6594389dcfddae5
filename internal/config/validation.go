package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Signal.validate(); err != nil {
		return err
	}
	if err := c.Monitoring.validate(); err != nil {
		return err
	}
	return nil
}

func (r *RiskConfig) validate() error {
	fractions := map[string]float64{
		"risk.max_daily_loss":     r.MaxDailyLoss,
		"risk.max_weekly_loss":    r.MaxWeeklyLoss,
		"risk.max_monthly_loss":   r.MaxMonthlyLoss,
		"risk.max_total_exposure": r.MaxTotalExposure,
		"risk.max_position_ratio": r.MaxPositionRatio,
		"risk.risk_per_trade":     r.RiskPerTrade,
		"risk.min_confidence":     r.MinConfidence,
	}
	for key, val := range fractions {
		if val <= 0 || val > 1 {
			return fmt.Errorf("%s must be in (0,1], got %v", key, val)
		}
	}
	if r.MaxDailyLoss > r.MaxWeeklyLoss {
		return fmt.Errorf("risk.max_daily_loss cannot exceed risk.max_weekly_loss")
	}
	if r.MaxWeeklyLoss > r.MaxMonthlyLoss {
		return fmt.Errorf("risk.max_weekly_loss cannot exceed risk.max_monthly_loss")
	}
	if r.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be positive")
	}
	if r.MaxDailyTrades <= 0 {
		return fmt.Errorf("risk.max_daily_trades must be positive")
	}
	if r.MaxSlippage <= 0 {
		return fmt.Errorf("risk.max_slippage must be positive")
	}
	if r.StopLossPct <= 0 || r.StopLossPct >= 1 {
		return fmt.Errorf("risk.stop_loss_pct must be in (0,1)")
	}
	for i, tp := range r.TakeProfitLevels {
		if tp <= 0 {
			return fmt.Errorf("risk.take_profit_levels[%d] must be positive", i)
		}
	}
	return nil
}

func (t *TradingConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(t.Mode))
	if mode != "live" && mode != "paper" {
		return fmt.Errorf("trading.mode must be live or paper, got %q", t.Mode)
	}
	if len(t.Symbols) == 0 {
		return fmt.Errorf("trading.symbols requires at least one symbol")
	}
	for _, s := range t.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("trading.symbols contains an empty symbol")
		}
	}
	if t.SignalThreshold <= 0 || t.SignalThreshold > 1 {
		return fmt.Errorf("trading.signal_threshold must be in (0,1]")
	}
	if t.ReserveRatio < 0 || t.ReserveRatio >= 1 {
		return fmt.Errorf("trading.reserve_ratio must be in [0,1)")
	}
	if mode == "paper" && t.InitialCapital <= 0 {
		return fmt.Errorf("trading.initial_capital must be positive in paper mode")
	}
	return nil
}

func (s *SignalConfig) validate() error {
	w := s.Weights
	for key, val := range map[string]float64{
		"signal.weights.indicator": w.Indicator,
		"signal.weights.pattern":   w.Pattern,
		"signal.weights.volume":    w.Volume,
		"signal.weights.context":   w.Context,
	} {
		if val < 0 {
			return fmt.Errorf("%s cannot be negative", key)
		}
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("signal.weights must have a positive sum")
	}
	if s.MinConfirmations < 0 {
		return fmt.Errorf("signal.min_confirmations cannot be negative")
	}
	return nil
}

func (m *MonitoringConfig) validate() error {
	t := m.Thresholds
	if t.ConnectivityTimeoutSec <= 0 {
		return fmt.Errorf("monitoring.thresholds.connectivity_timeout must be positive")
	}
	if t.LiquidationTimeoutSec <= 0 {
		return fmt.Errorf("monitoring.thresholds.liquidation_timeout must be positive")
	}
	if t.StatsWindow < 10 {
		return fmt.Errorf("monitoring.thresholds.stats_window must be at least 10")
	}
	return nil
}

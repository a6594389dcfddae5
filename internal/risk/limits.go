package risk

import (
	"sync/atomic"

	"github.com/ramonzeraa/teste-crypto/internal/config"
)

// Limits is the immutable per-session snapshot of every risk bound. A new
// snapshot replaces the old one atomically on config reload; consumers only
// ever read a consistent set of values.
type Limits struct {
	MaxDailyLoss     float64
	MaxWeeklyLoss    float64
	MaxMonthlyLoss   float64
	MaxPositionSize  float64 // absolute cap in base units, 0 disables
	MaxPositionRatio float64
	MaxTotalExposure float64
	RiskPerTrade     float64
	MaxOpenPositions int
	MaxDailyTrades   int
	MinConfidence    float64
	MaxSlippage      float64
	MinVolume24h     float64 // 0 disables the gate
	StopLossPct      float64
	TakeProfitPct    float64
	TakeProfitLevels []float64
	TrailingStop     bool
	MinNotional      float64 // exchange minimum order value
}

// LimitsFromConfig builds a snapshot from the loaded config. The trading
// section's max_positions acts as a second ceiling on concurrent positions;
// the tighter of the two wins.
func LimitsFromConfig(cfg *config.Config) Limits {
	maxOpen := cfg.Risk.MaxOpenPositions
	if cfg.Trading.MaxPositions > 0 && cfg.Trading.MaxPositions < maxOpen {
		maxOpen = cfg.Trading.MaxPositions
	}
	return Limits{
		MaxDailyLoss:     cfg.Risk.MaxDailyLoss,
		MaxWeeklyLoss:    cfg.Risk.MaxWeeklyLoss,
		MaxMonthlyLoss:   cfg.Risk.MaxMonthlyLoss,
		MaxPositionSize:  cfg.Risk.MaxPositionSize,
		MaxPositionRatio: cfg.Risk.MaxPositionRatio,
		MaxTotalExposure: cfg.Risk.MaxTotalExposure,
		RiskPerTrade:     cfg.Risk.RiskPerTrade,
		MaxOpenPositions: maxOpen,
		MaxDailyTrades:   cfg.Risk.MaxDailyTrades,
		MinConfidence:    cfg.Risk.MinConfidence,
		MaxSlippage:      cfg.Risk.MaxSlippage,
		MinVolume24h:     cfg.Risk.MinVolume24h,
		StopLossPct:      cfg.Risk.StopLossPct,
		TakeProfitPct:    cfg.Risk.TakeProfitPct,
		TakeProfitLevels: append([]float64(nil), cfg.Risk.TakeProfitLevels...),
		TrailingStop:     cfg.Risk.TrailingStop,
		MinNotional:      cfg.Trading.ExchangeMinNotional,
	}
}

// LimitsHolder publishes the current snapshot to all consumers and swaps it
// atomically on reload.
type LimitsHolder struct {
	ptr atomic.Pointer[Limits]
}

func NewLimitsHolder(initial Limits) *LimitsHolder {
	h := &LimitsHolder{}
	h.ptr.Store(&initial)
	return h
}

// Current returns the active snapshot. The returned value must not be
// mutated.
func (h *LimitsHolder) Current() Limits {
	return *h.ptr.Load()
}

// Swap installs a new snapshot. In-flight evaluations finish against the
// snapshot they already read.
func (h *LimitsHolder) Swap(next Limits) {
	h.ptr.Store(&next)
}

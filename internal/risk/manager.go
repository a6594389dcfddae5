package risk

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// Manager is the pre-trade admission gate. Evaluate is a pure function of
// its inputs: the account snapshot and the limits snapshot are passed in
// explicitly, so every check is reproducible in isolation.
type Manager struct{}

func NewManager() *Manager { return &Manager{} }

// Input bundles everything one admission decision reads. PendingOrder is
// true when an unfilled order already exists for the signal's symbol.
type Input struct {
	Signal       types.ValidatedSignal
	Market       types.MarketSnapshot
	Account      position.AccountState
	Limits       Limits
	PendingOrder bool
	Halted       bool
}

// Evaluate runs the fixed check sequence and, on admission, returns the
// sized order intent with its protective levels attached. The first failing
// check names the rejection; a rejection is a normal outcome, the pipeline
// continues with the next signal.
//
// Check order: halt gate, concurrent positions, daily trade count, pending
// order, position size, exposure, loss windows, slippage.
func (m *Manager) Evaluate(in Input) (types.OrderIntent, error) {
	sig := in.Signal
	limits := in.Limits
	acct := in.Account

	if in.Halted {
		return types.OrderIntent{}, types.Rejectf(types.ReasonSystemHalted, "trading halted")
	}
	if sig.Direction == types.DirectionFlat {
		return types.OrderIntent{}, types.Rejectf(types.ReasonFlatDirection, "flat signals carry no order")
	}

	// 1. Concurrent position ceiling.
	if acct.OpenPositions >= limits.MaxOpenPositions {
		return types.OrderIntent{}, types.Rejectf(types.ReasonMaxPositions,
			"%d open, limit %d", acct.OpenPositions, limits.MaxOpenPositions)
	}

	// 2. Daily trade count.
	if acct.TradesToday >= limits.MaxDailyTrades {
		return types.OrderIntent{}, types.Rejectf(types.ReasonDailyTradeLimit,
			"%d trades today, limit %d", acct.TradesToday, limits.MaxDailyTrades)
	}

	// 3. One pending order per symbol.
	if in.PendingOrder {
		return types.OrderIntent{}, types.Rejectf(types.ReasonPendingOrderExists,
			"unfilled order for %s", sig.Symbol)
	}

	// 4. Size the position off fixed risk per trade.
	price := in.Market.LastPrice
	stopPct := sig.StopLossPct
	if stopPct <= 0 {
		stopPct = limits.StopLossPct
	}
	capital := acct.TradableCapital()
	ratioCap := 0.0
	if price > 0 {
		ratioCap = limits.MaxPositionRatio * capital / price
	}
	size := ComputePositionSize(capital, limits.RiskPerTrade, stopPct*price, limits.MaxPositionSize, ratioCap)
	if size <= 0 {
		return types.OrderIntent{}, types.Rejectf(types.ReasonSizeTooSmall, "computed size is zero")
	}
	notional := size * price
	if limits.MinNotional > 0 && notional < limits.MinNotional {
		return types.OrderIntent{}, types.Rejectf(types.ReasonSizeTooSmall,
			"notional %.2f below exchange minimum %.2f", notional, limits.MinNotional)
	}

	// 5. Exposure after the hypothetical fill.
	maxExposure := limits.MaxTotalExposure * acct.Capital
	if acct.TotalExposure+notional > maxExposure {
		return types.OrderIntent{}, types.Rejectf(types.ReasonExposureExceeded,
			"exposure %.2f + %.2f exceeds %.2f", acct.TotalExposure, notional, maxExposure)
	}

	// 6. Loss windows, realized plus unrealized.
	if reason, ok := lossBreached(acct, limits); ok {
		return types.OrderIntent{}, types.Rejectf(reason, "loss window breached")
	}

	// 7. Estimated slippage against the order book depth.
	slip := in.Market.EstimateSlippage(sig.Direction, notional)
	if slip > limits.MaxSlippage {
		return types.OrderIntent{}, types.Rejectf(types.ReasonSlippageTooHigh,
			"estimated %.4f, limit %.4f", slip, limits.MaxSlippage)
	}

	return buildIntent(sig, limits, price, size), nil
}

// lossBreached checks the daily, then weekly, then monthly window.
func lossBreached(acct position.AccountState, limits Limits) (types.RejectReason, bool) {
	if acct.Capital <= 0 {
		return types.ReasonDailyLossExceeded, true
	}
	unreal := acct.UnrealizedPnL
	windows := []struct {
		pnl    float64
		limit  float64
		reason types.RejectReason
	}{
		{acct.DailyPnL, limits.MaxDailyLoss, types.ReasonDailyLossExceeded},
		{acct.WeeklyPnL, limits.MaxWeeklyLoss, types.ReasonWeeklyLossExceeded},
		{acct.MonthlyPnL, limits.MaxMonthlyLoss, types.ReasonMonthlyLossExceeded},
	}
	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		if (w.pnl+unreal)/acct.Capital <= -w.limit {
			return w.reason, true
		}
	}
	return "", false
}

// ComputePositionSize returns min(capital×riskPerTrade/stopDistance,
// maxSize, ratioCap). stopDistance is the absolute entry-to-stop distance
// in price units; caps of zero or less are disabled. Wider stops produce
// smaller size, tying each trade to a fixed capital risk.
func ComputePositionSize(capital, riskPerTrade, stopDistance, maxSize, ratioCap float64) float64 {
	if capital <= 0 || riskPerTrade <= 0 || stopDistance <= 0 {
		return 0
	}
	size := capital * riskPerTrade / stopDistance
	if maxSize > 0 {
		size = math.Min(size, maxSize)
	}
	if ratioCap > 0 {
		size = math.Min(size, ratioCap)
	}
	return size
}

func buildIntent(sig types.ValidatedSignal, limits Limits, price, size float64) types.OrderIntent {
	stopPct := sig.StopLossPct
	if stopPct <= 0 {
		stopPct = limits.StopLossPct
	}
	tpPct := sig.TakeProfitPct
	if tpPct <= 0 {
		tpPct = limits.TakeProfitPct
	}

	long := sig.Direction == types.DirectionLong
	stop := price * (1 - stopPct)
	if !long {
		stop = price * (1 + stopPct)
	}

	var tps []float64
	if len(limits.TakeProfitLevels) > 0 {
		for _, lvl := range limits.TakeProfitLevels {
			if long {
				tps = append(tps, price*(1+lvl))
			} else {
				tps = append(tps, price*(1-lvl))
			}
		}
	} else if tpPct > 0 {
		if long {
			tps = []float64{price * (1 + tpPct)}
		} else {
			tps = []float64{price * (1 - tpPct)}
		}
	}

	return types.OrderIntent{
		ID:          uuid.NewString(),
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Size:        size,
		Type:        types.OrderTypeMarket,
		RefPrice:    price,
		StopLoss:    stop,
		TakeProfits: tps,
		Trailing:    limits.TrailingStop,
		Composite:   sig.Composite,
		Signal:      sig.Signal,
		DecidedAt:   time.Now(),
	}
}

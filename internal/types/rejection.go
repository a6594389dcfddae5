package types

import "fmt"

// RejectReason is a machine-readable admission rejection code. Rejections are
// normal control-flow outcomes, not failures: the pipeline logs them and
// moves on to the next signal.
type RejectReason string

const (
	ReasonLowConfidence       RejectReason = "low_confidence"
	ReasonLowConfirmations    RejectReason = "insufficient_confirmations"
	ReasonSpreadTooWide       RejectReason = "spread_too_wide"
	ReasonVolatilityTooHigh   RejectReason = "volatility_too_high"
	ReasonVolumeTooLow        RejectReason = "volume_too_low"
	ReasonMaxPositions        RejectReason = "max_positions_exceeded"
	ReasonDailyTradeLimit     RejectReason = "daily_trade_limit"
	ReasonPendingOrderExists  RejectReason = "pending_order_exists"
	ReasonSizeTooSmall        RejectReason = "position_size_too_small"
	ReasonExposureExceeded    RejectReason = "exposure_limit_exceeded"
	ReasonDailyLossExceeded   RejectReason = "daily_loss_exceeded"
	ReasonWeeklyLossExceeded  RejectReason = "weekly_loss_exceeded"
	ReasonMonthlyLossExceeded RejectReason = "monthly_loss_exceeded"
	ReasonSlippageTooHigh     RejectReason = "slippage_too_high"
	ReasonSystemHalted        RejectReason = "system_halted"
	ReasonFlatDirection       RejectReason = "flat_direction"
)

// Rejection is returned by the validator and the risk manager when a signal
// does not pass admission. It satisfies error so callers can propagate it,
// but it is logged at info level, never treated as a fault.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func Rejectf(reason RejectReason, format string, v ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, v...)}
}

// AsRejection unwraps err into a *Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	r, ok := err.(*Rejection)
	return r, ok
}

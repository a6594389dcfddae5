package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
)

// Recover rebuilds in-memory state from the store and reconciles it with
// the venue before the loop accepts its first signal. Orders that were
// in flight when the process died are resolved by client order ID: filled
// ones become position updates, still-open ones go back to the pending
// set, unknown ones are marked rejected.
func (t *Trader) Recover(ctx context.Context) error {
	positions, err := t.st.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	acct, err := t.st.LoadAccount(ctx)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	var daily, weekly, monthly float64
	var tradesToday int
	anchor := time.Time{}
	if acct != nil {
		daily, weekly, monthly = acct.DailyPnL, acct.WeeklyPnL, acct.MonthlyPnL
		tradesToday = acct.TradesToday
		anchor = time.Unix(acct.WindowAnchor, 0)
	}
	t.tracker.Restore(positions, daily, weekly, monthly, tradesToday, anchor)
	logger.Infof("recovered %d positions, daily pnl %.2f, %d trades today", len(positions), daily, tradesToday)

	open, err := t.st.ListOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("load open orders: %w", err)
	}
	if len(open) == 0 {
		t.refreshSnapshot()
		return nil
	}

	var stillPending []executor.Order
	for _, ord := range open {
		resolved, err := t.reconcileOrder(ctx, ord)
		if err != nil {
			logger.Warnf("reconcile %s failed, keeping as pending: %v", ord.ID, err)
			stillPending = append(stillPending, ord)
			continue
		}
		if resolved != nil {
			stillPending = append(stillPending, *resolved)
		}
	}
	t.exec.RestorePending(stillPending)
	logger.Infof("reconciled %d stored orders, %d still pending", len(open), len(stillPending))
	t.refreshSnapshot()
	return nil
}

// reconcileOrder resolves one stored non-terminal order against the venue.
// Returns the order to keep as pending, or nil when it reached a terminal
// state.
func (t *Trader) reconcileOrder(ctx context.Context, ord executor.Order) (*executor.Order, error) {
	qctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	status, err := t.ex.QueryOrder(qctx, ord.Intent.Symbol, ord.ID)
	cancel()
	if err != nil {
		return nil, err
	}

	if !status.Found {
		// The venue never saw it: the crash happened before submission
		// landed. Safe to close out as rejected.
		ord.State = executor.StateRejected
		ord.FailReason = "not found on venue after restart"
		t.persistOrder(ord)
		logger.Infof("order %s unknown to venue, marked rejected", ord.ID)
		return nil, nil
	}

	if status.Open() {
		ord.ExchangeID = status.ExchangeID
		if ord.State == executor.StateCreated {
			ord.State = executor.StateSubmitted
		}
		return &ord, nil
	}

	// Terminal on the venue. Apply what we missed.
	switch status.Status {
	case "FILLED", "PARTIALLY_FILLED":
		missed := status.FilledQty - ord.FilledQty
		if missed > 0 {
			delta, err := t.tracker.ApplyFill(ord.Intent, missed, status.AvgPrice)
			if err != nil {
				return nil, fmt.Errorf("apply recovered fill: %w", err)
			}
			logger.Infof("recovered fill for %s: qty=%.6f avg=%.4f closed=%v", ord.ID, missed, status.AvgPrice, delta.Closed)
			t.persistDelta(ord.Intent, delta, executor.FillResult{
				Order: ord, FillQty: missed, FillPrice: status.AvgPrice, Completed: true,
			})
		}
		ord.FilledQty = status.FilledQty
		ord.AvgFillPrice = status.AvgPrice
		ord.State = executor.StateFilled
	case "CANCELED", "EXPIRED":
		ord.State = executor.StateCancelled
	default:
		ord.State = executor.StateRejected
		ord.FailReason = fmt.Sprintf("venue status %s", status.Status)
	}
	t.persistOrder(ord)
	return nil, nil
}

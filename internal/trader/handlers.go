package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
	"github.com/ramonzeraa/teste-crypto/internal/monitoring"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/risk"
	"github.com/ramonzeraa/teste-crypto/internal/store"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// handleSignal runs the full admission pipeline for one signal. A rejection
// is a normal outcome: it is recorded and the loop moves on.
func (t *Trader) handleSignal(payload SignalPayload) error {
	sig := payload.Signal
	market := payload.Market

	// Market data is fetched off-loop; a signal arriving without it goes
	// back out for enrichment and returns as a new event.
	if market.LastPrice <= 0 {
		go t.enrichSignal(payload)
		return nil
	}

	validated, err := t.validator.Validate(sig, market)
	if err != nil {
		return t.recordRejection(sig.Symbol, err)
	}

	intent, err := t.riskMgr.Evaluate(risk.Input{
		Signal:       validated,
		Market:       market,
		Account:      t.tracker.Snapshot(),
		Limits:       t.limits.Current(),
		PendingOrder: t.exec.HasPending(sig.Symbol),
		Halted:       !t.stop.Normal(),
	})
	if err != nil {
		return t.recordRejection(sig.Symbol, err)
	}

	logger.Infof("admitted %s %s size=%.6f composite=%.3f", intent.Symbol, intent.Direction, intent.Size, intent.Composite)
	t.persistEvent(store.Event{Kind: "admission", Symbol: intent.Symbol, Detail: "admitted", Payload: intent})
	t.submitAsync(intent, false)
	return nil
}

// enrichSignal fetches a market snapshot and requeues the signal. Runs off
// the loop goroutine.
func (t *Trader) enrichSignal(payload SignalPayload) {
	ctx, cancel := context.WithTimeout(t.stop.RunContext(), 5*time.Second)
	defer cancel()
	market, err := t.ex.GetMarket(ctx, payload.Signal.Symbol)
	if err != nil {
		logger.Warnf("market snapshot for %s failed, signal dropped: %v", payload.Signal.Symbol, err)
		monitoring.RecordError("market_data")
		return
	}
	payload.Market = market
	if err := t.Send(EventEnvelope{Type: EvtSignal, Symbol: payload.Signal.Symbol, Payload: payload}); err != nil {
		logger.Warnf("requeue of enriched signal failed: %v", err)
	}
}

func (t *Trader) recordRejection(symbol string, err error) error {
	rej, ok := types.AsRejection(err)
	if !ok {
		return err
	}
	logger.Infof("rejected %s: %s (%s)", symbol, rej.Reason, rej.Detail)
	monitoring.RecordRejection(string(rej.Reason))
	t.persistEvent(store.Event{Kind: "rejection", Symbol: symbol, Detail: string(rej.Reason), Payload: rej})
	return nil
}

// submitAsync runs the blocking submission off-loop and reports the result
// back in as an event. The executor registers the pending order before
// returning from Submit's registration phase, so a second signal for the
// same symbol already sees it.
func (t *Trader) submitAsync(intent types.OrderIntent, reduce bool) {
	go func() {
		ord, err := t.exec.Submit(t.stop.RunContext(), intent, reduce)
		res := SubmitResultPayload{Order: ord, Err: err}
		if sendErr := t.Send(EventEnvelope{Type: EvtSubmitResult, Symbol: intent.Symbol, Payload: res}); sendErr != nil {
			logger.Errorf("submit result for %s lost: %v", intent.ID, sendErr)
		}
	}()
}

func (t *Trader) handleSubmitResult(res SubmitResultPayload) error {
	ord := res.Order
	if res.Err != nil {
		switch {
		case errors.Is(res.Err, executor.ErrPendingExists):
			monitoring.RecordRejection(string(types.ReasonPendingOrderExists))
			return nil
		case errors.Is(res.Err, executor.ErrRetriesExhausted):
			monitoring.RecordError("retries_exhausted")
			t.alerts.Criticalf("Order submission failed", "%s %s: retries exhausted, manual intervention required", ord.Intent.Symbol, ord.Intent.Direction)
			t.persistEvent(store.Event{Kind: "manual_intervention", Symbol: ord.Intent.Symbol, Detail: "retries_exhausted", Payload: ord})
		default:
			monitoring.RecordError("submission")
			logger.Errorf("submission of %s failed: %v", ord.ID, res.Err)
		}
	}
	if ord.ID != "" {
		// A fill event may already have moved the order past the snapshot
		// Submit returned; persist the executor's current view instead.
		if latest := t.exec.Snapshot(ord.ID); latest.ID != "" {
			ord = latest
		}
		t.persistOrder(ord)
	}
	return nil
}

// handleFill applies one execution report: order bookkeeping first, then
// the position delta, then persistence, all within this single event.
func (t *Trader) handleFill(fill exchange.Fill) error {
	res, ok := t.exec.HandleFill(fill)
	if !ok {
		logger.Debugf("fill for unknown order %s ignored", fill.ClientOrderID)
		return nil
	}
	t.persistOrder(res.Order)

	if res.FillQty <= 0 {
		return nil
	}

	intent := res.Order.Intent
	delta, err := t.tracker.ApplyFill(intent, res.FillQty, res.FillPrice)
	if err != nil {
		monitoring.RecordError("position_update")
		return fmt.Errorf("apply fill %s: %w", res.Order.ID, err)
	}

	monitoring.RecordTrade(intent.Symbol, string(fill.Side))
	t.observeFillQuality(res)
	t.persistDelta(intent, delta, res)

	acct := t.tracker.Snapshot()
	monitoring.UpdateExposure(acct.OpenPositions, exposureRatio(acct))
	monitoring.UpdateDailyPnL(acct.DailyPnL)
	t.watchdog.CheckDailyLoss(acct, currentLimits(t.limits))

	if res.Completed {
		t.alerts.Infof("Order filled", "%s %s qty=%.6f avg=%.4f", intent.Symbol, intent.Direction, res.Order.FilledQty, res.Order.AvgFillPrice)
	}
	return nil
}

func currentLimits(h *risk.LimitsHolder) *risk.Limits {
	l := h.Current()
	return &l
}

func exposureRatio(acct position.AccountState) float64 {
	if acct.Capital <= 0 {
		return 0
	}
	return acct.TotalExposure / acct.Capital
}

func (t *Trader) observeFillQuality(res executor.FillResult) {
	intent := res.Order.Intent
	if intent.RefPrice > 0 {
		slip := (res.FillPrice - intent.RefPrice) / intent.RefPrice
		if intent.Direction == types.DirectionShort {
			slip = -slip
		}
		t.watchdog.ObserveSlippage(slip)
	}
	if !res.Order.CreatedAt.IsZero() {
		latency := time.Since(res.Order.CreatedAt)
		t.watchdog.ObserveFillLatency(latency)
		monitoring.ObserveFillLatency(latency.Seconds())
	}
}

// persistDelta writes the position, account and ledger changes one fill
// produced. Persistence failures are logged, never fatal: the in-memory
// state is authoritative until the next successful write.
func (t *Trader) persistDelta(intent types.OrderIntent, delta position.Delta, res executor.FillResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if delta.Closed {
		if err := t.st.DeletePosition(ctx, delta.Symbol); err != nil {
			logger.Errorf("delete position %s: %v", delta.Symbol, err)
		}
	} else if pos, ok := t.tracker.Get(delta.Symbol); ok {
		if err := t.st.SavePosition(ctx, pos); err != nil {
			logger.Errorf("save position %s: %v", delta.Symbol, err)
		}
	}

	t.persistAccount(ctx)

	kind := store.LedgerScaleIn
	switch {
	case delta.Opened:
		kind = store.LedgerOpen
	case delta.Closed:
		kind = store.LedgerClose
	case delta.SizeAfter < delta.SizeBefore:
		kind = store.LedgerScaleOut
	}
	entry := store.LedgerEntry{
		Symbol:        delta.Symbol,
		Kind:          kind,
		Direction:     string(intent.Direction),
		Qty:           res.FillQty,
		Price:         res.FillPrice,
		RealizedPnL:   delta.RealizedPnL,
		ClientOrderID: res.Order.ID,
	}
	if err := t.st.AppendLedger(ctx, entry); err != nil {
		logger.Errorf("append ledger for %s: %v", delta.Symbol, err)
	}
}

func (t *Trader) persistAccount(ctx context.Context) {
	acct := t.tracker.Snapshot()
	snap := store.AccountSnapshot{
		Capital:      acct.Capital,
		DailyPnL:     acct.DailyPnL,
		WeeklyPnL:    acct.WeeklyPnL,
		MonthlyPnL:   acct.MonthlyPnL,
		TradesToday:  acct.TradesToday,
		WindowAnchor: time.Now().Unix(),
	}
	if err := t.st.SaveAccount(ctx, snap); err != nil {
		logger.Errorf("save account state: %v", err)
	}
}

func (t *Trader) persistOrder(ord executor.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.st.SaveOrder(ctx, ord); err != nil {
		logger.Errorf("save order %s: %v", ord.ID, err)
	}
}

func (t *Trader) persistEvent(ev store.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.st.AppendEvent(ctx, ev); err != nil {
		logger.Errorf("append event %s: %v", ev.Kind, err)
	}
}

// handlePrice applies a mark price tick and executes any protective
// triggers it crossed.
func (t *Trader) handlePrice(payload PricePayload) error {
	monitoring.UpdatePrice(payload.Symbol, payload.Price)
	triggers, err := t.tracker.MarkPrice(payload.Symbol, payload.Price)
	if err != nil {
		if errors.Is(err, position.ErrLockTimeout) {
			monitoring.RecordError("state_lock_timeout")
		}
		return err
	}

	acct := t.tracker.Snapshot()
	monitoring.UpdateDailyPnL(acct.DailyPnL)
	t.watchdog.CheckDailyLoss(acct, currentLimits(t.limits))

	for _, trg := range triggers {
		if err := t.handleTrigger(trg); err != nil {
			logger.Errorf("trigger %s on %s: %v", trg.Kind, trg.Symbol, err)
		}
	}
	return nil
}

// handleTrigger converts one protective level crossing into a reduce
// order. The reduce intent carries the opposite direction so the fill
// scales the position out.
func (t *Trader) handleTrigger(trg position.TriggerEvent) error {
	pos, ok := t.tracker.Get(trg.Symbol)
	if !ok {
		return nil
	}
	if t.exec.HasPending(trg.Symbol) {
		logger.Debugf("trigger %s on %s deferred, order pending", trg.Kind, trg.Symbol)
		return nil
	}

	qty := pos.Size * trg.CloseRatio
	if qty <= 0 {
		return nil
	}
	intent := types.OrderIntent{
		ID:        uuid.NewString(),
		Symbol:    trg.Symbol,
		Direction: opposite(pos.Direction),
		Size:      qty,
		Type:      types.OrderTypeMarket,
		RefPrice:  trg.Price,
		DecidedAt: time.Now(),
	}
	logger.Infof("%s hit on %s at %.4f, closing %.0f%%", trg.Kind, trg.Symbol, trg.Price, trg.CloseRatio*100)
	t.persistEvent(store.Event{Kind: "trigger", Symbol: trg.Symbol, Detail: string(trg.Kind), Payload: trg})
	t.alerts.Highf("Protective trigger", "%s on %s at %.4f", trg.Kind, trg.Symbol, trg.Price)
	t.submitAsync(intent, true)
	return nil
}

func opposite(dir types.Direction) types.Direction {
	if dir == types.DirectionLong {
		return types.DirectionShort
	}
	return types.DirectionLong
}

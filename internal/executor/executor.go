// Package executor turns admitted order intents into exchange actions and
// owns every order's lifecycle. Submission retries are bounded and die the
// instant the caller's context is cancelled; ambiguous failures go through
// reconciliation before any resubmission, so a duplicate order can never
// reach the venue.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
	"github.com/ramonzeraa/teste-crypto/internal/monitoring"
	"github.com/ramonzeraa/teste-crypto/internal/pkg/backoff"
	"github.com/ramonzeraa/teste-crypto/internal/pkg/circuit"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// ErrRetriesExhausted reports that the bounded retry budget ran out. The
// pipeline reacts with a fallback-to-manual event and a critical alert.
var ErrRetriesExhausted = errors.New("submission retries exhausted")

// ErrPendingExists guards the one-pending-order-per-symbol invariant at the
// executor boundary, independent of the risk manager's earlier check.
var ErrPendingExists = errors.New("pending order exists for symbol")

type Executor struct {
	ex      exchange.Exchange
	policy  backoff.Policy
	limiter *rate.Limiter
	conn    *circuit.CircuitBreaker

	mu      sync.Mutex
	pending map[string]*Order // symbol -> unfilled order
	orders  map[string]*Order // client order ID -> order
	history []string          // completed client order IDs, oldest first
}

type Option func(*Executor)

func WithBackoff(p backoff.Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithMinInterval paces submissions so consecutive orders stay at least d
// apart (trading.min_order_interval).
func WithMinInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func WithConnectivityBreaker(cb *circuit.CircuitBreaker) Option {
	return func(e *Executor) { e.conn = cb }
}

func New(ex exchange.Exchange, opts ...Option) *Executor {
	e := &Executor{
		ex:      ex,
		policy:  backoff.DefaultPolicy(),
		limiter: rate.NewLimiter(rate.Inf, 1),
		pending: make(map[string]*Order),
		orders:  make(map[string]*Order),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit drives intent through CREATED -> SUBMITTED, retrying transient
// failures with bounded backoff. The returned snapshot reflects the state
// after the synchronous part of the lifecycle; fills arrive later through
// HandleFill. ctx must be the halt-aware context: cancelling it aborts the
// retry loop immediately.
func (e *Executor) Submit(ctx context.Context, intent types.OrderIntent, reduce bool) (Order, error) {
	ord := &Order{
		ID:        intent.ID,
		Intent:    intent,
		State:     StateCreated,
		Reduce:    reduce,
		CreatedAt: time.Now(),
		StateTimes: map[OrderState]time.Time{
			StateCreated: time.Now(),
		},
	}

	e.mu.Lock()
	if _, exists := e.pending[intent.Symbol]; exists {
		e.mu.Unlock()
		return Order{}, fmt.Errorf("%s: %w", intent.Symbol, ErrPendingExists)
	}
	e.pending[intent.Symbol] = ord
	e.orders[ord.ID] = ord
	e.mu.Unlock()

	if err := e.submitWithRetry(ctx, ord); err != nil {
		e.fail(ord, err)
		return e.Snapshot(ord.ID), err
	}
	return e.Snapshot(ord.ID), nil
}

func (e *Executor) submitWithRetry(ctx context.Context, ord *Order) error {
	req := exchange.OrderRequest{
		Symbol:        ord.Intent.Symbol,
		Side:          exchange.SideFor(ord.Intent.Direction, ord.Reduce),
		Type:          ord.Intent.Type,
		Quantity:      ord.Intent.Size,
		Price:         ord.Intent.LimitPrice,
		ClientOrderID: ord.ID,
		ReduceOnly:    ord.Reduce,
	}

	for attempt := 1; ; attempt++ {
		if e.policy.Exhausted(attempt) {
			return fmt.Errorf("%s after %d attempts: %w", ord.Intent.Symbol, attempt-1, ErrRetriesExhausted)
		}
		if err := e.policy.Wait(ctx, attempt); err != nil {
			return err
		}
		if e.conn != nil && !e.conn.Allow() {
			return &types.ConnectivityError{Op: "submit", Err: fmt.Errorf("connectivity breaker open")}
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		e.mu.Lock()
		ord.Attempts = attempt
		e.mu.Unlock()

		ack, err := e.ex.PlaceOrder(ctx, req)
		if err == nil {
			e.recordSuccess()
			return e.markSubmitted(ord, ack.ExchangeID, ack)
		}

		var connErr *types.ConnectivityError
		ambiguous := errors.As(err, &connErr)
		if ambiguous {
			e.recordFailure()
			// The venue may have accepted the order before the link died.
			// Never resubmit before asking.
			if st, qerr := e.reconcile(ctx, ord); qerr == nil && st.Found {
				logger.Warnf("executor: reconciliation found order %s on venue (status=%s)", ord.ID, st.Status)
				return e.markSubmitted(ord, st.ExchangeID, exchange.Ack{
					FilledQty: st.FilledQty, AvgPrice: st.AvgPrice, Status: st.Status,
				})
			}
		}
		if !types.IsTransient(err) {
			return err
		}
		monitoring.RecordRetry()
		logger.Warnf("executor: submit %s attempt %d failed: %v", ord.Intent.Symbol, attempt, err)
	}
}

func (e *Executor) reconcile(ctx context.Context, ord *Order) (exchange.OrderStatus, error) {
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return e.ex.QueryOrder(qctx, ord.Intent.Symbol, ord.ID)
}

func (e *Executor) markSubmitted(ord *Order, exchangeID string, ack exchange.Ack) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ord.State != StateCreated {
		// A fill callback may have raced us past SUBMITTED already.
		if ord.ExchangeID == "" {
			ord.ExchangeID = exchangeID
		}
		return nil
	}
	ord.ExchangeID = exchangeID
	if err := ord.transition(StateSubmitted); err != nil {
		return err
	}
	// Synchronous fills (market orders) are folded in by the fill stream;
	// keep the ack figures only as a floor in case the stream lags.
	if ack.FilledQty > ord.FilledQty {
		ord.FilledQty = ack.FilledQty
		ord.AvgFillPrice = ack.AvgPrice
	}
	return nil
}

func (e *Executor) fail(ord *Order, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ord.State.Terminal() {
		return
	}
	ord.FailReason = cause.Error()
	if err := ord.transition(StateRejected); err != nil {
		logger.Errorf("executor: %v", err)
		return
	}
	e.completeLocked(ord)
}

// FillResult describes what one fill notification did to its order.
type FillResult struct {
	Order     Order
	FillQty   float64
	FillPrice float64
	Completed bool
}

// HandleFill applies one execution report. The caller (the trader loop)
// updates the position tracker with the returned quantities in the same
// event, before any further admission check can run.
func (e *Executor) HandleFill(fill exchange.Fill) (FillResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ord, ok := e.orders[fill.ClientOrderID]
	if !ok {
		return FillResult{}, false
	}
	if ord.State.Terminal() {
		logger.Debugf("executor: late fill for terminal order %s ignored", ord.ID)
		return FillResult{}, false
	}
	if fill.Qty <= 0 && fill.Status != "FILLED" && fill.Status != "CANCELED" && fill.Status != "REJECTED" {
		return FillResult{}, false
	}

	if ord.ExchangeID == "" {
		ord.ExchangeID = fill.ExchangeID
	}
	// Reconcile against the venue's cumulative quantity: the ack or a
	// reconciliation query may have counted this execution already, and a
	// duplicated report must not count twice.
	var applied float64
	if fill.Qty > 0 {
		cum := fill.CumQty
		if cum <= 0 {
			cum = ord.appliedQty + fill.Qty
		}
		if cum > ord.FilledQty {
			grew := cum - ord.FilledQty
			ord.AvgFillPrice = (ord.AvgFillPrice*ord.FilledQty + fill.Price*grew) / cum
			ord.FilledQty = cum
		}
		if cum > ord.appliedQty {
			applied = cum - ord.appliedQty
			ord.appliedQty = cum
		}
	}

	var to OrderState
	switch fill.Status {
	case "FILLED":
		to = StateFilled
	case "CANCELED", "EXPIRED":
		to = StateCancelled
	case "REJECTED":
		to = StateRejected
	default:
		to = StatePartiallyFilled
	}
	// An order still in CREATED is being reconciled; step it forward first.
	if ord.State == StateCreated {
		if err := ord.transition(StateSubmitted); err != nil {
			logger.Errorf("executor: %v", err)
			return FillResult{}, false
		}
	}
	if err := ord.transition(to); err != nil {
		logger.Errorf("executor: %v", err)
		return FillResult{}, false
	}
	completed := to.Terminal()
	if completed {
		e.completeLocked(ord)
	}
	return FillResult{
		Order:     ord.snapshot(),
		FillQty:   applied,
		FillPrice: fill.Price,
		Completed: completed,
	}, true
}

// Cancel cancels the pending order for symbol, if any.
func (e *Executor) Cancel(ctx context.Context, symbol string) error {
	e.mu.Lock()
	ord, ok := e.pending[symbol]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	err := e.ex.CancelOrder(ctx, symbol, ord.ID)
	if err != nil && !errors.Is(err, exchange.ErrOrderNotOpen) {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !ord.State.Terminal() {
		if terr := ord.transition(StateCancelled); terr != nil {
			return terr
		}
		e.completeLocked(ord)
	}
	return nil
}

// CancelAll cancels every pending order. The emergency stop calls it on its
// own context, independent of any blocked submission.
func (e *Executor) CancelAll(ctx context.Context) []error {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.pending))
	for sym := range e.pending {
		symbols = append(symbols, sym)
	}
	e.mu.Unlock()

	var errs []error
	for _, sym := range symbols {
		if err := e.Cancel(ctx, sym); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", sym, err))
		}
	}
	return errs
}

// ExpireStale cancels pending orders that saw no fill within maxAge.
func (e *Executor) ExpireStale(ctx context.Context, maxAge time.Duration) {
	e.mu.Lock()
	var stale []string
	now := time.Now()
	for sym, ord := range e.pending {
		if ord.FilledQty == 0 && now.Sub(ord.CreatedAt) > maxAge {
			stale = append(stale, sym)
		}
	}
	e.mu.Unlock()
	for _, sym := range stale {
		logger.Warnf("executor: expiring stale order for %s", sym)
		if err := e.Cancel(ctx, sym); err != nil {
			logger.Errorf("executor: expire %s failed: %v", sym, err)
		}
	}
}

// HasPending reports whether an unfilled order exists for symbol.
func (e *Executor) HasPending(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[symbol]
	return ok
}

func (e *Executor) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Snapshot returns a copy of the order by client order ID.
func (e *Executor) Snapshot(id string) Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ord, ok := e.orders[id]; ok {
		return ord.snapshot()
	}
	return Order{}
}

// Orders lists all known orders, newest first.
func (e *Executor) Orders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.orders))
	for _, ord := range e.orders {
		out = append(out, ord.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// RestorePending reinstates non-terminal orders loaded from the store
// during startup recovery.
func (e *Executor) RestorePending(orders []Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range orders {
		cp := orders[i]
		if cp.State.Terminal() {
			continue
		}
		if cp.StateTimes == nil {
			cp.StateTimes = map[OrderState]time.Time{cp.State: time.Now()}
		}
		// Fills persisted before the restart already reached the tracker.
		cp.appliedQty = cp.FilledQty
		e.orders[cp.ID] = &cp
		e.pending[cp.Intent.Symbol] = &cp
	}
}

// completeLocked removes the order from the pending index and caps the
// retained history.
func (e *Executor) completeLocked(ord *Order) {
	if cur, ok := e.pending[ord.Intent.Symbol]; ok && cur.ID == ord.ID {
		delete(e.pending, ord.Intent.Symbol)
	}
	e.history = append(e.history, ord.ID)
	const keep = 500
	for len(e.history) > keep {
		drop := e.history[0]
		e.history = e.history[1:]
		delete(e.orders, drop)
	}
}

func (e *Executor) recordSuccess() {
	if e.conn != nil {
		e.conn.RecordSuccess()
	}
}

func (e *Executor) recordFailure() {
	if e.conn != nil {
		e.conn.RecordFailure()
	}
}

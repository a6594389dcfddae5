package trader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonzeraa/teste-crypto/internal/breaker"
	"github.com/ramonzeraa/teste-crypto/internal/config"
	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/notifier"
	"github.com/ramonzeraa/teste-crypto/internal/pkg/backoff"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/risk"
	"github.com/ramonzeraa/teste-crypto/internal/signal"
	"github.com/ramonzeraa/teste-crypto/internal/store"
	"github.com/ramonzeraa/teste-crypto/internal/store/model"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// memStore is an in-memory Store for loop tests, so they need no database.
type memStore struct {
	mu        sync.Mutex
	orders    map[string]executor.Order
	orderSeq  []string
	positions map[string]position.Position
	account   *store.AccountSnapshot
	ledger    []model.LedgerEntryModel
	events    []model.EventModel
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[string]executor.Order),
		positions: make(map[string]position.Position),
	}
}

func (m *memStore) SaveOrder(ctx context.Context, o executor.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		m.orderSeq = append(m.orderSeq, o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *memStore) ListOpenOrders(ctx context.Context) ([]executor.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []executor.Order
	for _, id := range m.orderSeq {
		if o := m.orders[id]; !o.State.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListRecentOrders(ctx context.Context, limit int) ([]executor.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []executor.Order
	for i := len(m.orderSeq) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.orders[m.orderSeq[i]])
	}
	return out, nil
}

func (m *memStore) SavePosition(ctx context.Context, p position.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Symbol] = p
	return nil
}

func (m *memStore) DeletePosition(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
	return nil
}

func (m *memStore) ListPositions(ctx context.Context) ([]position.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]position.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) SaveAccount(ctx context.Context, snap store.AccountSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = &snap
	return nil
}

func (m *memStore) LoadAccount(ctx context.Context) (*store.AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return nil, nil
	}
	cp := *m.account
	return &cp, nil
}

func (m *memStore) AppendLedger(ctx context.Context, entry store.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = append(m.ledger, model.LedgerEntryModel{
		ID:            int64(len(m.ledger) + 1),
		Symbol:        entry.Symbol,
		Kind:          string(entry.Kind),
		Direction:     entry.Direction,
		Qty:           entry.Qty,
		Price:         entry.Price,
		RealizedPnL:   entry.RealizedPnL,
		ClientOrderID: entry.ClientOrderID,
		AtUnix:        time.Now().Unix(),
	})
	return nil
}

func (m *memStore) ListLedger(ctx context.Context, symbol string, limit int) ([]model.LedgerEntryModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.LedgerEntryModel(nil), m.ledger...), nil
}

func (m *memStore) AppendEvent(ctx context.Context, ev store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, model.EventModel{
		ID:     int64(len(m.events) + 1),
		Kind:   ev.Kind,
		Symbol: ev.Symbol,
		Detail: ev.Detail,
		AtUnix: time.Now().Unix(),
	})
	return nil
}

func (m *memStore) ListEvents(ctx context.Context, kind string, limit int) ([]model.EventModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventModel
	for _, ev := range m.events {
		if kind == "" || ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) ledgerKinds(symbol string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.ledger {
		if e.Symbol == symbol {
			out = append(out, e.Kind)
		}
	}
	return out
}

func (m *memStore) eventKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (m *memStore) order(id string) (executor.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

type harness struct {
	tr      *Trader
	ex      *exchange.Paper
	st      *memStore
	exec    *executor.Executor
	tracker *position.Tracker
	stop    *breaker.EmergencyStop
	sink    *recordingSink
}

// recordingSink captures rendered alerts handed to the external channel.
type recordingSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSink) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func testLimits() risk.Limits {
	return risk.Limits{
		MaxDailyLoss:     0.02,
		MaxWeeklyLoss:    0.05,
		MaxMonthlyLoss:   0.10,
		MaxPositionRatio: 0.10,
		MaxTotalExposure: 0.50,
		RiskPerTrade:     0.01,
		MaxOpenPositions: 3,
		MaxDailyTrades:   10,
		MaxSlippage:      0.002,
		StopLossPct:      0.015,
		TakeProfitPct:    0.03,
		MinNotional:      10,
	}
}

func newHarness(t *testing.T, ex exchange.Exchange) *harness {
	t.Helper()
	st := newMemStore()
	exec := executor.New(ex, executor.WithBackoff(backoff.Policy{
		Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2, MaxAttempts: 3,
	}))
	tracker := position.NewTracker(10000, 0.10)
	sink := &recordingSink{}
	alerts := notifier.NewDispatcher(sink)
	t.Cleanup(alerts.Close)

	validator := signal.NewValidator(signal.Options{
		Weights:          config.WeightConfig{Indicator: 0.30, Pattern: 0.25, Volume: 0.25, Context: 0.20},
		Threshold:        0.65,
		MinConfidence:    0.60,
		MinConfirmations: 2,
		MaxSpread:        0.001,
		MaxVolatility:    0.05,
		MinVolume24h:     1_000_000,
	})

	tr := New(Deps{
		Validator: validator,
		RiskMgr:   risk.NewManager(),
		Limits:    risk.NewLimitsHolder(testLimits()),
		Tracker:   tracker,
		Exec:      exec,
		Exchange:  ex,
		Store:     st,
		Alerts:    alerts,
	})
	stop := breaker.New(tr, alerts)
	watchdog := breaker.NewWatchdog(stop, breaker.WatchdogConfig{StatsWindow: 50})
	tr.AttachSafety(stop, watchdog)
	return &harness{tr: tr, st: st, exec: exec, tracker: tracker, stop: stop, sink: sink}
}

// startedHarness runs the loop and wires the paper fill stream in the same
// way the application does.
func startedHarness(t *testing.T) *harness {
	t.Helper()
	ex := exchange.NewPaper(10000)
	ex.SetMarket("BTCUSDT", types.MarketSnapshot{
		LastPrice: 50000, Spread: 10, Volatility: 0.02, Volume24h: 5_000_000,
		DepthBid: 1e7, DepthAsk: 1e7,
	})
	h := newHarness(t, ex)
	h.ex = ex
	_ = ex.SubscribeFills(context.Background(), func(f exchange.Fill) {
		_ = h.tr.Send(EventEnvelope{Type: EvtFill, Symbol: f.Symbol, Payload: FillPayload{Fill: f}})
	})
	h.tr.Start()
	t.Cleanup(h.tr.Stop)
	return h
}

func goodSignal() types.Signal {
	return types.Signal{
		Symbol:        "BTCUSDT",
		Direction:     types.DirectionLong,
		Scores:        types.SignalScores{Indicator: 0.8, Pattern: 0.7, Volume: 0.75, Context: 0.7},
		Confidence:    0.72,
		Confirmations: 3,
		CreatedAt:     time.Now(),
	}
}

func (h *harness) sendSignal(t *testing.T, sig types.Signal) {
	t.Helper()
	market, err := h.ex.GetMarket(context.Background(), sig.Symbol)
	require.NoError(t, err)
	err = h.tr.SendSync(context.Background(), EventEnvelope{
		Type:    EvtSignal,
		Symbol:  sig.Symbol,
		Payload: SignalPayload{Signal: sig, Market: market},
	})
	require.NoError(t, err)
}

func (h *harness) waitForPosition(t *testing.T, symbol string) position.Position {
	t.Helper()
	var pos position.Position
	require.Eventually(t, func() bool {
		p, ok := h.tracker.Get(symbol)
		pos = p
		return ok
	}, 2*time.Second, 5*time.Millisecond, "position for %s never opened", symbol)
	return pos
}

func TestSignalAdmittedSubmittedAndFilled(t *testing.T) {
	h := startedHarness(t)

	h.sendSignal(t, goodSignal())

	pos := h.waitForPosition(t, "BTCUSDT")
	assert.Equal(t, types.DirectionLong, pos.Direction)
	assert.Greater(t, pos.Size, 0.0)
	assert.InDelta(t, 50000, pos.EntryPrice, 1)

	require.Eventually(t, func() bool {
		kinds := h.st.ledgerKinds("BTCUSDT")
		return len(kinds) == 1 && kinds[0] == "open"
	}, 2*time.Second, 5*time.Millisecond)

	// The admission decision and the filled order both reached the store.
	assert.Contains(t, h.st.eventKinds(), "admission")
	orders, err := h.st.ListRecentOrders(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, executor.StateFilled, orders[0].State)

	snap := h.tr.Snapshot()
	assert.Len(t, snap.Positions, 1)
	assert.Equal(t, 0, snap.Pending)
}

func TestRejectedSignalOpensNothing(t *testing.T) {
	h := startedHarness(t)

	sig := goodSignal()
	sig.Confidence = 0.2
	h.sendSignal(t, sig)

	_, ok := h.tracker.Get("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, 0, h.exec.PendingCount())

	events, err := h.st.ListEvents(context.Background(), "rejection", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(types.ReasonLowConfidence), events[0].Detail)
}

func TestHaltGateBlocksAdmission(t *testing.T) {
	h := startedHarness(t)

	h.stop.Trip(breaker.CauseManual, "operator halt")
	require.Eventually(t, func() bool { return h.stop.State() == breaker.StateHalted },
		2*time.Second, 5*time.Millisecond)

	h.sendSignal(t, goodSignal())

	_, ok := h.tracker.Get("BTCUSDT")
	assert.False(t, ok)
	events, err := h.st.ListEvents(context.Background(), "rejection", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(types.ReasonSystemHalted), events[0].Detail)
}

func TestStopLossTickClosesPosition(t *testing.T) {
	h := startedHarness(t)

	h.sendSignal(t, goodSignal())
	pos := h.waitForPosition(t, "BTCUSDT")
	require.Greater(t, pos.StopLoss, 0.0)

	// Mark through the stop; the close order fills at the posted price.
	crash := pos.StopLoss - 100
	h.ex.SetMarket("BTCUSDT", types.MarketSnapshot{
		LastPrice: crash, Spread: 10, Volatility: 0.02, Volume24h: 5_000_000,
		DepthBid: 1e7, DepthAsk: 1e7,
	})
	err := h.tr.SendSync(context.Background(), EventEnvelope{
		Type: EvtPriceUpdate, Symbol: "BTCUSDT",
		Payload: PricePayload{Symbol: "BTCUSDT", Price: crash},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := h.tracker.Get("BTCUSDT")
		return !ok
	}, 2*time.Second, 5*time.Millisecond, "stop loss never closed the position")

	require.Eventually(t, func() bool {
		kinds := h.st.ledgerKinds("BTCUSDT")
		return len(kinds) == 2 && kinds[1] == "close"
	}, 2*time.Second, 5*time.Millisecond)

	assert.Contains(t, h.st.eventKinds(), "trigger")
	assert.Less(t, h.tracker.Snapshot().DailyPnL, 0.0)

	// The loss stays persisted for the next restart.
	acct, err := h.st.LoadAccount(context.Background())
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Less(t, acct.DailyPnL, 0.0)
}

func TestDuplicateSignalRejectedWhilePending(t *testing.T) {
	// An exchange that acks without filling keeps the first order pending.
	ex := &heldExchange{}
	h := newHarness(t, ex)
	h.tr.Start()
	t.Cleanup(h.tr.Stop)

	market := types.MarketSnapshot{
		LastPrice: 50000, Spread: 10, Volatility: 0.02, Volume24h: 5_000_000,
		DepthBid: 1e7, DepthAsk: 1e7,
	}
	send := func() {
		err := h.tr.SendSync(context.Background(), EventEnvelope{
			Type: EvtSignal, Symbol: "BTCUSDT",
			Payload: SignalPayload{Signal: goodSignal(), Market: market},
		})
		require.NoError(t, err)
	}

	send()
	require.Eventually(t, func() bool { return h.exec.HasPending("BTCUSDT") },
		2*time.Second, 5*time.Millisecond)

	send()
	require.Eventually(t, func() bool {
		events, _ := h.st.ListEvents(context.Background(), "rejection", 10)
		return len(events) == 1
	}, 2*time.Second, 5*time.Millisecond)
	events, err := h.st.ListEvents(context.Background(), "rejection", 10)
	require.NoError(t, err)
	assert.Equal(t, string(types.ReasonPendingOrderExists), events[0].Detail)
	assert.Equal(t, 1, h.exec.PendingCount())
}

func TestRetryExhaustionEscalatesForManualIntervention(t *testing.T) {
	ex := &failingExchange{}
	h := newHarness(t, ex)
	h.tr.Start()
	t.Cleanup(h.tr.Stop)

	market := types.MarketSnapshot{
		LastPrice: 50000, Spread: 10, Volatility: 0.02, Volume24h: 5_000_000,
		DepthBid: 1e7, DepthAsk: 1e7,
	}
	err := h.tr.SendSync(context.Background(), EventEnvelope{
		Type: EvtSignal, Symbol: "BTCUSDT",
		Payload: SignalPayload{Signal: goodSignal(), Market: market},
	})
	require.NoError(t, err)

	// The exhausted submission falls back to the operator: an explicit
	// event reaches the store and a critical alert reaches the channel.
	require.Eventually(t, func() bool {
		events, _ := h.st.ListEvents(context.Background(), "manual_intervention", 10)
		return len(events) == 1
	}, 2*time.Second, 5*time.Millisecond)
	events, err := h.st.ListEvents(context.Background(), "manual_intervention", 10)
	require.NoError(t, err)
	assert.Equal(t, "retries_exhausted", events[0].Detail)

	require.Eventually(t, func() bool {
		for _, msg := range h.sink.all() {
			if strings.Contains(msg, "🚨") && strings.Contains(msg, "retries exhausted") {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "critical alert never reached the sink")

	orders, err := h.st.ListRecentOrders(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, executor.StateRejected, orders[0].State)
	assert.Equal(t, 0, h.exec.PendingCount())
}

// failingExchange never accepts a submission, always with a transient error.
type failingExchange struct{ heldExchange }

func (failingExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Ack, error) {
	return exchange.Ack{}, &types.ExecutionError{Op: "place", Transient: true, Err: errors.New("rate limited")}
}

// heldExchange acknowledges orders as NEW and never fills them.
type heldExchange struct{}

func (heldExchange) Name() string { return "held" }

func (heldExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Ack, error) {
	return exchange.Ack{ExchangeID: "held-" + req.ClientOrderID, Status: "NEW", Time: time.Now()}, nil
}

func (heldExchange) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	return nil
}

func (heldExchange) QueryOrder(ctx context.Context, symbol, clientOrderID string) (exchange.OrderStatus, error) {
	return exchange.OrderStatus{}, nil
}

func (heldExchange) GetBalance(ctx context.Context) (exchange.Balance, error) {
	return exchange.Balance{}, nil
}

func (heldExchange) GetMarket(ctx context.Context, symbol string) (types.MarketSnapshot, error) {
	return types.MarketSnapshot{}, nil
}

func (heldExchange) Ping(ctx context.Context) error { return nil }

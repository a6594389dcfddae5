package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/store"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

func openStore(t *testing.T) (*GormStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trade.db")
	st, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func sampleOrder(id string, state executor.OrderState) executor.Order {
	return executor.Order{
		ID:         id,
		ExchangeID: "x-" + id,
		Intent: types.OrderIntent{
			ID: id, Symbol: "BTCUSDT", Direction: types.DirectionLong,
			Size: 0.5, Type: types.OrderTypeMarket,
			RefPrice: 50000, StopLoss: 49250, TakeProfits: []float64{50750, 51500},
		},
		State:     state,
		FilledQty: 0.2,
		Attempts:  1,
		CreatedAt: time.Now(),
		StateTimes: map[executor.OrderState]time.Time{
			executor.StateCreated: time.Now(),
		},
	}
}

func TestOrderRoundTrip(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveOrder(ctx, sampleOrder("o1", executor.StateSubmitted)))

	open, err := st.ListOpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	got := open[0]
	assert.Equal(t, "o1", got.ID)
	assert.Equal(t, executor.StateSubmitted, got.State)
	assert.Equal(t, "BTCUSDT", got.Intent.Symbol)
	assert.InDelta(t, 50000, got.Intent.RefPrice, 1e-9)
	assert.Equal(t, []float64{50750, 51500}, got.Intent.TakeProfits)

	// A state transition overwrites, not duplicates.
	done := sampleOrder("o1", executor.StateFilled)
	done.FilledQty = 0.5
	done.AvgFillPrice = 50020
	require.NoError(t, st.SaveOrder(ctx, done))

	open, err = st.ListOpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	recent, err := st.ListRecentOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, executor.StateFilled, recent[0].State)
	assert.InDelta(t, 0.5, recent[0].FilledQty, 1e-9)
	assert.InDelta(t, 50020, recent[0].AvgFillPrice, 1e-9)
}

func TestPositionRoundTrip(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()

	pos := position.Position{
		Symbol: "ETHUSDT", Direction: types.DirectionShort,
		EntryPrice: 3200, Size: 2, StopLoss: 3248,
		TakeProfits: []float64{3152, 3104}, Trailing: true,
		OpenedAt: time.Now(),
	}
	require.NoError(t, st.SavePosition(ctx, pos))

	// Upsert by symbol.
	pos.Size = 1.5
	require.NoError(t, st.SavePosition(ctx, pos))

	listed, err := st.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, types.DirectionShort, listed[0].Direction)
	assert.InDelta(t, 1.5, listed[0].Size, 1e-9)
	assert.Equal(t, []float64{3152, 3104}, listed[0].TakeProfits)
	assert.True(t, listed[0].Trailing)

	require.NoError(t, st.DeletePosition(ctx, "ETHUSDT"))
	listed, err = st.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestAccountSnapshotRoundTrip(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()

	fresh, err := st.LoadAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, fresh, "a fresh store has no account row")

	snap := store.AccountSnapshot{
		Capital: 10150, DailyPnL: -50, WeeklyPnL: 150, MonthlyPnL: 150,
		TradesToday: 4, WindowAnchor: time.Now().Unix(),
	}
	require.NoError(t, st.SaveAccount(ctx, snap))
	snap.DailyPnL = -75
	require.NoError(t, st.SaveAccount(ctx, snap))

	loaded, err := st.LoadAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 10150, loaded.Capital, 1e-9)
	assert.InDelta(t, -75, loaded.DailyPnL, 1e-9)
	assert.Equal(t, 4, loaded.TradesToday)
}

func TestLedgerAndEvents(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendLedger(ctx, store.LedgerEntry{
		Symbol: "BTCUSDT", Kind: store.LedgerOpen, Direction: "long",
		Qty: 0.5, Price: 50000, ClientOrderID: "o1",
	}))
	require.NoError(t, st.AppendLedger(ctx, store.LedgerEntry{
		Symbol: "BTCUSDT", Kind: store.LedgerClose, Direction: "long",
		Qty: 0.5, Price: 50500, RealizedPnL: 250, ClientOrderID: "o2",
	}))

	entries, err := st.ListLedger(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	none, err := st.ListLedger(ctx, "ETHUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, st.AppendEvent(ctx, store.Event{
		Kind: "rejection", Symbol: "BTCUSDT", Detail: "low_confidence",
		Payload: map[string]any{"composite": 0.4},
	}))
	events, err := st.ListEvents(ctx, "rejection", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "low_confidence", events[0].Detail)
	assert.Contains(t, string(events[0].PayloadJSON), "composite")
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade.db")
	st, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.SaveOrder(ctx, sampleOrder("o1", executor.StateSubmitted)))
	require.NoError(t, st.SavePosition(ctx, position.Position{
		Symbol: "BTCUSDT", Direction: types.DirectionLong, EntryPrice: 50000, Size: 0.5,
	}))
	require.NoError(t, st.SaveAccount(ctx, store.AccountSnapshot{Capital: 10000, TradesToday: 1}))
	require.NoError(t, st.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	open, err := reopened.ListOpenOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	positions, err := reopened.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 1)
	acct, err := reopened.LoadAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, 1, acct.TradesToday)
}

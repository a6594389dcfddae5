package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonzeraa/teste-crypto/internal/types"
)

func longIntent(symbol string) types.OrderIntent {
	return types.OrderIntent{
		ID:        "o1",
		Symbol:    symbol,
		Direction: types.DirectionLong,
		Size:      10,
		StopLoss:  95,
	}
}

func TestApplyFillOpensPosition(t *testing.T) {
	tr := NewTracker(10_000, 0)
	delta, err := tr.ApplyFill(longIntent("BTCUSDT"), 10, 100)
	require.NoError(t, err)
	assert.True(t, delta.Opened)
	assert.Equal(t, 10.0, delta.SizeAfter)

	pos, ok := tr.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, types.DirectionLong, pos.Direction)

	acct := tr.Snapshot()
	assert.Equal(t, 1, acct.OpenPositions)
	assert.Equal(t, 1, acct.TradesToday)
}

func TestApplyFillScalesInWithWeightedEntry(t *testing.T) {
	tr := NewTracker(10_000, 0)
	_, err := tr.ApplyFill(longIntent("BTCUSDT"), 10, 100)
	require.NoError(t, err)
	_, err = tr.ApplyFill(longIntent("BTCUSDT"), 10, 110)
	require.NoError(t, err)

	pos, ok := tr.Get("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 105, pos.EntryPrice, 1e-9)
	assert.Equal(t, 20.0, pos.Size)
	assert.Equal(t, 2, tr.Snapshot().TradesToday)
}

func TestApplyFillScalesOutAndRealizes(t *testing.T) {
	tr := NewTracker(10_000, 0)
	_, err := tr.ApplyFill(longIntent("BTCUSDT"), 10, 100)
	require.NoError(t, err)

	reduce := longIntent("BTCUSDT")
	reduce.Direction = types.DirectionShort
	delta, err := tr.ApplyFill(reduce, 4, 110)
	require.NoError(t, err)
	assert.InDelta(t, 40, delta.RealizedPnL, 1e-9) // 4 * (110-100)
	assert.False(t, delta.Closed)
	assert.Equal(t, 6.0, delta.SizeAfter)

	acct := tr.Snapshot()
	assert.InDelta(t, 10_040, acct.Capital, 1e-9)
	assert.InDelta(t, 40, acct.DailyPnL, 1e-9)
}

func TestApplyFillFullScaleOutCloses(t *testing.T) {
	tr := NewTracker(10_000, 0)
	_, err := tr.ApplyFill(longIntent("BTCUSDT"), 10, 100)
	require.NoError(t, err)

	reduce := longIntent("BTCUSDT")
	reduce.Direction = types.DirectionShort
	delta, err := tr.ApplyFill(reduce, 10, 90)
	require.NoError(t, err)
	assert.True(t, delta.Closed)
	assert.InDelta(t, -100, delta.RealizedPnL, 1e-9)

	_, ok := tr.Get("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Snapshot().OpenPositions)
}

func TestShortPositionPnL(t *testing.T) {
	tr := NewTracker(10_000, 0)
	intent := longIntent("ETHUSDT")
	intent.Direction = types.DirectionShort
	_, err := tr.ApplyFill(intent, 5, 2000)
	require.NoError(t, err)

	realized, err := tr.ClosePosition("ETHUSDT", 1900)
	require.NoError(t, err)
	assert.InDelta(t, 500, realized, 1e-9) // 5 * (2000-1900)
}

func TestApplyFillRejectsBadInput(t *testing.T) {
	tr := NewTracker(10_000, 0)
	_, err := tr.ApplyFill(longIntent("BTCUSDT"), 0, 100)
	assert.Error(t, err)
	_, err = tr.ApplyFill(longIntent("BTCUSDT"), 10, 0)
	assert.Error(t, err)
}

func TestTradableCapitalRespectsReserve(t *testing.T) {
	tr := NewTracker(10_000, 0.10)
	acct := tr.Snapshot()
	assert.InDelta(t, 9_000, acct.TradableCapital(), 1e-9)
}

func TestMarkPriceStopLossTrigger(t *testing.T) {
	tr := NewTracker(10_000, 0)
	_, err := tr.ApplyFill(longIntent("BTCUSDT"), 10, 100)
	require.NoError(t, err)

	events, err := tr.MarkPrice("BTCUSDT", 96)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = tr.MarkPrice("BTCUSDT", 94.9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerStopLoss, events[0].Kind)
	assert.Equal(t, 1.0, events[0].CloseRatio)
}

func TestMarkPriceTakeProfitLadder(t *testing.T) {
	tr := NewTracker(10_000, 0)
	intent := longIntent("BTCUSDT")
	intent.TakeProfits = []float64{105, 110}
	_, err := tr.ApplyFill(intent, 10, 100)
	require.NoError(t, err)

	// First level: half the remaining ladder.
	events, err := tr.MarkPrice("BTCUSDT", 106)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerTakeProfit, events[0].Kind)
	assert.InDelta(t, 0.5, events[0].CloseRatio, 1e-9)

	// Same price again must not re-fire the consumed level.
	events, err = tr.MarkPrice("BTCUSDT", 106)
	require.NoError(t, err)
	assert.Empty(t, events)

	// Second level closes the rest.
	events, err = tr.MarkPrice("BTCUSDT", 111)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.InDelta(t, 1.0, events[0].CloseRatio, 1e-9)
}

func TestTrailingStopRatchets(t *testing.T) {
	tr := NewTracker(10_000, 0)
	intent := longIntent("BTCUSDT")
	intent.Trailing = true
	_, err := tr.ApplyFill(intent, 10, 100)
	require.NoError(t, err)

	// Favorable move drags the stop up by the same distance.
	_, err = tr.MarkPrice("BTCUSDT", 110)
	require.NoError(t, err)
	pos, _ := tr.Get("BTCUSDT")
	assert.InDelta(t, 105, pos.StopLoss, 1e-9)

	// Pullback through the ratcheted stop fires a trailing trigger.
	events, err := tr.MarkPrice("BTCUSDT", 104)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerTrailingStop, events[0].Kind)
}

func TestMarkPriceUnknownSymbolIsNoop(t *testing.T) {
	tr := NewTracker(10_000, 0)
	events, err := tr.MarkPrice("NOPEUSDT", 100)
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestDailyRollover(t *testing.T) {
	tr := NewTracker(10_000, 0)
	now := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC) // Monday
	tr.SetClock(func() time.Time { return now })
	tr.Restore(nil, 0, 0, 0, 0, now)

	_, err := tr.ApplyFill(longIntent("BTCUSDT"), 10, 100)
	require.NoError(t, err)
	_, err = tr.ClosePosition("BTCUSDT", 110)
	require.NoError(t, err)

	acct := tr.Snapshot()
	assert.InDelta(t, 100, acct.DailyPnL, 1e-9)
	assert.Equal(t, 1, acct.TradesToday)

	// Next day, same ISO week: daily resets, weekly survives.
	now = now.Add(4 * time.Hour)
	acct = tr.Snapshot()
	assert.Zero(t, acct.DailyPnL)
	assert.Zero(t, acct.TradesToday)
	assert.InDelta(t, 100, acct.WeeklyPnL, 1e-9)
	assert.InDelta(t, 100, acct.MonthlyPnL, 1e-9)
}

func TestWeeklyAndMonthlyRollover(t *testing.T) {
	tr := NewTracker(10_000, 0)
	now := time.Date(2026, 3, 29, 12, 0, 0, 0, time.UTC) // Sunday
	tr.SetClock(func() time.Time { return now })
	tr.Restore(nil, 0, 0, 0, 0, now)

	_, err := tr.ApplyFill(longIntent("BTCUSDT"), 10, 100)
	require.NoError(t, err)
	_, err = tr.ClosePosition("BTCUSDT", 110)
	require.NoError(t, err)

	// Crossing into Monday April: new ISO week and new month.
	now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	acct := tr.Snapshot()
	assert.Zero(t, acct.DailyPnL)
	assert.Zero(t, acct.WeeklyPnL)
	assert.Zero(t, acct.MonthlyPnL)
	// Realized capital survives every rollover.
	assert.InDelta(t, 10_100, acct.Capital, 1e-9)
}

func TestRestoreExpiresStaleWindows(t *testing.T) {
	tr := NewTracker(10_000, 0)
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })

	// Persisted counters are two days old: the daily window is gone.
	anchor := now.Add(-48 * time.Hour)
	tr.Restore(nil, -150, -150, -150, 7, anchor)

	acct := tr.Snapshot()
	assert.Zero(t, acct.DailyPnL)
	assert.Zero(t, acct.TradesToday)
	assert.InDelta(t, -150, acct.WeeklyPnL, 1e-9)
}

func TestRestoreRebuildsPositions(t *testing.T) {
	tr := NewTracker(10_000, 0)
	tr.Restore([]Position{{
		Symbol:     "BTCUSDT",
		Direction:  types.DirectionLong,
		EntryPrice: 100,
		Size:       5,
	}}, 0, 0, 0, 0, time.Now())

	pos, ok := tr.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 5.0, pos.Size)
	assert.Equal(t, 1, tr.Snapshot().OpenPositions)
}

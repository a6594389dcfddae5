package tradehttp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonzeraa/teste-crypto/internal/types"
)

func TestParseSignalNestedScores(t *testing.T) {
	body := []byte(`{
		"symbol": "BTCUSDT",
		"direction": "long",
		"timeframe": "4h",
		"scores": {"indicator": 0.8, "pattern": 0.7, "volume": 0.75, "context": 0.6},
		"confidence": 0.72,
		"confirmations": 3,
		"stop_loss_pct": 0.015,
		"take_profit_pct": 0.03,
		"created_at": "2026-08-30T12:00:00Z"
	}`)

	sig, err := parseSignal(body)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, types.DirectionLong, sig.Direction)
	assert.Equal(t, "4h", sig.Timeframe)
	assert.InDelta(t, 0.8, sig.Scores.Indicator, 1e-9)
	assert.InDelta(t, 0.7, sig.Scores.Pattern, 1e-9)
	assert.InDelta(t, 0.75, sig.Scores.Volume, 1e-9)
	assert.InDelta(t, 0.6, sig.Scores.Context, 1e-9)
	assert.InDelta(t, 0.72, sig.Confidence, 1e-9)
	assert.Equal(t, 3, sig.Confirmations)
	assert.InDelta(t, 0.015, sig.StopLossPct, 1e-9)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), sig.CreatedAt.UTC())
}

func TestParseSignalFlatSchema(t *testing.T) {
	body := []byte(`{
		"pair": "eth/usdt",
		"side": "SELL",
		"indicator_score": 0.65,
		"pattern_score": 0.55,
		"volume_score": 0.6,
		"ml_score": 0.7,
		"ml_confidence": 0.68,
		"confirmation_count": 2,
		"sl_pct": 0.02
	}`)

	sig, err := parseSignal(body)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", sig.Symbol)
	assert.Equal(t, types.DirectionShort, sig.Direction)
	assert.InDelta(t, 0.65, sig.Scores.Indicator, 1e-9)
	assert.InDelta(t, 0.7, sig.Scores.Context, 1e-9)
	assert.InDelta(t, 0.68, sig.Confidence, 1e-9)
	assert.Equal(t, 2, sig.Confirmations)
	assert.InDelta(t, 0.02, sig.StopLossPct, 1e-9)
}

func TestParseSignalDirectionWords(t *testing.T) {
	cases := map[string]types.Direction{
		"long": types.DirectionLong, "buy": types.DirectionLong, "BUY": types.DirectionLong,
		"short": types.DirectionShort, "sell": types.DirectionShort,
		"flat": types.DirectionFlat, "hold": types.DirectionFlat, "neutral": types.DirectionFlat,
	}
	for raw, want := range cases {
		dir, err := parseDirection(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, dir, raw)
	}

	// Absent direction means flat, not an error.
	sig, err := parseSignal([]byte(`{"symbol":"BTCUSDT"}`))
	require.NoError(t, err)
	assert.Equal(t, types.DirectionFlat, sig.Direction)

	_, err = parseDirection("sideways")
	assert.Error(t, err)
}

func TestParseSignalMissingSymbol(t *testing.T) {
	_, err := parseSignal([]byte(`{"direction":"long","confidence":0.7}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol")
}

func TestParseSignalInvalidJSON(t *testing.T) {
	_, err := parseSignal([]byte(`{"symbol": "BTCUSDT"`))
	assert.Error(t, err)
}

func TestParseSignalDefaultsCreatedAt(t *testing.T) {
	before := time.Now()
	sig, err := parseSignal([]byte(`{"symbol":"BTCUSDT","direction":"long"}`))
	require.NoError(t, err)
	assert.False(t, sig.CreatedAt.Before(before))

	// A malformed timestamp falls back to now instead of failing the parse.
	sig, err = parseSignal([]byte(`{"symbol":"BTCUSDT","created_at":"yesterday"}`))
	require.NoError(t, err)
	assert.False(t, sig.CreatedAt.IsZero())
}

package tradehttp

import (
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ramonzeraa/teste-crypto/internal/pkg/symbol"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// parseSignal decodes a signal payload without committing to one schema.
// Upstream producers disagree on field naming (flat score fields vs a
// nested scores object, "side" vs "direction"), so the probing is lenient:
// the first matching location wins.
func parseSignal(body []byte) (types.Signal, error) {
	if !gjson.ValidBytes(body) {
		return types.Signal{}, errors.New("invalid json")
	}
	doc := gjson.ParseBytes(body)

	sym := symbol.Normalize(firstString(doc, "symbol", "pair", "ticker"))
	if sym == "" {
		return types.Signal{}, errors.New("missing or unparseable symbol")
	}

	dir, err := parseDirection(firstString(doc, "direction", "side", "action"))
	if err != nil {
		return types.Signal{}, err
	}

	sig := types.Signal{
		Symbol:    sym,
		Timeframe: firstString(doc, "timeframe", "tf", "interval"),
		Direction: dir,
		Scores: types.SignalScores{
			Indicator: firstFloat(doc, "scores.indicator", "indicator_score", "indicator"),
			Pattern:   firstFloat(doc, "scores.pattern", "pattern_score", "pattern"),
			Volume:    firstFloat(doc, "scores.volume", "volume_score"),
			Context:   firstFloat(doc, "scores.context", "context_score", "ml_score"),
		},
		Confidence:    firstFloat(doc, "confidence", "ml_confidence"),
		Confirmations: int(firstFloat(doc, "confirmations", "confirmation_count")),
		StopLossPct:   firstFloat(doc, "stop_loss_pct", "sl_pct"),
		TakeProfitPct: firstFloat(doc, "take_profit_pct", "tp_pct"),
		CreatedAt:     time.Now(),
	}
	if ts := doc.Get("created_at"); ts.Exists() {
		if parsed, err := time.Parse(time.RFC3339, ts.String()); err == nil {
			sig.CreatedAt = parsed
		}
	}
	return sig, nil
}

func parseDirection(raw string) (types.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return types.DirectionLong, nil
	case "short", "sell":
		return types.DirectionShort, nil
	case "flat", "neutral", "hold", "":
		return types.DirectionFlat, nil
	}
	return "", errors.New("unknown direction " + raw)
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func firstFloat(doc gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() {
			return v.Float()
		}
	}
	return 0
}

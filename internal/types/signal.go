package types

import "time"

// Direction is the side a signal wants to take.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// SignalScores holds the raw per-category scores produced by the analysis
// collaborators. Each score is expected in [0,1].
type SignalScores struct {
	Indicator float64 `json:"indicator"`
	Pattern   float64 `json:"pattern"`
	Volume    float64 `json:"volume"`
	Context   float64 `json:"context"`
}

// Signal is the immutable input of the execution core. It is produced
// upstream (technical analysis + ML confidence) and never mutated here.
type Signal struct {
	Symbol        string       `json:"symbol"`
	Timeframe     string       `json:"timeframe"`
	Direction     Direction    `json:"direction"`
	Scores        SignalScores `json:"scores"`
	Confidence    float64      `json:"confidence"`
	Confirmations int          `json:"confirmations"`
	StopLossPct   float64      `json:"stop_loss_pct"`
	TakeProfitPct float64      `json:"take_profit_pct"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ValidatedSignal is a Signal that passed the validator, annotated with the
// composite score actually used for admission.
type ValidatedSignal struct {
	Signal
	Composite float64 `json:"composite"`
}

// MarketSnapshot carries the market-quality figures the validator and the
// risk checks need. It is supplied by the market-data collaborator together
// with each signal; the core never fetches it on its own.
type MarketSnapshot struct {
	Symbol     string  `json:"symbol"`
	LastPrice  float64 `json:"last_price"`
	Spread     float64 `json:"spread"`
	Volatility float64 `json:"volatility"`
	Volume24h  float64 `json:"volume_24h"`
	// DepthBid/DepthAsk are the notional available within the configured
	// slippage band, used to estimate fill slippage for the intended size.
	DepthBid  float64   `json:"depth_bid"`
	DepthAsk  float64   `json:"depth_ask"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EstimateSlippage returns the expected slippage fraction for a market order
// of the given notional, based on the visible depth on the taker side.
func (m MarketSnapshot) EstimateSlippage(direction Direction, notional float64) float64 {
	depth := m.DepthAsk
	if direction == DirectionShort {
		depth = m.DepthBid
	}
	if depth <= 0 || notional <= 0 {
		return 0
	}
	// Half the spread is paid regardless; consuming a larger share of the
	// visible depth adds impact proportional to current volatility.
	base := 0.0
	if m.LastPrice > 0 {
		base = m.Spread / (2 * m.LastPrice)
	}
	return base + (notional/depth)*m.Volatility
}

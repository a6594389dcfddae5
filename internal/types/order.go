package types

import "time"

// OrderType distinguishes market and limit intents.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderIntent is the sized, risk-admitted request handed to the executor.
// It lives only until the order it produces; nothing persists it directly.
type OrderIntent struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	Size        float64   `json:"size"`
	Type        OrderType `json:"type"`
	LimitPrice  float64   `json:"limit_price,omitempty"`
	RefPrice    float64   `json:"ref_price,omitempty"` // mark price at decision time
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits,omitempty"`
	Trailing    bool      `json:"trailing,omitempty"`
	Composite   float64   `json:"composite"`
	Signal      Signal    `json:"signal"`
	DecidedAt   time.Time `json:"decided_at"`
}

// Notional is the capital the intent would commit at the given price.
func (i OrderIntent) Notional(price float64) float64 {
	return i.Size * price
}

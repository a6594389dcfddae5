package position

import (
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// Position is the authoritative record of one open exposure. At most one
// position exists per symbol; scale-in and scale-out adjust Size on the
// existing record, they never create a second one.
type Position struct {
	Symbol        string          `json:"symbol"`
	Direction     types.Direction `json:"direction"`
	EntryPrice    float64         `json:"entry_price"`
	Size          float64         `json:"size"`
	OpenedAt      time.Time       `json:"opened_at"`
	StopLoss      float64         `json:"stop_loss"`
	TakeProfits   []float64       `json:"take_profits,omitempty"`
	Trailing      bool            `json:"trailing,omitempty"`
	TrailingPeak  float64         `json:"trailing_peak,omitempty"`
	CurrentPrice  float64         `json:"current_price"`
	RealizedPnL   float64         `json:"realized_pnl"`
	UnrealizedPnL float64         `json:"unrealized_pnl"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Notional is the position value at the last marked price, falling back to
// the entry price before the first tick arrives.
func (p *Position) Notional() float64 {
	price := p.CurrentPrice
	if price <= 0 {
		price = p.EntryPrice
	}
	return p.Size * price
}

func (p *Position) unrealizedAt(price float64) float64 {
	if price <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Direction == types.DirectionShort {
		return (p.EntryPrice - price) * p.Size
	}
	return (price - p.EntryPrice) * p.Size
}

// AccountState is a point-in-time snapshot handed to every admission check.
// Loss figures are realized PnL for the current calendar window; admission
// additionally folds in unrealized PnL.
type AccountState struct {
	Capital       float64   `json:"capital"`
	ReserveRatio  float64   `json:"reserve_ratio"`
	DailyPnL      float64   `json:"daily_pnl"`
	WeeklyPnL     float64   `json:"weekly_pnl"`
	MonthlyPnL    float64   `json:"monthly_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	TradesToday   int       `json:"trades_today"`
	OpenPositions int       `json:"open_positions"`
	TotalExposure float64   `json:"total_exposure"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TradableCapital is the capital admission checks may commit, after the
// reserve is set aside.
func (a AccountState) TradableCapital() float64 {
	return a.Capital * (1 - a.ReserveRatio)
}

// Delta describes the effect of one fill on a position.
type Delta struct {
	Symbol      string  `json:"symbol"`
	Opened      bool    `json:"opened"`
	Closed      bool    `json:"closed"`
	SizeBefore  float64 `json:"size_before"`
	SizeAfter   float64 `json:"size_after"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// TriggerKind identifies which protective level a price tick crossed.
type TriggerKind string

const (
	TriggerStopLoss     TriggerKind = "stop_loss"
	TriggerTakeProfit   TriggerKind = "take_profit"
	TriggerTrailingStop TriggerKind = "trailing_stop"
)

// TriggerEvent asks the pipeline to reduce or close a position after its
// stop-loss or a take-profit level was crossed.
type TriggerEvent struct {
	Symbol     string      `json:"symbol"`
	Kind       TriggerKind `json:"kind"`
	Level      float64     `json:"level"`
	Price      float64     `json:"price"`
	CloseRatio float64     `json:"close_ratio"` // 1 = full close
}

package model

import (
	"time"

	"gorm.io/datatypes"
)

// OrderModel is the persisted form of one submission. ClientOrderID is the
// idempotency key shared with the exchange; the full intent rides along as
// JSON so recovery can rebuild the in-memory order exactly.
type OrderModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	ClientOrderID string         `gorm:"column:client_order_id;uniqueIndex"`
	ExchangeID    string         `gorm:"column:exchange_id"`
	Symbol        string         `gorm:"column:symbol;index"`
	Direction     string         `gorm:"column:direction"`
	OrderType     string         `gorm:"column:order_type"`
	Size          float64        `gorm:"column:size"`
	LimitPrice    float64        `gorm:"column:limit_price"`
	State         string         `gorm:"column:state;index"`
	FilledQty     float64        `gorm:"column:filled_qty"`
	AvgFillPrice  float64        `gorm:"column:avg_fill_price"`
	Attempts      int            `gorm:"column:attempts"`
	Reduce        int            `gorm:"column:reduce"`
	FailReason    string         `gorm:"column:fail_reason"`
	IntentJSON    datatypes.JSON `gorm:"column:intent_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`

	CreatedAt time.Time `gorm:"-"`
	UpdatedAt time.Time `gorm:"-"`
}

func (OrderModel) TableName() string { return "orders" }

// PositionModel holds one open position per symbol. Closed positions are
// deleted here and live on as ledger entries.
type PositionModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	Symbol          string         `gorm:"column:symbol;uniqueIndex"`
	Direction       string         `gorm:"column:direction"`
	EntryPrice      float64        `gorm:"column:entry_price"`
	Size            float64        `gorm:"column:size"`
	StopLoss        float64        `gorm:"column:stop_loss"`
	TakeProfitsJSON datatypes.JSON `gorm:"column:take_profits_json;type:TEXT"`
	Trailing        int            `gorm:"column:trailing"`
	TrailingPeak    float64        `gorm:"column:trailing_peak"`
	RealizedPnL     float64        `gorm:"column:realized_pnl"`
	OpenedAtUnix    int64          `gorm:"column:opened_at"`
	UpdatedAtUnix   int64          `gorm:"column:updated_at"`

	OpenedAt  time.Time `gorm:"-"`
	UpdatedAt time.Time `gorm:"-"`
}

func (PositionModel) TableName() string { return "positions" }

// AccountModel is a single-row table carrying the capital and PnL window
// state that must survive a restart.
type AccountModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	Capital       float64 `gorm:"column:capital"`
	DailyPnL      float64 `gorm:"column:daily_pnl"`
	WeeklyPnL     float64 `gorm:"column:weekly_pnl"`
	MonthlyPnL    float64 `gorm:"column:monthly_pnl"`
	TradesToday   int     `gorm:"column:trades_today"`
	WindowAnchor  int64   `gorm:"column:window_anchor"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (AccountModel) TableName() string { return "account_state" }

// LedgerEntryModel is the append-only trade history.
type LedgerEntryModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	Symbol        string  `gorm:"column:symbol;index"`
	Kind          string  `gorm:"column:kind"`
	Direction     string  `gorm:"column:direction"`
	Qty           float64 `gorm:"column:qty"`
	Price         float64 `gorm:"column:price"`
	RealizedPnL   float64 `gorm:"column:realized_pnl"`
	ClientOrderID string  `gorm:"column:client_order_id"`
	AtUnix        int64   `gorm:"column:at"`
}

func (LedgerEntryModel) TableName() string { return "trade_ledger" }

// EventModel records admission decisions, breaker transitions and other
// audit events.
type EventModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	Kind        string         `gorm:"column:kind;index"`
	Symbol      string         `gorm:"column:symbol"`
	Detail      string         `gorm:"column:detail"`
	PayloadJSON datatypes.JSON `gorm:"column:payload_json;type:TEXT"`
	AtUnix      int64          `gorm:"column:at"`
}

func (EventModel) TableName() string { return "events" }

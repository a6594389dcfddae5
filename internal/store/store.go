// Package store defines the persistence boundary. Everything the system
// must remember across a restart goes through here: orders, open
// positions, account windows and the audit trail.
package store

import (
	"context"

	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/store/model"
)

// LedgerKind tags one trade ledger entry.
type LedgerKind string

const (
	LedgerOpen     LedgerKind = "open"
	LedgerScaleIn  LedgerKind = "scale_in"
	LedgerScaleOut LedgerKind = "scale_out"
	LedgerClose    LedgerKind = "close"
)

// LedgerEntry is one realized trade event.
type LedgerEntry struct {
	Symbol        string
	Kind          LedgerKind
	Direction     string
	Qty           float64
	Price         float64
	RealizedPnL   float64
	ClientOrderID string
}

// Event is one audit record: an admission rejection, a breaker transition,
// an order failure.
type Event struct {
	Kind    string
	Symbol  string
	Detail  string
	Payload any
}

// AccountSnapshot is the persisted account window state.
type AccountSnapshot struct {
	Capital      float64
	DailyPnL     float64
	WeeklyPnL    float64
	MonthlyPnL   float64
	TradesToday  int
	WindowAnchor int64
}

// Store is the persistence surface the trader depends on.
type Store interface {
	// SaveOrder upserts an order keyed by client order ID. Every state
	// transition is written through immediately.
	SaveOrder(ctx context.Context, o executor.Order) error
	// ListOpenOrders returns orders in a non-terminal state, for startup
	// reconciliation.
	ListOpenOrders(ctx context.Context) ([]executor.Order, error)
	// ListRecentOrders returns the newest orders first.
	ListRecentOrders(ctx context.Context, limit int) ([]executor.Order, error)

	// SavePosition upserts the open position for its symbol.
	SavePosition(ctx context.Context, p position.Position) error
	// DeletePosition removes a closed position.
	DeletePosition(ctx context.Context, symbol string) error
	// ListPositions returns all open positions.
	ListPositions(ctx context.Context) ([]position.Position, error)

	// SaveAccount persists the account window counters.
	SaveAccount(ctx context.Context, snap AccountSnapshot) error
	// LoadAccount returns the persisted counters, or (nil, nil) when the
	// store is fresh.
	LoadAccount(ctx context.Context) (*AccountSnapshot, error)

	AppendLedger(ctx context.Context, entry LedgerEntry) error
	ListLedger(ctx context.Context, symbol string, limit int) ([]model.LedgerEntryModel, error)

	AppendEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, kind string, limit int) ([]model.EventModel, error)

	Close() error
}

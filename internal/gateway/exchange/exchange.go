// Package exchange defines the abstraction the execution core uses to talk
// to a trading venue. The core only ever sees this interface, so the live
// binance gateway and the paper simulator are interchangeable.
package exchange

import (
	"context"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/types"
)

type Exchange interface {
	Name() string

	// PlaceOrder submits an order identified by its client order ID. The ID
	// is the idempotency key for reconciliation after ambiguous failures.
	PlaceOrder(ctx context.Context, req OrderRequest) (Ack, error)

	// CancelOrder cancels by client order ID. Cancelling an already-filled
	// order returns ErrOrderNotOpen.
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error

	// QueryOrder reports the venue-side status of a client order ID,
	// including orders the venue accepted but we never got the ack for.
	QueryOrder(ctx context.Context, symbol, clientOrderID string) (OrderStatus, error)

	GetBalance(ctx context.Context) (Balance, error)

	// GetMarket assembles the market-quality snapshot admission checks use.
	GetMarket(ctx context.Context, symbol string) (types.MarketSnapshot, error)

	// Ping verifies connectivity; the health checker calls it on a timer.
	Ping(ctx context.Context) error
}

// FillStream delivers order fill callbacks. Live gateways back it with the
// venue's user-data stream; the paper exchange synthesizes events.
//
// SubscribeFills is called once: after a successful return the
// implementation owns the stream's lifetime, redialing as needed, until ctx
// is cancelled. Each execution report reaches the handler exactly once.
type FillStream interface {
	SubscribeFills(ctx context.Context, handler func(Fill)) error
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// SideFor maps a position direction and open/close intent to a venue side.
func SideFor(dir types.Direction, closing bool) Side {
	long := dir == types.DirectionLong
	if closing {
		long = !long
	}
	if long {
		return SideBuy
	}
	return SideSell
}

type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          types.OrderType
	Quantity      float64
	Price         float64 // limit orders only
	ClientOrderID string
	ReduceOnly    bool
}

// Ack is the venue's synchronous response to a submission.
type Ack struct {
	ExchangeID string
	Status     string
	FilledQty  float64
	AvgPrice   float64
	Time       time.Time
}

// OrderStatus answers a reconciliation query.
type OrderStatus struct {
	Found      bool
	ExchangeID string
	Status     string // NEW, PARTIALLY_FILLED, FILLED, CANCELED, REJECTED, EXPIRED
	FilledQty  float64
	AvgPrice   float64
}

// Open reports whether the venue still considers the order working.
func (s OrderStatus) Open() bool {
	return s.Found && (s.Status == "NEW" || s.Status == "PARTIALLY_FILLED")
}

// Fill is one execution report from the venue.
type Fill struct {
	Symbol        string
	ClientOrderID string
	ExchangeID    string
	Side          Side
	Qty           float64
	Price         float64
	CumQty        float64
	Status        string
	Time          time.Time
}

type Balance struct {
	Asset     string
	Total     float64
	Available float64
	UpdatedAt time.Time
}

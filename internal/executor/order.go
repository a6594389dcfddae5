package executor

import (
	"fmt"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// OrderState is the lifecycle state of one exchange order.
type OrderState string

const (
	StateCreated         OrderState = "CREATED"
	StateSubmitted       OrderState = "SUBMITTED"
	StatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	StateFilled          OrderState = "FILLED"
	StateRejected        OrderState = "REJECTED"
	StateCancelled       OrderState = "CANCELLED"
)

// Terminal states never transition again.
func (s OrderState) Terminal() bool {
	return s == StateFilled || s == StateRejected || s == StateCancelled
}

var validTransitions = map[OrderState][]OrderState{
	StateCreated:         {StateSubmitted, StateRejected, StateCancelled},
	StateSubmitted:       {StatePartiallyFilled, StateFilled, StateRejected, StateCancelled},
	StatePartiallyFilled: {StatePartiallyFilled, StateFilled, StateCancelled},
}

func canTransition(from, to OrderState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order tracks one submission through its lifecycle. The client order ID
// (Order.ID) is generated before submission and used as the idempotency key
// for reconciliation.
type Order struct {
	ID           string            `json:"id"`
	ExchangeID   string            `json:"exchange_id,omitempty"`
	Intent       types.OrderIntent `json:"intent"`
	State        OrderState        `json:"state"`
	FilledQty    float64           `json:"filled_qty"`
	AvgFillPrice float64           `json:"avg_fill_price"`
	Attempts     int               `json:"attempts"`
	Reduce       bool              `json:"reduce,omitempty"` // closes or reduces an existing position
	FailReason   string            `json:"fail_reason,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	// StateTimes records when each state was entered.
	StateTimes map[OrderState]time.Time `json:"state_times"`

	// appliedQty is how much of FilledQty has been handed to the position
	// tracker. Acks and reconciliation seed FilledQty ahead of the stream,
	// so the two can differ until the matching execution report lands.
	appliedQty float64
}

func (o *Order) transition(to OrderState) error {
	if o.State.Terminal() {
		return fmt.Errorf("order %s: illegal transition %s -> %s (terminal)", o.ID, o.State, to)
	}
	if !canTransition(o.State, to) {
		return fmt.Errorf("order %s: illegal transition %s -> %s", o.ID, o.State, to)
	}
	o.State = to
	if o.StateTimes == nil {
		o.StateTimes = make(map[OrderState]time.Time)
	}
	o.StateTimes[to] = time.Now()
	return nil
}

// snapshot returns a detached copy safe to hand outside the lock.
func (o *Order) snapshot() Order {
	cp := *o
	cp.StateTimes = make(map[OrderState]time.Time, len(o.StateTimes))
	for k, v := range o.StateTimes {
		cp.StateTimes[k] = v
	}
	return cp
}

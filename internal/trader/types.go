package trader

import (
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/breaker"
	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// EventType names one kind of message the actor loop processes.
type EventType string

const (
	// EvtSignal carries a validated-or-not trading signal into admission.
	EvtSignal EventType = "SIGNAL"
	// EvtFill carries one execution report from the exchange stream.
	EvtFill EventType = "FILL"
	// EvtPriceUpdate carries a mark price tick.
	EvtPriceUpdate EventType = "PRICE_UPDATE"
	// EvtTrigger carries a protective level crossing to execute.
	EvtTrigger EventType = "TRIGGER"
	// EvtHalt requests an emergency stop.
	EvtHalt EventType = "HALT"
	// EvtSubmitResult reports the outcome of an async submission.
	EvtSubmitResult EventType = "SUBMIT_RESULT"
)

// SignalPayload is a raw signal plus, optionally, the market snapshot the
// sender already holds. A zero Market makes the handler fetch one.
type SignalPayload struct {
	Signal types.Signal
	Market types.MarketSnapshot
}

type FillPayload struct {
	Fill exchange.Fill
}

type PricePayload struct {
	Symbol string
	Price  float64
}

type TriggerPayload struct {
	Trigger position.TriggerEvent
}

type HaltPayload struct {
	Cause  breaker.Cause
	Detail string
}

// SubmitResultPayload reports an async Submit back into the loop so the
// pending bookkeeping and alerts happen under loop serialization.
type SubmitResultPayload struct {
	Order executor.Order
	Err   error
}

// EventEnvelope is the message format of the actor loop.
type EventEnvelope struct {
	ID        string
	Type      EventType
	Payload   any
	Symbol    string
	CreatedAt time.Time

	// ReplyCh, when set, receives the handler's error so callers can wait
	// synchronously.
	ReplyCh chan error
}

// Package trader hosts the event-driven core of the system. A single
// goroutine owns admission, fill application and trigger execution, so a
// fill and a concurrent admission check can never interleave: positions,
// counters and order state always agree within one event.
package trader

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ramonzeraa/teste-crypto/internal/breaker"
	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/notifier"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/risk"
	"github.com/ramonzeraa/teste-crypto/internal/signal"
	"github.com/ramonzeraa/teste-crypto/internal/store"
)

// StateSnapshot is the read-only view served to HTTP clients. It is built
// inside the loop and published through an atomic, so readers never touch
// live state.
type StateSnapshot struct {
	Account   position.AccountState `json:"account"`
	Positions []position.Position   `json:"positions"`
	Pending   int                   `json:"pending_orders"`
	Breaker   breaker.State         `json:"breaker_state"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type Trader struct {
	validator *signal.Validator
	riskMgr   *risk.Manager
	limits    *risk.LimitsHolder
	tracker   *position.Tracker
	exec      *executor.Executor
	ex        exchange.Exchange
	stop      *breaker.EmergencyStop
	watchdog  *breaker.Watchdog
	st        store.Store
	alerts    *notifier.Dispatcher

	msgCh  chan EventEnvelope
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	snapshot atomic.Value // *StateSnapshot
}

type Deps struct {
	Validator *signal.Validator
	RiskMgr   *risk.Manager
	Limits    *risk.LimitsHolder
	Tracker   *position.Tracker
	Exec      *executor.Executor
	Exchange  exchange.Exchange
	Store     store.Store
	Alerts    *notifier.Dispatcher
}

func New(deps Deps) *Trader {
	t := &Trader{
		validator: deps.Validator,
		riskMgr:   deps.RiskMgr,
		limits:    deps.Limits,
		tracker:   deps.Tracker,
		exec:      deps.Exec,
		ex:        deps.Exchange,
		st:        deps.Store,
		alerts:    deps.Alerts,
		msgCh:     make(chan EventEnvelope, 100),
		stopCh:    make(chan struct{}),
	}
	t.refreshSnapshot()
	return t
}

// AttachSafety wires the emergency stop and watchdog after construction;
// both need the trader as their Liquidator, so the app builds them second.
func (t *Trader) AttachSafety(stop *breaker.EmergencyStop, watchdog *breaker.Watchdog) {
	t.stop = stop
	t.watchdog = watchdog
}

func (t *Trader) Start() {
	t.wg.Add(1)
	go t.runLoop()
}

func (t *Trader) Stop() {
	t.once.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

// Send queues an event for the loop. It never blocks forever: a stopped
// trader rejects instead.
func (t *Trader) Send(evt EventEnvelope) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}
	select {
	case t.msgCh <- evt:
		return nil
	case <-t.stopCh:
		return fmt.Errorf("trader is stopped")
	}
}

// SendSync queues an event and waits for its handler to finish.
func (t *Trader) SendSync(ctx context.Context, evt EventEnvelope) error {
	if evt.ReplyCh == nil {
		evt.ReplyCh = make(chan error, 1)
	}
	if err := t.Send(evt); err != nil {
		return err
	}
	select {
	case err := <-evt.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopCh:
		return fmt.Errorf("trader stopped during sync call")
	}
}

// Snapshot returns the last published state view.
func (t *Trader) Snapshot() *StateSnapshot {
	val := t.snapshot.Load()
	if val == nil {
		return &StateSnapshot{}
	}
	return val.(*StateSnapshot)
}

func (t *Trader) runLoop() {
	defer t.wg.Done()
	logger.Infof("trader loop started")
	for {
		select {
		case evt := <-t.msgCh:
			t.handleEvent(evt)
		case <-t.stopCh:
			logger.Infof("trader loop stopping")
			return
		}
	}
}

// handleEvent dispatches one event. A panicking handler must not take the
// loop down, and slow handlers get flagged since everything behind them
// waits.
func (t *Trader) handleEvent(evt EventEnvelope) {
	var err error
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("trader panic handling %s: %v", evt.Type, r)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", r)
		}
		if evt.ReplyCh != nil {
			evt.ReplyCh <- err
			close(evt.ReplyCh)
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("slow event %s took %v", evt.Type, dur)
		}
	}()

	switch evt.Type {
	case EvtSignal:
		payload, ok := evt.Payload.(SignalPayload)
		if !ok {
			err = fmt.Errorf("bad payload for %s", evt.Type)
			return
		}
		err = t.handleSignal(payload)
	case EvtFill:
		payload, ok := evt.Payload.(FillPayload)
		if !ok {
			err = fmt.Errorf("bad payload for %s", evt.Type)
			return
		}
		err = t.handleFill(payload.Fill)
	case EvtPriceUpdate:
		payload, ok := evt.Payload.(PricePayload)
		if !ok {
			err = fmt.Errorf("bad payload for %s", evt.Type)
			return
		}
		err = t.handlePrice(payload)
	case EvtTrigger:
		payload, ok := evt.Payload.(TriggerPayload)
		if !ok {
			err = fmt.Errorf("bad payload for %s", evt.Type)
			return
		}
		err = t.handleTrigger(payload.Trigger)
	case EvtHalt:
		payload, ok := evt.Payload.(HaltPayload)
		if !ok {
			err = fmt.Errorf("bad payload for %s", evt.Type)
			return
		}
		t.stop.Trip(payload.Cause, payload.Detail)
	case EvtSubmitResult:
		payload, ok := evt.Payload.(SubmitResultPayload)
		if !ok {
			err = fmt.Errorf("bad payload for %s", evt.Type)
			return
		}
		err = t.handleSubmitResult(payload)
	default:
		logger.Warnf("no handler for event type %s", evt.Type)
	}
	if err != nil {
		logger.Errorf("trader failed to handle %s: %v", evt.Type, err)
	}
	t.refreshSnapshot()
}

func (t *Trader) refreshSnapshot() {
	acct := t.tracker.Snapshot()
	snap := &StateSnapshot{
		Account:   acct,
		Positions: t.tracker.List(),
		Pending:   t.exec.PendingCount(),
		UpdatedAt: time.Now(),
	}
	if t.stop != nil {
		snap.Breaker = t.stop.State()
	} else {
		snap.Breaker = breaker.StateNormal
	}
	t.snapshot.Store(snap)
}

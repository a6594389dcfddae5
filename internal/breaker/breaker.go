// Package breaker implements the trading-level emergency stop. It runs as
// an independent observer with the authority to cancel every pending order,
// liquidate every position and suspend admission until an operator steps in.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/gateway/notifier"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
)

// State machine: NORMAL -> TRIGGERED -> HALTED -> (manual) RECOVERING ->
// NORMAL. No code path re-enters NORMAL automatically; only a passed
// recovery run does, and only after a manual Resume.
type State string

const (
	StateNormal     State = "NORMAL"
	StateTriggered  State = "TRIGGERED"
	StateHalted     State = "HALTED"
	StateRecovering State = "RECOVERING"
)

type Cause string

const (
	CauseDailyLoss    Cause = "daily_loss"
	CauseAbnormal     Cause = "abnormal_behavior"
	CauseConnectivity Cause = "connectivity_loss"
	CauseManual       Cause = "manual"
)

// Liquidator is the slice of the pipeline the emergency stop commands. The
// trader implements it; calls run on the breaker's own context so a blocked
// submission elsewhere can never delay liquidation.
type Liquidator interface {
	CancelAllOrders(ctx context.Context) []error
	LiquidateAll(ctx context.Context) error
}

// RecoveryCheck is one validation gate on the RECOVERING path. All checks
// must pass before trading resumes.
type RecoveryCheck struct {
	Name string
	Run  func(ctx context.Context) error
}

type EmergencyStop struct {
	mu       sync.Mutex
	state    State
	cause    Cause
	detail   string
	since    time.Time
	degraded bool

	liq    Liquidator
	alerts *notifier.Dispatcher
	checks []RecoveryCheck

	liquidationTimeout time.Duration
	onState            func(State)

	runCtx    context.Context
	runCancel context.CancelFunc
}

type Option func(*EmergencyStop)

func WithLiquidationTimeout(d time.Duration) Option {
	return func(e *EmergencyStop) {
		if d > 0 {
			e.liquidationTimeout = d
		}
	}
}

func WithRecoveryChecks(checks ...RecoveryCheck) Option {
	return func(e *EmergencyStop) { e.checks = append(e.checks, checks...) }
}

// WithStateHook registers a callback fired on every state change (metrics).
func WithStateHook(hook func(State)) Option {
	return func(e *EmergencyStop) { e.onState = hook }
}

func New(liq Liquidator, alerts *notifier.Dispatcher, opts ...Option) *EmergencyStop {
	ctx, cancel := context.WithCancel(context.Background())
	e := &EmergencyStop{
		state:              StateNormal,
		since:              time.Now(),
		liq:                liq,
		alerts:             alerts,
		liquidationTimeout: 30 * time.Second,
		runCtx:             ctx,
		runCancel:          cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normal reports whether admission is allowed.
func (e *EmergencyStop) Normal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateNormal
}

func (e *EmergencyStop) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns state plus trigger context for the control API.
func (e *EmergencyStop) Status() (State, Cause, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.cause, e.detail, e.degraded
}

// RunContext is cancelled the instant the breaker leaves NORMAL. Every
// submission retry loop derives from it, so halting aborts them at once.
func (e *EmergencyStop) RunContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCtx
}

// Trip moves NORMAL -> TRIGGERED and starts the shutdown sequence: cancel
// all pending orders, liquidate all positions, then settle in HALTED.
// Tripping while not NORMAL is a no-op.
func (e *EmergencyStop) Trip(cause Cause, detail string) {
	e.mu.Lock()
	if e.state != StateNormal {
		e.mu.Unlock()
		return
	}
	e.setStateLocked(StateTriggered)
	e.cause = cause
	e.detail = detail
	e.runCancel()
	e.mu.Unlock()

	logger.Errorf("emergency stop TRIGGERED (%s): %s", cause, detail)
	e.alerts.Dispatch(notifier.Alert{
		Priority: notifier.PriorityCritical,
		Title:    "EMERGENCY STOP TRIGGERED",
		Lines:    []string{fmt.Sprintf("cause: %s", cause), detail},
	})

	go e.shutdown()
}

func (e *EmergencyStop) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), e.liquidationTimeout)
	defer cancel()

	for _, err := range e.liq.CancelAllOrders(ctx) {
		logger.Errorf("emergency stop: cancel failed: %v", err)
	}

	err := e.liq.LiquidateAll(ctx)

	e.mu.Lock()
	e.degraded = err != nil
	e.setStateLocked(StateHalted)
	e.mu.Unlock()

	if err != nil {
		logger.Errorf("emergency stop: liquidation incomplete: %v", err)
		e.alerts.Dispatch(notifier.Alert{
			Priority: notifier.PriorityCritical,
			Title:    "LIQUIDATION INCOMPLETE - MANUAL INTERVENTION REQUIRED",
			Lines:    []string{err.Error()},
		})
		return
	}
	logger.Warnf("emergency stop: all exposure closed, system HALTED")
	e.alerts.Dispatch(notifier.Alert{
		Priority: notifier.PriorityHigh,
		Title:    "System halted, exposure closed",
		Lines:    []string{fmt.Sprintf("cause: %s", e.cause)},
	})
}

// Resume is the manual recovery action: HALTED -> RECOVERING, run every
// check, and only re-enter NORMAL when all pass. Any failure drops back to
// HALTED.
func (e *EmergencyStop) Resume(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateHalted {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("resume requires HALTED state, currently %s", state)
	}
	e.setStateLocked(StateRecovering)
	e.mu.Unlock()

	logger.Infof("emergency stop: RECOVERING, running %d checks", len(e.checks))
	for _, check := range e.checks {
		if err := check.Run(ctx); err != nil {
			e.mu.Lock()
			e.setStateLocked(StateHalted)
			e.mu.Unlock()
			e.alerts.Dispatch(notifier.Alert{
				Priority: notifier.PriorityHigh,
				Title:    "Recovery check failed",
				Lines:    []string{fmt.Sprintf("%s: %v", check.Name, err)},
			})
			return fmt.Errorf("recovery check %s failed: %w", check.Name, err)
		}
		logger.Infof("emergency stop: recovery check %s passed", check.Name)
	}

	e.mu.Lock()
	e.runCtx, e.runCancel = context.WithCancel(context.Background())
	e.cause = ""
	e.detail = ""
	e.degraded = false
	e.setStateLocked(StateNormal)
	e.mu.Unlock()

	e.alerts.Dispatch(notifier.Alert{
		Priority: notifier.PriorityHigh,
		Title:    "Trading resumed",
		Lines:    []string{"all recovery checks passed"},
	})
	return nil
}

func (e *EmergencyStop) setStateLocked(to State) {
	e.state = to
	e.since = time.Now()
	if e.onState != nil {
		go e.onState(to)
	}
}

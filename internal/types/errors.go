package types

import (
	"errors"
	"fmt"
)

// Error taxonomy of the execution core. Each class maps to a distinct
// recovery policy: connectivity loss closes exposure, abnormal behavior
// halts trading, execution errors retry within bounds then escalate.

// ConnectivityError means the exchange or the network is unreachable.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity lost during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// AbnormalBehaviorError means fill/slippage statistics drifted outside the
// expected bounds. It always forces a trading halt and manual re-validation.
type AbnormalBehaviorError struct {
	Metric   string
	Observed float64
	Bound    float64
}

func (e *AbnormalBehaviorError) Error() string {
	return fmt.Sprintf("abnormal %s: observed %.4f exceeds bound %.4f", e.Metric, e.Observed, e.Bound)
}

// ExecutionError wraps an order placement or cancellation failure.
// Transient errors are retried with backoff; permanent ones are not.
type ExecutionError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ExecutionError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s execution error in %s: %v", kind, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

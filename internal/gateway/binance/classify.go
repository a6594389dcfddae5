package binance

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/adshao/go-binance/v2/common"

	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// classify maps SDK errors onto the core taxonomy. Network reachability
// problems become ConnectivityError; venue refusals become ExecutionError
// with the transient flag deciding whether the executor retries.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &types.ExecutionError{Op: op, Transient: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &types.ConnectivityError{Op: op, Err: err}
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &types.ExecutionError{Op: op, Transient: transientCode(apiErr.Code), Err: err}
	}
	if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") {
		return &types.ConnectivityError{Op: op, Err: err}
	}
	return &types.ExecutionError{Op: op, Transient: false, Err: err}
}

// transientCode reports whether a Binance API error code is worth retrying.
// Validation refusals (filters, balance, permissions) are permanent.
func transientCode(code int64) bool {
	switch code {
	case -1000, // UNKNOWN
		-1001, // DISCONNECTED
		-1003, // TOO_MANY_REQUESTS
		-1006, // UNEXPECTED_RESP
		-1007, // TIMEOUT
		-1016: // SERVICE_SHUTTING_DOWN
		return true
	}
	return false
}

func apiCode(err error) int64 {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

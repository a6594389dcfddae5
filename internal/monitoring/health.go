package monitoring

import (
	"context"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
	"github.com/ramonzeraa/teste-crypto/internal/pkg/circuit"
)

// HealthChecker pings the exchange on an interval and feeds results into
// the connectivity circuit breaker. The watchdog reads the breaker's
// downtime to decide when connectivity loss becomes an emergency.
type HealthChecker struct {
	ex       exchange.Exchange
	conn     *circuit.CircuitBreaker
	interval time.Duration
	onTick   func(downFor time.Duration)
}

func NewHealthChecker(ex exchange.Exchange, conn *circuit.CircuitBreaker, interval time.Duration, onTick func(time.Duration)) *HealthChecker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthChecker{ex: ex, conn: conn, interval: interval, onTick: onTick}
}

// Run blocks until ctx is done.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *HealthChecker) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := h.ex.Ping(pingCtx)
	cancel()
	if err != nil {
		h.conn.RecordFailure()
		RecordError("connectivity")
		logger.Warnf("health check: %s ping failed: %v", h.ex.Name(), err)
	} else {
		h.conn.RecordSuccess()
	}
	if h.onTick != nil {
		h.onTick(h.conn.DownFor())
	}
}

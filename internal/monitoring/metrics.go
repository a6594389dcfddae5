// Package monitoring exposes Prometheus metrics for the trading pipeline
// and a background health checker for exchange connectivity.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_trades_total",
			Help: "Total number of fills applied",
		},
		[]string{"symbol", "side"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_rejections_total",
			Help: "Signals rejected by admission checks",
		},
		[]string{"reason"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradecore_submit_retries_total",
			Help: "Order submission retry attempts",
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_errors_total",
			Help: "Errors by category",
		},
		[]string{"type"},
	)

	// Exposure metrics
	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_open_positions",
			Help: "Number of open positions",
		},
	)

	exposureRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_total_exposure_ratio",
			Help: "Total notional exposure over capital",
		},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_daily_pnl",
			Help: "Realized PnL for the current day",
		},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradecore_mark_price",
			Help: "Last observed price per symbol",
		},
		[]string{"symbol"},
	)

	// Safety metrics
	breakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_breaker_state",
			Help: "Emergency stop state (0 normal, 1 triggered, 2 halted, 3 recovering)",
		},
	)

	fillLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradecore_fill_latency_seconds",
			Help:    "Submit-to-fill latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(retriesTotal)
	prometheus.MustRegister(errorsTotal)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(exposureRatio)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(fillLatency)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordTrade(symbol, side string) {
	tradesTotal.WithLabelValues(symbol, side).Inc()
}

func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordRetry() {
	retriesTotal.Inc()
}

func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}

func UpdateExposure(positions int, ratio float64) {
	openPositions.Set(float64(positions))
	exposureRatio.Set(ratio)
}

func UpdateDailyPnL(v float64) {
	dailyPnL.Set(v)
}

func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

func UpdateBreakerState(state string) {
	var v float64
	switch state {
	case "TRIGGERED":
		v = 1
	case "HALTED":
		v = 2
	case "RECOVERING":
		v = 3
	}
	breakerState.Set(v)
}

func ObserveFillLatency(seconds float64) {
	fillLatency.Observe(seconds)
}

package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ramonzeraa/teste-crypto/internal/gateway/notifier"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/risk"
)

func testWatchdog(cfg WatchdogConfig) (*Watchdog, *EmergencyStop) {
	stop := New(&fakeLiquidator{}, notifier.NewDispatcher(nil))
	return NewWatchdog(stop, cfg), stop
}

func TestCheckDailyLossTripsPastLimit(t *testing.T) {
	limits := risk.Limits{MaxDailyLoss: 0.02}
	acct := position.AccountState{Capital: 10000, DailyPnL: -120, UnrealizedPnL: -70}

	w, stop := testWatchdog(WatchdogConfig{})
	w.CheckDailyLoss(acct, &limits)
	assert.Equal(t, StateNormal, stop.State(), "1.9%% loss stays under the 2%% limit")

	// Reaching the limit exactly trips, not just crossing it.
	acct.UnrealizedPnL = -80
	w.CheckDailyLoss(acct, &limits)
	waitForState(t, stop, StateHalted)
	_, cause, _, _ := stop.Status()
	assert.Equal(t, CauseDailyLoss, cause)
}

func TestCheckDailyLossIgnoresMissingLimits(t *testing.T) {
	w, stop := testWatchdog(WatchdogConfig{})
	w.CheckDailyLoss(position.AccountState{Capital: 10000, DailyPnL: -9000}, nil)
	assert.Equal(t, StateNormal, stop.State())
}

func TestObserveSlippageNeedsBaseline(t *testing.T) {
	w, stop := testWatchdog(WatchdogConfig{SlippageZScore: 3, StatsWindow: 50})

	// Too few samples to estimate a spread: even a wild value passes.
	for i := 0; i < 5; i++ {
		w.ObserveSlippage(0.05)
	}
	assert.Equal(t, StateNormal, stop.State())
}

func TestObserveSlippageTripsOnOutlier(t *testing.T) {
	w, stop := testWatchdog(WatchdogConfig{SlippageZScore: 3, StatsWindow: 50})

	// Establish a baseline around 0.1% with a little spread.
	for i := 0; i < 12; i++ {
		v := 0.0010
		if i%2 == 0 {
			v = 0.0012
		}
		w.ObserveSlippage(v)
	}
	assert.Equal(t, StateNormal, stop.State())

	w.ObserveSlippage(0.02)
	waitForState(t, stop, StateHalted)
	_, cause, detail, _ := stop.Status()
	assert.Equal(t, CauseAbnormal, cause)
	assert.Contains(t, detail, "slippage")
}

func TestObserveFillLatencyTripsOnOutlier(t *testing.T) {
	w, stop := testWatchdog(WatchdogConfig{FillLatencyZScore: 3, StatsWindow: 50})

	for i := 0; i < 12; i++ {
		d := 100 * time.Millisecond
		if i%2 == 0 {
			d = 120 * time.Millisecond
		}
		w.ObserveFillLatency(d)
	}
	assert.Equal(t, StateNormal, stop.State())

	w.ObserveFillLatency(5 * time.Second)
	waitForState(t, stop, StateHalted)
	_, cause, detail, _ := stop.Status()
	assert.Equal(t, CauseAbnormal, cause)
	assert.Contains(t, detail, "fill_latency")
}

func TestCheckConnectivity(t *testing.T) {
	w, stop := testWatchdog(WatchdogConfig{ConnectivityTimeout: 30 * time.Second})

	w.CheckConnectivity(10 * time.Second)
	assert.Equal(t, StateNormal, stop.State())

	w.CheckConnectivity(31 * time.Second)
	waitForState(t, stop, StateHalted)
	_, cause, _, _ := stop.Status()
	assert.Equal(t, CauseConnectivity, cause)
}

func TestRollingStatsZScore(t *testing.T) {
	s := newRollingStats(20)
	for i := 1; i <= 9; i++ {
		s.add(float64(i))
	}
	assert.Zero(t, s.zscore(100), "below the minimum sample count")

	s.add(10)
	// Window is 1..10: mean 5.5, population std sqrt(8.25).
	assert.InDelta(t, 1.566, s.zscore(10), 0.001)
	assert.InDelta(t, -1.566, s.zscore(1), 0.001)
}

func TestRollingStatsZeroSpread(t *testing.T) {
	s := newRollingStats(20)
	for i := 0; i < 15; i++ {
		s.add(2.5)
	}
	assert.Zero(t, s.zscore(1000), "identical samples give no spread to score against")
}

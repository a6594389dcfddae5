package breaker

import (
	"fmt"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/risk"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// WatchdogConfig bundles the abnormal-behavior thresholds.
type WatchdogConfig struct {
	SlippageZScore      float64
	FillLatencyZScore   float64
	StatsWindow         int
	ConnectivityTimeout time.Duration
}

// Watchdog feeds runtime observations into the emergency stop. It owns the
// rolling baselines for slippage and fill latency and trips the stop when
// an observation lands outside the configured z-score band, when realized
// daily loss crosses the hard limit, or when the exchange has been
// unreachable for too long.
type Watchdog struct {
	stop *EmergencyStop
	cfg  WatchdogConfig

	slippage *rollingStats
	latency  *rollingStats
}

func NewWatchdog(stop *EmergencyStop, cfg WatchdogConfig) *Watchdog {
	if cfg.SlippageZScore <= 0 {
		cfg.SlippageZScore = 3
	}
	if cfg.FillLatencyZScore <= 0 {
		cfg.FillLatencyZScore = 3
	}
	if cfg.ConnectivityTimeout <= 0 {
		cfg.ConnectivityTimeout = 30 * time.Second
	}
	return &Watchdog{
		stop:     stop,
		cfg:      cfg,
		slippage: newRollingStats(cfg.StatsWindow),
		latency:  newRollingStats(cfg.StatsWindow),
	}
}

// ObserveSlippage records one fill's realized slippage fraction and trips
// on a statistical outlier. The observation joins the baseline either way,
// so a genuine regime change shifts the band instead of tripping forever.
func (w *Watchdog) ObserveSlippage(frac float64) {
	z := w.slippage.zscore(frac)
	w.slippage.add(frac)
	if z > w.cfg.SlippageZScore {
		err := &types.AbnormalBehaviorError{Metric: "slippage", Observed: z, Bound: w.cfg.SlippageZScore}
		w.stop.Trip(CauseAbnormal, err.Error())
	}
}

// ObserveFillLatency records submit-to-fill latency in seconds.
func (w *Watchdog) ObserveFillLatency(d time.Duration) {
	secs := d.Seconds()
	z := w.latency.zscore(secs)
	w.latency.add(secs)
	if z > w.cfg.FillLatencyZScore {
		err := &types.AbnormalBehaviorError{Metric: "fill_latency", Observed: z, Bound: w.cfg.FillLatencyZScore}
		w.stop.Trip(CauseAbnormal, err.Error())
	}
}

// CheckDailyLoss trips when realized plus unrealized daily loss crosses the
// configured fraction of capital.
func (w *Watchdog) CheckDailyLoss(acct position.AccountState, limits *risk.Limits) {
	if limits == nil || limits.MaxDailyLoss <= 0 || acct.Capital <= 0 {
		return
	}
	loss := -(acct.DailyPnL + acct.UnrealizedPnL) / acct.Capital
	if loss >= limits.MaxDailyLoss {
		w.stop.Trip(CauseDailyLoss, fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%", loss*100, limits.MaxDailyLoss*100))
	}
}

// CheckConnectivity trips once the exchange has been continuously failing
// for longer than the configured timeout.
func (w *Watchdog) CheckConnectivity(downFor time.Duration) {
	if downFor > w.cfg.ConnectivityTimeout {
		w.stop.Trip(CauseConnectivity, fmt.Sprintf("exchange unreachable for %s (limit %s)", downFor.Round(time.Second), w.cfg.ConnectivityTimeout))
	}
}

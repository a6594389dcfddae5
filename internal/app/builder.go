// Package app assembles the execution core: config to components, wiring
// order chosen so safety (emergency stop, watchdog) attaches before the
// loop ever starts.
package app

import (
	"fmt"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/breaker"
	"github.com/ramonzeraa/teste-crypto/internal/config"
	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/binance"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/notifier"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
	"github.com/ramonzeraa/teste-crypto/internal/monitoring"
	"github.com/ramonzeraa/teste-crypto/internal/pkg/circuit"
	"github.com/ramonzeraa/teste-crypto/internal/pkg/symbol"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/risk"
	"github.com/ramonzeraa/teste-crypto/internal/signal"
	"github.com/ramonzeraa/teste-crypto/internal/store/gormstore"
	"github.com/ramonzeraa/teste-crypto/internal/trader"
	tradehttp "github.com/ramonzeraa/teste-crypto/internal/transport/http"
)

// fillStream matches exchanges that push execution reports.
type fillStream interface {
	exchange.Exchange
	exchange.FillStream
}

// Build constructs the whole application from config and secrets. Nothing
// starts running yet.
func Build(cfg *config.Config, secrets config.Secrets) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	cfg.Trading.Symbols = symbol.NormalizeList(cfg.Trading.Symbols)

	ex, err := buildExchange(cfg, secrets)
	if err != nil {
		return nil, err
	}

	st, err := gormstore.New(cfg.App.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	alerts := buildAlerts(cfg, secrets)

	conn := circuit.NewCircuitBreaker("exchange", 3, 30*time.Second)
	conn.SetStateChangeHandler(func(name string, from, to circuit.State) {
		logger.Warnf("circuit %s: %s -> %s", name, from, to)
	})

	exec := executor.New(ex,
		executor.WithMinInterval(cfg.Trading.MinOrderInterval()),
		executor.WithConnectivityBreaker(conn),
	)

	tracker := position.NewTracker(cfg.Trading.InitialCapital, cfg.Trading.ReserveRatio)
	limits := risk.NewLimitsHolder(risk.LimitsFromConfig(cfg))

	tr := trader.New(trader.Deps{
		Validator: signal.FromConfig(cfg),
		RiskMgr:   risk.NewManager(),
		Limits:    limits,
		Tracker:   tracker,
		Exec:      exec,
		Exchange:  ex,
		Store:     st,
		Alerts:    alerts,
	})

	stop := breaker.New(tr, alerts,
		breaker.WithLiquidationTimeout(cfg.Monitoring.Thresholds.LiquidationTimeout()),
		breaker.WithStateHook(func(s breaker.State) {
			monitoring.UpdateBreakerState(string(s))
		}),
		breaker.WithRecoveryChecks(recoveryChecks(ex, st)...),
	)
	watchdog := breaker.NewWatchdog(stop, breaker.WatchdogConfig{
		SlippageZScore:      cfg.Monitoring.Thresholds.SlippageZScore,
		FillLatencyZScore:   cfg.Monitoring.Thresholds.FillLatencyZScore,
		StatsWindow:         cfg.Monitoring.Thresholds.StatsWindow,
		ConnectivityTimeout: cfg.Monitoring.Thresholds.ConnectivityTimeout(),
	})
	tr.AttachSafety(stop, watchdog)

	health := monitoring.NewHealthChecker(ex, conn, cfg.Monitoring.HealthInterval(), watchdog.CheckConnectivity)

	a := &App{
		cfg:      cfg,
		ex:       ex,
		st:       st,
		alerts:   alerts,
		trader:   tr,
		stop:     stop,
		watchdog: watchdog,
		limits:   limits,
		health:   health,
	}

	httpSrv, err := tradehttp.NewServer(tradehttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Service: a,
	})
	if err != nil {
		return nil, err
	}
	a.http = httpSrv
	return a, nil
}

func buildExchange(cfg *config.Config, secrets config.Secrets) (fillStream, error) {
	if cfg.Trading.Paper() {
		logger.Infof("paper mode, using simulated exchange")
		return exchange.NewPaper(cfg.Trading.InitialCapital), nil
	}
	if secrets.ExchangeAPIKey == "" || secrets.ExchangeAPISecret == "" {
		return nil, fmt.Errorf("live mode requires BINANCE_API_KEY and BINANCE_API_SECRET")
	}
	return binance.New(binance.Config{
		APIKey:    secrets.ExchangeAPIKey,
		APISecret: secrets.ExchangeAPISecret,
		Testnet:   cfg.Exchange.Testnet,
	}), nil
}

func buildAlerts(cfg *config.Config, secrets config.Secrets) *notifier.Dispatcher {
	if !cfg.Notify.Telegram.Enabled {
		return notifier.NewDispatcher(nil)
	}
	if secrets.TelegramBotToken == "" || secrets.TelegramChatID == "" {
		logger.Warnf("telegram enabled but TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID not set, alerts go to log only")
		return notifier.NewDispatcher(nil)
	}
	return notifier.NewDispatcher(notifier.NewTelegram(secrets.TelegramBotToken, secrets.TelegramChatID))
}

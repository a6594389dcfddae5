package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ramonzeraa/teste-crypto/internal/breaker"
	"github.com/ramonzeraa/teste-crypto/internal/config"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/notifier"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
	"github.com/ramonzeraa/teste-crypto/internal/monitoring"
	"github.com/ramonzeraa/teste-crypto/internal/risk"
	"github.com/ramonzeraa/teste-crypto/internal/store"
	"github.com/ramonzeraa/teste-crypto/internal/trader"
	tradehttp "github.com/ramonzeraa/teste-crypto/internal/transport/http"
)

type App struct {
	cfg      *config.Config
	ex       fillStream
	st       store.Store
	alerts   *notifier.Dispatcher
	trader   *trader.Trader
	stop     *breaker.EmergencyStop
	watchdog *breaker.Watchdog
	limits   *risk.LimitsHolder
	health   *monitoring.HealthChecker
	http     *tradehttp.Server
}

// Run recovers persisted state, starts every background worker and blocks
// until ctx is cancelled or a worker fails.
func (a *App) Run(ctx context.Context, cfgPath string) error {
	recoverCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	err := a.trader.Recover(recoverCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("state recovery: %w", err)
	}

	a.trader.Start()
	defer a.trader.Stop()
	defer a.st.Close()
	defer a.alerts.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.http.Run(ctx)
	})

	group.Go(func() error {
		a.health.Run(ctx)
		return nil
	})

	group.Go(func() error {
		a.runFillStream(ctx)
		return nil
	})

	group.Go(func() error {
		a.runPricePoller(ctx)
		return nil
	})

	if cfgPath != "" {
		group.Go(func() error {
			return config.Watch(ctx, cfgPath, a.onConfigReload)
		})
	}

	a.alerts.Infof("System started", "mode=%s symbols=%v", a.cfg.Trading.Mode, a.cfg.Trading.Symbols)
	return group.Wait()
}

// runFillStream establishes the execution-report subscription. The gateway
// owns the stream after a successful subscribe and redials internally until
// ctx is cancelled, so only a failed initial subscription is retried here.
// Subscribing again after success would deliver every report once per
// subscription.
func (a *App) runFillStream(ctx context.Context) {
	forward := func(fill exchange.Fill) {
		sendErr := a.trader.Send(trader.EventEnvelope{
			Type:    trader.EvtFill,
			Symbol:  fill.Symbol,
			Payload: trader.FillPayload{Fill: fill},
		})
		if sendErr != nil {
			logger.Errorf("fill for %s lost: %v", fill.ClientOrderID, sendErr)
		}
	}
	for {
		err := a.ex.SubscribeFills(ctx, forward)
		if err == nil || ctx.Err() != nil {
			return
		}
		logger.Errorf("fill stream: %v, retrying in 5s", err)
		monitoring.RecordError("fill_stream")
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// runPricePoller feeds mark prices for symbols with open positions so
// protective triggers fire even without fresh signals.
func (a *App) runPricePoller(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pos := range a.trader.Snapshot().Positions {
				a.pollPrice(ctx, pos.Symbol)
			}
		}
	}
}

func (a *App) pollPrice(ctx context.Context, symbol string) {
	mctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	market, err := a.ex.GetMarket(mctx, symbol)
	if err != nil {
		logger.Debugf("price poll %s: %v", symbol, err)
		return
	}
	err = a.trader.Send(trader.EventEnvelope{
		Type:    trader.EvtPriceUpdate,
		Symbol:  symbol,
		Payload: trader.PricePayload{Symbol: symbol, Price: market.LastPrice},
	})
	if err != nil {
		logger.Debugf("price update for %s dropped: %v", symbol, err)
	}
}

// onConfigReload swaps the risk limits snapshot. Everything that reads
// limits picks up the new values on its next admission; in-flight
// evaluations keep the snapshot they started with.
func (a *App) onConfigReload(next *config.Config) {
	a.limits.Swap(risk.LimitsFromConfig(next))
	logger.SetLevel(next.App.LogLevel)
	logger.Infof("risk limits reloaded")
	a.alerts.Infof("Config reloaded", "risk limits swapped")
}

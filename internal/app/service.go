package app

import (
	"context"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/breaker"
	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/store/model"
	"github.com/ramonzeraa/teste-crypto/internal/trader"
	tradehttp "github.com/ramonzeraa/teste-crypto/internal/transport/http"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

var _ tradehttp.Service = (*App)(nil)

// IngestSignal queues one signal for admission. The HTTP caller gets an
// accept/queue answer immediately; the admission verdict lands in the
// events log.
func (a *App) IngestSignal(ctx context.Context, sig types.Signal) error {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}
	return a.trader.Send(trader.EventEnvelope{
		Type:    trader.EvtSignal,
		Symbol:  sig.Symbol,
		Payload: trader.SignalPayload{Signal: sig},
	})
}

func (a *App) Snapshot() *trader.StateSnapshot {
	return a.trader.Snapshot()
}

func (a *App) RecentOrders(ctx context.Context, limit int) ([]executor.Order, error) {
	return a.st.ListRecentOrders(ctx, limit)
}

func (a *App) Ledger(ctx context.Context, symbol string, limit int) ([]model.LedgerEntryModel, error) {
	return a.st.ListLedger(ctx, symbol, limit)
}

func (a *App) Events(ctx context.Context, kind string, limit int) ([]model.EventModel, error) {
	return a.st.ListEvents(ctx, kind, limit)
}

func (a *App) Halt(detail string) {
	a.stop.Trip(breaker.CauseManual, detail)
}

func (a *App) Resume(ctx context.Context) error {
	return a.stop.Resume(ctx)
}

func (a *App) BreakerStatus() (breaker.State, breaker.Cause, string, bool) {
	return a.stop.Status()
}

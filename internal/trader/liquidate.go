package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
)

// CancelAllOrders and LiquidateAll implement breaker.Liquidator. Both run
// on the emergency stop's own context and bypass admission entirely: when
// they are called, the loop's run context is already dead.

func (t *Trader) CancelAllOrders(ctx context.Context) []error {
	return t.exec.CancelAll(ctx)
}

// LiquidateAll closes every open position with a market reduce order placed
// directly on the venue. Each close is confirmed by polling the client
// order ID; the position tracker is settled here rather than through the
// fill stream, which ignores orders the executor never registered.
func (t *Trader) LiquidateAll(ctx context.Context) error {
	positions := t.tracker.List()
	if len(positions) == 0 {
		return nil
	}
	logger.Warnf("liquidating %d positions", len(positions))

	var failed []string
	for _, pos := range positions {
		if err := t.liquidateOne(ctx, pos.Symbol); err != nil {
			logger.Errorf("liquidate %s: %v", pos.Symbol, err)
			failed = append(failed, pos.Symbol)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("positions not closed: %v", failed)
	}

	t.persistAccount(ctx)
	return nil
}

func (t *Trader) liquidateOne(ctx context.Context, symbol string) error {
	pos, ok := t.tracker.Get(symbol)
	if !ok {
		return nil
	}
	clientID := uuid.NewString()
	req := exchange.OrderRequest{
		Symbol:        symbol,
		Side:          exchange.SideFor(pos.Direction, true),
		Type:          "market",
		Quantity:      pos.Size,
		ClientOrderID: clientID,
		ReduceOnly:    true,
	}
	ack, err := t.ex.PlaceOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("place close order: %w", err)
	}

	price, err := t.awaitFill(ctx, symbol, clientID, ack)
	if err != nil {
		return err
	}

	realized, err := t.tracker.ClosePosition(symbol, price)
	if err != nil {
		return fmt.Errorf("settle close: %w", err)
	}
	logger.Warnf("liquidated %s at %.4f, realized %.2f", symbol, price, realized)

	if dbErr := t.st.DeletePosition(ctx, symbol); dbErr != nil {
		logger.Errorf("delete liquidated position %s: %v", symbol, dbErr)
	}
	return nil
}

// awaitFill polls until the close order fills and returns its average
// price.
func (t *Trader) awaitFill(ctx context.Context, symbol, clientID string, ack exchange.Ack) (float64, error) {
	if ack.Status == "FILLED" && ack.AvgPrice > 0 {
		return ack.AvgPrice, nil
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, errors.New("close order unconfirmed before deadline")
		case <-ticker.C:
			status, err := t.ex.QueryOrder(ctx, symbol, clientID)
			if err != nil {
				logger.Warnf("liquidation poll for %s: %v", symbol, err)
				continue
			}
			if status.Status == "FILLED" && status.AvgPrice > 0 {
				return status.AvgPrice, nil
			}
			if !status.Found || !status.Open() && status.Status != "FILLED" {
				return 0, fmt.Errorf("close order ended %s", status.Status)
			}
		}
	}
}

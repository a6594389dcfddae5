package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// countingStream records subscription attempts without ever delivering.
type countingStream struct {
	subs     atomic.Int64
	failures atomic.Int64
}

func (c *countingStream) SubscribeFills(ctx context.Context, handler func(exchange.Fill)) error {
	c.subs.Add(1)
	if c.failures.Load() > 0 {
		c.failures.Add(-1)
		return errors.New("dial failed")
	}
	return nil
}

func (c *countingStream) Name() string { return "counting" }

func (c *countingStream) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Ack, error) {
	return exchange.Ack{}, nil
}

func (c *countingStream) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	return nil
}

func (c *countingStream) QueryOrder(ctx context.Context, symbol, clientOrderID string) (exchange.OrderStatus, error) {
	return exchange.OrderStatus{}, nil
}

func (c *countingStream) GetBalance(ctx context.Context) (exchange.Balance, error) {
	return exchange.Balance{}, nil
}

func (c *countingStream) GetMarket(ctx context.Context, symbol string) (types.MarketSnapshot, error) {
	return types.MarketSnapshot{}, nil
}

func (c *countingStream) Ping(ctx context.Context) error { return nil }

func TestFillStreamSubscribesExactlyOnce(t *testing.T) {
	stream := &countingStream{}
	a := &App{ex: stream}

	done := make(chan struct{})
	go func() {
		a.runFillStream(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fill stream supervisor kept running after a successful subscription")
	}
	assert.Equal(t, int64(1), stream.subs.Load())
}

func TestFillStreamStopsRetryingOnCancel(t *testing.T) {
	stream := &countingStream{}
	stream.failures.Store(1000)
	a := &App{ex: stream}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.runFillStream(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return stream.subs.Load() >= 1 },
		2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("fill stream supervisor ignored cancellation")
	}
}

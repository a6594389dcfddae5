package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// Paper is an in-memory exchange used in paper mode, in recovery sanity
// checks and in tests. Market orders fill immediately at the posted price;
// fills are delivered through the same FillStream contract as the live
// gateway, so the rest of the pipeline cannot tell the difference.
type Paper struct {
	mu      sync.Mutex
	balance float64
	prices  map[string]types.MarketSnapshot
	orders  map[string]paperOrder // by client order ID
	subs    map[int64]func(Fill)
	subSeq  int64
	seq     int64
	// FailNext makes the next submission fail, for exercising retry and
	// reconciliation paths in tests.
	FailNext error
	// AcceptSilently makes the next submission fail after the venue has
	// recorded the order, simulating an ambiguous acknowledgment.
	AcceptSilently bool
}

type paperOrder struct {
	req        OrderRequest
	exchangeID string
	status     string
	filledQty  float64
	avgPrice   float64
}

func NewPaper(balance float64) *Paper {
	return &Paper{
		balance: balance,
		prices:  make(map[string]types.MarketSnapshot),
		orders:  make(map[string]paperOrder),
		subs:    make(map[int64]func(Fill)),
	}
}

func (p *Paper) Name() string { return "paper" }

// SetMarket posts the snapshot returned for symbol and the price used to
// fill market orders.
func (p *Paper) SetMarket(symbol string, snap types.MarketSnapshot) {
	p.mu.Lock()
	snap.Symbol = symbol
	snap.UpdatedAt = time.Now()
	p.prices[symbol] = snap
	p.mu.Unlock()
}

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, err
	}
	p.mu.Lock()
	if p.FailNext != nil {
		err := p.FailNext
		p.FailNext = nil
		accepted := p.AcceptSilently
		p.AcceptSilently = false
		if accepted {
			p.recordFillLocked(req)
		}
		p.mu.Unlock()
		return Ack{}, err
	}
	snap, ok := p.prices[req.Symbol]
	if !ok || snap.LastPrice <= 0 {
		p.mu.Unlock()
		return Ack{}, &types.ExecutionError{Op: "place", Transient: false,
			Err: fmt.Errorf("no market for %s", req.Symbol)}
	}
	ord := p.recordFillLocked(req)
	fill := p.fillFor(ord)
	handlers := make([]func(Fill), 0, len(p.subs))
	for _, h := range p.subs {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(fill)
	}
	return Ack{
		ExchangeID: ord.exchangeID,
		Status:     ord.status,
		FilledQty:  ord.filledQty,
		AvgPrice:   ord.avgPrice,
		Time:       time.Now(),
	}, nil
}

func (p *Paper) recordFillLocked(req OrderRequest) paperOrder {
	p.seq++
	snap := p.prices[req.Symbol]
	price := snap.LastPrice
	if req.Type == types.OrderTypeLimit && req.Price > 0 {
		price = req.Price
	}
	ord := paperOrder{
		req:        req,
		exchangeID: fmt.Sprintf("paper-%d", p.seq),
		status:     "FILLED",
		filledQty:  req.Quantity,
		avgPrice:   price,
	}
	p.orders[req.ClientOrderID] = ord
	return ord
}

func (p *Paper) fillFor(ord paperOrder) Fill {
	return Fill{
		Symbol:        ord.req.Symbol,
		ClientOrderID: ord.req.ClientOrderID,
		ExchangeID:    ord.exchangeID,
		Side:          ord.req.Side,
		Qty:           ord.filledQty,
		Price:         ord.avgPrice,
		CumQty:        ord.filledQty,
		Status:        ord.status,
		Time:          time.Now(),
	}
}

func (p *Paper) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ord, ok := p.orders[clientOrderID]
	if !ok {
		return ErrOrderUnknown
	}
	if ord.status == "FILLED" || ord.status == "CANCELED" {
		return ErrOrderNotOpen
	}
	ord.status = "CANCELED"
	p.orders[clientOrderID] = ord
	return nil
}

func (p *Paper) QueryOrder(ctx context.Context, symbol, clientOrderID string) (OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ord, ok := p.orders[clientOrderID]
	if !ok {
		return OrderStatus{}, nil
	}
	return OrderStatus{
		Found:      true,
		ExchangeID: ord.exchangeID,
		Status:     ord.status,
		FilledQty:  ord.filledQty,
		AvgPrice:   ord.avgPrice,
	}, nil
}

func (p *Paper) GetBalance(ctx context.Context) (Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Balance{Asset: "USDT", Total: p.balance, Available: p.balance, UpdatedAt: time.Now()}, nil
}

func (p *Paper) GetMarket(ctx context.Context, symbol string) (types.MarketSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.prices[strings.ToUpper(symbol)]
	if !ok {
		snap, ok = p.prices[symbol]
	}
	if !ok {
		return types.MarketSnapshot{}, fmt.Errorf("no market posted for %s", symbol)
	}
	return snap, nil
}

func (p *Paper) Ping(ctx context.Context) error { return ctx.Err() }

// SubscribeFills registers handler for the lifetime of ctx. Delivery stops
// once ctx is cancelled, so a caller that resubscribes never sees the same
// execution report twice.
func (p *Paper) SubscribeFills(ctx context.Context, handler func(Fill)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.subSeq++
	id := p.subSeq
	p.subs[id] = handler
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}()
	return nil
}

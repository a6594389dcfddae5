// Package binance implements the exchange gateway against Binance spot via
// the go-binance SDK.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/logger"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// Gateway adapts the Binance spot API to the exchange.Exchange contract.
type Gateway struct {
	client *binance.Client
	cfg    Config
}

type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	QuoteAsset string
	// QuantityStep is the lot-size increment quantities are rounded down
	// to before submission. Defaults to 0.00001.
	QuantityStep float64
	// DepthLevels bounds how much of the book feeds the slippage estimate.
	DepthLevels int
}

func (c Config) withDefaults() Config {
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
	if c.QuantityStep <= 0 {
		c.QuantityStep = 0.00001
	}
	if c.DepthLevels <= 0 {
		c.DepthLevels = 20
	}
	return c
}

func New(cfg Config) *Gateway {
	final := cfg.withDefaults()
	binance.UseTestnet = final.Testnet
	return &Gateway{
		client: binance.NewClient(final.APIKey, final.APISecret),
		cfg:    final,
	}
}

func (g *Gateway) Name() string { return "binance" }

func (g *Gateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Ack, error) {
	qty := formatQuantity(req.Quantity, g.cfg.QuantityStep)
	if qty == "0" {
		return exchange.Ack{}, &types.ExecutionError{Op: "place", Transient: false,
			Err: fmt.Errorf("quantity %v rounds to zero", req.Quantity)}
	}
	svc := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Quantity(qty).
		NewClientOrderID(req.ClientOrderID)
	switch req.Type {
	case types.OrderTypeLimit:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(formatPrice(req.Price))
	default:
		svc = svc.Type(binance.OrderTypeMarket)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return exchange.Ack{}, classify("place", err)
	}
	ack := exchange.Ack{
		ExchangeID: strconv.FormatInt(res.OrderID, 10),
		Status:     string(res.Status),
		FilledQty:  parseFloat(res.ExecutedQuantity),
		Time:       time.Now(),
	}
	if ack.FilledQty > 0 {
		quote := parseFloat(res.CummulativeQuoteQuantity)
		if quote > 0 {
			ack.AvgPrice = quote / ack.FilledQty
		}
	}
	return ack, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	_, err := g.client.NewCancelOrderService().
		Symbol(symbol).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		if apiCode(err) == -2011 {
			// Cancel rejected: the order already reached a terminal state.
			return exchange.ErrOrderNotOpen
		}
		return classify("cancel", err)
	}
	return nil
}

func (g *Gateway) QueryOrder(ctx context.Context, symbol, clientOrderID string) (exchange.OrderStatus, error) {
	res, err := g.client.NewGetOrderService().
		Symbol(symbol).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		if apiCode(err) == -2013 {
			// Order does not exist: the venue never saw the submission.
			return exchange.OrderStatus{}, nil
		}
		return exchange.OrderStatus{}, classify("query", err)
	}
	st := exchange.OrderStatus{
		Found:      true,
		ExchangeID: strconv.FormatInt(res.OrderID, 10),
		Status:     string(res.Status),
		FilledQty:  parseFloat(res.ExecutedQuantity),
	}
	if st.FilledQty > 0 {
		quote := parseFloat(res.CummulativeQuoteQuantity)
		if quote > 0 {
			st.AvgPrice = quote / st.FilledQty
		}
	}
	return st, nil
}

func (g *Gateway) GetBalance(ctx context.Context) (exchange.Balance, error) {
	acct, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, classify("balance", err)
	}
	out := exchange.Balance{Asset: g.cfg.QuoteAsset, UpdatedAt: time.Now()}
	for _, b := range acct.Balances {
		if b.Asset != g.cfg.QuoteAsset {
			continue
		}
		free := parseFloat(b.Free)
		locked := parseFloat(b.Locked)
		out.Available = free
		out.Total = free + locked
		break
	}
	return out, nil
}

// GetMarket assembles price, spread, depth and 24h figures from the book
// ticker, the depth endpoint and the rolling window stats.
func (g *Gateway) GetMarket(ctx context.Context, symbol string) (types.MarketSnapshot, error) {
	snap := types.MarketSnapshot{Symbol: symbol, UpdatedAt: time.Now()}

	books, err := g.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return snap, classify("book_ticker", err)
	}
	if len(books) == 0 {
		return snap, fmt.Errorf("binance: empty book ticker for %s", symbol)
	}
	bid := parseFloat(books[0].BidPrice)
	ask := parseFloat(books[0].AskPrice)
	snap.LastPrice = (bid + ask) / 2
	snap.Spread = ask - bid

	depth, err := g.client.NewDepthService().Symbol(symbol).Limit(g.cfg.DepthLevels).Do(ctx)
	if err != nil {
		return snap, classify("depth", err)
	}
	for _, lvl := range depth.Bids {
		snap.DepthBid += parseFloat(lvl.Price) * parseFloat(lvl.Quantity)
	}
	for _, lvl := range depth.Asks {
		snap.DepthAsk += parseFloat(lvl.Price) * parseFloat(lvl.Quantity)
	}

	stats, err := g.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return snap, classify("ticker_24h", err)
	}
	if len(stats) > 0 {
		snap.Volume24h = parseFloat(stats[0].QuoteVolume)
		high := parseFloat(stats[0].HighPrice)
		low := parseFloat(stats[0].LowPrice)
		if snap.LastPrice > 0 && high > low {
			snap.Volatility = (high - low) / snap.LastPrice
		}
	}
	return snap, nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.client.NewPingService().Do(ctx); err != nil {
		return &types.ConnectivityError{Op: "ping", Err: err}
	}
	return nil
}

// SubscribeFills starts the user-data stream and forwards execution reports
// for orders carrying our client order IDs. The listen key is refreshed on
// the venue's keepalive schedule; a dropped stream is redialed with backoff
// until ctx is cancelled.
func (g *Gateway) SubscribeFills(ctx context.Context, handler func(exchange.Fill)) error {
	listenKey, err := g.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return classify("user_stream", err)
	}

	go g.keepAlive(ctx, listenKey)
	go g.serveStream(ctx, listenKey, handler)
	return nil
}

func (g *Gateway) keepAlive(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(25 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				logger.Warnf("binance: user stream keepalive failed: %v", err)
			}
		}
	}
}

func (g *Gateway) serveStream(ctx context.Context, listenKey string, handler func(exchange.Fill)) {
	for {
		doneC, stopC, err := binance.WsUserDataServe(listenKey, func(event *binance.WsUserDataEvent) {
			if event == nil || event.Event != binance.UserDataEventTypeExecutionReport {
				return
			}
			u := event.OrderUpdate
			fill := exchange.Fill{
				Symbol:        u.Symbol,
				ClientOrderID: u.ClientOrderId,
				ExchangeID:    strconv.FormatInt(u.Id, 10),
				Side:          exchange.Side(u.Side),
				Qty:           parseFloat(u.LatestVolume),
				Price:         parseFloat(u.LatestPrice),
				CumQty:        parseFloat(u.FilledVolume),
				Status:        string(u.Status),
				Time:          time.UnixMilli(u.TransactionTime),
			}
			handler(fill)
		}, func(err error) {
			logger.Warnf("binance: user stream error: %v", err)
		})
		if err != nil {
			logger.Errorf("binance: user stream dial failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}
		select {
		case <-ctx.Done():
			close(stopC)
			return
		case <-doneC:
			logger.Warnf("binance: user stream closed, redialing")
		}
	}
}

func formatQuantity(q, step float64) string {
	d := decimal.NewFromFloat(q)
	if step > 0 {
		s := decimal.NewFromFloat(step)
		d = d.Div(s).Floor().Mul(s)
	}
	return d.String()
}

func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).String()
}

func parseFloat(s string) float64 {
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return val
}

// Package broker binds the live engine to an Alpaca trading account.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"macross/internal/errs"
	"macross/internal/id"
)

type OrderRequest struct {
	Symbol        string
	Qty           decimal.Decimal
	Side          alpaca.Side
	ClientOrderID string
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Status        string
}

// Account is the subset of the Alpaca account the engine reads.
type Account struct {
	Status         string
	BuyingPower    float64
	PortfolioValue float64
	LastEquity     float64
}

// AccountSnapshot is what one live session saw of the account and market.
// Each field is read from the broker at the guard that needs it.
type AccountSnapshot struct {
	LastPrice      float64 `json:"last_price,omitempty"`
	PositionQty    float64 `json:"position_qty"`
	BuyingPower    float64 `json:"buying_power,omitempty"`
	PortfolioValue float64 `json:"portfolio_value,omitempty"`
	InitialEquity  float64 `json:"initial_equity,omitempty"`
	MarketOpen     bool    `json:"market_open"`
	HasOpenOrder   bool    `json:"has_open_order"`
}

type tradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetClock() (*alpaca.Clock, error)
	GetPosition(symbol string) (*alpaca.Position, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	GetOrder(orderID string) (*alpaca.Order, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

type quotesAPI interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

type Options struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string
	// RequestsPerMinute caps REST calls across both APIs.
	RequestsPerMinute int
	Confirm           ConfirmPolicy
}

type Client struct {
	trading tradingAPI
	quotes  quotesAPI
	feed    marketdata.Feed
	limiter *rate.Limiter
	confirm ConfirmPolicy
}

func New(opts Options) *Client {
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.BaseURL,
	})
	quotes := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	})
	return newClient(trading, quotes, opts)
}

func newClient(trading tradingAPI, quotes quotesAPI, opts Options) *Client {
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	feed := marketdata.IEX
	if opts.Feed == "sip" {
		feed = marketdata.SIP
	}
	return &Client{
		trading: trading,
		quotes:  quotes,
		feed:    feed,
		limiter: rate.NewLimiter(limit, 1),
		confirm: opts.Confirm.withDefaults(),
	}
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func external(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", errs.ErrExternalService, op, err)
}

// Validate fetches the account to prove the keys work.
func (c *Client) Validate(ctx context.Context) (Account, error) {
	slog.Info("validating API keys")
	acct, err := c.Account(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("API key validation failed: %w", err)
	}
	slog.Info("keys valid", "account_status", acct.Status)
	return acct, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	if err := c.wait(ctx); err != nil {
		return Account{}, err
	}
	acct, err := c.trading.GetAccount()
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return Account{}, external("get account", err)
	}
	buyingPower, _ := acct.BuyingPower.Float64()
	portfolioValue, _ := acct.PortfolioValue.Float64()
	lastEquity, _ := acct.LastEquity.Float64()

	slog.Debug("account fetched", "status", acct.Status, "buying_power", buyingPower, "portfolio_value", portfolioValue, "last_equity", lastEquity)
	return Account{
		Status:         string(acct.Status),
		BuyingPower:    buyingPower,
		PortfolioValue: portfolioValue,
		LastEquity:     lastEquity,
	}, nil
}

func (c *Client) BuyingPower(ctx context.Context) (float64, error) {
	acct, err := c.Account(ctx)
	return acct.BuyingPower, err
}

func (c *Client) PortfolioValue(ctx context.Context) (float64, error) {
	acct, err := c.Account(ctx)
	return acct.PortfolioValue, err
}

// InitialEquity is the account equity at the previous session's close.
func (c *Client) InitialEquity(ctx context.Context) (float64, error) {
	acct, err := c.Account(ctx)
	return acct.LastEquity, err
}

func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	trade, err := c.quotes.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: c.feed})
	if err != nil {
		slog.Error("fetch latest trade failed", "symbol", symbol, "error", err)
		return 0, external("get latest trade", err)
	}
	return trade.Price, nil
}

// Position returns the held quantity, 0 when there is no position.
func (c *Client) Position(ctx context.Context, symbol string) (float64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	pos, err := c.trading.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		slog.Error("fetch position failed", "symbol", symbol, "error", err)
		return 0, external("get position", err)
	}
	qty, _ := pos.Qty.Float64()
	slog.Debug("position fetched", "symbol", symbol, "qty", qty)
	return qty, nil
}

func (c *Client) MarketOpen(ctx context.Context) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	clock, err := c.trading.GetClock()
	if err != nil {
		slog.Error("fetch clock failed", "error", err)
		return false, external("get clock", err)
	}
	return clock.IsOpen, nil
}

// HasOpenOrder reports whether any order for symbol is still working.
func (c *Client) HasOpenOrder(ctx context.Context, symbol string) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	orders, err := c.trading.GetOrders(alpaca.GetOrdersRequest{
		Status:  "open",
		Symbols: []string{symbol},
	})
	if err != nil {
		slog.Error("fetch open orders failed", "symbol", symbol, "error", err)
		return false, external("get orders", err)
	}
	slog.Debug("open orders fetched", "symbol", symbol, "count", len(orders))
	return len(orders) > 0, nil
}

// SubmitOrder places a market day order. A zero ClientOrderID gets a fresh one.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := c.wait(ctx); err != nil {
		return OrderRef{}, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = id.New()
	}
	qty := req.Qty
	slog.Info("submitting order", "side", req.Side, "symbol", req.Symbol, "qty", qty.String(), "client_order_id", req.ClientOrderID)

	order, err := c.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		slog.Error("place order failed", "side", req.Side, "symbol", req.Symbol, "qty", qty.String(), "error", err)
		return OrderRef{}, external("place order", err)
	}

	slog.Info("place order success", "order_id", order.ID, "side", req.Side, "symbol", req.Symbol, "qty", qty.String(), "status", order.Status)
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Status:        string(order.Status),
	}, nil
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

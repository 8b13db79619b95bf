package binance

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"option-taker/internal/core"
)

// Spot endpoint family (/api/v3). Same signing scheme, different host and
// response envelopes.

func (c *Client) SpotServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.doRequest(ctx, c.spotBaseURL, http.MethodGet, "/api/v3/time", nil, AuthNone)
	if err != nil {
		return time.Time{}, err
	}
	var resp serverTimeResponse
	if err := c.decode(body, &resp); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(resp.ServerTime), nil
}

func (c *Client) SpotDepth(ctx context.Context, symbol string, limit int) (core.OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doRequest(ctx, c.spotBaseURL, http.MethodGet, "/api/v3/depth", params, AuthNone)
	if err != nil {
		return core.OrderBook{}, err
	}
	var resp depthResponse
	if err := c.decode(body, &resp); err != nil {
		return core.OrderBook{}, err
	}
	return resp.toBook(symbol), nil
}

func (c *Client) SpotTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, c.spotBaseURL, http.MethodGet, "/api/v3/ticker/price", params, AuthNone)
	if err != nil {
		return decimal.Zero, err
	}
	var resp tickerPriceResponse
	if err := c.decode(body, &resp); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, errors.Join(core.ErrDecode, err)
	}
	return price, nil
}

// SpotBalances returns all non-zero spot account balances.
func (c *Client) SpotBalances(ctx context.Context) ([]core.Balance, error) {
	body, err := c.doRequest(ctx, c.spotBaseURL, http.MethodGet, "/api/v3/account", url.Values{}, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp spotAccountResponse
	if err := c.decode(body, &resp); err != nil {
		return nil, err
	}
	balances := make([]core.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free := mustDecimal(b.Free)
		locked := mustDecimal(b.Locked)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, core.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return balances, nil
}

func (c *Client) PlaceSpotOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	if req.Symbol == "" {
		return core.Order{}, errors.New("symbol required")
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = c.NewClientOrderID()
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Qty.String())
	if req.Type == core.Limit {
		params.Set("price", req.Price.String())
		if req.TimeInForce != "" {
			params.Set("timeInForce", string(req.TimeInForce))
		}
	}
	params.Set("newClientOrderId", req.ClientOrderID)
	body, err := c.doRequest(ctx, c.spotBaseURL, http.MethodPost, "/api/v3/order", params, AuthSigned)
	if err != nil {
		return core.Order{}, err
	}
	var resp spotOrderResponse
	if err := c.decode(body, &resp); err != nil {
		return core.Order{}, err
	}
	return resp.toOrder(), nil
}

func (c *Client) OpenSpotOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, c.spotBaseURL, http.MethodGet, "/api/v3/openOrders", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []spotOrderResponse
	if err := c.decode(body, &resp); err != nil {
		return nil, err
	}
	orders := make([]core.Order, 0, len(resp))
	for _, entry := range resp {
		orders = append(orders, entry.toOrder())
	}
	return orders, nil
}

func (c *Client) CancelSpotOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	_, err := c.doRequest(ctx, c.spotBaseURL, http.MethodDelete, "/api/v3/order", params, AuthSigned)
	return err
}

func mustDecimal(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return v
}

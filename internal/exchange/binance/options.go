package binance

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"option-taker/internal/core"
)

// Options endpoint family (/eapi/v1). This is the Client's primary surface:
// it satisfies exchange.Market with option contract symbols.

// Depth fetches a fresh order book snapshot. Public, unsigned.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (core.OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doRequest(ctx, c.optionsBaseURL, http.MethodGet, "/eapi/v1/depth", params, AuthNone)
	if err != nil {
		return core.OrderBook{}, err
	}
	var resp depthResponse
	if err := c.decode(body, &resp); err != nil {
		return core.OrderBook{}, err
	}
	return resp.toBook(symbol), nil
}

// PlaceOrder submits an order. A missing client order id is generated so the
// process can later recognize the order as its own.
func (c *Client) PlaceOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
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
	}
	if req.TimeInForce != "" {
		params.Set("timeInForce", string(req.TimeInForce))
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if req.PostOnly {
		params.Set("postOnly", "true")
	}
	if req.IsMMP {
		params.Set("isMmp", "true")
	}
	if req.RespType != "" {
		params.Set("newOrderRespType", req.RespType)
	}
	params.Set("clientOrderId", req.ClientOrderID)

	body, err := c.doRequest(ctx, c.optionsBaseURL, http.MethodPost, "/eapi/v1/order", params, AuthSigned)
	if err != nil {
		return core.Order{}, err
	}
	// The options API reports some rejections inside a 2xx body.
	if apiErr, ok := errorEnvelope(body); ok {
		return core.Order{}, classifyAPIError(apiErr)
	}
	var resp optionOrderResponse
	if err := c.decode(body, &resp); err != nil {
		return core.Order{}, err
	}
	order := resp.toOrder()
	if order.Status == "" {
		order.Status = core.OrderAccepted
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = req.ClientOrderID
	}
	c.log.WithFields(map[string]interface{}{
		"symbol":   order.Symbol,
		"order_id": order.OrderID,
		"side":     order.Side,
		"price":    order.Price.String(),
		"qty":      order.Qty.String(),
	}).Info("order placed")
	return order, nil
}

// OpenOrders lists this account's resting option orders for a symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, c.optionsBaseURL, http.MethodGet, "/eapi/v1/openOrders", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []optionOrderResponse
	if err := c.decode(body, &resp); err != nil {
		return nil, err
	}
	orders := make([]core.Order, 0, len(resp))
	for _, entry := range resp {
		orders = append(orders, entry.toOrder())
	}
	return orders, nil
}

// OrderHistory lists completed orders. fromOrderID narrows the scan to the
// given id and later orders; zero returns the most recent page.
func (c *Client) OrderHistory(ctx context.Context, symbol string, fromOrderID int64) ([]core.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if fromOrderID > 0 {
		params.Set("orderId", strconv.FormatInt(fromOrderID, 10))
	}
	body, err := c.doRequest(ctx, c.optionsBaseURL, http.MethodGet, "/eapi/v1/historyOrders", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []optionOrderResponse
	if err := c.decode(body, &resp); err != nil {
		return nil, err
	}
	orders := make([]core.Order, 0, len(resp))
	for _, entry := range resp {
		orders = append(orders, entry.toOrder())
	}
	return orders, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	_, err := c.doRequest(ctx, c.optionsBaseURL, http.MethodDelete, "/eapi/v1/order", params, AuthSigned)
	return err
}

// Contracts lists the tradable option symbols, optionally filtered to one
// underlying (e.g. "ETHUSDT").
func (c *Client) Contracts(ctx context.Context, underlying string) ([]OptionContract, error) {
	body, err := c.doRequest(ctx, c.optionsBaseURL, http.MethodGet, "/eapi/v1/exchangeInfo", url.Values{}, AuthNone)
	if err != nil {
		return nil, err
	}
	var resp optionExchangeInfoResponse
	if err := c.decode(body, &resp); err != nil {
		return nil, err
	}
	contracts := make([]OptionContract, 0, len(resp.OptionSymbols))
	for _, entry := range resp.OptionSymbols {
		if underlying != "" && entry.Underlying != underlying {
			continue
		}
		contracts = append(contracts, parseOptionContract(entry))
	}
	return contracts, nil
}

// ContractRules resolves the trading rules for one option symbol.
func (c *Client) ContractRules(ctx context.Context, symbol string) (core.Rules, error) {
	contracts, err := c.Contracts(ctx, "")
	if err != nil {
		return core.Rules{}, err
	}
	for _, contract := range contracts {
		if contract.Symbol == symbol {
			return contract.Rules, nil
		}
	}
	return core.Rules{}, errors.New("symbol not listed: " + symbol)
}

// OptionBalances returns the options margin account assets.
func (c *Client) OptionBalances(ctx context.Context) ([]core.Balance, error) {
	body, err := c.doRequest(ctx, c.optionsBaseURL, http.MethodGet, "/eapi/v1/account", url.Values{}, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp optionAccountResponse
	if err := c.decode(body, &resp); err != nil {
		return nil, err
	}
	balances := make([]core.Balance, 0, len(resp.Asset))
	for _, asset := range resp.Asset {
		balances = append(balances, core.Balance{
			Asset:  asset.Asset,
			Free:   mustDecimal(asset.Available),
			Locked: mustDecimal(asset.Locked),
		})
	}
	return balances, nil
}

package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"option-taker/internal/core"
)

// Futures endpoint family (/fapi).

func (c *Client) FuturesServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.doRequest(ctx, c.futuresBaseURL, http.MethodGet, "/fapi/v1/time", nil, AuthNone)
	if err != nil {
		return time.Time{}, err
	}
	var resp serverTimeResponse
	if err := c.decode(body, &resp); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(resp.ServerTime), nil
}

func (c *Client) FuturesDepth(ctx context.Context, symbol string, limit int) (core.OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doRequest(ctx, c.futuresBaseURL, http.MethodGet, "/fapi/v1/depth", params, AuthNone)
	if err != nil {
		return core.OrderBook{}, err
	}
	var resp depthResponse
	if err := c.decode(body, &resp); err != nil {
		return core.OrderBook{}, err
	}
	return resp.toBook(symbol), nil
}

// FuturesBalances returns the USD-M futures wallet balances.
func (c *Client) FuturesBalances(ctx context.Context) ([]core.Balance, error) {
	body, err := c.doRequest(ctx, c.futuresBaseURL, http.MethodGet, "/fapi/v2/balance", url.Values{}, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []futuresBalanceResponse
	if err := c.decode(body, &resp); err != nil {
		return nil, err
	}
	balances := make([]core.Balance, 0, len(resp))
	for _, b := range resp {
		total := mustDecimal(b.Balance)
		available := mustDecimal(b.AvailableBalance)
		if total.IsZero() {
			continue
		}
		balances = append(balances, core.Balance{
			Asset:  b.Asset,
			Free:   available,
			Locked: total.Sub(available),
		})
	}
	return balances, nil
}

// FuturesPositions returns open positions; symbol narrows to one contract.
func (c *Client) FuturesPositions(ctx context.Context, symbol string) ([]FuturesPosition, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doRequest(ctx, c.futuresBaseURL, http.MethodGet, "/fapi/v2/positionRisk", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []futuresPositionResponse
	if err := c.decode(body, &resp); err != nil {
		return nil, err
	}
	positions := make([]FuturesPosition, 0, len(resp))
	for _, p := range resp {
		amt := mustDecimal(p.PositionAmt)
		if amt.IsZero() {
			continue
		}
		positions = append(positions, FuturesPosition{
			Symbol:           p.Symbol,
			PositionAmt:      amt,
			EntryPrice:       mustDecimal(p.EntryPrice),
			UnrealizedProfit: mustDecimal(p.UnrealizedProfit),
			PositionSide:     p.PositionSide,
		})
	}
	return positions, nil
}

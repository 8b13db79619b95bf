package binance

import (
	"time"

	"github.com/shopspring/decimal"

	"option-taker/internal/core"
)

type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	UpdateID     int64       `json:"u"`
	Time         int64       `json:"T"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

func (r depthResponse) toBook(symbol string) core.OrderBook {
	book := core.OrderBook{
		Symbol:   symbol,
		Bids:     parseLevels(r.Bids),
		Asks:     parseLevels(r.Asks),
		UpdateID: r.UpdateID,
	}
	if book.UpdateID == 0 {
		book.UpdateID = r.LastUpdateID
	}
	if r.Time > 0 {
		book.UpdatedAt = time.UnixMilli(r.Time)
	}
	return book
}

func parseLevels(raw [][2]string) []core.PriceLevel {
	levels := make([]core.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(entry[1])
		if err != nil {
			continue
		}
		levels = append(levels, core.PriceLevel{Price: price, Qty: qty})
	}
	return levels
}

// optionOrderResponse covers /eapi/v1/order placement, openOrders and
// historyOrders entries; history additionally carries a rejection reason.
type optionOrderResponse struct {
	OrderID       int64  `json:"orderId"`
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	ExecutedQty   string `json:"executedQty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"timeInForce"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	ClientOrderID string `json:"clientOrderId"`
	CreateTime    int64  `json:"createTime"`
	UpdateTime    int64  `json:"updateTime"`
}

func (r optionOrderResponse) toOrder() core.Order {
	price, _ := decimal.NewFromString(r.Price)
	qty, _ := decimal.NewFromString(r.Quantity)
	executed, _ := decimal.NewFromString(r.ExecutedQty)
	order := core.Order{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          core.Side(r.Side),
		Type:          core.OrderType(r.Type),
		Price:         price,
		Qty:           qty.Abs(),
		ExecutedQty:   executed.Abs(),
		Status:        core.ParseOrderStatus(r.Status),
		TimeInForce:   core.TimeInForce(r.TimeInForce),
		Reason:        r.Reason,
	}
	if r.CreateTime > 0 {
		order.CreatedAt = time.UnixMilli(r.CreateTime)
	}
	if r.UpdateTime > 0 {
		order.UpdatedAt = time.UnixMilli(r.UpdateTime)
	}
	return order
}

type optionExchangeInfoResponse struct {
	OptionSymbols []optionSymbolResponse `json:"optionSymbols"`
}

type optionSymbolResponse struct {
	Symbol      string `json:"symbol"`
	Underlying  string `json:"underlying"`
	StrikePrice string `json:"strikePrice"`
	Side        string `json:"side"`
	Unit        int64  `json:"unit"`
	MinQty      string `json:"minQty"`
	ExpiryDate  int64  `json:"expiryDate"`
	Filters     []struct {
		FilterType string `json:"filterType"`
		MinQty     string `json:"minQty"`
		StepSize   string `json:"stepSize"`
		TickSize   string `json:"tickSize"`
	} `json:"filters"`
}

// OptionContract describes one listed option and the trading rules derived
// from its filters.
type OptionContract struct {
	Symbol      string
	Underlying  string
	StrikePrice decimal.Decimal
	Side        string
	Expiry      time.Time
	Rules       core.Rules
}

func parseOptionContract(src optionSymbolResponse) OptionContract {
	contract := OptionContract{
		Symbol:     src.Symbol,
		Underlying: src.Underlying,
		Side:       src.Side,
	}
	if v, err := decimal.NewFromString(src.StrikePrice); err == nil {
		contract.StrikePrice = v
	}
	if v, err := decimal.NewFromString(src.MinQty); err == nil {
		contract.Rules.MinQty = v
	}
	if src.ExpiryDate > 0 {
		contract.Expiry = time.UnixMilli(src.ExpiryDate)
	}
	for _, f := range src.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if f.MinQty != "" {
				if v, err := decimal.NewFromString(f.MinQty); err == nil {
					contract.Rules.MinQty = v
				}
			}
			if f.StepSize != "" {
				if v, err := decimal.NewFromString(f.StepSize); err == nil {
					contract.Rules.QtyStep = v
				}
			}
		case "PRICE_FILTER":
			if f.TickSize != "" {
				if v, err := decimal.NewFromString(f.TickSize); err == nil {
					contract.Rules.PriceTick = v
				}
			}
		}
	}
	return contract
}

type optionAccountResponse struct {
	Asset []struct {
		Asset     string `json:"asset"`
		Marginbal string `json:"marginBalance"`
		Equity    string `json:"equity"`
		Available string `json:"available"`
		Locked    string `json:"locked"`
	} `json:"asset"`
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type spotAccountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type spotOrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	TimeInForce   string `json:"timeInForce"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Time          int64  `json:"time"`
	TransactTime  int64  `json:"transactTime"`
	UpdateTime    int64  `json:"updateTime"`
}

func (r spotOrderResponse) toOrder() core.Order {
	price, _ := decimal.NewFromString(r.Price)
	qty, _ := decimal.NewFromString(r.OrigQty)
	executed, _ := decimal.NewFromString(r.ExecutedQty)
	order := core.Order{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          core.Side(r.Side),
		Type:          core.OrderType(r.Type),
		Price:         price,
		Qty:           qty,
		ExecutedQty:   executed,
		Status:        core.ParseOrderStatus(r.Status),
		TimeInForce:   core.TimeInForce(r.TimeInForce),
	}
	created := r.Time
	if created == 0 {
		created = r.TransactTime
	}
	if created > 0 {
		order.CreatedAt = time.UnixMilli(created)
	}
	if r.UpdateTime > 0 {
		order.UpdatedAt = time.UnixMilli(r.UpdateTime)
	}
	return order
}

type futuresBalanceResponse struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

type futuresPositionResponse struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	UnrealizedProfit string `json:"unRealizedProfit"`
	PositionSide     string `json:"positionSide"`
}

// FuturesPosition is one open derivatives position.
type FuturesPosition struct {
	Symbol           string
	PositionAmt      decimal.Decimal
	EntryPrice       decimal.Decimal
	UnrealizedProfit decimal.Decimal
	PositionSide     string
}

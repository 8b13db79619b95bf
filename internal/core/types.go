package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

type OrderStatus string

type TimeInForce string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// Order statuses as reported by the exchange. The options endpoints report
// ACCEPTED where spot reports NEW, and some envelopes spell CANCELLED with a
// double L; ParseOrderStatus folds the variants into the canonical set.
const (
	OrderAccepted        OrderStatus = "ACCEPTED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

func ParseOrderStatus(raw string) OrderStatus {
	switch raw {
	case "NEW", "ACCEPTED":
		return OrderAccepted
	case "CANCELLED", "CANCELED":
		return OrderCanceled
	default:
		return OrderStatus(raw)
	}
}

// IsTerminal reports whether the exchange will never mutate the order again.
// An unknown status is not terminal: the caller must keep polling rather
// than assume an outcome.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

func (s OrderStatus) IsOpen() bool {
	return s == OrderAccepted || s == OrderPartiallyFilled
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderRequest carries everything needed to place an order. Optional fields
// left at their zero value are excluded from the signed query.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Qty           decimal.Decimal
	Price         decimal.Decimal
	TimeInForce   TimeInForce
	ReduceOnly    bool
	PostOnly      bool
	IsMMP         bool
	RespType      string
	ClientOrderID string
}

// Order is the exchange's view of an accepted order. The client never
// mutates Status locally; it only re-queries it.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         decimal.Decimal
	Qty           decimal.Decimal
	ExecutedQty   decimal.Decimal
	Status        OrderStatus
	TimeInForce   TimeInForce
	Reason        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PriceLevel is one resting level of an order book side.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// OrderBook is a point-in-time depth snapshot, best-first on both sides.
// Immutable once fetched; callers re-fetch rather than patch it.
type OrderBook struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	UpdateID  int64
	UpdatedAt time.Time
}

func (b OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

func (b OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Spread returns best ask minus best bid. ok is false when either side is
// empty.
func (b OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

type Rules struct {
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
	PriceTick   decimal.Decimal
	QtyStep     decimal.Decimal
}

type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

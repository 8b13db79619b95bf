package exchange

import (
	"context"

	"option-taker/internal/core"
)

// Market is the surface the execution loop needs from an endpoint family.
type Market interface {
	Depth(ctx context.Context, symbol string, limit int) (core.OrderBook, error)
	PlaceOrder(ctx context.Context, req core.OrderRequest) (core.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]core.Order, error)
	OrderHistory(ctx context.Context, symbol string, fromOrderID int64) ([]core.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
}

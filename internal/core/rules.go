package core

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrBelowMinQty      = errors.New("qty below min")
	ErrBelowMinNotional = errors.New("notional below min")
)

// ConformOrder snaps a request's price and quantity onto the contract's tick
// and step grids and rejects orders the exchange would bounce anyway. Price
// rounds toward the passive side (down) so the snapped order is never more
// aggressive than the caller asked for.
func ConformOrder(req OrderRequest, rules Rules) (OrderRequest, error) {
	if req.Qty.Cmp(decimal.Zero) <= 0 {
		return req, ErrInvalidOrder
	}
	if rules.QtyStep.Cmp(decimal.Zero) > 0 {
		req.Qty = RoundDown(req.Qty, rules.QtyStep)
	}
	if req.Qty.Cmp(decimal.Zero) <= 0 {
		return req, ErrInvalidOrder
	}
	if rules.MinQty.Cmp(decimal.Zero) > 0 && req.Qty.Cmp(rules.MinQty) < 0 {
		return req, ErrBelowMinQty
	}
	if req.Type == Market {
		return req, nil
	}
	if req.Price.Cmp(decimal.Zero) <= 0 {
		return req, ErrInvalidOrder
	}
	if rules.PriceTick.Cmp(decimal.Zero) > 0 {
		req.Price = RoundDown(req.Price, rules.PriceTick)
	}
	if req.Price.Cmp(decimal.Zero) <= 0 {
		return req, ErrInvalidOrder
	}
	if rules.MinNotional.Cmp(decimal.Zero) > 0 {
		notional := req.Price.Mul(req.Qty)
		if notional.Cmp(rules.MinNotional) < 0 {
			return req, ErrBelowMinNotional
		}
	}
	return req, nil
}

func RoundDown(value, step decimal.Decimal) decimal.Decimal {
	if step.Cmp(decimal.Zero) <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

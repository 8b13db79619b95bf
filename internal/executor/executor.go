package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"option-taker/internal/alert"
	"option-taker/internal/core"
	"option-taker/internal/exchange"
	"option-taker/internal/safety"
	"option-taker/internal/store"
)

var (
	// ErrTargetUnreached is returned when the loop exhausted its iteration
	// bound before accumulating the target quantity.
	ErrTargetUnreached = errors.New("target quantity not reached")
	// ErrStatusUnknown is returned when an order's terminal status could not
	// be established within the poll bound. The order may still be live; the
	// last known id is always reported so an operator can reconcile.
	ErrStatusUnknown = errors.New("order status unknown")
)

const depthFetchRetries = 3

// Executor sells (or buys) a target quantity of one symbol by repeatedly
// taking visible top-of-book liquidity, never keeping more than one order
// open at a time. All suspension points are explicit waits; there is no
// concurrency inside a run.
type Executor struct {
	Market  exchange.Market
	Journal *store.Journal
	Breaker *safety.Breaker
	Alerts  alert.Alerter
	Log     *logrus.Entry

	Symbol      string
	Side        core.Side
	TargetQty   decimal.Decimal
	PriceOffset decimal.Decimal
	TimeInForce core.TimeInForce
	Rules       core.Rules

	DepthLimit      int
	PollInterval    time.Duration
	EmptyBookDelay  time.Duration
	MaxIterations   int
	MaxPollAttempts int
}

// Result summarizes a run. LastOrderID and LastStatus are populated even on
// failure so the outcome of the final outstanding order is never lost.
type Result struct {
	FilledQty    decimal.Decimal
	OrdersPlaced int
	OrdersFilled int
	Iterations   int
	LastOrderID  int64
	LastStatus   core.OrderStatus
}

func (e *Executor) Run(ctx context.Context) (Result, error) {
	res := Result{FilledQty: decimal.Zero}
	if err := e.validate(); err != nil {
		return res, err
	}
	log := e.Log.WithFields(logrus.Fields{
		"symbol": e.Symbol,
		"side":   e.Side,
		"target": e.TargetQty.String(),
	})
	log.Info("run started")
	e.persist(&res, "")

	placeDelay := newPlaceBackoff()
	for res.Iterations = 0; res.Iterations < e.MaxIterations; res.Iterations++ {
		if res.FilledQty.Cmp(e.TargetQty) >= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		remaining := e.TargetQty.Sub(res.FilledQty)

		book, err := e.fetchBook(ctx)
		if err != nil {
			return res, e.abort(&res, "depth_fetch_failed", err)
		}
		price, qty, ok := quote(e.Side, book, e.PriceOffset, remaining)
		if !ok {
			// One-sided or empty book: never place an order against it.
			log.WithField("update_id", book.UpdateID).Warn("book lacks two-sided depth, backing off")
			if err := sleep(ctx, e.EmptyBookDelay); err != nil {
				return res, err
			}
			continue
		}

		req := core.OrderRequest{
			Symbol:      e.Symbol,
			Side:        e.Side,
			Type:        core.Limit,
			Qty:         qty,
			Price:       price,
			TimeInForce: e.TimeInForce,
		}
		req, err = core.ConformOrder(req, e.Rules)
		if err != nil {
			// The remainder is too small for the contract's rules; no order
			// can ever fill it.
			return res, e.abort(&res, "remainder_unfillable", fmt.Errorf("%w: remaining %s: %v", ErrTargetUnreached, remaining.String(), err))
		}

		order, err := e.Market.PlaceOrder(ctx, req)
		if err != nil {
			if !core.Retryable(err) {
				return res, e.abort(&res, "order_placement_failed", err)
			}
			if trip := e.Breaker.RecordPlaceFailure(err); trip != nil {
				return res, e.abort(&res, "place_circuit_open", trip)
			}
			log.WithError(err).Warn("order placement failed, backing off")
			if err := sleep(ctx, placeDelay.NextBackOff()); err != nil {
				return res, err
			}
			continue
		}
		e.Breaker.ResetPlace()
		placeDelay.Reset()
		res.OrdersPlaced++
		res.LastOrderID = order.OrderID
		res.LastStatus = order.Status
		e.persist(&res, "")

		final, err := e.awaitTerminal(ctx, order.OrderID)
		if err != nil {
			if final.OrderID != 0 {
				res.LastStatus = final.Status
			}
			return res, e.abort(&res, "order_poll_failed", err)
		}
		res.LastStatus = final.Status
		switch final.Status {
		case core.OrderFilled:
			credit := final.ExecutedQty
			if credit.Cmp(decimal.Zero) <= 0 {
				credit = order.Qty
			}
			res.FilledQty = res.FilledQty.Add(credit)
			res.OrdersFilled++
			log.WithFields(logrus.Fields{
				"order_id": final.OrderID,
				"qty":      credit.String(),
				"filled":   res.FilledQty.String(),
			}).Info("order filled")
		case core.OrderCanceled, core.OrderRejected, core.OrderExpired:
			// No credit; the unfilled remainder stays in the target.
			log.WithFields(logrus.Fields{
				"order_id": final.OrderID,
				"status":   final.Status,
				"reason":   final.Reason,
			}).Warn("order closed without fill")
			e.alertImportant("order_closed_without_fill", map[string]string{
				"order_id": fmt.Sprintf("%d", final.OrderID),
				"status":   string(final.Status),
				"reason":   final.Reason,
			})
		}
		e.persist(&res, "")
	}

	if res.FilledQty.Cmp(e.TargetQty) >= 0 {
		log.WithFields(logrus.Fields{
			"filled": res.FilledQty.String(),
			"orders": res.OrdersFilled,
		}).Info("target filled")
		e.persist(&res, "")
		return res, nil
	}
	return res, e.abort(&res, "iteration_bound_reached", fmt.Errorf("%w: filled %s of %s in %d iterations",
		ErrTargetUnreached, res.FilledQty.String(), e.TargetQty.String(), res.Iterations))
}

func (e *Executor) validate() error {
	if e.Market == nil {
		return errors.New("market is required")
	}
	if e.Log == nil {
		e.Log = logrus.NewEntry(logrus.New())
	}
	if e.Symbol == "" {
		return errors.New("symbol is required")
	}
	if e.Side != core.Buy && e.Side != core.Sell {
		return errors.New("side must be BUY or SELL")
	}
	if e.TargetQty.Cmp(decimal.Zero) <= 0 {
		return errors.New("target qty must be > 0")
	}
	if e.PriceOffset.Cmp(decimal.Zero) < 0 {
		return errors.New("price offset must be >= 0")
	}
	if e.TimeInForce == "" {
		e.TimeInForce = core.GTC
	}
	if e.DepthLimit == 0 {
		e.DepthLimit = 100
	}
	if e.PollInterval <= 0 {
		e.PollInterval = 3 * time.Second
	}
	if e.EmptyBookDelay <= 0 {
		e.EmptyBookDelay = 5 * time.Second
	}
	if e.MaxIterations <= 0 {
		e.MaxIterations = 50
	}
	if e.MaxPollAttempts <= 0 {
		e.MaxPollAttempts = 40
	}
	return nil
}

// fetchBook gets a fresh snapshot, retrying transient failures a bounded
// number of times. The book is never cached: staleness misprices orders.
func (e *Executor) fetchBook(ctx context.Context) (core.OrderBook, error) {
	var book core.OrderBook
	decodeFailures := 0
	operation := func() error {
		var err error
		book, err = e.Market.Depth(ctx, e.Symbol, e.DepthLimit)
		if err == nil {
			return nil
		}
		if !core.Retryable(err) {
			return backoff.Permanent(err)
		}
		if errors.Is(err, core.ErrDecode) {
			// A malformed body gets one retry. A venue that keeps sending
			// garbage is surfaced, not waited out.
			decodeFailures++
			if decodeFailures > 1 {
				return backoff.Permanent(err)
			}
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), depthFetchRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return core.OrderBook{}, err
	}
	return book, nil
}

// quote computes the order price and size against a fresh book.
//
// The price undercuts the same-side best by offset (ask-offset for a sell,
// bid+offset for a buy). If that would cross the opposite side's best, the
// quote snaps to the same-side best instead, so the order is always at least
// as competitive as top-of-book and never worse. Size is capped by the
// opposing top level so no unfillable excess is left resting.
func quote(side core.Side, book core.OrderBook, offset, remaining decimal.Decimal) (price, qty decimal.Decimal, ok bool) {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, decimal.Zero, false
	}
	if side == core.Sell {
		price = ask.Price.Sub(offset)
		if price.Cmp(bid.Price) < 0 {
			price = ask.Price
		}
		qty = decimal.Min(bid.Qty, remaining)
	} else {
		price = bid.Price.Add(offset)
		if price.Cmp(ask.Price) > 0 {
			price = bid.Price
		}
		qty = decimal.Min(ask.Qty, remaining)
	}
	if qty.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, decimal.Zero, false
	}
	return price, qty, true
}

// awaitTerminal polls until the order reaches a terminal status, checking
// open orders first and falling back to history. An id missing from both is
// a transient condition: it is re-polled, never assumed filled or failed.
func (e *Executor) awaitTerminal(ctx context.Context, orderID int64) (core.Order, error) {
	log := e.Log.WithField("order_id", orderID)
	var lastKnown core.Order
	decodeFailures := 0
	for attempt := 0; attempt < e.MaxPollAttempts; attempt++ {
		if err := sleep(ctx, e.PollInterval); err != nil {
			return lastKnown, e.cancelOutstanding(orderID, err)
		}
		order, found, err := e.pollStatus(ctx, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return lastKnown, e.cancelOutstanding(orderID, ctx.Err())
			}
			if !core.Retryable(err) {
				return lastKnown, err
			}
			if errors.Is(err, core.ErrDecode) {
				// One retry for a malformed body; after that the decode
				// failure itself is the answer, not an unknown status.
				decodeFailures++
				if decodeFailures > 1 {
					return lastKnown, err
				}
			}
			if trip := e.Breaker.RecordPollFailure(err); trip != nil {
				return lastKnown, trip
			}
			log.WithError(err).Warn("status poll failed, retrying")
			continue
		}
		e.Breaker.ResetPoll()
		decodeFailures = 0
		if !found {
			log.Warn("order missing from open and history queries, retrying")
			continue
		}
		lastKnown = order
		if order.Status.IsTerminal() {
			return order, nil
		}
		if order.Status == core.OrderPartiallyFilled {
			// Observed, not credited: only the terminal FILLED state credits
			// quantity, so nothing is double-counted.
			log.WithField("executed_qty", order.ExecutedQty.String()).Info("partial fill observed")
		}
	}
	return lastKnown, fmt.Errorf("%w: order %d after %d polls", ErrStatusUnknown, orderID, e.MaxPollAttempts)
}

func (e *Executor) pollStatus(ctx context.Context, orderID int64) (core.Order, bool, error) {
	open, err := e.Market.OpenOrders(ctx, e.Symbol)
	if err != nil {
		return core.Order{}, false, err
	}
	for _, order := range open {
		if order.OrderID == orderID {
			return order, true, nil
		}
	}
	history, err := e.Market.OrderHistory(ctx, e.Symbol, orderID)
	if err != nil {
		return core.Order{}, false, err
	}
	for _, order := range history {
		if order.OrderID == orderID {
			return order, true, nil
		}
	}
	return core.Order{}, false, nil
}

// cancelOutstanding is the shutdown path: the run is being cancelled while
// an order may still be live, so try to pull it before returning.
func (e *Executor) cancelOutstanding(orderID int64, cause error) error {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fields := map[string]string{"order_id": fmt.Sprintf("%d", orderID)}
	if err := e.Market.CancelOrder(cancelCtx, e.Symbol, orderID); err != nil {
		e.Log.WithError(err).WithField("order_id", orderID).Error("cancel on shutdown failed, order may still be live")
		fields["cancel"] = "failed: " + err.Error()
	} else {
		e.Log.WithField("order_id", orderID).Info("outstanding order cancelled on shutdown")
		fields["cancel"] = "ok"
	}
	e.alertImportant("shutdown_with_outstanding_order", fields)
	return cause
}

// abort is the single exit path for unrecoverable failures. It always states
// the last known order id and status: silent loss of information about an
// outstanding order is the one unacceptable failure mode.
func (e *Executor) abort(res *Result, reason string, err error) error {
	e.Log.WithError(err).WithFields(logrus.Fields{
		"reason":        reason,
		"last_order_id": res.LastOrderID,
		"last_status":   res.LastStatus,
		"filled":        res.FilledQty.String(),
		"target":        e.TargetQty.String(),
	}).Error("run aborted")
	e.alertImportant("run_aborted", map[string]string{
		"reason":        reason,
		"detail":        err.Error(),
		"last_order_id": fmt.Sprintf("%d", res.LastOrderID),
		"last_status":   string(res.LastStatus),
		"filled":        res.FilledQty.String(),
		"target":        e.TargetQty.String(),
	})
	e.persist(res, err.Error())
	return err
}

func (e *Executor) persist(res *Result, lastErr string) {
	if e.Journal == nil {
		return
	}
	state := store.RunState{
		Symbol:      e.Symbol,
		Side:        e.Side,
		TargetQty:   e.TargetQty,
		FilledQty:   res.FilledQty,
		LastOrderID: res.LastOrderID,
		LastStatus:  res.LastStatus,
		Iterations:  res.Iterations,
		LastError:   lastErr,
	}
	if err := e.Journal.Save(state); err != nil {
		e.Log.WithError(err).Warn("run journal write failed")
	}
}

func (e *Executor) alertImportant(event string, fields map[string]string) {
	if e.Alerts == nil {
		return
	}
	e.Alerts.Important(event, fields)
}

func newPlaceBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

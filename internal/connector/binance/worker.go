package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-connector/internal/connector"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/rxtech-lab/argo-connector/pkg/eventchan"
	"go.uber.org/zap"
)

// Binance error codes the connector reacts to.
const (
	apiCodeTooManyRequests = -1003
	apiCodeUnknownStatus   = -1007
	apiCodeNoSuchOrder     = -2013
)

type requestKind int

const (
	requestSubmit requestKind = iota
	requestCancel
	requestPoll
)

type request struct {
	kind   requestKind
	order  types.Order
	sender *connector.EventSender
}

// worker serves the requests of the orders hashed to it, one at a time.
type worker struct {
	connector *BinanceConnector
	inbox     *eventchan.Receiver[request]
}

func (w *worker) run() {
	for req := range w.inbox.All(context.Background()) {
		switch req.kind {
		case requestSubmit:
			w.connector.submit(req)
		case requestCancel:
			w.connector.cancel(req)
		case requestPoll:
			w.connector.poll(req)
		}
	}

	w.inbox.Close()
}

// venueError returns the error the venue answered with, if any.
func venueError(err error) (*common.APIError, bool) {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}

	return apiErr, true
}

// isTransient reports whether the request may have failed before the venue acted on it.
// A non JSON error body (gateway errors) decodes to code 0.
func isTransient(err error) bool {
	apiErr, ok := venueError(err)
	if !ok {
		return true
	}

	switch apiErr.Code {
	case 0, apiCodeTooManyRequests, apiCodeUnknownStatus:
		return true
	default:
		return false
	}
}

func describe(apiErr *common.APIError) string {
	return fmt.Sprintf("binance error %d: %s", apiErr.Code, apiErr.Message)
}

// call runs op with rate limiting, retrying transient failures with exponential backoff.
func (b *BinanceConnector) call(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := b.callCounted(ctx, b.config.MaxRetries, op)

	return err
}

// callCounted is call with an explicit retry budget. It also returns the number of attempts made.
func (b *BinanceConnector) callCounted(ctx context.Context, retries int, op func(ctx context.Context) error) (int, error) {
	attempts := 0

	operation := func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		attempts++

		err := op(ctx)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(0, retries))), ctx), //nolint:gosec
		func(err error, wait time.Duration) {
			b.Logger().Warn("Binance request failed, retrying",
				zap.String("venue", b.Venue()),
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	)

	return attempts, err
}

func (b *BinanceConnector) submit(req request) {
	order := req.order
	ctx := b.Context()

	var response *binance.CreateOrderResponse

	attempts, err := b.callCounted(ctx, b.config.MaxRetries, func(ctx context.Context) error {
		service := b.client.NewCreateOrderService().
			Symbol(order.Symbol).
			Side(mapSide(order.Side)).
			Type(mapOrderType(order)).
			Quantity(order.Quantity.String()).
			NewClientOrderID(order.ID)

		if order.Type == types.OrderTypeLimit {
			service = service.Price(order.Price.String())
			if order.TimeInForce != types.TimeInForceGTX {
				service = service.TimeInForce(mapTimeInForce(order.TimeInForce))
			}
		}

		res, err := service.Do(ctx)
		if err != nil {
			return err
		}

		response = res

		return nil
	})

	if err == nil {
		b.unconfirmed.Delete(order.ID)
		b.reconcile(req.sender, createReport(order.ID, response))

		return
	}

	apiErr, refused := venueError(err)
	if refused && !isTransient(err) && attempts == 1 {
		report := connector.ExecutionReport{ //nolint:exhaustruct
			OrderID: order.ID,
			Status:  types.OrderStatusRejected,
			Reason:  describe(apiErr),
		}
		b.reconcile(req.sender, report)

		return
	}

	// The request may have reached the venue. The poller asks for the order until it answers.
	b.unconfirmed.Store(order.ID, struct{}{})
	b.Logger().Warn("Order outcome unknown, polling venue",
		zap.String("order_id", order.ID),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)

	if ctx.Err() == nil {
		b.failed(order.Symbol, "submit order "+order.ID+" failed", err)
	}
}

func (b *BinanceConnector) cancel(req request) {
	current, ok := b.Order(req.order.ID)
	if !ok {
		b.RejectCancel(req.sender, req.order, "unknown order")

		return
	}

	if !current.IsActive() {
		b.RejectCancel(req.sender, current, "order is already "+string(current.Status))

		return
	}

	ctx := b.Context()

	var report connector.ExecutionReport

	err := b.call(ctx, func(ctx context.Context) error {
		res, err := b.client.NewCancelOrderService().
			Symbol(current.Symbol).
			OrigClientOrderID(current.ID).
			Do(ctx)
		if err != nil {
			return err
		}

		report = newReport(current.ID, res.OrderID, res.Status, res.ExecutedQuantity, res.CummulativeQuoteQuantity, res.TransactTime)
		report.Reason = "canceled by user"

		return nil
	})

	if err == nil {
		b.unconfirmed.Delete(current.ID)
		b.reconcile(req.sender, report)

		return
	}

	if apiErr, refused := venueError(err); refused && !isTransient(err) {
		b.RejectCancel(req.sender, current, describe(apiErr))

		return
	}

	if ctx.Err() == nil {
		b.failed(current.Symbol, "cancel order "+current.ID+" failed", err)
	}
}

// poll asks the venue once for the order's state. The next poll tick is the retry.
func (b *BinanceConnector) poll(req request) {
	defer b.polling.Delete(req.order.ID)

	current, ok := b.Order(req.order.ID)
	if !ok || current.Status.IsTerminal() {
		b.unconfirmed.Delete(req.order.ID)

		return
	}

	ctx := b.Context()

	var result *binance.Order

	_, err := b.callCounted(ctx, 0, func(ctx context.Context) error {
		res, err := b.client.NewGetOrderService().
			Symbol(current.Symbol).
			OrigClientOrderID(current.ID).
			Do(ctx)
		if err != nil {
			return err
		}

		result = res

		return nil
	})

	if err == nil {
		b.unconfirmed.Delete(current.ID)
		b.reconcile(nil, orderReport(current.ID, result))

		return
	}

	apiErr, refused := venueError(err)
	if refused && apiErr.Code == apiCodeNoSuchOrder {
		if _, pending := b.unconfirmed.LoadAndDelete(current.ID); pending {
			report := connector.ExecutionReport{ //nolint:exhaustruct
				OrderID: current.ID,
				Status:  types.OrderStatusRejected,
				Reason:  "order unknown to venue",
			}
			b.reconcile(nil, report)

			return
		}
	}

	b.Logger().Debug("Order status poll failed",
		zap.String("order_id", current.ID),
		zap.Error(err),
	)
}

func (b *BinanceConnector) reconcile(sender *connector.EventSender, report connector.ExecutionReport) {
	if err := b.Reconcile(sender, report); err != nil {
		b.Logger().Warn("Venue report could not be reconciled",
			zap.String("order_id", report.OrderID),
			zap.Error(err),
		)
	}
}

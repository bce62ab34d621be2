package connector

import (
	"time"

	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExecutionReport is the venue's view of an order at one point in time, as returned by order
// entry responses and status polls. Quantities are cumulative.
type ExecutionReport struct {
	OrderID          string
	ExchangeOrderID  string
	Status           types.OrderStatus
	ExecutedQuantity decimal.Decimal
	// QuoteQuantity is the cumulative quote amount traded. Zero when the venue does not report it.
	QuoteQuantity decimal.Decimal
	// AveragePrice is used when QuoteQuantity is not reported.
	AveragePrice decimal.Decimal
	Reason       string
	Time         time.Time
}

// Reconcile compares a report with the tracked order and publishes the events that are missing,
// in lifecycle order: accept, then the fill for any newly executed quantity, then a cancel or
// reject. Reports that bring nothing new publish nothing, so responses and polls may overlap.
func (b *Base) Reconcile(sender *EventSender, report ExecutionReport) error {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	current, ok := b.orders.Get(report.OrderID)
	if !ok {
		return errors.Newf(errors.ErrCodeUnknownOrder, "order %s is not tracked by %s", report.OrderID, b.venue)
	}

	if current.Status.IsTerminal() {
		if report.Status != current.Status {
			b.logger.Debug("Suppressed report for terminal order",
				zap.String("venue", b.venue),
				zap.String("order_id", report.OrderID),
				zap.String("status", string(current.Status)),
				zap.String("reported", string(report.Status)),
			)
		}

		return nil
	}

	if current.Status == types.OrderStatusRequested {
		switch report.Status {
		case types.OrderStatusRequested:
			return nil
		case types.OrderStatusRejected:
			return b.emitLocked(sender, stamped(types.NewOrderEvent(types.EventOrderRejected, current, report.Reason), report))
		default:
			accepted := current
			accepted.ExchangeOrderID = report.ExchangeOrderID

			if err := b.emitLocked(sender, stamped(types.NewOrderEvent(types.EventOrderAccepted, accepted, ""), report)); err != nil {
				return err
			}

			current, _ = b.orders.Get(report.OrderID)
		}
	}

	if report.ExecutedQuantity.GreaterThan(current.ExecutedQuantity) {
		delta := report.ExecutedQuantity.Sub(current.ExecutedQuantity)
		fill := types.Fill{
			TradeID:  report.ExchangeOrderID + "-" + report.ExecutedQuantity.String(),
			Price:    fillPrice(current, report, delta),
			Quantity: delta,
			Fee:      decimal.Zero,
			FeeAsset: "",
			IsMaker:  current.Type == types.OrderTypeLimit && current.TimeInForce == types.TimeInForceGTX,
		}

		if err := b.emitLocked(sender, stamped(types.NewFillEvent(current, fill), report)); err != nil {
			return err
		}

		current, _ = b.orders.Get(report.OrderID)
	}

	switch report.Status {
	case types.OrderStatusCanceled:
		return b.emitLocked(sender, stamped(types.NewOrderEvent(types.EventOrderCanceled, current, report.Reason), report))
	case types.OrderStatusRejected:
		return b.emitLocked(sender, stamped(types.NewOrderEvent(types.EventOrderRejected, current, report.Reason), report))
	case types.OrderStatusFilled:
		if !current.Status.IsTerminal() {
			b.logger.Warn("Venue reports filled but executed quantity is short",
				zap.String("venue", b.venue),
				zap.String("order_id", report.OrderID),
				zap.String("executed", current.ExecutedQuantity.String()),
				zap.String("quantity", current.Quantity.String()),
			)
		}
	}

	return nil
}

func stamped(event types.LiveEvent, report ExecutionReport) types.LiveEvent {
	event.Time = report.Time

	return event
}

// fillPrice derives the price of the newly executed quantity from the cumulative report.
func fillPrice(current types.Order, report ExecutionReport, delta decimal.Decimal) decimal.Decimal {
	if report.QuoteQuantity.IsPositive() {
		previous := current.AveragePrice.Mul(current.ExecutedQuantity)
		price := report.QuoteQuantity.Sub(previous).Div(delta)

		if price.IsPositive() {
			return price
		}
	}

	if report.AveragePrice.IsPositive() {
		return report.AveragePrice
	}

	return current.Price
}

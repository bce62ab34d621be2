package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// EventKind tags the variant carried by a LiveEvent.
type EventKind string

const (
	EventOrderAccepted        EventKind = "ORDER_ACCEPTED"
	EventOrderPartiallyFilled EventKind = "ORDER_PARTIALLY_FILLED"
	EventOrderFilled          EventKind = "ORDER_FILLED"
	EventOrderCanceled        EventKind = "ORDER_CANCELED"
	EventOrderRejected        EventKind = "ORDER_REJECTED"
	// EventCancelRejected reports that the venue refused a cancel request. The order itself
	// keeps its current status.
	EventCancelRejected EventKind = "CANCEL_REJECTED"
	EventConnectorError EventKind = "CONNECTOR_ERROR"
	EventMarketData     EventKind = "MARKET_DATA"
)

// OrderStatus returns the order status an order event moves its order to.
// Non order events return an empty status.
func (k EventKind) OrderStatus() OrderStatus {
	switch k {
	case EventOrderAccepted:
		return OrderStatusAccepted
	case EventOrderPartiallyFilled:
		return OrderStatusPartiallyFilled
	case EventOrderFilled:
		return OrderStatusFilled
	case EventOrderCanceled:
		return OrderStatusCanceled
	case EventOrderRejected:
		return OrderStatusRejected
	default:
		return ""
	}
}

// IsOrderEvent returns true for events that change an order's status.
func (k EventKind) IsOrderEvent() bool {
	return k.OrderStatus() != ""
}

// ErrorOrigin separates failures of the connector itself from failures reported by the venue.
type ErrorOrigin string

const (
	// ErrorOriginInternal means the connector is unhealthy. The engine may restart or fail over.
	ErrorOriginInternal ErrorOrigin = "INTERNAL"
	// ErrorOriginExchange means the venue answered with an error that is not tied to one order,
	// such as a rejected API key. The engine applies trading logic.
	ErrorOriginExchange ErrorOrigin = "EXCHANGE"
)

// ConnectorError is the payload of a CONNECTOR_ERROR event.
type ConnectorError struct {
	Origin  ErrorOrigin `json:"origin"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
}

// Fill is a single execution reported by the venue.
type Fill struct {
	TradeID  string          `json:"trade_id"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Fee      decimal.Decimal `json:"fee"`
	FeeAsset string          `json:"fee_asset"`
	IsMaker  bool            `json:"is_maker"`
}

// Value returns price times quantity.
func (f Fill) Value() decimal.Decimal {
	return f.Price.Mul(f.Quantity)
}

// LiveEvent is an immutable outcome notification delivered from a connector to the engine.
// Exactly one payload matching Kind is set.
type LiveEvent struct {
	Kind   EventKind `json:"kind"`
	Venue  string    `json:"venue"`
	Symbol string    `json:"symbol"`
	// Sequence increases by one for every event a connector emits.
	Sequence uint64    `json:"sequence"`
	Time     time.Time `json:"time"`
	// Reason is a human readable explanation for rejects and cancels.
	Reason string `json:"reason"`

	// Order is the order snapshot after the event. Set for ORDER_* and CANCEL_REJECTED.
	Order optional.Option[Order] `json:"order"`
	// Fill is set for ORDER_PARTIALLY_FILLED and ORDER_FILLED.
	Fill optional.Option[Fill] `json:"fill"`
	// Error is set for CONNECTOR_ERROR.
	Error optional.Option[ConnectorError] `json:"error"`
	// MarketData is set for MARKET_DATA.
	MarketData optional.Option[Depth] `json:"market_data"`
}

func newEvent(kind EventKind, symbol string) LiveEvent {
	return LiveEvent{
		Kind:       kind,
		Venue:      "",
		Symbol:     symbol,
		Sequence:   0,
		Time:       time.Time{},
		Reason:     "",
		Order:      optional.None[Order](),
		Fill:       optional.None[Fill](),
		Error:      optional.None[ConnectorError](),
		MarketData: optional.None[Depth](),
	}
}

// NewOrderEvent builds an accepted, canceled or rejected event for the order.
func NewOrderEvent(kind EventKind, order Order, reason string) LiveEvent {
	event := newEvent(kind, order.Symbol)
	event.Order = optional.Some(order)
	event.Reason = reason

	return event
}

// NewFillEvent builds a partial or final fill event from the order state before the fill.
// The emitting connector replaces the snapshot with the post-fill state.
func NewFillEvent(order Order, fill Fill) LiveEvent {
	kind := EventOrderPartiallyFilled
	if order.ExecutedQuantity.Add(fill.Quantity).GreaterThanOrEqual(order.Quantity) {
		kind = EventOrderFilled
	}

	event := newEvent(kind, order.Symbol)
	event.Order = optional.Some(order)
	event.Fill = optional.Some(fill)

	return event
}

// NewCancelRejectedEvent reports a refused cancel for the given order id.
func NewCancelRejectedEvent(order Order, reason string) LiveEvent {
	event := newEvent(EventCancelRejected, order.Symbol)
	event.Order = optional.Some(order)
	event.Reason = reason

	return event
}

// NewConnectorErrorEvent reports a failure that is not tied to an order outcome.
func NewConnectorErrorEvent(symbol string, origin ErrorOrigin, code int, message string) LiveEvent {
	event := newEvent(EventConnectorError, symbol)
	event.Error = optional.Some(ConnectorError{Origin: origin, Code: code, Message: message})
	event.Reason = message

	return event
}

// NewMarketDataEvent publishes a top of book update.
func NewMarketDataEvent(symbol string, depth Depth) LiveEvent {
	event := newEvent(EventMarketData, symbol)
	event.MarketData = optional.Some(depth)

	return event
}

// OrderID returns the id of the order the event refers to, or an empty string.
func (e LiveEvent) OrderID() string {
	if e.Order.IsNone() {
		return ""
	}

	return e.Order.Unwrap().ID
}

// IsTerminal returns true when the event moves its order to a terminal status.
func (e LiveEvent) IsTerminal() bool {
	return e.Kind.OrderStatus().IsTerminal()
}

// IsInternalError returns true for connector errors that originate inside the connector.
func (e LiveEvent) IsInternalError() bool {
	if e.Kind != EventConnectorError || e.Error.IsNone() {
		return false
	}

	return e.Error.Unwrap().Origin == ErrorOriginInternal
}

package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

type TimeInForce string

type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

const (
	// TimeInForceGTC rests on the book until filled or canceled.
	TimeInForceGTC TimeInForce = "GTC"
	// TimeInForceGTX is post-only: the order is rejected if it would take liquidity.
	TimeInForceGTX TimeInForce = "GTX"
	// TimeInForceIOC fills what it can immediately and cancels the rest.
	TimeInForceIOC TimeInForce = "IOC"
	// TimeInForceFOK fills completely and immediately or is canceled.
	TimeInForceFOK TimeInForce = "FOK"
)

const (
	OrderStatusRequested       OrderStatus = "REQUESTED"
	OrderStatusAccepted        OrderStatus = "ACCEPTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal returns true for statuses no order can leave.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether an order in status s may move to next.
//
//	REQUESTED        -> ACCEPTED, REJECTED
//	ACCEPTED         -> PARTIALLY_FILLED, FILLED, CANCELED, REJECTED
//	PARTIALLY_FILLED -> PARTIALLY_FILLED, FILLED, CANCELED, REJECTED
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusRequested:
		return next == OrderStatusAccepted || next == OrderStatusRejected
	case OrderStatusAccepted, OrderStatusPartiallyFilled:
		switch next {
		case OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// Order describes trading intent issued by the engine together with the lifecycle state
// reported back by the connector. Orders are passed by value into Submit and Cancel.
type Order struct {
	// ID is assigned by the engine and is never reused within a venue session.
	ID          string          `yaml:"id" json:"id" validate:"required"`
	Symbol      string          `yaml:"symbol" json:"symbol" validate:"required"`
	Side        Side            `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Type        OrderType       `yaml:"type" json:"type" validate:"required,oneof=LIMIT MARKET"`
	TimeInForce TimeInForce     `yaml:"time_in_force" json:"time_in_force" validate:"required,oneof=GTC GTX IOC FOK"`
	Price       decimal.Decimal `yaml:"price" json:"price"`
	Quantity    decimal.Decimal `yaml:"quantity" json:"quantity"`
	Status      OrderStatus     `yaml:"status" json:"status"`
	// ExecutedQuantity is the cumulative filled quantity.
	ExecutedQuantity decimal.Decimal `yaml:"executed_quantity" json:"executed_quantity"`
	// AveragePrice is the volume weighted price of all fills so far.
	AveragePrice decimal.Decimal `yaml:"average_price" json:"average_price"`
	// ExchangeOrderID is the venue's own identifier once the order is acknowledged.
	ExchangeOrderID string    `yaml:"exchange_order_id" json:"exchange_order_id"`
	CreatedAt       time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt       time.Time `yaml:"updated_at" json:"updated_at"`
}

// NewLimitOrder builds a GTC limit order in the REQUESTED state.
func NewLimitOrder(id, symbol string, side Side, price, quantity decimal.Decimal) Order {
	return Order{
		ID:               id,
		Symbol:           symbol,
		Side:             side,
		Type:             OrderTypeLimit,
		TimeInForce:      TimeInForceGTC,
		Price:            price,
		Quantity:         quantity,
		Status:           OrderStatusRequested,
		ExecutedQuantity: decimal.Zero,
		AveragePrice:     decimal.Zero,
		ExchangeOrderID:  "",
		CreatedAt:        time.Time{},
		UpdatedAt:        time.Time{},
	}
}

// NewMarketOrder builds an IOC market order in the REQUESTED state.
func NewMarketOrder(id, symbol string, side Side, quantity decimal.Decimal) Order {
	order := NewLimitOrder(id, symbol, side, decimal.Zero, quantity)
	order.Type = OrderTypeMarket
	order.TimeInForce = TimeInForceIOC

	return order
}

// Validate validates the order fields that do not depend on the instrument.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if !o.Quantity.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidOrder, "order quantity must be greater than zero, got %s", o.Quantity)
	}

	if o.Type == OrderTypeLimit && !o.Price.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidOrder, "limit order price must be greater than zero, got %s", o.Price)
	}

	if o.Type == OrderTypeMarket && o.TimeInForce == TimeInForceGTX {
		return errors.New(errors.ErrCodeInvalidOrder, "market orders cannot be post-only")
	}

	return nil
}

// LeavesQuantity returns the quantity still open on the venue.
func (o Order) LeavesQuantity() decimal.Decimal {
	leaves := o.Quantity.Sub(o.ExecutedQuantity)
	if leaves.IsNegative() {
		return decimal.Zero
	}

	return leaves
}

// IsActive returns true while the order can still trade.
func (o Order) IsActive() bool {
	return !o.Status.IsTerminal()
}

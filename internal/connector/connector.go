// Package connector defines the contract every venue integration implements and the shared
// bookkeeping concrete connectors embed.
//
// All operations are non-blocking. A returned error always means the connector could not even
// attempt the request. Everything the venue decides arrives later as a types.LiveEvent on the
// event channel.
package connector

import (
	"context"

	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/eventchan"
	"github.com/shopspring/decimal"
)

// EventSender is the producer side of the engine's event channel.
type EventSender = eventchan.Sender[types.LiveEvent]

// EventReceiver is the engine's consumer side of the event channel.
type EventReceiver = eventchan.Receiver[types.LiveEvent]

// NewEventChannel creates the single event stream of an engine run.
func NewEventChannel() (*EventSender, *EventReceiver) {
	return eventchan.New[types.LiveEvent]()
}

type Connector interface {
	// Venue returns the venue identifier the connector was created for
	Venue() string
	// Add registers an instrument. Must be called before Run and never performs network I/O
	Add(symbol string, tickSize, lotSize decimal.Decimal) error
	// Run starts connectivity in the background and stores a clone of sender for all later
	// outcomes. It is called exactly once and returns immediately.
	Run(sender *EventSender) error
	// Submit requests a new order. The venue's decision arrives as events on sender.
	// Safe for many concurrent callers.
	Submit(asset string, order types.Order, sender *EventSender) error
	// Cancel requests cancellation of a previously submitted order identified by order.ID.
	// Unknown or terminal orders resolve to a CANCEL_REJECTED event.
	Cancel(asset string, order types.Order, sender *EventSender) error
	// Stop refuses new requests, drains in-flight work bounded by ctx and releases the
	// connector's sender clone.
	Stop(ctx context.Context) error
}

package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-connector/internal/connector"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/orderstate"
	"github.com/rxtech-lab/argo-connector/internal/stats"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OnEventCallback is called for every event after the dispatcher has applied it.
type OnEventCallback func(event types.LiveEvent) error

// OnOrderUpdateCallback is called with the engine's view of an order after each order event.
type OnOrderUpdateCallback func(order types.Order) error

// OnConnectorErrorCallback is called for every CONNECTOR_ERROR event.
type OnConnectorErrorCallback func(venue string, failure types.ConnectorError)

// DispatcherCallbacks holds the optional callbacks of a Dispatcher.
// All fields are pointers - nil means no callback will be invoked.
type DispatcherCallbacks struct {
	OnEvent          *OnEventCallback
	OnOrderUpdate    *OnOrderUpdateCallback
	OnConnectorError *OnConnectorErrorCallback
}

// EventJournal persists every consumed event.
type EventJournal interface {
	Write(event types.LiveEvent) error
}

type dispatcherState int

const (
	dispatcherCreated dispatcherState = iota
	dispatcherRunning
	dispatcherStopped
)

// Dispatcher routes engine requests to connectors by venue and consumes their merged event
// stream. The engine's order state is rebuilt from events only.
type Dispatcher struct {
	logger    *logger.Logger
	journal   EventJournal
	callbacks DispatcherCallbacks

	mu         sync.RWMutex
	state      dispatcherState
	connectors map[string]connector.Connector

	orders  *orderstate.StateMachine
	tracker *stats.Tracker

	depthMu sync.RWMutex
	depth   map[types.InstrumentKey]types.Depth

	waitMu  sync.Mutex
	waiters map[string][]chan types.LiveEvent
	// unread holds the latest event of every order no waiter has observed yet.
	unread map[string]types.LiveEvent

	sender   *connector.EventSender
	receiver *connector.EventReceiver
	consumer sync.WaitGroup
}

// NewDispatcher creates a dispatcher. journal may be nil.
func NewDispatcher(log *logger.Logger, journal EventJournal, callbacks DispatcherCallbacks) *Dispatcher {
	if log == nil {
		log = logger.NewNopLogger()
	}

	log = log.Named("dispatcher")
	sender, receiver := connector.NewEventChannel()

	return &Dispatcher{
		logger:     log,
		journal:    journal,
		callbacks:  callbacks,
		mu:         sync.RWMutex{},
		state:      dispatcherCreated,
		connectors: make(map[string]connector.Connector),
		orders:     orderstate.NewStateMachine(),
		tracker:    stats.NewTracker(log),
		depthMu:    sync.RWMutex{},
		depth:      make(map[types.InstrumentKey]types.Depth),
		waitMu:     sync.Mutex{},
		waiters:    make(map[string][]chan types.LiveEvent),
		unread:     make(map[string]types.LiveEvent),
		sender:     sender,
		receiver:   receiver,
		consumer:   sync.WaitGroup{},
	}
}

// Register adds a connector before Start. Venues must be unique.
func (d *Dispatcher) Register(c connector.Connector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != dispatcherCreated {
		return errors.New(errors.ErrCodeAddAfterRun, "connectors must be registered before the dispatcher starts")
	}

	venue := c.Venue()
	if _, exists := d.connectors[venue]; exists {
		return errors.Newf(errors.ErrCodeVenueExists, "venue %s is already registered", venue)
	}

	d.connectors[venue] = c

	return nil
}

// Venues returns the registered venues, sorted.
func (d *Dispatcher) Venues() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	venues := make([]string, 0, len(d.connectors))
	for venue := range d.connectors {
		venues = append(venues, venue)
	}

	slices.Sort(venues)

	return venues
}

func (d *Dispatcher) connector(venue string) (connector.Connector, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.connectors[venue]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownVenue, "venue %s is not registered", venue)
	}

	return c, nil
}

// AddInstrument registers an instrument on the connector of venue.
func (d *Dispatcher) AddInstrument(venue, symbol string, tickSize, lotSize decimal.Decimal) error {
	c, err := d.connector(venue)
	if err != nil {
		return err
	}

	return c.Add(symbol, tickSize, lotSize)
}

// Start runs every connector on the shared event channel and starts the consumer.
// If a connector fails to run, the ones already running are stopped.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != dispatcherCreated {
		return errors.New(errors.ErrCodeConnectorAlreadyRunning, "dispatcher was already started")
	}

	venues := make([]string, 0, len(d.connectors))
	for venue := range d.connectors {
		venues = append(venues, venue)
	}

	slices.Sort(venues)

	started := make([]connector.Connector, 0, len(venues))

	for _, venue := range venues {
		c := d.connectors[venue]

		if err := c.Run(d.sender); err != nil {
			for _, running := range started {
				err = multierr.Append(err, running.Stop(ctx))
			}

			return err
		}

		started = append(started, c)
	}

	d.state = dispatcherRunning
	d.consumer.Go(d.consume)

	d.logger.Info("Dispatcher started", zap.Strings("venues", venues))

	return nil
}

// NewOrderID returns a fresh order id.
func (d *Dispatcher) NewOrderID() string {
	return uuid.New().String()
}

// Submit records the order as REQUESTED and routes it to the connector of venue.
func (d *Dispatcher) Submit(venue string, order types.Order) (types.Order, error) {
	c, err := d.connector(venue)
	if err != nil {
		return types.Order{}, err
	}

	if order.Symbol == "" {
		return types.Order{}, errors.New(errors.ErrCodeMissingParameter, "order symbol is required")
	}

	tracked, err := d.orders.Request(order)
	if err != nil {
		return types.Order{}, err
	}

	if err := c.Submit(order.Symbol, tracked, nil); err != nil {
		d.orders.Forget(tracked.ID)

		return types.Order{}, err
	}

	return tracked, nil
}

// Cancel routes a cancel for orderID to the connector of venue.
func (d *Dispatcher) Cancel(venue, symbol, orderID string) error {
	c, err := d.connector(venue)
	if err != nil {
		return err
	}

	order, ok := d.orders.Get(orderID)
	if !ok {
		order = types.Order{ID: orderID, Symbol: symbol} //nolint:exhaustruct
	}

	return c.Cancel(symbol, order, nil)
}

// Order returns the engine's view of an order.
func (d *Dispatcher) Order(id string) (types.Order, bool) {
	return d.orders.Get(id)
}

// OpenOrders returns every order that is not terminal, oldest first.
func (d *Dispatcher) OpenOrders() []types.Order {
	return d.orders.Open()
}

// ClearInactiveOrders forgets terminal orders. Their ids can still not be reused.
func (d *Dispatcher) ClearInactiveOrders() int {
	removed := d.orders.ClearInactive()

	d.waitMu.Lock()
	for id := range d.unread {
		if _, ok := d.orders.Get(id); !ok {
			delete(d.unread, id)
		}
	}
	d.waitMu.Unlock()

	return removed
}

// State returns the values built from the fills of one instrument.
func (d *Dispatcher) State(venue, symbol string) types.StateValues {
	return d.tracker.Get(types.InstrumentKey{Venue: venue, Symbol: symbol})
}

// Stats returns the state values of every instrument that traded.
func (d *Dispatcher) Stats() *stats.Tracker {
	return d.tracker
}

// Depth returns the last top of book received for an instrument.
func (d *Dispatcher) Depth(venue, symbol string) (types.Depth, bool) {
	d.depthMu.RLock()
	defer d.depthMu.RUnlock()

	depth, ok := d.depth[types.InstrumentKey{Venue: venue, Symbol: symbol}]

	return depth, ok
}

// WaitOrderResponse returns the latest event for the order that no earlier wait has seen.
// When there is none it blocks until the next one arrives or fails with ErrCodeTimeout.
func (d *Dispatcher) WaitOrderResponse(ctx context.Context, orderID string, timeout time.Duration) (types.LiveEvent, error) {
	d.waitMu.Lock()

	if event, ok := d.unread[orderID]; ok {
		delete(d.unread, orderID)
		d.waitMu.Unlock()

		return event, nil
	}

	ch := make(chan types.LiveEvent, 1)
	d.waiters[orderID] = append(d.waiters[orderID], ch)
	d.waitMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event := <-ch:
		return event, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	d.waitMu.Lock()
	d.waiters[orderID] = slices.DeleteFunc(d.waiters[orderID], func(waiter chan types.LiveEvent) bool {
		return waiter == ch
	})

	if len(d.waiters[orderID]) == 0 {
		delete(d.waiters, orderID)
	}
	d.waitMu.Unlock()

	// the event may have been delivered while the waiter was being removed
	select {
	case event := <-ch:
		return event, nil
	default:
	}

	return types.LiveEvent{}, errors.Newf(errors.ErrCodeTimeout, "no response for order %s within %s", orderID, timeout)
}

// Stop stops every connector, waits for the consumer to drain the stream and closes it.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()

	if d.state == dispatcherStopped {
		d.mu.Unlock()

		return nil
	}

	wasRunning := d.state == dispatcherRunning
	d.state = dispatcherStopped

	connectors := make([]connector.Connector, 0, len(d.connectors))
	for _, c := range d.connectors {
		connectors = append(connectors, c)
	}
	d.mu.Unlock()

	if !wasRunning {
		d.sender.Close()
		d.receiver.Close()

		return nil
	}

	failures := make([]error, len(connectors))

	var group errgroup.Group
	for i, c := range connectors {
		group.Go(func() error {
			failures[i] = c.Stop(ctx)

			return nil
		})
	}

	_ = group.Wait()

	d.sender.Close()

	done := make(chan struct{})

	go func() {
		d.consumer.Wait()
		close(done)
	}()

	var err error

	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Wrap(errors.ErrCodeTimeout, "dispatcher did not drain the event stream", ctx.Err())
	}

	d.receiver.Close()

	err = multierr.Combine(append(failures, err)...)
	d.logger.Info("Dispatcher stopped", zap.Int("open_orders", len(d.orders.Open())), zap.Error(err))

	return err
}

func (d *Dispatcher) consume() {
	for event := range d.receiver.All(context.Background()) {
		d.handle(event)
	}
}

func (d *Dispatcher) handle(event types.LiveEvent) {
	switch {
	case event.Kind.IsOrderEvent():
		updated, err := d.orders.Apply(event)
		if err != nil {
			d.logger.Warn("Order event does not match the engine's order state",
				zap.String("venue", event.Venue),
				zap.String("order_id", event.OrderID()),
				zap.String("kind", string(event.Kind)),
				zap.Error(err),
			)
		} else {
			d.notifyOrderUpdate(updated)
		}

		if _, filled := d.tracker.Apply(event); filled {
			d.logger.Debug("Fill recorded", zap.String("venue", event.Venue), zap.String("order_id", event.OrderID()))
		}
	case event.Kind == types.EventMarketData && event.MarketData.IsSome():
		d.depthMu.Lock()
		d.depth[types.InstrumentKey{Venue: event.Venue, Symbol: event.Symbol}] = event.MarketData.Unwrap()
		d.depthMu.Unlock()
	case event.Kind == types.EventConnectorError && event.Error.IsSome():
		failure := event.Error.Unwrap()
		d.logger.Warn("Connector reported an error",
			zap.String("venue", event.Venue),
			zap.String("symbol", event.Symbol),
			zap.String("origin", string(failure.Origin)),
			zap.Int("code", failure.Code),
			zap.String("message", failure.Message),
		)

		if d.callbacks.OnConnectorError != nil {
			(*d.callbacks.OnConnectorError)(event.Venue, failure)
		}
	}

	if d.journal != nil {
		if err := d.journal.Write(event); err != nil {
			d.logger.Error("Failed to journal event", zap.String("kind", string(event.Kind)), zap.Error(err))
		}
	}

	if id := event.OrderID(); id != "" {
		d.deliver(id, event)
	}

	if d.callbacks.OnEvent != nil {
		if err := (*d.callbacks.OnEvent)(event); err != nil {
			d.logger.Warn("OnEvent callback failed", zap.String("kind", string(event.Kind)), zap.Error(err))
		}
	}
}

func (d *Dispatcher) notifyOrderUpdate(order types.Order) {
	if d.callbacks.OnOrderUpdate == nil {
		return
	}

	if err := (*d.callbacks.OnOrderUpdate)(order); err != nil {
		d.logger.Warn("OnOrderUpdate callback failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (d *Dispatcher) deliver(orderID string, event types.LiveEvent) {
	d.waitMu.Lock()
	defer d.waitMu.Unlock()

	waiters := d.waiters[orderID]
	if len(waiters) == 0 {
		d.unread[orderID] = event

		return
	}

	delete(d.waiters, orderID)

	for _, waiter := range waiters {
		waiter <- event
	}
}

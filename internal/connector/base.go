package connector

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/orderstate"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type lifecycle int32

const (
	lifecycleCreated lifecycle = iota
	lifecycleStarting
	lifecycleRunning
	lifecycleStopped
)

// Base holds the lifecycle, instrument set and order tracking shared by every connector.
// Concrete connectors embed it and only add the venue specific transport.
type Base struct {
	venue  string
	logger *logger.Logger

	state atomic.Int32
	// startMu keeps Shutdown out while Start is between starting and running.
	startMu sync.Mutex

	instrumentsMu sync.RWMutex
	instruments   map[string]types.Instrument

	// emitMu serializes emission so each connector's stream follows the tracked order lifecycle.
	emitMu   sync.Mutex
	orders   *orderstate.StateMachine
	sequence uint64

	depthMu sync.RWMutex
	depth   map[string]types.Depth

	sender *EventSender

	ctx        context.Context
	cancel     context.CancelFunc
	work       sync.WaitGroup
	background sync.WaitGroup
}

// NewBase creates the shared state for a connector on the given venue.
func NewBase(venue string, log *logger.Logger) *Base {
	ctx, cancel := context.WithCancel(context.Background())

	return &Base{
		venue:         venue,
		logger:        log,
		state:         atomic.Int32{},
		startMu:       sync.Mutex{},
		instrumentsMu: sync.RWMutex{},
		instruments:   make(map[string]types.Instrument),
		emitMu:        sync.Mutex{},
		orders:        orderstate.NewStateMachine(),
		sequence:      0,
		depthMu:       sync.RWMutex{},
		depth:         make(map[string]types.Depth),
		sender:        nil,
		ctx:           ctx,
		cancel:        cancel,
		work:          sync.WaitGroup{},
		background:    sync.WaitGroup{},
	}
}

// Venue returns the venue identifier.
func (b *Base) Venue() string {
	return b.venue
}

// Logger returns the connector's logger.
func (b *Base) Logger() *logger.Logger {
	return b.logger
}

// Context is canceled when the connector stops its background sessions.
func (b *Base) Context() context.Context {
	return b.ctx
}

// IsRunning returns true between a successful Run and Stop.
func (b *Base) IsRunning() bool {
	return lifecycle(b.state.Load()) == lifecycleRunning
}

// Add registers an instrument. Identical re-registration is a no-op.
func (b *Base) Add(symbol string, tickSize, lotSize decimal.Decimal) error {
	if lifecycle(b.state.Load()) != lifecycleCreated {
		return errors.Newf(errors.ErrCodeAddAfterRun, "cannot add %s to %s after run", symbol, b.venue)
	}

	instrument, err := types.NewInstrument(b.venue, symbol, tickSize, lotSize)
	if err != nil {
		return err
	}

	b.instrumentsMu.Lock()
	defer b.instrumentsMu.Unlock()

	if existing, ok := b.instruments[symbol]; ok {
		if existing.Equal(instrument) {
			return nil
		}

		return errors.Newf(errors.ErrCodeInstrumentExists,
			"instrument %s already registered on %s with tick %s lot %s",
			symbol, b.venue, existing.TickSize, existing.LotSize)
	}

	b.instruments[symbol] = instrument
	b.logger.Debug("Instrument registered",
		zap.String("venue", b.venue),
		zap.String("symbol", symbol),
		zap.String("tick_size", tickSize.String()),
		zap.String("lot_size", lotSize.String()),
	)

	return nil
}

// Instrument returns a registered instrument.
func (b *Base) Instrument(symbol string) (types.Instrument, bool) {
	b.instrumentsMu.RLock()
	defer b.instrumentsMu.RUnlock()

	instrument, ok := b.instruments[symbol]

	return instrument, ok
}

// Instruments returns every registered instrument sorted by symbol.
func (b *Base) Instruments() []types.Instrument {
	b.instrumentsMu.RLock()
	defer b.instrumentsMu.RUnlock()

	instruments := make([]types.Instrument, 0, len(b.instruments))
	for _, instrument := range b.instruments {
		instruments = append(instruments, instrument)
	}

	slices.SortFunc(instruments, func(a, b types.Instrument) int {
		return cmp.Compare(a.Symbol, b.Symbol)
	})

	return instruments
}

// Start moves the connector to running and keeps a clone of sender for background outcomes.
// setup runs after the sender is stored and before requests are accepted, so whatever it builds
// is visible to every Submit and Cancel that passes the running check.
func (b *Base) Start(sender *EventSender, setup ...func()) error {
	if sender == nil {
		return errors.New(errors.ErrCodeMissingParameter, "event sender is required")
	}

	if sender.IsClosed() {
		return errors.New(errors.ErrCodeChannelClosed, "event sender is already closed")
	}

	b.startMu.Lock()
	defer b.startMu.Unlock()

	if !b.state.CompareAndSwap(int32(lifecycleCreated), int32(lifecycleStarting)) {
		if lifecycle(b.state.Load()) == lifecycleStopped {
			return errors.Newf(errors.ErrCodeConnectorStopped, "connector %s is stopped", b.venue)
		}

		return errors.Newf(errors.ErrCodeConnectorAlreadyRunning, "connector %s is already running", b.venue)
	}

	b.sender = sender.Clone()

	for _, fn := range setup {
		fn()
	}

	b.state.Store(int32(lifecycleRunning))

	return nil
}

// Sender returns the sender stored by Start.
func (b *Base) Sender() *EventSender {
	return b.sender
}

func (b *Base) checkRunning() error {
	switch lifecycle(b.state.Load()) {
	case lifecycleCreated, lifecycleStarting:
		return errors.Newf(errors.ErrCodeConnectorNotRunning, "connector %s is not running", b.venue)
	case lifecycleStopped:
		return errors.Newf(errors.ErrCodeConnectorStopped, "connector %s is stopped", b.venue)
	default:
		return nil
	}
}

func (b *Base) resolveSender(sender *EventSender) (*EventSender, error) {
	if sender == nil {
		sender = b.sender
	}

	if sender == nil || sender.IsClosed() {
		return nil, errors.New(errors.ErrCodeChannelClosed, "event receiver has been dropped")
	}

	return sender, nil
}

func (b *Base) resolveInstrument(asset string, order types.Order) (types.Instrument, error) {
	symbol := asset
	if symbol == "" {
		symbol = order.Symbol
	}

	if order.Symbol != "" && order.Symbol != symbol {
		return types.Instrument{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"order %s is for %s but was routed to %s", order.ID, order.Symbol, symbol)
	}

	instrument, ok := b.Instrument(symbol)
	if !ok {
		return types.Instrument{}, errors.Newf(errors.ErrCodeUnknownInstrument, "instrument %s is not registered on %s", symbol, b.venue)
	}

	return instrument, nil
}

// PrepareSubmit runs every local check of a submit, rounds price and quantity to the instrument
// and starts tracking the order. The returned order is the one the connector must send.
func (b *Base) PrepareSubmit(asset string, order types.Order, sender *EventSender) (types.Order, *EventSender, error) {
	if err := b.checkRunning(); err != nil {
		return types.Order{}, nil, err
	}

	sender, err := b.resolveSender(sender)
	if err != nil {
		return types.Order{}, nil, err
	}

	instrument, err := b.resolveInstrument(asset, order)
	if err != nil {
		return types.Order{}, nil, err
	}

	order.Symbol = instrument.Symbol

	if err := order.Validate(); err != nil {
		return types.Order{}, nil, err
	}

	if order.Type == types.OrderTypeLimit {
		order.Price = instrument.RoundPrice(order.Price)
		if !order.Price.IsPositive() {
			return types.Order{}, nil, errors.Newf(errors.ErrCodeInvalidParameter,
				"price of order %s rounds to %s at tick %s", order.ID, order.Price, instrument.TickSize)
		}
	}

	order.Quantity = instrument.RoundQuantity(order.Quantity)
	if !order.Quantity.IsPositive() {
		return types.Order{}, nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"quantity of order %s is below lot size %s", order.ID, instrument.LotSize)
	}

	tracked, err := b.orders.Request(order)
	if err != nil {
		return types.Order{}, nil, err
	}

	return tracked, sender, nil
}

// AbortSubmit drops an order accepted by PrepareSubmit that could not be dispatched.
// The order id stays used.
func (b *Base) AbortSubmit(orderID string) {
	b.orders.Forget(orderID)
}

// PrepareCancel runs the local checks of a cancel and returns the tracked order. active is false
// when the order is unknown or already terminal; such cancels are answered with RejectCancel.
func (b *Base) PrepareCancel(asset string, order types.Order, sender *EventSender) (tracked types.Order, active bool, out *EventSender, err error) {
	if err := b.checkRunning(); err != nil {
		return types.Order{}, false, nil, err
	}

	out, err = b.resolveSender(sender)
	if err != nil {
		return types.Order{}, false, nil, err
	}

	if order.ID == "" {
		return types.Order{}, false, nil, errors.New(errors.ErrCodeMissingParameter, "order id is required to cancel")
	}

	instrument, err := b.resolveInstrument(asset, order)
	if err != nil {
		return types.Order{}, false, nil, err
	}

	tracked, ok := b.orders.Get(order.ID)
	if !ok {
		order.Symbol = instrument.Symbol

		return order, false, out, nil
	}

	return tracked, tracked.IsActive(), out, nil
}

// Order returns the connector's view of an order.
func (b *Base) Order(id string) (types.Order, bool) {
	return b.orders.Get(id)
}

// OpenOrders returns every order the connector still considers live.
func (b *Base) OpenOrders() []types.Order {
	return b.orders.Open()
}

// Depth returns the last published top of book for a symbol.
func (b *Base) Depth(symbol string) (types.Depth, bool) {
	b.depthMu.RLock()
	defer b.depthMu.RUnlock()

	depth, ok := b.depth[symbol]

	return depth, ok
}

// Emit publishes an event on sender (or the stored sender when nil).
//
// Order events are applied to the tracked order first and the event carries the resulting
// snapshot. A report for an order that is already terminal is dropped. An illegal transition
// is never published; it becomes an internal CONNECTOR_ERROR instead.
func (b *Base) Emit(sender *EventSender, event types.LiveEvent) error {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	return b.emitLocked(sender, event)
}

func (b *Base) emitLocked(sender *EventSender, event types.LiveEvent) error {
	if sender == nil {
		sender = b.sender
	}

	if sender == nil {
		return errors.Newf(errors.ErrCodeConnectorNotRunning, "connector %s has no event sender", b.venue)
	}

	switch {
	case event.Kind.IsOrderEvent():
		id := event.OrderID()

		if current, ok := b.orders.Get(id); ok && current.Status.IsTerminal() {
			b.logger.Debug("Suppressed report for terminal order",
				zap.String("venue", b.venue),
				zap.String("order_id", id),
				zap.String("status", string(current.Status)),
				zap.String("kind", string(event.Kind)),
			)

			return nil
		}

		updated, err := b.orders.Apply(event)
		if err != nil {
			b.logger.Error("Refusing to publish invalid order event",
				zap.String("venue", b.venue),
				zap.String("order_id", id),
				zap.String("kind", string(event.Kind)),
				zap.Error(err),
			)

			failure := types.NewConnectorErrorEvent(event.Symbol, types.ErrorOriginInternal, int(errors.GetCode(err)), err.Error())

			return b.send(sender, failure)
		}

		event.Order = optional.Some(updated)
	case event.Kind == types.EventCancelRejected:
		if current, ok := b.orders.Get(event.OrderID()); ok {
			event.Order = optional.Some(current)
		}
	case event.Kind == types.EventMarketData && event.MarketData.IsSome():
		b.depthMu.Lock()
		b.depth[event.Symbol] = event.MarketData.Unwrap()
		b.depthMu.Unlock()
	}

	return b.send(sender, event)
}

func (b *Base) send(sender *EventSender, event types.LiveEvent) error {
	b.sequence++
	event.Sequence = b.sequence
	event.Venue = b.venue

	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	if err := sender.Send(event); err != nil {
		b.logger.Debug("Event dropped",
			zap.String("venue", b.venue),
			zap.String("kind", string(event.Kind)),
			zap.String("order_id", event.OrderID()),
			zap.Error(err),
		)

		return err
	}

	return nil
}

// RejectCancel publishes a CANCEL_REJECTED event for the order.
func (b *Base) RejectCancel(sender *EventSender, order types.Order, reason string) {
	_ = b.Emit(sender, types.NewCancelRejectedEvent(order, reason))
}

// EmitError publishes a CONNECTOR_ERROR event.
func (b *Base) EmitError(sender *EventSender, symbol string, origin types.ErrorOrigin, code int, message string) {
	_ = b.Emit(sender, types.NewConnectorErrorEvent(symbol, origin, code, message))
}

// EmitInternalError publishes an internal CONNECTOR_ERROR for err.
func (b *Base) EmitInternalError(sender *EventSender, symbol string, err error) {
	b.EmitError(sender, symbol, types.ErrorOriginInternal, int(errors.GetCode(err)), err.Error())
}

// Go runs fn as tracked request work. Stop waits for it before canceling background sessions.
func (b *Base) Go(fn func()) {
	b.work.Go(fn)
}

// GoBackground runs fn until the connector's context is canceled.
func (b *Base) GoBackground(fn func(ctx context.Context)) {
	b.background.Go(func() {
		fn(b.ctx)
	})
}

// Shutdown implements the shared part of Stop. drain is called once new requests are refused and
// must make every Go worker return after finishing queued work. Shutdown is idempotent.
func (b *Base) Shutdown(ctx context.Context, drain func()) error {
	b.startMu.Lock()
	previous := lifecycle(b.state.Swap(int32(lifecycleStopped)))
	b.startMu.Unlock()

	if previous == lifecycleStopped {
		return nil
	}

	if previous == lifecycleCreated {
		b.cancel()

		return nil
	}

	if drain != nil {
		drain()
	}

	var result error
	if err := waitGroup(ctx, &b.work); err != nil {
		result = errors.Wrapf(errors.ErrCodeTimeout, err, "connector %s did not drain in-flight requests", b.venue)
	}

	b.cancel()

	if err := waitGroup(ctx, &b.background); err != nil && result == nil {
		result = errors.Wrapf(errors.ErrCodeTimeout, err, "connector %s background sessions did not stop", b.venue)
	}

	// hold the emit lock so nothing is mid-send on the stored clone while it closes
	b.emitMu.Lock()
	b.sender.Close()
	b.emitMu.Unlock()

	b.logger.Info("Connector stopped", zap.String("venue", b.venue), zap.Int("open_orders", len(b.orders.Open())))

	return result
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

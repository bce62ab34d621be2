// Package orderstate reconstructs order lifecycles from live events.
//
// The same state machine is used on both sides of the connector boundary: connectors run every
// outgoing order event through it so they never emit an illegal transition, and the dispatcher
// runs every incoming event through it to rebuild the engine's view of its orders.
package orderstate

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
)

// StateMachine tracks orders by id. It is safe for concurrent use.
type StateMachine struct {
	mu     sync.RWMutex
	orders map[string]*types.Order
	// seen holds every id ever requested so ids are never reused, even after their orders are
	// cleared.
	seen map[string]struct{}
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		mu:     sync.RWMutex{},
		orders: make(map[string]*types.Order),
		seen:   make(map[string]struct{}),
	}
}

// Request registers a new order in the REQUESTED state.
func (m *StateMachine) Request(order types.Order) (types.Order, error) {
	if order.ID == "" {
		return types.Order{}, errors.New(errors.ErrCodeInvalidOrder, "order id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[order.ID]; ok {
		return types.Order{}, errors.Newf(errors.ErrCodeDuplicateOrderID, "order id %s was already used in this session", order.ID)
	}

	order.Status = types.OrderStatusRequested
	order.ExecutedQuantity = decimal.Zero
	order.AveragePrice = decimal.Zero

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	order.UpdatedAt = order.CreatedAt

	m.seen[order.ID] = struct{}{}
	m.orders[order.ID] = &order

	return order, nil
}

// Apply moves the order referenced by an ORDER_* event to its next state and returns the
// resulting snapshot.
func (m *StateMachine) Apply(event types.LiveEvent) (types.Order, error) {
	next := event.Kind.OrderStatus()
	if next == "" {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "%s does not change order state", event.Kind)
	}

	id := event.OrderID()

	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return types.Order{}, errors.Newf(errors.ErrCodeUnknownOrder, "order %s is not tracked", id)
	}

	if !order.Status.CanTransitionTo(next) {
		return *order, errors.Newf(errors.ErrCodeInvalidTransition, "order %s cannot move from %s to %s", id, order.Status, next)
	}

	if event.Kind == types.EventOrderPartiallyFilled || event.Kind == types.EventOrderFilled {
		if err := applyFill(order, event); err != nil {
			return *order, err
		}
	}

	if event.Kind == types.EventOrderAccepted && event.Order.IsSome() {
		acceptOrder(order, event.Order.Unwrap())
	}

	order.Status = next
	order.UpdatedAt = event.Time

	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now()
	}

	return *order, nil
}

// acceptOrder copies what the venue actually received. The requested order may be off the
// instrument's tick and lot grid; the accepted snapshot carries the rounded values.
func acceptOrder(order *types.Order, snapshot types.Order) {
	if snapshot.ExchangeOrderID != "" {
		order.ExchangeOrderID = snapshot.ExchangeOrderID
	}

	if order.Status != types.OrderStatusRequested {
		return
	}

	if snapshot.Quantity.IsPositive() {
		order.Quantity = snapshot.Quantity
	}

	if order.Type == types.OrderTypeLimit && snapshot.Price.IsPositive() {
		order.Price = snapshot.Price
	}
}

func applyFill(order *types.Order, event types.LiveEvent) error {
	if event.Fill.IsNone() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "fill event for order %s carries no fill", order.ID)
	}

	fill := event.Fill.Unwrap()
	if !fill.Quantity.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "fill quantity for order %s must be positive", order.ID)
	}

	executed := order.ExecutedQuantity.Add(fill.Quantity)
	if executed.GreaterThan(order.Quantity) {
		return errors.Newf(errors.ErrCodeOverfill, "order %s overfilled: executed %s of %s", order.ID, executed, order.Quantity)
	}

	// volume weighted average over all fills
	notional := order.AveragePrice.Mul(order.ExecutedQuantity).Add(fill.Value())
	order.AveragePrice = notional.Div(executed)
	order.ExecutedQuantity = executed

	return nil
}

// Get returns a snapshot of the order.
func (m *StateMachine) Get(id string) (types.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return types.Order{}, false
	}

	return *order, true
}

// Open returns every order that is not terminal, oldest first.
func (m *StateMachine) Open() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]types.Order, 0, len(m.orders))
	for _, order := range m.orders {
		if order.IsActive() {
			orders = append(orders, *order)
		}
	}

	slices.SortFunc(orders, func(a, b types.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	return orders
}

// Forget drops an order that never left the REQUESTED state. Its id stays used.
func (m *StateMachine) Forget(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok || order.Status != types.OrderStatusRequested {
		return false
	}

	delete(m.orders, id)

	return true
}

// ClearInactive removes terminal orders and returns how many were removed. Their ids stay used.
func (m *StateMachine) ClearInactive() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	for id, order := range m.orders {
		if order.Status.IsTerminal() {
			delete(m.orders, id)
			removed++
		}
	}

	return removed
}

// Seen reports whether the id was ever requested.
func (m *StateMachine) Seen(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.seen[id]

	return ok
}

// Len returns the number of tracked orders.
func (m *StateMachine) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.orders)
}

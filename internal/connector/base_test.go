package connector

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type BaseTestSuite struct {
	suite.Suite
	base     *Base
	sender   *EventSender
	receiver *EventReceiver
}

func TestBaseSuite(t *testing.T) {
	suite.Run(t, new(BaseTestSuite))
}

func (suite *BaseTestSuite) SetupTest() {
	suite.base = NewBase("sim", logger.NewNopLogger())
	suite.sender, suite.receiver = NewEventChannel()
	suite.Require().NoError(suite.base.Add("BTCUSD", decimal.RequireFromString("0.5"), decimal.RequireFromString("0.001")))
}

func (suite *BaseTestSuite) TearDownTest() {
	_ = suite.base.Shutdown(context.Background(), nil)
}

func (suite *BaseTestSuite) drain() []types.LiveEvent {
	var events []types.LiveEvent

	for {
		event, ok := suite.receiver.TryRecv()
		if !ok {
			return events
		}

		events = append(events, event)
	}
}

func (suite *BaseTestSuite) kinds(events []types.LiveEvent) []types.EventKind {
	kinds := make([]types.EventKind, 0, len(events))
	for _, event := range events {
		kinds = append(kinds, event.Kind)
	}

	return kinds
}

func (suite *BaseTestSuite) order(id string) types.Order {
	return types.NewLimitOrder(id, "BTCUSD", types.SideBuy, decimal.NewFromInt(50000), decimal.RequireFromString("0.01"))
}

func (suite *BaseTestSuite) TestAdd_Rules() {
	// identical registration is a no-op
	suite.NoError(suite.base.Add("BTCUSD", decimal.RequireFromString("0.5"), decimal.RequireFromString("0.001")))

	err := suite.base.Add("BTCUSD", decimal.NewFromInt(1), decimal.RequireFromString("0.001"))
	suite.True(errors.HasCode(err, errors.ErrCodeInstrumentExists))

	err = suite.base.Add("ETHUSD", decimal.Zero, decimal.RequireFromString("0.001"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInstrument))

	instrument, ok := suite.base.Instrument("BTCUSD")
	suite.True(ok)
	suite.True(instrument.TickSize.Equal(decimal.RequireFromString("0.5")))

	suite.Require().NoError(suite.base.Start(suite.sender))

	err = suite.base.Add("ETHUSD", decimal.NewFromInt(1), decimal.NewFromInt(1))
	suite.True(errors.HasCode(err, errors.ErrCodeAddAfterRun))
	suite.Len(suite.base.Instruments(), 1)
}

func (suite *BaseTestSuite) TestStart_Rules() {
	suite.True(errors.HasCode(suite.base.Start(nil), errors.ErrCodeMissingParameter))
	suite.Require().NoError(suite.base.Start(suite.sender))
	suite.True(suite.base.IsRunning())
	suite.True(errors.HasCode(suite.base.Start(suite.sender), errors.ErrCodeConnectorAlreadyRunning))

	suite.NoError(suite.base.Shutdown(context.Background(), nil))
	suite.True(errors.HasCode(suite.base.Start(suite.sender), errors.ErrCodeConnectorStopped))
}

func (suite *BaseTestSuite) TestStart_SetupRunsBeforeRequestsAreAccepted() {
	var setupSender *EventSender

	var setupErr error

	err := suite.base.Start(suite.sender, func() {
		setupSender = suite.base.Sender()
		suite.False(suite.base.IsRunning())
		_, _, setupErr = suite.base.PrepareSubmit("BTCUSD", suite.order("early"), suite.sender)
	})
	suite.Require().NoError(err)

	suite.NotNil(setupSender)
	suite.True(errors.HasCode(setupErr, errors.ErrCodeConnectorNotRunning))
	suite.True(suite.base.IsRunning())

	_, _, err = suite.base.PrepareSubmit("BTCUSD", suite.order("late"), nil)
	suite.NoError(err)
}

func (suite *BaseTestSuite) TestPrepareSubmit_BeforeRun() {
	_, _, err := suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorNotRunning))
}

func (suite *BaseTestSuite) TestPrepareSubmit_ReceiverDropped() {
	suite.Require().NoError(suite.base.Start(suite.sender))
	suite.receiver.Close()

	_, _, err := suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeChannelClosed))
}

func (suite *BaseTestSuite) TestPrepareSubmit_RoundsToInstrument() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	order := types.NewLimitOrder("a", "BTCUSD", types.SideBuy, decimal.RequireFromString("50000.26"), decimal.RequireFromString("0.0109"))
	tracked, sender, err := suite.base.PrepareSubmit("BTCUSD", order, nil)
	suite.Require().NoError(err)
	suite.Equal(suite.base.Sender(), sender)
	suite.True(tracked.Price.Equal(decimal.RequireFromString("50000.5")))
	suite.True(tracked.Quantity.Equal(decimal.RequireFromString("0.01")))
	suite.Equal(types.OrderStatusRequested, tracked.Status)
}

func (suite *BaseTestSuite) TestPrepareSubmit_Rejections() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	_, _, err := suite.base.PrepareSubmit("ETHUSD", types.NewMarketOrder("x", "", types.SideBuy, decimal.NewFromInt(1)), suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownInstrument))

	_, _, err = suite.base.PrepareSubmit("BTCUSD", types.NewMarketOrder("y", "ETHUSD", types.SideBuy, decimal.NewFromInt(1)), suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	tiny := types.NewLimitOrder("z", "BTCUSD", types.SideBuy, decimal.NewFromInt(50000), decimal.RequireFromString("0.0009"))
	_, _, err = suite.base.PrepareSubmit("BTCUSD", tiny, suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	cheap := types.NewLimitOrder("w", "BTCUSD", types.SideBuy, decimal.RequireFromString("0.2"), decimal.NewFromInt(1))
	_, _, err = suite.base.PrepareSubmit("BTCUSD", cheap, suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	_, _, err = suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.Require().NoError(err)
	_, _, err = suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeDuplicateOrderID))

	suite.base.AbortSubmit("a")
	_, ok := suite.base.Order("a")
	suite.False(ok)

	_, _, err = suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeDuplicateOrderID))
}

func (suite *BaseTestSuite) TestEmit_StampsAndSuppressesAfterTerminal() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	order, sender, err := suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.Require().NoError(err)

	suite.NoError(suite.base.Emit(sender, types.NewOrderEvent(types.EventOrderAccepted, order, "")))
	suite.NoError(suite.base.Emit(sender, types.NewOrderEvent(types.EventOrderCanceled, order, "user")))
	// a late cancel acknowledgement for the same order is dropped
	suite.NoError(suite.base.Emit(sender, types.NewOrderEvent(types.EventOrderCanceled, order, "late")))

	events := suite.drain()
	suite.Equal([]types.EventKind{types.EventOrderAccepted, types.EventOrderCanceled}, suite.kinds(events))

	for i, event := range events {
		suite.Equal("sim", event.Venue)
		suite.Equal(uint64(i+1), event.Sequence)
		suite.False(event.Time.IsZero())
	}

	suite.Equal(types.OrderStatusCanceled, events[1].Order.Unwrap().Status)
}

func (suite *BaseTestSuite) TestEmit_InvalidTransitionBecomesInternalError() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	order, sender, err := suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.Require().NoError(err)

	// canceling an order the venue never accepted is not a legal move
	suite.NoError(suite.base.Emit(sender, types.NewOrderEvent(types.EventOrderCanceled, order, "")))

	events := suite.drain()
	suite.Require().Len(events, 1)
	suite.Equal(types.EventConnectorError, events[0].Kind)
	suite.True(events[0].IsInternalError())
	suite.Equal(int(errors.ErrCodeInvalidTransition), events[0].Error.Unwrap().Code)

	tracked, _ := suite.base.Order("a")
	suite.Equal(types.OrderStatusRequested, tracked.Status)
}

func (suite *BaseTestSuite) TestEmit_MarketDataCachesDepth() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	depth := types.Depth{
		BestBid:    decimal.NewFromInt(49999),
		BestBidQty: decimal.NewFromInt(1),
		BestAsk:    decimal.NewFromInt(50001),
		BestAskQty: decimal.NewFromInt(2),
		TickSize:   decimal.RequireFromString("0.5"),
		LotSize:    decimal.RequireFromString("0.001"),
	}
	suite.NoError(suite.base.Emit(nil, types.NewMarketDataEvent("BTCUSD", depth)))

	cached, ok := suite.base.Depth("BTCUSD")
	suite.True(ok)
	suite.True(cached.BestAsk.Equal(decimal.NewFromInt(50001)))
	suite.Len(suite.drain(), 1)
}

func (suite *BaseTestSuite) TestPrepareCancel_UnknownAndTerminal() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	ghost := types.Order{ID: "ghost"} //nolint:exhaustruct
	tracked, active, sender, err := suite.base.PrepareCancel("BTCUSD", ghost, suite.sender)
	suite.Require().NoError(err)
	suite.False(active)
	suite.Equal("BTCUSD", tracked.Symbol)

	suite.base.RejectCancel(sender, tracked, "unknown order")

	events := suite.drain()
	suite.Require().Len(events, 1)
	suite.Equal(types.EventCancelRejected, events[0].Kind)
	suite.Equal("ghost", events[0].OrderID())

	_, _, _, err = suite.base.PrepareCancel("BTCUSD", types.Order{}, suite.sender) //nolint:exhaustruct
	suite.True(errors.HasCode(err, errors.ErrCodeMissingParameter))
}

func (suite *BaseTestSuite) TestReconcile_FilledResponseExpandsLifecycle() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	_, sender, err := suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.Require().NoError(err)

	report := ExecutionReport{
		OrderID:          "a",
		ExchangeOrderID:  "1001",
		Status:           types.OrderStatusFilled,
		ExecutedQuantity: decimal.RequireFromString("0.01"),
		QuoteQuantity:    decimal.NewFromInt(500),
		AveragePrice:     decimal.Zero,
		Reason:           "",
		Time:             time.Now(),
	}
	suite.NoError(suite.base.Reconcile(sender, report))
	// the same report seen again by the poller publishes nothing
	suite.NoError(suite.base.Reconcile(sender, report))

	events := suite.drain()
	suite.Equal([]types.EventKind{types.EventOrderAccepted, types.EventOrderFilled}, suite.kinds(events))
	suite.Equal("1001", events[1].Order.Unwrap().ExchangeOrderID)
	suite.True(events[1].Fill.Unwrap().Price.Equal(decimal.NewFromInt(50000)))
}

func (suite *BaseTestSuite) TestReconcile_PartialThenCanceled() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	_, sender, err := suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.Require().NoError(err)

	base := ExecutionReport{
		OrderID:          "a",
		ExchangeOrderID:  "1001",
		Status:           types.OrderStatusAccepted,
		ExecutedQuantity: decimal.Zero,
		QuoteQuantity:    decimal.Zero,
		AveragePrice:     decimal.Zero,
		Reason:           "",
		Time:             time.Time{},
	}
	suite.NoError(suite.base.Reconcile(sender, base))

	partial := base
	partial.Status = types.OrderStatusPartiallyFilled
	partial.ExecutedQuantity = decimal.RequireFromString("0.004")
	partial.AveragePrice = decimal.NewFromInt(49990)
	suite.NoError(suite.base.Reconcile(sender, partial))

	canceled := partial
	canceled.Status = types.OrderStatusCanceled
	canceled.Reason = "canceled by user"
	suite.NoError(suite.base.Reconcile(sender, canceled))

	events := suite.drain()
	suite.Equal([]types.EventKind{
		types.EventOrderAccepted, types.EventOrderPartiallyFilled, types.EventOrderCanceled,
	}, suite.kinds(events))

	final := events[2].Order.Unwrap()
	suite.True(final.ExecutedQuantity.Equal(decimal.RequireFromString("0.004")))
	suite.True(final.AveragePrice.Equal(decimal.NewFromInt(49990)))

	suite.True(errors.HasCode(suite.base.Reconcile(sender, ExecutionReport{OrderID: "nope"}), errors.ErrCodeUnknownOrder)) //nolint:exhaustruct
}

func (suite *BaseTestSuite) TestShutdown_DrainsWorkAndClosesSender() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	var finished atomic.Bool

	release := make(chan struct{})
	suite.base.Go(func() {
		<-release
		finished.Store(true)
	})

	stopped := make(chan struct{})
	suite.base.GoBackground(func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	suite.NoError(suite.base.Shutdown(context.Background(), func() { close(release) }))
	suite.True(finished.Load())
	<-stopped
	suite.True(suite.base.Sender().IsClosed())

	_, _, err := suite.base.PrepareSubmit("BTCUSD", suite.order("a"), suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorStopped))

	// once the engine's own handle closes the stream ends
	suite.sender.Close()
	_, err = suite.receiver.Recv(context.Background())
	suite.True(errors.HasCode(err, errors.ErrCodeChannelClosed))
}

func (suite *BaseTestSuite) TestShutdown_TimesOut() {
	suite.Require().NoError(suite.base.Start(suite.sender))

	release := make(chan struct{})
	defer close(release)

	suite.base.Go(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := suite.base.Shutdown(ctx, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeTimeout))
}

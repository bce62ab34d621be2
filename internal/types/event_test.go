package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type EventTestSuite struct {
	suite.Suite
	order Order
}

func TestEventSuite(t *testing.T) {
	suite.Run(t, new(EventTestSuite))
}

func (suite *EventTestSuite) SetupTest() {
	suite.order = NewLimitOrder("order-1", "BTCUSD", SideBuy, decimal.NewFromInt(50000), decimal.RequireFromString("0.01"))
}

func (suite *EventTestSuite) TestOrderEventCarriesOrder() {
	event := NewOrderEvent(EventOrderAccepted, suite.order, "")
	suite.Equal(EventOrderAccepted, event.Kind)
	suite.Equal("order-1", event.OrderID())
	suite.Equal("BTCUSD", event.Symbol)
	suite.True(event.Fill.IsNone())
	suite.False(event.IsTerminal())
}

func (suite *EventTestSuite) TestFillEventKind() {
	partial := NewFillEvent(suite.order, Fill{
		TradeID:  "t1",
		Price:    decimal.NewFromInt(50000),
		Quantity: decimal.RequireFromString("0.004"),
		Fee:      decimal.Zero,
		FeeAsset: "USD",
		IsMaker:  true,
	})
	suite.Equal(EventOrderPartiallyFilled, partial.Kind)
	suite.False(partial.IsTerminal())

	suite.order.ExecutedQuantity = decimal.RequireFromString("0.004")
	final := NewFillEvent(suite.order, Fill{
		TradeID:  "t2",
		Price:    decimal.NewFromInt(50000),
		Quantity: decimal.RequireFromString("0.006"),
		Fee:      decimal.Zero,
		FeeAsset: "USD",
		IsMaker:  true,
	})
	suite.Equal(EventOrderFilled, final.Kind)
	suite.True(final.IsTerminal())
	suite.True(final.Fill.Unwrap().Value().Equal(decimal.NewFromInt(300)))
}

func (suite *EventTestSuite) TestConnectorErrorOrigin() {
	internal := NewConnectorErrorEvent("", ErrorOriginInternal, 501, "stream dropped")
	suite.True(internal.IsInternalError())
	suite.Empty(internal.OrderID())

	exchange := NewConnectorErrorEvent("BTCUSD", ErrorOriginExchange, -1021, "timestamp outside recv window")
	suite.False(exchange.IsInternalError())
	suite.Equal(ErrorOriginExchange, exchange.Error.Unwrap().Origin)
}

func (suite *EventTestSuite) TestCancelRejectedIsNotOrderEvent() {
	event := NewCancelRejectedEvent(suite.order, "unknown order")
	suite.False(event.Kind.IsOrderEvent())
	suite.False(event.IsTerminal())
	suite.Equal("order-1", event.OrderID())
}

func (suite *EventTestSuite) TestMarketDataEvent() {
	depth := Depth{
		BestBid:    decimal.NewFromInt(100),
		BestBidQty: decimal.NewFromInt(1),
		BestAsk:    decimal.NewFromInt(102),
		BestAskQty: decimal.NewFromInt(1),
		TickSize:   decimal.RequireFromString("0.5"),
		LotSize:    decimal.RequireFromString("0.001"),
	}
	event := NewMarketDataEvent("BTCUSD", depth)
	suite.Equal(EventMarketData, event.Kind)
	suite.True(event.MarketData.Unwrap().Mid().Equal(decimal.NewFromInt(101)))
}

func (suite *EventTestSuite) TestInstrumentRounding() {
	instrument, err := NewInstrument("sim", "BTCUSD", decimal.RequireFromString("0.5"), decimal.RequireFromString("0.001"))
	suite.Require().NoError(err)

	suite.True(instrument.RoundPrice(decimal.RequireFromString("50000.26")).Equal(decimal.RequireFromString("50000.5")))
	suite.True(instrument.RoundPrice(decimal.RequireFromString("50000.24")).Equal(decimal.NewFromInt(50000)))
	suite.True(instrument.RoundQuantity(decimal.RequireFromString("0.0109")).Equal(decimal.RequireFromString("0.01")))
	suite.Equal(int64(100001), instrument.PriceTicks(decimal.RequireFromString("50000.5")))

	_, err = NewInstrument("sim", "BTCUSD", decimal.Zero, decimal.RequireFromString("0.001"))
	suite.Error(err)
	_, err = NewInstrument("sim", "", decimal.NewFromInt(1), decimal.NewFromInt(1))
	suite.Error(err)
}

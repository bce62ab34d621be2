package binance

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-connector/internal/connector"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

// Mock implementations for testing

type createParams struct {
	symbol   string
	side     binance.SideType
	orderTyp binance.OrderType
	quantity string
	price    string
	tif      binance.TimeInForceType
	clientID string
}

// mockBinanceClient implements BinanceClient. Every service call is answered by the scripted
// function of the client, under its lock.
type mockBinanceClient struct {
	mu       sync.Mutex
	create   func(params createParams) (*binance.CreateOrderResponse, error)
	cancel   func(symbol, clientID string) (*binance.CancelOrderResponse, error)
	get      func(symbol, clientID string) (*binance.Order, error)
	account  error
	creates  []createParams
	cancels  []string
	accounts int
}

func newMockBinanceClient() *mockBinanceClient {
	return &mockBinanceClient{}
}

func (m *mockBinanceClient) NewCreateOrderService() CreateOrderService {
	return &mockCreateOrderService{client: m}
}

func (m *mockBinanceClient) NewCancelOrderService() CancelOrderService {
	return &mockCancelOrderService{client: m}
}

func (m *mockBinanceClient) NewGetOrderService() GetOrderService {
	return &mockGetOrderService{client: m}
}

func (m *mockBinanceClient) NewGetAccountService() GetAccountService {
	return &mockGetAccountService{client: m}
}

func (m *mockBinanceClient) NewListOpenOrdersService() ListOpenOrdersService {
	return &mockListOpenOrdersService{}
}

func (m *mockBinanceClient) createCalls() []createParams {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]createParams(nil), m.creates...)
}

// mockCreateOrderService implements CreateOrderService
type mockCreateOrderService struct {
	client *mockBinanceClient
	params createParams
}

func (m *mockCreateOrderService) Symbol(symbol string) CreateOrderService {
	m.params.symbol = symbol
	return m
}

func (m *mockCreateOrderService) Side(side binance.SideType) CreateOrderService {
	m.params.side = side
	return m
}

func (m *mockCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	m.params.orderTyp = orderType
	return m
}

func (m *mockCreateOrderService) Quantity(quantity string) CreateOrderService {
	m.params.quantity = quantity
	return m
}

func (m *mockCreateOrderService) Price(price string) CreateOrderService {
	m.params.price = price
	return m
}

func (m *mockCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	m.params.tif = tif
	return m
}

func (m *mockCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	m.params.clientID = id
	return m
}

func (m *mockCreateOrderService) Do(_ context.Context) (*binance.CreateOrderResponse, error) {
	m.client.mu.Lock()
	defer m.client.mu.Unlock()

	m.client.creates = append(m.client.creates, m.params)
	if m.client.create == nil {
		return &binance.CreateOrderResponse{OrderID: 1, ClientOrderID: m.params.clientID, Status: binance.OrderStatusTypeNew}, nil
	}

	return m.client.create(m.params)
}

// mockCancelOrderService implements CancelOrderService
type mockCancelOrderService struct {
	client   *mockBinanceClient
	symbol   string
	clientID string
}

func (m *mockCancelOrderService) Symbol(symbol string) CancelOrderService {
	m.symbol = symbol
	return m
}

func (m *mockCancelOrderService) OrigClientOrderID(id string) CancelOrderService {
	m.clientID = id
	return m
}

func (m *mockCancelOrderService) Do(_ context.Context) (*binance.CancelOrderResponse, error) {
	m.client.mu.Lock()
	defer m.client.mu.Unlock()

	m.client.cancels = append(m.client.cancels, m.clientID)
	if m.client.cancel == nil {
		return &binance.CancelOrderResponse{OrderID: 1, OrigClientOrderID: m.clientID, Status: binance.OrderStatusTypeCanceled}, nil
	}

	return m.client.cancel(m.symbol, m.clientID)
}

// mockGetOrderService implements GetOrderService
type mockGetOrderService struct {
	client   *mockBinanceClient
	symbol   string
	clientID string
}

func (m *mockGetOrderService) Symbol(symbol string) GetOrderService {
	m.symbol = symbol
	return m
}

func (m *mockGetOrderService) OrigClientOrderID(id string) GetOrderService {
	m.clientID = id
	return m
}

func (m *mockGetOrderService) Do(_ context.Context) (*binance.Order, error) {
	m.client.mu.Lock()
	defer m.client.mu.Unlock()

	if m.client.get == nil {
		return nil, &common.APIError{Code: apiCodeNoSuchOrder, Message: "Order does not exist."}
	}

	return m.client.get(m.symbol, m.clientID)
}

// mockGetAccountService implements GetAccountService
type mockGetAccountService struct {
	client *mockBinanceClient
}

func (m *mockGetAccountService) Do(_ context.Context) (*binance.Account, error) {
	m.client.mu.Lock()
	defer m.client.mu.Unlock()

	m.client.accounts++

	return &binance.Account{}, m.client.account
}

// mockListOpenOrdersService implements ListOpenOrdersService
type mockListOpenOrdersService struct {
	symbol string
}

func (m *mockListOpenOrdersService) Symbol(symbol string) ListOpenOrdersService {
	m.symbol = symbol
	return m
}

func (m *mockListOpenOrdersService) Do(_ context.Context) ([]*binance.Order, error) {
	return nil, nil
}

type BinanceConnectorTestSuite struct {
	suite.Suite
	config    BinanceConnectorConfig
	client    *mockBinanceClient
	connector *BinanceConnector
	sender    *connector.EventSender
	receiver  *connector.EventReceiver
}

func TestBinanceConnectorSuite(t *testing.T) {
	suite.Run(t, new(BinanceConnectorTestSuite))
}

func (suite *BinanceConnectorTestSuite) SetupTest() {
	suite.config = BinanceConnectorConfig{ //nolint:exhaustruct
		ApiKey:            "test-api-key",
		SecretKey:         "test-secret-key",
		DisableMarketData: true,
		Workers:           2,
		PollIntervalMs:    20,
		RequestsPerSecond: 1000,
		MaxRetries:        0,
	}
	suite.client = newMockBinanceClient()
	suite.sender, suite.receiver = connector.NewEventChannel()
}

func (suite *BinanceConnectorTestSuite) TearDownTest() {
	if suite.connector != nil {
		suite.NoError(suite.connector.Stop(context.Background()))
		suite.connector = nil
	}
}

func (suite *BinanceConnectorTestSuite) start() {
	b := newBinanceConnectorWithClient("binance", suite.config, suite.client, logger.NewNopLogger())
	suite.Require().NoError(b.Add("BTCUSDT", decimal.RequireFromString("0.01"), decimal.RequireFromString("0.00001")))
	suite.Require().NoError(b.Run(suite.sender))

	suite.connector = b
}

func (suite *BinanceConnectorTestSuite) next() types.LiveEvent {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	event, err := suite.receiver.Recv(ctx)
	suite.Require().NoError(err)

	return event
}

func limitBuy(id string) types.Order {
	return types.NewLimitOrder(id, "BTCUSDT", types.SideBuy, decimal.RequireFromString("50000"), decimal.RequireFromString("0.01"))
}

// Unit Tests - Config

func (suite *BinanceConnectorTestSuite) TestParseConfig_Valid() {
	config, err := ParseConfig(`{"apiKey": "test-api-key", "secretKey": "test-secret-key", "testnet": true}`)
	suite.Require().NoError(err)
	suite.Equal("test-api-key", config.ApiKey)
	suite.True(config.Testnet)

	resolved := config.withDefaults()
	suite.Equal(TestnetBaseURL, resolved.BaseURL)
	suite.Equal(TestnetWsURL, resolved.WsURL)
	suite.Equal(4, resolved.Workers)
}

func (suite *BinanceConnectorTestSuite) TestParseConfig_MissingSecretKey() {
	config, err := ParseConfig(`{"apiKey": "test-api-key"}`)
	suite.Error(err)
	suite.Nil(config)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *BinanceConnectorTestSuite) TestParseConfig_InvalidJSON() {
	config, err := ParseConfig(`{invalid json}`)
	suite.Error(err)
	suite.Nil(config)
	suite.Contains(err.Error(), "failed to parse binance config")
}

func (suite *BinanceConnectorTestSuite) TestNewBinanceConnector_BaseURLOverride() {
	b, err := NewBinanceConnector("binance", BinanceConnectorConfig{ //nolint:exhaustruct
		ApiKey:    "k",
		SecretKey: "s",
		Testnet:   true,
		BaseURL:   "http://127.0.0.1:9999",
	}, nil)
	suite.Require().NoError(err)
	suite.Equal("http://127.0.0.1:9999", b.config.BaseURL)
}

func (suite *BinanceConnectorTestSuite) TestRunWithoutCredentials() {
	suite.config.SecretKey = ""
	b := newBinanceConnectorWithClient("binance", suite.config, suite.client, nil)

	err := b.Run(suite.sender)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
	suite.False(b.IsRunning())
}

// Unit Tests - Mapping

func (suite *BinanceConnectorTestSuite) TestMapBinanceOrderStatus() {
	tests := []struct {
		status   binance.OrderStatusType
		expected types.OrderStatus
	}{
		{binance.OrderStatusTypeNew, types.OrderStatusAccepted},
		{binance.OrderStatusTypePendingCancel, types.OrderStatusAccepted},
		{binance.OrderStatusTypePartiallyFilled, types.OrderStatusPartiallyFilled},
		{binance.OrderStatusTypeFilled, types.OrderStatusFilled},
		{binance.OrderStatusTypeCanceled, types.OrderStatusCanceled},
		{binance.OrderStatusTypeExpired, types.OrderStatusCanceled},
		{binance.OrderStatusTypeRejected, types.OrderStatusRejected},
		{"SOMETHING_NEW", types.OrderStatusAccepted},
	}

	for _, tc := range tests {
		suite.Equal(tc.expected, mapBinanceOrderStatus(tc.status), string(tc.status))
	}
}

func (suite *BinanceConnectorTestSuite) TestMapOrderType() {
	order := limitBuy("a")
	suite.Equal(binance.OrderTypeLimit, mapOrderType(order))

	order.TimeInForce = types.TimeInForceGTX
	suite.Equal(binance.OrderTypeLimitMaker, mapOrderType(order))

	market := types.NewMarketOrder("b", "BTCUSDT", types.SideSell, decimal.RequireFromString("1"))
	suite.Equal(binance.OrderTypeMarket, mapOrderType(market))
	suite.Equal(binance.SideTypeSell, mapSide(market.Side))
	suite.Equal(binance.TimeInForceTypeIOC, mapTimeInForce(market.TimeInForce))
}

func (suite *BinanceConnectorTestSuite) TestIsTransient() {
	suite.True(isTransient(stderrors.New("connection reset by peer")))
	suite.True(isTransient(&common.APIError{Code: 0, Message: "<html>503</html>"}))
	suite.True(isTransient(&common.APIError{Code: apiCodeTooManyRequests, Message: "Too many requests"}))
	suite.False(isTransient(&common.APIError{Code: -2010, Message: "Account has insufficient balance"}))
}

// Integration Tests - Order entry

func (suite *BinanceConnectorTestSuite) TestSubmitLimitAccepted() {
	suite.start()

	suite.Require().NoError(suite.connector.Submit("BTCUSDT", limitBuy("o-1"), nil))

	event := suite.next()
	suite.Equal(types.EventOrderAccepted, event.Kind)
	suite.Equal("binance", event.Venue)
	suite.Equal("1", event.Order.Unwrap().ExchangeOrderID)
	suite.Equal(types.OrderStatusAccepted, event.Order.Unwrap().Status)

	calls := suite.client.createCalls()
	suite.Require().Len(calls, 1)
	suite.Equal(createParams{
		symbol:   "BTCUSDT",
		side:     binance.SideTypeBuy,
		orderTyp: binance.OrderTypeLimit,
		quantity: "0.01",
		price:    "50000",
		tif:      binance.TimeInForceTypeGTC,
		clientID: "o-1",
	}, calls[0])
}

func (suite *BinanceConnectorTestSuite) TestSubmitMarketFilledInResponse() {
	suite.client.create = func(params createParams) (*binance.CreateOrderResponse, error) {
		return &binance.CreateOrderResponse{ //nolint:exhaustruct
			OrderID:                  7,
			ClientOrderID:            params.clientID,
			ExecutedQuantity:         "0.01",
			CummulativeQuoteQuantity: "500.1",
			Status:                   binance.OrderStatusTypeFilled,
		}, nil
	}
	suite.start()

	order := types.NewMarketOrder("m-1", "BTCUSDT", types.SideBuy, decimal.RequireFromString("0.01"))
	suite.Require().NoError(suite.connector.Submit("BTCUSDT", order, nil))

	suite.Equal(types.EventOrderAccepted, suite.next().Kind)

	filled := suite.next()
	suite.Equal(types.EventOrderFilled, filled.Kind)
	suite.True(decimal.RequireFromString("50010").Equal(filled.Fill.Unwrap().Price))
	suite.True(decimal.RequireFromString("0.01").Equal(filled.Order.Unwrap().ExecutedQuantity))

	calls := suite.client.createCalls()
	suite.Require().Len(calls, 1)
	suite.Empty(calls[0].price)
	suite.Empty(calls[0].tif)
}

func (suite *BinanceConnectorTestSuite) TestSubmitRejectedByVenue() {
	suite.client.create = func(createParams) (*binance.CreateOrderResponse, error) {
		return nil, &common.APIError{Code: -2010, Message: "Account has insufficient balance for requested action."}
	}
	suite.start()

	suite.Require().NoError(suite.connector.Submit("BTCUSDT", limitBuy("r-1"), nil))

	event := suite.next()
	suite.Equal(types.EventOrderRejected, event.Kind)
	suite.Contains(event.Reason, "-2010")
	suite.Equal(types.OrderStatusRejected, event.Order.Unwrap().Status)
}

func (suite *BinanceConnectorTestSuite) TestTransientFailureRetried() {
	suite.config.MaxRetries = 2

	failures := 1
	suite.client.create = func(params createParams) (*binance.CreateOrderResponse, error) {
		if failures > 0 {
			failures--

			return nil, &common.APIError{Code: 0, Message: "<html>503 Service Unavailable</html>"}
		}

		return &binance.CreateOrderResponse{OrderID: 2, ClientOrderID: params.clientID, Status: binance.OrderStatusTypeNew}, nil //nolint:exhaustruct
	}
	suite.start()

	suite.Require().NoError(suite.connector.Submit("BTCUSDT", limitBuy("t-1"), nil))

	suite.Equal(types.EventOrderAccepted, suite.next().Kind)
	suite.Len(suite.client.createCalls(), 2)
}

func (suite *BinanceConnectorTestSuite) TestTransportFailureResolvedByPoll() {
	suite.client.create = func(createParams) (*binance.CreateOrderResponse, error) {
		return nil, stderrors.New("connection reset by peer")
	}
	suite.start()

	suite.Require().NoError(suite.connector.Submit("BTCUSDT", limitBuy("u-1"), nil))

	failure := suite.next()
	suite.Equal(types.EventConnectorError, failure.Kind)
	suite.True(failure.IsInternalError())
	suite.Equal(int(errors.ErrCodeRequestFailed), failure.Error.Unwrap().Code)

	// the venue never saw the order
	rejected := suite.next()
	suite.Equal(types.EventOrderRejected, rejected.Kind)
	suite.Equal("order unknown to venue", rejected.Reason)
}

func (suite *BinanceConnectorTestSuite) TestTransportFailureOrderFoundByPoll() {
	suite.client.create = func(createParams) (*binance.CreateOrderResponse, error) {
		return nil, stderrors.New("i/o timeout")
	}
	suite.client.get = func(_, clientID string) (*binance.Order, error) {
		return &binance.Order{ //nolint:exhaustruct
			ClientOrderID:            clientID,
			OrderID:                  99,
			ExecutedQuantity:         "0.004",
			CummulativeQuoteQuantity: "200",
			Status:                   binance.OrderStatusTypePartiallyFilled,
		}, nil
	}
	suite.start()

	suite.Require().NoError(suite.connector.Submit("BTCUSDT", limitBuy("u-2"), nil))

	suite.Equal(types.EventConnectorError, suite.next().Kind)

	accepted := suite.next()
	suite.Equal(types.EventOrderAccepted, accepted.Kind)
	suite.Equal("99", accepted.Order.Unwrap().ExchangeOrderID)

	partial := suite.next()
	suite.Equal(types.EventOrderPartiallyFilled, partial.Kind)
	suite.True(decimal.RequireFromString("50000").Equal(partial.Fill.Unwrap().Price))
	suite.True(decimal.RequireFromString("0.004").Equal(partial.Fill.Unwrap().Quantity))
}

func (suite *BinanceConnectorTestSuite) TestPollReportsFills() {
	var mu sync.Mutex
	status := binance.OrderStatusTypeNew
	executed := "0"
	quote := "0"

	suite.client.get = func(_, clientID string) (*binance.Order, error) {
		mu.Lock()
		defer mu.Unlock()

		return &binance.Order{ //nolint:exhaustruct
			ClientOrderID:            clientID,
			OrderID:                  1,
			ExecutedQuantity:         executed,
			CummulativeQuoteQuantity: quote,
			Status:                   status,
		}, nil
	}
	suite.start()

	suite.Require().NoError(suite.connector.Submit("BTCUSDT", limitBuy("p-1"), nil))
	suite.Equal(types.EventOrderAccepted, suite.next().Kind)

	mu.Lock()
	status, executed, quote = binance.OrderStatusTypeFilled, "0.01", "500"
	mu.Unlock()

	filled := suite.next()
	suite.Equal(types.EventOrderFilled, filled.Kind)
	suite.True(decimal.RequireFromString("0.01").Equal(filled.Fill.Unwrap().Quantity))
	suite.Equal("1-0.01", filled.Fill.Unwrap().TradeID)

	// later polls of a terminal order publish nothing
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := suite.receiver.Recv(ctx)
	suite.ErrorIs(err, context.DeadlineExceeded)
}

func (suite *BinanceConnectorTestSuite) TestCancel() {
	suite.start()

	suite.Require().NoError(suite.connector.Submit("BTCUSDT", limitBuy("c-1"), nil))
	suite.Equal(types.EventOrderAccepted, suite.next().Kind)

	suite.Require().NoError(suite.connector.Cancel("BTCUSDT", types.Order{ID: "c-1", Symbol: "BTCUSDT"}, nil)) //nolint:exhaustruct

	canceled := suite.next()
	suite.Equal(types.EventOrderCanceled, canceled.Kind)
	suite.Equal("canceled by user", canceled.Reason)
	suite.Equal(types.OrderStatusCanceled, canceled.Order.Unwrap().Status)
}

func (suite *BinanceConnectorTestSuite) TestCancelRefusedByVenue() {
	suite.client.cancel = func(string, string) (*binance.CancelOrderResponse, error) {
		return nil, &common.APIError{Code: -2011, Message: "Unknown order sent."}
	}
	suite.start()

	suite.Require().NoError(suite.connector.Submit("BTCUSDT", limitBuy("c-2"), nil))
	suite.Equal(types.EventOrderAccepted, suite.next().Kind)

	suite.Require().NoError(suite.connector.Cancel("BTCUSDT", types.Order{ID: "c-2", Symbol: "BTCUSDT"}, nil)) //nolint:exhaustruct

	event := suite.next()
	suite.Equal(types.EventCancelRejected, event.Kind)
	suite.Contains(event.Reason, "-2011")
	suite.Equal(types.OrderStatusAccepted, event.Order.Unwrap().Status)
}

func (suite *BinanceConnectorTestSuite) TestCancelUnknownOrder() {
	suite.start()

	suite.Require().NoError(suite.connector.Cancel("BTCUSDT", types.Order{ID: "missing", Symbol: "BTCUSDT"}, nil)) //nolint:exhaustruct

	event := suite.next()
	suite.Equal(types.EventCancelRejected, event.Kind)
	suite.Equal("unknown order", event.Reason)
	suite.Equal("BTCUSDT", event.Symbol)

	suite.client.mu.Lock()
	suite.Empty(suite.client.cancels)
	suite.client.mu.Unlock()
}

func (suite *BinanceConnectorTestSuite) TestAccountCheckFailure() {
	suite.client.account = stderrors.New("dial tcp: connection refused")
	suite.start()

	event := suite.next()
	suite.Equal(types.EventConnectorError, event.Kind)
	suite.True(event.IsInternalError())
	suite.Contains(event.Reason, "account check failed")
}

func (suite *BinanceConnectorTestSuite) TestAccountCheckRefusedByVenue() {
	suite.client.account = &common.APIError{Code: -2015, Message: "Invalid API-key, IP, or permissions for action."}
	suite.start()

	event := suite.next()
	suite.Equal(types.EventConnectorError, event.Kind)
	suite.False(event.IsInternalError())

	failure := event.Error.Unwrap()
	suite.Equal(types.ErrorOriginExchange, failure.Origin)
	suite.Equal(-2015, failure.Code)
	suite.Contains(failure.Message, "account check failed")
	suite.Contains(failure.Message, "Invalid API-key")
}

func (suite *BinanceConnectorTestSuite) TestStopRefusesNewWork() {
	suite.start()
	suite.Require().NoError(suite.connector.Stop(context.Background()))

	err := suite.connector.Submit("BTCUSDT", limitBuy("s-1"), nil)
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorStopped), "got %v", err)

	suite.connector = nil
}

func (suite *BinanceConnectorTestSuite) TestManyConcurrentSubmits() {
	suite.start()

	const count = 200

	var wg sync.WaitGroup
	for i := range count {
		wg.Go(func() {
			id := fmt.Sprintf("many-%d", i)
			suite.NoError(suite.connector.Submit("BTCUSDT", limitBuy(id), nil))
		})
	}

	wg.Wait()

	seen := make(map[string]bool)
	for range count {
		event := suite.next()
		suite.Equal(types.EventOrderAccepted, event.Kind)
		seen[event.OrderID()] = true
	}

	suite.Len(seen, count)
}

// Integration Tests - Market data

func (suite *BinanceConnectorTestSuite) TestBookTickerStream() {
	upgrader := websocket.Upgrader{} //nolint:exhaustruct

	var path string

	var pathMu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathMu.Lock()
		path = r.URL.Path
		pathMu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"u":400900217,"s":"BTCUSDT","b":"49999.50","B":"1.5","a":"50000.10","A":"2.25"}`))

		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	suite.config.DisableMarketData = false
	suite.config.WsURL = "ws" + strings.TrimPrefix(server.URL, "http")
	suite.start()

	event := suite.next()
	suite.Equal(types.EventMarketData, event.Kind)

	depth := event.MarketData.Unwrap()
	suite.True(decimal.RequireFromString("49999.5").Equal(depth.BestBid))
	suite.True(decimal.RequireFromString("2.25").Equal(depth.BestAskQty))
	suite.True(decimal.RequireFromString("0.01").Equal(depth.TickSize))

	cached, ok := suite.connector.Depth("BTCUSDT")
	suite.True(ok)
	suite.True(depth.BestAsk.Equal(cached.BestAsk))

	pathMu.Lock()
	suite.Equal("/ws/btcusdt@bookTicker", path)
	pathMu.Unlock()
}

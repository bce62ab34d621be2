// Package mockserver provides a mock Binance spot exchange for testing.
// It implements the REST order entry endpoints and the bookTicker stream the Binance connector uses.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-connector/internal/marketsim"
	"github.com/shopspring/decimal"
)

// Binance API error codes returned by the mock.
const (
	CodeUnknown          = -1000
	CodeInvalidSymbol    = -1121
	CodeNewOrderRejected = -2010
	CodeCancelRejected   = -2011
	CodeNoSuchOrder      = -2013
)

// MockBinanceServer provides a mock Binance server for testing.
// It supports both REST API endpoints and WebSocket streaming.
type MockBinanceServer struct {
	mu sync.RWMutex

	// HTTP server
	httpServer *http.Server
	listener   net.Listener

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// State management
	balances   map[string]*Balance
	orders     map[int64]*Order
	clientIDs  map[string]int64
	trades     []*Trade
	orderIDSeq int64
	tradeIDSeq int64
	tradeFees  map[string]*TradeFee
	symbolInfo map[string]*SymbolInfo

	// Market data
	prices   map[string]float64
	spread   float64
	updateID int64
	quotes   *MarketDataGeneratorConfig

	// Fault injection
	failNext     int
	loseNext     int
	rejectReason string
	requests     map[string]int

	// WebSocket connections per upper case symbol
	subscribers map[string]map[*subscriber]struct{}
	wsMu        sync.RWMutex

	// Streaming configuration
	streamInterval time.Duration
	stopStreaming  chan struct{}
	stopOnce       sync.Once
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.WriteJSON(v)
}

// Balance represents an account balance.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeLimitMaker OrderType = "LIMIT_MAKER"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order represents a trading order.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	Price         float64
	Status        OrderStatus
	TimeInForce   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExecutedQty   float64
	CummulateQty  float64
	// reservePrice is the price quote funds were locked at for a buy.
	reservePrice  float64
}

func (o *Order) isOpen() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// Trade represents an executed trade.
type Trade struct {
	ID         int64
	OrderID    int64
	Symbol     string
	Price      float64
	Quantity   float64
	Commission float64
	Time       time.Time
	IsBuyer    bool
	IsMaker    bool
}

// TradeFee represents trading fee configuration.
type TradeFee struct {
	Symbol          string
	MakerCommission float64
	TakerCommission float64
}

// SymbolInfo represents symbol trading information.
type SymbolInfo struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
}

// MarketDataGeneratorConfig drives the streamed quotes from a generated path.
type MarketDataGeneratorConfig struct {
	Symbols      []string
	InitialPrice float64
	Volatility   float64
	Seed         int64
}

// ServerConfig holds configuration for the mock server.
type ServerConfig struct {
	// InitialBalances maps asset to initial balance amount
	InitialBalances map[string]float64
	// TradeFees maps symbol to fee configuration
	TradeFees map[string]*TradeFee
	// InitialPrices maps symbol to its starting bid price
	InitialPrices map[string]float64
	// Spread is the distance between bid and ask. Defaults to 0.01.
	Spread float64
	// MarketData moves the prices along a generated path when set
	MarketData *MarketDataGeneratorConfig
	// StreamInterval is the interval between generated price updates
	StreamInterval time.Duration
}

// NewMockBinanceServer creates a new mock Binance server.
func NewMockBinanceServer(config ServerConfig) *MockBinanceServer {
	server := &MockBinanceServer{
		mu: sync.RWMutex{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		balances:       make(map[string]*Balance),
		orders:         make(map[int64]*Order),
		clientIDs:      make(map[string]int64),
		trades:         make([]*Trade, 0),
		orderIDSeq:     1000,
		tradeIDSeq:     1,
		tradeFees:      make(map[string]*TradeFee),
		symbolInfo:     make(map[string]*SymbolInfo),
		prices:         make(map[string]float64),
		spread:         config.Spread,
		quotes:         config.MarketData,
		requests:       make(map[string]int),
		subscribers:    make(map[string]map[*subscriber]struct{}),
		wsMu:           sync.RWMutex{},
		streamInterval: config.StreamInterval,
		stopStreaming:  make(chan struct{}),
		httpServer:     nil,
		listener:       nil,
	}

	if server.spread <= 0 {
		server.spread = 0.01
	}

	// Initialize balances
	for asset, amount := range config.InitialBalances {
		server.balances[asset] = &Balance{
			Asset:  asset,
			Free:   amount,
			Locked: 0,
		}
	}

	// Initialize trade fees
	for symbol, fee := range config.TradeFees {
		server.tradeFees[symbol] = fee
	}

	// Initialize default trade fees if not provided
	if len(server.tradeFees) == 0 {
		server.tradeFees["BTCUSDT"] = &TradeFee{Symbol: "BTCUSDT", MakerCommission: 0.001, TakerCommission: 0.001}
		server.tradeFees["ETHUSDT"] = &TradeFee{Symbol: "ETHUSDT", MakerCommission: 0.001, TakerCommission: 0.001}
	}

	// Initialize symbol info
	for symbol := range server.tradeFees {
		server.initSymbolInfo(symbol)
	}

	for symbol, price := range config.InitialPrices {
		server.prices[symbol] = price
		server.initSymbolInfo(symbol)
	}

	// Set default stream interval
	if server.streamInterval == 0 {
		server.streamInterval = 100 * time.Millisecond
	}

	if config.MarketData != nil {
		for _, symbol := range config.MarketData.Symbols {
			if _, ok := server.prices[symbol]; !ok {
				server.prices[symbol] = config.MarketData.InitialPrice
			}

			server.initSymbolInfo(symbol)
		}
	}

	return server
}

// initSymbolInfo initializes symbol information based on symbol name.
func (s *MockBinanceServer) initSymbolInfo(symbol string) {
	if _, ok := s.symbolInfo[symbol]; ok {
		return
	}

	// Common patterns: BTCUSDT, ETHBTC, etc.
	quoteAssets := []string{"USDT", "BUSD", "BTC", "ETH", "BNB"}
	for _, quote := range quoteAssets {
		if strings.HasSuffix(symbol, quote) && symbol != quote {
			base := strings.TrimSuffix(symbol, quote)
			s.symbolInfo[symbol] = &SymbolInfo{
				Symbol:     symbol,
				BaseAsset:  base,
				QuoteAsset: quote,
			}

			return
		}
	}
	// Default fallback
	s.symbolInfo[symbol] = &SymbolInfo{
		Symbol:     symbol,
		BaseAsset:  symbol[:len(symbol)/2],
		QuoteAsset: symbol[len(symbol)/2:],
	}
}

// Start starts the mock server on the given address.
// If address is empty or ":0", a random available port is used.
func (s *MockBinanceServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener

	router := mux.NewRouter()

	// REST API endpoints
	api := router.PathPrefix("/api/v3").Subrouter()
	api.Use(s.faults)
	api.HandleFunc("/account", s.handleAccount).Methods("GET")
	api.HandleFunc("/order", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/order", s.handleCancelOrder).Methods("DELETE")
	api.HandleFunc("/order", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/openOrders", s.handleOpenOrders).Methods("GET")
	api.HandleFunc("/myTrades", s.handleMyTrades).Methods("GET")

	// WebSocket endpoint
	router.HandleFunc("/ws/{symbol}@bookTicker", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	if s.quotes != nil {
		go s.streamQuotes()
	}

	return nil
}

// Stop stops the mock server.
func (s *MockBinanceServer) Stop() error {
	// Signal streaming to stop
	s.stopOnce.Do(func() { close(s.stopStreaming) })

	// Close all WebSocket connections
	s.wsMu.Lock()
	for _, subs := range s.subscribers {
		for sub := range subs {
			sub.conn.Close()
		}
	}

	s.subscribers = make(map[string]map[*subscriber]struct{})
	s.wsMu.Unlock()

	// Shutdown HTTP server
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Address returns the address the server is listening on.
func (s *MockBinanceServer) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the base URL for the server.
func (s *MockBinanceServer) BaseURL() string {
	return "http://" + s.Address()
}

// WebSocketURL returns the WebSocket URL for the server.
func (s *MockBinanceServer) WebSocketURL() string {
	return "ws://" + s.Address()
}

// SetPrice sets the bid of a symbol, fills every resting order the new quote crosses and
// publishes the quote to bookTicker subscribers.
func (s *MockBinanceServer) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.initSymbolInfo(symbol)

	for _, order := range s.orders {
		if order.Symbol != symbol || !order.isOpen() || order.Type == OrderTypeMarket {
			continue
		}

		if s.crosses(order) {
			s.fill(order, order.Quantity-order.ExecutedQty, order.Price, true)
		}
	}

	message := s.bookTicker(symbol)
	s.mu.Unlock()

	s.broadcast(symbol, message)
}

// GetPrice returns the current bid for a symbol.
func (s *MockBinanceServer) GetPrice(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.prices[symbol]
}

// GetBalance returns the balance for an asset.
func (s *MockBinanceServer) GetBalance(asset string) *Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bal, ok := s.balances[asset]; ok {
		return &Balance{Asset: bal.Asset, Free: bal.Free, Locked: bal.Locked}
	}

	return nil
}

// SetBalance sets the balance for an asset.
func (s *MockBinanceServer) SetBalance(asset string, free, locked float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[asset] = &Balance{Asset: asset, Free: free, Locked: locked}
}

// GetOrder returns a copy of an order by client order id, or nil.
func (s *MockBinanceServer) GetOrder(clientOrderID string) *Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.clientIDs[clientOrderID]
	if !ok {
		return nil
	}

	order := *s.orders[id]

	return &order
}

// FillOrder executes part of a resting order at price as a maker fill.
func (s *MockBinanceServer) FillOrder(clientOrderID string, quantity, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.clientIDs[clientOrderID]
	if !ok {
		return fmt.Errorf("unknown order %s", clientOrderID)
	}

	order := s.orders[id]
	if !order.isOpen() {
		return fmt.Errorf("order %s is %s", clientOrderID, order.Status)
	}

	if quantity > order.Quantity-order.ExecutedQty {
		return fmt.Errorf("fill of %f exceeds the remaining quantity of %s", quantity, clientOrderID)
	}

	s.fill(order, quantity, price, true)

	return nil
}

// GetTrades returns all trades.
func (s *MockBinanceServer) GetTrades() []*Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Trade, len(s.trades))
	copy(result, s.trades)

	return result
}

// FailNextRequests makes the next n REST requests fail with a non JSON 503 before they are processed.
func (s *MockBinanceServer) FailNextRequests(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = n
}

// LoseNextResponses processes the next n REST requests and then answers them with a 503, so the
// caller cannot tell whether the request took effect.
func (s *MockBinanceServer) LoseNextResponses(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loseNext = n
}

// RejectOrders rejects every new order with reason. An empty reason accepts orders again.
func (s *MockBinanceServer) RejectOrders(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rejectReason = reason
}

// RequestCount returns how many requests reached method and path, including failed ones.
func (s *MockBinanceServer) RequestCount(method, path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.requests[method+" "+path]
}

// Reset resets the server state.
func (s *MockBinanceServer) Reset(config ServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = make(map[int64]*Order)
	s.clientIDs = make(map[string]int64)
	s.trades = make([]*Trade, 0)
	s.orderIDSeq = 1000
	s.tradeIDSeq = 1
	s.failNext = 0
	s.loseNext = 0
	s.rejectReason = ""
	s.requests = make(map[string]int)

	// Reset balances
	s.balances = make(map[string]*Balance)
	for asset, amount := range config.InitialBalances {
		s.balances[asset] = &Balance{Asset: asset, Free: amount, Locked: 0}
	}
}

// faults counts requests and applies the injected failures.
func (s *MockBinanceServer) faults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++

		fail := s.failNext > 0
		if fail {
			s.failNext--
		}

		lose := !fail && s.loseNext > 0
		if lose {
			s.loseNext--
		}
		s.mu.Unlock()

		if fail {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)

			return
		}

		if lose {
			next.ServeHTTP(httptest.NewRecorder(), r)
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// params merges the query string and the form body. Binance clients send DELETE parameters in
// the body, which http.Request.ParseForm ignores.
func params(r *http.Request) (url.Values, error) {
	values := r.URL.Query()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return values, nil
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}

	for key, vals := range form {
		for _, v := range vals {
			values.Add(key, v)
		}
	}

	return values, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// ask returns the current ask of a symbol. Callers hold s.mu.
func (s *MockBinanceServer) ask(symbol string) float64 {
	return s.prices[symbol] + s.spread
}

// crosses reports whether a limit order is marketable against the current quote. Callers hold s.mu.
func (s *MockBinanceServer) crosses(order *Order) bool {
	bid, ok := s.prices[order.Symbol]
	if !ok || bid <= 0 {
		return false
	}

	if order.Side == OrderSideBuy {
		return order.Price >= s.ask(order.Symbol)
	}

	return order.Price <= bid
}

func (s *MockBinanceServer) balance(asset string) *Balance {
	bal, ok := s.balances[asset]
	if !ok {
		bal = &Balance{Asset: asset, Free: 0, Locked: 0}
		s.balances[asset] = bal
	}

	return bal
}

// reserve locks the funds an order needs. Callers hold s.mu.
func (s *MockBinanceServer) reserve(order *Order, price float64) bool {
	info := s.symbolInfo[order.Symbol]

	if order.Side == OrderSideBuy {
		quote := s.balance(info.QuoteAsset)
		cost := price * order.Quantity

		if quote.Free < cost {
			return false
		}

		quote.Free -= cost
		quote.Locked += cost
		order.reservePrice = price

		return true
	}

	base := s.balance(info.BaseAsset)
	if base.Free < order.Quantity {
		return false
	}

	base.Free -= order.Quantity
	base.Locked += order.Quantity

	return true
}

// release unlocks the funds of the unfilled remainder of an order. Callers hold s.mu.
func (s *MockBinanceServer) release(order *Order) {
	info := s.symbolInfo[order.Symbol]
	remaining := order.Quantity - order.ExecutedQty

	if order.Side == OrderSideBuy {
		quote := s.balance(info.QuoteAsset)
		quote.Locked -= remaining * order.reservePrice
		quote.Free += remaining * order.reservePrice

		return
	}

	base := s.balance(info.BaseAsset)
	base.Locked -= remaining
	base.Free += remaining
}

// fill executes quantity at price and settles the balances. Callers hold s.mu.
func (s *MockBinanceServer) fill(order *Order, quantity, price float64, maker bool) {
	info := s.symbolInfo[order.Symbol]
	cost := price * quantity

	rate := 0.001
	if fee, ok := s.tradeFees[order.Symbol]; ok {
		rate = fee.TakerCommission
		if maker {
			rate = fee.MakerCommission
		}
	}

	commission := cost * rate
	quote := s.balance(info.QuoteAsset)
	base := s.balance(info.BaseAsset)

	if order.Side == OrderSideBuy {
		quote.Locked -= order.reservePrice * quantity
		quote.Free += (order.reservePrice-price)*quantity - commission
		base.Free += quantity
	} else {
		base.Locked -= quantity
		quote.Free += cost - commission
	}

	now := time.Now()
	order.ExecutedQty += quantity
	order.CummulateQty += cost
	order.UpdatedAt = now

	order.Status = OrderStatusPartiallyFilled
	if order.ExecutedQty >= order.Quantity {
		order.Status = OrderStatusFilled
	}

	s.tradeIDSeq++
	s.trades = append(s.trades, &Trade{
		ID:         s.tradeIDSeq,
		OrderID:    order.OrderID,
		Symbol:     order.Symbol,
		Price:      price,
		Quantity:   quantity,
		Commission: commission,
		Time:       now,
		IsBuyer:    order.Side == OrderSideBuy,
		IsMaker:    maker,
	})
}

func orderJSON(order *Order) map[string]any {
	return map[string]any{
		"symbol":              order.Symbol,
		"orderId":             order.OrderID,
		"orderListId":         -1,
		"clientOrderId":       order.ClientOrderID,
		"price":               formatFloat(order.Price),
		"origQty":             formatFloat(order.Quantity),
		"executedQty":         formatFloat(order.ExecutedQty),
		"cummulativeQuoteQty": formatFloat(order.CummulateQty),
		"status":              string(order.Status),
		"timeInForce":         order.TimeInForce,
		"type":                string(order.Type),
		"side":                string(order.Side),
		"stopPrice":           "0.00000000",
		"icebergQty":          "0.00000000",
		"time":                order.CreatedAt.UnixMilli(),
		"updateTime":          order.UpdatedAt.UnixMilli(),
		"isWorking":           order.isOpen(),
		"origQuoteOrderQty":   "0.00000000",
	}
}

// REST API Handlers

// handleAccount handles GET /api/v3/account
func (s *MockBinanceServer) handleAccount(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type balanceResponse struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	}

	balances := make([]balanceResponse, 0, len(s.balances))
	for _, bal := range s.balances {
		balances = append(balances, balanceResponse{
			Asset:  bal.Asset,
			Free:   formatFloat(bal.Free),
			Locked: formatFloat(bal.Locked),
		})
	}

	writeJSON(w, map[string]any{
		"makerCommission":  10,
		"takerCommission":  10,
		"buyerCommission":  0,
		"sellerCommission": 0,
		"canTrade":         true,
		"canWithdraw":      true,
		"canDeposit":       true,
		"updateTime":       time.Now().UnixMilli(),
		"accountType":      "SPOT",
		"balances":         balances,
	})
}

// handleCreateOrder handles POST /api/v3/order
func (s *MockBinanceServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	values, err := params(r)
	if err != nil {
		writeAPIError(w, CodeUnknown, "failed to read parameters")

		return
	}

	symbol := values.Get("symbol")
	side := OrderSide(values.Get("side"))
	orderType := OrderType(values.Get("type"))
	timeInForce := values.Get("timeInForce")
	clientOrderID := values.Get("newClientOrderId")

	if symbol == "" || side == "" || orderType == "" || values.Get("quantity") == "" {
		writeAPIError(w, -1102, "Mandatory parameter was not sent, was empty/null, or malformed.")

		return
	}

	quantity, err := strconv.ParseFloat(values.Get("quantity"), 64)
	if err != nil || quantity <= 0 {
		writeAPIError(w, -1100, "Illegal characters found in parameter 'quantity'.")

		return
	}

	var price float64
	if orderType != OrderTypeMarket {
		price, err = strconv.ParseFloat(values.Get("price"), 64)
		if err != nil || price <= 0 {
			writeAPIError(w, -1100, "Illegal characters found in parameter 'price'.")

			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejectReason != "" {
		writeAPIError(w, CodeNewOrderRejected, s.rejectReason)

		return
	}

	if _, ok := s.symbolInfo[symbol]; !ok {
		writeAPIError(w, CodeInvalidSymbol, "Invalid symbol.")

		return
	}

	if clientOrderID == "" {
		clientOrderID = strconv.FormatInt(s.orderIDSeq+1, 10)
	}

	if id, exists := s.clientIDs[clientOrderID]; exists && s.orders[id].isOpen() {
		writeAPIError(w, CodeNewOrderRejected, "Duplicate order sent.")

		return
	}

	now := time.Now()
	order := &Order{
		OrderID:       s.orderIDSeq + 1,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          orderType,
		Quantity:      quantity,
		Price:         price,
		Status:        OrderStatusNew,
		TimeInForce:   timeInForce,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExecutedQty:   0,
		CummulateQty:  0,
		reservePrice:  0,
	}

	marketable := false
	execPrice := price

	switch orderType {
	case OrderTypeMarket:
		bid, ok := s.prices[symbol]
		if !ok || bid <= 0 {
			writeAPIError(w, CodeNewOrderRejected, "No price available for symbol.")

			return
		}

		marketable = true
		execPrice = bid
		if side == OrderSideBuy {
			execPrice = s.ask(symbol)
		}
	case OrderTypeLimitMaker:
		if s.crosses(order) {
			writeAPIError(w, CodeNewOrderRejected, "Order would immediately match and take.")

			return
		}
	default:
		marketable = s.crosses(order)
		if marketable {
			execPrice = s.prices[symbol]
			if side == OrderSideBuy {
				execPrice = s.ask(symbol)
			}
		}
	}

	reservePrice := price
	if orderType == OrderTypeMarket {
		reservePrice = execPrice
	}

	if !s.reserve(order, reservePrice) {
		writeAPIError(w, CodeNewOrderRejected, "Account has insufficient balance for requested action.")

		return
	}

	s.orderIDSeq++
	s.orders[order.OrderID] = order
	s.clientIDs[clientOrderID] = order.OrderID

	if marketable {
		s.fill(order, quantity, execPrice, false)
	} else if timeInForce == "IOC" || timeInForce == "FOK" {
		s.release(order)
		order.Status = OrderStatusExpired
	}

	response := orderJSON(order)
	response["transactTime"] = now.UnixMilli()
	writeJSON(w, response)
}

// lookup finds the order named by orderId or origClientOrderId. Callers hold s.mu.
func (s *MockBinanceServer) lookup(values url.Values) (*Order, bool) {
	if clientID := values.Get("origClientOrderId"); clientID != "" {
		id, ok := s.clientIDs[clientID]
		if !ok {
			return nil, false
		}

		order := s.orders[id]

		return order, order.Symbol == values.Get("symbol")
	}

	id, err := strconv.ParseInt(values.Get("orderId"), 10, 64)
	if err != nil {
		return nil, false
	}

	order, ok := s.orders[id]
	if !ok {
		return nil, false
	}

	return order, order.Symbol == values.Get("symbol")
}

// handleGetOrder handles GET /api/v3/order
func (s *MockBinanceServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	values, err := params(r)
	if err != nil {
		writeAPIError(w, CodeUnknown, "failed to read parameters")

		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.lookup(values)
	if !ok {
		writeAPIError(w, CodeNoSuchOrder, "Order does not exist.")

		return
	}

	writeJSON(w, orderJSON(order))
}

// handleCancelOrder handles DELETE /api/v3/order
func (s *MockBinanceServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	values, err := params(r)
	if err != nil {
		writeAPIError(w, CodeUnknown, "failed to read parameters")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.lookup(values)
	if !ok || !order.isOpen() {
		writeAPIError(w, CodeCancelRejected, "Unknown order sent.")

		return
	}

	s.release(order)
	order.Status = OrderStatusCanceled
	order.UpdatedAt = time.Now()

	response := orderJSON(order)
	response["origClientOrderId"] = order.ClientOrderID
	response["transactTime"] = order.UpdatedAt.UnixMilli()
	writeJSON(w, response)
}

// handleOpenOrders handles GET /api/v3/openOrders
func (s *MockBinanceServer) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	values, err := params(r)
	if err != nil {
		writeAPIError(w, CodeUnknown, "failed to read parameters")

		return
	}

	symbol := values.Get("symbol")

	s.mu.RLock()
	defer s.mu.RUnlock()

	openOrders := []map[string]any{}

	for _, order := range s.orders {
		if order.isOpen() && (symbol == "" || order.Symbol == symbol) {
			openOrders = append(openOrders, orderJSON(order))
		}
	}

	writeJSON(w, openOrders)
}

// handleMyTrades handles GET /api/v3/myTrades
func (s *MockBinanceServer) handleMyTrades(w http.ResponseWriter, r *http.Request) {
	values, err := params(r)
	if err != nil {
		writeAPIError(w, CodeUnknown, "failed to read parameters")

		return
	}

	symbol := values.Get("symbol")
	if symbol == "" {
		writeAPIError(w, -1102, "Mandatory parameter 'symbol' was not sent, was empty/null, or malformed.")

		return
	}

	limit := 500
	if l, err := strconv.Atoi(values.Get("limit")); err == nil && l > 0 {
		limit = l
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := []map[string]any{}

	for _, trade := range s.trades {
		if trade.Symbol != symbol {
			continue
		}

		trades = append(trades, map[string]any{
			"symbol":          trade.Symbol,
			"id":              trade.ID,
			"orderId":         trade.OrderID,
			"price":           formatFloat(trade.Price),
			"qty":             formatFloat(trade.Quantity),
			"commission":      formatFloat(trade.Commission),
			"commissionAsset": s.symbolInfo[trade.Symbol].QuoteAsset,
			"time":            trade.Time.UnixMilli(),
			"isBuyer":         trade.IsBuyer,
			"isMaker":         trade.IsMaker,
			"isBestMatch":     true,
		})

		if len(trades) >= limit {
			break
		}
	}

	writeJSON(w, trades)
}

// WebSocket Handler

// bookTicker builds the stream message for a symbol. Callers hold s.mu.
func (s *MockBinanceServer) bookTicker(symbol string) map[string]any {
	s.updateID++
	bid := s.prices[symbol]

	return map[string]any{
		"u": s.updateID,
		"s": symbol,
		"b": formatFloat(bid),
		"B": "1.00000000",
		"a": formatFloat(s.ask(symbol)),
		"A": "1.00000000",
	}
}

// handleWebSocket handles bookTicker stream connections.
func (s *MockBinanceServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := &subscriber{conn: conn, mu: sync.Mutex{}}

	s.wsMu.Lock()
	if s.subscribers[symbol] == nil {
		s.subscribers[symbol] = make(map[*subscriber]struct{})
	}

	s.subscribers[symbol][sub] = struct{}{}
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.subscribers[symbol], sub)
		s.wsMu.Unlock()
		conn.Close()
	}()

	s.mu.Lock()
	_, quoted := s.prices[symbol]

	var message map[string]any
	if quoted {
		message = s.bookTicker(symbol)
	}
	s.mu.Unlock()

	if quoted {
		if err := sub.write(message); err != nil {
			return
		}
	}

	// Block until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *MockBinanceServer) broadcast(symbol string, message map[string]any) {
	s.wsMu.RLock()
	subs := make([]*subscriber, 0, len(s.subscribers[symbol]))
	for sub := range s.subscribers[symbol] {
		subs = append(subs, sub)
	}
	s.wsMu.RUnlock()

	for _, sub := range subs {
		if err := sub.write(message); err != nil {
			sub.conn.Close()
		}
	}
}

// SubscriberCount returns the number of open bookTicker streams of a symbol.
func (s *MockBinanceServer) SubscriberCount(symbol string) int {
	s.wsMu.RLock()
	defer s.wsMu.RUnlock()

	return len(s.subscribers[symbol])
}

// CloseStreams drops every open bookTicker stream, as an exchange disconnect would.
func (s *MockBinanceServer) CloseStreams() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	for _, subs := range s.subscribers {
		for sub := range subs {
			sub.conn.Close()
		}
	}
}

// streamQuotes moves every configured symbol along a generated quote path.
func (s *MockBinanceServer) streamQuotes() {
	paths := make(map[string][]float64, len(s.quotes.Symbols))

	for i, symbol := range s.quotes.Symbols {
		config := marketsim.DefaultConfig()
		config.Count = 1000
		config.InitialPrice = s.GetPrice(symbol)
		config.TickSize = decimal.NewFromFloat(s.spread)
		config.SpreadTicks = 1

		if s.quotes.Volatility > 0 {
			config.Volatility = s.quotes.Volatility
		}

		quotes := marketsim.NewQuoteGenerator(s.quotes.Seed + int64(i)).Generate(config)
		path := make([]float64, len(quotes))

		for j, quote := range quotes {
			path[j] = quote.BestBid.InexactFloat64()
		}

		paths[symbol] = path
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	step := 0

	for {
		select {
		case <-s.stopStreaming:
			return
		case <-ticker.C:
			for symbol, path := range paths {
				s.SetPrice(symbol, path[step%len(path)])
			}

			step++
		}
	}
}

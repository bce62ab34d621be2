// Package binance implements the connector contract on Binance spot over REST order entry,
// order status polling and book ticker streams.
package binance

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-connector/internal/connector"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/rxtech-lab/argo-connector/pkg/eventchan"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BinanceConnector places and tracks spot orders on Binance.
type BinanceConnector struct {
	*connector.Base

	config  BinanceConnectorConfig
	client  BinanceClient
	limiter *rate.Limiter

	shards []*eventchan.Sender[request]

	// unconfirmed holds orders whose submit outcome is unknown after a transport failure.
	// The poller asks the venue about them until it answers.
	unconfirmed sync.Map
	// polling holds orders with a status poll queued, so slow polls do not pile up.
	polling sync.Map
}

var _ connector.Connector = (*BinanceConnector)(nil)

// NewBinanceConnector creates a connector on Binance spot.
// If config.Testnet is true, it connects to Binance Testnet (https://testnet.binance.vision/).
// If config.BaseURL is set, it takes precedence over Testnet.
func NewBinanceConnector(venue string, config BinanceConnectorConfig, log *logger.Logger) (*BinanceConnector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config = config.withDefaults()

	client := binance.NewClient(config.ApiKey, config.SecretKey)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return newBinanceConnectorWithClient(venue, config, &realBinanceClient{client: client}, log), nil
}

// newBinanceConnectorWithClient creates a connector with a custom client (for testing).
func newBinanceConnectorWithClient(venue string, config BinanceConnectorConfig, client BinanceClient, log *logger.Logger) *BinanceConnector {
	if log == nil {
		log = logger.NewNopLogger()
	}

	config = config.withDefaults()

	return &BinanceConnector{
		Base:        connector.NewBase(venue, log.Named("binance")),
		config:      config,
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(config.RequestsPerSecond), max(1, int(config.RequestsPerSecond))),
		shards:      nil,
		unconfirmed: sync.Map{},
		polling:     sync.Map{},
	}
}

// Run starts the order entry workers, the status poller and the market streams.
// Missing credentials fail here; every network outcome is reported as an event.
func (b *BinanceConnector) Run(sender *connector.EventSender) error {
	if b.config.ApiKey == "" || b.config.SecretKey == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "binance api key and secret key are required")
	}

	if err := b.Start(sender, b.startWorkers); err != nil {
		return err
	}

	b.GoBackground(b.checkConnectivity)
	b.GoBackground(b.pollOrders)

	if !b.config.DisableMarketData {
		for _, instrument := range b.Instruments() {
			stream := newBookTickerStream(b, instrument)
			b.GoBackground(stream.run)
		}
	}

	b.Logger().Info("Binance connector running",
		zap.String("venue", b.Venue()),
		zap.String("base_url", b.config.BaseURL),
		zap.Bool("testnet", b.config.Testnet),
		zap.Int("workers", b.config.Workers),
	)

	return nil
}

// startWorkers builds one request queue per worker. Start runs it before the connector accepts
// requests, so shard never sees an empty set.
func (b *BinanceConnector) startWorkers() {
	b.shards = make([]*eventchan.Sender[request], b.config.Workers)
	for i := range b.shards {
		queue, inbox := eventchan.New[request]()
		b.shards[i] = queue
		w := &worker{connector: b, inbox: inbox}
		b.Go(w.run)
	}
}

// Submit queues the order on the worker that owns its id.
func (b *BinanceConnector) Submit(asset string, order types.Order, sender *connector.EventSender) error {
	tracked, out, err := b.PrepareSubmit(asset, order, sender)
	if err != nil {
		return err
	}

	if err := b.shard(tracked.ID).Send(request{kind: requestSubmit, order: tracked, sender: out}); err != nil {
		b.AbortSubmit(tracked.ID)

		return errors.Wrap(errors.ErrCodeConnectorStopped, "binance connector is shutting down", err)
	}

	return nil
}

// Cancel queues a cancel behind the requests already queued for the order. Unknown and
// terminal orders are answered with CANCEL_REJECTED right away.
func (b *BinanceConnector) Cancel(asset string, order types.Order, sender *connector.EventSender) error {
	tracked, active, out, err := b.PrepareCancel(asset, order, sender)
	if err != nil {
		return err
	}

	if !active {
		reason := "unknown order"
		if tracked.Status != "" {
			reason = "order is already " + string(tracked.Status)
		}

		b.RejectCancel(out, tracked, reason)

		return nil
	}

	if err := b.shard(tracked.ID).Send(request{kind: requestCancel, order: tracked, sender: out}); err != nil {
		return errors.Wrap(errors.ErrCodeConnectorStopped, "binance connector is shutting down", err)
	}

	return nil
}

// Stop lets the workers finish queued requests, then stops polling and streams.
func (b *BinanceConnector) Stop(ctx context.Context) error {
	return b.Shutdown(ctx, func() {
		for _, shard := range b.shards {
			shard.Close()
		}
	})
}

func (b *BinanceConnector) shard(orderID string) *eventchan.Sender[request] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))

	return b.shards[h.Sum32()%uint32(len(b.shards))]
}

func (b *BinanceConnector) checkConnectivity(ctx context.Context) {
	err := b.call(ctx, func(ctx context.Context) error {
		_, err := b.client.NewGetAccountService().Do(ctx)

		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			b.failed("", "account check failed", err)
		}

		return
	}

	for _, instrument := range b.Instruments() {
		var open []*binance.Order

		err := b.call(ctx, func(ctx context.Context) error {
			var err error
			open, err = b.client.NewListOpenOrdersService().Symbol(instrument.Symbol).Do(ctx)

			return err
		})
		if err != nil {
			continue
		}

		if len(open) > 0 {
			b.Logger().Warn("Venue has open orders from an earlier session",
				zap.String("symbol", instrument.Symbol),
				zap.Int("count", len(open)),
			)
		}
	}

	b.Logger().Info("Binance connectivity established", zap.String("venue", b.Venue()))
}

// pollOrders queues a status poll for every order the venue may still change.
func (b *BinanceConnector) pollOrders(ctx context.Context) {
	ticker := time.NewTicker(b.config.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, order := range b.OpenOrders() {
			if order.Status == types.OrderStatusRequested {
				if _, ok := b.unconfirmed.Load(order.ID); !ok {
					continue
				}
			}

			if _, queued := b.polling.LoadOrStore(order.ID, struct{}{}); queued {
				continue
			}

			if err := b.shard(order.ID).Send(request{kind: requestPoll, order: order, sender: nil}); err != nil {
				b.polling.Delete(order.ID)

				return
			}
		}
	}
}

// failed reports a request that did not succeed. A definite venue answer, such as an invalid
// key, is an EXCHANGE error carrying the venue's code; anything else means the connector is
// unhealthy and is reported as INTERNAL.
func (b *BinanceConnector) failed(symbol, message string, err error) {
	b.Logger().Error(message, zap.String("venue", b.Venue()), zap.String("symbol", symbol), zap.Error(err))

	if apiErr, ok := venueError(err); ok && !isTransient(err) {
		b.EmitError(nil, symbol, types.ErrorOriginExchange, int(apiErr.Code), message+": "+describe(apiErr))

		return
	}

	b.EmitInternalError(nil, symbol, errors.Wrap(errors.ErrCodeRequestFailed, message, err))
}

func mapSide(side types.Side) binance.SideType {
	if side == types.SideSell {
		return binance.SideTypeSell
	}

	return binance.SideTypeBuy
}

func mapOrderType(order types.Order) binance.OrderType {
	switch {
	case order.Type == types.OrderTypeMarket:
		return binance.OrderTypeMarket
	case order.TimeInForce == types.TimeInForceGTX:
		return binance.OrderTypeLimitMaker
	default:
		return binance.OrderTypeLimit
	}
}

func mapTimeInForce(tif types.TimeInForce) binance.TimeInForceType {
	switch tif {
	case types.TimeInForceIOC:
		return binance.TimeInForceTypeIOC
	case types.TimeInForceFOK:
		return binance.TimeInForceTypeFOK
	default:
		return binance.TimeInForceTypeGTC
	}
}

// mapBinanceOrderStatus maps a venue status to the lifecycle status it implies.
func mapBinanceOrderStatus(status binance.OrderStatusType) types.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePendingCancel:
		return types.OrderStatusAccepted
	case binance.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return types.OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return types.OrderStatusCanceled
	case binance.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	default:
		return types.OrderStatusAccepted
	}
}

func statusReason(status binance.OrderStatusType) string {
	switch status {
	case binance.OrderStatusTypeExpired:
		return "expired"
	case binance.OrderStatusTypeCanceled:
		return "canceled"
	case binance.OrderStatusTypeRejected:
		return "rejected by venue"
	default:
		return ""
	}
}

func parseDecimal(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}

	return parsed
}

func millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

func newReport(orderID string, exchangeID int64, status binance.OrderStatusType, executed, quote string, updated int64) connector.ExecutionReport {
	return connector.ExecutionReport{
		OrderID:          orderID,
		ExchangeOrderID:  strconv.FormatInt(exchangeID, 10),
		Status:           mapBinanceOrderStatus(status),
		ExecutedQuantity: parseDecimal(executed),
		QuoteQuantity:    parseDecimal(quote),
		AveragePrice:     decimal.Zero,
		Reason:           statusReason(status),
		Time:             millis(updated),
	}
}

func createReport(orderID string, res *binance.CreateOrderResponse) connector.ExecutionReport {
	return newReport(orderID, res.OrderID, res.Status, res.ExecutedQuantity, res.CummulativeQuoteQuantity, res.TransactTime)
}

func orderReport(orderID string, res *binance.Order) connector.ExecutionReport {
	return newReport(orderID, res.OrderID, res.Status, res.ExecutedQuantity, res.CummulativeQuoteQuantity, res.UpdateTime)
}

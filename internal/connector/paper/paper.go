// Package paper implements a simulated venue behind the connector contract.
//
// Every request is queued to a single matching goroutine, so Submit and Cancel never block and
// the events of one order always follow their causal order.
package paper

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-connector/internal/connector"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/stats"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/rxtech-lab/argo-connector/pkg/eventchan"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type commandKind int

const (
	commandSubmit commandKind = iota
	commandCancel
	commandQuote
)

type command struct {
	kind   commandKind
	order  types.Order
	symbol string
	depth  types.Depth
	sender *connector.EventSender
}

// PaperConnector is a venue that matches orders against simulated quotes.
type PaperConnector struct {
	*connector.Base

	config     PaperConnectorConfig
	commission CommissionFee
	account    *stats.Tracker

	commands *eventchan.Sender[command]
	inbox    *eventchan.Receiver[command]

	// owned by the matching goroutine
	quotes  map[string]types.Depth
	resting map[string][]types.Order
}

var _ connector.Connector = (*PaperConnector)(nil)

// NewPaperConnector creates a simulated connector for the venue.
func NewPaperConnector(venue string, config PaperConnectorConfig, log *logger.Logger) (*PaperConnector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	log = log.Named("paper")
	commands, inbox := eventchan.New[command]()

	return &PaperConnector{
		Base:       connector.NewBase(venue, log),
		config:     config,
		commission: GetCommissionFeeHandler(config),
		account:    stats.NewTracker(log),
		commands:   commands,
		inbox:      inbox,
		quotes:     make(map[string]types.Depth),
		resting:    make(map[string][]types.Order),
	}, nil
}

// Run starts the matching goroutine and, when configured, the quote feed.
func (p *PaperConnector) Run(sender *connector.EventSender) error {
	if err := p.Start(sender); err != nil {
		return err
	}

	p.Go(p.match)

	if p.config.QuoteIntervalMs > 0 {
		feed := newQuoteFeed(p, p.config)
		p.GoBackground(feed.run)
	}

	p.Logger().Info("Paper connector running",
		zap.String("venue", p.Venue()),
		zap.Int("instruments", len(p.Instruments())),
		zap.Bool("quote_feed", p.config.QuoteIntervalMs > 0),
	)

	return nil
}

// Submit queues the order for matching.
func (p *PaperConnector) Submit(asset string, order types.Order, sender *connector.EventSender) error {
	tracked, out, err := p.PrepareSubmit(asset, order, sender)
	if err != nil {
		return err
	}

	if err := p.commands.Send(command{kind: commandSubmit, order: tracked, symbol: tracked.Symbol, depth: types.Depth{}, sender: out}); err != nil {
		p.AbortSubmit(tracked.ID)

		return errors.Wrap(errors.ErrCodeConnectorStopped, "paper connector is shutting down", err)
	}

	return nil
}

// Cancel queues a cancel behind every request already sent for the order.
func (p *PaperConnector) Cancel(asset string, order types.Order, sender *connector.EventSender) error {
	tracked, _, out, err := p.PrepareCancel(asset, order, sender)
	if err != nil {
		return err
	}

	if err := p.commands.Send(command{kind: commandCancel, order: tracked, symbol: tracked.Symbol, depth: types.Depth{}, sender: out}); err != nil {
		return errors.Wrap(errors.ErrCodeConnectorStopped, "paper connector is shutting down", err)
	}

	return nil
}

// UpdateQuote publishes a new top of book for the symbol and matches resting orders against it.
func (p *PaperConnector) UpdateQuote(symbol string, depth types.Depth) error {
	if !p.IsRunning() {
		return errors.Newf(errors.ErrCodeConnectorNotRunning, "connector %s is not running", p.Venue())
	}

	instrument, ok := p.Instrument(symbol)
	if !ok {
		return errors.Newf(errors.ErrCodeUnknownInstrument, "instrument %s is not registered on %s", symbol, p.Venue())
	}

	depth.TickSize = instrument.TickSize
	depth.LotSize = instrument.LotSize

	if err := p.commands.Send(command{kind: commandQuote, order: types.Order{}, symbol: symbol, depth: depth, sender: nil}); err != nil { //nolint:exhaustruct
		return errors.Wrap(errors.ErrCodeConnectorStopped, "paper connector is shutting down", err)
	}

	return nil
}

// StateValues returns the simulated account values of a symbol.
func (p *PaperConnector) StateValues(symbol string) types.StateValues {
	return p.account.Get(types.InstrumentKey{Venue: p.Venue(), Symbol: symbol})
}

// Stop drains queued requests and stops the quote feed.
func (p *PaperConnector) Stop(ctx context.Context) error {
	return p.Shutdown(ctx, p.commands.Close)
}

func (p *PaperConnector) match() {
	for cmd := range p.inbox.All(context.Background()) {
		switch cmd.kind {
		case commandSubmit:
			p.delay()
			p.handleSubmit(cmd)
		case commandCancel:
			p.handleCancel(cmd)
		case commandQuote:
			p.handleQuote(cmd)
		}
	}

	p.inbox.Close()
}

func (p *PaperConnector) delay() {
	if p.config.FillLatencyMs > 0 {
		time.Sleep(time.Duration(p.config.FillLatencyMs) * time.Millisecond)
	}
}

func (p *PaperConnector) reject(cmd command, reason string) {
	_ = p.Emit(cmd.sender, types.NewOrderEvent(types.EventOrderRejected, cmd.order, reason))
}

func (p *PaperConnector) handleSubmit(cmd command) {
	order := cmd.order

	if p.config.RejectAll {
		reason := p.config.RejectReason
		if reason == "" {
			reason = "rejected by venue"
		}

		p.reject(cmd, reason)

		return
	}

	quote, hasQuote := p.quotes[order.Symbol]

	if order.Type == types.OrderTypeMarket {
		price, ok := takePrice(order.Side, quote, hasQuote)
		if !ok {
			p.reject(cmd, "no liquidity for market order")

			return
		}

		_ = p.Emit(cmd.sender, types.NewOrderEvent(types.EventOrderAccepted, order, ""))
		p.fill(cmd.sender, order.ID, price, false)

		return
	}

	crosses := hasQuote && crossesQuote(order, quote)
	if order.TimeInForce == types.TimeInForceGTX && crosses {
		p.reject(cmd, "post-only order would take liquidity")

		return
	}

	_ = p.Emit(cmd.sender, types.NewOrderEvent(types.EventOrderAccepted, order, ""))

	switch {
	case !hasQuote:
		p.fill(cmd.sender, order.ID, order.Price, true)
	case crosses:
		price, _ := takePrice(order.Side, quote, true)
		p.fill(cmd.sender, order.ID, price, false)
	case order.TimeInForce == types.TimeInForceIOC || order.TimeInForce == types.TimeInForceFOK:
		current, _ := p.Order(order.ID)
		_ = p.Emit(cmd.sender, types.NewOrderEvent(types.EventOrderCanceled, current, "not immediately fillable"))
	default:
		p.resting[order.Symbol] = append(p.resting[order.Symbol], order)
	}
}

func (p *PaperConnector) handleCancel(cmd command) {
	current, ok := p.Order(cmd.order.ID)
	if !ok {
		p.RejectCancel(cmd.sender, cmd.order, "unknown order")

		return
	}

	if !current.IsActive() {
		p.RejectCancel(cmd.sender, current, "order is already "+string(current.Status))

		return
	}

	p.removeResting(current.Symbol, current.ID)
	_ = p.Emit(cmd.sender, types.NewOrderEvent(types.EventOrderCanceled, current, "canceled by user"))
}

func (p *PaperConnector) handleQuote(cmd command) {
	p.quotes[cmd.symbol] = cmd.depth
	_ = p.Emit(nil, types.NewMarketDataEvent(cmd.symbol, cmd.depth))

	resting := p.resting[cmd.symbol]
	if len(resting) == 0 {
		return
	}

	remaining := resting[:0]

	for _, order := range resting {
		if !crossesQuote(order, cmd.depth) {
			remaining = append(remaining, order)

			continue
		}

		// resting orders provide liquidity and trade at their own price
		p.fill(nil, order.ID, order.Price, true)
	}

	p.resting[cmd.symbol] = remaining
}

func (p *PaperConnector) removeResting(symbol, id string) {
	p.resting[symbol] = slices.DeleteFunc(p.resting[symbol], func(order types.Order) bool {
		return order.ID == id
	})
}

// fill executes the remaining quantity of the order at price, in chunks when configured.
func (p *PaperConnector) fill(sender *connector.EventSender, orderID string, price decimal.Decimal, isMaker bool) {
	for {
		current, ok := p.Order(orderID)
		if !ok || !current.IsActive() {
			return
		}

		leaves := current.LeavesQuantity()
		if !leaves.IsPositive() {
			return
		}

		quantity := leaves

		if p.config.FillChunkLots > 0 {
			instrument, _ := p.Instrument(current.Symbol)

			chunk := instrument.LotSize.Mul(decimal.NewFromInt(int64(p.config.FillChunkLots)))
			if chunk.LessThan(leaves) {
				quantity = chunk
			}
		}

		fill := types.Fill{
			TradeID:  uuid.New().String(),
			Price:    price,
			Quantity: quantity,
			Fee:      p.commission.Calculate(price, quantity, isMaker),
			FeeAsset: p.config.FeeAsset,
			IsMaker:  isMaker,
		}

		if err := p.Emit(sender, types.NewFillEvent(current, fill)); err != nil {
			p.Logger().Warn("Fill could not be published",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}

		after, _ := p.Order(orderID)
		if !after.ExecutedQuantity.GreaterThan(current.ExecutedQuantity) {
			return
		}

		p.account.Record(types.InstrumentKey{Venue: p.Venue(), Symbol: current.Symbol}, current.Side, fill)
	}
}

// takePrice returns the price a taker on side trades at.
func takePrice(side types.Side, quote types.Depth, hasQuote bool) (decimal.Decimal, bool) {
	if !hasQuote {
		return decimal.Zero, false
	}

	if side == types.SideBuy {
		return quote.BestAsk, quote.HasAsk()
	}

	return quote.BestBid, quote.HasBid()
}

// crossesQuote reports whether a limit order would trade against the quote.
func crossesQuote(order types.Order, quote types.Depth) bool {
	if order.Side == types.SideBuy {
		return quote.HasAsk() && order.Price.GreaterThanOrEqual(quote.BestAsk)
	}

	return quote.HasBid() && order.Price.LessThanOrEqual(quote.BestBid)
}

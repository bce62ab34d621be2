package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-connector/internal/connector/paper"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/registry"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
)

const (
	defaultDemoTimeout = 5 * time.Second

	demoVenue  = "paper"
	demoSymbol = "BTCUSD"
)

func demoAction(ctx context.Context, cmd *cli.Command) error {
	return runDemo(ctx, cmd.Root().Writer, cmd.Duration("timeout"))
}

// runDemo buys 0.01 BTCUSD at 50000 on the paper venue, then cancels an unknown order and the
// filled one. Every event is printed to out as it is consumed.
func runDemo(ctx context.Context, out io.Writer, timeout time.Duration) (err error) {
	var mu sync.Mutex

	onEvent := registry.OnEventCallback(func(event types.LiveEvent) error {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintln(out, formatEvent(event))

		return nil
	})

	dispatcher := registry.NewDispatcher(logger.NewNopLogger(), nil, registry.DispatcherCallbacks{
		OnEvent:          &onEvent,
		OnOrderUpdate:    nil,
		OnConnectorError: nil,
	})

	config := paper.DefaultConfig()

	conn, err := registry.NewConnector(registry.ConnectorPaper, demoVenue, &config, logger.NewNopLogger())
	if err != nil {
		return err
	}

	if err := dispatcher.Register(conn); err != nil {
		return err
	}

	if err := dispatcher.AddInstrument(demoVenue, demoSymbol,
		decimal.RequireFromString("0.5"), decimal.RequireFromString("0.001")); err != nil {
		return err
	}

	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err = multierr.Append(err, dispatcher.Stop(stopCtx))
	}()

	order := types.NewLimitOrder(dispatcher.NewOrderID(), demoSymbol, types.SideBuy,
		decimal.NewFromInt(50000), decimal.RequireFromString("0.01"))

	if _, err := dispatcher.Submit(demoVenue, order); err != nil {
		return err
	}

	if err := awaitTerminal(ctx, dispatcher, order.ID, timeout); err != nil {
		return err
	}

	unknown := dispatcher.NewOrderID()
	if err := dispatcher.Cancel(demoVenue, demoSymbol, unknown); err != nil {
		return err
	}

	if _, err := dispatcher.WaitOrderResponse(ctx, unknown, timeout); err != nil {
		return err
	}

	if err := dispatcher.Cancel(demoVenue, demoSymbol, order.ID); err != nil {
		return err
	}

	if _, err := dispatcher.WaitOrderResponse(ctx, order.ID, timeout); err != nil {
		return err
	}

	state := dispatcher.State(demoVenue, demoSymbol)

	mu.Lock()
	defer mu.Unlock()

	fmt.Fprintf(out, "position=%s balance=%s fee=%s trades=%d\n",
		state.Position, state.Balance, state.Fee, state.NumTrades)

	return nil
}

// awaitTerminal waits until the order reaches a terminal state.
func awaitTerminal(ctx context.Context, dispatcher *registry.Dispatcher, orderID string, timeout time.Duration) error {
	for {
		event, err := dispatcher.WaitOrderResponse(ctx, orderID, timeout)
		if err != nil {
			return err
		}

		if event.IsTerminal() {
			return nil
		}
	}
}

// formatEvent renders an event as one line.
func formatEvent(event types.LiveEvent) string {
	line := fmt.Sprintf("%4d %-22s %s/%s", event.Sequence, event.Kind, event.Venue, event.Symbol)

	if event.Order.IsSome() {
		order := event.Order.Unwrap()
		line += fmt.Sprintf(" order=%s status=%s filled=%s", shortID(order.ID), order.Status, order.ExecutedQuantity)
	}

	if event.Fill.IsSome() {
		fill := event.Fill.Unwrap()
		line += fmt.Sprintf(" fill=%s@%s fee=%s", fill.Quantity, fill.Price, fill.Fee)
	}

	if event.Reason != "" {
		line += fmt.Sprintf(" reason=%q", event.Reason)
	}

	return line
}

// shortID keeps the first block of a uuid.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

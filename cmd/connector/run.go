package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rxtech-lab/argo-connector/internal/config"
	"github.com/rxtech-lab/argo-connector/internal/journal"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/registry"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// session owns everything built from one config file.
type session struct {
	config     *config.Config
	logger     *logger.Logger
	dispatcher *registry.Dispatcher
	journal    *journal.EventJournal
}

// newSession builds the journal, the dispatcher and every configured connector.
func newSession(cfg *config.Config, log *logger.Logger, callbacks registry.DispatcherCallbacks) (*session, error) {
	s := &session{
		config:     cfg,
		logger:     log,
		dispatcher: nil,
		journal:    nil,
	}

	// a nil *EventJournal must not reach the dispatcher as a non-nil interface
	var sink registry.EventJournal

	if cfg.Journal.Enabled {
		s.journal = journal.NewEventJournal(cfg.Journal.Path)
		if err := s.journal.Initialize(); err != nil {
			return nil, err
		}

		sink = s.journal
	}

	s.dispatcher = registry.NewDispatcher(log, sink, callbacks)

	for _, venue := range cfg.Connectors {
		conn, err := venue.Build(log.Named(venue.Venue))
		if err != nil {
			return nil, multierr.Append(err, s.closeJournal())
		}

		if err := s.dispatcher.Register(conn); err != nil {
			return nil, multierr.Append(err, s.closeJournal())
		}
	}

	return s, nil
}

func (s *session) start(ctx context.Context) error {
	return s.dispatcher.Start(ctx)
}

// stop stops the connectors, exports the journal and writes the state file.
func (s *session) stop(ctx context.Context) error {
	err := s.dispatcher.Stop(ctx)
	err = multierr.Append(err, s.closeJournal())
	err = multierr.Append(err, s.dispatcher.Stats().WriteYAML(s.config.StatePath))

	return err
}

func (s *session) closeJournal() error {
	if s.journal == nil {
		return nil
	}

	if err := s.journal.Finalize(); err != nil {
		return err
	}

	if path := s.journal.GetOutputPath(); path != "" {
		s.logger.Info("Journal exported", zap.String("path", path))
	}

	return nil
}

// logEvent writes one consumed event to the log.
func logEvent(log *logger.Logger, event types.LiveEvent) {
	fields := []zap.Field{
		zap.String("kind", string(event.Kind)),
		zap.String("venue", event.Venue),
		zap.String("symbol", event.Symbol),
		zap.Uint64("sequence", event.Sequence),
	}

	if id := event.OrderID(); id != "" {
		fields = append(fields, zap.String("order_id", id))
	}

	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}

	switch event.Kind {
	case types.EventMarketData:
		log.Debug("Market data", fields...)
	case types.EventConnectorError:
		log.Warn("Connector error", fields...)
	default:
		log.Info("Order event", fields...)
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Bool("monitor") {
		return runMonitor(ctx, cfg)
	}

	log, err := logger.NewLoggerWithLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() {
		_ = log.Sync()
	}()

	onEvent := registry.OnEventCallback(func(event types.LiveEvent) error {
		logEvent(log, event)

		return nil
	})

	s, err := newSession(cfg, log, registry.DispatcherCallbacks{
		OnEvent:          &onEvent,
		OnOrderUpdate:    nil,
		OnConnectorError: nil,
	})
	if err != nil {
		return err
	}

	if err := s.start(ctx); err != nil {
		return multierr.Append(err, s.closeJournal())
	}

	log.Info("Connectors started", zap.Strings("venues", s.dispatcher.Venues()))

	<-ctx.Done()

	log.Info("Received interrupt signal, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.stop(shutdownCtx)
}

// runMonitor runs the session behind the terminal view. Logs are discarded because the terminal
// belongs to the view.
func runMonitor(ctx context.Context, cfg *config.Config) error {
	model := NewMonitorModel(cfg)

	var program *tea.Program

	onEvent := registry.OnEventCallback(func(event types.LiveEvent) error {
		program.Send(EventMsg{Event: event})

		return nil
	})
	onOrderUpdate := registry.OnOrderUpdateCallback(func(order types.Order) error {
		program.Send(OrderMsg{Order: order})

		return nil
	})

	s, err := newSession(cfg, logger.NewNopLogger(), registry.DispatcherCallbacks{
		OnEvent:          &onEvent,
		OnOrderUpdate:    &onOrderUpdate,
		OnConnectorError: nil,
	})
	if err != nil {
		return err
	}

	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if err := s.start(ctx); err != nil {
		return multierr.Append(err, s.closeJournal())
	}

	_, runErr := program.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return multierr.Append(runErr, s.stop(shutdownCtx))
}

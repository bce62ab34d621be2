package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rxtech-lab/argo-connector/internal/config"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/shopspring/decimal"
)

// MonitorModel is the Bubble Tea model of the run --monitor view.
type MonitorModel struct {
	venues     []string
	quoteTable table.Model
	orderTable table.Model
	quotes     map[types.InstrumentKey]types.Depth
	prevBids   map[types.InstrumentKey]decimal.Decimal
	orders     map[string]types.Order
	lastError  string
	events     int
	width      int
	height     int
}

// NewMonitorModel creates an empty view for the venues of cfg.
func NewMonitorModel(cfg *config.Config) MonitorModel {
	venues := make([]string, 0, len(cfg.Connectors))
	for _, venue := range cfg.Connectors {
		venues = append(venues, venue.Venue)
	}

	return MonitorModel{
		venues:     venues,
		quoteTable: NewQuoteTable(),
		orderTable: NewOrderTable(),
		quotes:     make(map[types.InstrumentKey]types.Depth),
		prevBids:   make(map[types.InstrumentKey]decimal.Decimal),
		orders:     make(map[string]types.Order),
		lastError:  "",
		events:     0,
		width:      0,
		height:     0,
	}
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			// drop finished orders from the view
			for id, order := range m.orders {
				if order.Status.IsTerminal() {
					delete(m.orders, id)
				}
			}

			m.orderTable = UpdateOrderRows(m.orderTable, m.orders)

			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.quoteTable.SetWidth(msg.Width)
		m.orderTable.SetWidth(msg.Width)
		m.orderTable.SetHeight(max(msg.Height-m.quoteTable.Height()-10, 3))

		return m, nil

	case EventMsg:
		return m.applyEvent(msg.Event), nil

	case OrderMsg:
		m.orders[msg.Order.ID] = msg.Order
		m.orderTable = UpdateOrderRows(m.orderTable, m.orders)

		return m, nil
	}

	var cmd tea.Cmd
	m.orderTable, cmd = m.orderTable.Update(msg)

	return m, cmd
}

func (m MonitorModel) applyEvent(event types.LiveEvent) MonitorModel {
	m.events++

	switch {
	case event.Kind == types.EventMarketData && event.MarketData.IsSome():
		key := types.InstrumentKey{Venue: event.Venue, Symbol: event.Symbol}

		if existing, ok := m.quotes[key]; ok {
			m.prevBids[key] = existing.BestBid
		}

		m.quotes[key] = event.MarketData.Unwrap()
		m.quoteTable = UpdateQuoteRows(m.quoteTable, m.quotes, m.prevBids)
	case event.Kind == types.EventConnectorError && event.Error.IsSome():
		failure := event.Error.Unwrap()
		m.lastError = fmt.Sprintf("%s %s: [%s %d] %s",
			event.Time.Format("15:04:05"), event.Venue, failure.Origin, failure.Code, failure.Message)
	case event.Kind == types.EventCancelRejected:
		m.lastError = fmt.Sprintf("%s %s: cancel of %s rejected: %s",
			event.Time.Format("15:04:05"), event.Venue, shortID(event.OrderID()), event.Reason)
	}

	return m
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render(fmt.Sprintf("Argo Connector - %s", strings.Join(m.venues, ", "))))
	s.WriteString("\n\n")

	if len(m.quotes) == 0 {
		s.WriteString("Waiting for quotes...\n")
	} else {
		s.WriteString(m.quoteTable.View())
		s.WriteString("\n")
	}

	s.WriteString("\n")

	if len(m.orders) == 0 {
		s.WriteString("No orders\n")
	} else {
		s.WriteString(m.orderTable.View())
		s.WriteString("\n")
	}

	if m.lastError != "" {
		s.WriteString("\n")
		s.WriteString(ErrorStyle.Render(m.lastError))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(HelpStyle.Render(fmt.Sprintf("q: quit | c: clear finished orders | events: %d", m.events)))

	return s.String()
}

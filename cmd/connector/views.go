package main

import (
	"cmp"
	"slices"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/shopspring/decimal"
)

func newTable(columns []table.Column, focused bool) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(focused),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)

	t.SetStyles(s)

	return t
}

// NewQuoteTable creates the table of top of book quotes.
func NewQuoteTable() table.Model {
	return newTable([]table.Column{
		{Title: "Venue", Width: 12},
		{Title: "Symbol", Width: 12},
		{Title: "Bid", Width: 18},
		{Title: "Bid Qty", Width: 12},
		{Title: "Ask", Width: 18},
		{Title: "Ask Qty", Width: 12},
	}, false)
}

// NewOrderTable creates the table of tracked orders.
func NewOrderTable() table.Model {
	return newTable([]table.Column{
		{Title: "Order", Width: 10},
		{Title: "Symbol", Width: 10},
		{Title: "Side", Width: 5},
		{Title: "Type", Width: 7},
		{Title: "Price", Width: 12},
		{Title: "Qty", Width: 10},
		{Title: "Filled", Width: 10},
		{Title: "Status", Width: 17},
	}, true)
}

// UpdateQuoteRows refreshes the quote table, ordered by venue and symbol.
func UpdateQuoteRows(t table.Model, quotes map[types.InstrumentKey]types.Depth, prevBids map[types.InstrumentKey]decimal.Decimal) table.Model {
	keys := make([]types.InstrumentKey, 0, len(quotes))
	for key := range quotes {
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(a, b types.InstrumentKey) int {
		if c := cmp.Compare(a.Venue, b.Venue); c != 0 {
			return c
		}

		return cmp.Compare(a.Symbol, b.Symbol)
	})

	rows := make([]table.Row, 0, len(keys))

	for _, key := range keys {
		depth := quotes[key]

		rows = append(rows, table.Row{
			key.Venue,
			key.Symbol,
			FormatPriceWithTrend(depth.BestBid, prevBids[key]),
			depth.BestBidQty.String(),
			depth.BestAsk.String(),
			depth.BestAskQty.String(),
		})
	}

	t.SetRows(rows)

	return t
}

// UpdateOrderRows refreshes the order table, newest first.
func UpdateOrderRows(t table.Model, orders map[string]types.Order) table.Model {
	sorted := make([]types.Order, 0, len(orders))
	for _, order := range orders {
		sorted = append(sorted, order)
	}

	slices.SortFunc(sorted, func(a, b types.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	rows := make([]table.Row, 0, len(sorted))

	for _, order := range sorted {
		price := order.Price.String()
		if order.Type == types.OrderTypeMarket {
			price = "-"
		}

		rows = append(rows, table.Row{
			shortID(order.ID),
			order.Symbol,
			string(order.Side),
			string(order.Type),
			price,
			order.Quantity.String(),
			order.ExecutedQuantity.String(),
			string(order.Status),
		})
	}

	t.SetRows(rows)

	return t
}

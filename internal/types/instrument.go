package types

import (
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
)

// InstrumentKey identifies an instrument across venues.
type InstrumentKey struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

func (k InstrumentKey) String() string {
	return k.Venue + ":" + k.Symbol
}

// Instrument is a tradable symbol with the venue's price and quantity granularity.
// It is registered once on a connector and never mutated afterwards.
type Instrument struct {
	Venue    string          `json:"venue"`
	Symbol   string          `json:"symbol"`
	TickSize decimal.Decimal `json:"tick_size"`
	LotSize  decimal.Decimal `json:"lot_size"`
}

// NewInstrument creates and validates an instrument.
func NewInstrument(venue, symbol string, tickSize, lotSize decimal.Decimal) (Instrument, error) {
	instrument := Instrument{
		Venue:    venue,
		Symbol:   symbol,
		TickSize: tickSize,
		LotSize:  lotSize,
	}

	if err := instrument.Validate(); err != nil {
		return Instrument{}, err
	}

	return instrument, nil
}

// Validate checks that the symbol is set and both increments are positive.
func (i Instrument) Validate() error {
	if i.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidInstrument, "instrument symbol is required")
	}

	if !i.TickSize.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidInstrument, "tick size of %s must be positive, got %s", i.Symbol, i.TickSize)
	}

	if !i.LotSize.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidInstrument, "lot size of %s must be positive, got %s", i.Symbol, i.LotSize)
	}

	return nil
}

// Key returns the venue scoped key of the instrument.
func (i Instrument) Key() InstrumentKey {
	return InstrumentKey{Venue: i.Venue, Symbol: i.Symbol}
}

// Equal reports whether both instruments describe the same symbol with the same increments.
func (i Instrument) Equal(other Instrument) bool {
	return i.Venue == other.Venue &&
		i.Symbol == other.Symbol &&
		i.TickSize.Equal(other.TickSize) &&
		i.LotSize.Equal(other.LotSize)
}

// RoundPrice rounds the price to the nearest tick.
func (i Instrument) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return price.Div(i.TickSize).Round(0).Mul(i.TickSize)
}

// RoundQuantity floors the quantity to a whole number of lots.
func (i Instrument) RoundQuantity(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Div(i.LotSize).Floor().Mul(i.LotSize)
}

// PriceTicks returns the price expressed in ticks.
func (i Instrument) PriceTicks(price decimal.Decimal) int64 {
	return price.Div(i.TickSize).Round(0).IntPart()
}

// Depth is the top of book snapshot published with market data events.
type Depth struct {
	BestBid    decimal.Decimal `json:"best_bid"`
	BestBidQty decimal.Decimal `json:"best_bid_qty"`
	BestAsk    decimal.Decimal `json:"best_ask"`
	BestAskQty decimal.Decimal `json:"best_ask_qty"`
	TickSize   decimal.Decimal `json:"tick_size"`
	LotSize    decimal.Decimal `json:"lot_size"`
}

// HasBid returns true when a bid is quoted.
func (d Depth) HasBid() bool {
	return d.BestBid.IsPositive()
}

// HasAsk returns true when an ask is quoted.
func (d Depth) HasAsk() bool {
	return d.BestAsk.IsPositive()
}

// Mid returns the mid price, or the single quoted side when the book is one sided.
func (d Depth) Mid() decimal.Decimal {
	switch {
	case d.HasBid() && d.HasAsk():
		return d.BestBid.Add(d.BestAsk).Div(decimal.NewFromInt(2))
	case d.HasBid():
		return d.BestBid
	default:
		return d.BestAsk
	}
}

// StateValues are the per instrument account values derived from fills.
type StateValues struct {
	// Position is the signed base quantity held.
	Position decimal.Decimal `yaml:"position" json:"position"`
	// Balance is the quote cash flow from trades net of fees.
	Balance decimal.Decimal `yaml:"balance" json:"balance"`
	// Fee is the cumulative fee paid.
	Fee decimal.Decimal `yaml:"fee" json:"fee"`
	// TradingVolume is the cumulative traded base quantity.
	TradingVolume decimal.Decimal `yaml:"trading_volume" json:"trading_volume"`
	// TradingValue is the cumulative traded quote amount.
	TradingValue decimal.Decimal `yaml:"trading_value" json:"trading_value"`
	NumTrades    int64           `yaml:"num_trades" json:"num_trades"`
}

// NewStateValues returns zeroed state values.
func NewStateValues() StateValues {
	return StateValues{
		Position:      decimal.Zero,
		Balance:       decimal.Zero,
		Fee:           decimal.Zero,
		TradingVolume: decimal.Zero,
		TradingValue:  decimal.Zero,
		NumTrades:     0,
	}
}

// Package marketsim generates seeded top of book paths on an instrument's tick and lot grid.
package marketsim

import (
	"math"
	"math/rand"

	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/shopspring/decimal"
)

// QuoteGenerator generates quotes for the paper quote feed, the mock exchange and tests.
// It is not safe for concurrent use.
type QuoteGenerator struct {
	rng *rand.Rand
}

// NewQuoteGenerator creates a new QuoteGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewQuoteGenerator(seed int64) *QuoteGenerator {
	return &QuoteGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how quotes are generated.
type GeneratorConfig struct {
	// Count is the number of quotes to generate
	Count int
	// InitialPrice is the starting mid price
	InitialPrice float64
	// Volatility controls mid movement per step (0.001 = 0.1%)
	Volatility float64
	// Trend is the total drift over the path (-0.01 to 0.01 for bearish to bullish)
	Trend float64
	// SpreadTicks is the distance between bid and ask in ticks
	SpreadTicks int64
	TickSize    decimal.Decimal
	LotSize     decimal.Decimal
	// SizeLots is the average quoted size per side in lots
	SizeLots float64
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Count:        1000,
		InitialPrice: 50000.0,
		Volatility:   0.0005,
		Trend:        0.0,
		SpreadTicks:  2,
		TickSize:     decimal.RequireFromString("0.5"),
		LotSize:      decimal.RequireFromString("0.001"),
		SizeLots:     1000,
	}
}

// Generate creates a quote path following a geometric Brownian motion of the mid price.
// Every bid and ask is a multiple of the tick and every size a multiple of the lot.
func (g *QuoteGenerator) Generate(config GeneratorConfig) []types.Depth {
	quotes := make([]types.Depth, config.Count)
	mid := config.InitialPrice

	for i := range config.Count {
		mid = g.Step(mid, config)
		quotes[i] = g.Quote(mid, config)
	}

	return quotes
}

// Step returns the mid price one step after mid. Trend is spread evenly over Count steps.
func (g *QuoteGenerator) Step(mid float64, config GeneratorConfig) float64 {
	// Box-Muller transform for a standard normal sample
	u1 := 1 - g.rng.Float64()
	u2 := g.rng.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

	drift := 0.0
	if config.Count > 0 {
		drift = config.Trend / float64(config.Count)
	}

	next := mid * (1 + config.Volatility*z + drift)
	if next <= 0 {
		next = mid * 0.99
	}

	return next
}

// Quote builds a book SpreadTicks wide around mid, at least one tick.
func (g *QuoteGenerator) Quote(mid float64, config GeneratorConfig) types.Depth {
	spread := max(config.SpreadTicks, 1)

	bidTicks := max(int64(math.Floor(mid/config.TickSize.InexactFloat64()))-spread/2, 1)

	return types.Depth{
		BestBid:    config.TickSize.Mul(decimal.NewFromInt(bidTicks)),
		BestBidQty: g.size(config),
		BestAsk:    config.TickSize.Mul(decimal.NewFromInt(bidTicks + spread)),
		BestAskQty: g.size(config),
		TickSize:   config.TickSize,
		LotSize:    config.LotSize,
	}
}

// size draws a quoted size between half and one and a half times SizeLots, at least one lot.
func (g *QuoteGenerator) size(config GeneratorConfig) decimal.Decimal {
	lots := max(int64(config.SizeLots*(0.5+g.rng.Float64())), 1)

	return config.LotSize.Mul(decimal.NewFromInt(lots))
}

package paper

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-connector/internal/marketsim"
	"go.uber.org/zap"
)

const (
	feedVolatility  = 0.0001
	feedSpreadTicks = 2
	feedSizeLots    = 500
)

// feedSymbol is the walk state of one instrument with an initial price.
type feedSymbol struct {
	symbol string
	mid    float64
	config marketsim.GeneratorConfig
}

// quoteFeed walks the mid price of every instrument with an initial price and publishes a book
// around it each interval. Symbols are stepped in symbol order so a seed replays the same feed.
type quoteFeed struct {
	connector *PaperConnector
	interval  time.Duration
	generator *marketsim.QuoteGenerator
	symbols   []*feedSymbol
}

func newQuoteFeed(p *PaperConnector, config PaperConnectorConfig) *quoteFeed {
	var symbols []*feedSymbol

	for _, instrument := range p.Instruments() {
		price, ok := config.InitialPrices[instrument.Symbol]
		if !ok {
			continue
		}

		walk := marketsim.DefaultConfig()
		walk.InitialPrice = price
		walk.Volatility = feedVolatility
		walk.Count = 0
		walk.SpreadTicks = feedSpreadTicks
		walk.TickSize = instrument.TickSize
		walk.LotSize = instrument.LotSize
		walk.SizeLots = feedSizeLots

		symbols = append(symbols, &feedSymbol{symbol: instrument.Symbol, mid: price, config: walk})
	}

	return &quoteFeed{
		connector: p,
		interval:  time.Duration(config.QuoteIntervalMs) * time.Millisecond,
		generator: marketsim.NewQuoteGenerator(int64(config.Seed)), //nolint:gosec
		symbols:   symbols,
	}
}

func (f *quoteFeed) run(ctx context.Context) {
	if len(f.symbols) == 0 {
		return
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.publish()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.step()
			f.publish()
		}
	}
}

func (f *quoteFeed) step() {
	for _, s := range f.symbols {
		s.mid = f.generator.Step(s.mid, s.config)
	}
}

func (f *quoteFeed) publish() {
	for _, s := range f.symbols {
		depth := f.generator.Quote(s.mid, s.config)

		if err := f.connector.UpdateQuote(s.symbol, depth); err != nil {
			f.connector.Logger().Debug("Quote feed stopped publishing", zap.String("symbol", s.symbol), zap.Error(err))

			return
		}
	}
}

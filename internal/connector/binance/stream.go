package binance

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-connector/internal/types"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"go.uber.org/zap"
)

// bookTickerMessage is the payload of the <symbol>@bookTicker stream.
type bookTickerMessage struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// bookTickerStream publishes the best bid and ask of one instrument as MARKET_DATA events,
// reconnecting with backoff until the connector stops.
type bookTickerStream struct {
	connector  *BinanceConnector
	instrument types.Instrument
	url        string
	dialer     *websocket.Dialer
}

func newBookTickerStream(b *BinanceConnector, instrument types.Instrument) *bookTickerStream {
	return &bookTickerStream{
		connector:  b,
		instrument: instrument,
		url:        strings.TrimSuffix(b.config.WsURL, "/") + "/ws/" + strings.ToLower(instrument.Symbol) + "@bookTicker",
		dialer:     websocket.DefaultDialer,
	}
}

func (s *bookTickerStream) run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 0

	retry := backoff.WithContext(policy, ctx)
	log := s.connector.Logger()

	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}

		if connected {
			retry.Reset()
		}

		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			return
		}

		log.Warn("Book ticker stream disconnected",
			zap.String("symbol", s.instrument.Symbol),
			zap.Duration("reconnect_in", wait),
			zap.Error(err),
		)
		s.connector.EmitInternalError(nil, s.instrument.Symbol,
			errors.Wrapf(errors.ErrCodeStreamFailed, err, "book ticker stream for %s failed", s.instrument.Symbol))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// session reads one connection until it fails. connected reports whether the dial succeeded.
func (s *bookTickerStream) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	s.connector.Logger().Info("Book ticker stream connected", zap.String("symbol", s.instrument.Symbol))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var message bookTickerMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			s.connector.Logger().Debug("Ignoring malformed book ticker message",
				zap.String("symbol", s.instrument.Symbol),
				zap.Error(err),
			)

			continue
		}

		_ = s.connector.Emit(nil, types.NewMarketDataEvent(s.instrument.Symbol, s.depth(message)))
	}
}

func (s *bookTickerStream) depth(message bookTickerMessage) types.Depth {
	return types.Depth{
		BestBid:    parseDecimal(message.BidPrice),
		BestBidQty: parseDecimal(message.BidQty),
		BestAsk:    parseDecimal(message.AskPrice),
		BestAskQty: parseDecimal(message.AskQty),
		TickSize:   s.instrument.TickSize,
		LotSize:    s.instrument.LotSize,
	}
}

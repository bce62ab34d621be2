package paper

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
)

// PaperConnectorConfig contains configuration for the simulated venue.
type PaperConnectorConfig struct {
	Commission   Commission `json:"commission" jsonschema:"title=Commission,description=Fee model applied to fills,enum=rate,enum=per_unit,enum=zero,default=rate" validate:"omitempty,oneof=rate per_unit zero"`
	MakerFeeRate float64    `json:"makerFeeRate" jsonschema:"title=Maker Fee Rate,description=Fee rate for resting orders (rate model),default=0.0002" validate:"gte=0,lt=1"`
	TakerFeeRate float64    `json:"takerFeeRate" jsonschema:"title=Taker Fee Rate,description=Fee rate for orders that take liquidity (rate model),default=0.0005" validate:"gte=0,lt=1"`
	FeeAsset     string     `json:"feeAsset" jsonschema:"title=Fee Asset,description=Asset fees are charged in,default=USD"`
	// FillChunkLots splits every fill into chunks of this many lots. Zero fills in one piece.
	FillChunkLots int    `json:"fillChunkLots" jsonschema:"title=Fill Chunk Lots,description=Split fills into partial fills of this many lots,minimum=0" validate:"gte=0"`
	FillLatencyMs int    `json:"fillLatencyMs" jsonschema:"title=Fill Latency,description=Delay in milliseconds before an order is matched,minimum=0" validate:"gte=0,lte=60000"`
	RejectAll     bool   `json:"rejectAll" jsonschema:"title=Reject All,description=Reject every order"`
	RejectReason  string `json:"rejectReason" jsonschema:"title=Reject Reason,description=Reason attached to rejections when rejectAll is set"`
	// QuoteIntervalMs enables a random walk quote feed for every instrument with an initial price.
	QuoteIntervalMs int                `json:"quoteIntervalMs" jsonschema:"title=Quote Interval,description=Milliseconds between simulated quotes (0 disables the feed),minimum=0" validate:"gte=0"`
	InitialPrices   map[string]float64 `json:"initialPrices" jsonschema:"title=Initial Prices,description=Starting mid price per symbol for the quote feed" validate:"dive,gt=0"`
	Seed            uint64             `json:"seed" jsonschema:"title=Seed,description=Random seed of the quote feed"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() PaperConnectorConfig {
	return PaperConnectorConfig{
		Commission:      CommissionRate,
		MakerFeeRate:    0.0002,
		TakerFeeRate:    0.0005,
		FeeAsset:        "USD",
		FillChunkLots:   0,
		FillLatencyMs:   0,
		RejectAll:       false,
		RejectReason:    "",
		QuoteIntervalMs: 0,
		InitialPrices:   map[string]float64{},
		Seed:            1,
	}
}

// Validate validates the PaperConnectorConfig struct.
func (c *PaperConnectorConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid paper connector config", err)
	}

	return nil
}

// ParseConfig parses a JSON configuration string on top of DefaultConfig.
func ParseConfig(jsonConfig string) (*PaperConnectorConfig, error) {
	config := DefaultConfig()

	if jsonConfig != "" {
		if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse paper config", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

package binance

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
)

const (
	// TestnetBaseURL is the REST endpoint of the Binance spot testnet.
	TestnetBaseURL = "https://testnet.binance.vision"
	// TestnetWsURL is the market stream endpoint of the Binance spot testnet.
	TestnetWsURL = "wss://stream.testnet.binance.vision"
	// LiveWsURL is the market stream endpoint of Binance spot.
	LiveWsURL = "wss://stream.binance.com:9443"
)

// BinanceConnectorConfig contains configuration for Binance spot trading.
type BinanceConnectorConfig struct {
	ApiKey    string `json:"apiKey" jsonschema:"title=API Key,description=Binance API key" validate:"required"`
	SecretKey string `json:"secretKey" jsonschema:"title=Secret Key,description=Binance API secret key" validate:"required"`
	// BaseURL overrides the REST endpoint. It takes precedence over Testnet.
	BaseURL string `json:"baseUrl" jsonschema:"title=Base URL,description=REST endpoint override" validate:"omitempty,url"`
	// WsURL overrides the market stream endpoint. It takes precedence over Testnet.
	WsURL             string  `json:"wsUrl" jsonschema:"title=Stream URL,description=Market stream endpoint override" validate:"omitempty,url"`
	Testnet           bool    `json:"testnet" jsonschema:"title=Testnet,description=Use the Binance spot testnet"`
	DisableMarketData bool    `json:"disableMarketData" jsonschema:"title=Disable Market Data,description=Do not subscribe to book ticker streams"`
	Workers           int     `json:"workers" jsonschema:"title=Workers,description=Number of order entry workers,default=4,minimum=0,maximum=64" validate:"gte=0,lte=64"`
	PollIntervalMs    int     `json:"pollIntervalMs" jsonschema:"title=Poll Interval,description=Milliseconds between order status polls,default=1000,minimum=0" validate:"gte=0"`
	RequestsPerSecond float64 `json:"requestsPerSecond" jsonschema:"title=Requests Per Second,description=Outbound REST rate limit,default=10,minimum=0" validate:"gte=0"`
	MaxRetries        int     `json:"maxRetries" jsonschema:"title=Max Retries,description=Retries of a failed transport call,default=3,minimum=0,maximum=10" validate:"gte=0,lte=10"`
}

// Validate validates the BinanceConnectorConfig struct.
func (c *BinanceConnectorConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid binance connector config", err)
	}

	return nil
}

// withDefaults fills the zero tunables and resolves the endpoints.
func (c BinanceConnectorConfig) withDefaults() BinanceConnectorConfig {
	if c.Workers == 0 {
		c.Workers = 4
	}

	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = 1000
	}

	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}

	if c.BaseURL == "" && c.Testnet {
		c.BaseURL = TestnetBaseURL
	}

	if c.WsURL == "" {
		c.WsURL = LiveWsURL
		if c.Testnet {
			c.WsURL = TestnetWsURL
		}
	}

	return c
}

func (c BinanceConnectorConfig) pollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ParseConfig parses a JSON configuration string into a BinanceConnectorConfig.
func ParseConfig(jsonConfig string) (*BinanceConnectorConfig, error) {
	var config BinanceConnectorConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse binance config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

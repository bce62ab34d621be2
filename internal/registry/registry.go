// Package registry knows the shipped connector types and routes engine requests to running
// connectors by venue.
package registry

import (
	"slices"

	"github.com/rxtech-lab/argo-connector/internal/connector"
	"github.com/rxtech-lab/argo-connector/internal/connector/binance"
	"github.com/rxtech-lab/argo-connector/internal/connector/paper"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/rxtech-lab/argo-connector/pkg/schema"
)

type ConnectorType string

const (
	ConnectorPaper          ConnectorType = "paper"
	ConnectorBinanceTestnet ConnectorType = "binance-testnet"
	ConnectorBinanceLive    ConnectorType = "binance-live"
)

type ConnectorInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	IsPaperTrading bool   `json:"isPaperTrading"`
}

var connectorRegistry = map[ConnectorType]ConnectorInfo{
	ConnectorPaper: {
		Name:           string(ConnectorPaper),
		DisplayName:    "Paper",
		Description:    "Simulated venue that matches orders against simulated quotes",
		IsPaperTrading: true,
	},
	ConnectorBinanceTestnet: {
		Name:           string(ConnectorBinanceTestnet),
		DisplayName:    "Binance Testnet",
		Description:    "Binance spot testnet for trading without real funds",
		IsPaperTrading: true,
	},
	ConnectorBinanceLive: {
		Name:           string(ConnectorBinanceLive),
		DisplayName:    "Binance Live",
		Description:    "Binance spot for real-funds cryptocurrency trading",
		IsPaperTrading: false,
	},
}

// GetSupportedConnectors returns the names of every connector type, sorted.
func GetSupportedConnectors() []string {
	connectors := make([]string, 0, len(connectorRegistry))
	for connectorType := range connectorRegistry {
		connectors = append(connectors, string(connectorType))
	}

	slices.Sort(connectors)

	return connectors
}

// GetConnectorInfo returns metadata for a specific connector type.
func GetConnectorInfo(connectorName string) (ConnectorInfo, error) {
	info, exists := connectorRegistry[ConnectorType(connectorName)]
	if !exists {
		return ConnectorInfo{}, unsupported(connectorName)
	}

	return info, nil
}

// GetConnectorConfigSchema returns the JSON schema for a connector's configuration.
func GetConnectorConfigSchema(connectorName string) (string, error) {
	switch ConnectorType(connectorName) {
	case ConnectorPaper:
		return schema.ToJSONSchema(paper.DefaultConfig())
	case ConnectorBinanceTestnet, ConnectorBinanceLive:
		return schema.ToJSONSchema(binance.BinanceConnectorConfig{}) //nolint:exhaustruct
	default:
		return "", unsupported(connectorName)
	}
}

// ParseConnectorConfig parses a JSON configuration string for the given connector type.
func ParseConnectorConfig(connectorName string, jsonConfig string) (any, error) {
	switch ConnectorType(connectorName) {
	case ConnectorPaper:
		return paper.ParseConfig(jsonConfig)
	case ConnectorBinanceTestnet, ConnectorBinanceLive:
		return binance.ParseConfig(jsonConfig)
	default:
		return nil, unsupported(connectorName)
	}
}

// NewConnector creates a connector of the given type for venue from a parsed config.
func NewConnector(connectorType ConnectorType, venue string, config any, log *logger.Logger) (connector.Connector, error) {
	if venue == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "venue is required")
	}

	switch connectorType {
	case ConnectorPaper:
		cfg, ok := config.(*paper.PaperConnectorConfig)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfiguration, "invalid config type for paper connector")
		}

		return paper.NewPaperConnector(venue, *cfg, log)

	case ConnectorBinanceTestnet:
		cfg, ok := config.(*binance.BinanceConnectorConfig)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfiguration, "invalid config type for binance testnet connector")
		}

		testnet := *cfg
		testnet.Testnet = true

		return binance.NewBinanceConnector(venue, testnet, log)

	case ConnectorBinanceLive:
		cfg, ok := config.(*binance.BinanceConnectorConfig)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfiguration, "invalid config type for binance live connector")
		}

		live := *cfg
		live.Testnet = false

		return binance.NewBinanceConnector(venue, live, log)

	default:
		return nil, unsupported(string(connectorType))
	}
}

func unsupported(connectorName string) error {
	return errors.Newf(errors.ErrCodeUnsupportedConnector, "unsupported connector: %s", connectorName)
}

// Package config loads the YAML file that describes a connector session.
package config

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-connector/internal/connector"
	"github.com/rxtech-lab/argo-connector/internal/logger"
	"github.com/rxtech-lab/argo-connector/internal/registry"
	"github.com/rxtech-lab/argo-connector/internal/version"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is the root of a session file.
type Config struct {
	Version    string            `yaml:"version" validate:"required"`
	Log        LogConfig         `yaml:"log"`
	Journal    JournalConfig     `yaml:"journal"`
	StatePath  string            `yaml:"state_path"`
	Connectors []ConnectorConfig `yaml:"connectors" validate:"required,min=1,dive"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// ConnectorConfig describes one venue. Settings are passed to the connector type's own parser.
type ConnectorConfig struct {
	Venue       string             `yaml:"venue" validate:"required"`
	Type        string             `yaml:"type" validate:"required"`
	Settings    map[string]any     `yaml:"settings"`
	Instruments []InstrumentConfig `yaml:"instruments" validate:"dive"`
}

type InstrumentConfig struct {
	Symbol   string `yaml:"symbol" validate:"required"`
	TickSize string `yaml:"tickSize" validate:"required,numeric"`
	LotSize  string `yaml:"lotSize" validate:"required,numeric"`
}

// Load reads, expands and validates a config file against the running binary's version.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return Parse(data, version.GetVersion())
}

// Parse parses config content. ${VAR} references are expanded from the environment before parsing.
func Parse(data []byte, binaryVersion string) (*Config, error) {
	var config Config

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := version.CheckConfigCompatibility(binaryVersion, config.Version); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the struct tags and the cross-field rules.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	var errs error

	venues := make(map[string]struct{}, len(c.Connectors))

	for _, connectorConfig := range c.Connectors {
		if _, exists := venues[connectorConfig.Venue]; exists {
			errs = multierr.Append(errs, errors.Newf(errors.ErrCodeVenueExists, "venue %s is configured twice", connectorConfig.Venue))
		}

		venues[connectorConfig.Venue] = struct{}{}

		if _, err := registry.GetConnectorInfo(connectorConfig.Type); err != nil {
			errs = multierr.Append(errs, err)
		}

		for _, instrument := range connectorConfig.Instruments {
			if _, _, err := instrument.Sizes(); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	return errs
}

// SettingsJSON re-encodes the settings block as JSON.
func (c ConnectorConfig) SettingsJSON() (string, error) {
	if len(c.Settings) == 0 {
		return "", nil
	}

	data, err := json.Marshal(c.Settings)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to encode settings of venue %s", c.Venue)
	}

	return string(data), nil
}

// Build creates the connector and registers its instruments.
func (c ConnectorConfig) Build(log *logger.Logger) (connector.Connector, error) {
	settings, err := c.SettingsJSON()
	if err != nil {
		return nil, err
	}

	parsed, err := registry.ParseConnectorConfig(c.Type, settings)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "venue %s", c.Venue)
	}

	conn, err := registry.NewConnector(registry.ConnectorType(c.Type), c.Venue, parsed, log)
	if err != nil {
		return nil, err
	}

	for _, instrument := range c.Instruments {
		tickSize, lotSize, err := instrument.Sizes()
		if err != nil {
			return nil, err
		}

		if err := conn.Add(instrument.Symbol, tickSize, lotSize); err != nil {
			return nil, err
		}
	}

	return conn, nil
}

// Sizes parses the tick and lot size.
func (i InstrumentConfig) Sizes() (decimal.Decimal, decimal.Decimal, error) {
	tickSize, err := decimal.NewFromString(i.TickSize)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(errors.ErrCodeInvalidInstrument, err, "invalid tick size for %s", i.Symbol)
	}

	lotSize, err := decimal.NewFromString(i.LotSize)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(errors.ErrCodeInvalidInstrument, err, "invalid lot size for %s", i.Symbol)
	}

	if !tickSize.IsPositive() || !lotSize.IsPositive() {
		return decimal.Zero, decimal.Zero, errors.Newf(errors.ErrCodeInvalidInstrument, "tick and lot size of %s must be positive", i.Symbol)
	}

	return tickSize, lotSize, nil
}

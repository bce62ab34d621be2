package registry

import (
	"testing"

	"github.com/rxtech-lab/argo-connector/internal/connector/binance"
	"github.com/rxtech-lab/argo-connector/internal/connector/paper"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type RegistryTestSuite struct {
	suite.Suite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (suite *RegistryTestSuite) TestGetSupportedConnectors() {
	suite.Equal([]string{"binance-live", "binance-testnet", "paper"}, GetSupportedConnectors())
}

func (suite *RegistryTestSuite) TestGetConnectorInfo() {
	info, err := GetConnectorInfo("binance-testnet")
	suite.NoError(err)
	suite.Equal("Binance Testnet", info.DisplayName)
	suite.True(info.IsPaperTrading)

	info, err = GetConnectorInfo("binance-live")
	suite.NoError(err)
	suite.False(info.IsPaperTrading)

	_, err = GetConnectorInfo("unsupported-connector")
	suite.True(errors.HasCode(err, errors.ErrCodeUnsupportedConnector))
	suite.Contains(err.Error(), "unsupported connector")
}

func (suite *RegistryTestSuite) TestGetConnectorConfigSchema() {
	schema, err := GetConnectorConfigSchema("binance-live")
	suite.NoError(err)
	suite.Contains(schema, "apiKey")
	suite.Contains(schema, "secretKey")

	schema, err = GetConnectorConfigSchema("paper")
	suite.NoError(err)
	suite.Contains(schema, "takerFeeRate")
	suite.Contains(schema, "fillChunkLots")

	_, err = GetConnectorConfigSchema("unsupported-connector")
	suite.Error(err)
}

func (suite *RegistryTestSuite) TestParseConnectorConfig() {
	config, err := ParseConnectorConfig("binance-testnet", `{"apiKey": "k", "secretKey": "s"}`)
	suite.Require().NoError(err)

	binanceConfig, ok := config.(*binance.BinanceConnectorConfig)
	suite.Require().True(ok)
	suite.Equal("k", binanceConfig.ApiKey)

	config, err = ParseConnectorConfig("paper", `{"fillChunkLots": 2}`)
	suite.Require().NoError(err)

	paperConfig, ok := config.(*paper.PaperConnectorConfig)
	suite.Require().True(ok)
	suite.Equal(2, paperConfig.FillChunkLots)
	suite.InDelta(0.0005, paperConfig.TakerFeeRate, 1e-12)

	_, err = ParseConnectorConfig("binance-live", `{"apiKey": "k"}`)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	_, err = ParseConnectorConfig("unsupported-connector", `{}`)
	suite.True(errors.HasCode(err, errors.ErrCodeUnsupportedConnector))
}

func (suite *RegistryTestSuite) TestNewConnector() {
	paperConfig := paper.DefaultConfig()

	c, err := NewConnector(ConnectorPaper, "sim", &paperConfig, nil)
	suite.Require().NoError(err)
	suite.Equal("sim", c.Venue())

	binanceConfig := &binance.BinanceConnectorConfig{ApiKey: "k", SecretKey: "s"} //nolint:exhaustruct

	c, err = NewConnector(ConnectorBinanceTestnet, "binance", binanceConfig, nil)
	suite.Require().NoError(err)
	suite.Equal("binance", c.Venue())
	suite.False(binanceConfig.Testnet, "the caller's config is not modified")
}

func (suite *RegistryTestSuite) TestNewConnector_InvalidConfigType() {
	paperConfig := paper.DefaultConfig()

	_, err := NewConnector(ConnectorBinanceLive, "binance", &paperConfig, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	_, err = NewConnector(ConnectorPaper, "", &paperConfig, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingParameter))

	_, err = NewConnector("unknown", "x", nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeUnsupportedConnector))
}

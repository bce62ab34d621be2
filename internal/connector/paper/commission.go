package paper

import "github.com/shopspring/decimal"

type Commission string

const (
	// CommissionRate charges a fraction of the traded value, split into maker and taker rates.
	CommissionRate Commission = "rate"
	// CommissionPerUnit charges a fixed amount per unit traded with a minimum per fill.
	CommissionPerUnit Commission = "per_unit"
	CommissionZero    Commission = "zero"
)

type CommissionFee interface {
	// Calculate returns the fee for a fill of quantity at price, in the fee asset
	Calculate(price, quantity decimal.Decimal, isMaker bool) decimal.Decimal
}

// GetCommissionFeeHandler returns the fee model for the config. Unknown models charge nothing.
func GetCommissionFeeHandler(config PaperConnectorConfig) CommissionFee {
	switch config.Commission {
	case CommissionRate, "":
		return NewRateCommissionFee(decimal.NewFromFloat(config.MakerFeeRate), decimal.NewFromFloat(config.TakerFeeRate))
	case CommissionPerUnit:
		return NewPerUnitCommissionFee(decimal.RequireFromString("0.005"), decimal.NewFromInt(1))
	default:
		return NewZeroCommissionFee()
	}
}

type RateCommissionFee struct {
	maker decimal.Decimal
	taker decimal.Decimal
}

func NewRateCommissionFee(maker, taker decimal.Decimal) CommissionFee {
	return &RateCommissionFee{maker: maker, taker: taker}
}

func (c *RateCommissionFee) Calculate(price, quantity decimal.Decimal, isMaker bool) decimal.Decimal {
	rate := c.taker
	if isMaker {
		rate = c.maker
	}

	return price.Mul(quantity).Mul(rate)
}

type PerUnitCommissionFee struct {
	perUnit decimal.Decimal
	minimum decimal.Decimal
}

func NewPerUnitCommissionFee(perUnit, minimum decimal.Decimal) CommissionFee {
	return &PerUnitCommissionFee{perUnit: perUnit, minimum: minimum}
}

func (c *PerUnitCommissionFee) Calculate(_, quantity decimal.Decimal, _ bool) decimal.Decimal {
	fee := c.perUnit.Mul(quantity)
	if fee.LessThan(c.minimum) {
		return c.minimum
	}

	return fee
}

// ZeroCommissionFee implements CommissionFee with zero commission.
type ZeroCommissionFee struct{}

// NewZeroCommissionFee creates a new zero commission fee.
func NewZeroCommissionFee() CommissionFee {
	return &ZeroCommissionFee{}
}

// Calculate returns 0 for any fill.
func (c *ZeroCommissionFee) Calculate(_, _ decimal.Decimal, _ bool) decimal.Decimal {
	return decimal.Zero
}

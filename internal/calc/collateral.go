package calc

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// DefaultFeedDecimals is the number of fractional digits carried by the
// USD price feeds the engine is configured with by default.
const DefaultFeedDecimals = 8

// wadDecimals is the number of fractional digits of the protocol USD unit.
const wadDecimals = 18

var (
	ErrOverflow       = errors.New("fixed-point overflow")
	ErrDivisionByZero = errors.New("fixed-point division by zero")
	ErrFeedDecimals   = errors.New("feed decimals exceed protocol precision")
)

var (
	precision            = uint256.NewInt(1_000_000_000_000_000_000)
	liquidationThreshold = uint256.NewInt(50)
	liquidationPrecision = uint256.NewInt(100)
	liquidationBonus     = uint256.NewInt(10)
	minHealthFactor      = uint256.NewInt(1_000_000_000_000_000_000)
	maxHealthFactor      = new(uint256.Int).SetAllOne()
)

// Precision is 1e18, the scale of USD values, debt and health factors.
func Precision() *uint256.Int { return new(uint256.Int).Set(precision) }

// LiquidationThreshold is the share of collateral value, over
// LiquidationPrecision, that counts toward backing debt.
func LiquidationThreshold() *uint256.Int { return new(uint256.Int).Set(liquidationThreshold) }

// LiquidationPrecision is the denominator of LiquidationThreshold and
// LiquidationBonus.
func LiquidationPrecision() *uint256.Int { return new(uint256.Int).Set(liquidationPrecision) }

// LiquidationBonus is the extra collateral, over LiquidationPrecision, paid
// to a liquidator on top of the debt it covers.
func LiquidationBonus() *uint256.Int { return new(uint256.Int).Set(liquidationBonus) }

// MinHealthFactor is 1.0 in 18-decimal fixed point.
func MinHealthFactor() *uint256.Int { return new(uint256.Int).Set(minHealthFactor) }

// MaxHealthFactor is the sentinel returned for positions without debt.
func MaxHealthFactor() *uint256.Int { return new(uint256.Int).Set(maxHealthFactor) }

// FeedPrecision returns the factor lifting a price with the given number of
// decimals to 18 decimals (1e10 for an 8-decimal feed).
func FeedPrecision(decimals uint8) (*uint256.Int, error) {
	if decimals > wadDecimals {
		return nil, fmt.Errorf("%w: %d", ErrFeedDecimals, decimals)
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(wadDecimals-decimals))), nil
}

// USDValue converts an asset amount to 18-decimal USD:
// ((price * feedPrecision) * amount) / 1e18.
func USDValue(price, feedPrecision, amount *uint256.Int) (*uint256.Int, error) {
	scaled, err := mul(price, feedPrecision)
	if err != nil {
		return nil, err
	}
	value, err := mul(scaled, amount)
	if err != nil {
		return nil, err
	}
	return value.Div(value, precision), nil
}

// TokenAmountFromUSD converts an 18-decimal USD amount to asset units:
// (usd * 1e18) / (price * feedPrecision).
func TokenAmountFromUSD(price, feedPrecision, usd *uint256.Int) (*uint256.Int, error) {
	scaled, err := mul(price, feedPrecision)
	if err != nil {
		return nil, err
	}
	if scaled.IsZero() {
		return nil, ErrDivisionByZero
	}
	numerator, err := mul(usd, precision)
	if err != nil {
		return nil, err
	}
	return numerator.Div(numerator, scaled), nil
}

// HealthFactor computes ((collateralUSD * threshold) / thresholdPrecision * 1e18) / debt.
// A zero debt yields MaxHealthFactor.
func HealthFactor(collateralUSD, debt *uint256.Int) (*uint256.Int, error) {
	if debt.IsZero() {
		return MaxHealthFactor(), nil
	}
	adjusted, err := mul(collateralUSD, liquidationThreshold)
	if err != nil {
		return nil, err
	}
	adjusted.Div(adjusted, liquidationPrecision)
	numerator, err := mul(adjusted, precision)
	if err != nil {
		return nil, err
	}
	return numerator.Div(numerator, debt), nil
}

// IsHealthy reports whether a health factor meets the inclusive minimum.
func IsHealthy(healthFactor *uint256.Int) bool {
	return !healthFactor.Lt(minHealthFactor)
}

// LiquidationBonusAmount is base * bonus / bonusPrecision.
func LiquidationBonusAmount(base *uint256.Int) (*uint256.Int, error) {
	bonus, err := mul(base, liquidationBonus)
	if err != nil {
		return nil, err
	}
	return bonus.Div(bonus, liquidationPrecision), nil
}

// Add returns a + b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

func mul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product, nil
}

package calc

import (
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wad(units uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(units), precision)
}

func feedPrice(units uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(units), uint256.NewInt(100_000_000))
}

func TestFeedPrecision(t *testing.T) {
	p, err := FeedPrecision(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000_000), p.Uint64())

	p, err = FeedPrecision(18)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Uint64())

	_, err = FeedPrecision(19)
	assert.ErrorIs(t, err, ErrFeedDecimals)
}

func TestUSDValue(t *testing.T) {
	fp, err := FeedPrecision(DefaultFeedDecimals)
	require.NoError(t, err)

	tests := []struct {
		name     string
		price    *uint256.Int
		amount   *uint256.Int
		expected *uint256.Int
	}{
		{
			name:     "ten units at 2000",
			price:    feedPrice(2000),
			amount:   wad(10),
			expected: wad(20_000),
		},
		{
			name:     "fifteen units at 30000",
			price:    feedPrice(30_000),
			amount:   wad(15),
			expected: wad(450_000),
		},
		{
			name:     "zero amount",
			price:    feedPrice(2000),
			amount:   uint256.NewInt(0),
			expected: uint256.NewInt(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := USDValue(tt.price, fp, tt.amount)
			require.NoError(t, err)
			assert.True(t, tt.expected.Eq(result), "expected %s, got %s", tt.expected.Dec(), result.Dec())
		})
	}
}

func TestTokenAmountFromUSD(t *testing.T) {
	fp, err := FeedPrecision(DefaultFeedDecimals)
	require.NoError(t, err)

	// $100 at $2000/unit is 0.05 units.
	result, err := TokenAmountFromUSD(feedPrice(2000), fp, wad(100))
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", result.Dec())

	_, err = TokenAmountFromUSD(uint256.NewInt(0), fp, wad(100))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestTokenAmountFromUSDTruncates(t *testing.T) {
	fp, err := FeedPrecision(DefaultFeedDecimals)
	require.NoError(t, err)

	// One wei of debt at $1000/unit rounds down to nothing.
	result, err := TokenAmountFromUSD(feedPrice(1000), fp, uint256.NewInt(1))
	require.NoError(t, err)
	assert.True(t, result.IsZero())
}

func TestHealthFactor(t *testing.T) {
	tests := []struct {
		name       string
		collateral *uint256.Int
		debt       *uint256.Int
		expected   *uint256.Int
	}{
		{
			name:       "exactly at minimum",
			collateral: wad(20_000),
			debt:       wad(10_000),
			expected:   MinHealthFactor(),
		},
		{
			name:       "half",
			collateral: wad(10_000),
			debt:       wad(10_000),
			expected:   new(uint256.Int).Div(precision, uint256.NewInt(2)),
		},
		{
			name:       "zero debt is maximal",
			collateral: uint256.NewInt(0),
			debt:       uint256.NewInt(0),
			expected:   MaxHealthFactor(),
		},
		{
			name:       "zero collateral with debt",
			collateral: uint256.NewInt(0),
			debt:       wad(1),
			expected:   uint256.NewInt(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := HealthFactor(tt.collateral, tt.debt)
			require.NoError(t, err)
			assert.True(t, tt.expected.Eq(result), "expected %s, got %s", tt.expected.Dec(), result.Dec())
		})
	}
}

func TestHealthFactorThresholdDividesFirst(t *testing.T) {
	// 3 wei * 50 / 100 = 1 before scaling, so the result is 1e18 / 1.
	result, err := HealthFactor(uint256.NewInt(3), uint256.NewInt(1))
	require.NoError(t, err)
	assert.True(t, precision.Eq(result))
}

func TestIsHealthy(t *testing.T) {
	assert.True(t, IsHealthy(MinHealthFactor()))
	assert.True(t, IsHealthy(MaxHealthFactor()))
	assert.False(t, IsHealthy(new(uint256.Int).SubUint64(MinHealthFactor(), 1)))
}

func TestLiquidationBonusAmount(t *testing.T) {
	bonus, err := LiquidationBonusAmount(wad(5))
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", bonus.Dec())
}

func TestOverflow(t *testing.T) {
	_, err := USDValue(MaxHealthFactor(), uint256.NewInt(10), uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Add(MaxHealthFactor(), uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestConstantsAreCopies(t *testing.T) {
	p := Precision()
	p.SetUint64(7)
	assert.Equal(t, "1000000000000000000", Precision().Dec())
}

func TestToWadFromWad(t *testing.T) {
	v, err := ToWad(decimal.RequireFromString("10.5"), 18)
	require.NoError(t, err)
	assert.Equal(t, "10500000000000000000", v.Dec())
	assert.Equal(t, "10.5", FromWad(v, 18).String())

	v, err = ToWad(decimal.RequireFromString("0.123456789"), 8)
	require.NoError(t, err)
	assert.Equal(t, "12345678", v.Dec())

	_, err = ToWad(decimal.NewFromInt(-1), 18)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.NewFromInt(1), "deposit"))

	err := ValidateAmount(decimal.Zero, "deposit")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Contains(t, err.Error(), "deposit amount must be positive")

	assert.Error(t, ValidateAmount(decimal.New(1, 41), "mint"))
}

func TestValidateOracleAge(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.NoError(t, ValidateOracleAge(now.Add(-time.Hour), now, 3*time.Hour))
	assert.NoError(t, ValidateOracleAge(now.Add(-3*time.Hour), now, 3*time.Hour))

	err := ValidateOracleAge(now.Add(-3*time.Hour-time.Second), now, 3*time.Hour)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "too stale")
}

func TestPriceToUint(t *testing.T) {
	v, err := PriceToUint(big.NewInt(200_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000_000_000), v.Uint64())

	_, err = PriceToUint(big.NewInt(0))
	assert.Error(t, err)
	_, err = PriceToUint(big.NewInt(-5))
	assert.Error(t, err)
	_, err = PriceToUint(nil)
	assert.Error(t, err)
}

package calc

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ValidateOracleAge checks if oracle data is fresh enough
func ValidateOracleAge(updatedAt, now time.Time, maxAge time.Duration) error {
	age := now.Sub(updatedAt)
	if age > maxAge {
		return fmt.Errorf("oracle data too stale: %v > %v", age, maxAge)
	}
	return nil
}

// ValidateAmount checks if a human-readable amount is positive and within reasonable bounds
func ValidateAmount(amount decimal.Decimal, operation string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: %s amount must be positive", ErrInvalidAmount, operation)
	}

	// Keeps ToWad results well inside 256 bits.
	maxAmount := decimal.New(1, 40)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: %s amount too large", ErrInvalidAmount, operation)
	}

	return nil
}

// ToWad scales a token-unit decimal to its integer representation with the
// given number of decimals, truncating any extra fractional digits.
func ToWad(amount decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative value %s", ErrInvalidAmount, amount)
	}
	scaled := amount.Shift(decimals).Truncate(0).BigInt()
	v, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// FromWad renders an integer amount with the given number of decimals.
func FromWad(v *uint256.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals)
}

// PriceToUint converts a signed feed answer to an unsigned price. Zero and
// negative answers are rejected.
func PriceToUint(answer *big.Int) (*uint256.Int, error) {
	if answer == nil || answer.Sign() <= 0 {
		return nil, fmt.Errorf("non-positive price %v", answer)
	}
	v, overflow := uint256.FromBig(answer)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

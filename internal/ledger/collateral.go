package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/state"
)

var ErrInsufficientCollateral = errors.New("ledger: insufficient collateral")

// GetCollateral returns the deposited amount of asset held for user.
func GetCollateral(ctx context.Context, im state.Immutable, user, asset common.Address) (*uint256.Int, error) {
	return GetAmount(ctx, im, CollateralKey(user, asset))
}

// GetTotalCollateral returns the protocol-wide deposits of asset.
func GetTotalCollateral(ctx context.Context, im state.Immutable, asset common.Address) (*uint256.Int, error) {
	return GetAmount(ctx, im, TotalCollateralKey(asset))
}

// AddCollateral credits user and the asset aggregate, returning the new
// user balance.
func AddCollateral(ctx context.Context, mu state.Mutable, user, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	nbal, err := addAmount(ctx, mu, CollateralKey(user, asset), amount)
	if err != nil {
		return nil, err
	}
	if _, err := addAmount(ctx, mu, TotalCollateralKey(asset), amount); err != nil {
		return nil, err
	}
	return nbal, touchAccount(ctx, mu, user)
}

// SubCollateral debits user and the asset aggregate. It fails with
// ErrInsufficientCollateral rather than underflowing.
func SubCollateral(ctx context.Context, mu state.Mutable, user, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	nbal, err := subAmount(ctx, mu, CollateralKey(user, asset), amount, ErrInsufficientCollateral)
	if err != nil {
		return nil, err
	}
	if _, err := subAmount(ctx, mu, TotalCollateralKey(asset), amount, ErrInsufficientCollateral); err != nil {
		return nil, err
	}
	return nbal, nil
}

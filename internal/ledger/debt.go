package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/state"
)

var ErrInsufficientDebt = errors.New("ledger: burn exceeds outstanding debt")

func GetDebt(ctx context.Context, im state.Immutable, user common.Address) (*uint256.Int, error) {
	return GetAmount(ctx, im, DebtKey(user))
}

func GetTotalDebt(ctx context.Context, im state.Immutable) (*uint256.Int, error) {
	return GetAmount(ctx, im, totalDebtKey)
}

func AddDebt(ctx context.Context, mu state.Mutable, user common.Address, amount *uint256.Int) (*uint256.Int, error) {
	nbal, err := addAmount(ctx, mu, DebtKey(user), amount)
	if err != nil {
		return nil, err
	}
	if _, err := addAmount(ctx, mu, totalDebtKey, amount); err != nil {
		return nil, err
	}
	return nbal, touchAccount(ctx, mu, user)
}

func SubDebt(ctx context.Context, mu state.Mutable, user common.Address, amount *uint256.Int) (*uint256.Int, error) {
	nbal, err := subAmount(ctx, mu, DebtKey(user), amount, ErrInsufficientDebt)
	if err != nil {
		return nil, err
	}
	if _, err := subAmount(ctx, mu, totalDebtKey, amount, ErrInsufficientDebt); err != nil {
		return nil, err
	}
	return nbal, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/calc"
	"github.com/leafsii/collateral-engine/internal/ledger"
)

type quote struct {
	price         *uint256.Int
	feedPrecision *uint256.Int
}

// quote prices asset once per operation so every step of an operation sees
// the same price.
func (e *Engine) quote(ctx context.Context, f *frame, asset common.Address) (quote, error) {
	if q, ok := f.prices[asset]; ok {
		return q, nil
	}
	feedID, err := e.registry.feed(asset)
	if err != nil {
		return quote{}, err
	}
	round, err := e.oracle.LatestRound(ctx, feedID)
	if err != nil {
		return quote{}, fmt.Errorf("%w: %s: %w", ErrPriceUnavailable, feedID, err)
	}
	price, err := calc.PriceToUint(round.Answer)
	if err != nil {
		return quote{}, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, feedID, err)
	}
	fp, err := calc.FeedPrecision(round.Decimals)
	if err != nil {
		return quote{}, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, feedID, err)
	}
	q := quote{price: price, feedPrecision: fp}
	f.prices[asset] = q
	return q, nil
}

func (e *Engine) usdValue(ctx context.Context, f *frame, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	q, err := e.quote(ctx, f, asset)
	if err != nil {
		return nil, err
	}
	v, err := calc.USDValue(q.price, q.feedPrecision, amount)
	if err != nil {
		return nil, fmt.Errorf("usd value of %s: %w", asset.Hex(), err)
	}
	return v, nil
}

func (e *Engine) tokenAmountFromUSD(ctx context.Context, f *frame, asset common.Address, usd *uint256.Int) (*uint256.Int, error) {
	q, err := e.quote(ctx, f, asset)
	if err != nil {
		return nil, err
	}
	v, err := calc.TokenAmountFromUSD(q.price, q.feedPrecision, usd)
	if err != nil {
		return nil, fmt.Errorf("token amount of %s: %w", asset.Hex(), err)
	}
	return v, nil
}

// collateralValue sums the USD value of every registered asset user holds.
// Assets with a zero balance are not priced.
func (e *Engine) collateralValue(ctx context.Context, f *frame, user common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, asset := range e.registry.assets {
		bal, err := ledger.GetCollateral(ctx, f.view, user, asset)
		if err != nil {
			return nil, err
		}
		if bal.IsZero() {
			continue
		}
		v, err := e.usdValue(ctx, f, asset, bal)
		if err != nil {
			return nil, err
		}
		if total, err = calc.Add(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func (e *Engine) accountInformation(ctx context.Context, f *frame, user common.Address) (AccountInfo, error) {
	debt, err := ledger.GetDebt(ctx, f.view, user)
	if err != nil {
		return AccountInfo{}, err
	}
	collateral, err := e.collateralValue(ctx, f, user)
	if err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{DebtMinted: debt, CollateralValueUSD: collateral}, nil
}

// healthFactor skips pricing entirely for debt-free users.
func (e *Engine) healthFactor(ctx context.Context, f *frame, user common.Address) (*uint256.Int, error) {
	debt, err := ledger.GetDebt(ctx, f.view, user)
	if err != nil {
		return nil, err
	}
	if debt.IsZero() {
		return calc.MaxHealthFactor(), nil
	}
	collateral, err := e.collateralValue(ctx, f, user)
	if err != nil {
		return nil, err
	}
	return calc.HealthFactor(collateral, debt)
}

func (e *Engine) requireHealthy(ctx context.Context, f *frame, user common.Address) error {
	hf, err := e.healthFactor(ctx, f, user)
	if err != nil {
		return err
	}
	if !calc.IsHealthy(hf) {
		return &HealthFactorError{User: user, HealthFactor: hf}
	}
	return nil
}

func requirePositive(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrAmountMustBePositive
	}
	return nil
}

// ledgerErr maps ledger shortfalls onto engine validation errors.
func ledgerErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCollateral):
		return fmt.Errorf("%w: %v", ErrInsufficientCollateral, err)
	case errors.Is(err, ledger.ErrInsufficientDebt):
		return fmt.Errorf("%w: %v", ErrBurnExceedsDebt, err)
	default:
		return err
	}
}

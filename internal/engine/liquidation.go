package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/calc"
)

type LiquidationResult struct {
	User                 common.Address
	Liquidator           common.Address
	Asset                common.Address
	DebtCovered          *uint256.Int
	CollateralSeized     *uint256.Int
	Bonus                *uint256.Int
	TotalSeized          *uint256.Int
	StartingHealthFactor *uint256.Int
	EndingHealthFactor   *uint256.Int
}

// Liquidate repays debtToCover of user's debt with the liquidator's stable
// tokens and pays the liquidator the equivalent amount of asset plus the
// liquidation bonus. The bonus is computed on the covered amount only.
//
// The call fails unless user is below the minimum health factor, and is
// rolled back if it leaves user's health factor lower than it found it or
// leaves the liquidator unhealthy.
func (e *Engine) Liquidate(ctx context.Context, liquidator, asset, user common.Address, debtToCover *uint256.Int) (*LiquidationResult, error) {
	var result *LiquidationResult
	err := e.execute(ctx, "liquidate", func(ctx context.Context, f *frame) error {
		if err := requirePositive(debtToCover); err != nil {
			return err
		}
		if _, err := e.registry.feed(asset); err != nil {
			return err
		}

		starting, err := e.healthFactor(ctx, f, user)
		if err != nil {
			return err
		}
		if calc.IsHealthy(starting) {
			return fmt.Errorf("%w: user %s health factor %s", ErrHealthFactorOK, user.Hex(), calc.FromWad(starting, 18))
		}

		base, err := e.tokenAmountFromUSD(ctx, f, asset, debtToCover)
		if err != nil {
			return err
		}
		bonus, err := calc.LiquidationBonusAmount(base)
		if err != nil {
			return err
		}
		total, err := calc.Add(base, bonus)
		if err != nil {
			return err
		}

		if !total.IsZero() {
			if err := e.redeem(ctx, f, asset, total, user, liquidator); err != nil {
				return err
			}
		}
		if err := e.burn(ctx, f, debtToCover, user, liquidator); err != nil {
			return err
		}

		ending, err := e.healthFactor(ctx, f, user)
		if err != nil {
			return err
		}
		if ending.Lt(starting) {
			return fmt.Errorf("%w: user %s health factor %s -> %s", ErrHealthFactorNotImproved,
				user.Hex(), calc.FromWad(starting, 18), calc.FromWad(ending, 18))
		}
		if err := e.requireHealthy(ctx, f, liquidator); err != nil {
			return err
		}

		f.emit(Event{
			Type:         PositionLiquidated,
			User:         user,
			Asset:        asset,
			Counterparty: liquidator,
			Amount:       total.Clone(),
			DebtCovered:  debtToCover.Clone(),
			Bonus:        bonus.Clone(),
		})
		result = &LiquidationResult{
			User:                 user,
			Liquidator:           liquidator,
			Asset:                asset,
			DebtCovered:          debtToCover.Clone(),
			CollateralSeized:     base,
			Bonus:                bonus,
			TotalSeized:          total,
			StartingHealthFactor: starting,
			EndingHealthFactor:   ending,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RecordLiquidation(ctx, asset, debtToCover)
	}
	e.logger.Infow("Position liquidated",
		"user", user.Hex(),
		"liquidator", liquidator.Hex(),
		"asset", asset.Hex(),
		"debt_covered", debtToCover.Dec(),
		"seized", result.TotalSeized.Dec(),
		"health_before", calc.FromWad(result.StartingHealthFactor, 18).String(),
		"health_after", calc.FromWad(result.EndingHealthFactor, 18).String(),
	)
	return result, nil
}

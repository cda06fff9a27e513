package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/ledger"
)

// DepositCollateral locks amount of asset for user. The engine pulls the
// tokens with TransferFrom, so user must have approved the engine.
func (e *Engine) DepositCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "deposit", func(ctx context.Context, f *frame) error {
		return e.deposit(ctx, f, user, asset, amount)
	})
}

// MintDebt mints amount of the stable token to user against their collateral.
func (e *Engine) MintDebt(ctx context.Context, user common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "mint", func(ctx context.Context, f *frame) error {
		return e.mint(ctx, f, user, amount)
	})
}

func (e *Engine) DepositAndMint(ctx context.Context, user, asset common.Address, collateral, debt *uint256.Int) error {
	return e.execute(ctx, "deposit_and_mint", func(ctx context.Context, f *frame) error {
		if err := e.deposit(ctx, f, user, asset, collateral); err != nil {
			return err
		}
		return e.mint(ctx, f, user, debt)
	})
}

// RedeemCollateral releases amount of asset deposited by from to the
// address to. The health check applies to from.
func (e *Engine) RedeemCollateral(ctx context.Context, from, to, asset common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "redeem", func(ctx context.Context, f *frame) error {
		if err := e.redeem(ctx, f, asset, amount, from, to); err != nil {
			return err
		}
		return e.requireHealthy(ctx, f, from)
	})
}

// BurnDebt pulls amount of the stable token from payer, destroys it and
// reduces onBehalfOf's debt.
func (e *Engine) BurnDebt(ctx context.Context, payer, onBehalfOf common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "burn", func(ctx context.Context, f *frame) error {
		if err := e.burn(ctx, f, amount, onBehalfOf, payer); err != nil {
			return err
		}
		return e.requireHealthy(ctx, f, onBehalfOf)
	})
}

// RedeemAndBurn burns debt first, then releases collateral back to user.
func (e *Engine) RedeemAndBurn(ctx context.Context, user, asset common.Address, collateral, debt *uint256.Int) error {
	return e.execute(ctx, "redeem_and_burn", func(ctx context.Context, f *frame) error {
		if err := e.burn(ctx, f, debt, user, user); err != nil {
			return err
		}
		if err := e.redeem(ctx, f, asset, collateral, user, user); err != nil {
			return err
		}
		return e.requireHealthy(ctx, f, user)
	})
}

func (e *Engine) deposit(ctx context.Context, f *frame, user, asset common.Address, amount *uint256.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if _, err := e.registry.feed(asset); err != nil {
		return err
	}
	if user == (common.Address{}) {
		return fmt.Errorf("%w: depositor", ErrZeroAddress)
	}

	if _, err := ledger.AddCollateral(ctx, f.view, user, asset, amount); err != nil {
		return err
	}
	f.emit(Event{Type: CollateralDeposited, User: user, Asset: asset, Amount: amount.Clone()})

	if err := e.collateral[asset].TransferFrom(ctx, f.view, e.address, user, e.address, amount); err != nil {
		return fmt.Errorf("%w: deposit %s from %s: %w", ErrTransferFailed, asset.Hex(), user.Hex(), err)
	}
	return nil
}

// mint checks health after the debt increase and before the token mint, so
// a rejected mint never issues tokens.
func (e *Engine) mint(ctx context.Context, f *frame, user common.Address, amount *uint256.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if user == (common.Address{}) {
		return fmt.Errorf("%w: minter", ErrZeroAddress)
	}

	if _, err := ledger.AddDebt(ctx, f.view, user, amount); err != nil {
		return err
	}
	if err := e.requireHealthy(ctx, f, user); err != nil {
		return err
	}
	if err := e.stable.Mint(ctx, f.view, e.address, user, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	f.emit(Event{Type: DebtMinted, User: user, Amount: amount.Clone()})
	if e.metrics != nil {
		e.metrics.RecordDebtVolume(ctx, "minted", amount)
	}
	return nil
}

// redeem moves collateral out of the ledger and transfers it. It does not
// check health; callers do.
func (e *Engine) redeem(ctx context.Context, f *frame, asset common.Address, amount *uint256.Int, from, to common.Address) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if _, err := e.registry.feed(asset); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: recipient", ErrZeroAddress)
	}

	if _, err := ledger.SubCollateral(ctx, f.view, from, asset, amount); err != nil {
		return ledgerErr(err)
	}
	f.emit(Event{Type: CollateralRedeemed, User: from, Asset: asset, Counterparty: to, Amount: amount.Clone()})

	if err := e.collateral[asset].Transfer(ctx, f.view, e.address, to, amount); err != nil {
		return fmt.Errorf("%w: redeem %s to %s: %w", ErrTransferFailed, asset.Hex(), to.Hex(), err)
	}
	return nil
}

// burn reduces onBehalfOf's debt, pulls the tokens from payer and destroys
// them. It does not check health; callers do.
func (e *Engine) burn(ctx context.Context, f *frame, amount *uint256.Int, onBehalfOf, payer common.Address) error {
	if err := requirePositive(amount); err != nil {
		return err
	}

	if _, err := ledger.SubDebt(ctx, f.view, onBehalfOf, amount); err != nil {
		return ledgerErr(err)
	}
	if err := e.stable.TransferFrom(ctx, f.view, e.address, payer, e.address, amount); err != nil {
		return fmt.Errorf("%w: pull stable from %s: %w", ErrTransferFailed, payer.Hex(), err)
	}
	if err := e.stable.Burn(ctx, f.view, e.address, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrBurnFailed, err)
	}
	f.emit(Event{Type: DebtBurned, User: onBehalfOf, Counterparty: payer, Amount: amount.Clone()})
	if e.metrics != nil {
		e.metrics.RecordDebtVolume(ctx, "burned", amount)
	}
	return nil
}

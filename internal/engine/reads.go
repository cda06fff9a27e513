package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/calc"
	"github.com/leafsii/collateral-engine/internal/ledger"
)

type AccountInfo struct {
	DebtMinted         *uint256.Int
	CollateralValueUSD *uint256.Int
}

// Position is a user's account snapshot with its health factor.
type Position struct {
	User               common.Address
	DebtMinted         *uint256.Int
	CollateralValueUSD *uint256.Int
	HealthFactor       *uint256.Int
}

type Constants struct {
	Precision            *uint256.Int
	FeedPrecision        *uint256.Int
	LiquidationThreshold *uint256.Int
	LiquidationPrecision *uint256.Int
	LiquidationBonus     *uint256.Int
	MinHealthFactor      *uint256.Int
}

type AssetTotal struct {
	Asset    common.Address
	Feed     string
	Deposits *uint256.Int
	ValueUSD *uint256.Int
}

type Totals struct {
	Assets             []AssetTotal
	Debt               *uint256.Int
	CollateralValueUSD *uint256.Int
}

func (e *Engine) HealthFactor(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var hf *uint256.Int
	err := e.read(ctx, func(ctx context.Context, f *frame) (err error) {
		hf, err = e.healthFactor(ctx, f, user)
		return err
	})
	return hf, err
}

func (e *Engine) IsHealthy(ctx context.Context, user common.Address) (bool, error) {
	hf, err := e.HealthFactor(ctx, user)
	if err != nil {
		return false, err
	}
	return calc.IsHealthy(hf), nil
}

func (e *Engine) AccountInformation(ctx context.Context, user common.Address) (AccountInfo, error) {
	var info AccountInfo
	err := e.read(ctx, func(ctx context.Context, f *frame) (err error) {
		info, err = e.accountInformation(ctx, f, user)
		return err
	})
	return info, err
}

// Position returns the account snapshot and health factor from one
// consistent read.
func (e *Engine) Position(ctx context.Context, user common.Address) (Position, error) {
	var pos Position
	err := e.read(ctx, func(ctx context.Context, f *frame) error {
		return e.position(ctx, f, user, &pos)
	})
	return pos, err
}

func (e *Engine) position(ctx context.Context, f *frame, user common.Address, pos *Position) error {
	info, err := e.accountInformation(ctx, f, user)
	if err != nil {
		return err
	}
	hf, err := calc.HealthFactor(info.CollateralValueUSD, info.DebtMinted)
	if err != nil {
		return err
	}
	*pos = Position{
		User:               user,
		DebtMinted:         info.DebtMinted,
		CollateralValueUSD: info.CollateralValueUSD,
		HealthFactor:       hf,
	}
	return nil
}

// Positions snapshots every known account. A pricing failure aborts the
// whole scan.
func (e *Engine) Positions(ctx context.Context) ([]Position, error) {
	var out []Position
	err := e.read(ctx, func(ctx context.Context, f *frame) error {
		users, err := ledger.Accounts(ctx, f.view)
		if err != nil {
			return err
		}
		out = make([]Position, len(users))
		for i, user := range users {
			if err := e.position(ctx, f, user, &out[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// CollateralBalance is zero for unknown users and unregistered assets.
func (e *Engine) CollateralBalance(ctx context.Context, user, asset common.Address) (*uint256.Int, error) {
	var bal *uint256.Int
	err := e.read(ctx, func(ctx context.Context, f *frame) (err error) {
		bal, err = ledger.GetCollateral(ctx, f.view, user, asset)
		return err
	})
	return bal, err
}

func (e *Engine) Debt(ctx context.Context, user common.Address) (*uint256.Int, error) {
	var debt *uint256.Int
	err := e.read(ctx, func(ctx context.Context, f *frame) (err error) {
		debt, err = ledger.GetDebt(ctx, f.view, user)
		return err
	})
	return debt, err
}

// CollateralTokens returns the registered assets in construction order.
func (e *Engine) CollateralTokens() []common.Address {
	out := make([]common.Address, len(e.registry.assets))
	copy(out, e.registry.assets)
	return out
}

func (e *Engine) PriceFeed(asset common.Address) (string, error) {
	return e.registry.feed(asset)
}

func (e *Engine) USDValue(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var v *uint256.Int
	err := e.read(ctx, func(ctx context.Context, f *frame) (err error) {
		v, err = e.usdValue(ctx, f, asset, amount)
		return err
	})
	return v, err
}

func (e *Engine) TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *uint256.Int) (*uint256.Int, error) {
	var v *uint256.Int
	err := e.read(ctx, func(ctx context.Context, f *frame) (err error) {
		v, err = e.tokenAmountFromUSD(ctx, f, asset, usd)
		return err
	})
	return v, err
}

func (e *Engine) Constants() Constants {
	fp, _ := calc.FeedPrecision(calc.DefaultFeedDecimals)
	return Constants{
		Precision:            calc.Precision(),
		FeedPrecision:        fp,
		LiquidationThreshold: calc.LiquidationThreshold(),
		LiquidationPrecision: calc.LiquidationPrecision(),
		LiquidationBonus:     calc.LiquidationBonus(),
		MinHealthFactor:      calc.MinHealthFactor(),
	}
}

func (e *Engine) ProtocolTotals(ctx context.Context) (Totals, error) {
	var totals Totals
	err := e.read(ctx, func(ctx context.Context, f *frame) error {
		debt, err := ledger.GetTotalDebt(ctx, f.view)
		if err != nil {
			return err
		}
		totals = Totals{Debt: debt, CollateralValueUSD: new(uint256.Int)}
		for _, asset := range e.registry.assets {
			deposits, err := ledger.GetTotalCollateral(ctx, f.view, asset)
			if err != nil {
				return err
			}
			value := new(uint256.Int)
			if !deposits.IsZero() {
				if value, err = e.usdValue(ctx, f, asset, deposits); err != nil {
					return err
				}
			}
			if totals.CollateralValueUSD, err = calc.Add(totals.CollateralValueUSD, value); err != nil {
				return err
			}
			totals.Assets = append(totals.Assets, AssetTotal{
				Asset:    asset,
				Feed:     e.registry.feeds[asset],
				Deposits: deposits,
				ValueUSD: value,
			})
		}
		return nil
	})
	return totals, err
}

// Accounts lists every user that has deposited or minted.
func (e *Engine) Accounts(ctx context.Context) ([]common.Address, error) {
	var users []common.Address
	err := e.read(ctx, func(ctx context.Context, f *frame) (err error) {
		users, err = ledger.Accounts(ctx, f.view)
		return err
	})
	return users, err
}

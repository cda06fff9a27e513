// Package token implements a fungible token whose balances live in the same
// state as the engine ledgers, so transfers commit or roll back together
// with the operation that triggered them.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/ledger"
	"github.com/leafsii/collateral-engine/internal/state"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrNotOwner              = errors.New("token: caller is not the owner")
	ErrZeroAmount            = errors.New("token: amount must be more than zero")
	ErrZeroAddress           = errors.New("token: zero address")
)

// Ledger is a fungible token. The owner is the only account allowed to mint
// and burn.
type Ledger struct {
	address  common.Address
	symbol   string
	decimals uint8
	owner    common.Address
}

func New(address common.Address, symbol string, decimals uint8, owner common.Address) *Ledger {
	return &Ledger{address: address, symbol: symbol, decimals: decimals, owner: owner}
}

func (l *Ledger) Address() common.Address { return l.address }
func (l *Ledger) Symbol() string          { return l.symbol }
func (l *Ledger) Decimals() uint8         { return l.decimals }
func (l *Ledger) Owner() common.Address   { return l.owner }

func (l *Ledger) prefix() string {
	return "token/" + strings.ToLower(l.address.Hex()) + "/"
}

func (l *Ledger) balanceKey(holder common.Address) string {
	return l.prefix() + "balance/" + strings.ToLower(holder.Hex())
}

func (l *Ledger) allowanceKey(owner, spender common.Address) string {
	return l.prefix() + "allowance/" + strings.ToLower(owner.Hex()) + "/" + strings.ToLower(spender.Hex())
}

func (l *Ledger) supplyKey() string {
	return l.prefix() + "supply"
}

func (l *Ledger) BalanceOf(ctx context.Context, im state.Immutable, holder common.Address) (*uint256.Int, error) {
	return ledger.GetAmount(ctx, im, l.balanceKey(holder))
}

func (l *Ledger) TotalSupply(ctx context.Context, im state.Immutable) (*uint256.Int, error) {
	return ledger.GetAmount(ctx, im, l.supplyKey())
}

func (l *Ledger) Allowance(ctx context.Context, im state.Immutable, owner, spender common.Address) (*uint256.Int, error) {
	return ledger.GetAmount(ctx, im, l.allowanceKey(owner, spender))
}

func (l *Ledger) Approve(ctx context.Context, mu state.Mutable, owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	return ledger.SetAmount(ctx, mu, l.allowanceKey(owner, spender), amount)
}

func (l *Ledger) Transfer(ctx context.Context, mu state.Mutable, from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := l.sub(ctx, mu, l.balanceKey(from), amount, ErrInsufficientBalance); err != nil {
		return fmt.Errorf("%s transfer from %s: %w", l.symbol, from.Hex(), err)
	}
	return l.add(ctx, mu, l.balanceKey(to), amount)
}

// TransferFrom moves amount out of from on behalf of spender. An allowance of
// MaxUint256 is never decremented.
func (l *Ledger) TransferFrom(ctx context.Context, mu state.Mutable, spender, from, to common.Address, amount *uint256.Int) error {
	key := l.allowanceKey(from, spender)
	allowance, err := ledger.GetAmount(ctx, mu, key)
	if err != nil {
		return err
	}
	if !allowance.Eq(maxUint256) {
		if allowance.Lt(amount) {
			return fmt.Errorf("%s: %w: %s allowed %s, need %s", l.symbol, ErrInsufficientAllowance, spender.Hex(), allowance.Dec(), amount.Dec())
		}
		if err := ledger.SetAmount(ctx, mu, key, new(uint256.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return l.Transfer(ctx, mu, from, to, amount)
}

func (l *Ledger) Mint(ctx context.Context, mu state.Mutable, caller, to common.Address, amount *uint256.Int) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if err := l.add(ctx, mu, l.supplyKey(), amount); err != nil {
		return err
	}
	return l.add(ctx, mu, l.balanceKey(to), amount)
}

// Burn destroys amount from the caller's own balance.
func (l *Ledger) Burn(ctx context.Context, mu state.Mutable, caller common.Address, amount *uint256.Int) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if err := l.sub(ctx, mu, l.balanceKey(caller), amount, ErrInsufficientBalance); err != nil {
		return fmt.Errorf("%s burn: %w", l.symbol, err)
	}
	return l.sub(ctx, mu, l.supplyKey(), amount, ErrInsufficientBalance)
}

var maxUint256 = new(uint256.Int).SetAllOne()

func (l *Ledger) add(ctx context.Context, mu state.Mutable, key string, amount *uint256.Int) error {
	bal, err := ledger.GetAmount(ctx, mu, key)
	if err != nil {
		return err
	}
	nbal, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("%s: balance overflow", l.symbol)
	}
	return ledger.SetAmount(ctx, mu, key, nbal)
}

func (l *Ledger) sub(ctx context.Context, mu state.Mutable, key string, amount *uint256.Int, insufficient error) error {
	bal, err := ledger.GetAmount(ctx, mu, key)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", insufficient, bal.Dec(), amount.Dec())
	}
	return ledger.SetAmount(ctx, mu, key, new(uint256.Int).Sub(bal, amount))
}

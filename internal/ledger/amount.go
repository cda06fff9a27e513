package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/state"
	"github.com/leafsii/collateral-engine/pkg/kv"
)

var ErrCorruptAmount = errors.New("ledger: stored amount is not 32 bytes")

// GetAmount reads a 32-byte amount. Unknown keys read as zero.
func GetAmount(ctx context.Context, im state.Immutable, key string) (*uint256.Int, error) {
	v, err := im.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	if len(v) != 32 {
		return nil, fmt.Errorf("%w: key=%s len=%d", ErrCorruptAmount, key, len(v))
	}
	return new(uint256.Int).SetBytes32(v), nil
}

// SetAmount stores amount under key; zero amounts delete the key.
func SetAmount(ctx context.Context, mu state.Mutable, key string, amount *uint256.Int) error {
	if amount.IsZero() {
		return mu.Delete(ctx, key)
	}
	b := amount.Bytes32()
	return mu.Put(ctx, key, b[:])
}

func addAmount(ctx context.Context, mu state.Mutable, key string, amount *uint256.Int) (*uint256.Int, error) {
	bal, err := GetAmount(ctx, mu, key)
	if err != nil {
		return nil, err
	}
	nbal, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return nil, fmt.Errorf("ledger: overflow adding %s to %s (key=%s)", amount.Dec(), bal.Dec(), key)
	}
	return nbal, SetAmount(ctx, mu, key, nbal)
}

func subAmount(ctx context.Context, mu state.Mutable, key string, amount *uint256.Int, insufficient error) (*uint256.Int, error) {
	bal, err := GetAmount(ctx, mu, key)
	if err != nil {
		return nil, err
	}
	if bal.Lt(amount) {
		return nil, fmt.Errorf("%w: have %s, need %s", insufficient, bal.Dec(), amount.Dec())
	}
	nbal := new(uint256.Int).Sub(bal, amount)
	return nbal, SetAmount(ctx, mu, key, nbal)
}

package ledger

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leafsii/collateral-engine/internal/state"
)

// Scanner lists keys by prefix. kv.Store and state.View both satisfy it.
type Scanner interface {
	Scan(ctx context.Context, prefix string) ([]string, error)
}

var accountMarker = []byte{1}

func touchAccount(ctx context.Context, mu state.Mutable, user common.Address) error {
	return mu.Put(ctx, AccountKey(user), accountMarker)
}

// Accounts returns every user that has ever deposited or minted, sorted by
// address.
func Accounts(ctx context.Context, s Scanner) ([]common.Address, error) {
	keys, err := s.Scan(ctx, AccountPrefix)
	if err != nil {
		return nil, err
	}
	users := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		if addr, ok := AccountFromKey(k); ok {
			users = append(users, addr)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Cmp(users[j]) < 0
	})
	return users, nil
}

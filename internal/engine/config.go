package engine

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the construction-time asset list. Assets[i] is priced by
// Feeds[i].
type Config struct {
	// Address is the engine's own account: it custodies collateral and is
	// the only minter and burner of the stable token.
	Address common.Address
	Assets  []common.Address
	Feeds   []string
}

// registry is built once in New and never mutated.
type registry struct {
	assets []common.Address
	feeds  map[common.Address]string
}

func newRegistry(cfg Config) (*registry, error) {
	if len(cfg.Assets) != len(cfg.Feeds) {
		return nil, fmt.Errorf("%w: %d assets, %d feeds", ErrAssetFeedLengthMismatch, len(cfg.Assets), len(cfg.Feeds))
	}
	r := &registry{
		assets: make([]common.Address, 0, len(cfg.Assets)),
		feeds:  make(map[common.Address]string, len(cfg.Assets)),
	}
	for i, asset := range cfg.Assets {
		if asset == (common.Address{}) {
			return nil, fmt.Errorf("%w: asset %d", ErrZeroAddress, i)
		}
		if _, dup := r.feeds[asset]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, asset.Hex())
		}
		feed := strings.TrimSpace(cfg.Feeds[i])
		if feed == "" {
			return nil, fmt.Errorf("%w: empty feed for %s", ErrMissingDependency, asset.Hex())
		}
		r.assets = append(r.assets, asset)
		r.feeds[asset] = feed
	}
	return r, nil
}

func (r *registry) feed(asset common.Address) (string, error) {
	feed, ok := r.feeds[asset]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAssetNotAllowed, asset.Hex())
	}
	return feed, nil
}

package oracle

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps feed ids to provider symbols
type Registry struct {
	mappings map[string]string // feed id -> provider symbol
}

// NewRegistry creates a registry with the default USD feeds
func NewRegistry() *Registry {
	r := &Registry{
		mappings: make(map[string]string),
	}

	r.AddMapping("ETH/USD", "ETHUSDT")
	r.AddMapping("BTC/USD", "BTCUSDT")
	r.AddMapping("SUI/USD", "SUIUSDT")

	return r
}

// AddMapping adds a feed id to provider symbol mapping
func (r *Registry) AddMapping(feedID, providerSymbol string) {
	r.mappings[strings.ToUpper(feedID)] = strings.ToUpper(providerSymbol)
}

// ProviderSymbol returns the provider symbol for a feed id
func (r *Registry) ProviderSymbol(feedID string) (string, error) {
	symbol, exists := r.mappings[strings.ToUpper(feedID)]
	if !exists {
		return "", fmt.Errorf("%w: no mapping for %s", ErrUnknownFeed, feedID)
	}
	return symbol, nil
}

// ProviderSymbols returns the unique provider symbols for the given feeds,
// sorted
func (r *Registry) ProviderSymbols(feedIDs ...string) ([]string, error) {
	seen := make(map[string]struct{})
	symbols := make([]string, 0, len(feedIDs))

	for _, id := range feedIDs {
		sym, err := r.ProviderSymbol(id)
		if err != nil {
			return nil, err
		}
		if _, exists := seen[sym]; exists {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}

	sort.Strings(symbols)
	return symbols, nil
}

// Supports checks if a feed id is mapped
func (r *Registry) Supports(feedID string) bool {
	_, exists := r.mappings[strings.ToUpper(feedID)]
	return exists
}

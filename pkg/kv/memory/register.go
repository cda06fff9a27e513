package memory

import (
	"github.com/leafsii/collateral-engine/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendMemory, func(cfg kv.Config) (kv.Store, error) {
		return New(), nil
	})
}

// NewStore creates a new in-memory store
func NewStore() kv.Store {
	return New()
}

// Package kv provides the key-value store the engine ledgers and token
// balances are persisted on, with in-memory and Redis-backed implementations.
//
// Values are opaque byte slices. Writes that must land together go through
// Apply, which both backends execute atomically:
//
//	cfg := Config{Backend: BackendMemory}
//	store, err := NewStoreFromConfig(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Apply(ctx, []Op{
//		{Key: "dsc/debt/0xabc", Value: amount},
//		{Key: "dsc/total/debt", Value: total},
//	})
//
//	value, err := store.Get(ctx, "dsc/debt/0xabc")
//	if errors.Is(err, ErrNotFound) {
//		// zero balance
//	}
//
// Backends register themselves from their package init; import
// pkg/kv/memory and pkg/kv/redis for side effects before calling
// NewStoreFromConfig.
package kv

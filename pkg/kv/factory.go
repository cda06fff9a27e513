package kv

import (
	"context"
	"fmt"
	"time"
)

// Backend represents the storage backend type
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
)

// LogFunc is a function type for structured logging
type LogFunc func(msg string, fields ...any)

// Config holds configuration for creating a Store instance
type Config struct {
	// Backend specifies which storage backend to use
	Backend Backend

	// RedisURL is the connection string for Redis (required when Backend is "redis")
	// Format: redis://localhost:6379/0 or redis://:password@localhost:6379/1
	RedisURL string

	// StartupProbeTimeout controls how long to wait for Redis at startup
	// Default: 2 seconds
	StartupProbeTimeout time.Duration

	// Logger is used for startup events. If nil, no logging occurs.
	Logger LogFunc
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

// factories holds registered store factories
var factories = make(map[Backend]StoreFactory)

// RegisterBackend registers a store factory for a given backend
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

// NewStoreFromConfig creates a new Store instance based on the provided configuration.
//
// Unlike a cache, ledger state must never silently move between backends,
// so an unreachable Redis is a startup error rather than a fallback.
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = 2 * time.Second
	}

	switch cfg.Backend {
	case BackendMemory, BackendRedis:
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis)
	}

	factory, exists := factories[cfg.Backend]
	if !exists {
		return nil, fmt.Errorf("%s backend not registered", cfg.Backend)
	}

	store, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Backend, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s store health check failed: %w", cfg.Backend, err)
	}

	if cfg.Logger != nil {
		cfg.Logger("Ledger store ready", "backend", string(cfg.Backend))
	}
	return store, nil
}

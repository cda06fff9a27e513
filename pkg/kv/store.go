package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable is returned when the backend storage is unavailable
var ErrBackendUnavailable = errors.New("backend unavailable")

// Op is a single write inside an atomic batch. A Delete op removes Key and
// ignores Value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Store defines the key-value surface the ledgers are persisted on
type Store interface {
	// Point reads and writes
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)

	// MGet returns one entry per key; missing keys are nil
	MGet(ctx context.Context, keys ...string) ([][]byte, error)

	// Scan returns every key starting with prefix, in no particular order
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Apply executes all ops atomically: either every op is visible
	// afterwards or none is
	Apply(ctx context.Context, ops []Op) error

	// Health check
	Ping(ctx context.Context) error

	// Cleanup
	Close() error
}

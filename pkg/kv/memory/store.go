package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/leafsii/collateral-engine/pkg/kv"
)

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// New creates a new empty in-memory store
func New() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Get retrieves a value by key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return nil, kv.ErrNotFound
	}
	return cloneBytes(value), nil
}

// Set stores a value
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = cloneBytes(value)
	return nil
}

// Del deletes keys and returns the number of keys that existed
func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if _, exists := s.values[key]; exists {
			delete(s.values, key)
			deleted++
		}
	}
	return deleted, nil
}

// Exists counts how many of the given keys exist
func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, key := range keys {
		if _, exists := s.values[key]; exists {
			count++
		}
	}
	return count, nil
}

// MGet retrieves multiple values
func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([][]byte, len(keys))
	for i, key := range keys {
		if value, exists := s.values[key]; exists {
			result[i] = cloneBytes(value)
		}
	}
	return result, nil
}

// Scan returns all keys with the given prefix
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Apply executes the batch under a single write lock
func (s *Store) Apply(ctx context.Context, ops []kv.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		if op.Delete {
			delete(s.values, op.Key)
			continue
		}
		s.values[op.Key] = cloneBytes(op.Value)
	}
	return nil
}

// Ping checks if the store is healthy
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return kv.ErrBackendUnavailable
	}
	return nil
}

// Close marks the store closed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

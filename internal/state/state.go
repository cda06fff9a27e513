// Package state buffers ledger writes on top of a kv.Store so that a whole
// engine operation either lands in one atomic batch or not at all.
package state

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/leafsii/collateral-engine/pkg/kv"
)

// ErrClosed is returned by a View used after Commit or Discard.
var ErrClosed = errors.New("state view closed")

// Immutable is read access to state. Missing keys report kv.ErrNotFound.
type Immutable interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type Mutable interface {
	Immutable

	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var _ Mutable = (*View)(nil)

type change struct {
	value  []byte
	delete bool
}

// View is a write-buffering overlay over a store. It is not safe for
// concurrent use; callers serialize access to it.
type View struct {
	store   kv.Store
	changes map[string]*change
	closed  bool
}

func NewView(store kv.Store) *View {
	return &View{store: store, changes: make(map[string]*change)}
}

func (v *View) Get(ctx context.Context, key string) ([]byte, error) {
	if v.closed {
		return nil, ErrClosed
	}
	if c, ok := v.changes[key]; ok {
		if c.delete {
			return nil, kv.ErrNotFound
		}
		return c.value, nil
	}
	return v.store.Get(ctx, key)
}

func (v *View) Put(_ context.Context, key string, value []byte) error {
	if v.closed {
		return ErrClosed
	}
	v.changes[key] = &change{value: value}
	return nil
}

func (v *View) Delete(_ context.Context, key string) error {
	if v.closed {
		return ErrClosed
	}
	v.changes[key] = &change{delete: true}
	return nil
}

// Scan lists keys under prefix as they would read after Commit.
func (v *View) Scan(ctx context.Context, prefix string) ([]string, error) {
	if v.closed {
		return nil, ErrClosed
	}
	base, err := v.store.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(base))
	keys := make([]string, 0, len(base))
	for _, k := range base {
		if c, ok := v.changes[k]; ok && c.delete {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k, c := range v.changes {
		if c.delete || !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Pending is the number of buffered writes.
func (v *View) Pending() int { return len(v.changes) }

// Commit writes every buffered change in one kv.Apply and closes the view.
func (v *View) Commit(ctx context.Context) error {
	if v.closed {
		return ErrClosed
	}
	keys := make([]string, 0, len(v.changes))
	for k := range v.changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ops := make([]kv.Op, 0, len(keys))
	for _, k := range keys {
		c := v.changes[k]
		ops = append(ops, kv.Op{Key: k, Value: c.value, Delete: c.delete})
	}
	if err := v.store.Apply(ctx, ops); err != nil {
		return err
	}
	v.closed = true
	v.changes = nil
	return nil
}

// Discard drops every buffered change and closes the view.
func (v *View) Discard() {
	v.closed = true
	v.changes = nil
}

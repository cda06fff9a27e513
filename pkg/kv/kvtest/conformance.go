// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/leafsii/collateral-engine/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"DelExists", testDelExists},
		{"MGet", testMGet},
		{"Scan", testScan},
		{"ApplyWritesAndDeletes", testApply},
		{"ApplyEmpty", testApplyEmpty},
		{"HealthCheck", testHealthCheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:setget"
	value := []byte{0x00, 0x01, 0xff}

	if err := store.Set(ctx, key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got, value) {
		t.Fatalf("Expected %v, got %v", value, got)
	}

	// overwrite
	if err := store.Set(ctx, key, []byte("next")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, _ = store.Get(ctx, key)
	if string(got) != "next" {
		t.Fatalf("Expected overwrite, got %q", got)
	}
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	_, err := store.Get(context.Background(), "test:missing")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func testDelExists(t *testing.T, store kv.Store) {
	ctx := context.Background()
	store.Set(ctx, "test:del:a", []byte("a"))
	store.Set(ctx, "test:del:b", []byte("b"))

	n, err := store.Exists(ctx, "test:del:a", "test:del:b", "test:del:c")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 existing keys, got %d", n)
	}

	n, err = store.Del(ctx, "test:del:a", "test:del:c")
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 deleted key, got %d", n)
	}

	if _, err := store.Get(ctx, "test:del:a"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected deleted key to be gone, got %v", err)
	}
}

func testMGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	store.Set(ctx, "test:mget:1", []byte("one"))
	store.Set(ctx, "test:mget:3", []byte("three"))

	values, err := store.MGet(ctx, "test:mget:1", "test:mget:2", "test:mget:3")
	if err != nil {
		t.Fatalf("MGet failed: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(values))
	}
	if string(values[0]) != "one" || values[1] != nil || string(values[2]) != "three" {
		t.Fatalf("Unexpected MGet result: %q", values)
	}
}

func testScan(t *testing.T, store kv.Store) {
	ctx := context.Background()
	store.Set(ctx, "test:scan:x/1", []byte("1"))
	store.Set(ctx, "test:scan:x/2", []byte("2"))
	store.Set(ctx, "test:scan:y/1", []byte("3"))

	keys, err := store.Scan(ctx, "test:scan:x/")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	sort.Strings(keys)
	expected := []string{"test:scan:x/1", "test:scan:x/2"}
	if !reflect.DeepEqual(keys, expected) {
		t.Fatalf("Expected %v, got %v", expected, keys)
	}
}

func testApply(t *testing.T, store kv.Store) {
	ctx := context.Background()
	store.Set(ctx, "test:apply:gone", []byte("old"))

	err := store.Apply(ctx, []kv.Op{
		{Key: "test:apply:a", Value: []byte("a")},
		{Key: "test:apply:b", Value: []byte("b")},
		{Key: "test:apply:gone", Delete: true},
		{Key: "test:apply:a", Value: []byte("a2")},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, _ := store.Get(ctx, "test:apply:a")
	if string(got) != "a2" {
		t.Fatalf("Expected later op to win, got %q", got)
	}
	got, _ = store.Get(ctx, "test:apply:b")
	if string(got) != "b" {
		t.Fatalf("Expected b, got %q", got)
	}
	if _, err := store.Get(ctx, "test:apply:gone"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected deleted key, got %v", err)
	}
}

func testApplyEmpty(t *testing.T, store kv.Store) {
	if err := store.Apply(context.Background(), nil); err != nil {
		t.Fatalf("Apply with no ops failed: %v", err)
	}
}

func testHealthCheck(t *testing.T, store kv.Store) {
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

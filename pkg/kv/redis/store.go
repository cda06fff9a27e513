package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/leafsii/collateral-engine/pkg/kv"
	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN
const scanBatch = 256

// Store is a Redis-backed implementation of the kv.Store interface
type Store struct {
	client *redis.Client
}

// IsConnectionError reports whether err means the backend could not be reached
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// redis.Nil means "key not found"
	if errors.Is(err, redis.Nil) {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	connectionErrors := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"timeout",
		"connection closed",
		"eof",
	}
	for _, connErr := range connectionErrors {
		if strings.Contains(errStr, connErr) {
			return true
		}
	}

	return false
}

func wrapConnectionError(err error) error {
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return err
}

// New creates a new Redis-backed store
func New(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		// Fallback for simple address format
		u, parseErr := url.Parse("redis://" + redisURL)
		if parseErr != nil {
			return nil, err
		}

		db := 0
		if u.Path != "" && u.Path != "/" {
			if dbNum, dbErr := strconv.Atoi(u.Path[1:]); dbErr == nil {
				db = dbNum
			}
		}

		opt = &redis.Options{
			Addr: u.Host,
			DB:   db,
		}
		if u.User != nil {
			if password, hasPassword := u.User.Password(); hasPassword {
				opt.Password = password
			}
		}
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", wrapConnectionError(err))
	}

	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get retrieves a value by key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, wrapConnectionError(err)
	}
	return result, nil
}

// Set stores a value without expiry
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return wrapConnectionError(s.client.Set(ctx, key, value, 0).Err())
}

// Del deletes keys
func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	return n, wrapConnectionError(err)
}

// Exists counts existing keys
func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Exists(ctx, keys...).Result()
	return n, wrapConnectionError(err)
}

// MGet retrieves multiple values
func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapConnectionError(err)
	}

	values := make([][]byte, len(results))
	for i, result := range results {
		switch v := result.(type) {
		case string:
			values[i] = []byte(v)
		case []byte:
			values[i] = v
		}
	}
	return values, nil
}

// Scan iterates SCAN MATCH prefix* until the cursor wraps
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	seen := make(map[string]struct{})
	match := escapeGlob(prefix) + "*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, wrapConnectionError(err)
		}
		for _, key := range batch {
			// SCAN may return a key more than once
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Apply writes the batch inside MULTI/EXEC
func (s *Store) Apply(ctx context.Context, ops []kv.Op) error {
	if len(ops) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.Del(ctx, op.Key)
				continue
			}
			pipe.Set(ctx, op.Key, op.Value, 0)
		}
		return nil
	})
	return wrapConnectionError(err)
}

// Ping checks if Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return wrapConnectionError(s.client.Ping(ctx).Err())
}

// Close closes the Redis client
func (s *Store) Close() error {
	return s.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

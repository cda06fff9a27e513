package oracle

import (
	"context"
	"errors"
	"math/big"
	"time"
)

var (
	ErrStalePrice   = errors.New("oracle: stale price")
	ErrInvalidPrice = errors.New("oracle: invalid price")
	ErrUnknownFeed  = errors.New("oracle: unknown feed")
)

// Round is a single price report. Answer is signed fixed point with
// Decimals fractional digits.
type Round struct {
	RoundID   uint64    `json:"round_id"`
	Answer    *big.Int  `json:"answer"`
	Decimals  uint8     `json:"decimals"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Feed is a source of USD prices keyed by feed id (e.g. "ETH/USD").
type Feed interface {
	LatestRound(ctx context.Context, feedID string) (Round, error)

	// Name returns the provider identifier
	Name() string
}

// ProviderHealth represents the current status of a provider
type ProviderHealth struct {
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
	Reconnects  int       `json:"reconnects"`
}

// HealthReporter is implemented by feeds that track their own health.
type HealthReporter interface {
	Health() ProviderHealth
}

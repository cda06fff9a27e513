package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Static is an in-memory feed whose prices are set by hand. Used by tests
// and the dev price endpoint.
type Static struct {
	mu       sync.RWMutex
	rounds   map[string]Round
	decimals uint8
	now      func() time.Time
}

func NewStatic(decimals uint8) *Static {
	return &Static{
		rounds:   make(map[string]Round),
		decimals: decimals,
		now:      time.Now,
	}
}

// WithClock replaces the time source used to stamp new rounds.
func (s *Static) WithClock(now func() time.Time) *Static {
	s.now = now
	return s
}

func (s *Static) Name() string { return "static" }

// SetPrice publishes a new round from a human-readable USD price.
func (s *Static) SetPrice(feedID string, price decimal.Decimal) Round {
	answer := price.Shift(int32(s.decimals)).Truncate(0).BigInt()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(feedID)
	round := Round{
		RoundID:   s.rounds[key].RoundID + 1,
		Answer:    answer,
		Decimals:  s.decimals,
		UpdatedAt: s.now(),
	}
	s.rounds[key] = round
	return round
}

// SetRound publishes a round as given.
func (s *Static) SetRound(feedID string, round Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[strings.ToUpper(feedID)] = round
}

func (s *Static) LatestRound(_ context.Context, feedID string) (Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	round, ok := s.rounds[strings.ToUpper(feedID)]
	if !ok {
		return Round{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	return round, nil
}

// ParsePrices parses "ETH/USD=2000,BTC/USD=30000".
func ParsePrices(spec string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		feed, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed price entry %q", part)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", feed, err)
		}
		out[strings.ToUpper(strings.TrimSpace(feed))] = price
	}
	return out, nil
}

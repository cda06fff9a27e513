package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/leafsii/collateral-engine/internal/calc"
)

// DefaultMaxAge is the staleness bound applied when none is configured.
const DefaultMaxAge = 3 * time.Hour

// StaleGuard wraps a feed and refuses rounds that are too old or carry a
// non-positive answer.
type StaleGuard struct {
	feed   Feed
	maxAge time.Duration
	now    func() time.Time
}

func NewStaleGuard(feed Feed, maxAge time.Duration) *StaleGuard {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &StaleGuard{feed: feed, maxAge: maxAge, now: time.Now}
}

// WithClock replaces the time source.
func (g *StaleGuard) WithClock(now func() time.Time) *StaleGuard {
	g.now = now
	return g
}

func (g *StaleGuard) Name() string { return g.feed.Name() }

func (g *StaleGuard) MaxAge() time.Duration { return g.maxAge }

func (g *StaleGuard) LatestRound(ctx context.Context, feedID string) (Round, error) {
	round, err := g.feed.LatestRound(ctx, feedID)
	if err != nil {
		return Round{}, err
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return Round{}, fmt.Errorf("%w: %s answered %v", ErrInvalidPrice, feedID, round.Answer)
	}
	if err := calc.ValidateOracleAge(round.UpdatedAt, g.now(), g.maxAge); err != nil {
		return Round{}, fmt.Errorf("%w: %s: %v", ErrStalePrice, feedID, err)
	}
	return round, nil
}

// Health forwards to the wrapped feed when it reports health.
func (g *StaleGuard) Health() ProviderHealth {
	if hr, ok := g.feed.(HealthReporter); ok {
		return hr.Health()
	}
	return ProviderHealth{Healthy: true}
}

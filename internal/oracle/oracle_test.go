package oracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSetPrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := NewStatic(8).WithClock(func() time.Time { return now })

	round := feed.SetPrice("eth/usd", decimal.NewFromInt(2000))
	assert.Equal(t, uint64(1), round.RoundID)
	assert.Equal(t, "200000000000", round.Answer.String())

	got, err := feed.LatestRound(context.Background(), "ETH/USD")
	require.NoError(t, err)
	assert.Equal(t, round, got)

	round = feed.SetPrice("ETH/USD", decimal.RequireFromString("1999.123456789"))
	assert.Equal(t, uint64(2), round.RoundID)
	assert.Equal(t, "199912345678", round.Answer.String())

	_, err = feed.LatestRound(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, ErrUnknownFeed)
}

func TestStaleGuard(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	static := NewStatic(8)

	guard := NewStaleGuard(static, 0).WithClock(func() time.Time { return now })
	assert.Equal(t, DefaultMaxAge, guard.MaxAge())

	tests := []struct {
		name    string
		round   Round
		wantErr error
	}{
		{
			name:  "fresh",
			round: Round{RoundID: 1, Answer: big.NewInt(100), Decimals: 8, UpdatedAt: now.Add(-time.Minute)},
		},
		{
			name:  "exactly at bound",
			round: Round{RoundID: 1, Answer: big.NewInt(100), Decimals: 8, UpdatedAt: now.Add(-DefaultMaxAge)},
		},
		{
			name:    "stale",
			round:   Round{RoundID: 1, Answer: big.NewInt(100), Decimals: 8, UpdatedAt: now.Add(-DefaultMaxAge - time.Second)},
			wantErr: ErrStalePrice,
		},
		{
			name:    "zero answer",
			round:   Round{RoundID: 1, Answer: big.NewInt(0), Decimals: 8, UpdatedAt: now},
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "negative answer",
			round:   Round{RoundID: 1, Answer: big.NewInt(-1), Decimals: 8, UpdatedAt: now},
			wantErr: ErrInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			static.SetRound("ETH/USD", tt.round)
			_, err := guard.LatestRound(context.Background(), "ETH/USD")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStaleGuardPropagatesFeedErrors(t *testing.T) {
	guard := NewStaleGuard(NewStatic(8), time.Hour)
	_, err := guard.LatestRound(context.Background(), "NOPE/USD")
	assert.ErrorIs(t, err, ErrUnknownFeed)
	assert.True(t, guard.Health().Healthy)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.AddMapping("wbtc/usd", "btcusdt")

	sym, err := r.ProviderSymbol("eth/usd")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", sym)

	symbols, err := r.ProviderSymbols("BTC/USD", "WBTC/USD", "ETH/USD")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)

	_, err = r.ProviderSymbols("DOGE/USD")
	assert.ErrorIs(t, err, ErrUnknownFeed)
	assert.False(t, r.Supports("DOGE/USD"))
}

func TestParsePrices(t *testing.T) {
	prices, err := ParsePrices("eth/usd=2000, BTC/USD=30000.5,")
	require.NoError(t, err)
	assert.True(t, prices["ETH/USD"].Equal(decimal.NewFromInt(2000)))
	assert.True(t, prices["BTC/USD"].Equal(decimal.RequireFromString("30000.5")))

	_, err = ParsePrices("ETH/USD")
	assert.Error(t, err)
	_, err = ParsePrices("ETH/USD=abc")
	assert.Error(t, err)
}

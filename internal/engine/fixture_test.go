package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/collateral-engine/internal/oracle"
	"github.com/leafsii/collateral-engine/internal/state"
	"github.com/leafsii/collateral-engine/internal/token"
	"github.com/leafsii/collateral-engine/pkg/kv/memory"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000E6E6E")
	stableAddr = common.HexToAddress("0x0000000000000000000000000000000000005DC0")
	admin      = common.HexToAddress("0x000000000000000000000000000000000000AD01")
	weth       = common.HexToAddress("0x000000000000000000000000000000000000E7E7")
	wbtc       = common.HexToAddress("0x000000000000000000000000000000000000B7C0")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	carol      = common.HexToAddress("0x00000000000000000000000000000000000CA201")
)

// ether returns n whole 18-decimal units.
func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	eng    *Engine
	store  *memory.Store
	feed   *oracle.Static
	stable *token.Ledger
	tokens map[common.Address]*token.Ledger
	sink   *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	feed := oracle.NewStatic(8)
	feed.SetPrice("ETH/USD", decimal.NewFromInt(2000))
	feed.SetPrice("BTC/USD", decimal.NewFromInt(30000))

	stable := token.New(stableAddr, "DSC", 18, engineAddr)
	tokens := map[common.Address]*token.Ledger{
		weth: token.New(weth, "WETH", 18, admin),
		wbtc: token.New(wbtc, "WBTC", 18, admin),
	}
	sink := &recordingSink{}

	eng, err := New(Config{
		Address: engineAddr,
		Assets:  []common.Address{weth, wbtc},
		Feeds:   []string{"ETH/USD", "BTC/USD"},
	}, Deps{
		Store:  store,
		Oracle: feed,
		Stable: stable,
		Collateral: map[common.Address]CollateralToken{
			weth: tokens[weth],
			wbtc: tokens[wbtc],
		},
		Sinks: []EventSink{sink},
	})
	require.NoError(t, err)

	return &fixture{
		t:      t,
		ctx:    context.Background(),
		eng:    eng,
		store:  store,
		feed:   feed,
		stable: stable,
		tokens: tokens,
		sink:   sink,
	}
}

// fund mints collateral to who and approves the engine for it and for the
// stable token.
func (fx *fixture) fund(who, asset common.Address, amount *uint256.Int) {
	fx.t.Helper()
	unlimited := new(uint256.Int).SetAllOne()
	err := fx.eng.Update(fx.ctx, "fund", func(ctx context.Context, mu state.Mutable) error {
		if err := fx.tokens[asset].Mint(ctx, mu, admin, who, amount); err != nil {
			return err
		}
		if err := fx.tokens[asset].Approve(ctx, mu, who, engineAddr, unlimited); err != nil {
			return err
		}
		return fx.stable.Approve(ctx, mu, who, engineAddr, unlimited)
	})
	require.NoError(fx.t, err)
}

func (fx *fixture) balanceOf(tok *token.Ledger, who common.Address) *uint256.Int {
	fx.t.Helper()
	var bal *uint256.Int
	err := fx.eng.View(fx.ctx, func(ctx context.Context, im state.Immutable) (err error) {
		bal, err = tok.BalanceOf(ctx, im, who)
		return err
	})
	require.NoError(fx.t, err)
	return bal
}

func (fx *fixture) collateral(user, asset common.Address) *uint256.Int {
	fx.t.Helper()
	bal, err := fx.eng.CollateralBalance(fx.ctx, user, asset)
	require.NoError(fx.t, err)
	return bal
}

func (fx *fixture) debt(user common.Address) *uint256.Int {
	fx.t.Helper()
	debt, err := fx.eng.Debt(fx.ctx, user)
	require.NoError(fx.t, err)
	return debt
}

func (fx *fixture) healthFactor(user common.Address) *uint256.Int {
	fx.t.Helper()
	hf, err := fx.eng.HealthFactor(fx.ctx, user)
	require.NoError(fx.t, err)
	return hf
}

func (fx *fixture) setPrice(feed string, usd int64) {
	fx.feed.SetPrice(feed, decimal.NewFromInt(usd))
}

// snapshot captures every stored key so tests can assert nothing changed.
func (fx *fixture) snapshot() map[string]string {
	fx.t.Helper()
	keys, err := fx.store.Scan(fx.ctx, "")
	require.NoError(fx.t, err)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := fx.store.Get(fx.ctx, k)
		require.NoError(fx.t, err)
		out[k] = string(v)
	}
	return out
}

var fixedNow = time.Unix(1_700_000_000, 0)

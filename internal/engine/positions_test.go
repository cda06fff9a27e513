package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/collateral-engine/internal/calc"
	"github.com/leafsii/collateral-engine/internal/oracle"
	"github.com/leafsii/collateral-engine/internal/state"
	"github.com/leafsii/collateral-engine/internal/token"
	"github.com/leafsii/collateral-engine/pkg/kv/memory"
)

func TestNewValidatesConfig(t *testing.T) {
	stable := token.New(stableAddr, "DSC", 18, engineAddr)
	wethTok := token.New(weth, "WETH", 18, admin)
	deps := Deps{
		Store:      memory.New(),
		Oracle:     oracle.NewStatic(8),
		Stable:     stable,
		Collateral: map[common.Address]CollateralToken{weth: wethTok},
	}

	tests := []struct {
		name    string
		cfg     Config
		deps    Deps
		wantErr error
	}{
		{
			name:    "length mismatch",
			cfg:     Config{Address: engineAddr, Assets: []common.Address{weth}, Feeds: []string{"ETH/USD", "BTC/USD"}},
			deps:    deps,
			wantErr: ErrAssetFeedLengthMismatch,
		},
		{
			name:    "duplicate asset",
			cfg:     Config{Address: engineAddr, Assets: []common.Address{weth, weth}, Feeds: []string{"ETH/USD", "ETH/USD"}},
			deps:    deps,
			wantErr: ErrDuplicateAsset,
		},
		{
			name:    "zero asset",
			cfg:     Config{Address: engineAddr, Assets: []common.Address{{}}, Feeds: []string{"ETH/USD"}},
			deps:    deps,
			wantErr: ErrZeroAddress,
		},
		{
			name:    "zero engine address",
			cfg:     Config{Assets: []common.Address{weth}, Feeds: []string{"ETH/USD"}},
			deps:    deps,
			wantErr: ErrZeroAddress,
		},
		{
			name:    "missing collateral token",
			cfg:     Config{Address: engineAddr, Assets: []common.Address{wbtc}, Feeds: []string{"BTC/USD"}},
			deps:    deps,
			wantErr: ErrMissingDependency,
		},
		{
			name:    "missing store",
			cfg:     Config{Address: engineAddr, Assets: []common.Address{weth}, Feeds: []string{"ETH/USD"}},
			deps:    Deps{Oracle: deps.Oracle, Stable: stable, Collateral: deps.Collateral},
			wantErr: ErrMissingDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.deps)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, ClassValidation, Classify(err))
		})
	}
}

func TestRegistryIsPerInstance(t *testing.T) {
	fx := newFixture(t)
	tokens := fx.eng.CollateralTokens()
	assert.Equal(t, []common.Address{weth, wbtc}, tokens)

	tokens[0] = carol
	assert.Equal(t, []common.Address{weth, wbtc}, fx.eng.CollateralTokens())

	feed, err := fx.eng.PriceFeed(wbtc)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", feed)

	_, err = fx.eng.PriceFeed(carol)
	assert.ErrorIs(t, err, ErrAssetNotAllowed)
}

// Deposit 10 units at $2000, mint exactly $10000 (health factor 1.0), then
// one more wei must fail.
func TestMintBoundaryIsInclusive(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))

	require.NoError(t, fx.eng.DepositCollateral(fx.ctx, alice, weth, ether(10)))

	info, err := fx.eng.AccountInformation(fx.ctx, alice)
	require.NoError(t, err)
	assert.True(t, ether(20_000).Eq(info.CollateralValueUSD))

	require.NoError(t, fx.eng.MintDebt(fx.ctx, alice, ether(10_000)))
	assert.True(t, calc.MinHealthFactor().Eq(fx.healthFactor(alice)))

	healthy, err := fx.eng.IsHealthy(fx.ctx, alice)
	require.NoError(t, err)
	assert.True(t, healthy)

	err = fx.eng.MintDebt(fx.ctx, alice, uint256.NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBreaksHealthFactor)
	assert.Equal(t, ClassInvariant, Classify(err))

	var hfErr *HealthFactorError
	require.True(t, errors.As(err, &hfErr))
	assert.Equal(t, alice, hfErr.User)
	assert.True(t, hfErr.HealthFactor.Lt(calc.MinHealthFactor()))

	assert.True(t, ether(10_000).Eq(fx.debt(alice)))
	assert.True(t, ether(10_000).Eq(fx.balanceOf(fx.stable, alice)))
}

func TestDepositAndMint(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))

	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(5_000)))

	assert.True(t, ether(10).Eq(fx.collateral(alice, weth)))
	assert.True(t, ether(5_000).Eq(fx.debt(alice)))
	assert.True(t, ether(10).Eq(fx.balanceOf(fx.tokens[weth], engineAddr)))
	assert.True(t, fx.balanceOf(fx.tokens[weth], alice).IsZero())
	assert.Equal(t, []EventType{CollateralDeposited, DebtMinted}, fx.sink.types())
}

func TestDepositAndMintIsAllOrNothing(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))
	before := fx.snapshot()

	err := fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(10_001))
	assert.ErrorIs(t, err, ErrBreaksHealthFactor)

	assert.Equal(t, before, fx.snapshot())
	assert.Empty(t, fx.sink.types())
}

func TestInputValidation(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"deposit zero", func() error { return fx.eng.DepositCollateral(fx.ctx, alice, weth, uint256.NewInt(0)) }, ErrAmountMustBePositive},
		{"deposit nil", func() error { return fx.eng.DepositCollateral(fx.ctx, alice, weth, nil) }, ErrAmountMustBePositive},
		{"deposit unregistered", func() error { return fx.eng.DepositCollateral(fx.ctx, alice, carol, ether(1)) }, ErrAssetNotAllowed},
		{"mint zero", func() error { return fx.eng.MintDebt(fx.ctx, alice, uint256.NewInt(0)) }, ErrAmountMustBePositive},
		{"redeem zero", func() error { return fx.eng.RedeemCollateral(fx.ctx, alice, alice, weth, uint256.NewInt(0)) }, ErrAmountMustBePositive},
		{"redeem unregistered", func() error { return fx.eng.RedeemCollateral(fx.ctx, alice, alice, carol, ether(1)) }, ErrAssetNotAllowed},
		{"redeem more than deposited", func() error { return fx.eng.RedeemCollateral(fx.ctx, alice, alice, weth, ether(1)) }, ErrInsufficientCollateral},
		{"burn zero", func() error { return fx.eng.BurnDebt(fx.ctx, alice, alice, uint256.NewInt(0)) }, ErrAmountMustBePositive},
		{"burn more than owed", func() error { return fx.eng.BurnDebt(fx.ctx, alice, alice, ether(1)) }, ErrBurnExceedsDebt},
	}

	before := fx.snapshot()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, ClassValidation, Classify(err))
		})
	}
	assert.Equal(t, before, fx.snapshot())
}

func TestRoundTripDepositRedeem(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, wbtc, ether(3))

	require.NoError(t, fx.eng.DepositCollateral(fx.ctx, alice, wbtc, ether(3)))
	require.NoError(t, fx.eng.RedeemCollateral(fx.ctx, alice, alice, wbtc, ether(3)))

	assert.True(t, fx.collateral(alice, wbtc).IsZero())
	assert.True(t, fx.debt(alice).IsZero())
	assert.True(t, ether(3).Eq(fx.balanceOf(fx.tokens[wbtc], alice)))

	totals, err := fx.eng.ProtocolTotals(fx.ctx)
	require.NoError(t, err)
	for _, at := range totals.Assets {
		assert.True(t, at.Deposits.IsZero())
	}
}

func TestRedeemToOtherRecipientChecksSender(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(5_000)))

	// 5 units leaves exactly $10000 of collateral against $5000 of debt
	require.NoError(t, fx.eng.RedeemCollateral(fx.ctx, alice, bob, weth, ether(5)))
	assert.True(t, ether(5).Eq(fx.balanceOf(fx.tokens[weth], bob)))

	before := fx.snapshot()
	err := fx.eng.RedeemCollateral(fx.ctx, alice, bob, weth, uint256.NewInt(1))
	var hfErr *HealthFactorError
	require.True(t, errors.As(err, &hfErr))
	assert.Equal(t, alice, hfErr.User)
	assert.Equal(t, before, fx.snapshot())
}

func TestBurnOnBehalfOf(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))
	fx.fund(bob, wbtc, ether(1))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(8_000)))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, bob, wbtc, ether(1), ether(3_000)))

	// bob pays down part of alice's debt with his own tokens
	require.NoError(t, fx.eng.BurnDebt(fx.ctx, bob, alice, ether(2_000)))

	assert.True(t, ether(6_000).Eq(fx.debt(alice)))
	assert.True(t, ether(3_000).Eq(fx.debt(bob)))
	assert.True(t, ether(1_000).Eq(fx.balanceOf(fx.stable, bob)))
	assert.True(t, ether(8_000).Eq(fx.balanceOf(fx.stable, alice)))

	var supply *uint256.Int
	require.NoError(t, fx.eng.View(fx.ctx, func(ctx context.Context, im state.Immutable) (err error) {
		supply, err = fx.stable.TotalSupply(ctx, im)
		return err
	}))
	assert.True(t, ether(9_000).Eq(supply))
}

func TestBurnWithoutTokensRollsBack(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))
	fx.fund(bob, weth, ether(1))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(1_000)))
	before := fx.snapshot()

	// bob holds no stable tokens
	err := fx.eng.BurnDebt(fx.ctx, bob, alice, ether(500))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.Equal(t, ClassExternal, Classify(err))
	assert.Equal(t, before, fx.snapshot())
}

func TestRedeemAndBurn(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(10_000)))

	// redeeming first would fail; burning first frees the collateral
	require.NoError(t, fx.eng.RedeemAndBurn(fx.ctx, alice, weth, ether(5), ether(5_000)))

	assert.True(t, ether(5).Eq(fx.collateral(alice, weth)))
	assert.True(t, ether(5_000).Eq(fx.debt(alice)))
	assert.True(t, calc.MinHealthFactor().Eq(fx.healthFactor(alice)))

	types := fx.sink.types()
	assert.Equal(t, []EventType{DebtBurned, CollateralRedeemed}, types[len(types)-2:])
}

func TestRedeemAndBurnIsAllOrNothing(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(10_000)))
	before := fx.snapshot()

	err := fx.eng.RedeemAndBurn(fx.ctx, alice, weth, ether(6), ether(5_000))
	assert.ErrorIs(t, err, ErrBreaksHealthFactor)
	assert.Equal(t, before, fx.snapshot())
}

func TestDepositWithoutApprovalRollsBack(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.eng.Update(fx.ctx, "mint", func(ctx context.Context, mu state.Mutable) error {
		return fx.tokens[weth].Mint(ctx, mu, admin, alice, ether(1))
	}))
	before := fx.snapshot()

	err := fx.eng.DepositCollateral(fx.ctx, alice, weth, ether(1))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
	assert.Equal(t, before, fx.snapshot())
	assert.Empty(t, fx.sink.types())

	users, err := fx.eng.Accounts(fx.ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestDepositNeverBreaksHealth(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(20))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(10_000)))

	fx.setPrice("ETH/USD", 1000)
	before := fx.healthFactor(alice)
	require.False(t, calc.IsHealthy(before))

	// depositing into an unsafe position is always allowed
	require.NoError(t, fx.eng.DepositCollateral(fx.ctx, alice, weth, ether(1)))
	assert.True(t, fx.healthFactor(alice).Gt(before))
}

type mockStable struct {
	mock.Mock
}

func (m *mockStable) Mint(ctx context.Context, mu state.Mutable, caller, to common.Address, amount *uint256.Int) error {
	return m.Called(caller, to, amount).Error(0)
}

func (m *mockStable) TransferFrom(ctx context.Context, mu state.Mutable, spender, from, to common.Address, amount *uint256.Int) error {
	return m.Called(spender, from, to, amount).Error(0)
}

func (m *mockStable) Burn(ctx context.Context, mu state.Mutable, caller common.Address, amount *uint256.Int) error {
	return m.Called(caller, amount).Error(0)
}

type mockCollateral struct {
	mock.Mock
	onTransferFrom func(ctx context.Context) error
}

func (m *mockCollateral) Transfer(ctx context.Context, mu state.Mutable, from, to common.Address, amount *uint256.Int) error {
	return m.Called(from, to, amount).Error(0)
}

func (m *mockCollateral) TransferFrom(ctx context.Context, mu state.Mutable, spender, from, to common.Address, amount *uint256.Int) error {
	if m.onTransferFrom != nil {
		if err := m.onTransferFrom(ctx); err != nil {
			return err
		}
	}
	return m.Called(spender, from, to, amount).Error(0)
}

func newMockEngine(t *testing.T, stable StableToken, coll CollateralToken) (*Engine, *memory.Store) {
	t.Helper()
	feed := oracle.NewStatic(8)
	feed.SetPrice("ETH/USD", decimal.NewFromInt(2000))
	store := memory.New()
	eng, err := New(Config{
		Address: engineAddr,
		Assets:  []common.Address{weth},
		Feeds:   []string{"ETH/USD"},
	}, Deps{
		Store:      store,
		Oracle:     feed,
		Stable:     stable,
		Collateral: map[common.Address]CollateralToken{weth: coll},
	})
	require.NoError(t, err)
	return eng, store
}

func TestMintFailureRollsBackDebt(t *testing.T) {
	stable := &mockStable{}
	coll := &mockCollateral{}
	coll.On("TransferFrom", engineAddr, alice, engineAddr, ether(10)).Return(nil)
	stable.On("Mint", engineAddr, alice, ether(1_000)).Return(errors.New("paused"))

	eng, _ := newMockEngine(t, stable, coll)
	ctx := context.Background()

	require.NoError(t, eng.DepositCollateral(ctx, alice, weth, ether(10)))

	err := eng.MintDebt(ctx, alice, ether(1_000))
	assert.ErrorIs(t, err, ErrMintFailed)
	assert.Equal(t, ClassExternal, Classify(err))

	debt, err := eng.Debt(ctx, alice)
	require.NoError(t, err)
	assert.True(t, debt.IsZero())

	stable.AssertExpectations(t)
	coll.AssertExpectations(t)
}

func TestRejectedMintNeverCallsToken(t *testing.T) {
	stable := &mockStable{}
	coll := &mockCollateral{}
	coll.On("TransferFrom", engineAddr, alice, engineAddr, ether(1)).Return(nil)

	eng, _ := newMockEngine(t, stable, coll)
	ctx := context.Background()
	require.NoError(t, eng.DepositCollateral(ctx, alice, weth, ether(1)))

	err := eng.MintDebt(ctx, alice, ether(1_001))
	assert.ErrorIs(t, err, ErrBreaksHealthFactor)
	stable.AssertNotCalled(t, "Mint", mock.Anything, mock.Anything, mock.Anything)
}

func TestBurnFailureRollsBack(t *testing.T) {
	stable := &mockStable{}
	coll := &mockCollateral{}
	coll.On("TransferFrom", engineAddr, alice, engineAddr, ether(10)).Return(nil)
	stable.On("Mint", engineAddr, alice, ether(1_000)).Return(nil)
	stable.On("TransferFrom", engineAddr, alice, engineAddr, ether(400)).Return(nil)
	stable.On("Burn", engineAddr, ether(400)).Return(errors.New("burn reverted"))

	eng, _ := newMockEngine(t, stable, coll)
	ctx := context.Background()
	require.NoError(t, eng.DepositAndMint(ctx, alice, weth, ether(10), ether(1_000)))

	err := eng.BurnDebt(ctx, alice, alice, ether(400))
	assert.ErrorIs(t, err, ErrBurnFailed)

	debt, err := eng.Debt(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ether(1_000).Eq(debt))
}

func TestReentrantCallIsRejected(t *testing.T) {
	stable := &mockStable{}
	coll := &mockCollateral{}
	eng, _ := newMockEngine(t, stable, coll)
	ctx := context.Background()

	var (
		inner      error
		seenDuring *uint256.Int
	)
	coll.onTransferFrom = func(ctx context.Context) error {
		// the ledger already reflects the pending deposit
		var err error
		seenDuring, err = eng.CollateralBalance(ctx, alice, weth)
		if err != nil {
			return err
		}
		inner = eng.DepositCollateral(ctx, alice, weth, ether(1))
		return inner
	}

	err := eng.DepositCollateral(ctx, alice, weth, ether(2))
	require.Error(t, err)
	assert.ErrorIs(t, inner, ErrReentrantCall)
	assert.Equal(t, ClassReentrancy, Classify(inner))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ErrReentrantCall)
	assert.True(t, ether(2).Eq(seenDuring))

	bal, err := eng.CollateralBalance(ctx, alice, weth)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	// the engine is usable again afterwards
	coll.onTransferFrom = nil
	coll.On("TransferFrom", engineAddr, alice, engineAddr, ether(1)).Return(nil)
	require.NoError(t, eng.DepositCollateral(ctx, alice, weth, ether(1)))
}

func TestStaleOracleFailsOperation(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))
	require.NoError(t, fx.eng.DepositCollateral(fx.ctx, alice, weth, ether(10)))

	now := fixedNow
	fx.feed.WithClock(func() time.Time { return now.Add(-4 * time.Hour) })
	fx.setPrice("ETH/USD", 2000)

	guarded := oracle.NewStaleGuard(fx.feed, 3*time.Hour).WithClock(func() time.Time { return now })
	eng, err := New(Config{
		Address: engineAddr,
		Assets:  []common.Address{weth, wbtc},
		Feeds:   []string{"ETH/USD", "BTC/USD"},
	}, Deps{
		Store:  fx.store,
		Oracle: guarded,
		Stable: fx.stable,
		Collateral: map[common.Address]CollateralToken{
			weth: fx.tokens[weth],
			wbtc: fx.tokens[wbtc],
		},
	})
	require.NoError(t, err)

	err = eng.MintDebt(fx.ctx, alice, ether(1))
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.ErrorIs(t, err, oracle.ErrStalePrice)
	assert.Equal(t, ClassExternal, Classify(err))

	_, err = eng.AccountInformation(fx.ctx, alice)
	assert.ErrorIs(t, err, oracle.ErrStalePrice)

	// debt-free users need no price
	hf, err := eng.HealthFactor(fx.ctx, alice)
	require.NoError(t, err)
	assert.True(t, calc.MaxHealthFactor().Eq(hf))
}

func TestReadsWithUnknownKeysAreZero(t *testing.T) {
	fx := newFixture(t)

	assert.True(t, fx.collateral(carol, weth).IsZero())
	assert.True(t, fx.collateral(carol, carol).IsZero())
	assert.True(t, fx.debt(carol).IsZero())
	assert.True(t, calc.MaxHealthFactor().Eq(fx.healthFactor(carol)))

	info, err := fx.eng.AccountInformation(fx.ctx, carol)
	require.NoError(t, err)
	assert.True(t, info.DebtMinted.IsZero())
	assert.True(t, info.CollateralValueUSD.IsZero())
}

func TestConversionReads(t *testing.T) {
	fx := newFixture(t)

	usd, err := fx.eng.USDValue(fx.ctx, wbtc, ether(15))
	require.NoError(t, err)
	assert.True(t, ether(450_000).Eq(usd))

	amount, err := fx.eng.TokenAmountFromUSD(fx.ctx, weth, ether(100))
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", amount.Dec())

	_, err = fx.eng.USDValue(fx.ctx, carol, ether(1))
	assert.ErrorIs(t, err, ErrAssetNotAllowed)

	c := fx.eng.Constants()
	assert.Equal(t, "1000000000000000000", c.Precision.Dec())
	assert.Equal(t, "10000000000", c.FeedPrecision.Dec())
	assert.Equal(t, uint64(50), c.LiquidationThreshold.Uint64())
	assert.Equal(t, uint64(100), c.LiquidationPrecision.Uint64())
	assert.Equal(t, uint64(10), c.LiquidationBonus.Uint64())
	assert.True(t, calc.MinHealthFactor().Eq(c.MinHealthFactor))
}

func TestProtocolTotalsAndPositions(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(10))
	fx.fund(bob, wbtc, ether(1))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, alice, weth, ether(10), ether(4_000)))
	require.NoError(t, fx.eng.DepositAndMint(fx.ctx, bob, wbtc, ether(1), ether(6_000)))

	totals, err := fx.eng.ProtocolTotals(fx.ctx)
	require.NoError(t, err)
	assert.True(t, ether(10_000).Eq(totals.Debt))
	assert.True(t, ether(50_000).Eq(totals.CollateralValueUSD))
	require.Len(t, totals.Assets, 2)
	assert.Equal(t, weth, totals.Assets[0].Asset)
	assert.Equal(t, "ETH/USD", totals.Assets[0].Feed)
	assert.True(t, ether(10).Eq(totals.Assets[0].Deposits))
	assert.True(t, ether(30_000).Eq(totals.Assets[1].ValueUSD))

	positions, err := fx.eng.Positions(fx.ctx)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	// sorted by address: bob < alice
	assert.Equal(t, bob, positions[0].User)
	assert.Equal(t, "2500000000000000000", positions[0].HealthFactor.Dec())
	assert.Equal(t, alice, positions[1].User)
	assert.Equal(t, "2500000000000000000", positions[1].HealthFactor.Dec())
}

func TestEventsCarryIdentity(t *testing.T) {
	fx := newFixture(t)
	fx.fund(alice, weth, ether(1))
	require.NoError(t, fx.eng.DepositCollateral(fx.ctx, alice, weth, ether(1)))

	require.Len(t, fx.sink.events, 1)
	ev := fx.sink.events[0]
	assert.NotEqual(t, [16]byte{}, [16]byte(ev.ID))
	assert.Equal(t, alice, ev.User)
	assert.Equal(t, weth, ev.Asset)
	assert.True(t, ether(1).Eq(ev.Amount))

	rec := ev.Record()
	assert.Equal(t, "collateral_deposited", rec.Type)
	assert.Equal(t, ether(1).Dec(), rec.Amount)
	assert.Empty(t, rec.Counterparty)
}

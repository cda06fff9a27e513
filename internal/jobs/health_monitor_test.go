package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leafsii/collateral-engine/internal/engine"
)

type staticSource struct {
	positions []engine.Position
	err       error
}

func (s *staticSource) Positions(context.Context) ([]engine.Position, error) {
	return s.positions, s.err
}

type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) PositionUnsafe(ctx context.Context, pos engine.Position, at time.Time) error {
	return m.Called(ctx, pos, at).Error(0)
}

type gaugeRecorder struct{ values []int }

func (g *gaugeRecorder) SetUnhealthyPositions(n int) { g.values = append(g.values, n) }

func hf(milli uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(milli), uint256.NewInt(1_000_000_000_000_000))
}

func position(hex string, healthMilli uint64) engine.Position {
	return engine.Position{
		User:               common.HexToAddress(hex),
		DebtMinted:         hf(1000),
		CollateralValueUSD: hf(2000),
		HealthFactor:       hf(healthMilli),
	}
}

func TestRunOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	healthy := position("0x01", 1500)
	boundary := position("0x02", 1000)
	unsafe := position("0x03", 999)
	worse := position("0x04", 400)

	alerter := &MockAlerter{}
	alerter.On("PositionUnsafe", mock.Anything, unsafe, now).Return(nil).Once()
	alerter.On("PositionUnsafe", mock.Anything, worse, now).Return(errors.New("hub stopped")).Once()
	gauge := &gaugeRecorder{}

	m := NewHealthMonitor(&staticSource{positions: []engine.Position{healthy, boundary, unsafe, worse}},
		alerter, gauge, zap.NewNop().Sugar(), HealthMonitorConfig{})
	m.now = func() time.Time { return now }

	sweep, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, sweep.Scanned)
	assert.Equal(t, []engine.Position{unsafe, worse}, sweep.Unhealthy)
	assert.Equal(t, "400000000000000000", sweep.Worst().Dec())
	assert.Equal(t, []int{2}, gauge.values)
	assert.Equal(t, sweep, m.LastSweep())
	alerter.AssertExpectations(t)
}

func TestRunOnceSourceError(t *testing.T) {
	gauge := &gaugeRecorder{}
	m := NewHealthMonitor(&staticSource{err: errors.New("oracle down")}, nil, gauge, zap.NewNop().Sugar(), HealthMonitorConfig{})

	_, err := m.RunOnce(context.Background())
	assert.EqualError(t, err, "oracle down")
	assert.Empty(t, gauge.values)
}

func TestWorstWithoutCandidates(t *testing.T) {
	assert.Nil(t, Sweep{Scanned: 3}.Worst())
}

func TestStartStops(t *testing.T) {
	gauge := &gaugeRecorder{}
	m := NewHealthMonitor(&staticSource{positions: []engine.Position{position("0x01", 500)}},
		nil, gauge, zap.NewNop().Sugar(), HealthMonitorConfig{Interval: time.Hour})

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background()) }()

	require.Eventually(t, func() bool { return m.LastSweep().Scanned == 1 }, 2*time.Second, 10*time.Millisecond)
	m.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

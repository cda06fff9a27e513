package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/leafsii/collateral-engine/internal/calc"
	"github.com/leafsii/collateral-engine/internal/engine"
)

// PositionSource lists every known position with its health factor.
type PositionSource interface {
	Positions(ctx context.Context) ([]engine.Position, error)
}

// Alerter is notified of each position found below the minimum health factor.
type Alerter interface {
	PositionUnsafe(ctx context.Context, pos engine.Position, at time.Time) error
}

// Gauge receives the number of unhealthy positions after every sweep.
type Gauge interface {
	SetUnhealthyPositions(n int)
}

type HealthMonitorConfig struct {
	Interval time.Duration
}

// Sweep is the outcome of one pass over all positions.
type Sweep struct {
	Scanned   int
	Unhealthy []engine.Position
	At        time.Time
}

// HealthMonitor periodically reports liquidation candidates. It only reads
// engine state.
type HealthMonitor struct {
	source  PositionSource
	alerter Alerter
	gauge   Gauge
	logger  *zap.SugaredLogger
	config  HealthMonitorConfig
	now     func() time.Time

	mu        sync.RWMutex
	last      Sweep
	cancelCtx context.CancelFunc
}

func NewHealthMonitor(source PositionSource, alerter Alerter, gauge Gauge, logger *zap.SugaredLogger, config HealthMonitorConfig) *HealthMonitor {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	return &HealthMonitor{
		source:  source,
		alerter: alerter,
		gauge:   gauge,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

func (m *HealthMonitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancelCtx = cancel
	m.mu.Unlock()

	m.logger.Infow("Starting health monitor", "interval", m.config.Interval)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warnw("Health sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			m.logger.Infow("Health monitor stopping due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *HealthMonitor) Stop() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cancelCtx != nil {
		m.cancelCtx()
	}
}

// RunOnce sweeps every position, updates the gauge and alerts on each
// unhealthy one.
func (m *HealthMonitor) RunOnce(ctx context.Context) (Sweep, error) {
	positions, err := m.source.Positions(ctx)
	if err != nil {
		return Sweep{}, err
	}

	sweep := Sweep{Scanned: len(positions), At: m.now()}
	for _, pos := range positions {
		if calc.IsHealthy(pos.HealthFactor) {
			continue
		}
		sweep.Unhealthy = append(sweep.Unhealthy, pos)

		m.logger.Infow("Liquidation candidate",
			"user", pos.User.Hex(),
			"health_factor", calc.FromWad(pos.HealthFactor, 18).String(),
			"debt", calc.FromWad(pos.DebtMinted, 18).String(),
			"collateral_usd", calc.FromWad(pos.CollateralValueUSD, 18).String(),
		)
		if m.alerter != nil {
			if err := m.alerter.PositionUnsafe(ctx, pos, sweep.At); err != nil {
				m.logger.Warnw("Failed to broadcast alert", "user", pos.User.Hex(), "error", err)
			}
		}
	}

	if m.gauge != nil {
		m.gauge.SetUnhealthyPositions(len(sweep.Unhealthy))
	}

	m.mu.Lock()
	m.last = sweep
	m.mu.Unlock()

	m.logger.Debugw("Health sweep complete", "scanned", sweep.Scanned, "unhealthy", len(sweep.Unhealthy))
	return sweep, nil
}

// LastSweep returns the most recent completed sweep.
func (m *HealthMonitor) LastSweep() Sweep {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Worst returns the lowest health factor in a sweep, or nil when every
// position is healthy.
func (s Sweep) Worst() *uint256.Int {
	var out *uint256.Int
	for _, pos := range s.Unhealthy {
		if out == nil || pos.HealthFactor.Lt(out) {
			out = pos.HealthFactor
		}
	}
	return out
}

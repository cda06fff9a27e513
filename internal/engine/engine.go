// Package engine is an overcollateralized debt engine: users lock collateral
// assets, mint a USD-pegged stable token against them, and anyone may
// liquidate positions whose health factor falls below one.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/leafsii/collateral-engine/internal/oracle"
	"github.com/leafsii/collateral-engine/internal/state"
	"github.com/leafsii/collateral-engine/pkg/kv"
)

// StableToken is the synthetic token the engine mints and burns.
type StableToken interface {
	Mint(ctx context.Context, mu state.Mutable, caller, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, mu state.Mutable, spender, from, to common.Address, amount *uint256.Int) error
	Burn(ctx context.Context, mu state.Mutable, caller common.Address, amount *uint256.Int) error
}

// CollateralToken is a fungible asset the engine custodies.
type CollateralToken interface {
	Transfer(ctx context.Context, mu state.Mutable, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, mu state.Mutable, spender, from, to common.Address, amount *uint256.Int) error
}

// Recorder receives operation metrics.
type Recorder interface {
	RecordOperation(ctx context.Context, operation, outcome string, elapsed time.Duration)
	RecordDebtVolume(ctx context.Context, direction string, amount *uint256.Int)
	RecordLiquidation(ctx context.Context, asset common.Address, debtCovered *uint256.Int)
}

type Deps struct {
	Store      kv.Store
	Oracle     oracle.Feed
	Stable     StableToken
	Collateral map[common.Address]CollateralToken
	Logger     *zap.SugaredLogger
	Metrics    Recorder
	Sinks      []EventSink
	Now        func() time.Time
}

type Engine struct {
	address    common.Address
	registry   *registry
	store      kv.Store
	oracle     oracle.Feed
	stable     StableToken
	collateral map[common.Address]CollateralToken
	logger     *zap.SugaredLogger
	metrics    Recorder
	sinks      []EventSink
	now        func() time.Time

	// held for writing by mutating operations, for reading by queries
	mu sync.RWMutex
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: engine address", ErrZeroAddress)
	}
	reg, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case deps.Oracle == nil:
		return nil, fmt.Errorf("%w: oracle", ErrMissingDependency)
	case deps.Stable == nil:
		return nil, fmt.Errorf("%w: stable token", ErrMissingDependency)
	}
	collateral := make(map[common.Address]CollateralToken, len(reg.assets))
	for _, asset := range reg.assets {
		tok, ok := deps.Collateral[asset]
		if !ok || tok == nil {
			return nil, fmt.Errorf("%w: collateral token %s", ErrMissingDependency, asset.Hex())
		}
		collateral[asset] = tok
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		address:    cfg.Address,
		registry:   reg,
		store:      deps.Store,
		oracle:     deps.Oracle,
		stable:     deps.Stable,
		collateral: collateral,
		logger:     logger,
		metrics:    deps.Metrics,
		sinks:      deps.Sinks,
		now:        now,
	}, nil
}

// Address is the engine's own account.
func (e *Engine) Address() common.Address { return e.address }

type opKey struct{}

// frame is the state of one in-flight operation.
type frame struct {
	engine *Engine
	name   string
	view   *state.View
	prices map[common.Address]quote
	events []Event
}

func (f *frame) emit(ev Event) {
	ev.ID = uuid.New()
	ev.Timestamp = f.engine.now()
	f.events = append(f.events, ev)
}

func inFlight(ctx context.Context, e *Engine) (*frame, bool) {
	f, ok := ctx.Value(opKey{}).(*frame)
	if !ok || f.engine != e {
		return nil, false
	}
	return f, true
}

// execute runs fn as one atomic operation. Mutations go through a fresh
// view that is committed only if fn succeeds.
func (e *Engine) execute(ctx context.Context, name string, fn func(ctx context.Context, f *frame) error) error {
	if cur, ok := inFlight(ctx, e); ok {
		e.logger.Warnw("Rejected reentrant call", "operation", name, "in_flight", cur.name)
		return fmt.Errorf("%w: %s during %s", ErrReentrantCall, name, cur.name)
	}

	start := time.Now()
	events, err := e.run(ctx, name, fn)
	e.recordOperation(ctx, name, err, time.Since(start))
	if err != nil {
		e.logger.Debugw("Operation rejected", "operation", name, "class", Classify(err), "error", err)
		return err
	}

	e.publish(ctx, events)
	return nil
}

func (e *Engine) run(ctx context.Context, name string, fn func(ctx context.Context, f *frame) error) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := &frame{
		engine: e,
		name:   name,
		view:   state.NewView(e.store),
		prices: make(map[common.Address]quote),
	}
	if err := fn(context.WithValue(ctx, opKey{}, f), f); err != nil {
		f.view.Discard()
		return nil, err
	}
	if err := f.view.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit %s: %v", ErrStorage, name, err)
	}
	return f.events, nil
}

// read runs fn against committed state, or against the in-flight view when
// called from inside an operation.
func (e *Engine) read(ctx context.Context, fn func(ctx context.Context, f *frame) error) error {
	if cur, ok := inFlight(ctx, e); ok {
		return fn(ctx, cur)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	f := &frame{
		engine: e,
		name:   "read",
		view:   state.NewView(e.store),
		prices: make(map[common.Address]quote),
	}
	defer f.view.Discard()
	return fn(ctx, f)
}

// Update runs fn atomically with respect to engine operations. It is how
// collaborator state that the engine does not own (token approvals, faucet
// mints) is written.
func (e *Engine) Update(ctx context.Context, name string, fn func(ctx context.Context, mu state.Mutable) error) error {
	return e.execute(ctx, name, func(ctx context.Context, f *frame) error {
		return fn(ctx, f.view)
	})
}

// View runs fn against a consistent snapshot of committed state.
func (e *Engine) View(ctx context.Context, fn func(ctx context.Context, im state.Immutable) error) error {
	return e.read(ctx, func(ctx context.Context, f *frame) error {
		return fn(ctx, f.view)
	})
}

func (e *Engine) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, events); err != nil {
			e.logger.Errorw("Failed to publish engine events", "error", err, "events", len(events))
		}
	}
}

func (e *Engine) recordOperation(ctx context.Context, name string, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(Classify(err))
	}
	e.metrics.RecordOperation(ctx, name, outcome, elapsed)
}

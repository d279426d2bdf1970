// Package runtime executes packages: each order is guard-checked, then
// dispatched to its handler, strictly in package order.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/deliorder/action"
	"github.com/pithecene-io/deliorder/guard"
	"github.com/pithecene-io/deliorder/log"
	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/registry"
	"github.com/pithecene-io/deliorder/types"
)

// Dispatcher runs one order. *action.Set satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, o types.Order) (string, error)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Guard is required. Every order passes it before its handler runs.
	Guard *guard.Guard
	// Handlers runs cleared orders. If nil, uses action.NewSet().
	Handlers Dispatcher
	// Logger receives one line per order transition. If nil, logs are discarded.
	Logger *log.Logger
	// Collector records counters. May be nil (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Now overrides the clock (for testing).
	Now func() time.Time
	// NewID overrides execution ID generation (for testing).
	NewID func() string
	// OnOutcome, if set, is called synchronously after each order finishes.
	OnOutcome func(types.ExecutionOutcome)
}

// RunResult is one execution of a package.
type RunResult struct {
	// ExecutionID identifies this run; a package may be run more than once.
	ExecutionID string
	// Package is the package that ran.
	Package *types.Package
	// Outcomes holds exactly one entry per order, in package order.
	Outcomes []types.ExecutionOutcome
	// StartedAt is when the first order was dispatched.
	StartedAt time.Time
	// Duration is the wall time of the whole run.
	Duration time.Duration
}

// Counts returns succeeded, failed and rejected order counts.
func (r *RunResult) Counts() (succeeded, failed, rejected int) {
	for _, o := range r.Outcomes {
		switch o.State {
		case types.OrderSucceeded:
			succeeded++
		case types.OrderRejected:
			rejected++
		default:
			failed++
		}
	}
	return succeeded, failed, rejected
}

// AllSucceeded reports whether every order succeeded.
func (r *RunResult) AllSucceeded() bool {
	for _, o := range r.Outcomes {
		if !o.Succeeded {
			return false
		}
	}
	return true
}

// Engine runs packages. It holds no per-run state, so one Engine may run
// independent packages concurrently; packages with overlapping filesystem
// footprints must not be run concurrently.
type Engine struct {
	guard     *guard.Guard
	handlers  Dispatcher
	logger    *log.Logger
	collector *metrics.Collector
	now       func() time.Time
	newID     func() string
	onOutcome func(types.ExecutionOutcome)
}

// NewEngine creates an engine. Returns an error if no guard is configured.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Guard == nil {
		return nil, errors.New("engine requires a guard")
	}
	e := &Engine{
		guard:     cfg.Guard,
		handlers:  cfg.Handlers,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		now:       cfg.Now,
		newID:     cfg.NewID,
		onOutcome: cfg.OnOutcome,
	}
	if e.handlers == nil {
		e.handlers = action.NewSet()
	}
	if e.logger == nil {
		e.logger = log.Nop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// Run executes pkg's orders in order and returns one outcome per order.
// A failed or rejected order never stops the orders after it.
//
// Run does not check expiry; packages from a registry must go through
// RetrieveAndRun.
func (e *Engine) Run(ctx context.Context, pkg *types.Package) []types.ExecutionOutcome {
	return e.Execute(ctx, pkg).Outcomes
}

// Execute is Run with run metadata attached.
func (e *Engine) Execute(ctx context.Context, pkg *types.Package) *RunResult {
	result := &RunResult{
		ExecutionID: e.newID(),
		Package:     pkg,
		Outcomes:    make([]types.ExecutionOutcome, 0, len(pkg.Orders)),
		StartedAt:   e.now(),
	}
	logger := e.logger.With(log.Context{
		SerialNumber: pkg.SerialNumber,
		ExecutionID:  result.ExecutionID,
		Author:       pkg.Author,
	})

	e.collector.IncRunStarted()
	logger.Info("starting package", map[string]any{"orders": len(pkg.Orders)})

	for i, o := range pkg.Orders {
		outcome := e.runOrder(ctx, logger, i, o)
		result.Outcomes = append(result.Outcomes, outcome)
		if e.onOutcome != nil {
			e.onOutcome(outcome)
		}
	}

	result.Duration = e.now().Sub(result.StartedAt)
	pkg.State = types.PackageExecuted
	if result.AllSucceeded() {
		e.collector.IncRunCompleted()
	} else {
		e.collector.IncRunFailed()
	}
	succeeded, failed, rejected := result.Counts()
	logger.Info("package finished", map[string]any{
		"succeeded":   succeeded,
		"failed":      failed,
		"rejected":    rejected,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result
}

// ExecuteOrder runs a single order outside any package. It goes through
// the same guard and handler path as an order inside Execute.
func (e *Engine) ExecuteOrder(ctx context.Context, o types.Order) types.ExecutionOutcome {
	outcome := e.runOrder(ctx, e.logger, 0, o)
	if e.onOutcome != nil {
		e.onOutcome(outcome)
	}
	return outcome
}

// runOrder walks one order through
// pending -> guard_checked -> executing -> succeeded|failed, or
// pending -> rejected when the guard refuses it. Only the terminal state
// is returned; the intermediate ones show up as debug log lines.
func (e *Engine) runOrder(ctx context.Context, logger *log.Logger, i int, o types.Order) types.ExecutionOutcome {
	outcome := types.ExecutionOutcome{
		OrderIndex: i,
		Action:     o.Action(),
		State:      types.OrderPending,
	}
	fields := map[string]any{
		"order_index": i,
		"action":      string(o.Action()),
		"path":        o.Target().Path(),
	}

	if err := e.guard.CheckOrder(o); err != nil {
		outcome.State = types.OrderRejected
		outcome.Message = err.Error()
		e.collector.IncOrderRejected(string(o.Action()))
		fields["error"] = err.Error()
		logger.Warn("order rejected by guard", fields)
		return outcome
	}
	logger.Debug("order "+string(types.OrderGuardChecked), fields)

	logger.Debug("order "+string(types.OrderExecuting), fields)
	msg, err := e.dispatch(ctx, o)
	if err != nil {
		outcome.State = types.OrderFailed
		outcome.Message = err.Error()
		e.collector.IncOrderFailed(string(o.Action()))
		fields["error"] = err.Error()
		logger.Error("order failed", fields)
		return outcome
	}

	outcome.State = types.OrderSucceeded
	outcome.Succeeded = true
	outcome.Message = msg
	e.collector.IncOrderSucceeded(string(o.Action()))
	logger.Info("order succeeded", fields)
	return outcome
}

// dispatch runs the handler, converting a panic into a failed outcome so
// one order cannot take down the rest of the package.
func (e *Engine) dispatch(ctx context.Context, o types.Order) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panicked: %v", o.Action(), r)
		}
	}()
	return e.handlers.Dispatch(ctx, o)
}

// RetrieveAndRun fetches serial from reg and runs it. When the registry
// does not affirmatively return a live package, it returns the registry
// error and no order is attempted.
func (e *Engine) RetrieveAndRun(ctx context.Context, reg registry.Retriever, serial string) (*RunResult, error) {
	pkg, err := e.Retrieve(ctx, reg, serial)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, pkg), nil
}

// Retrieve fetches serial from reg and re-checks expiry against the
// engine's clock.
func (e *Engine) Retrieve(ctx context.Context, reg registry.Retriever, serial string) (*types.Package, error) {
	logger := e.logger.With(log.Context{SerialNumber: serial})

	pkg, err := reg.Retrieve(ctx, serial)
	if err == nil && pkg == nil {
		err = types.NewRegistryError(types.ErrPackageNotFound, "retrieve", serial, nil)
	}
	if err == nil {
		err = registry.CheckLive(pkg, e.now(), serial)
	}
	if err != nil {
		switch {
		case errors.Is(err, types.ErrPackageExpired):
			e.collector.IncRetrieveExpired()
		case errors.Is(err, types.ErrPackageNotFound):
			e.collector.IncRetrieveNotFound()
		default:
			e.collector.IncRetrieveFailure()
		}
		logger.Warn("package not retrieved", map[string]any{"error": err.Error()})
		return nil, err
	}

	e.collector.IncRetrieveSuccess()
	if pkg.SerialNumber == "" {
		pkg.SerialNumber = serial
	}
	pkg.State = types.PackageRetrieved
	return pkg, nil
}

// Package engine sequences a simulation: it translates a circuit to a deck,
// runs the deck on the solver under exclusive access and processes the raw
// output into results.
//
// An Engine serializes callers in arrival order. A caller waiting for the
// solver can give up through its context without side effects; once a
// solver call has started only the solver's own timeout ends it.
//
// Recoverable solver errors (see simerr.IsRecoverable) leave the engine
// Ready. Any other solver error moves it to Faulted, after which every
// simulation fails immediately without reaching the solver.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/edp1096/spicebridge/internal/metrics"
	"github.com/edp1096/spicebridge/pkg/circuit"
	"github.com/edp1096/spicebridge/pkg/netlist"
	"github.com/edp1096/spicebridge/pkg/ngspice"
	"github.com/edp1096/spicebridge/pkg/results"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

const tracerName = "github.com/edp1096/spicebridge/pkg/engine"

type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateSimulating
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateSimulating:
		return "simulating"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Solver runs decks. *ngspice.Bridge is the production implementation.
type Solver interface {
	RunSimulation(ctx context.Context, deck string) (*ngspice.RawOutput, error)
	HealthCheck(ctx context.Context) (bool, error)
	Close(ctx context.Context) error
}

type Options struct {
	// Loader and Timeout configure the bridge built by New.
	Loader  ngspice.Loader
	Timeout time.Duration

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	// Tracer defaults to the global otel provider.
	Tracer trace.Tracer
}

type Engine struct {
	solver  Solver
	sem     *semaphore.Weighted
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu     sync.Mutex
	state  State
	fault  error
	closed bool
}

// New loads the solver library and returns a Ready engine. A setup failure
// returns no engine.
func New(ctx context.Context, opts Options) (*Engine, error) {
	log := loggerOf(opts)

	b, err := ngspice.New(ctx, ngspice.Options{
		Loader:  opts.Loader,
		Timeout: opts.Timeout,
		Logger:  log,
	})
	if err != nil {
		log.WithError(err).WithField("category", simerr.CategoryOf(err)).Error("solver setup failed")
		opts.Metrics.ObserveError(err)
		return nil, err
	}

	if err := opts.Metrics.RegisterPool(b.PoolStats); err != nil {
		log.WithError(err).Warn("buffer pool metrics not registered")
	}
	return NewWithSolver(b, opts), nil
}

// NewWithSolver returns a Ready engine driving solver. Loader and Timeout in
// opts are ignored.
func NewWithSolver(solver Solver, opts Options) *Engine {
	e := &Engine{
		solver:  solver,
		sem:     semaphore.NewWeighted(1),
		log:     loggerOf(opts).WithField("component", "engine"),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		state:   StateUninitialized,
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.setState(StateReady)
	return e
}

func loggerOf(opts Options) logrus.FieldLogger {
	if opts.Logger == nil {
		return logrus.StandardLogger()
	}
	return opts.Logger
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.metrics.SetState(s.String())
}

func (e *Engine) setFault(err error) {
	e.mu.Lock()
	e.state = StateFaulted
	e.fault = err
	e.mu.Unlock()
	e.metrics.SetState(StateFaulted.String())
}

// faulted returns the error every call gets once the engine is faulted.
func (e *Engine) faulted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateFaulted {
		return nil
	}
	return simerr.LibraryError("engine faulted", e.fault)
}

type simulateOptions struct {
	analysis netlist.Analysis
	title    string
}

type Option func(*simulateOptions)

// WithAnalysis selects the analysis directive. The default is .op.
func WithAnalysis(a netlist.Analysis) Option {
	return func(o *simulateOptions) { o.analysis = a }
}

// WithTitle overrides the circuit name on the deck title line.
func WithTitle(title string) Option {
	return func(o *simulateOptions) { o.title = title }
}

// SimulateCircuit translates c and runs it. A soft solver failure is not an
// error: check IsSuccessful on the results.
func (e *Engine) SimulateCircuit(ctx context.Context, c *circuit.Circuit, opts ...Option) (*results.SimulationResults, error) {
	cfg := simulateOptions{analysis: netlist.OperatingPoint()}
	for _, o := range opts {
		o(&cfg)
	}

	ctx, span := e.tracer.Start(ctx, "engine.SimulateCircuit",
		trace.WithAttributes(attribute.String("analysis", cfg.analysis.Type.String())))
	defer span.End()

	res, err := e.simulateCircuit(ctx, c, cfg)
	return res, e.finish(span, res, err)
}

func (e *Engine) simulateCircuit(ctx context.Context, c *circuit.Circuit, cfg simulateOptions) (*results.SimulationResults, error) {
	if err := e.faulted(); err != nil {
		return nil, err
	}

	deck, err := netlist.GenerateWithOptions(c, netlist.Options{Title: cfg.title, Analysis: cfg.analysis})
	if err != nil {
		e.log.WithError(err).Debug("circuit rejected")
		return nil, err
	}
	if c != nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("components", c.Len()))
	}
	return e.run(ctx, deck, cfg.analysis.Type.String())
}

// SimulateDeck runs deck text as written. The deck is parsed first so that
// malformed input fails with a ParseError before reaching the solver.
func (e *Engine) SimulateDeck(ctx context.Context, deck string) (*results.SimulationResults, error) {
	ctx, span := e.tracer.Start(ctx, "engine.SimulateDeck")
	defer span.End()

	res, err := e.simulateDeck(ctx, deck)
	return res, e.finish(span, res, err)
}

func (e *Engine) simulateDeck(ctx context.Context, deck string) (*results.SimulationResults, error) {
	if err := e.faulted(); err != nil {
		return nil, err
	}

	parsed, err := netlist.ParseDeck(deck)
	if err != nil {
		e.log.WithError(err).Debug("deck rejected")
		return nil, err
	}

	analysis := netlist.AnalysisUnknown
	if len(parsed.Analyses) > 0 {
		analysis = parsed.Analyses[0].Type
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("analysis", analysis.String()))
	return e.run(ctx, deck, analysis.String())
}

func (e *Engine) finish(span trace.Span, res *results.SimulationResults, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveError(err)
		return err
	}
	span.SetAttributes(attribute.Bool("success", res.IsSuccessful()))
	return nil
}

// run holds the solver for one deck.
func (e *Engine) run(ctx context.Context, deck, analysis string) (*results.SimulationResults, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	// A previous holder may have faulted the engine while we waited.
	if err := e.faulted(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, simerr.System("simulation abandoned by caller", err)
	}

	e.setState(StateSimulating)
	start := time.Now()
	raw, err := e.solver.RunSimulation(ctx, deck)
	elapsed := time.Since(start)

	log := e.log.WithFields(logrus.Fields{"analysis": analysis, "elapsed": elapsed})
	if err != nil {
		e.metrics.ObserveSimulation(analysis, metrics.OutcomeError, elapsed)
		if faults(err) {
			log.WithError(err).Error("simulation failed, engine faulted")
			e.setFault(err)
		} else {
			log.WithError(err).Warn("simulation failed")
			e.setState(StateReady)
		}
		return nil, err
	}
	e.setState(StateReady)

	res := results.Process(raw)
	outcome := metrics.OutcomeSuccess
	if !res.IsSuccessful() {
		outcome = metrics.OutcomeSoftFailure
	}
	e.metrics.ObserveSimulation(analysis, outcome, elapsed)

	log = log.WithFields(logrus.Fields{"plot": res.Plot(), "values": len(res.Values()), "warnings": len(res.Warnings())})
	if res.IsSuccessful() {
		log.Info("simulation finished")
	} else {
		log.WithField("errors", res.Errors()).Warn("simulation finished with solver errors")
	}
	return res, nil
}

// faults reports whether a solver error leaves the solver unusable: setup
// failures (including a poisoned bridge) and FFI failures.
func faults(err error) bool {
	switch simerr.CategoryOf(err) {
	case simerr.CategorySetup, simerr.CategoryFFI:
		return true
	}
	return false
}

func (e *Engine) acquire(ctx context.Context) error {
	e.metrics.WaitStart()
	defer e.metrics.WaitEnd()
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return simerr.System("waiting for solver", err)
	}
	return nil
}

// HealthCheck asks the solver whether it is alive. It queues behind running
// simulations and never changes the engine state.
func (e *Engine) HealthCheck(ctx context.Context) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "engine.HealthCheck")
	defer span.End()

	ok, err := e.healthCheck(ctx)
	e.metrics.ObserveHealth(ok)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("healthy", ok))
	return ok, err
}

func (e *Engine) healthCheck(ctx context.Context) (bool, error) {
	if err := e.faulted(); err != nil {
		return false, err
	}
	if err := e.acquire(ctx); err != nil {
		return false, err
	}
	defer e.sem.Release(1)

	if err := ctx.Err(); err != nil {
		return false, simerr.System("health check abandoned by caller", err)
	}
	return e.solver.HealthCheck(ctx)
}

// Close waits for the running simulation, then releases the solver. The
// engine is Faulted afterwards.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.sem.Release(1)

	e.mu.Lock()
	closed := e.closed
	e.closed = true
	e.mu.Unlock()
	if closed {
		return nil
	}

	err := e.solver.Close(ctx)
	e.setFault(simerr.LibraryError("engine closed", nil))
	e.log.Debug("engine closed")
	return err
}

package ngspice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edp1096/spicebridge/pkg/mempool"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

const DefaultTimeout = 30 * time.Second

// healthCommand is a command every ngspice build accepts with no side effect.
const healthCommand = "echo"

// cleanupCommands release the circuit and its plots after each run.
var cleanupCommands = []string{"destroy all", "remcirc"}

type Options struct {
	// Loader supplies the library. Nil means a WasmLoader with default discovery.
	Loader Loader
	// Timeout bounds Init, each RunSimulation as a whole, and each health
	// check. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Bridge is the single owner of a loaded solver library. It is not safe for
// concurrent use.
type Bridge struct {
	lib     Library
	timeout time.Duration
	log     logrus.FieldLogger

	out output

	// inflight is closed when an abandoned call returns.
	inflight chan struct{}
	poisoned error
	// dirty is set when a run ended before its circuit could be removed.
	dirty bool

	closeOnce sync.Once
	closeErr  error
}

// New loads and initializes the solver. Any failure here is a setup error and
// no Bridge is returned.
func New(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.Loader == nil {
		opts.Loader = &WasmLoader{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	lib, err := opts.Loader.Load(ctx)
	if err != nil {
		if _, ok := simerr.As(err); ok {
			return nil, err
		}
		return nil, simerr.LibraryError("loading solver", err)
	}

	b := &Bridge{
		lib:     lib,
		timeout: opts.Timeout,
		log:     opts.Logger.WithField("component", "ngspice"),
	}

	cb := Callbacks{
		SendChar:       b.out.sendChar,
		SendStat:       b.out.sendStat,
		ControlledExit: b.out.controlledExit,
	}

	var code int32
	err = b.invoke(ctx, "ngSpice_Init", b.deadline(), func(ctx context.Context) (err error) {
		code, err = lib.Init(ctx, cb)
		return err
	})
	if err == nil && code != 0 {
		_, stderr, _ := b.out.snapshot()
		err = simerr.InitializationFailed(fmt.Sprintf("ngSpice_Init returned %d", code), joinLines(stderr))
	}
	if err != nil {
		if !isKind(err, simerr.KindInitializationFailed) {
			err = simerr.InitializationFailed("ngSpice_Init", err)
		}
		_ = lib.Close(ctx)
		return nil, err
	}

	b.log.Debug("solver initialized")
	return b, nil
}

func isKind(err error, k simerr.Kind) bool {
	return simerr.KindOf(err) == k
}

func joinLines(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

func (b *Bridge) deadline() time.Time {
	return time.Now().Add(b.timeout)
}

// invoke runs fn until deadline. fn receives a context that is never
// cancelled, so a started native call runs to completion even if abandoned.
func (b *Bridge) invoke(ctx context.Context, name string, deadline time.Time, fn func(context.Context) error) error {
	if b.poisoned != nil {
		return b.poisoned
	}

	if b.busy() {
		e := simerr.Timeout(name, b.timeout)
		e.Detail = "solver busy with an abandoned call"
		return e
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return simerr.Timeout(name, b.timeout)
	}

	done := make(chan struct{})
	var callErr error
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("panic: %v", r)
			}
		}()
		callErr = fn(context.WithoutCancel(ctx))
	}()

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		b.inflight = done
		b.log.WithField("call", name).Warnf("native call exceeded %s, abandoning", b.timeout)
		return simerr.Timeout(name, b.timeout)
	}

	if callErr != nil {
		if simerr.IsRecoverable(callErr) {
			return callErr
		}
		b.poison(simerr.LibraryError(fmt.Sprintf("native call %s failed", name), simerr.FFI(name, callErr)))
		return b.poisoned
	}
	if exit := b.out.exited(); exit != nil {
		b.poison(simerr.LibraryError(fmt.Sprintf("solver exited with status %d during %s", exit.status, name), nil))
		return b.poisoned
	}
	return nil
}

// busy reports whether an abandoned call is still running.
func (b *Bridge) busy() bool {
	if b.inflight == nil {
		return false
	}
	select {
	case <-b.inflight:
		b.inflight = nil
		return false
	default:
		return true
	}
}

func (b *Bridge) poison(err error) {
	if b.poisoned == nil {
		b.poisoned = err
		b.log.WithError(err).Error("solver bridge poisoned")
	}
}

// Poisoned returns the error that disabled the bridge, or nil.
func (b *Bridge) Poisoned() error {
	return b.poisoned
}

func (b *Bridge) command(ctx context.Context, cmd string, deadline time.Time) (int32, error) {
	var code int32
	err := b.invoke(ctx, cmd, deadline, func(ctx context.Context) (err error) {
		code, err = b.lib.Command(ctx, cmd)
		return err
	})
	return code, err
}

// RunSimulation loads deck, runs it, and copies every vector of the resulting
// plot. The whole run, cleanup included, is bounded by the bridge timeout.
// The circuit is removed from the solver before returning, or at the start of
// the next run when no time was left.
func (b *Bridge) RunSimulation(ctx context.Context, deck string) (*RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, simerr.System("run abandoned by caller", err)
	}
	if b.poisoned != nil {
		return nil, b.poisoned
	}

	deadline := b.deadline()
	if b.dirty {
		b.cleanup(ctx, deadline)
	}

	b.out.reset()
	log := b.log.WithField("op", "run")

	lines := deckLines(deck)
	if len(lines) == 0 {
		return nil, simerr.CommandFailed("circ", "empty deck")
	}

	loaded := false
	defer func() {
		if loaded {
			b.dirty = true
			b.cleanup(ctx, deadline)
		}
	}()

	var code int32
	err := b.invoke(ctx, "ngSpice_Circ", deadline, func(ctx context.Context) (err error) {
		code, err = b.lib.Circ(ctx, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	loaded = true
	if code != 0 {
		_, stderr, _ := b.out.snapshot()
		return nil, simerr.CommandFailed("circ", strings.Join(stderr, "\n"))
	}

	code, err = b.command(ctx, "run", deadline)
	if err != nil {
		return nil, err
	}

	stdout, stderr, status := b.out.snapshot()
	if line, ok := convergenceFailure(stderr, stdout); ok {
		log.WithField("line", line).Info("convergence failure")
		return nil, simerr.ConvergenceFailed(line)
	}
	if code != 0 {
		return nil, simerr.CommandFailed("run", strings.Join(stderr, "\n"))
	}

	raw := &RawOutput{
		Stdout:  stdout,
		Stderr:  stderr,
		Lines:   b.out.ordered(),
		Status:  status,
		Aborted: runAborted(stderr, stdout),
	}
	if err := b.collect(ctx, raw, deadline); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"plot":     raw.Plot,
		"vectors":  len(raw.Vectors),
		"warnings": len(stderr),
	}).Debug("simulation finished")
	return raw, nil
}

// collect copies the current plot out of the solver.
func (b *Bridge) collect(ctx context.Context, raw *RawOutput, deadline time.Time) error {
	err := b.invoke(ctx, "ngSpice_CurPlot", deadline, func(ctx context.Context) (err error) {
		raw.Plot, err = b.lib.CurPlot(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var names []string
	err = b.invoke(ctx, "ngSpice_AllVecs", deadline, func(ctx context.Context) (err error) {
		names, err = b.lib.AllVecs(ctx, raw.Plot)
		return err
	})
	if err != nil {
		return err
	}

	for _, name := range names {
		var vec *Vector
		err := b.invoke(ctx, "ngGet_Vec_Info", deadline, func(ctx context.Context) (err error) {
			vec, err = b.lib.VecInfo(ctx, raw.Plot+"."+name)
			return err
		})
		if err != nil {
			return err
		}
		if vec == nil {
			b.log.WithField("vector", name).Warn("listed vector has no data")
			continue
		}
		if vec.Name == "" {
			vec.Name = name
		}
		raw.Vectors = append(raw.Vectors, *vec)
	}
	return nil
}

func (b *Bridge) cleanup(ctx context.Context, deadline time.Time) {
	for _, cmd := range cleanupCommands {
		if b.poisoned != nil || b.busy() {
			return
		}
		if !time.Now().Before(deadline) {
			b.log.WithField("command", cmd).Warn("no time left for cleanup, deferred to the next run")
			return
		}
		if code, err := b.command(ctx, cmd, deadline); err != nil || code != 0 {
			b.log.WithError(err).WithField("code", code).Warnf("cleanup %q failed", cmd)
		}
	}
	b.dirty = false
}

// HealthCheck issues a no-op command and reports whether the solver answered.
func (b *Bridge) HealthCheck(ctx context.Context) (bool, error) {
	if b.poisoned != nil {
		return false, b.poisoned
	}

	b.out.reset()
	code, err := b.command(ctx, healthCommand, b.deadline())
	if err != nil {
		return false, err
	}
	if code != 0 {
		_, stderr, _ := b.out.snapshot()
		return false, simerr.CommandFailed(healthCommand, strings.Join(stderr, "\n"))
	}
	return true, nil
}

// PoolStats reports the guest buffer pool of the loaded library. ok is false
// for libraries that marshal without a pool. Unlike the other methods it may
// be called concurrently, e.g. from a metrics scrape.
func (b *Bridge) PoolStats() (stats mempool.Stats, ok bool) {
	p, ok := b.lib.(interface{ PoolStats() mempool.Stats })
	if !ok {
		return mempool.Stats{}, false
	}
	return p.PoolStats(), true
}

// Close releases the library. A call still running after a timeout is left to
// finish on its own.
func (b *Bridge) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.closeErr = b.lib.Close(ctx)
		if b.poisoned == nil {
			b.poisoned = simerr.LibraryError("bridge closed", nil)
		}
	})
	return b.closeErr
}

// deckLines splits deck text into the line array ngSpice_Circ expects.
func deckLines(deck string) []string {
	var lines []string
	for _, line := range strings.Split(deck, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

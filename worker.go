package eventq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sxb1010/eventq/internal/logging"
	"github.com/sxb1010/eventq/internal/logging/strategies"
)

// Configuration errors (spec.md §7 item 1): fail synchronously from
// Start, no partial state.
var (
	ErrMissingAdapter = errors.New("eventq: worker_adapter is required")
	ErrMissingClient  = errors.New("eventq: client is required")
	ErrAlreadyRunning = errors.New("eventq: worker is already running")
)

// optionsValidator enforces the struct tags on QueueSpec and
// WorkerOptions (non-negative durations/counts, a required queue name)
// before a worker is allowed to start.
var optionsValidator = validator.New()

// Worker is the public façade wiring a BrokerAdapter, the fan-out
// engine, and the callback registry together (spec.md §4.5's
// WorkerRuntime, named Worker here to read as the thing a caller
// constructs and starts).
type Worker struct {
	spec QueueSpec
	opts WorkerOptions

	engine  *runtimeEngine
	metrics *Metrics

	startMu sync.Mutex
	started bool
}

// New builds a Worker for the given queue and options. log may be nil,
// in which case a Console logger is used.
func New(spec QueueSpec, opts WorkerOptions, callbacks Callbacks, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.New(spec.Name, strategies.NewConsole())
	}
	metrics := NewMetrics(spec.Name)
	engine := newRuntimeEngine(callbacks, log, metrics, time.Duration(opts.GCFlushIntervalSeconds)*time.Second)
	return &Worker{spec: spec, opts: opts, engine: engine, metrics: metrics}
}

// Metrics exposes the worker's private prometheus registry so a caller
// can wire it into their own metrics HTTP handler if they want to.
func (w *Worker) Metrics() *Metrics { return w.metrics }

// Status returns a snapshot of the WorkerStatus.
func (w *Worker) Status() WorkerStatus { return w.engine.Status() }

// IsRunning reports whether the worker is currently accepting fetches.
func (w *Worker) IsRunning() bool { return w.engine.IsRunning() }

// Config round-trip getters (spec.md §8 "Config round-trip" property).
func (w *Worker) ThreadCount() int            { return w.opts.ThreadCount }
func (w *Worker) ForkCount() int              { return w.opts.ForkCount }
func (w *Worker) SleepSeconds() int           { return w.opts.SleepSeconds }
func (w *Worker) GCFlushIntervalSeconds() int { return w.opts.GCFlushIntervalSeconds }
func (w *Worker) QueuePollWaitSeconds() int   { return w.opts.QueuePollWaitSeconds }

// Start validates mandatory options, configures the adapter, and fans
// out fork_count process-simulacra (a single one when fork_count ==
// 0), each spawning thread_count threads. Blocks until every
// process-simulacrum exits unless opts.Wait is explicitly false, in
// which case it returns once they are started; the SIGINT/SIGTERM
// handlers stay armed until they exit (spec.md §4.5, §6 "Process
// model"). A configuration error leaves the Worker startable again.
func (w *Worker) Start(ctx context.Context, handler Handler) error {
	w.startMu.Lock()
	if w.started {
		w.startMu.Unlock()
		return ErrAlreadyRunning
	}
	if w.opts.Adapter == nil {
		w.startMu.Unlock()
		return ErrMissingAdapter
	}
	if w.opts.Client == nil {
		w.startMu.Unlock()
		return ErrMissingClient
	}
	w.started = true
	w.startMu.Unlock()

	configured := false
	defer func() {
		if !configured {
			w.startMu.Lock()
			w.started = false
			w.startMu.Unlock()
		}
	}()

	if w.opts.Validate {
		if err := optionsValidator.Struct(w.spec); err != nil {
			return fmt.Errorf("eventq: invalid queue spec: %w", err)
		}
		if err := optionsValidator.Struct(w.opts); err != nil {
			return fmt.Errorf("eventq: invalid worker options: %w", err)
		}
	}

	if err := w.opts.Adapter.Configure(w.opts); err != nil {
		return err
	}
	configured = true

	w.engine.running.Store(true)
	cancelSignals := w.engine.installSignalHandlers()

	forkCount := w.opts.ForkCount
	if forkCount <= 0 {
		if w.opts.Wait {
			defer cancelSignals()
			w.engine.runProcess(ctx, 0, w.spec, w.opts, handler)
			return nil
		}
		go func() {
			defer cancelSignals()
			w.engine.runProcess(ctx, 0, w.spec, w.opts, handler)
		}()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < forkCount; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			w.engine.runProcess(ctx, pid, w.spec, w.opts, handler)
		}(i)
	}

	if w.opts.Wait {
		wg.Wait()
		cancelSignals()
		return nil
	}
	go func() {
		wg.Wait()
		cancelSignals()
	}()
	return nil
}

// Stop sets is_running to false and stops the adapter. Does not
// synchronously join threads (spec.md §4.5); threads observe the flag
// at the top of their next iteration.
func (w *Worker) Stop() error {
	w.engine.Stop()
	if w.opts.Adapter == nil {
		return nil
	}
	return w.opts.Adapter.Stop()
}

package eventq

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sxb1010/eventq/internal/logging"
	"github.com/sxb1010/eventq/internal/nonce"
)

// runtimeEngine implements spec.md §4.5/§5: process/thread fan-out,
// cooperative shutdown via an atomic running flag, signal handling,
// and GC pacing. It provides the callback/logging half of
// RuntimeContext; processContext embeds it and adds the NonceGate
// methods, so adapters see only that narrow surface, never this
// struct's internals
// (spec.md §9 — "pass the runtime to the adapter as an explicit
// context ... rather than via back-pointers with mutable state").
//
// Go has no fork(2) accessible to a library without re-executing its
// own binary (that's the CLI's job, out of scope per spec.md §1), so
// fork_count here spawns goroutine-based "process-simulacra" instead
// of OS processes. Only the outermost Start installs OS signal
// handlers; every process-simulacrum's threads observe the same
// running flag. See DESIGN.md Open Question 1.
type runtimeEngine struct {
	callbacks Callbacks
	logger    *logging.Logger
	metrics   *Metrics

	running atomic.Bool

	statusMu sync.Mutex
	status   WorkerStatus

	gcMu          sync.Mutex
	lastGCFlush   time.Time
	gcFlushEvery  time.Duration
}

func newRuntimeEngine(callbacks Callbacks, logger *logging.Logger, metrics *Metrics, gcFlushEvery time.Duration) *runtimeEngine {
	return &runtimeEngine{
		callbacks:    callbacks,
		logger:       logger,
		metrics:      metrics,
		gcFlushEvery: gcFlushEvery,
	}
}

// RuntimeContext implementation.

func (r *runtimeEngine) OnError(err error, msg *Message) {
	if r.metrics != nil {
		r.metrics.Errors.Inc()
	}
	if msg != nil {
		r.logger.Error("handler or broker error", err, logging.F("message_id", msg.ID))
	} else {
		r.logger.Error("broker error", err)
	}
	r.callbacks.onError(err, msg)
}

func (r *runtimeEngine) OnRetry(msg *Message, abort bool) {
	if r.metrics != nil {
		r.metrics.Retries.Inc()
	}
	r.logger.Info("message scheduled for retry",
		logging.F("message_id", msg.ID),
		logging.F("retry_attempts", msg.RetryAttempts),
		logging.F("abort", abort),
	)
	r.callbacks.onRetry(msg, abort)
}

func (r *runtimeEngine) OnRetryExceeded(msg *Message) {
	if r.metrics != nil {
		r.metrics.RetryExceeded.Inc()
	}
	r.logger.Warn("message retry attempts exceeded", logging.F("message_id", msg.ID))
	r.callbacks.onRetryExceeded(msg)
}

func (r *runtimeEngine) LogDebug(msg string, kv ...any) { r.logger.Debug(msg, kvFields(kv)...) }
func (r *runtimeEngine) LogInfo(msg string, kv ...any)  { r.logger.Info(msg, kvFields(kv)...) }
func (r *runtimeEngine) LogWarn(msg string, kv ...any)  { r.logger.Warn(msg, kvFields(kv)...) }

func kvFields(kv []any) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fields = append(fields, logging.F(key, kv[i+1]))
	}
	return fields
}

// processContext is the RuntimeContext handed to a BrokerAdapter for
// one process-simulacrum. It promotes runtimeEngine's callback/logging
// methods and adds a NonceGate private to this process-simulacrum,
// matching spec.md §5's "process-scoped" resource model (the gate is
// not shared across process-simulacra, only across that one's threads).
type processContext struct {
	*runtimeEngine
	gate *nonce.Gate
}

func (p *processContext) Admit(id string) bool { return p.gate.Admit(id) }
func (p *processContext) Complete(id string)    { p.gate.Complete(id) }
func (p *processContext) Failed(id string)      { p.gate.Failed(id) }

// IsRunning reports the cooperative shutdown flag.
func (r *runtimeEngine) IsRunning() bool { return r.running.Load() }

// Stop sets is_running to false. Does not synchronously join threads;
// they observe the flag at the top of their next loop iteration
// (spec.md §4.5).
func (r *runtimeEngine) Stop() {
	r.running.Store(false)
}

// Status returns a snapshot of the WorkerStatus. Safe to call at any time.
func (r *runtimeEngine) Status() WorkerStatus {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	procs := make([]ProcessStatus, len(r.status.Processes))
	copy(procs, r.status.Processes)
	return WorkerStatus{Processes: procs}
}

func (r *runtimeEngine) recordProcess(p ProcessStatus) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.status.Processes = append(r.status.Processes, p)
}

// gcFlush is a best-effort memory-pressure hint: if at least
// gcFlushEvery has elapsed since the previous hint, triggers an
// explicit collection. On platforms where that would be meaningless
// this is still safe to call; runtime.GC() always exists in Go, unlike
// the "runtimes without such a hook" case spec.md §4.5 anticipates for
// other languages.
func (r *runtimeEngine) gcFlush() {
	if r.gcFlushEvery <= 0 {
		return
	}
	r.gcMu.Lock()
	defer r.gcMu.Unlock()
	if time.Since(r.lastGCFlush) < r.gcFlushEvery {
		return
	}
	r.lastGCFlush = time.Now()
	if r.metrics != nil {
		r.metrics.GCFlushes.Inc()
	}
	runtime.GC()
}

// installSignalHandlers arms SIGINT/SIGTERM to call Stop. Returned
// func cancels the signal notification; callers call it once the
// worker's process-simulacra have exited.
func (r *runtimeEngine) installSignalHandlers() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			r.logger.Info("signal received, stopping")
			r.Stop()
		case <-done:
		}
	}()
	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}

// runProcess is one process-simulacrum: it records itself in
// WorkerStatus, runs the adapter's PreProcess hook, then fans out
// threadCount thread loops (or runs one inline when threadCount == 0).
// A panic escaping any thread loop is treated as a fatal worker-thread
// error (spec.md §7 item 8): it is logged, reported via OnError, and
// stops every thread in *this* process-simulacrum only — "killing the
// process" realized as tearing down this goroutine group rather than
// os.Exit-ing the whole binary, which would be both destructive to a
// host program embedding this library and untestable. See DESIGN.md
// Open Question 1.
func (r *runtimeEngine) runProcess(ctx context.Context, pid int, spec QueueSpec, opts WorkerOptions, handler Handler) {
	procStatus := ProcessStatus{PID: pid}
	threadCount := opts.ThreadCount
	if threadCount <= 0 {
		procStatus.Threads = []ThreadHandle{{ID: 0}}
	} else {
		procStatus.Threads = make([]ThreadHandle, threadCount)
		for i := range procStatus.Threads {
			procStatus.Threads[i] = ThreadHandle{ID: i}
		}
	}
	r.recordProcess(procStatus)

	pctx := &processContext{
		runtimeEngine: r,
		gate:          nonce.New(opts.NonceCapacity, time.Duration(opts.NonceTTLSeconds)*time.Second),
	}

	if err := opts.Adapter.PreProcess(ctx, pctx, opts); err != nil {
		r.OnError(err, nil)
		return
	}

	var processAlive atomic.Bool
	processAlive.Store(true)

	runThread := func(threadID int) {
		defer func() {
			if rec := recover(); rec != nil {
				err, ok := rec.(error)
				if !ok {
					err = panicError{rec}
				}
				r.logger.Error("fatal worker-thread error", err, logging.F("process", pid), logging.F("thread", threadID))
				r.OnError(err, nil)
				processAlive.Store(false)
			}
		}()
		for r.IsRunning() && processAlive.Load() {
			received := opts.Adapter.FetchAndProcess(ctx, spec, opts, handler, pctx)
			if r.metrics != nil {
				r.metrics.Fetched.Inc()
			}
			r.gcFlush()
			if !received && opts.SleepSeconds > 0 {
				sleepOrStop(ctx, time.Duration(opts.SleepSeconds)*time.Second, r)
			}
		}
	}

	if threadCount <= 0 {
		runThread(0)
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < threadCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runThread(id)
		}(i)
	}
	wg.Wait()
}

// sleepOrStop sleeps for d but wakes early if the runtime is stopped or
// ctx is cancelled, so shutdown is observed within one sleep interval
// instead of the full duration (spec.md §8 "Lifecycle" property).
func sleepOrStop(ctx context.Context, d time.Duration, r *runtimeEngine) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.IsRunning() {
				return
			}
		}
	}
}

type panicError struct{ value any }

func (p panicError) Error() string {
	return "panic in worker thread"
}

package eventq

import "context"

// BrokerAdapter is the capability set a broker binding must implement.
// Modeled as a capability set rather than an inheritance hierarchy per
// spec.md §9: a single Runtime drives heterogeneous brokers whose ack,
// redelivery, and delay models are fundamentally different.
type BrokerAdapter interface {
	// Configure validates and stores adapter-specific options. Called
	// once, before any threads spawn.
	Configure(opts WorkerOptions) error

	// PreProcess is a one-shot hook invoked before a process-simulacrum
	// spawns its threads. May be a no-op.
	PreProcess(ctx context.Context, rt RuntimeContext, opts WorkerOptions) error

	// FetchAndProcess fetches at most one message, dispatches it to
	// handler, and issues exactly one disposition (ack / reject-retry /
	// reject-terminal) before returning. Returns true if a message was
	// received and processed (including duplicates that were dropped
	// with no handler call), false on an empty poll. Errors are
	// reported through rt's callbacks and never returned to the caller.
	FetchAndProcess(ctx context.Context, spec QueueSpec, opts WorkerOptions, handler Handler, rt RuntimeContext) bool

	// Stop releases any adapter-held resources. Idempotent.
	Stop() error
}

// RuntimeContext is the explicit context a BrokerAdapter is given
// instead of a mutable back-pointer to the Runtime (spec.md §9). It
// exposes exactly what an adapter needs: the callback sinks and a
// logger scoped to the worker.
type RuntimeContext interface {
	OnError(err error, msg *Message)
	OnRetry(msg *Message, abort bool)
	OnRetryExceeded(msg *Message)
	LogDebug(msg string, kv ...any)
	LogInfo(msg string, kv ...any)
	LogWarn(msg string, kv ...any)

	// Admit, Complete, and Failed drive the per-process NonceGate
	// (spec.md §4.2). Admit returns false when id is a duplicate the
	// adapter must drop without calling the handler; Complete/Failed
	// transition an admitted id to its final state.
	Admit(id string) bool
	Complete(id string)
	Failed(id string)
}

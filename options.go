package eventq

// WorkerOptions is the closed set of recognized worker configuration
// keys from spec.md §3, realized as a Go struct instead of an open map.
type WorkerOptions struct {
	ForkCount              int `validate:"gte=0"`
	ThreadCount            int `validate:"gte=0"`
	SleepSeconds           int `validate:"gte=0"`
	GCFlushIntervalSeconds int `validate:"gte=0"`
	QueuePollWaitSeconds   int `validate:"gte=0"`
	MQEndpoint             string
	Durable                bool
	Wait                   bool

	// NonceCapacity and NonceTTLSeconds size the per-process NonceGate
	// (spec.md §4.2's "at least 10,000 entries... at least one hour").
	// Zero means "use the package default".
	NonceCapacity   int `validate:"gte=0"`
	NonceTTLSeconds int `validate:"gte=0"`

	// Adapter is the BrokerAdapter implementation to drive. Excluded
	// from struct-tag validation since it's an interface, not data.
	Adapter BrokerAdapter `validate:"-"`
	// Client is the adapter-specific connection factory/handle (an AMQP
	// connection string resolver, a visibility-timeout queue client,
	// etc). Left untyped since each adapter package defines its own
	// concrete client shape. Excluded from struct-tag validation for
	// the same reason as Adapter.
	Client any `validate:"-"`

	// Validate runs struct-tag validation during Start. Ambient
	// addition, defaults true.
	Validate bool
}

// DefaultWorkerOptions returns the spec.md §3 defaults.
func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		ForkCount:              0,
		ThreadCount:            1,
		SleepSeconds:           0,
		GCFlushIntervalSeconds: 10,
		QueuePollWaitSeconds:   15,
		Durable:                true,
		Wait:                   true,
		Validate:               true,
	}
}

// ThreadHandle is an opaque identifier for one worker thread (goroutine).
type ThreadHandle struct {
	ID int
}

// ProcessStatus records one process-simulacrum's spawned threads.
type ProcessStatus struct {
	PID     int
	Threads []ThreadHandle
}

// WorkerStatus is owned exclusively by the runtime: created at start,
// appended to as process-simulacra/threads spawn, never mutated once a
// worker joins.
type WorkerStatus struct {
	Processes []ProcessStatus
}

package eventq

// QueueSpec describes one queue's retry behavior. Immutable after the
// worker starts.
type QueueSpec struct {
	Name              string `validate:"required"`
	MaxRetryAttempts  int    `validate:"gte=0"`
	AllowRetry        bool
	AllowRetryBackOff bool
	RetryDelayMS      int `validate:"gte=0"`
	MaxRetryDelayMS   int `validate:"gte=0"`
}

// RetryPolicy is the immutable bundle read off a QueueSpec and handed
// to the BackoffCalculator and the broker adapter. It carries no logic
// of its own.
type RetryPolicy struct {
	MaxRetryAttempts  int
	AllowRetry        bool
	AllowRetryBackOff bool
	RetryDelayMS      int
	MaxRetryDelayMS   int
}

// PolicyFromSpec derives a RetryPolicy from a QueueSpec.
func PolicyFromSpec(spec QueueSpec) RetryPolicy {
	return RetryPolicy{
		MaxRetryAttempts:  spec.MaxRetryAttempts,
		AllowRetry:        spec.AllowRetry,
		AllowRetryBackOff: spec.AllowRetryBackOff,
		RetryDelayMS:      spec.RetryDelayMS,
		MaxRetryDelayMS:   spec.MaxRetryDelayMS,
	}
}

// DefaultQueueSpec returns a QueueSpec with conservative defaults,
// mirroring the teacher's DefaultQueueOptions/DefaultPublishOptions
// constructor idiom.
func DefaultQueueSpec(name string) QueueSpec {
	return QueueSpec{
		Name:              name,
		MaxRetryAttempts:  5,
		AllowRetry:        true,
		AllowRetryBackOff: true,
		RetryDelayMS:      1000,
		MaxRetryDelayMS:   30000,
	}
}

package eventq_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sxb1010/eventq"
)

type fakeAdapter struct {
	mu        sync.Mutex
	fetches   int
	stopCalls int
}

func (a *fakeAdapter) Configure(opts eventq.WorkerOptions) error { return nil }

func (a *fakeAdapter) PreProcess(ctx context.Context, rt eventq.RuntimeContext, opts eventq.WorkerOptions) error {
	return nil
}

func (a *fakeAdapter) FetchAndProcess(ctx context.Context, spec eventq.QueueSpec, opts eventq.WorkerOptions, handler eventq.Handler, rt eventq.RuntimeContext) bool {
	a.mu.Lock()
	a.fetches++
	a.mu.Unlock()
	return false
}

func (a *fakeAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopCalls++
	return nil
}

func (a *fakeAdapter) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}

func (a *fakeAdapter) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopCalls
}

// spec.md §8 scenario 6: worker running with 2 threads, idle sleep=1s,
// poll wait=2s. stop() called: running flips false immediately, both
// threads exit within <=3s, no further fetches once stopped,
// adapter.Stop() called exactly once.
func TestWorker_GracefulStop(t *testing.T) {
	adapter := &fakeAdapter{}
	spec := eventq.DefaultQueueSpec("q")
	opts := eventq.DefaultWorkerOptions()
	opts.Adapter = adapter
	opts.Client = struct{}{}
	opts.ThreadCount = 2
	opts.SleepSeconds = 1
	opts.QueuePollWaitSeconds = 2
	opts.Wait = false

	w := eventq.New(spec, opts, eventq.Callbacks{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx, func(content []byte, args *eventq.MessageArgs) {}))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, w.IsRunning(), "expected worker running shortly after start")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning(), "expected is_running false immediately after stop")
	assert.Equal(t, 1, adapter.stopCount(), "expected adapter.Stop called exactly once")

	settled := adapter.fetchCount()
	time.Sleep(1500 * time.Millisecond)
	assert.LessOrEqual(t, adapter.fetchCount(), settled+opts.ThreadCount, "expected no new fetches once stopped")
}

func TestWorker_StartFailsWithoutAdapter(t *testing.T) {
	w := eventq.New(eventq.DefaultQueueSpec("q"), eventq.DefaultWorkerOptions(), eventq.Callbacks{}, nil)
	err := w.Start(context.Background(), func([]byte, *eventq.MessageArgs) {})
	assert.ErrorIs(t, err, eventq.ErrMissingAdapter)
}

func TestWorker_StartFailsWithoutClient(t *testing.T) {
	opts := eventq.DefaultWorkerOptions()
	opts.Adapter = &fakeAdapter{}
	w := eventq.New(eventq.DefaultQueueSpec("q"), opts, eventq.Callbacks{}, nil)
	err := w.Start(context.Background(), func([]byte, *eventq.MessageArgs) {})
	assert.ErrorIs(t, err, eventq.ErrMissingClient)
}

func TestWorker_StartTwiceFails(t *testing.T) {
	opts := eventq.DefaultWorkerOptions()
	opts.Adapter = &fakeAdapter{}
	opts.Client = struct{}{}
	opts.ThreadCount = 1
	opts.SleepSeconds = 1
	opts.Wait = false

	w := eventq.New(eventq.DefaultQueueSpec("q"), opts, eventq.Callbacks{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx, func([]byte, *eventq.MessageArgs) {}))
	defer w.Stop()

	err := w.Start(ctx, func([]byte, *eventq.MessageArgs) {})
	assert.ErrorIs(t, err, eventq.ErrAlreadyRunning)
}

func TestWorker_ConfigRoundTrip(t *testing.T) {
	opts := eventq.DefaultWorkerOptions()
	opts.ThreadCount = 4
	opts.ForkCount = 2
	opts.SleepSeconds = 3
	opts.GCFlushIntervalSeconds = 7
	opts.QueuePollWaitSeconds = 9

	w := eventq.New(eventq.DefaultQueueSpec("q"), opts, eventq.Callbacks{}, nil)
	assert.Equal(t, 4, w.ThreadCount())
	assert.Equal(t, 2, w.ForkCount())
	assert.Equal(t, 3, w.SleepSeconds())
	assert.Equal(t, 7, w.GCFlushIntervalSeconds())
	assert.Equal(t, 9, w.QueuePollWaitSeconds())
}

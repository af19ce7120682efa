package visibility

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sxb1010/eventq"
	"github.com/sxb1010/eventq/internal/nonce"
)

type fakeQueue struct {
	messages   []RawMessage
	deleted    []string
	visChanges []visChange
}

type visChange struct {
	receiptHandle string
	seconds       int
}

func (q *fakeQueue) Receive(ctx context.Context, waitSeconds int) ([]RawMessage, error) {
	if len(q.messages) == 0 {
		return nil, nil
	}
	m := q.messages[0]
	q.messages = q.messages[1:]
	return []RawMessage{m}, nil
}

func (q *fakeQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *fakeQueue) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int) error {
	q.visChanges = append(q.visChanges, visChange{receiptHandle, timeoutSeconds})
	return nil
}

type fakeRuntime struct {
	gate            *nonce.Gate
	errors          []error
	retries         []*eventq.Message
	retryAborts     []bool
	retriesExceeded []*eventq.Message
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{gate: nonce.New(100, time.Hour)}
}

func (r *fakeRuntime) OnError(err error, msg *eventq.Message) { r.errors = append(r.errors, err) }
func (r *fakeRuntime) OnRetry(msg *eventq.Message, abort bool) {
	r.retries = append(r.retries, msg)
	r.retryAborts = append(r.retryAborts, abort)
}
func (r *fakeRuntime) OnRetryExceeded(msg *eventq.Message) {
	r.retriesExceeded = append(r.retriesExceeded, msg)
}
func (r *fakeRuntime) LogDebug(msg string, kv ...any) {}
func (r *fakeRuntime) LogInfo(msg string, kv ...any)  {}
func (r *fakeRuntime) LogWarn(msg string, kv ...any)  {}
func (r *fakeRuntime) Admit(id string) bool            { return r.gate.Admit(id) }
func (r *fakeRuntime) Complete(id string)              { r.gate.Complete(id) }
func (r *fakeRuntime) Failed(id string)                { r.gate.Failed(id) }

func envelopeBody(payload string) string {
	return fmt.Sprintf(`{"Message":%q}`, payload)
}

// spec.md §8 scenario 4: duplicate suppression. Two receives of the
// same id within the nonce window; the handler runs once, both
// iterations delete the message and report received=true.
func TestFetchAndProcess_DuplicateSuppression(t *testing.T) {
	queue := &fakeQueue{messages: []RawMessage{
		{ID: "b", Body: envelopeBody("hello"), ReceiptHandle: "rh-1", ApproximateReceiveCount: 1},
		{ID: "b", Body: envelopeBody("hello"), ReceiptHandle: "rh-2", ApproximateReceiveCount: 2},
	}}
	adapter := New()
	opts := eventq.WorkerOptions{Client: &Client{Queue: queue}, QueuePollWaitSeconds: 1}
	if err := adapter.Configure(opts); err != nil {
		t.Fatalf("configure: %v", err)
	}

	rt := newFakeRuntime()
	handlerCalls := 0
	handler := func(content []byte, args *eventq.MessageArgs) { handlerCalls++ }

	spec := eventq.DefaultQueueSpec("q")
	if received := adapter.FetchAndProcess(context.Background(), spec, opts, handler, rt); !received {
		t.Fatal("expected first fetch to report received=true")
	}
	if received := adapter.FetchAndProcess(context.Background(), spec, opts, handler, rt); !received {
		t.Fatal("expected second (duplicate) fetch to still report received=true")
	}
	if handlerCalls != 1 {
		t.Fatalf("expected handler called once, got %d", handlerCalls)
	}
	if len(queue.deleted) != 2 {
		t.Fatalf("expected both deliveries deleted, got %d", len(queue.deleted))
	}
}

// spec.md §8 scenario 5: backoff clamp. base=60000, cap=50_000_000,
// backoff=true, retry_attempts=10 -> 600s; retry_attempts=1000 with the
// same cap -> clamped to 43200s.
func TestRejectForRetry_BackoffClamp(t *testing.T) {
	spec := eventq.QueueSpec{Name: "q", MaxRetryAttempts: 10000, AllowRetry: true, AllowRetryBackOff: true, RetryDelayMS: 60000, MaxRetryDelayMS: 50_000_000}

	queue := &fakeQueue{}
	adapter := &Adapter{client: Client{Queue: queue, Serializer: DefaultSerializer{}}}
	rt := newFakeRuntime()

	msg := &eventq.Message{ID: "x", RetryAttempts: 10}
	adapter.rejectForRetry(context.Background(), "rh-1", msg, spec, rt, false)
	if len(queue.visChanges) != 1 || queue.visChanges[0].seconds != 600 {
		t.Fatalf("expected visibility change to 600s, got %+v", queue.visChanges)
	}

	msg2 := &eventq.Message{ID: "y", RetryAttempts: 1000}
	adapter.rejectForRetry(context.Background(), "rh-2", msg2, spec, rt, false)
	if len(queue.visChanges) != 2 || queue.visChanges[1].seconds != 43200 {
		t.Fatalf("expected visibility change clamped to 43200s, got %+v", queue.visChanges)
	}
	if len(rt.retries) != 2 {
		t.Fatalf("expected on_retry called twice, got %d", len(rt.retries))
	}
}

func TestRejectForRetry_ExceededDeletesAndCallsExceeded(t *testing.T) {
	spec := eventq.QueueSpec{Name: "q", MaxRetryAttempts: 3, AllowRetry: true}
	queue := &fakeQueue{}
	adapter := &Adapter{client: Client{Queue: queue, Serializer: DefaultSerializer{}}}
	rt := newFakeRuntime()

	msg := &eventq.Message{ID: "z", RetryAttempts: 3}
	adapter.rejectForRetry(context.Background(), "rh-1", msg, spec, rt, false)

	if len(queue.deleted) != 1 {
		t.Fatalf("expected message deleted, got %d deletes", len(queue.deleted))
	}
	if len(rt.retriesExceeded) != 1 {
		t.Fatalf("expected on_retry_exceeded called once, got %d", len(rt.retriesExceeded))
	}
	if len(rt.retries) != 0 {
		t.Fatal("expected on_retry not called")
	}
}

// Regression for the on_retry abort flag: rejectForRetry must forward
// the caller's abort bool into OnRetry instead of hard-coding false.
func TestRejectForRetry_ThreadsAbortFlag(t *testing.T) {
	spec := eventq.QueueSpec{Name: "q", MaxRetryAttempts: 10, AllowRetry: true, AllowRetryBackOff: true, RetryDelayMS: 1000, MaxRetryDelayMS: 30000}
	queue := &fakeQueue{}
	adapter := &Adapter{client: Client{Queue: queue, Serializer: DefaultSerializer{}}}
	rt := newFakeRuntime()

	msg := &eventq.Message{ID: "a", RetryAttempts: 1}
	adapter.rejectForRetry(context.Background(), "rh-1", msg, spec, rt, true)

	if len(rt.retryAborts) != 1 || !rt.retryAborts[0] {
		t.Fatalf("expected on_retry abort=true, got %+v", rt.retryAborts)
	}
}

// Command eventqdemo wires a Worker against an in-memory visibility-
// timeout queue to demonstrate Start/Stop and the callback registry.
// Not a CLI in the sense spec.md excludes (process re-exec, fork
// supervision) — just a runnable smoke harness.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sxb1010/eventq"
	"github.com/sxb1010/eventq/broker/visibility"
	"github.com/sxb1010/eventq/internal/logging"
	"github.com/sxb1010/eventq/internal/logging/strategies"
)

// memoryQueue is a tiny in-memory stand-in for a real cloud-style
// queue client, good enough to exercise the visibility adapter end to
// end without a live broker.
type memoryQueue struct {
	mu       sync.Mutex
	messages []visibility.RawMessage
}

func (q *memoryQueue) push(id, body string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, visibility.RawMessage{
		ID: id, Body: body, ReceiptHandle: id, ApproximateReceiveCount: 1,
	})
}

func (q *memoryQueue) Receive(ctx context.Context, waitSeconds int) ([]visibility.RawMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, nil
	}
	m := q.messages[0]
	q.messages = q.messages[1:]
	return []visibility.RawMessage{m}, nil
}

func (q *memoryQueue) Delete(ctx context.Context, receiptHandle string) error { return nil }

func (q *memoryQueue) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int) error {
	return nil
}

func main() {
	log := logging.New("eventqdemo", strategies.NewConsole())
	defer log.Sync()

	queue := &memoryQueue{}
	queue.push(uuid.NewString(), `{"Message":"hello from eventqdemo"}`)

	spec := eventq.DefaultQueueSpec("demo")
	opts := eventq.DefaultWorkerOptions()
	opts.Adapter = visibility.New()
	opts.Client = &visibility.Client{Queue: queue}
	opts.ThreadCount = 1
	opts.SleepSeconds = 1
	opts.Wait = false

	callbacks := eventq.Callbacks{
		OnError: func(err error, msg *eventq.Message) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		},
		OnRetry: func(msg *eventq.Message, abort bool) {
			fmt.Printf("retry scheduled for %s (abort=%v)\n", msg.ID, abort)
		},
		OnRetryExceeded: func(msg *eventq.Message) {
			fmt.Printf("retries exceeded for %s\n", msg.ID)
		},
	}

	handler := func(content []byte, args *eventq.MessageArgs) {
		fmt.Printf("handled message %s: %s\n", args.ID, string(content))
	}

	worker := eventq.New(spec, opts, callbacks, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := worker.Start(ctx, handler); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(2 * time.Second)
	if err := worker.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
	}
}

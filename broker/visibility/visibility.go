// Package visibility implements eventq.BrokerAdapter against a
// cloud-style, pull-based queue where redelivery is driven by the
// broker's own visibility timeout rather than a retry exchange. The
// wire-level queue client is an external collaborator (spec.md §1):
// no concrete implementation exists anywhere in the example corpus, so
// it is referenced only through the VisibilityQueueClient interface,
// grounded on the receive/delete/visibility shape of
// other_examples/.../stherrien-gorax's SQS-backed Consumer.
package visibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sxb1010/eventq"
	"github.com/sxb1010/eventq/internal/backoff"
)

// RawMessage is one message as returned by VisibilityQueueClient.Receive,
// before envelope parsing.
type RawMessage struct {
	ID                      string
	Body                    string
	ReceiptHandle           string
	ApproximateReceiveCount int
}

// VisibilityQueueClient is the out-of-scope wire-level collaborator
// (connection pooling, request signing are the caller's concern).
type VisibilityQueueClient interface {
	// Receive requests at most one message, waiting up to waitSeconds
	// for one to arrive (the cloud-style long-poll equivalent of
	// queue_poll_wait_seconds). Returns an empty slice on an empty poll.
	Receive(ctx context.Context, waitSeconds int) ([]RawMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
	ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int) error
}

// Serializer decodes the envelope's payload string into the opaque
// content bytes a Handler receives. Out of scope per spec.md §1
// ("serialization format plug-ins"); DefaultSerializer treats the
// payload as already being the content.
type Serializer interface {
	Unmarshal(payload string) ([]byte, error)
}

// DefaultSerializer passes the envelope payload through unchanged.
type DefaultSerializer struct{}

func (DefaultSerializer) Unmarshal(payload string) ([]byte, error) { return []byte(payload), nil }

// SignatureValidator is the out-of-scope signature-validation plug-in
// (spec.md §1). Nil means no validation is performed.
type SignatureValidator interface {
	Validate(envelope []byte, signature string) error
}

// envelope is the cloud-style wire format from spec.md §6:
// `{ "Message": "<serialized_payload_string>" }`.
type envelope struct {
	Message   string `json:"Message"`
	Signature string `json:"Signature,omitempty"`
}

// Client carries the injected collaborators threaded through
// eventq.WorkerOptions.Client.
type Client struct {
	Queue              VisibilityQueueClient
	Serializer         Serializer
	SignatureValidator SignatureValidator
}

// ErrInvalidClient is returned from Configure when opts.Client is not
// a *Client or its Queue is nil.
var ErrInvalidClient = errors.New("eventq/broker/visibility: opts.Client must be a *visibility.Client with a non-nil Queue")

// Adapter implements eventq.BrokerAdapter against VisibilityQueueClient.
type Adapter struct {
	client Client
}

// New returns an unconfigured Adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Configure(opts eventq.WorkerOptions) error {
	client, ok := opts.Client.(*Client)
	if !ok || client.Queue == nil {
		return ErrInvalidClient
	}
	a.client = *client
	if a.client.Serializer == nil {
		a.client.Serializer = DefaultSerializer{}
	}
	return nil
}

// PreProcess is a no-op: the queue client is already connected by the
// time it's injected.
func (a *Adapter) PreProcess(ctx context.Context, rt eventq.RuntimeContext, opts eventq.WorkerOptions) error {
	return nil
}

// FetchAndProcess implements spec.md §4.4.2: receive one message
// (whose ApproximateReceiveCount the client reports on RawMessage),
// dispatch it, and issue exactly
// one disposition (delete, or change-visibility-for-retry) before
// returning.
func (a *Adapter) FetchAndProcess(ctx context.Context, spec eventq.QueueSpec, opts eventq.WorkerOptions, handler eventq.Handler, rt eventq.RuntimeContext) bool {
	messages, err := a.client.Queue.Receive(ctx, opts.QueuePollWaitSeconds)
	if err != nil {
		rt.OnError(fmt.Errorf("eventq/broker/visibility: receive: %w", err), nil)
		return false
	}
	if len(messages) == 0 {
		return false
	}

	a.dispatch(ctx, messages[0], spec, rt, handler)
	return true
}

// Stop is a no-op: the adapter does not own the queue client's
// lifecycle (the caller that constructed it does).
func (a *Adapter) Stop() error { return nil }

func (a *Adapter) dispatch(ctx context.Context, raw RawMessage, spec eventq.QueueSpec, rt eventq.RuntimeContext, handler eventq.Handler) {
	msg, err := a.toMessage(raw)
	if err != nil {
		rt.OnError(err, nil)
		_ = a.client.Queue.Delete(ctx, raw.ReceiptHandle)
		return
	}

	if !rt.Admit(msg.ID) {
		_ = a.client.Queue.Delete(ctx, raw.ReceiptHandle)
		return
	}

	args := eventq.ArgsFromMessage(msg)
	handlerErr := invokeHandler(handler, msg.Content, args)

	if handlerErr == nil && !args.Abort {
		if err := a.client.Queue.Delete(ctx, raw.ReceiptHandle); err != nil {
			rt.OnError(fmt.Errorf("eventq/broker/visibility: delete: %w", err), msg)
		}
		rt.Complete(msg.ID)
		return
	}
	if handlerErr != nil {
		rt.OnError(handlerErr, msg)
	}
	a.rejectForRetry(ctx, raw.ReceiptHandle, msg, spec, rt, args.Abort)
}

func (a *Adapter) toMessage(raw RawMessage) (*eventq.Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw.Body), &env); err != nil {
		return nil, fmt.Errorf("eventq/broker/visibility: unmarshal envelope: %w", err)
	}
	if a.client.SignatureValidator != nil {
		if err := a.client.SignatureValidator.Validate([]byte(raw.Body), env.Signature); err != nil {
			return nil, fmt.Errorf("eventq/broker/visibility: signature validation: %w", err)
		}
	}
	content, err := a.client.Serializer.Unmarshal(env.Message)
	if err != nil {
		return nil, fmt.Errorf("eventq/broker/visibility: unmarshal payload: %w", err)
	}

	id := raw.ID
	if id == "" {
		id = raw.ReceiptHandle
	}
	return &eventq.Message{
		ID: id,
		// spec.md §5: "ApproximateReceiveCount is 1-indexed on the first
		// delivery, so retry_attempts = ApproximateReceiveCount - 1".
		RetryAttempts: raw.ApproximateReceiveCount - 1,
		Content:       content,
	}, nil
}

func invokeHandler(handler eventq.Handler, content []byte, args *eventq.MessageArgs) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("eventq/broker/visibility: handler panic: %v", rec)
			}
		}
	}()
	handler(content, args)
	return nil
}

// retryOutcome mirrors broker/amqp's decideRetry shape for the
// cloud-style reject path (spec.md §4.4.2 step 7), kept as a pure
// function of (policy, retry_attempts) so it's testable without a
// queue client.
type retryOutcome struct {
	exceeded          bool
	shouldChangeVis   bool
	visibilitySeconds int
}

func decideRetry(policy eventq.RetryPolicy, retryAttempts int) retryOutcome {
	exceeded := retryAttempts >= policy.MaxRetryAttempts
	if !policy.AllowRetry || exceeded {
		return retryOutcome{exceeded: exceeded}
	}

	delayMS := backoff.DelayMS(retryAttempts, backoff.Policy{
		AllowRetryBackOff: policy.AllowRetryBackOff,
		RetryDelayMS:      policy.RetryDelayMS,
		MaxRetryDelayMS:   policy.MaxRetryDelayMS,
	})
	return retryOutcome{shouldChangeVis: true, visibilitySeconds: backoff.VisibilitySeconds(delayMS)}
}

func (a *Adapter) rejectForRetry(ctx context.Context, receiptHandle string, msg *eventq.Message, spec eventq.QueueSpec, rt eventq.RuntimeContext, abort bool) {
	outcome := decideRetry(eventq.PolicyFromSpec(spec), msg.RetryAttempts)

	if !outcome.shouldChangeVis {
		if err := a.client.Queue.Delete(ctx, receiptHandle); err != nil {
			rt.OnError(fmt.Errorf("eventq/broker/visibility: delete: %w", err), msg)
		}
		rt.Failed(msg.ID)
		if outcome.exceeded {
			rt.OnRetryExceeded(msg)
		}
		return
	}

	if err := a.client.Queue.ChangeVisibility(ctx, receiptHandle, outcome.visibilitySeconds); err != nil {
		rt.OnError(fmt.Errorf("eventq/broker/visibility: change visibility: %w", err), msg)
		rt.Failed(msg.ID)
		return
	}
	rt.Failed(msg.ID)
	rt.OnRetry(msg, abort)
}

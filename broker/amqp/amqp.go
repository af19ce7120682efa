// Package amqp implements eventq.BrokerAdapter against a real AMQP-091
// broker (RabbitMQ). It generalizes the teacher's fire-and-forget
// go-packages/rabbitMQ producer into a fetch-ack-reject consumer loop
// with retry-exchange redelivery: a failed message is republished to a
// per-queue retry exchange with a per-message TTL (the AMQP
// `expiration` property), and a dead-letter binding routes it back to
// the main queue once the TTL expires.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sxb1010/eventq"
	retrydelay "github.com/sxb1010/eventq/internal/backoff"
)

// ErrInvalidClient is returned from Configure when opts.Client is not a
// *Client.
var ErrInvalidClient = errors.New("eventq/broker/amqp: opts.Client must be *amqp.Client")

// Client carries the AMQP-specific connection parameters threaded
// through eventq.WorkerOptions.Client.
type Client struct {
	// Prefetch sets channel QoS (0 disables it).
	Prefetch int
	// Serializer encodes/decodes the message envelope. Defaults to
	// JSONSerializer when nil.
	Serializer Serializer
}

// Serializer is the external collaborator responsible for turning a
// *eventq.Message into wire bytes and back (spec.md §6's "configured
// serialization provider"). The AMQP adapter re-marshals through this
// on every retry republish since retry_attempts is mutated and carried
// inside the payload itself, not in a broker header (spec.md §9).
type Serializer interface {
	Marshal(m *eventq.Message) ([]byte, error)
	Unmarshal(data []byte) (*eventq.Message, error)
}

type envelope struct {
	ID            string    `json:"id"`
	Type          string    `json:"type,omitempty"`
	Content       []byte    `json:"content"`
	Created       time.Time `json:"created"`
	RetryAttempts int       `json:"retry_attempts"`
	ContentType   string    `json:"content_type,omitempty"`
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(m *eventq.Message) ([]byte, error) {
	return json.Marshal(envelope{
		ID:            m.ID,
		Type:          m.Type,
		Content:       m.Content,
		Created:       m.Created,
		RetryAttempts: m.RetryAttempts,
		ContentType:   m.ContentType,
	})
}

func (JSONSerializer) Unmarshal(data []byte) (*eventq.Message, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("eventq/broker/amqp: unmarshal envelope: %w", err)
	}
	return &eventq.Message{
		ID:            e.ID,
		Type:          e.Type,
		Content:       e.Content,
		Created:       e.Created,
		RetryAttempts: e.RetryAttempts,
		ContentType:   e.ContentType,
	}, nil
}

// Adapter implements eventq.BrokerAdapter against amqp091-go. One
// Adapter instance is meant to be configured for exactly one queue
// (the QueueSpec.Name passed to the first FetchAndProcess call), in
// line with one Worker owning one QueueSpec.
type Adapter struct {
	client   Client
	endpoint string
	durable  bool

	connMu sync.Mutex
	conn   *amqp.Connection

	topoOnce sync.Once
	topoErr  error

	queueName     string
	retryExchange string
	retryQueue    string
}

// New returns an unconfigured Adapter.
func New() *Adapter { return &Adapter{} }

// Configure validates opts and opens the broker connection, retrying
// the dial with exponential backoff (transport-level reconnect, kept
// distinct from the per-message retry delay computed by
// internal/backoff).
func (a *Adapter) Configure(opts eventq.WorkerOptions) error {
	client, ok := opts.Client.(*Client)
	if !ok {
		return ErrInvalidClient
	}
	if opts.MQEndpoint == "" {
		return errors.New("eventq/broker/amqp: mq_endpoint is required")
	}
	a.client = *client
	if a.client.Serializer == nil {
		a.client.Serializer = JSONSerializer{}
	}
	a.endpoint = opts.MQEndpoint
	a.durable = opts.Durable
	return a.dial()
}

func (a *Adapter) dial() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.conn != nil && !a.conn.IsClosed() {
		return nil
	}

	var conn *amqp.Connection
	op := func() error {
		c, err := amqp.Dial(a.endpoint)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	bo := cbackoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := cbackoff.Retry(op, bo); err != nil {
		return fmt.Errorf("eventq/broker/amqp: failed to connect to %s: %w", maskEndpoint(a.endpoint), err)
	}
	a.conn = conn
	return nil
}

// PreProcess is a no-op: the connection is already open from
// Configure, and queue/exchange topology is declared lazily on the
// first FetchAndProcess call (PreProcess never sees the QueueSpec, so
// it has no queue name to declare against yet).
func (a *Adapter) PreProcess(ctx context.Context, rt eventq.RuntimeContext, opts eventq.WorkerOptions) error {
	return nil
}

// FetchAndProcess opens a channel scoped to this iteration, pops one
// message with manual ack, dispatches it, and issues exactly one
// disposition before returning (spec.md §4.4 invariant 1).
func (a *Adapter) FetchAndProcess(ctx context.Context, spec eventq.QueueSpec, opts eventq.WorkerOptions, handler eventq.Handler, rt eventq.RuntimeContext) bool {
	if err := a.dial(); err != nil {
		rt.OnError(err, nil)
		return false
	}

	ch, err := a.conn.Channel()
	if err != nil {
		rt.OnError(fmt.Errorf("eventq/broker/amqp: open channel: %w", err), nil)
		return false
	}
	defer ch.Close()

	if a.client.Prefetch > 0 {
		if err := ch.Qos(a.client.Prefetch, 0, false); err != nil {
			rt.OnError(fmt.Errorf("eventq/broker/amqp: set qos: %w", err), nil)
			return false
		}
	}

	if err := a.ensureTopology(ch, spec.Name); err != nil {
		rt.OnError(fmt.Errorf("eventq/broker/amqp: declare topology: %w", err), nil)
		return false
	}

	consumerTag := "eventq-" + uuid.NewString()
	deliveries, err := ch.Consume(spec.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		rt.OnError(fmt.Errorf("eventq/broker/amqp: consume: %w", err), nil)
		return false
	}

	wait := time.Duration(opts.QueuePollWaitSeconds) * time.Second
	if wait <= 0 {
		wait = 15 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	case d, ok := <-deliveries:
		if !ok {
			return false
		}
		a.dispatch(ch, d, spec, rt, handler)
		return true
	}
}

// Stop closes the connection. Idempotent.
func (a *Adapter) Stop() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.conn == nil || a.conn.IsClosed() {
		return nil
	}
	return a.conn.Close()
}

func (a *Adapter) ensureTopology(ch *amqp.Channel, queue string) error {
	a.topoOnce.Do(func() {
		a.queueName = queue
		a.retryExchange = queue + ".retry"
		a.retryQueue = queue + ".retry"
		a.topoErr = a.declareTopology(ch, queue)
	})
	return a.topoErr
}

// declareTopology sets up the main queue plus the retry exchange/queue
// pair implementing delayed redelivery: a message published to the
// retry exchange lands in the retry queue, sits for its per-message
// TTL (the `expiration` property set at publish time, not a queue-wide
// TTL), then dead-letters back onto the default exchange with the
// original queue as routing key, re-entering the main queue.
func (a *Adapter) declareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, a.durable, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.ExchangeDeclare(a.retryExchange, "direct", a.durable, false, false, false, nil); err != nil {
		return fmt.Errorf("declare retry exchange %s: %w", a.retryExchange, err)
	}
	_, err := ch.QueueDeclare(a.retryQueue, a.durable, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	})
	if err != nil {
		return fmt.Errorf("declare retry queue %s: %w", a.retryQueue, err)
	}
	if err := ch.QueueBind(a.retryQueue, queue, a.retryExchange, false, nil); err != nil {
		return fmt.Errorf("bind retry queue %s: %w", a.retryQueue, err)
	}
	return nil
}

func (a *Adapter) dispatch(ch *amqp.Channel, d amqp.Delivery, spec eventq.QueueSpec, rt eventq.RuntimeContext, handler eventq.Handler) {
	msg, err := a.client.Serializer.Unmarshal(d.Body)
	if err != nil {
		rt.OnError(err, nil)
		_ = d.Reject(false)
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if !rt.Admit(msg.ID) {
		_ = d.Ack(false)
		return
	}

	args := eventq.ArgsFromMessage(msg)
	handlerErr := invokeHandler(handler, msg.Content, args)

	if handlerErr == nil && !args.Abort {
		_ = d.Ack(false)
		rt.Complete(msg.ID)
		return
	}
	if handlerErr != nil {
		rt.OnError(handlerErr, msg)
	}
	a.rejectForRetry(ch, d, msg, spec, rt, args.Abort)
}

func invokeHandler(handler eventq.Handler, content []byte, args *eventq.MessageArgs) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("eventq/broker/amqp: handler panic: %v", rec)
			}
		}
	}()
	handler(content, args)
	return nil
}

// retryOutcome is what rejectForRetry decided to do, broken out as a
// pure function of (policy, retry_attempts) so the branching in spec.md
// §4.4.1 step 5 / §9's allow_retry=false note is testable without a
// broker connection.
type retryOutcome struct {
	exceeded      bool
	nextAttempts  int
	delayMS       int
	shouldPublish bool
}

func decideRetry(policy eventq.RetryPolicy, retryAttempts int) retryOutcome {
	overMax := retryAttempts >= policy.MaxRetryAttempts

	if !policy.AllowRetry {
		// spec.md §9: allow_retry=false under max attempts takes no
		// further action — rejected with no retry publish, no callback.
		return retryOutcome{exceeded: overMax}
	}
	if overMax {
		return retryOutcome{exceeded: true}
	}

	next := retryAttempts + 1
	delayMS := retrydelay.DelayMS(next, retrydelay.Policy{
		AllowRetryBackOff: policy.AllowRetryBackOff,
		RetryDelayMS:      policy.RetryDelayMS,
		MaxRetryDelayMS:   policy.MaxRetryDelayMS,
	})
	return retryOutcome{nextAttempts: next, delayMS: delayMS, shouldPublish: true}
}

// rejectForRetry implements spec.md §4.4.1 step 5: reject, then either
// publish a delayed retry or invoke on_retry_exceeded.
func (a *Adapter) rejectForRetry(ch *amqp.Channel, d amqp.Delivery, msg *eventq.Message, spec eventq.QueueSpec, rt eventq.RuntimeContext, abort bool) {
	_ = d.Reject(false)
	rt.Failed(msg.ID)

	outcome := decideRetry(eventq.PolicyFromSpec(spec), msg.RetryAttempts)
	if outcome.exceeded {
		rt.OnRetryExceeded(msg)
		return
	}
	if !outcome.shouldPublish {
		return
	}

	msg.RetryAttempts = outcome.nextAttempts
	if err := a.publishRetry(ch, msg, outcome.delayMS); err != nil {
		rt.OnError(fmt.Errorf("eventq/broker/amqp: publish retry: %w", err), msg)
		return
	}
	rt.OnRetry(msg, abort)
}

func (a *Adapter) publishRetry(ch *amqp.Channel, msg *eventq.Message, delayMS int) error {
	body, err := a.client.Serializer.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal retry envelope: %w", err)
	}
	publishing := amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Expiration:  strconv.Itoa(delayMS),
	}
	if a.durable {
		publishing.DeliveryMode = amqp.Persistent
	}
	return ch.PublishWithContext(context.Background(), a.retryExchange, a.queueName, false, false, publishing)
}

// maskEndpoint strips credentials before an endpoint ever reaches a log
// line or error message, mirroring the teacher's Connection.maskURL.
func maskEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "invalid-endpoint"
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
			// URL.String percent-encodes '*' in userinfo; restore the
			// literal mask so the redaction reads as "***".
			return strings.Replace(parsed.String(), ":%2A%2A%2A@", ":***@", 1)
		}
	}
	return parsed.String()
}

package eventq

import "time"

// Message is the broker-agnostic envelope the runtime dispatches to a
// Handler. Content is opaque to the runtime; the broker adapter is
// responsible for deserializing it off the wire.
type Message struct {
	ID            string
	Type          string
	Content       []byte
	Created       time.Time
	RetryAttempts int
	Context       map[string]any
	ContentType   string
}

// MessageArgs is the handler-visible view of a Message. Abort is the
// only field a handler may write; setting it requests rejection
// without the handler needing to panic.
type MessageArgs struct {
	Type          string
	RetryAttempts int
	ID            string
	Sent          time.Time
	Context       map[string]any
	ContentType   string
	Abort         bool
}

// ArgsFromMessage builds the handler-visible view of a Message.
func ArgsFromMessage(m *Message) *MessageArgs {
	return &MessageArgs{
		Type:          m.Type,
		RetryAttempts: m.RetryAttempts,
		ID:            m.ID,
		Sent:          m.Created,
		Context:       m.Context,
		ContentType:   m.ContentType,
	}
}

// Handler is the user-supplied callable invoked once per admitted
// message. Panics are recovered by the adapter and treated as
// reject-with-retry.
type Handler func(content []byte, args *MessageArgs)

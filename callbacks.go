package eventq

// Callbacks is the small struct of function values the runtime holds
// for error/retry/retry-exceeded sinks, installed before Start and
// read-only during the run (spec.md §9 — "replace [inheritance-based
// hooks] with a small struct of function values"). A nil field is
// treated as a no-op. If a callback itself panics, the panic is
// recovered and swallowed; the panic itself is not logged.
type Callbacks struct {
	OnError         func(err error, msg *Message)
	OnRetry         func(msg *Message, abort bool)
	OnRetryExceeded func(msg *Message)
}

func (c Callbacks) onError(err error, msg *Message) {
	if c.OnError == nil {
		return
	}
	defer recoverCallback()
	c.OnError(err, msg)
}

func (c Callbacks) onRetry(msg *Message, abort bool) {
	if c.OnRetry == nil {
		return
	}
	defer recoverCallback()
	c.OnRetry(msg, abort)
}

func (c Callbacks) onRetryExceeded(msg *Message) {
	if c.OnRetryExceeded == nil {
		return
	}
	defer recoverCallback()
	c.OnRetryExceeded(msg)
}

func recoverCallback() {
	// Callback panics never propagate. The runtime logs the event it
	// dispatches (error, retry, retry-exceeded) before calling the
	// callback, but the recovered panic value is discarded here without
	// being logged; this recover only keeps a panicking callback from
	// taking the worker down.
	_ = recover()
}

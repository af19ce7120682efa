package strategies

// Nop discards every log entry. Useful for library consumers and tests
// that don't want any log output.
type Nop struct{}

// NewNop creates a new Nop strategy.
func NewNop() *Nop { return &Nop{} }

// Log implements Strategy.
func (n *Nop) Log(entry Entry) error { return nil }

// Sync implements Strategy.
func (n *Nop) Sync() error { return nil }

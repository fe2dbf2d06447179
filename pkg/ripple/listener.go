package ripple

// Listener is anything a Scheduler can notify.
// Cells implement it so that a batch can defer and deduplicate their
// dispatch passes.
type Listener interface {
	// MarkDirty runs the listener's notification work.
	MarkDirty()

	// ID returns a unique identifier for this listener.
	// Used for deduplication during batch processing.
	ID() uint64
}

// ListenerFunc adapts a plain function to the Listener interface.
// Each call to NewListenerFunc yields a fresh identity.
type ListenerFunc struct {
	id uint64
	fn func()
}

// NewListenerFunc wraps fn as a Listener.
func NewListenerFunc(fn func()) *ListenerFunc {
	return &ListenerFunc{id: nextID(), fn: fn}
}

// MarkDirty calls the wrapped function.
func (l *ListenerFunc) MarkDirty() {
	if l.fn != nil {
		l.fn()
	}
}

// ID returns the listener's identity.
func (l *ListenerFunc) ID() uint64 {
	return l.id
}

// Disposer removes a subscription. Calling it more than once is a no-op.
type Disposer func()

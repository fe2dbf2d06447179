package ripple

// Kind is the payload kind of a cell, fixed at construction.
type Kind uint8

const (
	// KindScalar cells hold a plain value.
	KindScalar Kind = iota
	// KindComposite cells hold an object or array root node.
	KindComposite
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// Observer receives instrumentation callbacks from cells and schedulers.
// Implementations must be cheap and must not call back into the cell.
// See pkg/metrics for a Prometheus implementation.
type Observer interface {
	// Committed is called after a cell accepted a new value, either through
	// Set or through a nested write or delete.
	Committed(kind Kind)

	// Dispatched is called after a dispatch pass with the number of
	// subscriptions that fired and the number shielded by their selector.
	Dispatched(kind Kind, fired, skipped int)

	// Deferred is called when a notification is queued inside a batch.
	Deferred()

	// Flushed is called when an outermost batch exits with the number of
	// distinct listeners it notified.
	Flushed(listeners int)
}

// nopObserver discards all callbacks.
type nopObserver struct{}

func (nopObserver) Committed(Kind)            {}
func (nopObserver) Dispatched(Kind, int, int) {}
func (nopObserver) Deferred()                 {}
func (nopObserver) Flushed(int)               {}

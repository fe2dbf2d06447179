package ripple

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Cell is a reactive container for a scalar value.
//
// A Cell never intercepts nested writes: if T is a struct, slice or map,
// mutating it in place is invisible. Use Composite for object and array
// values whose fields are edited in place.
type Cell[T any] struct {
	core

	// value is the current value.
	value T

	// mu protects value.
	mu sync.RWMutex

	// equal is the equality function used to determine if the value changed.
	// If nil, uses default equality checking.
	equal func(T, T) bool
}

// NewCell creates a scalar cell with the given initial value.
func NewCell[T any](initial T, opts ...Option) *Cell[T] {
	o := applyOptions(opts)
	return &Cell[T]{
		core:  newCore(KindScalar, o),
		value: initial,
	}
}

// Get returns the current value. It does not register a subscription.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Peek returns the current value. It is the read to use where the call site
// must not look like a tracked read, e.g. a snapshot for a first render.
func (c *Cell[T]) Peek() T {
	return c.Get()
}

// Set updates the value and dispatches to subscribers if it changed.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	changed := !c.equals(c.value, value)
	if changed {
		c.value = value
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// Update atomically reads and updates the value.
// The function receives the current value and returns the new value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	oldValue := c.value
	newValue := fn(oldValue)
	changed := !c.equals(oldValue, newValue)
	if changed {
		c.value = newValue
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// WithEquals returns the cell configured with a custom equality function.
func (c *Cell[T]) WithEquals(fn func(T, T) bool) *Cell[T] {
	c.equal = fn
	return c
}

// Subscribe registers cb to run whenever the value changes.
func (c *Cell[T]) Subscribe(cb func()) Disposer {
	return c.subscribe(cb, func() any { return c.Get() }, nil)
}

// SubscribeSelect registers cb to run only when projector's result changes.
// cb receives no payload; it re-reads whatever it needs.
func (c *Cell[T]) SubscribeSelect(cb func(), projector func(T) any, opts ...SubscribeOption) Disposer {
	return c.subscribe(cb, func() any { return projector(c.Get()) }, opts)
}

// SubscribeAny registers cb with a projector over the dynamically typed value.
// A nil projector observes the whole value.
func (c *Cell[T]) SubscribeAny(cb func(), projector func(any) any) Disposer {
	if projector == nil {
		return c.Subscribe(cb)
	}
	return c.subscribe(cb, func() any { return projector(c.Get()) }, nil)
}

// Snapshot returns the current value as an interface{}.
func (c *Cell[T]) Snapshot() any {
	return c.Get()
}

// SetAny sets the value from an interface{}. Values of another type are
// converted through their JSON encoding; ErrTypeMismatch is returned if that
// fails.
func (c *Cell[T]) SetAny(value any) error {
	if v, ok := value.(T); ok {
		c.Set(v)
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: cannot use %T as %T", ErrTypeMismatch, value, v)
	}
	c.Set(v)
	return nil
}

// equals checks if two values are equal using the configured equality function.
func (c *Cell[T]) equals(a, b T) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	return defaultEquals(a, b)
}

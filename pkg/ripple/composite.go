package ripple

import (
	"fmt"
	"sync"
)

// Raw is the set of raw composite payloads a Composite can hold.
type Raw interface {
	map[string]any | []any
}

// Composite is a reactive cell over an object or array value.
//
// Its value is always exposed as a *Node. Writes made through that node (or
// any node reached from it) notify the cell's subscribers, subject to the
// cell's scheduler.
type Composite[R Raw] struct {
	core

	graph *Graph

	// mu protects root.
	mu   sync.RWMutex
	root *Node

	// tmu protects transformer resolution.
	tmu         sync.Mutex
	transformer Transformer
	loader      TransformerLoader
}

// NewComposite creates a composite cell. A nil initial value becomes an
// empty object or array.
func NewComposite[R Raw](initial R, opts ...Option) *Composite[R] {
	o := applyOptions(opts)
	c := &Composite[R]{
		core:        newCore(KindComposite, o),
		transformer: o.transformer,
		loader:      o.loader,
	}
	c.graph = NewGraph(c.notify)
	c.root = c.graph.Wrap(any(initial))
	return c
}

// NewObject is shorthand for NewComposite over map[string]any.
func NewObject(initial map[string]any, opts ...Option) *Composite[map[string]any] {
	return NewComposite(initial, opts...)
}

// NewArray is shorthand for NewComposite over []any.
func NewArray(initial []any, opts ...Option) *Composite[[]any] {
	return NewComposite(initial, opts...)
}

// Value returns the root node. It does not register a subscription.
func (c *Composite[R]) Value() *Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

// Peek returns the root node, for reads that must not look tracked.
func (c *Composite[R]) Peek() *Node {
	return c.Value()
}

// Graph returns the cell's interception graph.
func (c *Composite[R]) Graph() *Graph {
	return c.graph
}

// Set replaces the root value. Setting the raw container already at the
// root (or its node) is a no-op. Otherwise the identity cache is reset, the
// value is wrapped, and subscribers are dispatched.
func (c *Composite[R]) Set(v R) {
	c.setRoot(any(v))
}

// SetNode replaces the root with an existing node. A node of another graph
// is rebound to this cell.
func (c *Composite[R]) SetNode(n *Node) {
	if n == nil {
		return
	}
	c.setRoot(n)
}

func (c *Composite[R]) setRoot(v any) {
	c.mu.Lock()
	if sameSlot(c.root, v) {
		c.mu.Unlock()
		return
	}
	old := c.root
	c.graph.Reset()
	c.root = c.graph.Wrap(v)
	if old != c.root {
		c.graph.retire(old)
	}
	c.mu.Unlock()

	c.notify()
}

// Subscribe registers cb to run on every change to the value, including
// nested writes anywhere below the root.
func (c *Composite[R]) Subscribe(cb func()) Disposer {
	return c.subscribe(cb, func() any { return c.Value() }, nil)
}

// SubscribeSelect registers cb to run only when projector's result changes.
// A projected *Node counts as changed when it is a different node or when
// anything below it was written.
func (c *Composite[R]) SubscribeSelect(cb func(), projector func(*Node) any, opts ...SubscribeOption) Disposer {
	return c.subscribe(cb, func() any { return projector(c.Value()) }, opts)
}

// SubscribeAny registers cb with a projector over the root node as an
// interface{}. A nil projector observes the whole value.
func (c *Composite[R]) SubscribeAny(cb func(), projector func(any) any) Disposer {
	if projector == nil {
		return c.Subscribe(cb)
	}
	return c.subscribe(cb, func() any { return projector(c.Value()) }, nil)
}

// GetPath resolves a dotted path below the root.
func (c *Composite[R]) GetPath(path string) (any, bool) {
	if path == "" {
		return c.Value(), true
	}
	return c.Value().GetPath(path)
}

// SetPath writes v at a dotted path in one batch.
func (c *Composite[R]) SetPath(path string, v any) error {
	var err error
	c.Batch(func() {
		err = c.Value().SetPath(path, v)
	})
	return err
}

// DeletePath removes the value at a dotted path.
func (c *Composite[R]) DeletePath(path string) error {
	return c.Value().DeletePath(path)
}

// Snapshot returns a deep plain copy of the value.
func (c *Composite[R]) Snapshot() any {
	return c.Value().Snapshot()
}

// SetAny replaces the root from an interface{}. The value must be a
// composite of the cell's kind.
func (c *Composite[R]) SetAny(v any) error {
	var zero R
	_, wantArray := any(zero).([]any)

	switch val := v.(type) {
	case *Node:
		if val != nil && val.IsArray() == wantArray {
			c.setRoot(val)
			return nil
		}
	case []any:
		if wantArray {
			c.setRoot(val)
			return nil
		}
	case map[string]any:
		if !wantArray {
			c.setRoot(val)
			return nil
		}
	}
	return fmt.Errorf("%w: cannot use %T as %T", ErrTypeMismatch, v, zero)
}

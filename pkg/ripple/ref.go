package ripple

// Ref is the dynamically typed view shared by Cell and Composite. Outer
// surfaces such as the inspector work against it.
type Ref interface {
	Listener

	// Name returns the label given with WithName.
	Name() string

	// Kind returns the payload kind chosen at construction.
	Kind() Kind

	// Snapshot returns the current value as plain data.
	Snapshot() any

	// SetAny sets the value from an interface{}.
	SetAny(v any) error

	// SubscribeAny registers cb with an optional projector.
	SubscribeAny(cb func(), projector func(any) any) Disposer

	// Batch runs fn inside a batch on the cell's scheduler.
	Batch(fn func())
}

var (
	_ Ref = (*Cell[int])(nil)
	_ Ref = (*Composite[map[string]any])(nil)
	_ Ref = (*Composite[[]any])(nil)
)

// New creates a cell and selects its variant from the runtime type of
// initial, once: map[string]any yields a *Composite[map[string]any], []any
// yields a *Composite[[]any], anything else a *Cell[any].
func New(initial any, opts ...Option) Ref {
	switch v := initial.(type) {
	case map[string]any:
		return NewComposite(v, opts...)
	case []any:
		return NewComposite(v, opts...)
	case *Node:
		if v != nil {
			if v.IsArray() {
				c := NewComposite[[]any](nil, opts...)
				c.SetNode(v)
				return c
			}
			c := NewComposite[map[string]any](nil, opts...)
			c.SetNode(v)
			return c
		}
	}
	return NewCell[any](initial, opts...)
}

// Settable is the capability the effect layer needs from a loading or
// error cell: read and write a value of type T.
type Settable[T any] interface {
	Get() T
	Set(T)
}

var _ Settable[bool] = (*Cell[bool])(nil)

// Field returns a Settable backed by one key of an object cell. Writes go
// through the root node, so they notify like any nested write.
func Field[T any](c *Composite[map[string]any], key string) Settable[T] {
	return &field[T]{cell: c, key: key}
}

type field[T any] struct {
	cell *Composite[map[string]any]
	key  string
}

// Get returns the field value, or the zero T when it is absent or of
// another type.
func (f *field[T]) Get() T {
	v, _ := f.cell.Value().Get(f.key).(T)
	return v
}

func (f *field[T]) Set(v T) {
	f.cell.Value().Set(f.key, v)
}

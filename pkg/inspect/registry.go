package inspect

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vango-dev/ripple/pkg/ripple"
)

var (
	// ErrDuplicateName is returned when a name is registered twice.
	ErrDuplicateName = errors.New("inspect: cell name already registered")

	// ErrEmptyName is returned when neither the caller nor the cell
	// supplies a name.
	ErrEmptyName = errors.New("inspect: cell has no name")
)

// Registry is a set of named cells exposed by the inspector.
type Registry struct {
	mu    sync.RWMutex
	cells map[string]ripple.Ref
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{cells: make(map[string]ripple.Ref)}
}

// Register adds ref under name. An empty name falls back to ref.Name().
func (r *Registry) Register(name string, ref ripple.Ref) error {
	if name == "" {
		name = ref.Name()
	}
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cells[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.cells[name] = ref
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, ref ripple.Ref) {
	if err := r.Register(name, ref); err != nil {
		panic(err)
	}
}

// Unregister removes name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cells, name)
}

// Lookup returns the cell registered under name.
func (r *Registry) Lookup(name string) (ripple.Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.cells[name]
	return ref, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cells))
	for name := range r.cells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package ripple

import (
	"context"
	"fmt"
)

// Editor is the mutable view a Recipe edits. Paths use the dotted syntax of
// SplitPath.
type Editor interface {
	Get(path string) (any, bool)
	Set(path string, v any) error
	Delete(path string) error
}

// Recipe describes an edit. A non-nil error aborts the update and leaves
// the cell untouched.
type Recipe func(Editor) error

// Transformer builds the next value from the current one and a recipe.
//
// Implementations must be pure: current is never mutated. They must share
// structure: the returned value is current itself when the recipe changed
// nothing, and untouched children keep their identity otherwise.
type Transformer interface {
	Apply(current any, recipe Recipe) (any, error)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(current any, recipe Recipe) (any, error)

// Apply calls f.
func (f TransformerFunc) Apply(current any, recipe Recipe) (any, error) {
	return f(current, recipe)
}

// TransformerLoader resolves a Transformer on first use.
type TransformerLoader func(ctx context.Context) (Transformer, error)

// Update applies recipe through the injected transformer and sets the
// result if it is a different container than the current root. A result of
// the wrong kind is rejected with ErrTypeMismatch. The transformer is
// resolved once and cached; if none can be resolved, Update returns an
// error wrapping ErrTransformerUnavailable and does not modify the cell.
func (c *Composite[R]) Update(ctx context.Context, recipe Recipe) error {
	t, err := c.resolveTransformer(ctx)
	if err != nil {
		return err
	}

	current := c.Value().Raw()
	next, err := t.Apply(current, recipe)
	if err != nil {
		return err
	}
	if sameSlot(current, next) {
		return nil
	}
	return c.SetAny(next)
}

// resolveTransformer returns the injected transformer, running the loader
// once if needed.
func (c *Composite[R]) resolveTransformer(ctx context.Context) (Transformer, error) {
	c.tmu.Lock()
	defer c.tmu.Unlock()

	if c.transformer != nil {
		return c.transformer, nil
	}
	if c.loader == nil {
		return nil, ErrTransformerUnavailable
	}

	t, err := c.loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransformerUnavailable, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: loader returned no transformer", ErrTransformerUnavailable)
	}
	c.transformer = t
	return t, nil
}

// Package draft implements a copy-on-write structural transformer for
// ripple.Composite.Update.
//
// A recipe edits a draft of the current value. Containers on the path of a
// write are shallow-copied once; everything else, including nodes already
// handed out by the cell, is shared with the current value. If the recipe
// changes nothing, the current value itself is returned.
package draft

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/vango-dev/ripple/pkg/ripple"
)

// Transformer is a ripple.Transformer backed by Produce.
type Transformer struct{}

var _ ripple.Transformer = Transformer{}

// New returns the copy-on-write transformer.
func New() Transformer {
	return Transformer{}
}

// Apply implements ripple.Transformer.
func (Transformer) Apply(current any, recipe ripple.Recipe) (any, error) {
	return Produce(current, recipe)
}

// Produce runs recipe against a draft of base and returns the result.
// base is never modified.
func Produce(base any, recipe ripple.Recipe) (any, error) {
	e := &editor{
		root:  base,
		owned: make(map[uintptr]struct{}),
	}
	if err := recipe(e); err != nil {
		return nil, err
	}
	return e.root, nil
}

// editor tracks the containers it allocated; only those are mutated in
// place.
type editor struct {
	root  any
	owned map[uintptr]struct{}
}

// Get returns the value at path in the draft. Containers are returned as
// raw map[string]any / []any and must be treated as read-only.
func (e *editor) Get(path string) (any, bool) {
	cur := unwrap(e.root)
	for _, seg := range ripple.SplitPath(path) {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = unwrap(v)
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = unwrap(c[i])
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set writes v at path, creating missing objects along the way.
func (e *editor) Set(path string, v any) error {
	segs := ripple.SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", ripple.ErrInvalidPath)
	}
	next, err := e.setIn(e.root, segs, v)
	if err != nil {
		return err
	}
	e.root = next
	return nil
}

// Delete removes the value at path. Missing paths are not an error.
func (e *editor) Delete(path string) error {
	segs := ripple.SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", ripple.ErrInvalidPath)
	}
	next, err := e.deleteIn(e.root, segs)
	if err != nil {
		return err
	}
	e.root = next
	return nil
}

// setIn returns c with v written at segs. c is returned unchanged (same
// identity) if the write is a no-op.
func (e *editor) setIn(c any, segs []string, v any) (any, error) {
	seg, rest := segs[0], segs[1:]

	switch m := unwrap(c).(type) {
	case map[string]any:
		old, ok := m[seg]
		if len(rest) == 0 {
			if ok && ripple.SameValue(old, v) {
				return c, nil
			}
			w := e.ownMap(m)
			w[seg] = v
			return w, nil
		}

		created := !ok || old == nil
		if created {
			old = e.fresh()
		}
		next, err := e.setIn(old, rest, v)
		if err != nil {
			return nil, fmt.Errorf("%w at %q", err, seg)
		}
		if !created && sameContainer(next, old) {
			return c, nil
		}
		w := e.ownMap(m)
		w[seg] = next
		return w, nil

	case []any:
		i, err := index(seg, len(m))
		if err != nil {
			return nil, err
		}
		if i > len(m) {
			return nil, fmt.Errorf("%w: index %d past the end", ripple.ErrInvalidPath, i)
		}
		if len(rest) == 0 {
			if i < len(m) && ripple.SameValue(m[i], v) {
				return c, nil
			}
			w := e.ownSlice(m)
			if i == len(w) {
				w = e.grow(w)
			}
			w[i] = v
			return w, nil
		}

		if i >= len(m) {
			return nil, fmt.Errorf("%w: index %d out of range", ripple.ErrInvalidPath, i)
		}
		next, err := e.setIn(m[i], rest, v)
		if err != nil {
			return nil, fmt.Errorf("%w at %q", err, seg)
		}
		if sameContainer(next, m[i]) {
			return c, nil
		}
		w := e.ownSlice(m)
		w[i] = next
		return w, nil

	default:
		return nil, ripple.ErrNotComposite
	}
}

// deleteIn returns c with the value at segs removed.
func (e *editor) deleteIn(c any, segs []string) (any, error) {
	seg, rest := segs[0], segs[1:]

	switch m := unwrap(c).(type) {
	case map[string]any:
		old, ok := m[seg]
		if !ok {
			return c, nil
		}
		if len(rest) == 0 {
			w := e.ownMap(m)
			delete(w, seg)
			return w, nil
		}
		next, err := e.deleteIn(old, rest)
		if err != nil {
			return nil, fmt.Errorf("%w at %q", err, seg)
		}
		if sameContainer(next, old) {
			return c, nil
		}
		w := e.ownMap(m)
		w[seg] = next
		return w, nil

	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 {
			return nil, fmt.Errorf("%w: %q is not an array index", ripple.ErrInvalidPath, seg)
		}
		if i >= len(m) {
			return c, nil
		}
		if len(rest) == 0 {
			w := e.ownSlice(m)
			copy(w[i:], w[i+1:])
			w[len(w)-1] = nil
			return w[:len(w)-1], nil
		}
		next, err := e.deleteIn(m[i], rest)
		if err != nil {
			return nil, fmt.Errorf("%w at %q", err, seg)
		}
		if sameContainer(next, m[i]) {
			return c, nil
		}
		w := e.ownSlice(m)
		w[i] = next
		return w, nil

	default:
		return nil, ripple.ErrNotComposite
	}
}

// fresh allocates an owned empty object.
func (e *editor) fresh() map[string]any {
	m := make(map[string]any)
	e.owned[reflect.ValueOf(m).Pointer()] = struct{}{}
	return m
}

// ownMap returns m if the editor allocated it, or an owned shallow copy.
func (e *editor) ownMap(m map[string]any) map[string]any {
	if _, ok := e.owned[reflect.ValueOf(m).Pointer()]; ok && m != nil {
		return m
	}
	w := make(map[string]any, len(m)+1)
	for k, v := range m {
		w[k] = v
	}
	e.owned[reflect.ValueOf(w).Pointer()] = struct{}{}
	return w
}

// ownSlice returns s if the editor allocated it, or an owned copy.
func (e *editor) ownSlice(s []any) []any {
	if cap(s) > 0 {
		if _, ok := e.owned[reflect.ValueOf(s).Pointer()]; ok {
			return s
		}
	}
	w := make([]any, len(s), len(s)+1)
	copy(w, s)
	e.owned[reflect.ValueOf(w).Pointer()] = struct{}{}
	return w
}

// grow appends one nil element to an owned slice, keeping it owned.
func (e *editor) grow(s []any) []any {
	s = append(s, nil)
	e.owned[reflect.ValueOf(s).Pointer()] = struct{}{}
	return s
}

// index parses an array segment. "-1" addresses the slot after the end.
// Indexes past that slot are rejected by the caller.
func index(seg string, length int) (int, error) {
	if seg == "-1" {
		return length, nil
	}
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q is not an array index", ripple.ErrInvalidPath, seg)
	}
	return i, nil
}

// unwrap resolves a node to its raw container.
func unwrap(v any) any {
	if n, ok := v.(*ripple.Node); ok && n != nil {
		return n.Raw()
	}
	return v
}

// sameContainer reports whether next is old, or old's raw container.
func sameContainer(next, old any) bool {
	return ripple.SameValue(next, old)
}

package ripple

import (
	"fmt"
	"strconv"
	"strings"
)

// SplitPath splits a dotted path into its segments. A backslash escapes the
// next character, so `a\.b` is the single key "a.b". Array elements are
// addressed by decimal index; "-1" addresses the slot after the last element
// when writing. This is the path syntax of tidwall/gjson and tidwall/sjson.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	var (
		segs []string
		cur  strings.Builder
	)
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '\\':
			if i+1 < len(path) {
				i++
				cur.WriteByte(path[i])
			}
		case '.':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(segs, cur.String())
}

// GetPath resolves path below n. Intermediate composites are wrapped as
// they are traversed, exactly as repeated Get/Index calls would.
func (n *Node) GetPath(path string) (any, bool) {
	var cur any = n
	for _, seg := range SplitPath(path) {
		node, ok := cur.(*Node)
		if !ok {
			return nil, false
		}
		if node.IsArray() {
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= node.Len() {
				return nil, false
			}
			cur = node.Index(i)
			continue
		}
		v, ok := node.Lookup(seg)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// SetPath writes v at path below n. Missing objects along the way are
// created. An array index may address an element or the slot after the
// last one; anything further is ErrInvalidPath. Each created object and the final write notify separately; run
// SetPath inside a batch to coalesce them.
func (n *Node) SetPath(path string, v any) error {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	parent := n
	for i, seg := range segs[:len(segs)-1] {
		next, err := parent.child(seg, true)
		if err != nil {
			return fmt.Errorf("%w at %q", err, strings.Join(segs[:i+1], "."))
		}
		parent = next
	}

	last := segs[len(segs)-1]
	if !parent.IsArray() {
		parent.Set(last, v)
		return nil
	}
	if last == "-1" {
		parent.Append(v)
		return nil
	}
	idx, err := strconv.Atoi(last)
	if err != nil || idx < 0 {
		return fmt.Errorf("%w: %q is not an array index", ErrInvalidPath, last)
	}
	if l := parent.Len(); idx > l {
		return fmt.Errorf("%w: index %d past the end (length %d)", ErrInvalidPath, idx, l)
	}
	parent.SetIndex(idx, v)
	return nil
}

// DeletePath removes the value at path. On arrays the element is removed
// and later elements shift down.
func (n *Node) DeletePath(path string) error {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	parent := n
	for i, seg := range segs[:len(segs)-1] {
		next, err := parent.child(seg, false)
		if err != nil {
			return fmt.Errorf("%w at %q", err, strings.Join(segs[:i+1], "."))
		}
		parent = next
	}

	last := segs[len(segs)-1]
	if !parent.IsArray() {
		parent.Delete(last)
		return nil
	}
	idx, err := strconv.Atoi(last)
	if err != nil || idx < 0 {
		return fmt.Errorf("%w: %q is not an array index", ErrInvalidPath, last)
	}
	parent.RemoveAt(idx)
	return nil
}

// RemoveAt removes the element at i, shifting later elements down.
// Out-of-range indexes are ignored.
func (n *Node) RemoveAt(i int) {
	g := n.graph
	g.mu.Lock()
	if !n.isArray || i < 0 || i >= len(n.arr) {
		g.mu.Unlock()
		return
	}

	n.unlinkLocked(slot{index: i})
	for j := i + 1; j < len(n.arr); j++ {
		if k, ok := n.kids[slot{index: j}]; ok {
			delete(n.kids, slot{index: j})
			n.kids[slot{index: j - 1}] = k
		}
	}
	copy(n.arr[i:], n.arr[i+1:])
	n.arr[len(n.arr)-1] = nil
	n.arr = n.arr[:len(n.arr)-1]
	n.bumpLocked()
	g.mu.Unlock()

	g.notify()
}

// child returns the composite child under seg, optionally creating an empty
// object for a missing object key.
func (n *Node) child(seg string, create bool) (*Node, error) {
	var v any
	if n.IsArray() {
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 {
			return nil, fmt.Errorf("%w: %q is not an array index", ErrInvalidPath, seg)
		}
		if i >= n.Len() {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, i)
		}
		v = n.Index(i)
	} else {
		var ok bool
		v, ok = n.Lookup(seg)
		if !ok || v == nil {
			if !create {
				return nil, fmt.Errorf("%w: missing key %q", ErrInvalidPath, seg)
			}
			n.Set(seg, map[string]any{})
			v = n.Get(seg)
		}
	}

	c, ok := v.(*Node)
	if !ok {
		return nil, ErrNotComposite
	}
	return c, nil
}

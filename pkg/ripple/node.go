package ripple

import (
	"encoding/json"
	"sort"
)

// Node is the handle over one raw object or array inside a Graph.
//
// A Node owns no data of its own: it is a view over the raw container plus
// the graph's notify function. All mutation of a value held by a reactive
// cell must go through its nodes; writes made directly to the raw
// container are not observed.
//
// Reads of composite children return child nodes. A read never modifies
// the raw container: the parent remembers the child node per slot, so
// repeated reads return the same node even for empty arrays that have no
// backing storage to key on, and a raw container reachable from several
// graphs can be read from all of them concurrently.
type Node struct {
	graph *Graph

	obj     map[string]any
	arr     []any
	isArray bool

	// rev is bumped on every write or delete in this node's subtree.
	rev uint64

	// parents counts the slots, per parent node, that link to this node.
	parents map[*Node]int

	// kids links each composite slot read or written through this node to
	// its child node.
	kids map[slot]kid
}

// slot addresses an object key or an array index.
type slot struct {
	key   string
	index int
}

// kid is the child node linked to a slot, with the identity of the slot
// value it was resolved from.
type kid struct {
	node   *Node
	origin rawKey
	keyed  bool
}

// matches reports whether the slot still holds the value k was resolved
// from. Containers without an identity (empty slices, nil maps) match any
// container of the same shape.
func (k kid) matches(v any) bool {
	key, ok := identityOf(v)
	if ok || k.keyed {
		return ok == k.keyed && key == k.origin
	}
	switch v.(type) {
	case []any:
		return k.node.isArray
	case map[string]any:
		return !k.node.isArray
	}
	return false
}

// IsArray reports whether the node wraps an array.
func (n *Node) IsArray() bool {
	return n.isArray
}

// Graph returns the graph that owns the node.
func (n *Node) Graph() *Graph {
	return n.graph
}

// Revision returns the subtree revision counter.
func (n *Node) Revision() uint64 {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	return n.rev
}

// Raw returns the node's container as reads through the node see it:
// composite children that have been read or written through the node
// appear as their *Node values. When a child was only read, the result is
// a shallow copy and the container itself is left untouched. Treat the
// result as read-only.
func (n *Node) Raw() any {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	return n.rawLocked()
}

func (n *Node) container() any {
	if n.isArray {
		return n.arr
	}
	return n.obj
}

func (n *Node) rawLocked() any {
	overlay := false
	n.eachLocked(func(s slot, v any) {
		if _, stored := v.(*Node); !stored && n.linkedLocked(s, v) != nil {
			overlay = true
		}
	})
	if !overlay {
		return n.container()
	}

	if n.isArray {
		out := make([]any, len(n.arr))
		for i, v := range n.arr {
			out[i] = n.viewLocked(slot{index: i}, v)
		}
		return out
	}
	out := make(map[string]any, len(n.obj))
	for k, v := range n.obj {
		out[k] = n.viewLocked(slot{key: k}, v)
	}
	return out
}

// Get returns the value stored under key, wrapping composite children.
// Returns nil if the key is absent or the node is an array.
func (n *Node) Get(key string) any {
	v, _ := n.Lookup(key)
	return v
}

// Lookup is Get with a presence flag.
func (n *Node) Lookup(key string) (any, bool) {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	if n.isArray {
		return nil, false
	}
	v, ok := n.obj[key]
	if !ok {
		return nil, false
	}
	return n.childLocked(slot{key: key}, v), true
}

// Has reports whether key is present.
func (n *Node) Has(key string) bool {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	_, ok := n.obj[key]
	return ok
}

// Keys returns the object's keys in sorted order, or nil for arrays.
func (n *Node) Keys() []string {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	if n.isArray {
		return nil
	}
	keys := make([]string, 0, len(n.obj))
	for k := range n.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of elements (arrays) or keys (objects).
func (n *Node) Len() int {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	if n.isArray {
		return len(n.arr)
	}
	return len(n.obj)
}

// Set writes v under key. Composite values are wrapped before they are
// stored. The write always happens; notify runs only if the stored value
// differs from the previous one by identity/value. Writing to a missing key
// counts as a change, including when v is nil. Set on an array node is a
// no-op.
func (n *Node) Set(key string, v any) {
	g := n.graph
	g.mu.Lock()
	if n.isArray {
		g.mu.Unlock()
		return
	}

	s := slot{key: key}
	stored := g.prepareLocked(v)
	old, existed := n.obj[key]
	changed := !existed || !sameSlot(n.viewLocked(s, old), stored)
	n.obj[key] = stored
	n.storeLocked(s, stored)
	if changed {
		n.bumpLocked()
	}
	g.mu.Unlock()

	if changed {
		g.notify()
	}
}

// Delete removes key and always notifies, whether or not the key existed:
// a removal has no old/new pair to compare.
func (n *Node) Delete(key string) {
	g := n.graph
	g.mu.Lock()
	if n.isArray {
		g.mu.Unlock()
		return
	}

	delete(n.obj, key)
	n.unlinkLocked(slot{key: key})
	n.bumpLocked()
	g.mu.Unlock()

	g.notify()
}

// Index returns the element at i, wrapping composite children.
// Returns nil when i is out of range or the node is an object.
func (n *Node) Index(i int) any {
	g := n.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	if !n.isArray || i < 0 || i >= len(n.arr) {
		return nil
	}
	return n.childLocked(slot{index: i}, n.arr[i])
}

// SetIndex writes v at i through the same path as Set. Writing at Len
// appends, which always notifies. Negative indexes and indexes past Len
// are ignored.
func (n *Node) SetIndex(i int, v any) {
	g := n.graph
	g.mu.Lock()
	if !n.isArray || i < 0 || i > len(n.arr) {
		g.mu.Unlock()
		return
	}

	s := slot{index: i}
	stored := g.prepareLocked(v)
	changed := true
	if i == len(n.arr) {
		n.arr = append(n.arr, stored)
	} else {
		changed = !sameSlot(n.viewLocked(s, n.arr[i]), stored)
		n.arr[i] = stored
	}
	n.storeLocked(s, stored)
	if changed {
		n.bumpLocked()
	}
	g.mu.Unlock()

	if changed {
		g.notify()
	}
}

// Append adds values to the end of the array.
func (n *Node) Append(vs ...any) {
	g := n.graph
	g.mu.Lock()
	if !n.isArray || len(vs) == 0 {
		g.mu.Unlock()
		return
	}

	for _, v := range vs {
		stored := g.prepareLocked(v)
		n.arr = append(n.arr, stored)
		n.storeLocked(slot{index: len(n.arr) - 1}, stored)
	}
	n.bumpLocked()
	g.mu.Unlock()

	g.notify()
}

// SetLen truncates or extends (with nil) the array to length l.
// Notifies only when the length actually changes.
func (n *Node) SetLen(l int) {
	g := n.graph
	g.mu.Lock()
	if !n.isArray || l < 0 || l == len(n.arr) {
		g.mu.Unlock()
		return
	}

	if l < len(n.arr) {
		for i := l; i < len(n.arr); i++ {
			n.unlinkLocked(slot{index: i})
		}
		clear(n.arr[l:])
		n.arr = n.arr[:l]
	} else {
		n.arr = append(n.arr, make([]any, l-len(n.arr))...)
	}
	n.bumpLocked()
	g.mu.Unlock()

	g.notify()
}

// Snapshot returns a deep copy of the node's value as plain
// map[string]any / []any data with no nodes inside.
func (n *Node) Snapshot() any {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	return n.snapshotLocked()
}

// MarshalJSON encodes the node's current value.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Snapshot())
}

func (n *Node) snapshotLocked() any {
	if n.isArray {
		if n.arr == nil {
			return nil
		}
		out := make([]any, len(n.arr))
		for i, v := range n.arr {
			out[i] = n.graph.plainLocked(n.viewLocked(slot{index: i}, v))
		}
		return out
	}
	if n.obj == nil {
		return nil
	}
	out := make(map[string]any, len(n.obj))
	for k, v := range n.obj {
		out[k] = n.graph.plainLocked(n.viewLocked(slot{key: k}, v))
	}
	return out
}

// eachLocked calls fn for every slot of the container.
func (n *Node) eachLocked(fn func(s slot, v any)) {
	if n.isArray {
		for i, v := range n.arr {
			fn(slot{index: i}, v)
		}
		return
	}
	for k, v := range n.obj {
		fn(slot{key: k}, v)
	}
}

// linkedLocked returns the node of this graph that stands for v in s, or
// nil if there is none yet.
func (n *Node) linkedLocked(s slot, v any) *Node {
	if c, ok := v.(*Node); ok && c != nil && c.graph == n.graph {
		return c
	}
	if k, ok := n.kids[s]; ok && k.matches(v) {
		return k.node
	}
	return nil
}

// viewLocked returns what a read of s sees without linking anything new.
func (n *Node) viewLocked(s slot, v any) any {
	if c := n.linkedLocked(s, v); c != nil {
		return c
	}
	return v
}

// childLocked returns what a read of s sees, wrapping and linking a
// composite child on first read.
func (n *Node) childLocked(s slot, v any) any {
	if c := n.linkedLocked(s, v); c != nil {
		return c
	}
	if !IsComposite(v) {
		return v
	}
	c := n.graph.wrapLocked(v)
	n.linkLocked(s, v, c)
	return c
}

// storeLocked links the value just written into s.
func (n *Node) storeLocked(s slot, stored any) {
	if c, ok := stored.(*Node); ok && c != nil && c.graph == n.graph {
		n.linkLocked(s, c, c)
		return
	}
	n.unlinkLocked(s)
}

// linkLocked makes c the child behind s, replacing any previous link.
func (n *Node) linkLocked(s slot, v any, c *Node) {
	n.unlinkLocked(s)
	if n.kids == nil {
		n.kids = make(map[slot]kid)
	}
	key, ok := identityOf(v)
	n.kids[s] = kid{node: c, origin: key, keyed: ok}
	c.addParent(n)
}

func (n *Node) unlinkLocked(s slot) {
	if k, ok := n.kids[s]; ok {
		delete(n.kids, s)
		k.node.removeParent(n)
	}
}

// releaseLocked drops every child link of n.
func (n *Node) releaseLocked() {
	for s := range n.kids {
		n.unlinkLocked(s)
	}
}

func (n *Node) addParent(p *Node) {
	if n.parents == nil {
		n.parents = make(map[*Node]int)
	}
	n.parents[p]++
}

func (n *Node) removeParent(p *Node) {
	if n.parents[p] <= 1 {
		delete(n.parents, p)
		return
	}
	n.parents[p]--
}

// bumpLocked increments the revision of n and every ancestor reachable
// through parent links. Cycles are visited once.
func (n *Node) bumpLocked() {
	seen := make(map[*Node]struct{})
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		cur.rev++
		for p := range cur.parents {
			stack = append(stack, p)
		}
	}
}

package ripple

import (
	"reflect"
	"sync"
)

// Graph is the interception layer for one reactive graph: it hands out one
// Node per distinct raw container and routes every write through notify.
//
// Raw composites are map[string]any (objects) and []any (arrays). Any other
// value, including typed maps and structs, is treated as an opaque scalar.
//
// The identity cache is scoped to the graph. Sharing raw containers between
// graphs is allowed; each graph wraps them with its own nodes, bound to its
// own notify function. Reads never write to raw containers, so graphs that
// share one can read it concurrently.
type Graph struct {
	// mu protects the cache and every node's container, revision, parent
	// and child links.
	mu sync.Mutex

	notify func()
	cache  map[rawKey]*Node
}

// rawKey identifies a raw container. Slices are identified by their data
// pointer and length, so a resliced view is a distinct container.
type rawKey struct {
	ptr   uintptr
	len   int
	array bool
}

// NewGraph creates a graph whose nodes call notify after each effective
// write or delete. notify runs with no lock held.
func NewGraph(notify func()) *Graph {
	if notify == nil {
		notify = func() {}
	}
	return &Graph{
		notify: notify,
		cache:  make(map[rawKey]*Node),
	}
}

// IsComposite reports whether v is a value the interception layer wraps.
func IsComposite(v any) bool {
	switch v := v.(type) {
	case map[string]any, []any:
		return true
	case *Node:
		return v != nil
	default:
		return false
	}
}

// Wrap returns the node for raw. Wrapping a node of this graph returns it
// unchanged, and wrapping the same raw container twice returns the same
// node. Wrap returns nil if raw is not composite.
//
// An empty slice with no backing array (cap 0, including nil) has no
// identity to key on, so each Wrap of one returns a fresh node. Nested
// empty arrays keep a stable node anyway: the parent node remembers the
// child it handed out for that slot.
func (g *Graph) Wrap(raw any) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.wrapLocked(raw)
}

// Reset drops the identity cache. Nodes already handed out keep working;
// raw containers wrapped afterwards get fresh nodes.
func (g *Graph) Reset() {
	g.mu.Lock()
	g.cache = make(map[rawKey]*Node)
	g.mu.Unlock()
}

// retire drops the child links of a node that is no longer part of the
// graph's value, so its children stop bumping it and stop keeping it
// alive. A node that is still linked from a parent is left alone.
func (g *Graph) retire(n *Node) {
	if n == nil || n.graph != g {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(n.parents) == 0 {
		n.releaseLocked()
	}
}

// wrapLocked implements Wrap. g.mu must be held.
func (g *Graph) wrapLocked(raw any) *Node {
	switch v := raw.(type) {
	case *Node:
		if v == nil {
			return nil
		}
		if v.graph == g {
			return v
		}
		// Foreign node: rebind its container to this graph.
		return g.wrapLocked(v.container())
	case map[string]any:
		if v == nil {
			return g.newNodeLocked(map[string]any{}, nil, false)
		}
		key, _ := identityOf(v)
		if n, ok := g.cache[key]; ok {
			return n
		}
		n := g.newNodeLocked(v, nil, false)
		g.cache[key] = n
		return n
	case []any:
		key, ok := identityOf(v)
		if !ok {
			// No backing array to key on.
			return g.newNodeLocked(nil, v, true)
		}
		if n, ok := g.cache[key]; ok {
			return n
		}
		n := g.newNodeLocked(nil, v, true)
		g.cache[key] = n
		return n
	default:
		return nil
	}
}

// newNodeLocked builds a node and links it as parent of any child nodes of
// this graph already present in the container.
func (g *Graph) newNodeLocked(obj map[string]any, arr []any, isArray bool) *Node {
	n := &Node{
		graph:   g,
		obj:     obj,
		arr:     arr,
		isArray: isArray,
	}
	n.eachLocked(func(s slot, v any) {
		if c, ok := v.(*Node); ok && c != nil && c.graph == g {
			n.linkLocked(s, c, c)
		}
	})
	return n
}

// plainLocked deep-copies v into plain data. Nodes of g, and raw
// containers g has a node for, are copied through the node.
func (g *Graph) plainLocked(v any) any {
	switch v := v.(type) {
	case *Node:
		if v == nil {
			return nil
		}
		if v.graph == g {
			return v.snapshotLocked()
		}
		return g.plainLocked(v.container())
	case map[string]any:
		if v == nil {
			return nil
		}
		if n := g.cachedLocked(v); n != nil {
			return n.snapshotLocked()
		}
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = g.plainLocked(e)
		}
		return out
	case []any:
		if v == nil {
			return nil
		}
		if n := g.cachedLocked(v); n != nil {
			return n.snapshotLocked()
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = g.plainLocked(e)
		}
		return out
	default:
		return v
	}
}

// cachedLocked returns the node already wrapping raw, or nil.
func (g *Graph) cachedLocked(raw any) *Node {
	key, ok := identityOf(raw)
	if !ok {
		return nil
	}
	return g.cache[key]
}

// prepareLocked converts a value about to be stored into its stored form:
// composites are wrapped, scalars pass through.
func (g *Graph) prepareLocked(v any) any {
	if IsComposite(v) {
		return g.wrapLocked(v)
	}
	return v
}

// identityOf returns the container identity of a raw composite or node.
func identityOf(v any) (rawKey, bool) {
	switch v := v.(type) {
	case *Node:
		if v == nil {
			return rawKey{}, false
		}
		return identityOf(v.container())
	case map[string]any:
		if v == nil {
			return rawKey{}, false
		}
		return rawKey{ptr: reflect.ValueOf(v).Pointer()}, true
	case []any:
		if cap(v) == 0 {
			return rawKey{}, false
		}
		return rawKey{ptr: reflect.ValueOf(v).Pointer(), len: len(v), array: true}, true
	default:
		return rawKey{}, false
	}
}

// sameSlot compares an old stored value with a new stored value. A raw
// container and the node wrapping it are the same slot value.
func sameSlot(old, next any) bool {
	if on, ok := old.(*Node); ok {
		if nn, ok := next.(*Node); ok {
			return on == nn
		}
	}
	ko, okOld := identityOf(old)
	kn, okNew := identityOf(next)
	if okOld && okNew {
		return ko == kn
	}
	if okOld != okNew {
		return false
	}
	return sameValue(old, next)
}

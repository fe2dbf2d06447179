package ripple

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestWrapIdempotent(t *testing.T) {
	g := NewGraph(nil)
	raw := map[string]any{"x": map[string]any{"y": 1}}

	w1 := g.Wrap(raw)
	w2 := g.Wrap(raw)
	if w1 != w2 {
		t.Fatal("wrapping the same raw object twice should return the same node")
	}
	if g.Wrap(w1) != w1 {
		t.Fatal("wrapping a node should return it unchanged")
	}

	x1 := w1.Get("x")
	x2 := w1.Get("x")
	if x1 != x2 {
		t.Fatal("reading the same nested object twice should return the same child node")
	}
	if _, ok := x1.(*Node); !ok {
		t.Fatalf("expected nested object to be a *Node, got %T", x1)
	}
}

func TestWrapScalarReturnsNil(t *testing.T) {
	g := NewGraph(nil)
	if n := g.Wrap(42); n != nil {
		t.Errorf("expected nil for scalar, got %v", n)
	}
	if n := g.Wrap(map[string]int{"a": 1}); n != nil {
		t.Errorf("typed maps are scalars, got %v", n)
	}
}

func TestWrapEmptySliceIsUnkeyed(t *testing.T) {
	g := NewGraph(nil)
	empty := []any{}

	if g.Wrap(empty) == g.Wrap(empty) {
		t.Error("an empty slice has no identity, so each Wrap returns a fresh node")
	}
	items := make([]any, 0, 1)
	if g.Wrap(items) != g.Wrap(items) {
		t.Error("a slice with backing storage should map to one node")
	}
}

func TestEmptyArrayIdentityStable(t *testing.T) {
	g := NewGraph(nil)
	root := g.Wrap(map[string]any{"items": []any{}})

	a := root.Get("items")
	b := root.Get("items")
	if a != b {
		t.Fatal("empty array child should keep its node identity")
	}
}

func TestNodeWriteNotifies(t *testing.T) {
	var calls counter
	g := NewGraph(calls.inc)
	root := g.Wrap(map[string]any{"name": "Rishik"})

	root.Set("name", "Rahul")
	if calls.get() != 1 {
		t.Fatalf("expected 1 notify, got %d", calls.get())
	}

	root.Set("name", "Rahul")
	if calls.get() != 1 {
		t.Fatalf("same value should not notify, got %d", calls.get())
	}
	if root.Get("name") != "Rahul" {
		t.Errorf("expected Rahul, got %v", root.Get("name"))
	}
}

func TestNodeNestedWriteAfterAssignment(t *testing.T) {
	var calls counter
	g := NewGraph(calls.inc)
	root := g.Wrap(map[string]any{})

	root.Set("user", map[string]any{"name": "Rishik"})
	root.Get("user").(*Node).Set("name", "Rahul")

	if calls.get() != 2 {
		t.Errorf("expected 2 notifies, got %d", calls.get())
	}
}

func TestNodeDeeplyNested(t *testing.T) {
	var calls counter
	g := NewGraph(calls.inc)
	root := g.Wrap(map[string]any{
		"settings": map[string]any{"theme": map[string]any{"dark": true}},
	})

	theme := root.Get("settings").(*Node).Get("theme").(*Node)
	before := root.Revision()
	theme.Set("dark", false)

	if calls.get() != 1 {
		t.Errorf("expected 1 notify, got %d", calls.get())
	}
	if root.Revision() == before {
		t.Error("nested write should bump the root revision")
	}
}

func TestNodeDeleteAlwaysNotifies(t *testing.T) {
	var calls counter
	g := NewGraph(calls.inc)
	root := g.Wrap(map[string]any{"foo": 123})

	root.Delete("foo")
	if calls.get() != 1 {
		t.Fatalf("expected exactly 1 notify, got %d", calls.get())
	}
	if root.Has("foo") {
		t.Error("foo should be gone")
	}

	root.Delete("missing")
	if calls.get() != 2 {
		t.Errorf("delete of a missing key still notifies, got %d", calls.get())
	}
}

func TestNodeNilWriteIsGated(t *testing.T) {
	var calls counter
	g := NewGraph(calls.inc)
	root := g.Wrap(map[string]any{"a": nil})

	root.Set("a", nil)
	if calls.get() != 0 {
		t.Errorf("nil over nil should not notify, got %d", calls.get())
	}

	root.Set("b", nil)
	if calls.get() != 1 {
		t.Errorf("nil into a missing key is a change, got %d", calls.get())
	}
	if !root.Has("b") {
		t.Error("nil write should keep the key present")
	}
}

func TestNodeRewriteSameRawChild(t *testing.T) {
	var calls counter
	g := NewGraph(calls.inc)
	child := map[string]any{"y": 1}
	root := g.Wrap(map[string]any{"x": child})

	root.Set("x", child)
	if calls.get() != 0 {
		t.Errorf("writing back the same raw child should not notify, got %d", calls.get())
	}
	root.Set("x", root.Get("x"))
	if calls.get() != 0 {
		t.Errorf("writing back the child node should not notify, got %d", calls.get())
	}
}

func TestNodeArrayOperations(t *testing.T) {
	var calls counter
	g := NewGraph(calls.inc)
	arr := g.Wrap([]any{1, 2})

	if !arr.IsArray() || arr.Len() != 2 {
		t.Fatalf("expected array of length 2")
	}

	arr.SetIndex(0, 1)
	if calls.get() != 0 {
		t.Errorf("same element should not notify, got %d", calls.get())
	}

	arr.SetIndex(0, 10)
	arr.Append(map[string]any{"id": 3})
	arr.SetIndex(3, "end")
	if calls.get() != 3 {
		t.Errorf("expected 3 notifies, got %d", calls.get())
	}
	if arr.Len() != 4 || arr.Index(3) != "end" {
		t.Errorf("writing at Len should append: %v", arr.Snapshot())
	}
	if _, ok := arr.Index(2).(*Node); !ok {
		t.Errorf("appended object should read back as a node, got %T", arr.Index(2))
	}

	arr.SetLen(3)
	arr.SetLen(3)
	if calls.get() != 4 || arr.Len() != 3 {
		t.Errorf("expected one truncation notify, calls=%d len=%d", calls.get(), arr.Len())
	}

	arr.RemoveAt(0)
	if arr.Len() != 2 || arr.Index(0) != 2 {
		t.Errorf("expected [2 {...}], got %v", arr.Snapshot())
	}
}

func TestNodeSetIndexPastEndIsIgnored(t *testing.T) {
	var calls counter
	c := NewArray([]any{}, WithName("items"))
	c.Subscribe(calls.inc)
	root := c.Value()

	root.SetIndex(20_000_000, 1)
	root.SetIndex(1, 1)
	if root.Len() != 0 || calls.get() != 0 {
		t.Fatalf("write past the end should be ignored, len=%d calls=%d", root.Len(), calls.get())
	}

	if err := c.SetPath("5", "x"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("SetPath past the end = %v, want ErrInvalidPath", err)
	}
	if err := c.SetPath("0", "a"); err != nil {
		t.Errorf("SetPath at the end: %v", err)
	}
	if err := c.SetPath("1", "b"); err != nil {
		t.Errorf("SetPath at the end: %v", err)
	}
	if root.Len() != 2 || calls.get() != 2 {
		t.Errorf("len=%d calls=%d, want 2 and 2", root.Len(), calls.get())
	}
}

func TestNodeRemoveAtKeepsChildIdentity(t *testing.T) {
	g := NewGraph(nil)
	arr := g.Wrap([]any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
		[]any{},
	})
	second := arr.Index(1).(*Node)
	third := arr.Index(2).(*Node)

	arr.RemoveAt(0)
	if arr.Index(0) != second || arr.Index(1) != third {
		t.Fatal("elements after the removed one should keep their nodes")
	}

	rev := arr.Revision()
	third.Append("x")
	if arr.Revision() == rev {
		t.Error("shifted child should still bump the array")
	}
	if got := arr.Snapshot().([]any)[1].([]any); len(got) != 1 || got[0] != "x" {
		t.Errorf("snapshot should see the appended element, got %v", got)
	}
	if second.parents[arr] != 1 || third.parents[arr] != 1 {
		t.Errorf("parent counts after shift: %d %d", second.parents[arr], third.parents[arr])
	}
}

func TestNodeArrayElementMutationBumpsParent(t *testing.T) {
	g := NewGraph(nil)
	root := g.Wrap(map[string]any{"tasks": []any{map[string]any{"done": false}}})

	tasks := root.Get("tasks").(*Node)
	task := tasks.Index(0).(*Node)

	rootRev, tasksRev := root.Revision(), tasks.Revision()
	task.Set("done", true)

	if tasks.Revision() == tasksRev || root.Revision() == rootRev {
		t.Error("element write should bump array and root revisions")
	}
}

func TestNodeDetachedChildStopsBumpingParent(t *testing.T) {
	g := NewGraph(nil)
	root := g.Wrap(map[string]any{"user": map[string]any{"name": "a"}})
	user := root.Get("user").(*Node)

	root.Set("user", map[string]any{"name": "b"})
	rev := root.Revision()

	user.Set("name", "c")
	if root.Revision() != rev {
		t.Error("writes to a detached child should not bump its old parent")
	}
}

func TestNodeSharedChildBumpsBothParents(t *testing.T) {
	g := NewGraph(nil)
	shared := map[string]any{"v": 1}
	root := g.Wrap(map[string]any{
		"a": map[string]any{"ref": shared},
		"b": map[string]any{"ref": shared},
	})
	a := root.Get("a").(*Node)
	b := root.Get("b").(*Node)
	if a.Get("ref") != b.Get("ref") {
		t.Fatal("shared raw object should map to one node")
	}

	revA, revB := a.Revision(), b.Revision()
	a.Get("ref").(*Node).Set("v", 2)
	if a.Revision() == revA || b.Revision() == revB {
		t.Error("write to shared child should bump both parents")
	}
}

func TestForeignNodeIsRebound(t *testing.T) {
	var callsA, callsB counter
	ga := NewGraph(callsA.inc)
	gb := NewGraph(callsB.inc)

	raw := map[string]any{"k": 1}
	na := ga.Wrap(raw)
	nb := gb.Wrap(na)

	if nb == na {
		t.Fatal("a node from another graph must not be returned unchanged")
	}
	if nb.Graph() != gb {
		t.Fatal("rebound node should belong to the receiving graph")
	}

	nb.Set("k", 2)
	if callsB.get() != 1 || callsA.get() != 0 {
		t.Errorf("write should notify only the receiving graph, a=%d b=%d", callsA.get(), callsB.get())
	}
}

func TestSharedRawAcrossComposites(t *testing.T) {
	shared := map[string]any{
		"inner": map[string]any{"v": 1},
		"list":  []any{},
	}
	rawA := map[string]any{"y": shared}
	rawB := map[string]any{"y": shared}
	a := NewObject(rawA, WithName("a"))
	b := NewObject(rawB, WithName("b"))

	var onA, onB, onYA counter
	a.Subscribe(onA.inc)
	b.Subscribe(onB.inc)
	a.SubscribeSelect(onYA.inc, func(v *Node) any { return v.Get("y") })

	ya := a.Value().Get("y").(*Node)
	yb := b.Value().Get("y").(*Node)
	if ya == yb {
		t.Fatal("each composite should wrap the shared object with its own node")
	}
	if ya.Graph() != a.Graph() || yb.Graph() != b.Graph() {
		t.Fatal("nodes should belong to the graph they were read through")
	}

	for i := 0; i < 1000; i++ {
		if a.Value().Get("y") != ya || b.Value().Get("y") != yb {
			t.Fatal("repeated reads should return the same node per graph")
		}
		ya.Get("inner")
		yb.Get("list")
	}
	if n := ya.parents[a.Value()]; n != 1 {
		t.Errorf("parent count after repeated reads = %d, want 1", n)
	}
	if yb.Get("list") != yb.Get("list") {
		t.Error("empty array read through a shared object should keep its node")
	}

	if _, ok := rawA["y"].(*Node); ok {
		t.Error("a read must not store a node in the raw container")
	}
	if _, ok := shared["inner"].(*Node); ok {
		t.Error("a read must not store a node in the shared container")
	}
	if _, ok := shared["list"].(*Node); ok {
		t.Error("a read must not store a node in the shared container")
	}

	ya.Get("inner").(*Node).Set("v", 2)
	if onA.get() != 1 || onYA.get() != 1 || onB.get() != 0 {
		t.Errorf("write through a should notify only a, a=%d y=%d b=%d", onA.get(), onYA.get(), onB.get())
	}

	a.Value().Set("y", map[string]any{"fresh": true})
	if onYA.get() != 2 {
		t.Fatalf("replacing y should fire its selector, got %d", onYA.get())
	}
	ya.Set("detached", true)
	if onYA.get() != 2 {
		t.Errorf("a detached node should not fire the selector, got %d", onYA.get())
	}
}

func TestSharedRawConcurrentReads(t *testing.T) {
	shared := map[string]any{"inner": map[string]any{"v": 1}, "list": []any{}}
	a := NewObject(map[string]any{"y": shared})
	b := NewObject(map[string]any{"y": shared})

	var wg sync.WaitGroup
	for _, c := range []*Composite[map[string]any]{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				y := c.Value().Get("y").(*Node)
				y.Get("inner")
				y.Get("list")
				c.Snapshot()
			}
		}()
	}
	wg.Wait()

	if v, _ := a.GetPath("y.inner.v"); v != 1 {
		t.Errorf("y.inner.v = %v", v)
	}
}

func TestRawOverlaysReadChildren(t *testing.T) {
	g := NewGraph(nil)
	raw := map[string]any{"x": map[string]any{"y": 1}, "n": 1}
	root := g.Wrap(raw)

	if got := root.Raw().(map[string]any); !SameValue(got, raw) {
		t.Error("Raw without reads should be the container itself")
	}

	x := root.Get("x")
	got := root.Raw().(map[string]any)
	if got["x"] != x || got["n"] != 1 {
		t.Errorf("Raw should show the child node, got %v", got)
	}
	if _, ok := raw["x"].(*Node); ok {
		t.Error("Raw must not modify the container")
	}
}

func TestReplacedRootReleasesChildren(t *testing.T) {
	c := NewObject(map[string]any{"keep": map[string]any{"v": 1}})
	old := c.Value()
	keep := old.Get("keep").(*Node)

	next := map[string]any{"keep": keep, "other": 2}
	c.Set(next)

	if _, ok := keep.parents[old]; ok {
		t.Error("the replaced root should no longer be a parent")
	}
	if keep.parents[c.Value()] != 1 {
		t.Errorf("the new root should link the kept child once, got %d", keep.parents[c.Value()])
	}
	rev := c.Value().Revision()
	keep.Set("v", 2)
	if c.Value().Revision() == rev {
		t.Error("kept child should bump the new root")
	}
}

func TestNodeSnapshotAndJSON(t *testing.T) {
	g := NewGraph(nil)
	root := g.Wrap(map[string]any{"a": []any{1, map[string]any{"b": true}}})
	_ = root.Get("a").(*Node).Index(1)

	snap := root.Snapshot().(map[string]any)
	inner := snap["a"].([]any)[1]
	if _, ok := inner.(map[string]any); !ok {
		t.Fatalf("snapshot should contain plain maps, got %T", inner)
	}

	data, err := json.Marshal(root)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"a":[1,{"b":true}]}` {
		t.Errorf("unexpected JSON %s", data)
	}
}

func TestNodeKeysSorted(t *testing.T) {
	g := NewGraph(nil)
	root := g.Wrap(map[string]any{"c": 1, "a": 2, "b": 3})
	keys := root.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("expected sorted keys, got %v", keys)
	}
}

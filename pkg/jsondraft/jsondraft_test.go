package jsondraft

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/vango-dev/ripple/pkg/ripple"
)

func TestApplySetAndDelete(t *testing.T) {
	base := map[string]any{
		"title": "groceries",
		"todos": []any{"milk", "eggs"},
	}

	next, err := New().Apply(base, func(e ripple.Editor) error {
		if err := e.Set("todos.-1", "bread"); err != nil {
			return err
		}
		if err := e.Set("meta.owner", "rishi"); err != nil {
			return err
		}
		return e.Delete("title")
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := map[string]any{
		"todos": []any{"milk", "eggs", "bread"},
		"meta":  map[string]any{"owner": "rishi"},
	}
	if !reflect.DeepEqual(next, want) {
		t.Errorf("got %v, want %v", next, want)
	}
	if _, ok := base["title"]; !ok {
		t.Error("base must not be mutated")
	}
}

func TestApplyNoChangeReturnsCurrent(t *testing.T) {
	base := map[string]any{"a": "x"}

	next, err := New().Apply(base, func(e ripple.Editor) error {
		v, ok := e.Get("a")
		if !ok || v != "x" {
			t.Errorf("Get(a) = %v, %v", v, ok)
		}
		return e.Set("a", "x")
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !ripple.SameValue(next, base) {
		t.Error("unchanged document should return current")
	}
}

func TestApplyEmptyPath(t *testing.T) {
	_, err := New().Apply(map[string]any{}, func(e ripple.Editor) error {
		return e.Set("", 1)
	})
	if !errors.Is(err, ripple.ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}

func TestApplyRejectsIndexPastEnd(t *testing.T) {
	base := map[string]any{"todos": []any{"milk"}, "meta": map[string]any{}}

	tests := []struct {
		path string
		ok   bool
	}{
		{"todos.1", true},
		{"todos.0", true},
		{"todos.-1", true},
		{"todos.2", false},
		{"todos.999999999", false},
		{"fresh.0", true},
		{"fresh.3", false},
		{"meta.7", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := New().Apply(base, func(e ripple.Editor) error {
				return e.Set(tt.path, "x")
			})
			if tt.ok && err != nil {
				t.Errorf("Set(%s): %v", tt.path, err)
			}
			if !tt.ok && !errors.Is(err, ripple.ErrInvalidPath) {
				t.Errorf("Set(%s) = %v, want ErrInvalidPath", tt.path, err)
			}
		})
	}
}

func TestTransformerWithComposite(t *testing.T) {
	c := ripple.NewObject(map[string]any{"count": 1.0, "label": "a"},
		ripple.WithTransformerLoader(func(ctx context.Context) (ripple.Transformer, error) {
			return New(), nil
		}))

	var onCount, onLabel int
	c.SubscribeSelect(func() { onCount++ }, func(v *ripple.Node) any { return v.Get("count") })
	c.SubscribeSelect(func() { onLabel++ }, func(v *ripple.Node) any { return v.Get("label") })

	err := c.Update(context.Background(), func(e ripple.Editor) error {
		v, _ := e.Get("count")
		return e.Set("count", v.(float64)+1)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if onCount != 1 || onLabel != 0 {
		t.Errorf("expected count=1 label=0, got count=%d label=%d", onCount, onLabel)
	}
	if got := c.Value().Get("count"); got != 2.0 {
		t.Errorf("expected 2, got %v", got)
	}
}

func TestQuery(t *testing.T) {
	c := ripple.NewObject(map[string]any{
		"todos": []any{
			map[string]any{"title": "a", "done": true},
			map[string]any{"title": "b", "done": false},
			map[string]any{"title": "c", "done": true},
		},
	})

	r, err := Query(c, "todos.#(done==true)#.title")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := r.Array()
	if len(got) != 2 || got[0].String() != "a" || got[1].String() != "c" {
		t.Errorf("unexpected query result %s", r.Raw)
	}

	r, err = Query(c.Value(), "todos.#")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if r.Int() != 3 {
		t.Errorf("expected 3 todos, got %d", r.Int())
	}
}

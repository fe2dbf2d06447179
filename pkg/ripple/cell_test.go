package ripple

import (
	"errors"
	"math"
	"sync"
	"testing"
)

// counter counts callback invocations.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestCellBasic(t *testing.T) {
	count := NewCell(0)

	if count.Get() != 0 {
		t.Errorf("expected initial value 0, got %d", count.Get())
	}

	count.Set(5)
	if count.Get() != 5 {
		t.Errorf("expected value 5, got %d", count.Get())
	}

	count.Update(func(n int) int { return n * 2 })
	if count.Get() != 10 {
		t.Errorf("expected value 10, got %d", count.Get())
	}

	if count.Peek() != count.Get() {
		t.Errorf("Peek and Get disagree: %d vs %d", count.Peek(), count.Get())
	}
}

func TestCellEqualSetSuppressesDispatch(t *testing.T) {
	c := NewCell(0)
	var calls counter
	c.Subscribe(calls.inc)

	c.Set(0)
	if calls.get() != 0 {
		t.Fatalf("equal Set should not notify, got %d calls", calls.get())
	}

	c.Set(1)
	if calls.get() != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls.get())
	}
}

func TestCellNaNSettles(t *testing.T) {
	c := NewCell(math.NaN())
	var calls counter
	c.Subscribe(calls.inc)

	c.Set(math.NaN())
	if calls.get() != 0 {
		t.Errorf("NaN should equal NaN, got %d calls", calls.get())
	}
}

func TestCellSubscribeOrder(t *testing.T) {
	c := NewCell("a")
	var order []int
	for i := 0; i < 4; i++ {
		i := i
		c.Subscribe(func() { order = append(order, i) })
	}

	c.Set("b")

	for i, got := range order {
		if got != i {
			t.Fatalf("expected registration order, got %v", order)
		}
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 callbacks, got %d", len(order))
	}
}

func TestCellDisposerIdempotent(t *testing.T) {
	c := NewCell(0)
	var a, b counter
	stopA := c.Subscribe(a.inc)
	c.Subscribe(b.inc)

	stopA()
	stopA()

	if c.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", c.SubscriberCount())
	}

	c.Set(1)
	if a.get() != 0 || b.get() != 1 {
		t.Errorf("expected a=0 b=1, got a=%d b=%d", a.get(), b.get())
	}
}

func TestCellSelectorGate(t *testing.T) {
	type user struct {
		Name string
		Age  int
	}
	c := NewCell(user{Name: "Rishi", Age: 30})

	var calls counter
	c.SubscribeSelect(calls.inc, func(u user) any { return u.Name })

	c.Set(user{Name: "Rishi", Age: 31})
	if calls.get() != 0 {
		t.Fatalf("age change should not fire name selector, got %d", calls.get())
	}

	c.Set(user{Name: "Rahul", Age: 31})
	if calls.get() != 1 {
		t.Fatalf("name change should fire once, got %d", calls.get())
	}
}

func TestCellSelectorCustomEqual(t *testing.T) {
	c := NewCell(10)
	var calls counter
	c.SubscribeSelect(calls.inc, func(n int) any { return n / 10 },
		WithEqual(func(prev, next any) bool { return prev.(int) == next.(int) }))

	c.Set(15)
	if calls.get() != 0 {
		t.Errorf("bucket unchanged, got %d calls", calls.get())
	}
	c.Set(25)
	if calls.get() != 1 {
		t.Errorf("bucket changed, expected 1 call, got %d", calls.get())
	}
}

func TestCellCustomEquals(t *testing.T) {
	type point struct{ X, Y int }
	c := NewCell(point{1, 1}).WithEquals(func(a, b point) bool { return a.X == b.X })

	var calls counter
	c.Subscribe(calls.inc)

	c.Set(point{1, 2})
	if calls.get() != 0 {
		t.Errorf("custom equality should suppress, got %d", calls.get())
	}
	if c.Get().Y != 1 {
		t.Errorf("suppressed set should not store, got %+v", c.Get())
	}
}

func TestCellSliceEquality(t *testing.T) {
	c := NewCell([]int{1, 2, 3})
	var calls counter
	c.Subscribe(calls.inc)

	c.Set([]int{1, 2, 3})
	if calls.get() != 0 {
		t.Errorf("deep-equal slice should not notify, got %d", calls.get())
	}

	c.Set([]int{1, 2, 4})
	if calls.get() != 1 {
		t.Errorf("expected 1 notification, got %d", calls.get())
	}
}

func TestCellReentrantWrite(t *testing.T) {
	c := NewCell(0)
	var seen []int
	c.Subscribe(func() {
		v := c.Get()
		seen = append(seen, v)
		if v < 3 {
			c.Set(v + 1)
		}
	})

	c.Set(1)

	if len(seen) != 3 || seen[2] != 3 {
		t.Errorf("expected reentrant dispatch to reach 3, got %v", seen)
	}
}

func TestCellUnsubscribeDuringDispatch(t *testing.T) {
	c := NewCell(0)
	var second counter
	var stopSecond Disposer
	c.Subscribe(func() { stopSecond() })
	stopSecond = c.Subscribe(second.inc)

	c.Set(1)
	if second.get() != 0 {
		t.Errorf("subscription disposed earlier in the pass should be skipped, got %d", second.get())
	}
}

func TestCellSetAny(t *testing.T) {
	c := NewCell(0)

	if err := c.SetAny(7); err != nil {
		t.Fatalf("SetAny(7): %v", err)
	}
	if c.Get() != 7 {
		t.Errorf("expected 7, got %d", c.Get())
	}

	// JSON numbers decode as float64.
	if err := c.SetAny(float64(9)); err != nil {
		t.Fatalf("SetAny(float64): %v", err)
	}
	if c.Get() != 9 {
		t.Errorf("expected 9, got %d", c.Get())
	}

	err := c.SetAny("nope")
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestCellConcurrentAccess(t *testing.T) {
	c := NewCell(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Update(func(n int) int { return n + 1 })
			_ = c.Peek()
		}()
	}
	wg.Wait()

	if c.Get() != 50 {
		t.Errorf("expected 50, got %d", c.Get())
	}
}

func TestNewSelectsVariant(t *testing.T) {
	tests := []struct {
		name    string
		initial any
		want    Kind
	}{
		{"int", 0, KindScalar},
		{"string", "x", KindScalar},
		{"nil", nil, KindScalar},
		{"typed map", map[string]int{"a": 1}, KindScalar},
		{"object", map[string]any{"a": 1}, KindComposite},
		{"array", []any{1, 2}, KindComposite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := New(tt.initial)
			if ref.Kind() != tt.want {
				t.Errorf("New(%v).Kind() = %v, want %v", tt.initial, ref.Kind(), tt.want)
			}
		})
	}
}

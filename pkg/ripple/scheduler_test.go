package ripple

import "testing"

func TestBatchCoalescesToFinalValue(t *testing.T) {
	c := NewCell(0)
	var seen []int
	c.Subscribe(func() { seen = append(seen, c.Get()) })

	c.Batch(func() {
		c.Set(1)
		c.Set(2)
		c.Set(3)
	})

	if len(seen) != 1 {
		t.Fatalf("expected 1 notification (batched), got %d", len(seen))
	}
	if seen[0] != 3 {
		t.Errorf("expected subscriber to observe 3, got %d", seen[0])
	}
}

func TestBatchSharedScheduler(t *testing.T) {
	sched := NewScheduler()
	a := NewCell(0, WithScheduler(sched))
	b := NewCell("", WithScheduler(sched))

	var order []string
	a.Subscribe(func() { order = append(order, "a") })
	b.Subscribe(func() { order = append(order, "b") })

	sched.Batch(func() {
		b.Set("x")
		a.Set(1)
		b.Set("y")
		if len(order) != 0 {
			t.Errorf("no notification expected inside batch, got %v", order)
		}
	})

	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("expected first-seen order [b a], got %v", order)
	}
}

func TestBatchNested(t *testing.T) {
	sched := NewScheduler()
	count := NewCell(0, WithScheduler(sched))
	var calls counter
	count.Subscribe(calls.inc)

	sched.Batch(func() {
		count.Set(1)

		sched.Batch(func() {
			count.Set(2)

			sched.Batch(func() {
				count.Set(3)
			})

			if calls.get() != 0 {
				t.Errorf("inner batch should not notify, got %d", calls.get())
			}
		})

		if calls.get() != 0 {
			t.Errorf("middle batch should not notify, got %d", calls.get())
		}
		if !sched.Batching() {
			t.Error("expected batch window to still be open")
		}
	})

	if calls.get() != 1 {
		t.Errorf("expected 1 notification after outer batch, got %d", calls.get())
	}
	if sched.Batching() {
		t.Error("expected batch window to be closed")
	}
}

func TestBatchNoNetChange(t *testing.T) {
	c := NewCell(0)
	var calls counter
	c.Subscribe(calls.inc)

	c.Batch(func() {
		c.Set(5)
		c.Set(0)
	})

	if calls.get() != 0 {
		t.Errorf("value returned to its start, selector should shield, got %d", calls.get())
	}
}

func TestBatchFlushesOnPanic(t *testing.T) {
	c := NewCell(0)
	var calls counter
	c.Subscribe(calls.inc)

	func() {
		defer func() { _ = recover() }()
		c.Batch(func() {
			c.Set(1)
			panic("boom")
		})
	}()

	if calls.get() != 1 {
		t.Errorf("expected pending notification to flush, got %d", calls.get())
	}
	if c.Scheduler().Batching() {
		t.Error("batch depth should be restored after panic")
	}
}

func TestBatchWriteDuringFlushRunsImmediately(t *testing.T) {
	sched := NewScheduler()
	src := NewCell(0, WithScheduler(sched))
	dst := NewCell(0, WithScheduler(sched))

	src.Subscribe(func() { dst.Set(src.Get() * 10) })
	var got int
	dst.Subscribe(func() { got = dst.Get() })

	sched.Batch(func() { src.Set(4) })

	if got != 40 {
		t.Errorf("expected derived write to dispatch after flush, got %d", got)
	}
}

func TestSchedulerNotifyListener(t *testing.T) {
	sched := NewScheduler()
	var calls counter
	l := NewListenerFunc(calls.inc)

	sched.Notify(l)
	if calls.get() != 1 {
		t.Fatalf("expected immediate notify, got %d", calls.get())
	}

	sched.BatchNamed("dedup", func() {
		sched.Notify(l)
		sched.Notify(l)
		sched.Notify(nil)
	})
	if calls.get() != 2 {
		t.Errorf("expected one deduplicated notify, got %d", calls.get()-1)
	}
}

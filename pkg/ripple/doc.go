// Package ripple provides fine-grained reactive state cells.
//
// A cell owns one value and an ordered list of subscriptions. Each
// subscription carries a projector; the callback only runs when the
// projected value changes, so subscribers are shielded from unrelated
// changes to the same cell.
//
// # Core Types
//
// Cell[T] holds a scalar value:
//
//	count := ripple.NewCell(0)
//	stop := count.Subscribe(func() { fmt.Println(count.Get()) })
//	count.Set(1) // prints 1
//	count.Set(1) // equal value, nothing runs
//	stop()
//
// Composite[R] holds an object (map[string]any) or array ([]any). Its value
// is exposed as a *Node, and writes through nodes notify the cell:
//
//	todos := ripple.NewObject(map[string]any{"title": "", "items": []any{}})
//	todos.SubscribeSelect(render, func(v *ripple.Node) any { return v.Get("title") })
//	todos.Value().Get("items").(*ripple.Node).Append("buy milk") // render does not run
//	todos.Value().Set("title", "Groceries")                     // render runs
//
// A projector that returns a node fires whenever anything below that node
// is written.
//
// # Batching
//
// A Scheduler coalesces notifications. Cells that should batch together
// share one scheduler:
//
//	sched := ripple.NewScheduler()
//	a := ripple.NewCell(0, ripple.WithScheduler(sched))
//	b := ripple.NewCell(0, ripple.WithScheduler(sched))
//	sched.Batch(func() {
//	    a.Set(1)
//	    a.Set(2)
//	    b.Set(3)
//	}) // each subscriber runs at most once, after the batch
//
// # Structural Updates
//
// Composite.Update builds a new value from a recipe through an injected
// Transformer (see packages draft and jsondraft) and performs a single Set.
//
// # Concurrency
//
// Dispatch is synchronous: Set, nested writes and Batch return after every
// affected subscriber ran. Internal state is mutex-protected and no lock is
// held while projectors or callbacks run, so a callback may write to the
// cell it observes. Guarding against notify loops is the caller's job.
package ripple

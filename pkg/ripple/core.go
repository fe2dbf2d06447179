package ripple

import (
	"sync"
	"sync/atomic"
)

// subscription is one observer's interest in a cell: a callback, a
// projection of the cell's value and the projection last delivered.
type subscription struct {
	callback func()

	// project applies the user's projector to the cell's current value.
	project func() any

	// equal overrides the default comparison when set.
	equal func(prev, next any) bool

	// mu protects last and lastRev.
	mu      sync.Mutex
	last    any
	lastRev uint64

	disposed atomic.Bool
}

// record stores v as the last delivered projection.
func (s *subscription) record(v any) {
	s.mu.Lock()
	s.last = v
	s.lastRev = revisionOf(v)
	s.mu.Unlock()
}

// advance compares next with the last delivered projection and records it
// when different. Returns true if the subscription should fire.
func (s *subscription) advance(next any) bool {
	nextRev := revisionOf(next)

	s.mu.Lock()
	defer s.mu.Unlock()

	var same bool
	if s.equal != nil {
		same = s.equal(s.last, next)
	} else {
		same = projectedEqual(s.last, s.lastRev, next, nextRev)
	}
	if same {
		return false
	}
	s.last = next
	s.lastRev = nextRev
	return true
}

// revisionOf returns the subtree revision of a projected node, or 0.
func revisionOf(v any) uint64 {
	if n, ok := v.(*Node); ok && n != nil {
		return n.Revision()
	}
	return 0
}

// projectedEqual treats a projected node as unchanged only if it is the
// same node and nothing in its subtree was written since.
func projectedEqual(prev any, prevRev uint64, next any, nextRev uint64) bool {
	if pn, ok := prev.(*Node); ok {
		nn, ok := next.(*Node)
		return ok && pn == nn && prevRev == nextRev
	}
	return sameValue(prev, next)
}

// core provides type-erased subscription management and dispatch.
// It is embedded in Cell[T] and Composite[R].
type core struct {
	id       uint64
	kind     Kind
	name     string
	sched    *Scheduler
	observer Observer

	// subs are kept in registration order; dispatch order follows it.
	subs []*subscription

	// subMu protects the subs slice.
	subMu sync.Mutex
}

func newCore(kind Kind, o options) core {
	return core{
		id:       nextID(),
		kind:     kind,
		name:     o.name,
		sched:    o.scheduler,
		observer: o.observer,
	}
}

// ID returns the unique identifier for this cell.
func (c *core) ID() uint64 {
	return c.id
}

// Name returns the label given with WithName, or "".
func (c *core) Name() string {
	return c.name
}

// Kind returns the payload kind chosen at construction.
func (c *core) Kind() Kind {
	return c.kind
}

// Scheduler returns the scheduler this cell notifies through.
func (c *core) Scheduler() *Scheduler {
	return c.sched
}

// Batch runs fn inside a batch on the cell's scheduler.
func (c *core) Batch(fn func()) {
	c.sched.Batch(fn)
}

// MarkDirty runs a dispatch pass. Implements Listener for the scheduler.
func (c *core) MarkDirty() {
	c.dispatch()
}

// notify reports a committed change and routes the dispatch through the
// scheduler, which defers it while a batch is open.
func (c *core) notify() {
	c.observer.Committed(c.kind)
	c.sched.Notify(c)
}

// subscribe registers a subscription and returns its disposer.
// The projection is evaluated once now to seed lastProjected.
func (c *core) subscribe(callback func(), project func() any, opts []SubscribeOption) Disposer {
	sub := &subscription{
		callback: callback,
		project:  project,
	}
	for _, opt := range opts {
		opt(sub)
	}
	sub.record(project())

	c.subMu.Lock()
	c.subs = append(c.subs, sub)
	c.subMu.Unlock()

	return func() {
		if !sub.disposed.CompareAndSwap(false, true) {
			return
		}
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, existing := range c.subs {
			if existing == sub {
				// Preserve registration order for the remaining subscribers.
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (c *core) SubscriberCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}

// dispatch runs one synchronous pass over a snapshot of the subscriptions.
// No lock is held while projectors or callbacks run, so a callback may
// subscribe, unsubscribe or write to this cell; a write re-enters dispatch.
// Avoiding unbounded notify loops is the caller's responsibility.
func (c *core) dispatch() {
	c.subMu.Lock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	fired, skipped := 0, 0
	for _, sub := range subs {
		// Disposed earlier in this pass.
		if sub.disposed.Load() {
			continue
		}
		if !sub.advance(sub.project()) {
			skipped++
			continue
		}
		fired++
		sub.callback()
	}
	c.observer.Dispatched(c.kind, fired, skipped)
}

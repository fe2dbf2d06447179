package ripple

import (
	"log/slog"
	"sync"
)

// Scheduler is the batching coordinator for one reactive graph.
//
// Outside a batch, Notify runs a listener immediately. Inside a batch the
// listener is queued, deduplicated by ID, and run once when the outermost
// Batch call returns. Cells that should batch together must share a
// Scheduler (see WithScheduler).
type Scheduler struct {
	// mu protects depth, pending and seen.
	mu sync.Mutex

	// depth tracks nested Batch() calls.
	// When > 0, notifications are queued instead of firing immediately.
	depth int

	// pending accumulates listeners to notify when the batch completes,
	// in first-seen order.
	pending []Listener

	// seen deduplicates pending by listener ID.
	seen map[uint64]struct{}

	logger   *slog.Logger
	observer Observer
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger used for named batches.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSchedulerObserver sets the observer notified about deferrals and flushes.
func WithSchedulerObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewScheduler creates a scheduler with no batch open.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		seen:     make(map[uint64]struct{}),
		logger:   slog.Default().With("component", "ripple.scheduler"),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Batch groups multiple updates into a single notification phase.
// All notifications raised while fn runs are collected, deduplicated, and
// delivered once when the batch completes, so subscribers observe the final
// values.
//
// Batches can be nested. Notifications only fire when the outermost batch
// completes. The flush also runs if fn panics.
//
// Example:
//
//	sched.Batch(func() {
//	    firstName.Set("John")
//	    lastName.Set("Doe")
//	    age.Set(30)
//	})
func (s *Scheduler) Batch(fn func()) {
	s.mu.Lock()
	s.depth++
	s.mu.Unlock()

	defer func() {
		if s.exit() {
			s.flush()
		}
	}()

	fn()
}

// BatchNamed runs fn as a named batch. Boundaries are logged at debug level.
func (s *Scheduler) BatchNamed(name string, fn func()) {
	s.logger.Debug("batch start", "name", name)
	defer s.logger.Debug("batch end", "name", name)
	s.Batch(fn)
}

// Batching reports whether a batch window is open.
func (s *Scheduler) Batching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth > 0
}

// Notify runs l now, or queues it when a batch is open.
func (s *Scheduler) Notify(l Listener) {
	if l == nil {
		return
	}

	s.mu.Lock()
	if s.depth == 0 {
		s.mu.Unlock()
		l.MarkDirty()
		return
	}

	if _, ok := s.seen[l.ID()]; !ok {
		s.seen[l.ID()] = struct{}{}
		s.pending = append(s.pending, l)
	}
	s.mu.Unlock()
	s.observer.Deferred()
}

// exit decreases the batch depth by 1.
// Returns true if the depth reached 0 (batch complete).
func (s *Scheduler) exit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth--
	return s.depth == 0
}

// flush drains the pending queue and notifies every listener once.
// Notifications raised by those listeners run immediately, since the
// batch window is already closed.
func (s *Scheduler) flush() {
	s.mu.Lock()
	updates := s.pending
	s.pending = nil
	if len(updates) > 0 {
		s.seen = make(map[uint64]struct{})
	}
	s.mu.Unlock()

	if len(updates) == 0 {
		return
	}

	for _, l := range updates {
		l.MarkDirty()
	}
	s.observer.Flushed(len(updates))
}

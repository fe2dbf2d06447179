// Package events wires named events to handlers that report their progress
// through ripple cells.
//
// A handler registered with On may be given a loading cell and an error
// cell. Before each invocation loading is set to true and error to nil;
// when the handler returns, loading goes back to false and a returned error
// (or a recovered panic) is written into the error cell. Failures never
// propagate to Emit, so one handler cannot abort its siblings.
//
//	loading := ripple.NewCell(false)
//	failure := ripple.NewCell[error](nil)
//
//	bus := events.NewBus()
//	off := bus.On("todos:fetch", fetchTodos,
//	    events.WithLoading(loading),
//	    events.WithError(failure),
//	)
//	defer off()
//
//	bus.Emit(ctx, "todos:fetch", nil)
//
// Every invocation runs inside an OpenTelemetry span taken from the global
// tracer provider.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/ripple/pkg/ripple"
)

// ErrHandlerPanic wraps a value recovered from a panicking handler.
var ErrHandlerPanic = errors.New("events: handler panicked")

const defaultTracerName = "ripple/events"

// Handler handles one emitted event. ctx is cancelled when the emitting
// context is, or when the registration is disposed.
type Handler func(ctx context.Context, payload any) error

// Bus routes named events to registered handlers. The zero value is not
// usable; create one with NewBus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*registration

	logger *slog.Logger
	tracer trace.Tracer
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTracer sets the tracer used for handler spans.
func WithTracer(tracer trace.Tracer) BusOption {
	return func(b *Bus) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[string][]*registration),
		logger:   slog.Default().With("component", "ripple.events"),
		tracer:   otel.Tracer(defaultTracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// registration is one On call.
type registration struct {
	event   string
	handler Handler
	loading ripple.Settable[bool]
	failure ripple.Settable[error]

	// ctx is cancelled by the disposer.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a single handler registration.
type Option func(*registration)

// WithLoading sets the cell toggled around each invocation.
func WithLoading(s ripple.Settable[bool]) Option {
	return func(r *registration) {
		r.loading = s
	}
}

// WithError sets the cell that receives handler failures. It is reset to
// nil before each invocation.
func WithError(s ripple.Settable[error]) Option {
	return func(r *registration) {
		r.failure = s
	}
}

// WithStatus derives the loading and error cells from an object cell. A
// boolean "loading" field becomes the loading cell; an "error" field, if
// present, receives the failure message as a string, or nil.
func WithStatus(c *ripple.Composite[map[string]any]) Option {
	return func(r *registration) {
		root := c.Peek()
		if v, ok := root.Lookup("loading"); ok {
			if _, isBool := v.(bool); isBool {
				r.loading = ripple.Field[bool](c, "loading")
			}
		}
		if root.Has("error") {
			r.failure = &statusError{cell: c}
		}
	}
}

// statusError stores errors in an object field as their message.
type statusError struct {
	cell *ripple.Composite[map[string]any]
}

func (s *statusError) Get() error {
	if msg, ok := s.cell.Value().Get("error").(string); ok {
		return errors.New(msg)
	}
	return nil
}

func (s *statusError) Set(err error) {
	if err == nil {
		s.cell.Value().Set("error", nil)
		return
	}
	s.cell.Value().Set("error", err.Error())
}

// On registers handler for event. The returned disposer unregisters it and
// cancels the context of any invocation still running. Disposing twice is a
// no-op.
func (b *Bus) On(event string, handler Handler, opts ...Option) ripple.Disposer {
	ctx, cancel := context.WithCancel(context.Background())
	reg := &registration{
		event:   event,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(reg)
	}

	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], reg)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			reg.cancel()
			b.remove(reg)
		})
	}
}

func (b *Bus) remove(reg *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[reg.event]
	for i, r := range regs {
		if r == reg {
			b.handlers[reg.event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(b.handlers[reg.event]) == 0 {
		delete(b.handlers, reg.event)
	}
}

// Handlers returns the number of handlers registered for event.
func (b *Bus) Handlers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

// snapshot copies the handler list so handlers may register or dispose
// while an emit is in progress.
func (b *Bus) snapshot(event string) []*registration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	regs := make([]*registration, len(b.handlers[event]))
	copy(regs, b.handlers[event])
	return regs
}

// Emit runs every handler registered for event, in registration order, and
// returns the number invoked. Handlers disposed before their turn are
// skipped.
func (b *Bus) Emit(ctx context.Context, event string, payload any) int {
	n := 0
	for _, reg := range b.snapshot(event) {
		if reg.ctx.Err() != nil {
			continue
		}
		b.invoke(ctx, reg, payload)
		n++
	}
	return n
}

// EmitAsync runs every handler for event on its own goroutine. The
// returned channel is closed once all of them have settled.
func (b *Bus) EmitAsync(ctx context.Context, event string, payload any) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, reg := range b.snapshot(event) {
		if reg.ctx.Err() != nil {
			continue
		}
		wg.Add(1)
		go func(reg *registration) {
			defer wg.Done()
			b.invoke(ctx, reg, payload)
		}(reg)
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// invoke runs one handler with the loading/error protocol.
func (b *Bus) invoke(parent context.Context, reg *registration, payload any) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(reg.ctx, cancel)
	defer stop()

	ctx, span := b.tracer.Start(ctx, "ripple.event "+reg.event,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("ripple.event", reg.event)),
	)
	defer span.End()

	if reg.loading != nil {
		reg.loading.Set(true)
	}
	if reg.failure != nil {
		reg.failure.Set(nil)
	}

	err := b.call(ctx, reg, payload)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Warn("event handler failed", "event", reg.event, "error", err)
		if reg.failure != nil {
			reg.failure.Set(err)
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if reg.loading != nil {
		reg.loading.Set(false)
	}
}

// call runs the handler, converting a panic into an error.
func (b *Bus) call(ctx context.Context, reg *registration, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return reg.handler(ctx, payload)
}

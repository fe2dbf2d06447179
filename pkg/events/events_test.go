package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/ripple/pkg/ripple"
)

// recordingTracer captures span outcomes.
type recordingTracer struct {
	noop.Tracer

	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	s := &recordingSpan{name: name}
	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordingSpan struct {
	noop.Span

	name  string
	code  codes.Code
	errs  []error
	ended bool
}

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }
func (s *recordingSpan) SetStatus(code codes.Code, _ string)           { s.code = code }
func (s *recordingSpan) End(...trace.SpanEndOption)                    { s.ended = true }

func TestEmitTogglesLoading(t *testing.T) {
	bus := NewBus()
	loading := ripple.NewCell(false)

	var history []bool
	loading.Subscribe(func() { history = append(history, loading.Get()) })

	var sawLoading bool
	bus.On("fetch", func(ctx context.Context, payload any) error {
		sawLoading = loading.Get()
		return nil
	}, WithLoading(loading))

	if n := bus.Emit(context.Background(), "fetch", nil); n != 1 {
		t.Fatalf("Emit invoked %d handlers, want 1", n)
	}
	if !sawLoading {
		t.Error("loading should be true while the handler runs")
	}
	if loading.Get() {
		t.Error("loading should be false after the handler returns")
	}
	if len(history) != 2 || !history[0] || history[1] {
		t.Errorf("unexpected loading history %v", history)
	}
}

func TestHandlerErrorLandsInErrorCell(t *testing.T) {
	tracer := &recordingTracer{}
	bus := NewBus(WithTracer(tracer))
	loading := ripple.NewCell(false)
	failure := ripple.NewCell[error](errors.New("stale"))
	boom := errors.New("boom")

	siblingRan := false
	bus.On("save", func(ctx context.Context, payload any) error {
		if failure.Get() != nil {
			t.Error("error should be reset before the handler runs")
		}
		return boom
	}, WithLoading(loading), WithError(failure))
	bus.On("save", func(ctx context.Context, payload any) error {
		siblingRan = true
		return nil
	})

	if n := bus.Emit(context.Background(), "save", nil); n != 2 {
		t.Fatalf("Emit invoked %d handlers, want 2", n)
	}
	if !errors.Is(failure.Get(), boom) {
		t.Errorf("expected boom in error cell, got %v", failure.Get())
	}
	if loading.Get() {
		t.Error("loading should return to false after a failure")
	}
	if !siblingRan {
		t.Error("a failing handler must not stop its siblings")
	}

	if len(tracer.spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(tracer.spans))
	}
	first := tracer.spans[0]
	if first.name != "ripple.event save" || first.code != codes.Error || len(first.errs) != 1 || !first.ended {
		t.Errorf("unexpected failing span %+v", first)
	}
	if tracer.spans[1].code != codes.Ok {
		t.Errorf("expected Ok status on the second span, got %v", tracer.spans[1].code)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := NewBus()
	failure := ripple.NewCell[error](nil)

	bus.On("crash", func(ctx context.Context, payload any) error {
		panic("kaboom")
	}, WithError(failure))

	bus.Emit(context.Background(), "crash", nil)

	if !errors.Is(failure.Get(), ErrHandlerPanic) {
		t.Errorf("expected ErrHandlerPanic, got %v", failure.Get())
	}
}

func TestWithStatusObject(t *testing.T) {
	bus := NewBus()
	store := ripple.NewObject(map[string]any{
		"todos":   []any{},
		"loading": false,
		"error":   nil,
	})

	var loadingFires int
	store.SubscribeSelect(func() { loadingFires++ }, func(v *ripple.Node) any { return v.Get("loading") })

	bus.On("fetch", func(ctx context.Context, payload any) error {
		if store.Value().Get("loading") != true {
			t.Error("loading field should be true during the handler")
		}
		return errors.New("HTTP 500")
	}, WithStatus(store))

	bus.Emit(context.Background(), "fetch", nil)

	if got := store.Value().Get("error"); got != "HTTP 500" {
		t.Errorf("expected error field to hold the message, got %v", got)
	}
	if store.Value().Get("loading") != false {
		t.Error("loading field should be false afterwards")
	}
	if loadingFires != 2 {
		t.Errorf("expected loading selector to fire twice, got %d", loadingFires)
	}
}

func TestWithStatusIgnoresMissingFields(t *testing.T) {
	bus := NewBus()
	store := ripple.NewObject(map[string]any{"loading": "no"})

	bus.On("x", func(ctx context.Context, payload any) error { return errors.New("x") }, WithStatus(store))
	bus.Emit(context.Background(), "x", nil)

	if store.Value().Has("error") {
		t.Error("an absent error field should not be created")
	}
	if store.Value().Get("loading") != "no" {
		t.Error("a non-boolean loading field should be left alone")
	}
}

func TestDisposeCancelsRunningHandler(t *testing.T) {
	bus := NewBus()
	started := make(chan struct{})
	cancelled := make(chan struct{})

	off := bus.On("long", func(ctx context.Context, payload any) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	done := bus.EmitAsync(context.Background(), "long", nil)
	<-started
	off()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled by the disposer")
	}
	<-done

	if n := bus.Emit(context.Background(), "long", nil); n != 0 {
		t.Errorf("disposed handler should not run, got %d", n)
	}
	off()
}

func TestDisposeDuringEmitSkipsLaterHandler(t *testing.T) {
	bus := NewBus()
	var offSecond ripple.Disposer
	secondRan := false

	bus.On("e", func(ctx context.Context, payload any) error {
		offSecond()
		return nil
	})
	offSecond = bus.On("e", func(ctx context.Context, payload any) error {
		secondRan = true
		return nil
	})

	if n := bus.Emit(context.Background(), "e", nil); n != 1 {
		t.Errorf("expected 1 invocation, got %d", n)
	}
	if secondRan {
		t.Error("handler disposed mid-emit should be skipped")
	}
	if bus.Handlers("e") != 1 {
		t.Errorf("expected 1 remaining handler, got %d", bus.Handlers("e"))
	}
}

func TestPayloadAndEmitContext(t *testing.T) {
	bus := NewBus()
	type key struct{}

	var got any
	bus.On("p", func(ctx context.Context, payload any) error {
		if ctx.Value(key{}) != "v" {
			t.Error("handler context should derive from the emit context")
		}
		got = payload
		return nil
	})

	ctx := context.WithValue(context.Background(), key{}, "v")
	bus.Emit(ctx, "p", 42)
	if got != 42 {
		t.Errorf("expected payload 42, got %v", got)
	}
	if n := bus.Emit(ctx, "unknown", nil); n != 0 {
		t.Errorf("unknown event should invoke nothing, got %d", n)
	}
}

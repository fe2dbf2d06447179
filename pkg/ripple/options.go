package ripple

// Option is a functional option for configuring cells.
type Option func(*options)

// options holds configuration shared by Cell and Composite.
type options struct {
	scheduler   *Scheduler
	observer    Observer
	name        string
	transformer Transformer
	loader      TransformerLoader
}

// WithScheduler makes the cell notify through s. Cells that share a
// scheduler batch together. Without this option every cell gets a private
// scheduler.
func WithScheduler(s *Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithObserver attaches an instrumentation observer to the cell.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithName labels the cell. The name is informational; the inspector uses
// it as the default registration key.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithTransformer injects the structural transformer used by
// Composite.Update. It has no effect on scalar cells.
func WithTransformer(t Transformer) Option {
	return func(o *options) {
		o.transformer = t
	}
}

// WithTransformerLoader injects a loader that resolves the transformer on
// the first Update. A successful result is cached for the life of the cell;
// a failed load is retried on the next Update.
func WithTransformerLoader(fn TransformerLoader) Option {
	return func(o *options) {
		o.loader = fn
	}
}

// applyOptions applies the given options and fills in defaults.
func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.scheduler == nil {
		o.scheduler = NewScheduler(WithSchedulerObserver(o.observer))
	}
	return o
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscription)

// WithEqual replaces the identity/value comparison used to decide whether
// a projected value changed.
func WithEqual(eq func(prev, next any) bool) SubscribeOption {
	return func(s *subscription) {
		s.equal = eq
	}
}

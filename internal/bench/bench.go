package bench

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vango-dev/ripple/pkg/draft"
	"github.com/vango-dev/ripple/pkg/ripple"
)

// Options configures a benchmark run.
type Options struct {
	// Projects is the number of projects in the store, and the number of
	// views subscribed to it.
	Projects int

	// Subtasks is the number of subtasks under each project's task.
	Subtasks int

	// Rounds is how many times each scenario runs on a fresh store.
	Rounds int

	// Observer receives instrumentation from every cell and scheduler the
	// harness creates. Optional.
	Observer ripple.Observer

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// Result is the outcome of one scenario across all rounds.
type Result struct {
	Name   string        `json:"name"`
	Rounds int           `json:"rounds"`
	Median time.Duration `json:"median"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`

	// Fired is the number of subscriber callbacks counted in the last round.
	Fired int `json:"fired"`

	// Expected is the callback count the scenario asserts.
	Expected int `json:"expected"`

	// Failure describes the first failed round, if any.
	Failure string `json:"failure,omitempty"`
}

// OK reports whether every round met its expectation.
func (r Result) OK() bool {
	return r.Failure == ""
}

// Run executes the named scenarios, or all of them when names is empty.
// A scenario whose callback count differs from its expectation is reported
// in Result.Failure; Run itself only fails on unknown names or a cancelled
// context.
func Run(ctx context.Context, opts Options, names ...string) ([]Result, error) {
	opts = withDefaults(opts)
	logger := opts.Logger.With("component", "bench")

	selected, err := selectScenarios(names)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(selected))
	for _, sc := range selected {
		res := Result{Name: sc.name, Rounds: opts.Rounds}
		times := make([]time.Duration, 0, opts.Rounds)

		for round := 0; round < opts.Rounds; round++ {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			h := newHarness(ctx, opts)
			fired, expected, err := sc.run(h)
			h.close()

			times = append(times, h.elapsed)
			res.Fired, res.Expected = fired, expected
			if err == nil && fired != expected {
				err = fmt.Errorf("%d callbacks, want %d", fired, expected)
			}
			if err != nil && res.Failure == "" {
				res.Failure = fmt.Sprintf("round %d: %v", round+1, err)
			}
			logger.Debug("round complete", "scenario", sc.name, "round", round+1, "elapsed", h.elapsed, "fired", fired)
		}

		res.Median, res.Min, res.Max = summarize(times)
		if res.OK() {
			logger.Info("scenario complete", "scenario", sc.name, "median", res.Median, "fired", res.Fired)
		} else {
			logger.Warn("scenario failed", "scenario", sc.name, "failure", res.Failure)
		}
		results = append(results, res)
	}
	return results, nil
}

func withDefaults(opts Options) Options {
	if opts.Projects <= 0 {
		opts.Projects = 1000
	}
	if opts.Subtasks < 0 {
		opts.Subtasks = 0
	}
	if opts.Rounds <= 0 {
		opts.Rounds = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

func summarize(times []time.Duration) (median, min, max time.Duration) {
	if len(times) == 0 {
		return 0, 0, 0
	}
	sorted := append([]time.Duration(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2], sorted[0], sorted[len(sorted)-1]
}

// GenerateProjects builds count projects, each with one task holding
// subtasks subtasks. Every call returns fresh containers.
func GenerateProjects(count, subtasks int) []any {
	projects := make([]any, count)
	for i := range projects {
		subs := make([]any, subtasks)
		for j := range subs {
			subs[j] = map[string]any{
				"id":    j + 1,
				"title": fmt.Sprintf("Subtask %d", j+1),
				"done":  false,
			}
		}
		projects[i] = map[string]any{
			"id":   i + 1,
			"name": fmt.Sprintf("Project %d", i+1),
			"tasks": []any{
				map[string]any{
					"id":        1,
					"title":     fmt.Sprintf("Initial Task %d", i+1),
					"completed": false,
					"subtasks":  subs,
				},
			},
		}
	}
	return projects
}

// harness is one round's store: a projects array cell and one view per
// project, each re-rendering only when its own project changes.
type harness struct {
	ctx     context.Context
	opts    Options
	sched   *ripple.Scheduler
	store   *ripple.Composite[[]any]
	views   []*view
	elapsed time.Duration
}

type view struct {
	renders int
	dispose ripple.Disposer
}

func newHarness(ctx context.Context, opts Options) *harness {
	schedOpts := []ripple.SchedulerOption{ripple.WithSchedulerLogger(opts.Logger)}
	cellOpts := []ripple.Option{ripple.WithName("projects"), ripple.WithTransformer(draft.New())}
	if opts.Observer != nil {
		schedOpts = append(schedOpts, ripple.WithSchedulerObserver(opts.Observer))
		cellOpts = append(cellOpts, ripple.WithObserver(opts.Observer))
	}
	sched := ripple.NewScheduler(schedOpts...)
	cellOpts = append(cellOpts, ripple.WithScheduler(sched))

	h := &harness{
		ctx:   ctx,
		opts:  opts,
		sched: sched,
		store: ripple.NewArray(GenerateProjects(opts.Projects, opts.Subtasks), cellOpts...),
	}
	h.views = make([]*view, opts.Projects)
	for i := range h.views {
		v := &view{}
		v.dispose = h.store.SubscribeSelect(func() { v.renders++ }, project(i))
		h.views[i] = v
	}
	return h
}

// project selects the i-th project node.
func project(i int) func(*ripple.Node) any {
	return func(n *ripple.Node) any {
		return n.Index(i)
	}
}

func (h *harness) close() {
	for _, v := range h.views {
		v.dispose()
	}
}

// measure adds fn's wall time to the round's elapsed time.
func (h *harness) measure(fn func() error) error {
	start := time.Now()
	err := fn()
	h.elapsed += time.Since(start)
	return err
}

// renders returns the total view callbacks since the round started.
func (h *harness) renders() int {
	total := 0
	for _, v := range h.views {
		total += v.renders
	}
	return total
}

// node returns the i-th project as a node.
func (h *harness) node(i int) (*ripple.Node, error) {
	n, ok := h.store.Value().Index(i).(*ripple.Node)
	if !ok {
		return nil, fmt.Errorf("project %d is not a container", i)
	}
	return n, nil
}

func (h *harness) update(recipe ripple.Recipe) error {
	return h.store.Update(h.ctx, recipe)
}

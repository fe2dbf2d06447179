package bench

import (
	"fmt"
	"sort"
	"time"

	"github.com/vango-dev/ripple/pkg/ripple"
)

// scenario returns the callbacks counted and the count it expects.
type scenario struct {
	name string
	desc string
	run  func(h *harness) (fired, expected int, err error)
}

var scenarios = []scenario{
	{"initial-load", "replace the store with a freshly generated list", initialLoad},
	{"single-update", "rename one project in place", singleUpdate},
	{"batch-updates", "rename 100 projects in place inside one batch", batchUpdates},
	{"list-replace", "replace the store with a reversed list", listReplace},
	{"deep-mutation", "toggle one subtask through Update", deepMutation},
	{"massive-batch", "rename every project ten times inside one batch", massiveBatch},
	{"deep-nested", "toggle every subtask of one project by path", deepNested},
	{"rapid-updates", "ten consecutive Updates renaming every project", rapidUpdates},
	{"large-dataset", "replace the store with a ten times larger list", largeDataset},
	{"rerender-top-level", "rename one project through Update", rerenderTopLevel},
	{"rerender-nested", "complete one task through Update", rerenderNested},
	{"rerender-noop", "Update that writes the current value", rerenderNoop},
	{"subscription-latency", "time from write to callback", subscriptionLatency},
	{"unsubscription-leak", "subscribe and dispose 1000 listeners, then write", unsubscriptionLeak},
	{"selector-efficiency", "name selectors ignore a nested write", selectorEfficiency},
}

// Scenario describes one benchmark scenario.
type Scenario struct {
	Name        string
	Description string
}

// Scenarios lists the available scenarios in run order.
func Scenarios() []Scenario {
	out := make([]Scenario, len(scenarios))
	for i, sc := range scenarios {
		out[i] = Scenario{Name: sc.name, Description: sc.desc}
	}
	return out
}

func selectScenarios(names []string) ([]scenario, error) {
	if len(names) == 0 {
		return scenarios, nil
	}
	byName := make(map[string]scenario, len(scenarios))
	for _, sc := range scenarios {
		byName[sc.name] = sc
	}
	out := make([]scenario, 0, len(names))
	var unknown []string
	for _, name := range names {
		sc, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, sc)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown scenario(s): %v", unknown)
	}
	return out, nil
}

func initialLoad(h *harness) (int, int, error) {
	next := GenerateProjects(h.opts.Projects, h.opts.Subtasks)
	h.measure(func() error {
		h.store.Set(next)
		return nil
	})
	return h.renders(), h.opts.Projects, nil
}

func singleUpdate(h *harness) (int, int, error) {
	p, err := h.node(0)
	if err != nil {
		return 0, 0, err
	}
	h.measure(func() error {
		p.Set("name", "Updated Project")
		return nil
	})
	return h.renders(), 1, nil
}

func batchUpdates(h *harness) (int, int, error) {
	n := min(100, h.opts.Projects)
	nodes := make([]*ripple.Node, n)
	for i := range nodes {
		p, err := h.node(i)
		if err != nil {
			return 0, 0, err
		}
		nodes[i] = p
	}
	h.measure(func() error {
		h.sched.Batch(func() {
			for i, p := range nodes {
				p.Set("name", fmt.Sprintf("Batch Update %d", i))
			}
		})
		return nil
	})
	return h.renders(), n, nil
}

func listReplace(h *harness) (int, int, error) {
	next := GenerateProjects(h.opts.Projects, h.opts.Subtasks)
	for i, j := 0, len(next)-1; i < j; i, j = i+1, j-1 {
		next[i], next[j] = next[j], next[i]
	}
	h.measure(func() error {
		h.store.Set(next)
		return nil
	})
	return h.renders(), h.opts.Projects, nil
}

func deepMutation(h *harness) (int, int, error) {
	if h.opts.Subtasks == 0 {
		return 0, 0, nil
	}
	err := h.measure(func() error {
		return h.update(func(e ripple.Editor) error {
			return e.Set("0.tasks.0.subtasks.0.done", true)
		})
	})
	if err != nil {
		return 0, 0, err
	}
	if v, _ := h.store.GetPath("0.tasks.0.subtasks.0.done"); v != true {
		return 0, 0, fmt.Errorf("subtask not toggled: %v", v)
	}
	return h.renders(), 1, nil
}

func massiveBatch(h *harness) (int, int, error) {
	nodes := make([]*ripple.Node, h.opts.Projects)
	for i := range nodes {
		p, err := h.node(i)
		if err != nil {
			return 0, 0, err
		}
		nodes[i] = p
	}
	h.measure(func() error {
		h.store.Batch(func() {
			for round := 0; round < 10; round++ {
				for i, p := range nodes {
					p.Set("name", fmt.Sprintf("Heavy %d-%d", round, i))
				}
			}
		})
		return nil
	})
	return h.renders(), h.opts.Projects, nil
}

func deepNested(h *harness) (int, int, error) {
	err := h.measure(func() error {
		for j := 0; j < h.opts.Subtasks; j++ {
			if err := h.store.SetPath(fmt.Sprintf("0.tasks.0.subtasks.%d.done", j), true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return h.renders(), h.opts.Subtasks, nil
}

func rapidUpdates(h *harness) (int, int, error) {
	const rounds = 10
	err := h.measure(func() error {
		for round := 0; round < rounds; round++ {
			err := h.update(func(e ripple.Editor) error {
				for i := 0; i < h.opts.Projects; i++ {
					if err := e.Set(fmt.Sprintf("%d.name", i), fmt.Sprintf("Rapid %d-%d", round, i)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return h.renders(), rounds * h.opts.Projects, nil
}

func largeDataset(h *harness) (int, int, error) {
	next := GenerateProjects(10*h.opts.Projects, h.opts.Subtasks)
	h.measure(func() error {
		h.store.Set(next)
		return nil
	})
	if n := h.store.Value().Len(); n != len(next) {
		return 0, 0, fmt.Errorf("store has %d projects, want %d", n, len(next))
	}
	return h.renders(), h.opts.Projects, nil
}

func rerenderTopLevel(h *harness) (int, int, error) {
	err := h.measure(func() error {
		return h.update(func(e ripple.Editor) error {
			return e.Set("0.name", "Top Level Update")
		})
	})
	if err != nil {
		return 0, 0, err
	}
	return h.renders(), 1, nil
}

func rerenderNested(h *harness) (int, int, error) {
	err := h.measure(func() error {
		return h.update(func(e ripple.Editor) error {
			return e.Set("0.tasks.0.completed", true)
		})
	})
	if err != nil {
		return 0, 0, err
	}
	return h.renders(), 1, nil
}

func rerenderNoop(h *harness) (int, int, error) {
	current, _ := h.store.GetPath("0.name")
	err := h.measure(func() error {
		return h.update(func(e ripple.Editor) error {
			return e.Set("0.name", current)
		})
	})
	if err != nil {
		return 0, 0, err
	}
	return h.renders(), 0, nil
}

func subscriptionLatency(h *harness) (int, int, error) {
	var start, got time.Time
	dispose := h.store.Subscribe(func() { got = time.Now() })
	defer dispose()

	err := h.measure(func() error {
		start = time.Now()
		return h.update(func(e ripple.Editor) error {
			return e.Set("0.name", "Subscription Test")
		})
	})
	if err != nil {
		return 0, 0, err
	}
	if got.IsZero() {
		return 0, 0, fmt.Errorf("subscriber was not called")
	}
	// Report the write-to-callback delay rather than the full Update.
	h.elapsed = got.Sub(start)
	return h.renders(), 1, nil
}

func unsubscriptionLeak(h *harness) (int, int, error) {
	const listeners = 1000
	before := h.store.SubscriberCount()
	leaked := 0

	err := h.measure(func() error {
		for i := 0; i < listeners; i++ {
			dispose := h.store.Subscribe(func() { leaked++ })
			dispose()
		}
		return h.update(func(e ripple.Editor) error {
			return e.Set("0.name", "After Unsubscribe")
		})
	})
	if err != nil {
		return 0, 0, err
	}
	if after := h.store.SubscriberCount(); after != before {
		return 0, 0, fmt.Errorf("%d subscribers after dispose, want %d", after, before)
	}
	return leaked, 0, nil
}

func selectorEfficiency(h *harness) (int, int, error) {
	fired := 0
	disposers := make([]ripple.Disposer, h.opts.Projects)
	for i := range disposers {
		disposers[i] = h.store.SubscribeSelect(func() { fired++ }, func(n *ripple.Node) any {
			p, ok := n.Index(i).(*ripple.Node)
			if !ok {
				return nil
			}
			return p.Get("name")
		})
	}
	defer func() {
		for _, d := range disposers {
			d()
		}
	}()

	err := h.measure(func() error {
		return h.update(func(e ripple.Editor) error {
			return e.Set("0.tasks.0.completed", true)
		})
	})
	if err != nil {
		return 0, 0, err
	}
	if views := h.renders(); views != 1 {
		return 0, 0, fmt.Errorf("%d project views fired, want 1", views)
	}
	return fired, 0, nil
}

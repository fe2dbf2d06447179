package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/ripple/internal/bench"
	"github.com/vango-dev/ripple/internal/errors"
	"github.com/vango-dev/ripple/pkg/draft"
	"github.com/vango-dev/ripple/pkg/events"
	"github.com/vango-dev/ripple/pkg/inspect"
	"github.com/vango-dev/ripple/pkg/jsondraft"
	"github.com/vango-dev/ripple/pkg/metrics"
	"github.com/vango-dev/ripple/pkg/ripple"
)

const defaultTodosURL = "https://jsonplaceholder.typicode.com/todos"

func serveCmd(load loader) *cobra.Command {
	var (
		addr     string
		todosURL string
		orders   int
		projects int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inspector for the demo stores",
		Long: `Serve the live inspector over a set of demo stores.

Stores:
  count, count.loading, count.error   scalar counter with effect status
  todos                               object store filled by fetch:todos
  orders                              1000 orders with a nested status flag
  projects                            the benchmark project list

Events (POST /events/{event}):
  count:increment   {"by": n}
  fetch:todos       load todos from --todos-url
  todos:add         {"title": "..."}
  orders:mark       {"count": n}
  orders:reset

Examples:
  ripple serve
  ripple serve --addr=:7070
  curl -X POST localhost:7070/events/count:increment -d '{"by":2}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Serve.Addr = addr
			}
			timeout, err := cfg.ShutdownTimeout()
			if err != nil {
				return errors.New("R011").WithDetail("serve.shutdownTimeout: " + err.Error())
			}

			registry := prometheus.NewRegistry()
			var observer ripple.Observer
			if cfg.Metrics.Enabled {
				registry.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				observer = metrics.New(
					metrics.WithRegistry(registry),
					metrics.WithNamespace(cfg.Metrics.Namespace),
				)
			}

			d := newDemo(demoOptions{
				Observer: observer,
				Logger:   logger,
				TodosURL: todosURL,
				Orders:   orders,
				Projects: projects,
				Subtasks: cfg.Bench.Subtasks,
			})

			srv := inspect.New(d.registry, &inspect.Config{
				Addr:            cfg.Serve.Addr,
				ShutdownTimeout: timeout,
				SendBuffer:      cfg.Serve.SendBuffer,
				Gatherer:        registry,
				Logger:          logger,
				Events:          d.bus,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			success(cmd.OutOrStdout(), "Inspector on http://%s", cfg.Serve.Addr)
			for _, name := range d.registry.Names() {
				info(cmd.OutOrStdout(), "/cells/%s", name)
			}

			if err := srv.Run(ctx); err != nil {
				return errors.New("R030").Wrap(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&todosURL, "todos-url", defaultTodosURL, "URL fetched by the fetch:todos event")
	cmd.Flags().IntVar(&orders, "orders", 1000, "Number of demo orders")
	cmd.Flags().IntVar(&projects, "projects", 100, "Number of demo projects")

	return cmd
}

type demoOptions struct {
	Observer ripple.Observer
	Logger   *slog.Logger
	TodosURL string
	Client   *http.Client
	Orders   int
	Projects int
	Subtasks int
}

// demo is the set of stores served by the inspector and the event handlers
// that drive them.
type demo struct {
	registry *inspect.Registry
	bus      *events.Bus
	client   *http.Client
	todosURL string

	count        *ripple.Cell[int]
	countLoading *ripple.Cell[bool]
	countError   *ripple.Cell[string]
	todos        *ripple.Composite[map[string]any]
	orders       *ripple.Composite[[]any]
	projects     *ripple.Composite[[]any]
}

func newDemo(opts demoOptions) *demo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	schedOpts := []ripple.SchedulerOption{ripple.WithSchedulerLogger(logger)}
	if opts.Observer != nil {
		schedOpts = append(schedOpts, ripple.WithSchedulerObserver(opts.Observer))
	}
	sched := ripple.NewScheduler(schedOpts...)

	cellOpts := func(name string, extra ...ripple.Option) []ripple.Option {
		o := []ripple.Option{ripple.WithName(name), ripple.WithScheduler(sched)}
		if opts.Observer != nil {
			o = append(o, ripple.WithObserver(opts.Observer))
		}
		return append(o, extra...)
	}

	d := &demo{
		registry: inspect.NewRegistry(),
		bus:      events.NewBus(events.WithLogger(logger)),
		client:   client,
		todosURL: opts.TodosURL,

		count:        ripple.NewCell(0, cellOpts("count")...),
		countLoading: ripple.NewCell(false, cellOpts("count.loading")...),
		countError:   ripple.NewCell("", cellOpts("count.error")...),
		todos: ripple.NewObject(map[string]any{
			"title":   nil,
			"todos":   []any{},
			"loading": false,
			"error":   nil,
		}, cellOpts("todos", ripple.WithTransformer(jsondraft.New()))...),
		orders: ripple.NewArray(generateOrders(opts.Orders), cellOpts("orders",
			ripple.WithTransformerLoader(func(context.Context) (ripple.Transformer, error) {
				return draft.New(), nil
			}))...),
		projects: ripple.NewArray(bench.GenerateProjects(opts.Projects, opts.Subtasks),
			cellOpts("projects", ripple.WithTransformer(draft.New()))...),
	}

	for _, ref := range []ripple.Ref{d.count, d.countLoading, d.countError, d.todos, d.orders, d.projects} {
		d.registry.MustRegister("", ref)
	}

	d.bus.On("count:increment", d.increment,
		events.WithLoading(d.countLoading),
		events.WithError(errText{d.countError}))
	d.bus.On("fetch:todos", d.fetchTodos, events.WithStatus(d.todos))
	d.bus.On("todos:add", d.addTodo, events.WithStatus(d.todos))
	d.bus.On("orders:mark", d.markOrders)
	d.bus.On("orders:reset", d.resetOrders)
	return d
}

func generateOrders(n int) []any {
	orders := make([]any, n)
	for i := range orders {
		orders[i] = map[string]any{"order": map[string]any{"status": false}}
	}
	return orders
}

// errText stores an effect error's message in a string cell, so it
// serializes as text.
type errText struct {
	cell *ripple.Cell[string]
}

func (e errText) Get() error {
	if msg := e.cell.Get(); msg != "" {
		return stderrors.New(msg)
	}
	return nil
}

func (e errText) Set(err error) {
	if err == nil {
		e.cell.Set("")
		return
	}
	e.cell.Set(err.Error())
}

// intField reads a numeric payload field, defaulting to def.
func intField(payload any, key string, def int) (int, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		if payload != nil {
			return 0, fmt.Errorf("payload must be an object, got %T", payload)
		}
		return def, nil
	}
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
	return int(f), nil
}

func (d *demo) increment(ctx context.Context, payload any) error {
	by, err := intField(payload, "by", 1)
	if err != nil {
		return err
	}
	d.count.Update(func(n int) int { return n + by })
	return nil
}

func (d *demo) fetchTodos(ctx context.Context, _ any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.todosURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch todos: %s", resp.Status)
	}

	var data []any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("decode todos: %w", err)
	}
	// Disposed while the request was in flight.
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.todos.SetPath("todos", data)
}

func (d *demo) addTodo(ctx context.Context, payload any) error {
	m, _ := payload.(map[string]any)
	title, _ := m["title"].(string)
	if title == "" {
		return stderrors.New("todo title is required")
	}
	return d.todos.Update(ctx, func(e ripple.Editor) error {
		n := 0
		if list, ok := e.Get("todos"); ok {
			if items, ok := list.([]any); ok {
				n = len(items)
			}
		}
		return e.Set("todos.-1", map[string]any{
			"id":        n + 1,
			"title":     title,
			"completed": false,
		})
	})
}

func (d *demo) markOrders(ctx context.Context, payload any) error {
	count, err := intField(payload, "count", 10)
	if err != nil {
		return err
	}
	root := d.orders.Value()
	var setErr error
	d.orders.Batch(func() {
		for i := 0; i < count && i < root.Len(); i++ {
			if err := root.SetPath(fmt.Sprintf("%d.order.status", i), true); err != nil {
				setErr = err
				return
			}
		}
	})
	return setErr
}

func (d *demo) resetOrders(ctx context.Context, _ any) error {
	return d.orders.Update(ctx, func(e ripple.Editor) error {
		root, _ := e.Get("")
		items, _ := root.([]any)
		for i := range items {
			if err := e.Set(fmt.Sprintf("%d.order.status", i), false); err != nil {
				return err
			}
		}
		return nil
	})
}

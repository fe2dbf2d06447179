package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/vango-dev/ripple/internal/bench"
	"github.com/vango-dev/ripple/internal/errors"
	"github.com/vango-dev/ripple/pkg/metrics"
)

type benchFlags struct {
	projects   int
	subtasks   int
	rounds     int
	scenarios  []string
	list       bool
	asJSON     bool
	metricsOut string
}

func benchCmd(load loader) *cobra.Command {
	var flags benchFlags

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the reference benchmarks",
		Long: `Run the reference benchmarks against a generated project store.

Every project has one view subscribed to it. Each scenario times a write
and checks how many views it re-rendered, so targeting regressions fail
the run even when timings look fine.

Examples:
  ripple bench
  ripple bench --projects=10000 --rounds=5
  ripple bench -s rerender-nested -s selector-efficiency --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.list {
				printScenarios(cmd.OutOrStdout())
				return nil
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			opts := bench.Options{
				Projects: cfg.Bench.Projects,
				Subtasks: cfg.Bench.Subtasks,
				Rounds:   cfg.Bench.Rounds,
				Logger:   logger,
			}
			if cmd.Flags().Changed("projects") {
				opts.Projects = flags.projects
			}
			if cmd.Flags().Changed("subtasks") {
				opts.Subtasks = flags.subtasks
			}
			if cmd.Flags().Changed("rounds") {
				opts.Rounds = flags.rounds
			}
			if opts.Projects <= 0 || opts.Subtasks < 0 || opts.Rounds <= 0 {
				return errors.New("R020").
					WithDetail(fmt.Sprintf("projects=%d subtasks=%d rounds=%d", opts.Projects, opts.Subtasks, opts.Rounds)).
					WithSuggestion("projects and rounds must be positive, subtasks non-negative")
			}

			var registry *prometheus.Registry
			if cfg.Metrics.Enabled {
				registry = prometheus.NewRegistry()
				opts.Observer = metrics.New(
					metrics.WithRegistry(registry),
					metrics.WithNamespace(cfg.Metrics.Namespace),
				)
			}

			results, err := bench.Run(cmd.Context(), opts, flags.scenarios...)
			if err != nil {
				return errors.New("R021").Wrap(err)
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				printResults(out, opts, results)
			}

			if flags.metricsOut != "" {
				if registry == nil {
					warn(cmd.ErrOrStderr(), "metrics are disabled in the config; %s not written", flags.metricsOut)
				} else if err := writeMetrics(flags.metricsOut, registry); err != nil {
					return err
				}
			}

			var failed []string
			for _, res := range results {
				if !res.OK() {
					failed = append(failed, res.Name+": "+res.Failure)
				}
			}
			if len(failed) > 0 {
				return errors.New("R021").WithDetail(strings.Join(failed, "\n"))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&flags.projects, "projects", "n", 0, "Number of projects (default from config)")
	cmd.Flags().IntVar(&flags.subtasks, "subtasks", 0, "Subtasks per project (default from config)")
	cmd.Flags().IntVarP(&flags.rounds, "rounds", "r", 0, "Rounds per scenario (default from config)")
	cmd.Flags().StringSliceVarP(&flags.scenarios, "scenario", "s", nil, "Scenario to run (repeatable, default all)")
	cmd.Flags().BoolVarP(&flags.list, "list", "l", false, "List scenarios and exit")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print results as JSON")
	cmd.Flags().StringVar(&flags.metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")

	return cmd
}

func printScenarios(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, sc := range bench.Scenarios() {
		fmt.Fprintf(tw, "%s\t%s\n", sc.Name, sc.Description)
	}
	tw.Flush()
}

func printResults(w io.Writer, opts bench.Options, results []bench.Result) {
	fmt.Fprintf(w, "\n  %d projects, %d subtasks, %d rounds\n\n", opts.Projects, opts.Subtasks, opts.Rounds)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tMEDIAN\tMIN\tMAX\tRENDERS\tSTATUS")
	for _, res := range results {
		status := "ok"
		if !res.OK() {
			status = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			res.Name, res.Median, res.Min, res.Max, res.Fired, res.Expected, status)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

// writeMetrics writes every family gathered from g in the text exposition
// format.
func writeMetrics(path string, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return err
		}
	}
	return f.Close()
}

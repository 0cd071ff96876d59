package commands

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/objql/cli/internal/dsl"
	"github.com/satishbabariya/objql/cli/internal/ui"
	"github.com/satishbabariya/objql/query/cache"
	"github.com/satishbabariya/objql/query/compiler"
)

func newStatsCommand(a *app) *cobra.Command {
	var (
		repeat  int
		metrics bool
	)
	cmd := &cobra.Command{
		Use:   "stats pipeline...",
		Short: "Compile pipelines repeatedly and report plan cache statistics",
		Long: `Compile each pipeline --repeat times, passing zero values for its
arguments, and report how the plan and statement caches behaved.`,
		Example: `  objql stats 'orders | where Total > $0' 'orders | count' --repeat 100
  objql stats 'lines | first' --metrics`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.compiler()
			if err != nil {
				return err
			}
			for _, text := range args {
				p, err := dsl.Parse(a.model, text)
				if err != nil {
					return fmt.Errorf("%s: %w", text, err)
				}
				if err := prepareRepeatedly(c, p, repeat); err != nil {
					return err
				}
			}
			if metrics {
				return printMetrics(c)
			}
			return printStats(c.Stats())
		},
	}
	cmd.Flags().IntVarP(&repeat, "repeat", "n", 10, "compilations per pipeline")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print prometheus metrics instead of a table")
	return cmd
}

func prepareRepeatedly(c *compiler.Compiler, p *dsl.Pipeline, n int) error {
	args := make([]any, len(p.Params))
	for i, t := range p.Params {
		args[i] = reflect.Zero(t).Interface()
	}
	for range n {
		if _, err := c.Prepare(p.Query.Node(), args...); err != nil {
			return fmt.Errorf("%s: %w", p.Text, err)
		}
	}
	return nil
}

func printStats(st compiler.Stats) error {
	row := func(name string, s cache.Stats) []string {
		return []string{
			name,
			strconv.Itoa(s.Size),
			strconv.Itoa(s.MaxSize),
			strconv.FormatInt(s.Hits, 10),
			strconv.FormatInt(s.Misses, 10),
			strconv.FormatInt(s.Evictions, 10),
			fmt.Sprintf("%.1f%%", s.HitRate),
		}
	}
	return ui.PrintTable(
		[]string{"cache", "entries", "capacity", "hits", "misses", "evictions", "hit rate"},
		[][]string{row("plans", st.Plans), row("statements", st.Statements)},
	)
}

func printMetrics(c *compiler.Compiler) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c.Collector(prometheus.Opts{Namespace: "objql", Subsystem: "plan_cache"})); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(ui.Output, mf); err != nil {
			return err
		}
	}
	return nil
}

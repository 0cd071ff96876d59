package commands

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/objql/cli/internal/dsl"
	"github.com/satishbabariya/objql/cli/internal/ui"
	"github.com/satishbabariya/objql/query/ast"
	"github.com/satishbabariya/objql/runtime/client"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		file    string
		useDemo bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run [pipeline] [args...]",
		Short: "Run a pipeline and print its results",
		Long: `Run a pipeline against the configured database. Without a configured
database_url, or with --demo, it runs against an in-memory SQLite
database holding the demo data.`,
		Example: `  objql run 'orders | where Status == "open" | include Lines'
  objql run 'customers | single ID == $0' 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, values, err := a.pipeline(args, file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return a.run(ctx, p, values, useDemo)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the pipeline from a file")
	cmd.Flags().BoolVar(&useDemo, "demo", false, "run against the in-memory demo database")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "cancel the query after this long")
	return cmd
}

func (a *app) run(ctx context.Context, p *dsl.Pipeline, values []any, useDemo bool) error {
	c, err := a.open(ctx, useDemo)
	if err != nil {
		return err
	}
	defer c.Close()

	start := time.Now()
	if p.Statement {
		n, err := c.Exec(ctx, p.Query, values...)
		if err != nil {
			return err
		}
		ui.PrintSuccess("%s row(s) affected in %s", ui.Highlight(strconv.FormatInt(n, 10)), time.Since(start).Round(time.Microsecond))
		return nil
	}

	var results []any
	elem := p.Query.Type()
	if ast.IsSequence(elem) {
		elem = ast.ElemType(elem)
		results, err = client.ToSlice[any](ctx, c, p.Query, values...)
	} else {
		var v any
		v, err = client.Scalar[any](ctx, c, p.Query, values...)
		results = []any{v}
	}
	if err != nil {
		return err
	}

	headers, rows := resultTable(elem, results)
	if err := ui.PrintTable(headers, rows); err != nil {
		return err
	}
	ui.PrintInfo("%d row(s) in %s", len(rows), time.Since(start).Round(time.Microsecond))
	return nil
}

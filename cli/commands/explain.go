package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/objql/cli/internal/dsl"
	"github.com/satishbabariya/objql/cli/internal/ui"
	"github.com/satishbabariya/objql/query/compiler"
)

func newExplainCommand(a *app) *cobra.Command {
	var (
		file string
		raw  bool
	)
	cmd := &cobra.Command{
		Use:   "explain [pipeline] [args...]",
		Short: "Show the SQL and plan of a pipeline",
		Long: `Compile a pipeline for the configured provider and show the generated
SQL, its parameters, the optimized tree and how rows are materialized.
No database connection is made.`,
		Example: `  objql explain 'orders | where Total > $0 | include Lines' 100
  objql explain -f report.objql --raw`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, values, err := a.pipeline(args, file)
			if err != nil {
				return err
			}
			c, err := a.compiler()
			if err != nil {
				return err
			}
			return explain(c, p, values, raw)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the pipeline from a file")
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering it")
	return cmd
}

func explain(c *compiler.Compiler, p *dsl.Pipeline, values []any, raw bool) error {
	x, err := c.Explain(p.Query.Node(), values...)
	if err != nil {
		return err
	}
	if raw {
		_, err := fmt.Fprint(ui.Output, x.Markdown())
		return err
	}
	return ui.PrintMarkdown(x.Markdown())
}

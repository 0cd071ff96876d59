// Package commands implements the objql command line.
package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/objql/cli/internal/ui"
	"github.com/satishbabariya/objql/internal/config"
	"github.com/satishbabariya/objql/internal/debug"
	"github.com/satishbabariya/objql/internal/demo"
	"github.com/satishbabariya/objql/query/mapping"
)

var (
	// Version information (set by build)
	Version = "dev"
	Commit  = "unknown"
)

// app is the state shared by the commands of one invocation.
type app struct {
	configPath string
	debug      bool
	cfg        *config.Config
	model      *mapping.Model
}

// NewRootCommand builds the objql command tree.
func NewRootCommand() *cobra.Command {
	a := &app{model: demo.Model()}
	cmd := &cobra.Command{
		Use:   "objql",
		Short: "Compile and run object queries",
		Long: `objql compiles query pipelines over the demo customer/order model
into SQL, shows the plans and runs them.

Pipelines start with a table and chain stages with "|":

    orders | where Total > 100 | include Lines | orderby ID desc
    customers | single Name == $0`,
		Version:       fmt.Sprintf("%s (commit: %s, %s)", Version, Commit, runtime.Version()),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default .objql.yaml)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "log compilation and execution steps")

	cmd.AddCommand(
		newExplainCommand(a),
		newRunCommand(a),
		newStatsCommand(a),
		newInitCommand(a),
		newWatchCommand(a),
	)
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}
	debug.Init(cfg.Debug)
	if cfg.File != "" {
		debug.Debug("Loaded config", "file", cfg.File)
	}
	a.cfg = cfg
	return nil
}

// Execute is the main entry point for the CLI
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		ui.PrintError("%v", err)
		return err
	}
	return nil
}

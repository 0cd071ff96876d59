package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/objql/cli/internal/ui"
	"github.com/satishbabariya/objql/cli/internal/watch"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		raw      bool
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch file [args...]",
		Short: "Explain a pipeline file again whenever it changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.compiler()
			if err != nil {
				return err
			}
			file, rest := args[0], args[1:]
			w, err := watch.New(file, debounce, func(path string) error {
				ui.PrintSection(fmt.Sprintf("%s  %s", path, time.Now().Format(time.TimeOnly)))
				p, values, err := a.pipeline(rest, path)
				if err == nil {
					err = explain(c, p, values, raw)
				}
				if err != nil {
					ui.PrintError("%v", err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ui.PrintHeader("objql watch "+file, "Press Ctrl+C to stop")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering it")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "wait for writes to settle this long")
	return cmd
}

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasjlepore/fitsync/watch"
)

func (a *app) watchCmd() *cobra.Command {
	var skipInitial bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync every time MyWhoosh writes a new activity",
		Long: `watch syncs once at startup and then waits for changes to matching
exports in the source directory. A sync starts after the file has been
quiet for watch.debounce; syncs never overlap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, closer, err := a.orchestrator()
			if err != nil {
				return err
			}
			defer closer()

			sync := a.syncOnce(orch)
			if !skipInitial {
				sync(ctx)
			}
			w := &watch.Watcher{
				Dir:      a.cfg.SourceDir,
				Pattern:  a.cfg.Pattern,
				Debounce: a.cfg.WatchDebounce,
				Logger:   a.logger,
				Sync:     sync,
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "do not sync the current newest activity at startup")
	return cmd
}

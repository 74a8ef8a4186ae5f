package main

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/deps"
	"scribe/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()

				fmt.Fprintf(out, "Daemon running: %s\n", yesNo(daemonRunning(cfg)))
				fmt.Fprintf(out, "Queue database: %s\n\n", filepath.Join(cfg.Paths.LogDir, "queue.db"))

				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Total", "Pending", "Processing", "Failed", "Completed"},
					[][]string{{
						fmt.Sprint(summary.Total),
						fmt.Sprint(summary.Pending),
						fmt.Sprint(summary.Processing),
						fmt.Sprint(summary.Failed),
						fmt.Sprint(summary.Completed),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				rows := make([][]string, 0, 4)
				for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
					detail := status.Detail
					if detail == "" {
						detail = status.Description
					}
					rows = append(rows, []string{status.Name, yesNo(status.Available), detail})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Dependency", "Found", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

// daemonRunning probes the daemon lock file without holding it.
func daemonRunning(cfg *config.Config) bool {
	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "scribed.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/tasktimer/internal/timesync"
	"github.com/foxseedlab/tasktimer/internal/tui"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Watch your time on a task",
		Long: `Watch your time on a task. Opens an interactive view by default; use --plain
to print one line per change instead.`,
		Args: cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string) error {
			plain, _ := cmd.Flags().GetBool("plain")
			if !plain {
				return tui.RunWatchTUI(cmd.Context(), args[0], tui.ClientController(a.client))
			}
			out := cmd.OutOrStdout()
			err := a.client.Watch(cmd.Context(), args[0], func(r timesync.Reading) {
				fmt.Fprintf(out, "v%d %s %s\n", r.Version, r.TaskID, r.Display())
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
	cmd.Flags().Bool("plain", false, "print readings instead of the interactive view")
	return cmd
}

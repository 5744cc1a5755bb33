package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/timesync"
	"github.com/spf13/cobra"
)

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start your timer on a task",
		Long: `Start your timer on a task. A timer you left running on the same task is
closed first and counted.

Examples:
  tasktimer start task-42`,
		Args: cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string) error {
			s, err := a.client.Start(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("start failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started timer on %s at %s\n", s.TaskID, s.StartTime.Local().Format(time.TimeOnly))
			return nil
		}),
	}
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <task-id>",
		Short: "Stop your timer on a task",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Stop(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("stop failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if res.AlreadyStopped {
				fmt.Fprintf(out, "No timer running on %s\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "Stopped timer on %s: %s\n", args[0], aggregate.FormatHMS(res.TotalDurationSeconds))
			if res.FinalizedCount > 1 {
				fmt.Fprintf(out, "Closed %d running sessions\n", res.FinalizedCount)
			}
			return nil
		}),
	}
}

func newResetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <task-id>",
		Short: "Delete all of your recorded time on a task",
		Long: `Delete every session you recorded on a task. Other users' time is kept.
This cannot be undone, so --yes is required.`,
		Args: cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetBool("yes")
			res, err := a.client.Reset(cmd.Context(), args[0], confirm)
			if errors.Is(err, timesync.ErrResetNotConfirmed) {
				return fmt.Errorf("refusing to reset %s without --yes", args[0])
			}
			if err != nil {
				return fmt.Errorf("reset failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s: %d sessions deleted\n", args[0], res.Deleted)
			return nil
		}),
	}
	cmd.Flags().Bool("yes", false, "confirm the reset")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>...",
		Short: "Show your time on one or more tasks",
		Long: `Show your time on one or more tasks. All tasks are read in one request.
With a single task the users currently running a timer on it are listed too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			readings := loadAll(cmd, a.client, args)
			for _, r := range readings {
				line := fmt.Sprintf("%-20s %s", r.TaskID, r.Display())
				if r.Err == nil && r.Total.HasActiveSession {
					line += " (running " + r.Total.Formatted.Active + ")"
				}
				fmt.Fprintln(out, line)
			}
			if len(args) != 1 {
				return nil
			}
			snap, err := a.client.Snapshot(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintln(out, "Active users: unavailable")
				return nil
			}
			printActiveUsers(cmd, snap)
			return nil
		}),
	}
}

// loadAll issues every read at once so the batch loader sends one request.
func loadAll(cmd *cobra.Command, client *timesync.Client, taskIDs []string) []timesync.Reading {
	readings := make([]timesync.Reading, len(taskIDs))
	done := make(chan struct{}, len(taskIDs))
	for i, id := range taskIDs {
		go func(i int, id string) {
			total, err := client.LoadTime(cmd.Context(), id)
			readings[i] = timesync.Reading{TaskID: id, Total: total, At: time.Now(), Err: err}
			done <- struct{}{}
		}(i, id)
	}
	for range taskIDs {
		<-done
	}
	return readings
}

func printActiveUsers(cmd *cobra.Command, snap aggregate.TaskSnapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sessions: %d total, %d completed, %d running; completed time %s\n",
		snap.Stats.TotalSessions, snap.Stats.CompletedSessions, snap.Stats.ActiveSessions, snap.Stats.TotalFormatted)
	for _, u := range snap.Stats.ActiveUsers {
		name := u.DisplayName
		if name == "" {
			name = u.UserID
		}
		fmt.Fprintf(out, "  %-18s %s\n", name, u.ElapsedFormatted)
	}
}

func newCommentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comments <task-id>",
		Short: "List comments on a task",
		Args:  cobra.ExactArgs(1),
		RunE: a.withClient(func(cmd *cobra.Command, args []string) error {
			comments, err := a.client.Comments(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list comments failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(comments) == 0 {
				fmt.Fprintln(out, "No comments")
				return nil
			}
			for _, c := range comments {
				fmt.Fprintf(out, "[%s] %s: %s\n", c.CreatedAt.Local().Format(time.DateTime), c.AuthorID, c.Body)
			}
			return nil
		}),
	}
}

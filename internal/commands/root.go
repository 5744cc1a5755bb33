package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	configloader "github.com/foxseedlab/tasktimer/external/config"
	"github.com/foxseedlab/tasktimer/external/timeapi"
	"github.com/foxseedlab/tasktimer/internal/config"
	"github.com/foxseedlab/tasktimer/internal/timesync"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// app holds what the timer commands share once the client config is known.
type app struct {
	cfg      *config.ClientConfig
	injector do.Injector
	client   *timesync.Client
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := configloader.LoadClient()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("api-url"); v != "" {
		cfg.APIURL = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.Token = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	injector := do.New()
	do.ProvideValue(injector, cfg)
	timeapi.RegisterDI(injector)
	timesync.RegisterDI(injector)

	client, err := do.Invoke[*timesync.Client](injector)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.injector = injector
	a.client = client
	return nil
}

func (a *app) teardown() {
	if a.injector != nil {
		a.injector.Shutdown()
	}
}

// withClient runs fn with a ready sync client and shuts it down afterwards.
func (a *app) withClient(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.setup(cmd); err != nil {
			return err
		}
		defer a.teardown()
		err := fn(cmd, args)
		if timeapi.IsUnauthorized(err) {
			return fmt.Errorf("%w (token rejected: check TASKTIMER_TOKEN or --token)", err)
		}
		return err
	}
}

// NewRootCmd builds the tasktimer command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "tasktimer",
		Short: "Shared task stopwatches",
		Long: `tasktimer starts, stops and watches per-user timers on shared tasks.
Settings come from TASKTIMER_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("api-url", "", "timer API base URL (TASKTIMER_API_URL)")
	rootCmd.PersistentFlags().String("token", "", "bearer token (TASKTIMER_TOKEN)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log client activity to stderr")

	rootCmd.AddCommand(newStartCmd(a))
	rootCmd.AddCommand(newStopCmd(a))
	rootCmd.AddCommand(newResetCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newCommentsCmd(a))
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tasktimer %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

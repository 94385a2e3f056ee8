package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/warden/config"
	"github.com/teranos/warden/logger"
	"github.com/teranos/warden/scheduler"
	"github.com/teranos/warden/sym"
)

// StartCmd runs the scheduler daemon in the foreground.
var StartCmd = &cobra.Command{
	Use:   "start",
	Short: sym.Work + " Run the scheduler daemon",
	Long: sym.Work + ` Run the warden scheduler daemon in foreground mode.

The daemon will:
- Synchronize in-process triggers with the schedule table
- Poll the request queue and claim batches of NEW requests
- Execute claimed requests through registered engines
- Enqueue dependent schedules when a run succeeds
- Run until interrupted (Ctrl+C / SIGTERM) with graceful shutdown

Note: warden ships no engines of its own. Applications embed warden and
register engines against the registry before Run; a bare daemon claims
requests and fails them with "no engine registered", which keeps the queue
honest about unwired work.

Example:
  warden start               # Start with configured worker count
  warden start --workers 8   # Override the worker pool size`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if workers > 0 {
			cfg.Scheduler.Workers = workers
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		sched, err := scheduler.New(database, cfg, logger.Logger)
		if err != nil {
			return err
		}

		fmt.Printf("%s warden daemon starting\n", sym.Work)
		fmt.Printf("  Database:         %s\n", cfg.Database.Path)
		fmt.Printf("  Workers:          %d\n", cfg.Scheduler.Workers)
		fmt.Printf("  Poll interval:    %v\n", cfg.Scheduler.PollInterval())
		fmt.Printf("  Schedule refresh: %v\n", cfg.Scheduler.ScheduleRefreshInterval())
		fmt.Printf("  Timezone:         %s\n", cfg.Scheduler.Timezone)
		fmt.Printf("\n%s Press Ctrl+C for graceful shutdown\n\n", sym.Work)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := sched.Run(ctx); err != nil {
			return err
		}

		fmt.Printf("%s warden daemon stopped\n", sym.Close)
		return nil
	},
}

func init() {
	StartCmd.Flags().Int("workers", 0, "Worker pool size (0 = use configured value)")
}

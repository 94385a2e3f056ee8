package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/warden/cmd/warden/commands"
	"github.com/teranos/warden/logger"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "warden - data warehouse job scheduler",
	Long: `warden - job scheduling core for data warehouse loads.

warden keeps an in-process trigger set synchronized with a soft-versioned
schedule table, claims queued run requests with at-most-one-claimant
semantics, executes them through registered engines, and fans out to
dependent schedules on success.

Available commands:
  start    - Run the scheduler daemon
  db       - Database operations (migrate, stats)
  queue    - Inspect and feed the request queue
  schedule - Inspect the schedule table
  config   - Show effective configuration
  version  - Show build information

Examples:
  warden start                   # Run the daemon in the foreground
  warden queue trigger FACT_TXN  # Enqueue an immediate run
  warden queue ls --status NEW   # List unclaimed requests
  warden db stats                # Queue and schedule statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		verbose, _ := cmd.Flags().GetCount("verbose")
		if err := logger.Initialize(jsonLogs, verbose > 0); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")

	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.QueueCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

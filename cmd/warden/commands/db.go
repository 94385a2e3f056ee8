package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/warden/config"
	"github.com/teranos/warden/errors"
	"github.com/teranos/warden/queue"
	"github.com/teranos/warden/schedule"
	"github.com/teranos/warden/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the warden database",
	Long: sym.DB + ` db — warden database operations

Examples:
  warden db migrate   # Apply pending schema migrations
  warden db stats     # Queue and schedule table statistics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		// openDatabase migrates as part of opening
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		fmt.Printf("%s Database schema is up to date\n", sym.DB)
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue and schedule statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := queue.NewQueue(database).GetStats()
	if err != nil {
		return errors.Wrap(err, "failed to get queue stats")
	}

	entries, err := schedule.NewStore(database).ListCurrent()
	if err != nil {
		return errors.Wrap(err, "failed to list schedule entries")
	}

	var active, recurring int
	for _, entry := range entries {
		if entry.Active {
			active++
		}
		if entry.Live() {
			recurring++
		}
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:     %s\n", cfg.Database.Path)
	fmt.Println()
	fmt.Printf("Queue Requests:    %d total\n", stats.Total)
	fmt.Printf("  NEW:             %d\n", stats.New)
	fmt.Printf("  CLAIMED:         %d\n", stats.Claimed)
	fmt.Printf("  DONE:            %d\n", stats.Done)
	fmt.Printf("  FAILED:          %d\n", stats.Failed)
	fmt.Println()
	fmt.Printf("Schedule Entries:  %d current\n", len(entries))
	fmt.Printf("  Active:          %d\n", active)
	fmt.Printf("  Clock-driven:    %d\n", recurring)

	return nil
}

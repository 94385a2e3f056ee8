package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/warden/config"
)

// ConfigCmd shows the effective configuration after merging defaults, config
// files, and environment variables.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long: `Show the configuration the daemon would run with, after merging
built-in defaults, /etc/warden/config.toml, ~/.warden/config.toml,
./warden.toml, and WARDEN_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Println("[database]")
		fmt.Printf("path = %q\n\n", cfg.Database.Path)
		fmt.Println("[scheduler]")
		fmt.Printf("workers = %d\n", cfg.Scheduler.Workers)
		fmt.Printf("poll_interval_seconds = %d\n", cfg.Scheduler.PollIntervalSeconds)
		fmt.Printf("schedule_refresh_seconds = %d\n", cfg.Scheduler.ScheduleRefreshSeconds)
		fmt.Printf("claim_batch_size = %d\n", cfg.Scheduler.ClaimBatchSize)
		fmt.Printf("timezone = %q\n", cfg.Scheduler.Timezone)
		fmt.Printf("max_fanout_depth = %d\n", cfg.Scheduler.MaxFanoutDepth)
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolP("json", "j", false, "Output configuration as JSON")
	ConfigCmd.AddCommand(configShowCmd)
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/warden/errors"
	"github.com/teranos/warden/schedule"
	"github.com/teranos/warden/sym"
)

// ScheduleCmd represents the schedule command - schedule table inspection
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: sym.Sched + " Inspect the schedule table",
	Long: sym.Sched + ` schedule — schedule table inspection.

Schedule rows are soft-versioned: edits insert a new current row and retire
the prior one. The daemon only ever drives triggers from current, active
rows.

Examples:
  warden schedule ls           # List current schedule entries
  warden schedule ls --active  # Only entries the daemon will trigger`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var scheduleLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List current schedule entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		activeOnly, _ := cmd.Flags().GetBool("active")
		return runScheduleLs(activeOnly)
	},
}

func init() {
	scheduleLsCmd.Flags().Bool("active", false, "Only show active entries")
	ScheduleCmd.AddCommand(scheduleLsCmd)
}

func runScheduleLs(activeOnly bool) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewStore(database)

	var entries []*schedule.Entry
	if activeOnly {
		entries, err = store.ListCurrentActive()
	} else {
		entries, err = store.ListCurrent()
	}
	if err != nil {
		return errors.Wrap(err, "failed to list schedule entries")
	}

	if len(entries) == 0 {
		fmt.Printf("%s No schedule entries found\n", sym.Sched)
		return nil
	}

	fmt.Printf("%s Schedule Entries (%d)\n", sym.Sched, len(entries))
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, entry := range entries {
		state := "inactive"
		if entry.Active {
			state = "active"
		}
		parent := "-"
		if entry.ParentScheduleID != "" {
			parent = entry.ParentScheduleID
		}
		fmt.Printf("%-14s %-20s %-12s %02d:%02d  %-8s parent=%s\n",
			shortID(entry.ScheduleID),
			entry.JobReference,
			entry.Frequency,
			entry.Hour, entry.Minute,
			state,
			parent)
	}
	return nil
}

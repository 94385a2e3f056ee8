package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/warden/errors"
	"github.com/teranos/warden/queue"
	"github.com/teranos/warden/sym"
)

// QueueCmd represents the queue command - request queue operations
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: sym.Queue + " Inspect and feed the request queue",
	Long: sym.Queue + ` queue — request queue management.

The queue is the hand-off between trigger fires, manual runs, and dependency
fan-out on the producing side, and the daemon's worker pool on the consuming
side.

Examples:
  warden queue ls                         # List recent requests
  warden queue ls --status NEW            # List unclaimed requests
  warden queue trigger FACT_TXN           # Enqueue an immediate run
  warden queue status REQ_abc123          # Show one request
  warden queue cleanup --older-than 720h  # Purge old terminal requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var queueLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List queue requests",
	Long: `List queue requests, newest first, optionally filtered by status.

Status filters: NEW, CLAIMED, DONE, FAILED

Examples:
  warden queue ls                  # List recent requests
  warden queue ls --status FAILED  # List failed requests
  warden queue ls --limit 50       # Show up to 50 requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runQueueLs(statusFilter, limit)
	},
}

var queueTriggerCmd = &cobra.Command{
	Use:   "trigger <job-reference>",
	Short: "Enqueue an immediate run for a job reference",
	Long: `Enqueue an immediate run request. The daemon claims and executes it on
its next poll cycle.

Examples:
  warden queue trigger FACT_TXN
  warden queue trigger DIM_ACNT --params '{"load_date":"2026-08-30"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paramsJSON, _ := cmd.Flags().GetString("params")
		return runQueueTrigger(args[0], paramsJSON)
	},
}

var queueStatusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Show one queue request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQueueStatus(args[0])
	},
}

var queueCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old DONE and FAILED requests",
	Long: `Delete terminal requests completed longer ago than --older-than.
The daemon itself never deletes requests; the queue is the audit trail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		return runQueueCleanup(olderThan)
	},
}

func init() {
	queueLsCmd.Flags().String("status", "", "Filter by status (NEW, CLAIMED, DONE, FAILED)")
	queueLsCmd.Flags().Int("limit", 20, "Maximum number of requests to show")
	queueTriggerCmd.Flags().String("params", "", "Request parameters as a JSON object")
	queueCleanupCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age threshold for deletion")

	QueueCmd.AddCommand(queueLsCmd)
	QueueCmd.AddCommand(queueTriggerCmd)
	QueueCmd.AddCommand(queueStatusCmd)
	QueueCmd.AddCommand(queueCleanupCmd)
}

func runQueueLs(statusFilter string, limit int) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	var status *queue.Status
	if statusFilter != "" {
		if !queue.IsValidStatus(statusFilter) {
			return errors.Newf("invalid status filter: %s", statusFilter)
		}
		s := queue.Status(statusFilter)
		status = &s
	}

	requests, err := queue.NewQueue(database).List(status, limit)
	if err != nil {
		return errors.Wrap(err, "failed to list requests")
	}

	if len(requests) == 0 {
		fmt.Printf("%s No requests found\n", sym.Queue)
		return nil
	}

	fmt.Printf("%s Queue Requests (%d)\n", sym.Queue, len(requests))
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, req := range requests {
		fmt.Printf("%-14s %-8s %-20s %-10s %s\n",
			shortID(req.ID),
			req.Status,
			req.JobReference,
			req.Type,
			req.RequestedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runQueueTrigger(jobReference, paramsJSON string) error {
	var params map[string]any
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return errors.Wrap(err, "invalid --params JSON")
		}
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	req, err := queue.NewQueue(database).EnqueueImmediate(jobReference, params)
	if err != nil {
		return err
	}

	fmt.Printf("%s Enqueued %s for %s\n", sym.Queue, req.ID, jobReference)
	return nil
}

func runQueueStatus(requestID string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	req, err := queue.NewQueue(database).Get(requestID)
	if err != nil {
		return err
	}

	fmt.Printf("%s Request %s\n", sym.Queue, req.ID)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Job reference: %s\n", req.JobReference)
	fmt.Printf("Type:          %s\n", req.Type)
	fmt.Printf("Status:        %s\n", req.Status)
	fmt.Printf("Requested at:  %s\n", req.RequestedAt.Format(time.RFC3339))
	if req.ClaimedAt != nil {
		fmt.Printf("Claimed at:    %s (by %s)\n", req.ClaimedAt.Format(time.RFC3339), req.ClaimedBy)
	}
	if req.CompletedAt != nil {
		fmt.Printf("Completed at:  %s\n", req.CompletedAt.Format(time.RFC3339))
	}
	if len(req.Payload) > 0 {
		fmt.Printf("Payload:       %s\n", string(req.Payload))
	}
	if req.Result != nil {
		fmt.Printf("Success:       %t\n", req.Result.Success)
		if req.Result.Message != "" {
			fmt.Printf("Message:       %s\n", req.Result.Message)
		}
		if len(req.Result.Metrics) > 0 {
			metrics, _ := json.Marshal(req.Result.Metrics)
			fmt.Printf("Metrics:       %s\n", string(metrics))
		}
	}
	return nil
}

func runQueueCleanup(olderThan time.Duration) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	removed, err := queue.NewQueue(database).Cleanup(olderThan)
	if err != nil {
		return err
	}

	fmt.Printf("%s Removed %d terminal request(s) older than %v\n", sym.Queue, removed, olderThan)
	return nil
}

// shortID truncates request/schedule IDs for table display.
func shortID(id string) string {
	if len(id) > 14 {
		return id[:14]
	}
	return id
}

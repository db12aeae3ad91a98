package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/report"
)

func init() {
	approvalsCmd.Flags().StringVar(&approvalsFormat, "format", "table", "Output format: table, markdown, json")
	reviewCmd.Flags().StringVar(&reviewReviewer, "reviewer", "", "Reviewer identity (required)")
	reviewCmd.Flags().StringVar(&reviewReason, "reason", "", "Review reason")
	reviewCmd.Flags().BoolVar(&reviewDeny, "deny", false, "Deny instead of approve")
	approvalsCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(approvalsCmd)
}

var (
	approvalsFormat string
	reviewReviewer  string
	reviewReason    string
	reviewDeny      bool
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Show the pending approval queue",
	RunE:  runApprovals,
}

func runApprovals(cmd *cobra.Command, args []string) error {
	var out struct {
		Queue []report.QueueItem `json:"queue"`
	}
	if err := getJSON("/api/approvals", &out); err != nil {
		return err
	}
	if len(out.Queue) == 0 {
		fmt.Println("Nothing awaiting approval.")
		return nil
	}

	switch approvalsFormat {
	case "json":
		return report.WriteJSON(os.Stdout, out.Queue)
	case "markdown":
		report.WriteMarkdown(os.Stdout, out.Queue)
	default:
		report.WriteTable(os.Stdout, out.Queue)
	}
	return nil
}

var reviewCmd = &cobra.Command{
	Use:   "review <task-id>",
	Short: "Approve or deny a held task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reviewReviewer == "" {
			return fmt.Errorf("--reviewer is required")
		}
		body := map[string]any{
			"approved": !reviewDeny,
			"reviewer": reviewReviewer,
			"reason":   reviewReason,
		}
		var rec domain.TaskRecord
		if err := postJSON("/api/approvals/"+args[0]+"/review", body, &rec); err != nil {
			return err
		}
		fmt.Printf("task %s → %s (reviewed %s)\n",
			rec.TaskID, rec.Status, time.UnixMilli(rec.Approval.ReviewedAt).Format(time.RFC3339))
		return nil
	},
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swarmlab/swarm/internal/domain"
)

func init() {
	dispatchCmd.Flags().StringVar(&dispatchTarget, "target", "", "Target agent id (omit to route by capability)")
	dispatchCmd.Flags().StringVar(&dispatchPriority, "priority", "normal", "Priority: low, normal, high, critical")
	dispatchCmd.Flags().StringSliceVar(&dispatchCapabilities, "capability", nil, "Required capability (repeatable)")
	dispatchCmd.Flags().StringSliceVar(&dispatchRiskTags, "risk-tag", nil, "Risk tag (repeatable)")
	dispatchCmd.Flags().BoolVar(&dispatchApproval, "require-approval", false, "Hold the task for human approval")
	rootCmd.AddCommand(dispatchCmd)
}

var (
	dispatchTarget       string
	dispatchPriority     string
	dispatchCapabilities []string
	dispatchRiskTags     []string
	dispatchApproval     bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <task text>",
	Short: "Dispatch a task to the fleet",
	Args:  cobra.ExactArgs(1),
	RunE:  runDispatch,
}

func runDispatch(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"target":   dispatchTarget,
		"task":     args[0],
		"priority": dispatchPriority,
		"context": domain.TaskContext{
			RequiredCapabilities:  dispatchCapabilities,
			RiskTags:              dispatchRiskTags,
			RequiresHumanApproval: dispatchApproval,
		},
	}

	var rec domain.TaskRecord
	if err := postJSON("/api/tasks", body, &rec); err != nil {
		return err
	}

	fmt.Printf("task %s → %s (%s)\n", rec.TaskID, rec.Target, rec.Status)
	if rec.Status == domain.StatusAwaitingApproval && rec.Approval != nil {
		fmt.Printf("held for %s approval: %s\n", rec.Approval.ReviewerGroup, rec.Approval.Reason)
	}
	return nil
}

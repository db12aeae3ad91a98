package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmlab/swarm/internal/planner"
)

func init() {
	planCmd.Flags().StringVar(&planTarget, "target", "", "Default target agent for packaged requests")
	planCmd.Flags().BoolVar(&planIncludePending, "include-pending", false, "Package approval-pending tasks with a constraint instead of blocking them")
	planCmd.Flags().BoolVar(&planCompileOnly, "compile-only", false, "Print the compiled DAG without packaging")
	rootCmd.AddCommand(planCmd)
}

var (
	planTarget         string
	planIncludePending bool
	planCompileOnly    bool
)

var planCmd = &cobra.Command{
	Use:   "plan <recommendations.json>",
	Short: "Compile recommendations into a task DAG and package them",
	Long: `Read a JSON array of recommendations, compile it into a dependency-
ordered task DAG, and print either the DAG or the packaged task requests.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var recs []planner.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("parse recommendations: %w", err)
	}

	dag, err := planner.Compile(recs)
	if err != nil {
		return err
	}
	if planCompileOnly {
		return printJSON(dag)
	}

	out, err := planner.Package(dag, planner.PackageOptions{
		DefaultTarget:          planTarget,
		IncludeApprovalPending: planIncludePending,
		CreatedAtBase:          time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "compiled %d task(s), %d edge(s), max depth %d; packaged %d, blocked %d\n",
		dag.Summary.TaskCount, dag.Summary.EdgeCount, dag.Summary.MaxDepth,
		out.Stats.Requested, out.Stats.Blocked)
	return printJSON(out)
}

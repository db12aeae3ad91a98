package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/swarmlab/swarm/internal/domain"
)

func init() {
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "Filter by status")
	tasksCmd.Flags().StringVar(&tasksTarget, "target", "", "Filter by target agent")
	tasksCmd.Flags().BoolVar(&tasksOpen, "open", false, "Only non-terminal tasks")
	tasksCmd.AddCommand(taskShowCmd)
	rootCmd.AddCommand(tasksCmd)
}

var (
	tasksStatus string
	tasksTarget string
	tasksOpen   bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tracked tasks",
	RunE:  runTasks,
}

func runTasks(cmd *cobra.Command, args []string) error {
	path := "/api/tasks?"
	if tasksStatus != "" {
		path += "status=" + tasksStatus + "&"
	}
	if tasksTarget != "" {
		path += "target=" + tasksTarget + "&"
	}
	if tasksOpen {
		path += "open=true"
	}

	var out struct {
		Tasks []domain.TaskRecord `json:"tasks"`
	}
	if err := getJSON(path, &out); err != nil {
		return err
	}
	if len(out.Tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tTARGET\tATTEMPTS\tPRIORITY\tCREATED")
	for _, t := range out.Tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			t.TaskID,
			t.Status,
			t.Target,
			t.Attempts, t.MaxRetries+1,
			t.Request.Priority,
			formatMillis(t.CreatedAt),
		)
	}
	return w.Flush()
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task record in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec domain.TaskRecord
		if err := getJSON("/api/tasks/"+args[0], &rec); err != nil {
			return err
		}
		return printJSON(rec)
	},
}

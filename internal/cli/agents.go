package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/swarmlab/swarm/internal/domain"
	"github.com/swarmlab/swarm/internal/registry"
)

func init() {
	agentsCmd.AddCommand(agentsHealthCmd)
	rootCmd.AddCommand(agentsCmd)
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents known to the registry",
	RunE:  runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	var out struct {
		Agents []domain.AgentPresence `json:"agents"`
	}
	if err := getJSON("/api/agents", &out); err != nil {
		return err
	}
	if len(out.Agents) == 0 {
		fmt.Println("No agents have reported in.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSTATUS\tLOAD\tCAPABILITIES\tLAST HEARTBEAT")
	for _, a := range out.Agents {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n",
			a.ID,
			a.Status,
			a.Load,
			strings.Join(a.Capabilities, ","),
			formatMillis(a.LastHeartbeatAt),
		)
	}
	return w.Flush()
}

var agentsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show fleet health summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		var sum registry.HealthSummary
		if err := getJSON("/api/agents/health", &sum); err != nil {
			return err
		}
		return printJSON(sum)
	},
}

// Package cli implements the swarm command-line interface using Cobra.
// Operational commands talk to a running daemon over its HTTP API; plan
// and verify work directly against local files.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "swarm — agent task orchestration",
	Long: `swarm dispatches tasks across a fleet of agents, tracks them to a
terminal state with retries and timeouts, screens them through dispatch
and approval policies, and records every lifecycle event in a signed
audit log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serverURL string

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Base URL of the swarm daemon (default from config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

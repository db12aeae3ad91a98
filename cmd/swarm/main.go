// Package main is the single-binary entrypoint for the swarm
// orchestrator: daemon, operator CLI, and planner in one.
package main

import "github.com/swarmlab/swarm/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

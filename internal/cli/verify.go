package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/swarmlab/swarm/internal/audit"
	"github.com/swarmlab/swarm/internal/daemon"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the signed audit chain",
	Long:  `Re-derive every hash and signature in the local audit log from genesis and report the first break, if any.`,
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir = filepath.Join(daemon.SwarmHome(), "data")
	}
	secret, err := audit.LoadOrCreateSecret(daemon.SwarmHome())
	if err != nil {
		return err
	}
	logFile, err := audit.New(filepath.Join(dataDir, "audit.jsonl"), secret, cfg.Audit.KeyID, nil)
	if err != nil {
		return err
	}

	res, err := logFile.VerifyChain()
	if err != nil {
		return err
	}
	if res.OK {
		fmt.Printf("audit chain OK: %d entries verified\n", res.Count)
		return nil
	}
	return fmt.Errorf("audit chain BROKEN at entry %d: %s", res.FailedAt, res.Reason)
}

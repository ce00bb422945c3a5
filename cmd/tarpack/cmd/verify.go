package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the recorded manifest against the remote's actual contents",
	Long: `Verify lists the remote's container objects and cross-checks them against
the manifest in force. A referenced container missing from the remote means
drift and exits non-zero; unreferenced containers are reported as orphans.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		e, err := paramsToEngine(".")
		if err != nil {
			wrapFatalln("configure sync engine", err)
			return
		}

		report, m, err := e.Verify(ctx)
		if err != nil {
			wrapFatalln("verify", err)
			return
		}

		infoLogger.Printf("manifest %s: %d group(s)", m.ID, len(m.Groups))
		for _, key := range report.Orphaned {
			infoLogger.Printf("orphaned container: %s", key)
		}
		if !report.InSync() {
			for _, key := range report.Missing {
				infoLogger.Printf("missing container: %s", key)
			}
			wrapFatalWithCodef(exitPartialFailure, "%d referenced container(s) missing from remote", len(report.Missing))
			return
		}
		infoLogger.Println("manifest and remote are in sync")
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <directory>",
	Short: "Sync a directory tree to the remote store",
	Long: `Upload snapshots the directory, reconciles it against the last committed
manifest and transfers only the containers that changed. The new manifest
commits only when every operation succeeded; a run with failed operations
leaves the recorded state untouched and exits non-zero.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		e, err := paramsToEngine(args[0])
		if err != nil {
			wrapFatalln("configure sync engine", err)
			return
		}

		report, err := e.Upload(ctx)
		if err != nil {
			wrapFatalln("upload", err)
			return
		}
		infoLogger.Println(report)
		if !report.Ok() {
			wrapFatalWithCodef(exitPartialFailure, "%d operation(s) failed, manifest not committed", len(report.Failures))
			return
		}
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	addSyncFlags(uploadCmd)
}

package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Restore the synced tree from the remote store",
	Long: `Download materializes the manifest in force under the destination
directory: containers decode back to files with their recorded ownership,
permissions, timestamps, ACLs and sparse layout; empty directories and hard
link groups are recreated.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		e, err := paramsToEngine(".")
		if err != nil {
			wrapFatalln("configure sync engine", err)
			return
		}

		report, err := e.Download(ctx, params.download.dest)
		if err != nil {
			wrapFatalln("download", err)
			return
		}
		infoLogger.Println(report)
		if !report.Ok() {
			wrapFatalWithCodef(exitPartialFailure, "%d path(s) failed to restore", len(report.Failures))
			return
		}
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addSyncFlags(downloadCmd)
	addDestFlag(downloadCmd)
}

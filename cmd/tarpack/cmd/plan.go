package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/tarpack/tarpack/pkg/model"
)

var planCmd = &cobra.Command{
	Use:   "plan <directory>",
	Short: "Show what an upload would do without transferring anything",
	Long: `Plan snapshots the directory and reconciles it against the last committed
manifest, printing the operation list an upload run would execute. The
remote is only read, never written.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		e, err := paramsToEngine(args[0])
		if err != nil {
			wrapFatalln("configure sync engine", err)
			return
		}

		plan, snap, err := e.Plan(ctx)
		if err != nil {
			wrapFatalln("plan", err)
			return
		}

		for _, op := range plan.Operations {
			if op.Type == model.OpSkip {
				continue
			}
			infoLogger.Println(op)
		}
		skip, upload, replace, del := plan.Counts()
		infoLogger.Printf("skip %d, upload %d, replace %d, delete %d", skip, upload, replace, del)
		for _, s := range snap.Skipped {
			infoLogger.Printf("skipped entry: %s: %v", s.Path, s.Cause)
		}
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	addSyncFlags(planCmd)
}

package cmd

import (
	"github.com/spf13/cobra"
)

var fromCheckpoint int

var recoverCmd = &cobra.Command{
	Use:   "recover [workflow_id]",
	Short: "Recover a failed or cancelled workflow from a checkpoint",
	Long: `Trigger recovery of a failed or cancelled workflow. Without flags the
workflow resumes from its latest recoverable checkpoint; --from-checkpoint
selects an explicit step instead. Recovery assigns a fresh execution id.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClient(cmd)
		if !ok {
			return
		}

		var from *int
		if cmd.Flags().Changed("from-checkpoint") {
			from = &fromCheckpoint
		}

		result, err := client.RecoverWorkflow(args[0], from)
		if err != nil {
			cmd.Printf("Failed to recover workflow: %v\n", err)
			return
		}

		cmd.Printf("%s✓%s Recovery started\n", colorGreen, colorReset)
		cmd.Printf("%sExecution:%s      %s\n", colorDim, colorReset, result.ExecutionID)
		cmd.Printf("%sRecovered from:%s step %d\n", colorDim, colorReset, result.RecoveredFrom)
		cmd.Printf("%sCheckpoints:%s    %d available\n", colorDim, colorReset, len(result.AvailableCheckpoints))
	},
}

func init() {
	recoverCmd.Flags().IntVar(&fromCheckpoint, "from-checkpoint", 0, "recover from an explicit checkpoint step instead of the latest")
	rootCmd.AddCommand(recoverCmd)
}

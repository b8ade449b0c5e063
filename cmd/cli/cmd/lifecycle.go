package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var retryCmd = &cobra.Command{
	Use:   "retry [tenant_id]",
	Short: "Retry a failed store",
	Long: `Re-enqueue provisioning for a failed store. The pipeline starts from
the beginning; completed resources from the previous attempt are reused or
replaced so retrying is always safe.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFleetClient(viper.GetString("url"))
		resp, err := client.RetryStore(args[0])
		if err != nil {
			cmd.Printf("Failed to retry store: %v\n", err)
			return
		}
		cmd.Printf("Retry queued (job %s)\n", resp.JobID)
	},
}

var suspendCmd = &cobra.Command{
	Use:   "suspend [tenant_id]",
	Short: "Suspend an active store",
	Long: `Suspend a store: it stops serving traffic but keeps its data, port and
placement so resuming is cheap.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")

		client := NewFleetClient(viper.GetString("url"))
		resp, err := client.SuspendStore(args[0], reason)
		if err != nil {
			cmd.Printf("Failed to suspend store: %v\n", err)
			return
		}
		cmd.Printf("Suspension queued (job %s)\n", resp.JobID)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [tenant_id]",
	Short: "Resume a suspended store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFleetClient(viper.GetString("url"))
		resp, err := client.ResumeStore(args[0])
		if err != nil {
			cmd.Printf("Failed to resume store: %v\n", err)
			return
		}
		cmd.Printf("Resume queued (job %s)\n", resp.JobID)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [tenant_id]",
	Short: "Delete a store and tear down its resources",
	Long: `Delete a store. A placed store is torn down asynchronously: containers,
volumes, workspace, proxy route, port and quota are all released before the
record disappears.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			cmd.Println("This permanently deletes the store and its data. Re-run with --yes to confirm.")
			return
		}

		client := NewFleetClient(viper.GetString("url"))
		resp, err := client.DeleteStore(args[0])
		if err != nil {
			cmd.Printf("Failed to delete store: %v\n", err)
			return
		}
		if resp.JobID != "" {
			cmd.Printf("Teardown queued (job %s)\n", resp.JobID)
		} else {
			cmd.Println("Store deleted")
		}
	},
}

func init() {
	suspendCmd.Flags().String("reason", "", "Reason for the suspension (required)")
	suspendCmd.MarkFlagRequired("reason")

	deleteCmd.Flags().Bool("yes", false, "Confirm deletion")

	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(suspendCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(deleteCmd)
}

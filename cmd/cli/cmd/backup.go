package cmd

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storefleet/internal/backup"
	"storefleet/internal/logger"
)

// backup and restore invoke the external tool directly, so these
// commands must run on the worker host that owns the tenant.

var backupCmd = &cobra.Command{
	Use:   "backup [tenant_id]",
	Short: "Snapshot a tenant's database and files",
	Long: `Run the external backup tool for a tenant and print the snapshot id.
Must be executed on the worker host the tenant is placed on.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tenantID, err := uuid.Parse(args[0])
		if err != nil {
			cmd.Printf("Invalid tenant id: %v\n", err)
			return
		}
		scope, _ := cmd.Flags().GetString("scope")
		bin := viper.GetString("backup_command")
		if bin == "" {
			bin = "storefleet-backup"
		}

		runner := backup.NewRunner(bin, 30*time.Minute, logger.New("info"))
		snapshotID, err := runner.Backup(context.Background(), tenantID, backup.Scope(scope))
		if err != nil {
			cmd.Printf("Backup failed: %v\n", err)
			return
		}
		cmd.Printf("Snapshot: %s\n", snapshotID)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [tenant_id] [snapshot_id]",
	Short: "Restore a tenant from a snapshot",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		tenantID, err := uuid.Parse(args[0])
		if err != nil {
			cmd.Printf("Invalid tenant id: %v\n", err)
			return
		}
		scope, _ := cmd.Flags().GetString("scope")
		bin := viper.GetString("backup_command")
		if bin == "" {
			bin = "storefleet-backup"
		}

		runner := backup.NewRunner(bin, 30*time.Minute, logger.New("info"))
		if err := runner.Restore(context.Background(), tenantID, args[1], backup.Scope(scope)); err != nil {
			cmd.Printf("Restore failed: %v\n", err)
			return
		}
		cmd.Println("Restore completed")
	},
}

func init() {
	backupCmd.Flags().String("scope", string(backup.ScopeBoth), "Scope: db, files or both")
	restoreCmd.Flags().String("scope", string(backup.ScopeBoth), "Scope: db, files or both")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storefleet/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [tenant_id]",
	Short: "Get status of a store",
	Long: `Retrieve a store's lifecycle state, placement and recent provisioning
attempts.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFleetClient(viper.GetString("url"))

		store, err := client.GetStore(args[0])
		if err != nil {
			cmd.Printf("Failed to fetch store: %v\n", err)
			return
		}
		printStore(cmd, store)

		jobs, err := client.ListStoreJobs(args[0])
		if err != nil {
			cmd.Printf("Failed to fetch jobs: %v\n", err)
			return
		}
		if len(jobs) > 0 {
			cmd.Printf("\n%sRecent jobs%s\n", colorBold, colorReset)
			cmd.Println("──────────────────────────────")
			for _, j := range jobs {
				printJobLine(cmd, j)
			}
		}
	},
}

func printStore(cmd *cobra.Command, s *api.StoreResponse) {
	cmd.Printf("%s %sStore Details%s\n", statusIcon(s.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s        %s\n", colorDim, colorReset, s.ID)
	cmd.Printf("%sName:%s      %s\n", colorDim, colorReset, s.Name)
	cmd.Printf("%sDomain:%s    %s\n", colorDim, colorReset, s.Domain)
	cmd.Printf("%sPlatform:%s  %s\n", colorDim, colorReset, s.Platform)
	cmd.Printf("%sPlan:%s      %s\n", colorDim, colorReset, s.Plan)
	cmd.Printf("%sStatus:%s    %s\n", colorDim, colorReset, colorizeStatus(s.Status))

	if s.Server != "" {
		placement := s.Server
		if s.Port != nil {
			placement = fmt.Sprintf("%s:%d", s.Server, *s.Port)
		}
		cmd.Printf("%sPlaced on:%s %s\n", colorDim, colorReset, placement)
	}
	if s.SuspendReason != nil {
		cmd.Printf("%sSuspended:%s %s\n", colorDim, colorReset, *s.SuspendReason)
	}
	if s.LastError != nil {
		cmd.Printf("%sError:%s     %s%s%s\n", colorDim, colorReset, colorRed, *s.LastError, colorReset)
	}
	cmd.Printf("%sCreated:%s   %s\n", colorDim, colorReset, formatTime(s.CreatedAt))
}

func printJobLine(cmd *cobra.Command, j api.JobResponse) {
	line := fmt.Sprintf("%s %-9s %-9s %s", statusIcon(j.Status), j.Kind, j.Status, formatTime(j.EnqueuedAt))
	if j.ErrorStep != nil {
		line += fmt.Sprintf("  %sfailed at %s%s", colorRed, *j.ErrorStep, colorReset)
	}
	cmd.Println(line)
}

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorAmber = "\033[33m"
	colorCyan  = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "active", "succeeded":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "provisioning", "running":
		return colorAmber + "⏳" + colorReset
	case "pending", "queued":
		return colorCyan + "◯" + colorReset
	case "suspended":
		return colorAmber + "⏸" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "active", "succeeded":
		return icon + " " + colorGreen + status + colorReset
	case "failed":
		return icon + " " + colorRed + status + colorReset
	case "provisioning", "running", "suspended":
		return icon + " " + colorAmber + status + colorReset
	case "pending", "queued":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTime(t time.Time) string {
	return t.Format("Mon, 02 Jan 2006 15:04:05 MST")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

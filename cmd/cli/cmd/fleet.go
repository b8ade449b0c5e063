package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List registered worker hosts",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFleetClient(viper.GetString("url"))
		servers, err := client.ListServers()
		if err != nil {
			cmd.Printf("Failed to list servers: %v\n", err)
			return
		}

		if len(servers) == 0 {
			cmd.Println("No servers registered")
			return
		}

		cmd.Printf("%-20s %-22s %-12s %-13s %s\n", "NAME", "ADDRESS", "STATUS", "PORT RANGE", "LAST HEARTBEAT")
		for _, s := range servers {
			hb := "never"
			if s.LastHeartbeat != nil {
				hb = fmt.Sprintf("%s ago", time.Since(*s.LastHeartbeat).Round(time.Second))
			}
			cmd.Printf("%-20s %-22s %-12s %d-%-7d %s\n",
				s.Name, s.Address, s.Status, s.PortRangeStart, s.PortRangeEnd, hb)
		}
	},
}

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Show aggregate fleet health",
	Long: `Show per-server liveness, load and the queue depth. A server whose
heartbeat went stale is probed directly so a dead agent process can be told
apart from a dead host.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFleetClient(viper.GetString("url"))
		status, err := client.FleetStatus()
		if err != nil {
			cmd.Printf("Failed to fetch fleet status: %v\n", err)
			return
		}

		cmd.Printf("Queue depth: %d\n\n", status.QueueDepth)
		cmd.Printf("%-20s %-8s %-10s %s\n", "NAME", "LIVE", "TENANTS", "NOTE")
		for _, s := range status.Servers {
			live := colorGreen + "yes" + colorReset
			note := ""
			if !s.Live {
				live = colorRed + "no" + colorReset
				if s.Reachable != nil {
					if *s.Reachable {
						note = "host reachable, agent down"
					} else {
						note = "host unreachable"
					}
				}
			}
			cmd.Printf("%-20s %-17s %d/%-8d %s\n",
				s.Server.Name, live, s.TenantCount, s.Server.MaxTenants, note)
		}
	},
}

func init() {
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(fleetCmd)
}

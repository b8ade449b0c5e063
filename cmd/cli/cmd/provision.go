package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storefleet/pkg/api"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision a new store",
	Long: `Submit a new store for provisioning. The request is accepted once it
passes validation; the actual provisioning runs asynchronously on the worker
host the store is placed on. Use 'fleetctl status <tenant-id>' to follow it.`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		domain, _ := cmd.Flags().GetString("domain")
		platform, _ := cmd.Flags().GetString("platform")
		plan, _ := cmd.Flags().GetString("plan")
		server, _ := cmd.Flags().GetString("server")

		client := NewFleetClient(viper.GetString("url"))
		resp, err := client.CreateStore(api.CreateStoreRequest{
			Name:     name,
			Domain:   domain,
			Platform: platform,
			Plan:     plan,
			Server:   server,
		})
		if err != nil {
			cmd.Printf("Failed to provision store: %v\n", err)
			return
		}

		cmd.Printf("Store accepted for provisioning\n")
		cmd.Printf("  Tenant ID: %s\n", resp.TenantID)
		cmd.Printf("  Job ID:    %s\n", resp.JobID)
		cmd.Printf("  Status:    %s\n", resp.Status)
	},
}

func init() {
	provisionCmd.Flags().String("name", "", "Store display name (required)")
	provisionCmd.Flags().String("domain", "", "Store domain, e.g. shop.example.com (required)")
	provisionCmd.Flags().String("platform", "woocommerce", "Shop platform: woocommerce, prestashop or magento")
	provisionCmd.Flags().String("plan", "starter", "Plan tier: starter, business or enterprise")
	provisionCmd.Flags().String("server", "", "Pin the store to a named worker host")
	provisionCmd.MarkFlagRequired("name")
	provisionCmd.MarkFlagRequired("domain")

	rootCmd.AddCommand(provisionCmd)
}

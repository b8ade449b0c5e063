package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "Fleetctl is a command line tool for operating the storefleet platform",
	Long: `fleetctl is the command-line interface for the storefleet multi-tenant
store hosting platform.

storefleet provisions isolated e-commerce store environments across a fleet of
worker hosts. The controller owns the API and the durable job queue; each
worker host runs the provisioning pipelines for the tenants placed on it.

Common workflows:

  Provision a store:
    fleetctl provision --name "Acme Shop" --domain shop.acme.com --platform woocommerce --plan business

  Check a store:
    fleetctl status <tenant-id>

  Retry a failed store:
    fleetctl retry <tenant-id>

  Suspend and resume:
    fleetctl suspend <tenant-id> --reason "payment overdue"
    fleetctl resume <tenant-id>

  Inspect the fleet:
    fleetctl servers
    fleetctl fleet

  Back up a tenant (runs on the owning host):
    fleetctl backup <tenant-id> --scope both

Configuration:
  Set the API endpoint via a flag, environment variable or config file:
    STOREFLEET_URL    Controller endpoint (default: http://localhost:7070)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".fleetctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".fleetctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "STOREFLEET_VARNAME"
	viper.SetEnvPrefix("STOREFLEET")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fleetctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:7070", "storefleet Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}

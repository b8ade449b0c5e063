// Package main is the entry point for the storefleet CLI.
// The CLI is the operator terminal tool for interacting with the storefleet API.
package main

import (
	"os"

	"storefleet/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

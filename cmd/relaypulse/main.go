package main

import (
	"os"

	cmd "github.com/covertnetworks/relaypulse/cmd/relaypulse/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.NewKeygenCmd(),
		cmd.NewRunCmd(),
		cmd.NewDistributeCmd(),
		cmd.NewBrokerCmd(),
		cmd.VersionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

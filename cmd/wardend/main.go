package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/core/cmd/wardend/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wardend",
		Short: "Warden daemon",
		Long:  `Warden is a long-running background process with a locally persisted state document and an HTTP IPC surface for inspecting and mutating it.`,
	}

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewCheckConfigCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}

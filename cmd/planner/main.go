package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tazhate/familyplanner/cmd/planner/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "planner",
		Short:         "FamilyPlanner calendar backend",
		Long:          "FamilyPlanner keeps recurring events, their exceptions and reminders, and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewImportCommand())
	rootCmd.AddCommand(commands.NewRuleCommand())
	rootCmd.AddCommand(commands.NewCalDAVCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}

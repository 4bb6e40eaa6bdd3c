package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmaster/notifier/cmd/notifier/commands"
)

// @title Todo Notifier API
// @version 1.0
// @description Todo notification trigger endpoints

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rootCmd := &cobra.Command{
		Use:   "notifier",
		Short: "Todo notification scheduler",
		Long:  `Notifier watches a todo store and emails assignees when items are created, updated, coming due or overdue.`,
	}

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewSweepCommand())
	rootCmd.AddCommand(commands.NewEvaluateCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewTokenCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}

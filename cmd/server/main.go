package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"defter-backend/internal/config"
	"defter-backend/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

// cfg is loaded once by the root command before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "defter",
	Short: "Defter - bookkeeping backend for small businesses",
	Long: `Defter serves the bookkeeping API: customers, vendors, products,
invoices, payments, returns, incomes, expenses, the balance sheet ledger
and reports.

Configuration is read from the environment. A .env file in the working
directory is loaded first when present.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := logger.Setup(logger.LogConfig{Level: c.LogLevel, Format: c.LogFormat}); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		cfg = c
		return nil
	},
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"

	"defter-backend/internal/database"
	"defter-backend/internal/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Init(cfg); err != nil {
			return err
		}
		return database.Close()
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Delete all data and recreate the schema",
	Long: `Deletes every table of the configured database and migrates it again.
A file backed sqlite database is removed from disk. Receipt files are kept.`,
	Example: `  defter reset-db --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to reset %s database without --force", cfg.DatabaseDriver)
		}
		if err := database.Reset(cfg); err != nil {
			return err
		}
		log := logger.WithComponent("cmd")
		log.Warn().Str("driver", cfg.DatabaseDriver).Msg("database reset")
		return database.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	// Needs no configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	resetCmd.Flags().Bool("force", false, "Confirm that all data will be deleted")
	rootCmd.AddCommand(migrateCmd, resetCmd, versionCmd)
}

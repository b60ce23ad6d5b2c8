package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"leasing/risk-engine/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations to store.database_url",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.DatabaseURL == "" {
			return eris.New("store.database_url is not set")
		}
		if err := store.Migrate(cmd.Context(), cfg.Store.DatabaseURL); err != nil {
			return err
		}
		files, _ := store.MigrationFiles()
		logger.Info("migrations applied", "available", len(files))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Run: func(cmd *cobra.Command, _ []string) {
		logger, config := bootstrap("migrate")

		url, err := databaseURL(config.Database)
		if err != nil {
			logger.Fatal("database is not configured", zap.Error(err))
		}
		if err := postgres.Migrate(cmd.Context(), url); err != nil {
			logger.Fatal("migrating the database", zap.Error(err))
		}
		logger.Info("schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

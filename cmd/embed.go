package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Backfill missing or stale job embeddings, or refresh a user's profile vector",
	Run: func(cmd *cobra.Command, _ []string) {
		runEmbed(cmd)
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().Int("page-size", 0, "jobs embedded per page (default is embedding.batch-size)")
	embedCmd.Flags().StringP("user", "u", "", "refresh this user's profile embedding instead of the catalog")
}

func runEmbed(cmd *cobra.Command) {
	ctx := cmd.Context()
	logger, config := bootstrap("embed")

	pageSize, _ := cmd.Flags().GetInt("page-size")
	user, _ := cmd.Flags().GetString("user")

	rt, err := newRuntime(ctx, config, logger, runtimeOptions{})
	if err != nil {
		logger.Fatal("building the runtime", zap.Error(err))
	}
	defer rt.Close()

	if rt.queue == nil {
		rt.Close()
		logger.Fatal("embedding model is not configured", zap.String("hint", "set the ai.gemini section"))
	}

	if user != "" {
		if err := rt.service.ProfileChanged(ctx, user); err != nil {
			rt.Close()
			logger.Fatal("refreshing profile embedding", zap.Error(err))
		}
		logger.Info("profile embedding refreshed", zap.String("user", user))
		return
	}

	n, err := rt.pipeline.Backfill(ctx, rt.stores.jobs, pageSize)
	if err != nil {
		rt.Close()
		logger.Fatal("backfilling embeddings", zap.Int("embedded", n), zap.Error(err))
	}
	logger.Info("backfill finished", zap.Int("embedded", n))
}

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show a user's monthly usage and import history",
	Run: func(cmd *cobra.Command, _ []string) {
		runQuota(cmd)
	},
}

func init() {
	rootCmd.AddCommand(quotaCmd)

	quotaCmd.Flags().StringP("user", "u", "", "user to report on (required)")
	quotaCmd.Flags().IntP("history", "n", 10, "number of recent imports to list, 0 to skip")

	quotaCmd.MarkFlagRequired("user")
}

func runQuota(cmd *cobra.Command) {
	ctx := cmd.Context()
	logger, config := bootstrap("quota")

	user, _ := cmd.Flags().GetString("user")
	history, _ := cmd.Flags().GetInt("history")

	rt, err := newRuntime(ctx, config, logger, runtimeOptions{})
	if err != nil {
		logger.Fatal("building the runtime", zap.Error(err))
	}
	defer rt.Close()

	checks, err := rt.service.Quota(ctx, user)
	if err != nil {
		rt.Close()
		logger.Fatal("reading usage", zap.Error(err))
	}
	printJSON(checks)

	if history <= 0 {
		return
	}
	imports, err := rt.service.History(ctx, user, history)
	if err != nil {
		rt.Close()
		logger.Fatal("reading import history", zap.Error(err))
	}
	printJSON(imports)
}

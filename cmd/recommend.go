package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/recommend"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Print the top scored jobs for a user",
	Run: func(cmd *cobra.Command, _ []string) {
		runRecommend(cmd)
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().StringP("user", "u", "", "user to recommend jobs to")
	recommendCmd.Flags().IntP("limit", "l", 10, "number of recommendations")
	recommendCmd.Flags().String("similar-to", "", "list jobs close to this job id instead of scoring")
}

func runRecommend(cmd *cobra.Command) {
	ctx := cmd.Context()
	logger, config := bootstrap("recommend")

	user, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	similarTo, _ := cmd.Flags().GetString("similar-to")
	if user == "" && similarTo == "" {
		logger.Fatal("either --user or --similar-to is required")
	}

	rt, err := newRuntime(ctx, config, logger, runtimeOptions{NeedGenerator: true})
	if err != nil {
		logger.Fatal("building the runtime", zap.Error(err))
	}
	defer rt.Close()

	if similarTo != "" {
		jobs, err := rt.recommender.SimilarJobs(ctx, similarTo, limit)
		if err != nil {
			rt.Close()
			logger.Fatal("finding similar jobs", zap.Error(err))
		}
		printJSON(jobs)
		return
	}

	results, err := rt.service.Recommendations(ctx, user, limit)
	if errors.Is(err, recommend.ErrProfileNotFound) {
		rt.Close()
		logger.Fatal("user has no profile", zap.String("user", user))
	}
	if err != nil {
		rt.Close()
		logger.Fatal("getting recommendations", zap.Error(err))
	}

	fallbacks := 0
	for _, r := range results {
		if r.Fallback {
			fallbacks++
		}
	}
	logger.Info("recommendations ready", zap.Int("count", len(results)), zap.Int("fallbacks", fallbacks))
	printJSON(results)
}

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/app"
	"github.com/spigell/job-radar/internal/scheduler"
)

const stopTimeout = 30 * time.Second

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run periodic imports and usage cleanup until interrupted",
	Run: func(cmd *cobra.Command, _ []string) {
		runSchedule(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().Bool("run-on-start", false, "run every task once right after start")
}

func runSchedule(cmd *cobra.Command) {
	ctx := cmd.Context()
	logger, config := bootstrap("schedule")

	if cmd.Flags().Changed("run-on-start") {
		config.Schedule.RunOnStart, _ = cmd.Flags().GetBool("run-on-start")
	}

	rt, err := newRuntime(ctx, config, logger, runtimeOptions{})
	if err != nil {
		logger.Fatal("building the runtime", zap.Error(err))
	}
	defer rt.Close()

	tasks := scheduler.Tasks{
		Ingest: func(ctx context.Context) error {
			res, err := rt.service.Import(ctx, app.ImportRequest{})
			if res.Stats != nil {
				logger.Info("scheduled import finished",
					zap.Int("imported", res.Stats.Imported),
					zap.Int("updated", res.Stats.Updated),
					zap.Int("errors", res.Stats.Errors),
				)
			}
			return err
		},
		Cleanup: func(ctx context.Context) error {
			_, err := rt.limiter.Cleanup(ctx)
			return err
		},
	}

	s, err := scheduler.New(config.Schedule, tasks, logger)
	if err != nil {
		rt.Close()
		logger.Fatal("building the scheduler", zap.Error(err))
	}
	if s.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no tasks are scheduled"))
		return
	}

	s.Start(ctx)
	<-ctx.Done()

	logger.Info("stopping the scheduler")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	s.Stop(stopCtx)

	if rt.queue != nil {
		logger.Info("embedding queue", zap.Any("stats", rt.queue.Stats()))
	}
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/clew-freshness/internal/curator"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Runs the curator on a cron schedule until interrupted",
		Long: `Runs the curator on schedule.spec (weekly, Monday 06:00 by default).
A run that is still going when the next one is due causes that tick to be
skipped.`,
		Args: cobra.NoArgs,
		RunE: runScheduleCommand,
	}
}

// curatorRunner is satisfied by *app.App.
type curatorRunner interface {
	Execute(ctx context.Context) curator.Result
}

func runScheduleCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	sched := appInstance.Config.Schedule
	return runSchedule(cmd.Context(), sched.Spec, sched.RunOnStart, appInstance, appInstance.Logger)
}

func runSchedule(ctx context.Context, spec string, runOnStart bool, runner curatorRunner, logger *zap.Logger) error {
	clog := cronLogger{logger: logger.Sugar()}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))

	runOnce := func() {
		res := runner.Execute(ctx)
		logger.Info("scheduled curator run finished",
			zap.String("run_id", res.RunID),
			zap.String("status", res.Status),
			zap.String("message", res.Message),
		)
	}
	id, err := c.AddFunc(spec, runOnce)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("scheduler started", zap.String("spec", spec), zap.Time("next_run", c.Entry(id).Schedule.Next(time.Now())))
	if runOnStart {
		c.Entry(id).WrappedJob.Run()
	}

	<-ctx.Done()
	logger.Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

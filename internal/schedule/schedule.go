// Package schedule repeats runs on a cron schedule and decides when a run
// falls inside a maintenance window.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks a standard five-field cron expression.
func Validate(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return nil
}

// Run calls fn on every activation of expr until ctx is done. An activation
// that arrives while fn is still running is skipped.
func Run(ctx context.Context, expr string, loc *time.Location, logger *slog.Logger, fn func(context.Context)) error {
	if loc == nil {
		loc = time.UTC
	}
	if err := Validate(expr); err != nil {
		return err
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	if _, err := c.AddFunc(expr, func() { fn(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", expr, err)
	}
	c.Start()
	logger.Info("schedule started", "cron", expr, "timezone", loc.String())

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("schedule stopped")
	return ctx.Err()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

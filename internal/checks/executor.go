// Package checks runs the configured monitors and collects their results.
package checks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
	"github.com/osbits/obtmon/internal/workpool"
)

// Executor runs monitors through a process runner.
type Executor struct {
	Runner process.Runner
	// Workers bounds concurrent monitors; values below 2 run them one at a time.
	Workers int
	Logger  *slog.Logger
}

// Execute runs every spec and returns one result per spec, in spec order.
// Once ctx is done no further monitors are started; those left over are
// reported as spawn failures.
func (e *Executor) Execute(ctx context.Context, specs []registry.Spec) []Result {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(specs) == 0 {
		logger.Info("no monitors to run")
		return nil
	}

	logger.Debug("STARTING all monitors", "count", len(specs), "workers", max(e.Workers, 1))
	results := workpool.Map(ctx, specs, e.Workers,
		func(_ int, spec registry.Spec) Result {
			return e.runOne(logger, spec)
		},
		func(_ int, spec registry.Spec, err error) Result {
			logger.Warn("monitor not started", "monitor", spec.Name, "error", err)
			return Result{
				Spec:       spec,
				ExitStatus: process.SpawnFailure,
				Stderr:     fmt.Sprintf("not started: %v", err),
				StartedAt:  time.Now(),
			}
		},
	)
	logger.Debug("FINISHED all monitors", "count", len(results), "failed", len(Failed(results)))
	return results
}

func (e *Executor) runOne(logger *slog.Logger, spec registry.Spec) Result {
	logger.Debug("starting work on monitor", "monitor", spec.Name)
	logger.Debug("running command", "monitor", spec.Name, "command", process.CommandLine(spec.Command))

	res := fromProcess(spec, e.Runner.Run(spec.Command, nil))

	logger.Debug("finished work on monitor",
		"monitor", spec.Name,
		"exit_status", res.ExitStatus,
		"duration", res.Duration,
		"stdout", res.Stdout,
		"stderr", res.Stderr,
	)
	if !res.Passed() {
		logger.Debug("found error while working on monitor", "monitor", spec.Name)
	}
	return res
}

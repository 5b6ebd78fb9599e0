// Package reporter hands the failure report to each configured reporter.
package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
	"github.com/osbits/obtmon/internal/workpool"
)

// Result captures one reporter invocation. Reporter results are logged and
// recorded but never escalated.
type Result struct {
	Spec       registry.Spec
	ExitStatus int
	Stdout     string
	Stderr     string
	StartedAt  time.Time
	Duration   time.Duration
}

// Delivered reports whether the reporter exited with status zero.
func (r Result) Delivered() bool {
	return r.ExitStatus == 0
}

// Dispatcher feeds a report to reporters through a process runner.
type Dispatcher struct {
	Runner  process.Runner
	Workers int
	Logger  *slog.Logger
}

// Dispatch sends report to every reporter on its stdin. A failing reporter
// is logged as a warning and never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, specs []registry.Spec, report string) []Result {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(specs) == 0 {
		logger.Debug("not issuing any reports, since no reporters were given")
		return nil
	}

	logger.Debug("STARTING all reporters", "count", len(specs))
	results := workpool.Map(ctx, specs, d.Workers,
		func(_ int, spec registry.Spec) Result {
			return d.send(logger, spec, report)
		},
		func(_ int, spec registry.Spec, err error) Result {
			res := Result{
				Spec:       spec,
				ExitStatus: process.SpawnFailure,
				Stderr:     fmt.Sprintf("not started: %v", err),
				StartedAt:  time.Now(),
			}
			warnFailed(logger, res)
			return res
		},
	)
	logger.Debug("FINISHED all reporters", "count", len(results))
	return results
}

func (d *Dispatcher) send(logger *slog.Logger, spec registry.Spec, report string) Result {
	logger.Debug("starting work on reporter", "reporter", spec.Name)
	logger.Debug("running command", "reporter", spec.Name, "command", process.CommandLine(spec.Command))

	pr := d.Runner.Run(spec.Command, &report)
	res := Result{
		Spec:       spec,
		ExitStatus: pr.ExitStatus,
		Stdout:     pr.Stdout,
		Stderr:     pr.Stderr,
		StartedAt:  pr.StartedAt,
		Duration:   pr.Duration,
	}

	logger.Debug("finished work on reporter",
		"reporter", spec.Name,
		"exit_status", res.ExitStatus,
		"stdout", res.Stdout,
		"stderr", res.Stderr,
	)
	if !res.Delivered() {
		warnFailed(logger, res)
	}
	return res
}

func warnFailed(logger *slog.Logger, res Result) {
	logger.Warn(fmt.Sprintf("reporter %s FAILED", res.Spec.Name),
		"reporter", res.Spec.Name,
		"exit_status", res.ExitStatus,
		"stderr", strings.TrimSpace(res.Stderr),
	)
}

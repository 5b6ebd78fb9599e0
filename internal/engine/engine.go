// Package engine runs one orchestration pass: assemble monitors, run them,
// build the failure report and hand it to the reporters.
package engine

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osbits/obtmon/internal/checks"
	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
	"github.com/osbits/obtmon/internal/render"
	"github.com/osbits/obtmon/internal/report"
	"github.com/osbits/obtmon/internal/reporter"
)

// Exit codes of a run.
const (
	ExitClean  = 0
	ExitFailed = 1
)

// CommandSet describes where the monitors or reporters of a run come from.
type CommandSet struct {
	Inline []registry.Spec
	// File is a definition file read on every run; empty disables it.
	File string
	// Args maps a spec name to a file of extra arguments.
	Args    map[string]string
	Workers int
}

// Maintenance reports whether runs should be skipped at t.
type Maintenance interface {
	Active(t time.Time) bool
}

// Observer receives every finished run.
type Observer interface {
	ObserveRun(ctx context.Context, out Outcome) error
}

// Outcome is the result of one run.
type Outcome struct {
	RunID           string
	StartedAt       time.Time
	Finished        time.Time
	Results         []checks.Result
	Failed          []checks.Result
	Report          string
	ReporterResults []reporter.Result
	Skipped         bool
	ExitCode        int
}

// Clean reports whether the run finished without failed monitors.
func (o Outcome) Clean() bool {
	return o.ExitCode == ExitClean
}

// Engine wires the run steps together. The zero value is not usable; Runner
// and Logger are required.
type Engine struct {
	Runner    process.Runner
	Logger    *slog.Logger
	Monitors  CommandSet
	Reporters CommandSet
	// Header is a text/template placed under the summary line of the report.
	Header      string
	Renderer    *render.Engine
	Maintenance Maintenance
	Observers   []Observer
	Clock       func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// Run performs one orchestration pass. Monitor failures set the exit code;
// reporter failures and observer errors are only logged. Once started, a pass
// runs to completion: cancelling ctx does not skip monitors, reporters or
// observers.
func (e *Engine) Run(ctx context.Context) (out Outcome) {
	ctx = context.WithoutCancel(ctx)
	out = Outcome{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
	}
	logger := e.Logger.With("run_id", out.RunID)
	defer func() {
		out.Finished = e.now()
		e.notify(ctx, logger, out)
	}()

	if e.Maintenance != nil && e.Maintenance.Active(out.StartedAt) {
		logger.Info("skipping run due to maintenance window")
		out.Skipped = true
		return out
	}

	monitors := e.Monitors.Assemble("monitors", logger)
	if len(monitors) == 0 {
		logger.Warn("no monitors specified, doing nothing")
		return out
	}

	executor := checks.Executor{Runner: e.Runner, Workers: e.Monitors.Workers, Logger: logger}
	out.Results = executor.Execute(ctx, monitors)
	out.Failed = checks.Failed(out.Results)
	if len(out.Failed) == 0 {
		logger.Info("all monitors passed", "count", len(out.Results))
		return out
	}

	out.ExitCode = ExitFailed
	out.Report = report.Build(out.Failed, e.header(out, logger))
	logger.Error(out.Report)

	reporters := e.Reporters.Assemble("reporters", logger)
	dispatcher := reporter.Dispatcher{Runner: e.Runner, Workers: e.Reporters.Workers, Logger: logger}
	out.ReporterResults = dispatcher.Dispatch(ctx, reporters, out.Report)
	return out
}

// Assemble returns the specs of the set: inline specs, then the definition
// file, with args files appended to the specs they name.
func (set CommandSet) Assemble(kind string, logger *slog.Logger) []registry.Spec {
	specs := registry.Assemble(set.Inline, set.File, kind, logger)
	for name, path := range set.Args {
		extra, err := registry.ReadArgsFile(path)
		if err != nil {
			logger.Warn("failed to read args file", "kind", kind, "name", name, "error", err)
			continue
		}
		if !registry.AppendArgs(specs, name, extra) {
			logger.Warn("args file given for unknown name", "kind", kind, "name", name, "path", path)
		}
	}
	return specs
}

func (e *Engine) header(out Outcome, logger *slog.Logger) string {
	if strings.TrimSpace(e.Header) == "" {
		return ""
	}
	renderer := e.Renderer
	if renderer == nil {
		renderer = render.New()
	}
	hostname, _ := os.Hostname()
	names := make([]string, 0, len(out.Failed))
	for _, r := range out.Failed {
		names = append(names, r.Spec.Name)
	}
	text, err := renderer.RenderString(e.Header, map[string]interface{}{
		"hostname":   hostname,
		"run_id":     out.RunID,
		"started_at": out.StartedAt,
		"failed":     names,
	})
	if err != nil {
		logger.Warn("failed to render report header, using it verbatim", "error", err)
		return e.Header
	}
	return text
}

func (e *Engine) notify(ctx context.Context, logger *slog.Logger, out Outcome) {
	for _, obs := range e.Observers {
		if err := obs.ObserveRun(ctx, out); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}
}

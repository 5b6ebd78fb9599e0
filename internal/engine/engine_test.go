package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/osbits/obtmon/internal/logging"
	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
)

// scriptedRunner answers by command name and records what it ran.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[string]process.Result
	calls   [][]string
	inputs  map[string]string
}

func newScriptedRunner(results map[string]process.Result) *scriptedRunner {
	return &scriptedRunner{results: results, inputs: map[string]string{}}
}

func (s *scriptedRunner) Run(argv []string, input *string) process.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, argv)
	if input != nil {
		s.inputs[argv[0]] = *input
	}
	res, ok := s.results[argv[0]]
	if !ok {
		return process.Result{ExitStatus: process.SpawnFailure, Stderr: "failed to start " + argv[0] + ": not found"}
	}
	return res
}

func spec(name string, argv ...string) registry.Spec {
	return registry.Spec{Name: name, Command: argv}
}

type windowFunc func(time.Time) bool

func (f windowFunc) Active(t time.Time) bool { return f(t) }

type recordingObserver struct {
	outcomes []Outcome
	err      error
}

func (r *recordingObserver) ObserveRun(_ context.Context, out Outcome) error {
	r.outcomes = append(r.outcomes, out)
	return r.err
}

func TestRunFailingCheckWithoutReporters(t *testing.T) {
	rec := logging.NewRecorder(slog.LevelDebug)
	runner := newScriptedRunner(map[string]process.Result{
		"check-disk": {ExitStatus: 1, Stdout: "disk full\n"},
	})
	e := &Engine{
		Runner:   runner,
		Logger:   rec.Logger(),
		Monitors: CommandSet{Inline: []registry.Spec{spec("disk", "check-disk")}},
	}

	out := e.Run(context.Background())
	if out.ExitCode != ExitFailed {
		t.Fatalf("expected exit code %d, got %d", ExitFailed, out.ExitCode)
	}
	want := "The following monitors FAILED: disk\n\nDetails:\nMonitor disk returned 1\n----\nstdout:\ndisk full\n----\nstderr:\n\n----\n\n"
	if out.Report != want {
		t.Fatalf("unexpected report:\n%q\nwant\n%q", out.Report, want)
	}
	if got := rec.Find(slog.LevelError, "The following monitors FAILED: disk"); len(got) != 1 {
		t.Fatalf("expected the report at error level, got %d entries", len(got))
	}
	if got := rec.Find(slog.LevelDebug, "not issuing any reports"); len(got) != 1 {
		t.Fatalf("expected a debug entry about missing reporters")
	}
	if out.RunID == "" || out.Finished.Before(out.StartedAt) {
		t.Fatalf("run bookkeeping missing: %+v", out)
	}
}

func TestRunReportListsOnlyFailures(t *testing.T) {
	runner := newScriptedRunner(map[string]process.Result{
		"ok":   {ExitStatus: 0, Stdout: "fine"},
		"fail": {ExitStatus: 2, Stderr: "boom"},
		"mail": {ExitStatus: 0},
	})
	e := &Engine{
		Runner:    runner,
		Logger:    logging.Discard(),
		Monitors:  CommandSet{Inline: []registry.Spec{spec("first", "ok"), spec("second", "fail")}},
		Reporters: CommandSet{Inline: []registry.Spec{spec("mail", "mail", "ops@example.com")}},
	}

	out := e.Run(context.Background())
	if out.ExitCode != ExitFailed {
		t.Fatalf("expected failure exit code, got %d", out.ExitCode)
	}
	if !strings.HasPrefix(out.Report, "The following monitors FAILED: second\n") {
		t.Fatalf("summary should name only the failing monitor: %q", out.Report)
	}
	if strings.Contains(out.Report, "Monitor first") {
		t.Fatalf("passing monitor leaked into report")
	}
	if runner.inputs["mail"] != out.Report {
		t.Fatalf("reporter did not receive the report verbatim")
	}
	if len(out.ReporterResults) != 1 || !out.ReporterResults[0].Delivered() {
		t.Fatalf("unexpected reporter results: %+v", out.ReporterResults)
	}
}

func TestRunReporterSpawnFailureKeepsExitCode(t *testing.T) {
	rec := logging.NewRecorder(slog.LevelDebug)
	runner := newScriptedRunner(map[string]process.Result{
		"fail": {ExitStatus: 1},
	})
	e := &Engine{
		Runner:    runner,
		Logger:    rec.Logger(),
		Monitors:  CommandSet{Inline: []registry.Spec{spec("db", "fail")}},
		Reporters: CommandSet{Inline: []registry.Spec{spec("pager", "no-such-binary")}},
	}

	out := e.Run(context.Background())
	if out.ExitCode != ExitFailed {
		t.Fatalf("reporter failure must not change exit code, got %d", out.ExitCode)
	}
	if got := rec.Find(slog.LevelWarn, "reporter pager FAILED"); len(got) != 1 {
		t.Fatalf("expected a warning naming the reporter, entries: %+v", rec.Entries())
	}
	if out.ReporterResults[0].ExitStatus != process.SpawnFailure {
		t.Fatalf("expected spawn failure, got %d", out.ReporterResults[0].ExitStatus)
	}
}

func TestRunAllPass(t *testing.T) {
	runner := newScriptedRunner(map[string]process.Result{"ok": {ExitStatus: 0}})
	e := &Engine{
		Runner:    runner,
		Logger:    logging.Discard(),
		Monitors:  CommandSet{Inline: []registry.Spec{spec("a", "ok"), spec("b", "ok")}, Workers: 2},
		Reporters: CommandSet{Inline: []registry.Spec{spec("mail", "mail")}},
	}
	out := e.Run(context.Background())
	if !out.Clean() || out.Report != "" || out.ReporterResults != nil {
		t.Fatalf("clean run should not report: %+v", out)
	}
	for _, call := range runner.calls {
		if call[0] == "mail" {
			t.Fatalf("reporter ran on a clean run")
		}
	}
}

func TestRunNoMonitors(t *testing.T) {
	rec := logging.NewRecorder(slog.LevelDebug)
	e := &Engine{
		Runner:   newScriptedRunner(nil),
		Logger:   rec.Logger(),
		Monitors: CommandSet{File: filepath.Join(t.TempDir(), "missing.conf")},
	}
	out := e.Run(context.Background())
	if out.ExitCode != ExitClean {
		t.Fatalf("expected clean exit, got %d", out.ExitCode)
	}
	if got := rec.Find(slog.LevelWarn, "no monitors specified, doing nothing"); len(got) != 1 {
		t.Fatalf("expected the no-monitors warning")
	}
	if got := rec.Find(slog.LevelWarn, "failed to read definition file"); len(got) != 1 {
		t.Fatalf("expected one warning for the unreadable file")
	}
}

func TestRunSkipsDuringMaintenance(t *testing.T) {
	runner := newScriptedRunner(map[string]process.Result{"fail": {ExitStatus: 1}})
	obs := &recordingObserver{}
	e := &Engine{
		Runner:      runner,
		Logger:      logging.Discard(),
		Monitors:    CommandSet{Inline: []registry.Spec{spec("a", "fail")}},
		Maintenance: windowFunc(func(time.Time) bool { return true }),
		Observers:   []Observer{obs},
	}
	out := e.Run(context.Background())
	if !out.Skipped || out.ExitCode != ExitClean {
		t.Fatalf("expected skipped clean run, got %+v", out)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("no monitor should run during maintenance")
	}
	if len(obs.outcomes) != 1 || !obs.outcomes[0].Skipped {
		t.Fatalf("observers should see skipped runs")
	}
}

func TestRunObserverErrorIsLogged(t *testing.T) {
	rec := logging.NewRecorder(slog.LevelDebug)
	obs := &recordingObserver{err: errors.New("disk locked")}
	e := &Engine{
		Runner:    newScriptedRunner(map[string]process.Result{"ok": {}}),
		Logger:    rec.Logger(),
		Monitors:  CommandSet{Inline: []registry.Spec{spec("a", "ok")}},
		Observers: []Observer{obs},
	}
	out := e.Run(context.Background())
	if out.ExitCode != ExitClean {
		t.Fatalf("observer errors must not change the outcome")
	}
	if len(obs.outcomes) != 1 || len(obs.outcomes[0].Results) != 1 {
		t.Fatalf("observer did not receive the outcome")
	}
	if got := rec.Find(slog.LevelWarn, "failed to record run"); len(got) != 1 {
		t.Fatalf("expected a warning for the observer error")
	}
}

func TestRunInlineBeforeFileAndArgs(t *testing.T) {
	dir := t.TempDir()
	monfile := filepath.Join(dir, "monitors.conf")
	if err := os.WriteFile(monfile, []byte("# comment\nfromfile: ok file\n\nbad line\n"), 0o644); err != nil {
		t.Fatalf("write monfile: %v", err)
	}
	argsFile := filepath.Join(dir, "gw.args")
	if err := os.WriteFile(argsFile, []byte("-c 4\n'10.0.0.1'\n"), 0o644); err != nil {
		t.Fatalf("write args: %v", err)
	}
	runner := newScriptedRunner(map[string]process.Result{"ok": {}})
	e := &Engine{
		Runner: runner,
		Logger: logging.Discard(),
		Monitors: CommandSet{
			Inline: []registry.Spec{spec("gw", "ok", "ping")},
			File:   monfile,
			Args:   map[string]string{"gw": argsFile},
		},
	}
	out := e.Run(context.Background())
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	if out.Results[0].Spec.Name != "gw" || out.Results[1].Spec.Name != "fromfile" {
		t.Fatalf("inline monitors must come first: %v, %v", out.Results[0].Spec, out.Results[1].Spec)
	}
	want := []string{"ok", "ping", "-c", "4", "10.0.0.1"}
	if !reflect.DeepEqual(out.Results[0].Spec.Command, want) {
		t.Fatalf("args not appended: %v", out.Results[0].Spec.Command)
	}
	if !reflect.DeepEqual(e.Monitors.Inline[0].Command, []string{"ok", "ping"}) {
		t.Fatalf("configured inline spec was mutated: %v", e.Monitors.Inline[0].Command)
	}
}

func TestRunRendersHeader(t *testing.T) {
	runner := newScriptedRunner(map[string]process.Result{"fail": {ExitStatus: 1}})
	e := &Engine{
		Runner:   runner,
		Logger:   logging.Discard(),
		Monitors: CommandSet{Inline: []registry.Spec{spec("a", "fail"), spec("b", "fail")}},
		Header:   `failing: {{ join .failed "+" }}`,
	}
	out := e.Run(context.Background())
	if !strings.Contains(out.Report, "\n\nfailing: a+b\n\nDetails:\n") {
		t.Fatalf("header not rendered into report: %q", out.Report)
	}
}

func TestRunUsesClock(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var seen time.Time
	e := &Engine{
		Runner:      newScriptedRunner(nil),
		Logger:      logging.Discard(),
		Clock:       func() time.Time { return fixed },
		Maintenance: windowFunc(func(t time.Time) bool { seen = t; return false }),
	}
	out := e.Run(context.Background())
	if !seen.Equal(fixed) || !out.StartedAt.Equal(fixed) {
		t.Fatalf("clock not used: seen=%v started=%v", seen, out.StartedAt)
	}
}

// cancellingRunner cancels the run context when the first command starts.
type cancellingRunner struct {
	*scriptedRunner
	once   sync.Once
	cancel context.CancelFunc
}

func (c *cancellingRunner) Run(argv []string, input *string) process.Result {
	c.once.Do(c.cancel)
	return c.scriptedRunner.Run(argv, input)
}

type ctxObserver struct {
	err error
}

func (o *ctxObserver) ObserveRun(ctx context.Context, _ Outcome) error {
	o.err = ctx.Err()
	return nil
}

func TestRunCompletesAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &cancellingRunner{
		scriptedRunner: newScriptedRunner(map[string]process.Result{
			"check-disk": {ExitStatus: 1, Stderr: "disk full"},
			"check-web":  {ExitStatus: 0},
			"pager":      {ExitStatus: 0},
		}),
		cancel: cancel,
	}
	obs := &ctxObserver{}
	e := &Engine{
		Runner:    runner,
		Logger:    logging.Discard(),
		Monitors:  CommandSet{Inline: []registry.Spec{spec("disk", "check-disk"), spec("web", "check-web")}, Workers: 1},
		Reporters: CommandSet{Inline: []registry.Spec{spec("pager", "pager")}},
		Observers: []Observer{obs},
	}

	out := e.Run(ctx)
	if ctx.Err() == nil {
		t.Fatalf("runner should have cancelled the context")
	}
	if out.ExitCode != ExitFailed || len(out.Failed) != 1 || out.Failed[0].Spec.Name != "disk" {
		t.Fatalf("expected only disk to fail, got %+v", out.Failed)
	}
	if out.Results[1].ExitStatus != 0 {
		t.Fatalf("queued monitor should still run, got %+v", out.Results[1])
	}
	if got := runner.inputs["pager"]; got != out.Report || !strings.Contains(got, "disk full") {
		t.Fatalf("reporter did not receive the report, got %q", got)
	}
	if len(out.ReporterResults) != 1 || out.ReporterResults[0].ExitStatus != 0 {
		t.Fatalf("unexpected reporter results %+v", out.ReporterResults)
	}
	if obs.err != nil {
		t.Fatalf("observers should see a live context, got %v", obs.err)
	}
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/osbits/obtmon/internal/checks"
	"github.com/osbits/obtmon/internal/engine"
	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
	"github.com/osbits/obtmon/internal/reporter"
)

func outcome(runID string, at time.Time, statuses map[string]int) engine.Outcome {
	out := engine.Outcome{RunID: runID, StartedAt: at, Finished: at.Add(time.Second)}
	for _, name := range []string{"disk", "gw"} {
		status, ok := statuses[name]
		if !ok {
			continue
		}
		r := checks.Result{
			Spec:       registry.Spec{Name: name, Command: []string{"check-" + name, "-v"}},
			ExitStatus: status,
			Stdout:     "out " + runID,
			Duration:   1500 * time.Millisecond,
			StartedAt:  at,
		}
		out.Results = append(out.Results, r)
		if status != 0 {
			out.Failed = append(out.Failed, r)
			out.ExitCode = engine.ExitFailed
		}
	}
	return out
}

func TestObserveRunAndQuery(t *testing.T) {
	store, err := Open(":memory:", Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, ok, err := store.LatestRun(ctx); err != nil || ok {
		t.Fatalf("empty store should have no latest run: ok=%v err=%v", ok, err)
	}

	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	if err := store.ObserveRun(ctx, outcome("r1", base, map[string]int{"disk": 0, "gw": 0})); err != nil {
		t.Fatalf("observe r1: %v", err)
	}
	second := outcome("r2", base.Add(time.Minute), map[string]int{"disk": 1, "gw": 0})
	second.ReporterResults = []reporter.Result{{
		Spec:       registry.Spec{Name: "pager", Command: []string{"pager"}},
		ExitStatus: process.SpawnFailure,
		Stderr:     "failed to start pager",
	}}
	if err := store.ObserveRun(ctx, second); err != nil {
		t.Fatalf("observe r2: %v", err)
	}

	runs, err := store.RecentCheckRuns(ctx, "disk", 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 disk runs, got %d", len(runs))
	}
	if runs[0].RunID != "r2" || runs[0].ExitStatus != 1 {
		t.Fatalf("newest first expected, got %+v", runs[0])
	}
	if runs[0].Command != "check-disk -v" || runs[0].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected stored fields: %+v", runs[0])
	}

	latest, ok, err := store.LatestRun(ctx)
	if err != nil || !ok {
		t.Fatalf("latest run: ok=%v err=%v", ok, err)
	}
	if latest.RunID != "r2" || latest.ExitCode != engine.ExitFailed || latest.Failed != 1 || latest.Total != 2 {
		t.Fatalf("unexpected latest run: %+v", latest)
	}
	if !latest.StartedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("started_at = %v", latest.StartedAt)
	}

	deliveries, err := store.RecentReporterRuns(ctx, "pager", 0)
	if err != nil {
		t.Fatalf("reporter runs: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].ExitStatus != process.SpawnFailure {
		t.Fatalf("unexpected reporter runs: %+v", deliveries)
	}
}

func TestRetentionPerName(t *testing.T) {
	store, err := Open(":memory:", Options{Retention: 2})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		statuses := map[string]int{"disk": 0}
		if i == 0 {
			statuses["gw"] = 0
		}
		if err := store.ObserveRun(ctx, outcome(id, base.Add(time.Duration(i)*time.Minute), statuses)); err != nil {
			t.Fatalf("observe %s: %v", id, err)
		}
	}

	disk, _ := store.RecentCheckRuns(ctx, "disk", 10)
	if len(disk) != 2 || disk[0].RunID != "r3" || disk[1].RunID != "r2" {
		t.Fatalf("expected the two newest disk runs, got %+v", disk)
	}
	gw, _ := store.RecentCheckRuns(ctx, "gw", 10)
	if len(gw) != 1 {
		t.Fatalf("retention must be per name, got %d gw runs", len(gw))
	}
}

func TestSkippedRun(t *testing.T) {
	store, err := Open(":memory:", Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	out := engine.Outcome{RunID: "skip", StartedAt: time.Now(), Finished: time.Now(), Skipped: true}
	if err := store.ObserveRun(ctx, out); err != nil {
		t.Fatalf("observe: %v", err)
	}
	latest, ok, err := store.LatestRun(ctx)
	if err != nil || !ok || !latest.Skipped {
		t.Fatalf("expected skipped latest run, got %+v ok=%v err=%v", latest, ok, err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := store.ObserveRun(context.Background(), outcome("r1", time.Now(), map[string]int{"disk": 0})); err != nil {
		t.Fatalf("observe: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  ", Options{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/osbits/obtmon/internal/checks"
	"github.com/osbits/obtmon/internal/engine"
	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
	"github.com/osbits/obtmon/internal/reporter"
)

func failedOutcome() engine.Outcome {
	ok := checks.Result{Spec: registry.Spec{Name: "disk"}, Duration: 2 * time.Second}
	bad := checks.Result{Spec: registry.Spec{Name: "gw"}, ExitStatus: 1, Duration: 500 * time.Millisecond}
	return engine.Outcome{
		RunID:    "r1",
		Finished: time.Unix(1700000000, 0),
		Results:  []checks.Result{ok, bad},
		Failed:   []checks.Result{bad},
		ReporterResults: []reporter.Result{
			{Spec: registry.Spec{Name: "mail"}},
			{Spec: registry.Spec{Name: "pager"}, ExitStatus: process.SpawnFailure},
		},
		ExitCode: engine.ExitFailed,
	}
}

func gather(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func value(t *testing.T, families map[string]*dto.MetricFamily, name, label, labelValue string) float64 {
	t.Helper()
	family, ok := families[name]
	if !ok {
		t.Fatalf("metric %s missing", name)
	}
	for _, m := range family.GetMetric() {
		match := label == ""
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == labelValue {
				match = true
			}
		}
		if !match {
			continue
		}
		if m.GetGauge() != nil {
			return m.GetGauge().GetValue()
		}
		return m.GetCounter().GetValue()
	}
	t.Fatalf("metric %s{%s=%q} missing", name, label, labelValue)
	return 0
}

func TestObserveRunSetsGauges(t *testing.T) {
	c := New("obtmon", "")
	if err := c.ObserveRun(context.Background(), failedOutcome()); err != nil {
		t.Fatalf("observe: %v", err)
	}
	families := gather(t, c)

	if got := value(t, families, "obtmon_check_up", "check", "disk"); got != 1 {
		t.Errorf("disk up = %v", got)
	}
	if got := value(t, families, "obtmon_check_up", "check", "gw"); got != 0 {
		t.Errorf("gw up = %v", got)
	}
	if got := value(t, families, "obtmon_check_exit_status", "check", "gw"); got != 1 {
		t.Errorf("gw exit status = %v", got)
	}
	if got := value(t, families, "obtmon_check_duration_seconds", "check", "disk"); got != 2 {
		t.Errorf("disk duration = %v", got)
	}
	if got := value(t, families, "obtmon_runs_total", "outcome", OutcomeFailed); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
	if got := value(t, families, "obtmon_reporter_failures_total", "reporter", "pager"); got != 1 {
		t.Errorf("pager failures = %v", got)
	}
	if got := value(t, families, "obtmon_last_run_timestamp_seconds", "", ""); got != 1700000000 {
		t.Errorf("last run = %v", got)
	}
}

func TestObserveRunDropsRemovedChecks(t *testing.T) {
	c := New("", "")
	ctx := context.Background()
	if err := c.ObserveRun(ctx, failedOutcome()); err != nil {
		t.Fatalf("observe: %v", err)
	}
	next := engine.Outcome{
		Results:  []checks.Result{{Spec: registry.Spec{Name: "disk"}}},
		Finished: time.Now(),
	}
	if err := c.ObserveRun(ctx, next); err != nil {
		t.Fatalf("observe: %v", err)
	}
	families := gather(t, c)
	if n := len(families["obtmon_check_up"].GetMetric()); n != 1 {
		t.Fatalf("expected only disk to remain, got %d series", n)
	}
	if got := value(t, families, "obtmon_runs_total", "outcome", OutcomeClean); got != 1 {
		t.Errorf("clean runs = %v", got)
	}
}

func TestSkippedRunKeepsCheckGauges(t *testing.T) {
	c := New("", "")
	ctx := context.Background()
	_ = c.ObserveRun(ctx, failedOutcome())
	_ = c.ObserveRun(ctx, engine.Outcome{Skipped: true, Finished: time.Now()})

	families := gather(t, c)
	if n := len(families["obtmon_check_up"].GetMetric()); n != 2 {
		t.Fatalf("skipped run should keep gauges, got %d series", n)
	}
	if got := value(t, families, "obtmon_runs_total", "outcome", OutcomeSkipped); got != 1 {
		t.Errorf("skipped runs = %v", got)
	}
}

func TestObserveRunWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "obtmon.prom")
	c := New("obtmon", path)
	if err := c.ObserveRun(context.Background(), failedOutcome()); err != nil {
		t.Fatalf("observe: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, want := range []string{
		"# TYPE obtmon_check_up gauge",
		`obtmon_check_exit_status{check="gw"} 1`,
		`obtmon_runs_total{outcome="failed"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	c := New("obtmon", "")
	_ = c.ObserveRun(context.Background(), failedOutcome())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `obtmon_check_up{check="gw"} 0`) {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

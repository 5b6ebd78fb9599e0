// Package metrics exposes run outcomes as Prometheus metrics, either over
// HTTP or as a node_exporter textfile.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osbits/obtmon/internal/engine"
)

// Outcome label values of the runs counter.
const (
	OutcomeClean   = "clean"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Collector owns a private registry with the run metrics.
type Collector struct {
	registry *prometheus.Registry
	textfile string

	// mu serialises reset-and-set of the per-check gauges.
	mu sync.Mutex

	checkUp          *prometheus.GaugeVec
	checkExitStatus  *prometheus.GaugeVec
	checkDuration    *prometheus.GaugeVec
	lastRun          prometheus.Gauge
	runsTotal        *prometheus.CounterVec
	reporterFailures *prometheus.CounterVec
}

// New registers the metrics under namespace. When textfile is non-empty every
// observed run is also written there.
func New(namespace, textfile string) *Collector {
	if namespace == "" {
		namespace = "obtmon"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		checkUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_up",
			Help:      "Whether the monitor passed on its last run (1=passed).",
		}, []string{"check"}),
		checkExitStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_exit_status",
			Help:      "Exit status of the monitor on its last run (-1 when it could not start).",
		}, []string{"check"}),
		checkDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Wall time of the monitor on its last run.",
		}, []string{"check"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by outcome.",
		}, []string{"outcome"}),
		reporterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reporter_failures_total",
			Help:      "Reporter invocations that exited non-zero.",
		}, []string{"reporter"}),
	}
	c.registry.MustRegister(
		c.checkUp,
		c.checkExitStatus,
		c.checkDuration,
		c.lastRun,
		c.runsTotal,
		c.reporterFailures,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRun updates the metrics from out and rewrites the textfile when one
// is configured.
func (c *Collector) ObserveRun(_ context.Context, out engine.Outcome) error {
	c.mu.Lock()
	switch {
	case out.Skipped:
		c.runsTotal.WithLabelValues(OutcomeSkipped).Inc()
	case out.Clean():
		c.runsTotal.WithLabelValues(OutcomeClean).Inc()
	default:
		c.runsTotal.WithLabelValues(OutcomeFailed).Inc()
	}
	if !out.Skipped {
		c.checkUp.Reset()
		c.checkExitStatus.Reset()
		c.checkDuration.Reset()
		for _, r := range out.Results {
			c.checkUp.WithLabelValues(r.Spec.Name).Set(boolToFloat(r.Passed()))
			c.checkExitStatus.WithLabelValues(r.Spec.Name).Set(float64(r.ExitStatus))
			c.checkDuration.WithLabelValues(r.Spec.Name).Set(r.Duration.Seconds())
		}
	}
	for _, r := range out.ReporterResults {
		if !r.Delivered() {
			c.reporterFailures.WithLabelValues(r.Spec.Name).Inc()
		}
	}
	c.lastRun.Set(float64(out.Finished.Unix()))
	c.mu.Unlock()

	if c.textfile == "" {
		return nil
	}
	return c.WriteTextfile(c.textfile)
}

// WriteTextfile writes the current metrics in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

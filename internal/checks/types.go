package checks

import (
	"time"

	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
)

// Result captures the outcome of a single monitor execution.
type Result struct {
	Spec       registry.Spec
	ExitStatus int
	Stdout     string
	Stderr     string
	StartedAt  time.Time
	Duration   time.Duration
}

// Passed reports whether the monitor exited with status zero.
func (r Result) Passed() bool {
	return r.ExitStatus == 0
}

// Failed returns the failing results, preserving their order.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed() {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromProcess(spec registry.Spec, res process.Result) Result {
	return Result{
		Spec:       spec,
		ExitStatus: res.ExitStatus,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		StartedAt:  res.StartedAt,
		Duration:   res.Duration,
	}
}

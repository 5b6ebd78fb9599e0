// Package process runs external commands and captures their output.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// SpawnFailure is the exit status reported when a command could not be started.
const SpawnFailure = -1

// Result holds the captured outcome of one command invocation.
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
	StartedAt  time.Time
	Duration   time.Duration
}

// Runner abstracts command execution for testability.
type Runner interface {
	Run(argv []string, input *string) Result
}

// Exec runs commands as real child processes, never through a shell.
type Exec struct{}

// Run starts argv[0] with argv[1:] as arguments and waits for it to exit.
// When input is non-nil it is written to the child's stdin, which is then
// closed. Failures to start are reported as a SpawnFailure result.
func (Exec) Run(argv []string, input *string) Result {
	start := time.Now()
	if len(argv) == 0 {
		return spawnFailure(start, "", errors.New("empty command"))
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if input != nil {
		cmd.Stdin = strings.NewReader(*input)
	}

	// #nosec G204 -- running configured monitor and reporter commands is the point.
	if err := cmd.Start(); err != nil {
		return spawnFailure(start, argv[0], err)
	}
	err := cmd.Wait()

	res := Result{
		Stdout:    outBuf.String(),
		Stderr:    errBuf.String(),
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		res.ExitStatus = exitStatus(err)
		if res.ExitStatus == SpawnFailure {
			res.Stderr = appendLine(res.Stderr, fmt.Sprintf("failed to wait for %s: %v", argv[0], err))
		}
	}
	return res
}

func spawnFailure(start time.Time, name string, err error) Result {
	return Result{
		ExitStatus: SpawnFailure,
		Stderr:     fmt.Sprintf("failed to start %s: %v", name, err),
		StartedAt:  start,
		Duration:   time.Since(start),
	}
}

// exitStatus maps a Wait error to a numeric status. Signalled children
// report 128+signal so they never look like a spawn failure.
func exitStatus(err error) int {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return SpawnFailure
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return 128 + int(status.Signal())
		}
		return status.ExitStatus()
	}
	if code := exitErr.ExitCode(); code > 0 {
		return code
	}
	return 1
}

func appendLine(s, line string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s + line
	}
	return s + "\n" + line
}

// CommandLine renders argv for log output.
func CommandLine(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n'\"\\$") {
			parts[i] = fmt.Sprintf("%q", arg)
			continue
		}
		parts[i] = arg
	}
	return strings.Join(parts, " ")
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(argv []string, input *string) Result

// Run calls f.
func (f RunnerFunc) Run(argv []string, input *string) Result {
	return f(argv, input)
}

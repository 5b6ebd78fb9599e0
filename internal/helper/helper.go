// Package helper holds the plumbing shared by the obtmon-* monitor and
// reporter binaries: a stderr logger and the exit status convention the
// engine reads (0 ok, 1 failed, 2 usage).
package helper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Exit statuses of a helper binary.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2
)

// ErrFailed marks a check or delivery that ran and failed. The details have
// already been logged.
var ErrFailed = errors.New("failed")

// Logger writes text records to w, which is the captured stderr when the
// helper runs under obtmon.
func Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

// Execute runs cmd with args and maps the outcome to an exit status.
// ErrFailed gives ExitFailed; any other error is a usage error.
func Execute(cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrFailed):
		return ExitFailed
	default:
		fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)
		return ExitUsage
	}
}

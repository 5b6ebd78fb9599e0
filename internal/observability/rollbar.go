// Package observability reports panics of the long-running commands to Rollbar.
package observability

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rollbar/rollbar-go"
)

// Rollbar wraps the global Rollbar client. A disabled value is safe to use.
type Rollbar struct {
	enabled bool
	logger  *slog.Logger
}

// SetupRollbar configures the Rollbar SDK when ROLLBAR_ACCESS_TOKEN is set.
// Call Flush before exiting.
func SetupRollbar(logger *slog.Logger, service string) *Rollbar {
	token := strings.TrimSpace(os.Getenv("ROLLBAR_ACCESS_TOKEN"))
	if token == "" {
		rollbar.SetEnabled(false)
		logger.Debug("rollbar disabled", "reason", "missing access token")
		return &Rollbar{logger: logger}
	}

	rollbar.SetEnabled(true)
	rollbar.SetToken(token)

	env := strings.TrimSpace(os.Getenv("ROLLBAR_ENVIRONMENT"))
	if env == "" {
		env = "production"
	}
	rollbar.SetEnvironment(env)
	if service != "" {
		rollbar.SetCustom(map[string]interface{}{"service": service})
	}
	if codeVersion := strings.TrimSpace(os.Getenv("ROLLBAR_CODE_VERSION")); codeVersion != "" {
		rollbar.SetCodeVersion(codeVersion)
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		rollbar.SetServerHost(hostname)
	}
	if wd, err := os.Getwd(); err == nil {
		rollbar.SetServerRoot(filepath.Clean(wd))
	}
	rollbar.SetCaptureIp(rollbar.CaptureIpAnonymize)

	logger.Info("rollbar enabled", "environment", env)
	return &Rollbar{enabled: true, logger: logger}
}

// Enabled reports whether items are sent.
func (r *Rollbar) Enabled() bool {
	return r != nil && r.enabled
}

// Flush waits for queued items to be sent.
func (r *Rollbar) Flush() {
	if r.Enabled() {
		rollbar.Wait()
	}
}

// CapturePanic reports a panic and re-raises it. Use it deferred at the top
// of main.
func (r *Rollbar) CapturePanic() {
	if rec := recover(); rec != nil {
		r.report(rec)
		r.Flush()
		panic(rec)
	}
}

// RecoverRun reports a panic and swallows it, so a scheduled loop survives
// a single bad run. It must be deferred directly.
func (r *Rollbar) RecoverRun() {
	if rec := recover(); rec != nil {
		r.report(rec)
	}
}

func (r *Rollbar) report(rec interface{}) {
	if r == nil {
		return
	}
	if r.logger != nil {
		r.logger.Error("panic captured", "panic", rec)
	}
	if !r.enabled {
		return
	}
	switch err := rec.(type) {
	case error:
		rollbar.Critical(err)
	default:
		rollbar.Critical(fmt.Errorf("panic: %v", rec))
	}
}

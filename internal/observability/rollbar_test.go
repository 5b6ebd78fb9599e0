package observability

import (
	"log/slog"
	"testing"

	"github.com/osbits/obtmon/internal/logging"
)

func TestSetupRollbarDisabledWithoutToken(t *testing.T) {
	t.Setenv("ROLLBAR_ACCESS_TOKEN", "")
	r := SetupRollbar(logging.Discard(), "obtmon")
	if r.Enabled() {
		t.Fatalf("rollbar should be disabled without a token")
	}
	r.Flush()
}

func TestRecoverRunSwallowsPanic(t *testing.T) {
	rec := logging.NewRecorder(slog.LevelDebug)
	r := &Rollbar{logger: rec.Logger()}

	func() {
		defer r.RecoverRun()
		panic("boom")
	}()

	if got := rec.Find(slog.LevelError, "panic captured"); len(got) != 1 {
		t.Fatalf("expected the panic to be logged")
	}
}

func TestCapturePanicReraises(t *testing.T) {
	r := &Rollbar{logger: logging.Discard()}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic to propagate")
		}
	}()
	func() {
		defer r.CapturePanic()
		panic("boom")
	}()
}

func TestNilRollbarIsSafe(t *testing.T) {
	var r *Rollbar
	if r.Enabled() {
		t.Fatalf("nil rollbar is disabled")
	}
	func() {
		defer r.RecoverRun()
		panic("boom")
	}()
}

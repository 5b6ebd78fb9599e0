// Package report renders the failure report handed to the run log and to
// every reporter.
package report

import (
	"fmt"
	"strings"

	"github.com/osbits/obtmon/internal/checks"
)

const separator = "----\n"

// Summary returns the failed monitor names, comma-joined in run order.
func Summary(failed []checks.Result) string {
	names := make([]string, len(failed))
	for i, r := range failed {
		names[i] = r.Spec.Name
	}
	return strings.Join(names, ", ")
}

// Build renders the report for failed. The output depends only on its
// arguments, so the same input always yields the same bytes.
func Build(failed []checks.Result, header string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following monitors FAILED: %s\n\n", Summary(failed))
	if h := strings.TrimSpace(header); h != "" {
		b.WriteString(h)
		b.WriteString("\n\n")
	}

	b.WriteString("Details:\n")
	for _, r := range failed {
		fmt.Fprintf(&b, "Monitor %s returned %d\n", r.Spec.Name, r.ExitStatus)
		b.WriteString(separator)
		b.WriteString("stdout:\n")
		writeBlock(&b, r.Stdout)
		b.WriteString(separator)
		b.WriteString("stderr:\n")
		writeBlock(&b, r.Stderr)
		b.WriteString(separator)
		b.WriteString("\n")
	}
	return b.String()
}

func writeBlock(b *strings.Builder, s string) {
	b.WriteString(strings.TrimSpace(s))
	b.WriteString("\n")
}

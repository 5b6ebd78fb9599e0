// Package registry assembles the ordered list of monitor and reporter
// commands from inline flags and definition files.
package registry

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/shlex"
)

// ErrMalformedLine is returned for definitions not of the form "<name>: <command>".
var ErrMalformedLine = errors.New(`malformed definition, should be of the form "<name>: <command>"`)

// Spec names one external command. Monitors and reporters share the shape.
type Spec struct {
	Name    string
	Command []string
}

// String renders the spec in definition-file syntax.
func (s Spec) String() string {
	return s.Name + ": " + strings.Join(s.Command, " ")
}

// ParseLine parses "<name>: <command line>". The first colon separates the
// name from the command, which is split into words honouring shell quotes.
// A word starting with '#' begins a comment that runs to the end of the line.
func ParseLine(line string) (Spec, error) {
	name, cmdline, found := strings.Cut(line, ":")
	if !found {
		return Spec{}, ErrMalformedLine
	}
	name = strings.TrimSpace(name)
	cmdline = strings.TrimSpace(cmdline)
	if name == "" || cmdline == "" {
		return Spec{}, ErrMalformedLine
	}
	argv, err := shlex.Split(cmdline)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	if len(argv) == 0 {
		return Spec{}, ErrMalformedLine
	}
	return Spec{Name: name, Command: argv}, nil
}

// ParseInline parses every inline definition, failing on the first bad one.
// Inline values come from flags, so mistakes are reported to the caller.
func ParseInline(values []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(values))
	for _, v := range values {
		spec, err := ParseLine(v)
		if err != nil {
			return nil, fmt.Errorf("inline definition %q: %w", v, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ReadArgsFile reads extra arguments from a side file. Tokens are split like
// a shell would; lines starting with '#' are ignored.
func ReadArgsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read args file %s: %w", path, err)
	}
	var args []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words, err := shlex.Split(line)
		if err != nil {
			return nil, fmt.Errorf("parse args file %s: %w", path, err)
		}
		args = append(args, words...)
	}
	return args, nil
}

// AppendArgs appends extra arguments to every spec called name.
// It reports whether any spec matched.
func AppendArgs(specs []Spec, name string, extra []string) bool {
	matched := false
	for i := range specs {
		if specs[i].Name != name {
			continue
		}
		cmd := make([]string, 0, len(specs[i].Command)+len(extra))
		cmd = append(cmd, specs[i].Command...)
		specs[i].Command = append(cmd, extra...)
		matched = true
	}
	return matched
}

// LoadFile parses a definition file. Problems are logged at warning level
// and never returned: an unreadable file contributes no specs, and blank or
// malformed lines are skipped. Lines starting with '#' are comments.
func LoadFile(path, kind string, logger *slog.Logger) []Spec {
	logger.Debug("processing definition file", "kind", kind, "path", path)
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("failed to read definition file", "kind", kind, "path", path, "error", err)
		return nil
	}
	defer f.Close()

	var specs []Spec
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			logger.Warn("skipping blank line in definition file", "kind", kind, "path", path, "line", lineNumber)
			continue
		}
		if strings.HasPrefix(line, "#") {
			logger.Debug("skipping comment", "kind", kind, "path", path, "line", lineNumber)
			continue
		}
		spec, err := ParseLine(line)
		if err != nil {
			logger.Warn("bad line in definition file", "kind", kind, "path", path, "line", lineNumber, "text", line, "error", err)
			continue
		}
		specs = append(specs, spec)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("failed to read definition file", "kind", kind, "path", path, "error", err)
	}
	logger.Debug("finished processing definition file", "kind", kind, "path", path, "count", len(specs))
	return specs
}

// Assemble returns inline specs in their given order followed by the specs
// of the definition file, in file order. An empty path skips the file.
func Assemble(inline []Spec, path, kind string, logger *slog.Logger) []Spec {
	out := make([]Spec, 0, len(inline))
	out = append(out, inline...)
	if path == "" {
		return out
	}
	return append(out, LoadFile(path, kind, logger)...)
}

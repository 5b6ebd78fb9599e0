// Package logging builds the run log: a size-bounded, append-only slog sink.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.Level(12)

// DefaultName is the logger name stamped on every record.
const DefaultName = "obtmon"

// ErrUnknownLevel is returned by ParseLevel for names outside the level table.
var ErrUnknownLevel = errors.New("unknown log level")

var levelTable = map[string]slog.Level{
	"debug":    slog.LevelDebug,
	"info":     slog.LevelInfo,
	"warning":  slog.LevelWarn,
	"warn":     slog.LevelWarn,
	"error":    slog.LevelError,
	"critical": LevelCritical,
}

// LevelNames lists the accepted level names in severity order.
func LevelNames() []string {
	names := make([]string, 0, len(levelTable))
	for name := range levelTable {
		if name == "warn" {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return levelTable[names[i]] < levelTable[names[j]] })
	return names
}

// ParseLevel maps a level name to its slog level. Names are case-insensitive.
func ParseLevel(name string) (slog.Level, error) {
	level, ok := levelTable[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w %q, must be one of: %s", ErrUnknownLevel, name, strings.Join(LevelNames(), ", "))
	}
	return level, nil
}

// Options configures the run log.
type Options struct {
	// Path of the log file. "-" writes to stderr without rotation.
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	// Format is "plain" (default), "text" or "json".
	Format string
	Name   string
}

// NewRunLog opens the run log described by opts.
func NewRunLog(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch opts.Path {
	case "", "-":
		w = os.Stderr
	default:
		if dir := filepath.Dir(opts.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 1
		}
		backups := opts.MaxBackups
		if backups <= 0 {
			backups = 10
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    maxSize,
			MaxBackups: backups,
		}
		w = rotator
		closer = rotator
	}

	return New(w, opts.Format, level, opts.Name), closer, nil
}

// New builds a named logger writing to w.
func New(w io.Writer, format string, level slog.Level, name string) *slog.Logger {
	if name == "" {
		name = DefaultName
	}
	handlerOpts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		handler = newPlainHandler(w, level, name)
	}
	return slog.New(handler).With("logger", name)
}

// replaceLevel prints the level names used in the level table.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	return slog.String(slog.LevelKey, LevelName(level))
}

// LevelName returns the upper-case display name of a level.
func LevelName(level slog.Level) string {
	switch {
	case level >= LevelCritical:
		return "CRITICAL"
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

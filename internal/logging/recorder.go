package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Entry is one record captured by a Recorder.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Recorder is an in-memory slog.Handler. Handlers derived through
// WithAttrs share the parent's entry list.
type Recorder struct {
	level slog.Level
	attrs []slog.Attr
	store *entryStore
}

type entryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates a recorder capturing records at or above level.
func NewRecorder(level slog.Level) *Recorder {
	return &Recorder{level: level, store: &entryStore{}}
}

// Logger wraps the recorder in a *slog.Logger.
func (r *Recorder) Logger() *slog.Logger {
	return slog.New(r)
}

// Enabled implements slog.Handler.
func (r *Recorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level
}

// Handle implements slog.Handler.
func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]string, len(r.attrs)+rec.NumAttrs())
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.String()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	r.store.mu.Lock()
	r.store.entries = append(r.store.entries, Entry{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	r.store.mu.Unlock()
	return nil
}

// WithAttrs implements slog.Handler.
func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(r.attrs)+len(attrs))
	merged = append(merged, r.attrs...)
	merged = append(merged, attrs...)
	return &Recorder{level: r.level, attrs: merged, store: r.store}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (r *Recorder) WithGroup(string) slog.Handler {
	return r
}

// Entries returns a snapshot of the captured records.
func (r *Recorder) Entries() []Entry {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]Entry, len(r.store.entries))
	copy(out, r.store.entries)
	return out
}

// Find returns the captured records at level whose message contains substr.
func (r *Recorder) Find(level slog.Level, substr string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			out = append(out, e)
		}
	}
	return out
}

package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// WindowKind indicates the maintenance window type.
type WindowKind string

const (
	WindowCron  WindowKind = "cron"
	WindowRange WindowKind = "range"
)

const rangeLayout = "2006-01-02T15:04"

// Window is a period during which runs are skipped.
type Window struct {
	kind     WindowKind
	start    time.Time
	end      time.Time
	schedule cron.Schedule
	duration time.Duration
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	switch w.kind {
	case WindowRange:
		return !t.Before(w.start) && t.Before(w.end)
	case WindowCron:
		// The most recent activation is the first one after t-duration.
		prev := w.schedule.Next(t.Add(-w.duration))
		if prev.After(t) {
			return false
		}
		return t.Sub(prev) <= w.duration
	default:
		return false
	}
}

// Windows is a set of maintenance windows.
type Windows []Window

// Active reports whether any window contains t.
func (ws Windows) Active(t time.Time) bool {
	for _, w := range ws {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// ParseWindows parses "cron: <expr>" and "range: <start>-<end>" specs.
// Cron windows last duration (one hour when zero); range bounds use the
// layout 2006-01-02T15:04 in loc.
func ParseWindows(specs []string, loc *time.Location, duration time.Duration) (Windows, error) {
	if loc == nil {
		loc = time.UTC
	}
	if duration <= 0 {
		duration = time.Hour
	}
	out := make(Windows, 0, len(specs))
	for _, raw := range specs {
		kind, expr, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			return nil, fmt.Errorf("unsupported maintenance spec %q", raw)
		}
		expr = strings.TrimSpace(expr)
		switch WindowKind(strings.TrimSpace(kind)) {
		case WindowCron:
			sched, err := cron.ParseStandard(expr)
			if err != nil {
				return nil, fmt.Errorf("parse cron %q: %w", expr, err)
			}
			out = append(out, Window{kind: WindowCron, schedule: withLocation(sched, loc), duration: duration})
		case WindowRange:
			start, end, err := parseRange(expr, loc)
			if err != nil {
				return nil, err
			}
			out = append(out, Window{kind: WindowRange, start: start, end: end})
		default:
			return nil, fmt.Errorf("unsupported maintenance spec %q", raw)
		}
	}
	return out, nil
}

// withLocation pins a parsed schedule to loc unless the expression carried
// its own CRON_TZ.
func withLocation(s cron.Schedule, loc *time.Location) cron.Schedule {
	if spec, ok := s.(*cron.SpecSchedule); ok && spec.Location == time.Local {
		spec.Location = loc
	}
	return s
}

func parseRange(expr string, loc *time.Location) (time.Time, time.Time, error) {
	// Both bounds contain '-', so split after the third dash.
	idx := nthIndex(expr, '-', 3)
	if idx < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid range %q", expr)
	}
	start, err := time.ParseInLocation(rangeLayout, strings.TrimSpace(expr[:idx]), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse range start: %w", err)
	}
	end, err := time.ParseInLocation(rangeLayout, strings.TrimSpace(expr[idx+1:]), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse range end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid range %q: end before start", expr)
	}
	return start, end, nil
}

func nthIndex(s string, c byte, n int) int {
	seen := 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			seen++
			if seen == n {
				return i
			}
		}
	}
	return -1
}

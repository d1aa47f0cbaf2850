// Package cronmatch implements the five-field cron subset: a
// tick-aligned "should run now" predicate plus same-minute suppression
// state. Grammar per field: `*`, `*/N`, `A,B,C`, `A-B`, or a literal
// integer. Hand-rolled rather than pulled from a cron library, in the
// same spirit as the teacher's own hand-written XPath step evaluator —
// the grammar is small and fixed, and a dependency buys nothing here.
package cronmatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one parsed cron field: a set of integers it matches, or "any".
type field struct {
	any    bool
	values map[int]struct{}
}

func (f field) matches(v int) bool {
	if f.any {
		return true
	}
	_, ok := f.values[v]
	return ok
}

// Schedule is a parsed five-field cron expression.
type Schedule struct {
	minute  field
	hour    field
	dom     field
	month   field
	dow     field
	raw     string
}

// Parse compiles a cron expression. Returns an error for malformed fields
// or an incorrect field count.
func Parse(expr string) (*Schedule, error) {
	parts := strings.Fields(strings.TrimSpace(expr))
	if len(parts) != 5 {
		return nil, fmt.Errorf("cronmatch: expected 5 fields, got %d in %q", len(parts), expr)
	}

	minute, err := parseField(parts[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("cronmatch: minute: %w", err)
	}
	hour, err := parseField(parts[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("cronmatch: hour: %w", err)
	}
	dom, err := parseField(parts[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("cronmatch: day-of-month: %w", err)
	}
	month, err := parseField(parts[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("cronmatch: month: %w", err)
	}
	dow, err := parseField(parts[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("cronmatch: day-of-week: %w", err)
	}

	return &Schedule{minute: minute, hour: hour, dom: dom, month: month, dow: dow, raw: expr}, nil
}

func parseField(s string, min, max int) (field, error) {
	if s == "*" {
		return field{any: true}, nil
	}

	values := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		if step, ok := strings.CutPrefix(part, "*/"); ok {
			n, err := strconv.Atoi(step)
			if err != nil || n <= 0 {
				return field{}, fmt.Errorf("bad step %q", part)
			}
			for v := min; v <= max; v += n {
				values[v] = struct{}{}
			}
			continue
		}

		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, err1 := strconv.Atoi(lo)
			b, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil || a > b {
				return field{}, fmt.Errorf("bad range %q", part)
			}
			for v := a; v <= b; v++ {
				values[v] = struct{}{}
			}
			continue
		}

		n, err := strconv.Atoi(part)
		if err != nil {
			return field{}, fmt.Errorf("bad literal %q", part)
		}
		values[n] = struct{}{}
	}

	return field{values: values}, nil
}

// matchesTime reports whether t falls on a minute this schedule names,
// irrespective of same-minute suppression.
func (s *Schedule) matchesTime(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

// Tracker wraps a Schedule with last-fired-minute suppression: a schedule
// that matches the current minute only fires once for that minute, even if
// Should is called again before the minute rolls over.
type Tracker struct {
	schedule  *Schedule
	lastFired time.Time
	fired     bool
}

// NewTracker wraps a parsed Schedule for repeated evaluation.
func NewTracker(s *Schedule) *Tracker {
	return &Tracker{schedule: s}
}

// Should reports whether a run should fire at time t, and if so, records t's
// minute as fired so a subsequent call within the same minute returns false.
func (tr *Tracker) Should(t time.Time) bool {
	if !tr.schedule.matchesTime(t) {
		return false
	}
	if tr.fired && sameMinute(tr.lastFired, t) {
		return false
	}
	tr.lastFired = t
	tr.fired = true
	return true
}

func sameMinute(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay() &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute()
}

package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed five-field cron expression:
// "minute hour day-of-month month day-of-week". Each field accepts "*",
// single values, ranges ("1-5"), steps ("*/15", "0-30/10") and comma lists.
type Schedule struct {
	expr   string
	fields [5]field
}

type field struct {
	any bool
	set map[int]bool
}

func (f field) has(v int) bool {
	return f.any || f.set[v]
}

var fieldBounds = [5]struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseSchedule parses expr.
func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("pipeline: cron %q: want 5 fields, got %d", expr, len(parts))
	}
	s := Schedule{expr: expr}
	for i, p := range parts {
		f, err := parseField(p, fieldBounds[i].min, fieldBounds[i].max)
		if err != nil {
			return Schedule{}, fmt.Errorf("pipeline: cron %q: %s: %w", expr, fieldBounds[i].name, err)
		}
		s.fields[i] = f
	}
	return s, nil
}

func parseField(s string, lo, hi int) (field, error) {
	if s == "*" {
		return field{any: true}, nil
	}
	f := field{set: make(map[int]bool)}
	for _, term := range strings.Split(s, ",") {
		rng, step := term, 1
		if i := strings.IndexByte(term, '/'); i >= 0 {
			n, err := strconv.Atoi(term[i+1:])
			if err != nil || n <= 0 {
				return field{}, fmt.Errorf("invalid step in %q", term)
			}
			rng, step = term[:i], n
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err1, err2 error
			from, err1 = strconv.Atoi(a)
			to, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil || from > to {
				return field{}, fmt.Errorf("invalid range %q", rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return field{}, fmt.Errorf("invalid value %q", rng)
			}
			from, to = v, v
			if step > 1 {
				to = hi
			}
		}
		if from < lo || to > hi {
			return field{}, fmt.Errorf("%q out of range %d-%d", term, lo, hi)
		}
		for v := from; v <= to; v += step {
			f.set[v] = true
		}
	}
	return f, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.fields[0].has(t.Minute()) &&
		s.fields[1].has(t.Hour()) &&
		s.fields[2].has(t.Day()) &&
		s.fields[3].has(int(t.Month())) &&
		s.fields[4].has(int(t.Weekday()))
}

// Next returns the first minute strictly after 'after' that matches. The
// search is bounded to one year; ok is false when nothing matches (for
// example "0 0 31 2 *").
func (s Schedule) Next(after time.Time) (next time.Time, ok bool) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for t.Before(limit) {
		if s.matches(t) {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}

func (s Schedule) String() string { return s.expr }

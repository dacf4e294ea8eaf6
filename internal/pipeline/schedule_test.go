package pipeline

import (
	"testing"
	"time"
)

func TestScheduleNext(t *testing.T) {
	at := func(s string) time.Time {
		t.Helper()
		v, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}

	tests := []struct {
		expr  string
		after string
		want  string
	}{
		{"*/15 * * * *", "2026-10-15T10:07:30Z", "2026-10-15T10:15:00Z"},
		{"*/15 * * * *", "2026-10-15T10:15:00Z", "2026-10-15T10:30:00Z"},
		{"0 3 * * *", "2026-10-15T03:00:00Z", "2026-10-16T03:00:00Z"},
		{"0 3 * * 1-5", "2026-10-17T12:00:00Z", "2026-10-19T03:00:00Z"},
		{"30 6,18 * * *", "2026-10-15T07:00:00Z", "2026-10-15T18:30:00Z"},
		{"0 0 1 */3 *", "2026-10-15T00:00:00Z", "2027-01-01T00:00:00Z"},
		{"5/20 * * * *", "2026-10-15T10:26:00Z", "2026-10-15T10:45:00Z"},
	}
	for _, tc := range tests {
		s, err := ParseSchedule(tc.expr)
		if err != nil {
			t.Fatalf("%q: %v", tc.expr, err)
		}
		got, ok := s.Next(at(tc.after))
		if !ok || !got.Equal(at(tc.want)) {
			t.Errorf("%q after %s = %s, %v; want %s", tc.expr, tc.after, got, ok, tc.want)
		}
	}
}

func TestScheduleNeverFires(t *testing.T) {
	s, err := ParseSchedule("0 0 31 2 *")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); ok {
		t.Error("Feb 31 should never fire")
	}
}

func TestParseScheduleRejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) accepted", expr)
		}
	}
}

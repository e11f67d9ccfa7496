package shared

import (
	"errors"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	cases := []struct {
		label string
		want  string
		kind  PeriodKind
		start time.Time
		last  time.Time
	}{
		{"2024", "2024", PeriodYear, date(2024, 1, 1), date(2024, 12, 31)},
		{"2024-02", "2024-02", PeriodMonth, date(2024, 2, 1), date(2024, 2, 29)},
		{" 2024-q1 ", "2024-Q1", PeriodQuarter, date(2024, 1, 1), date(2024, 3, 31)},
		{"2023-Q4", "2023-Q4", PeriodQuarter, date(2023, 10, 1), date(2023, 12, 31)},
		{"2024-s2", "2024-S2", PeriodSemester, date(2024, 7, 1), date(2024, 12, 31)},
	}
	for _, tc := range cases {
		p, err := ParsePeriod(tc.label)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.label, err)
		}
		if p.Label != tc.want || p.Kind != tc.kind {
			t.Fatalf("%q: got %s %s", tc.label, p.Label, p.Kind)
		}
		if !p.Start.Equal(tc.start) || !p.LastDay().Equal(tc.last) {
			t.Fatalf("%q: got range %s..%s", tc.label, p.Start, p.LastDay())
		}
	}
}

func TestParsePeriodRejects(t *testing.T) {
	for _, label := range []string{"", "24", "1800", "2024-13", "2024-Q5", "2024-S3", "2024/01", "Q1-2024", "2024-Q"} {
		if _, err := ParsePeriod(label); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("%q: expected ErrInvalidPeriod got %v", label, err)
		}
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

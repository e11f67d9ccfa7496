package shared

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodKind enumerates the reporting period granularities.
type PeriodKind string

const (
	PeriodMonth    PeriodKind = "MONTH"
	PeriodQuarter  PeriodKind = "QUARTER"
	PeriodSemester PeriodKind = "SEMESTER"
	PeriodYear     PeriodKind = "YEAR"
)

// Period is a parsed reporting period label such as 2024-Q1.
type Period struct {
	Label string
	Kind  PeriodKind
	Start time.Time
	// End is exclusive.
	End time.Time
}

// LastDay returns the final calendar day covered by the period.
func (p Period) LastDay() time.Time {
	return p.End.AddDate(0, 0, -1)
}

// ParsePeriod accepts YYYY, YYYY-MM, YYYY-Qn and YYYY-Sn labels (case-insensitive).
func ParsePeriod(label string) (Period, error) {
	norm := strings.ToUpper(strings.TrimSpace(label))
	if len(norm) < 4 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
	}
	year, err := strconv.Atoi(norm[:4])
	if err != nil || year < 1900 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
	}
	if len(norm) == 4 {
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Period{Label: norm, Kind: PeriodYear, Start: start, End: start.AddDate(1, 0, 0)}, nil
	}
	if len(norm) < 6 || norm[4] != '-' {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
	}
	suffix := norm[5:]
	switch {
	case len(suffix) == 2 && suffix[0] == 'Q':
		q, err := strconv.Atoi(suffix[1:])
		if err != nil || q < 1 || q > 4 {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		start := time.Date(year, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
		return Period{Label: norm, Kind: PeriodQuarter, Start: start, End: start.AddDate(0, 3, 0)}, nil
	case len(suffix) == 2 && suffix[0] == 'S':
		s, err := strconv.Atoi(suffix[1:])
		if err != nil || s < 1 || s > 2 {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		start := time.Date(year, time.Month(6*(s-1)+1), 1, 0, 0, 0, 0, time.UTC)
		return Period{Label: norm, Kind: PeriodSemester, Start: start, End: start.AddDate(0, 6, 0)}, nil
	case len(suffix) == 2:
		m, err := strconv.Atoi(suffix)
		if err != nil || m < 1 || m > 12 {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		start := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		return Period{Label: norm, Kind: PeriodMonth, Start: start, End: start.AddDate(0, 1, 0)}, nil
	}
	return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
}

// NormalizePeriodLabel returns the canonical form of label.
func NormalizePeriodLabel(label string) (string, error) {
	p, err := ParsePeriod(label)
	if err != nil {
		return "", err
	}
	return p.Label, nil
}

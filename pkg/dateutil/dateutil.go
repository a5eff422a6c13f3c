// Package dateutil normalizes the date spellings the Glasir pages use
// (DD.MM.YYYY, DD.MM, DD/MM, DD/MM-YYYY, YYYY-MM-DD) into ISO calendar dates
// and derives ISO week numbering from them. All functions are pure.
package dateutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	rePeriodFull    = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	rePeriodShort   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})`)
	reHyphen        = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	reSlashWithYear = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})-(\d{4})`)
	reSlashShort    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})`)
)

// ToISODate converts a date string in any supported spelling to YYYY-MM-DD.
// Spellings without a year (DD.MM, DD/MM) assume the given year; pass 0 to
// assume the current system year. Returns "" when nothing matches.
func ToISODate(s string, year int) string {
	if s == "" {
		return ""
	}
	if year == 0 {
		year = time.Now().Year()
	}

	if m := rePeriodFull.FindStringSubmatch(s); m != nil {
		return isoDate(m[3], m[2], m[1])
	}
	if m := reHyphen.FindStringSubmatch(s); m != nil {
		return isoDate(m[1], m[2], m[3])
	}
	// DD/MM-YYYY must be tried before plain DD/MM.
	if m := reSlashWithYear.FindStringSubmatch(s); m != nil {
		return isoDate(m[3], m[2], m[1])
	}
	if m := reSlashShort.FindStringSubmatch(s); m != nil {
		return isoDate(strconv.Itoa(year), m[2], m[1])
	}
	if m := rePeriodShort.FindStringSubmatch(s); m != nil {
		return isoDate(strconv.Itoa(year), m[2], m[1])
	}
	return ""
}

func isoDate(year, month, day string) string {
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	return fmt.Sprintf("%s-%02d-%02d", year, m, d)
}

// ISOWeek returns the ISO week-numbering year and week for an ISO calendar
// date. The ISO year can differ from the Gregorian year at year boundaries.
func ISOWeek(isoDate string) (year, week int, err error) {
	t, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return 0, 0, fmt.Errorf("dateutil: parse %q: %w", isoDate, err)
	}
	year, week = t.ISOWeek()
	return year, week, nil
}

// WeekKey builds the canonical per-student week identifier, e.g. "2025-W17".
func WeekKey(year, week int) string {
	return fmt.Sprintf("%d-W%02d", year, week)
}

// ParseTimeRange splits "HH:MM-HH:MM" into its start and end times.
// Returns ("", "", false) when the input is not a two-part range.
func ParseTimeRange(timeRange string) (start, end string, ok bool) {
	parts := strings.Split(timeRange, "-")
	if len(parts) != 2 {
		return "", "", false
	}
	start = strings.TrimSpace(parts[0])
	end = strings.TrimSpace(parts[1])
	if start == "" || end == "" {
		return "", "", false
	}
	return start, end, true
}

// FormatAcademicYear expands a 4-digit code like "2425" into "2024-2025".
// Codes that are not 4 digits, not numeric, or not consecutive years are
// returned unchanged; an empty code stays empty.
func FormatAcademicYear(code string) string {
	if len(code) != 4 {
		return code
	}
	first, err1 := strconv.Atoi(code[:2])
	second, err2 := strconv.Atoi(code[2:])
	if err1 != nil || err2 != nil {
		return code
	}
	start := 2000 + first
	end := 2000 + second
	if end != start+1 {
		return code
	}
	return fmt.Sprintf("%d-%d", start, end)
}

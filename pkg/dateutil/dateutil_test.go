package dateutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToISODate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		year  int
		want  string
	}{
		{"period full", "21.04.2025", 0, "2025-04-21"},
		{"period full single digits", "1.2.2025", 0, "2025-02-01"},
		{"period short uses year", "24.12", 2024, "2024-12-24"},
		{"iso passthrough", "2025-04-21", 0, "2025-04-21"},
		{"iso single digit parts", "2025-4-1", 0, "2025-04-01"},
		{"slash short", "21/4", 2025, "2025-04-21"},
		{"slash with year", "24/3-2025", 0, "2025-03-24"},
		{"slash with year beats assumed year", "24/3-2023", 2025, "2023-03-24"},
		{"garbage", "not a date", 2025, ""},
		{"empty", "", 2025, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToISODate(tt.input, tt.year))
		})
	}
}

func TestISOWeek(t *testing.T) {
	year, week, err := ISOWeek("2025-04-21")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 17, week)

	_, _, err = ISOWeek("21.04.2025")
	assert.Error(t, err)
}

func TestISOWeek_YearBoundary(t *testing.T) {
	// 2024-12-30 is a Monday belonging to ISO week 1 of 2025.
	year, week, err := ISOWeek("2024-12-30")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 1, week)

	// 2027-01-01 is a Friday belonging to ISO week 53 of 2026.
	year, week, err = ISOWeek("2027-01-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 53, week)
}

func TestWeekKey(t *testing.T) {
	assert.Equal(t, "2025-W17", WeekKey(2025, 17))
	assert.Equal(t, "2025-W01", WeekKey(2025, 1))
}

func TestParseTimeRange(t *testing.T) {
	start, end, ok := ParseTimeRange("08:10-09:40")
	require.True(t, ok)
	assert.Equal(t, "08:10", start)
	assert.Equal(t, "09:40", end)

	start, end, ok = ParseTimeRange(" 10:05 - 11:35 ")
	require.True(t, ok)
	assert.Equal(t, "10:05", start)
	assert.Equal(t, "11:35", end)

	_, _, ok = ParseTimeRange("whole day")
	assert.False(t, ok)
	_, _, ok = ParseTimeRange("")
	assert.False(t, ok)
}

func TestFormatAcademicYear(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"2425", "2024-2025"},
		{"2526", "2025-2026"},
		{"2427", "2427"}, // not consecutive
		{"24", "24"},
		{"abcd", "abcd"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAcademicYear(tt.code), "code %q", tt.code)
	}
}

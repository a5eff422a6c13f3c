package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(lessonID, title, location string, cancelled bool) Event {
	return Event{
		Title:        title,
		DayOfWeek:    "Monday",
		TeacherShort: "JOH",
		TeacherFull:  "John Johnson",
		Location:     location,
		TimeSlot:     "1",
		StartTime:    "08:10",
		EndTime:      "09:40",
		TimeRange:    "08:10-09:40",
		Cancelled:    cancelled,
		LessonID:     lessonID,
	}
}

func week(events ...Event) TimetableData {
	return TimetableData{
		StudentInfo:   StudentInfo{StudentName: "Test Student", ClassName: "22y"},
		WeekInfo:      WeekInfo{WeekNumber: 17, Year: 2025, StartDate: "2025-04-21", EndDate: "2025-04-27", WeekKey: "2025-W17"},
		Events:        events,
		FormatVersion: FormatVersion,
	}
}

func TestDiff_NoOldWeek(t *testing.T) {
	new := week(event("LES1", "MAT", "101", false), event("LES2", "ENG", "102", false))

	diff := Diff(nil, new)

	require.Len(t, diff.Added, 2)
	assert.Equal(t, "LES1", diff.Added[0].LessonID)
	assert.Equal(t, "LES2", diff.Added[1].LessonID)
	assert.Empty(t, diff.Updated)
	assert.Empty(t, diff.Removed)
}

func TestDiff_Identical(t *testing.T) {
	old := week(event("LES1", "MAT", "101", false))
	new := week(event("LES1", "MAT", "101", false))

	diff := Diff(&old, new)

	assert.True(t, diff.Empty())
}

func TestDiff_AddedUpdatedRemoved(t *testing.T) {
	old := week(
		event("LES1", "MAT", "101", false),
		event("LES2", "ENG", "102", false),
		event("LES3", "HIS", "103", false),
	)
	new := week(
		event("LES1", "MAT", "101", true), // cancelled flag flipped
		event("LES3", "HIS", "103", false),
		event("LES4", "BIO", "104", false),
	)

	diff := Diff(&old, new)

	require.Len(t, diff.Added, 1)
	assert.Equal(t, "LES4", diff.Added[0].LessonID)

	require.Len(t, diff.Updated, 1)
	assert.Equal(t, "LES1", diff.Updated[0].LessonID)
	assert.True(t, diff.Updated[0].Cancelled, "updated entry carries the new version")

	assert.Equal(t, []string{"LES2"}, diff.Removed)
}

func TestDiff_IgnoresEventsWithoutLessonID(t *testing.T) {
	old := week(event("", "MAT", "101", false))
	new := week(event("", "ENG", "102", false))

	diff := Diff(&old, new)

	assert.True(t, diff.Empty(), "untracked events never appear in a diff")
}

func TestDiff_HomeworkChangeIsUpdate(t *testing.T) {
	before := event("LES1", "MAT", "101", false)
	after := before
	after.Description = "**Heimaarbeiði**\nRead chapter 4"
	after.HasHomeworkNote = true

	diff := Diff(ptr(week(before)), week(after))

	require.Len(t, diff.Updated, 1)
	assert.Equal(t, after.Description, diff.Updated[0].Description)
}

func TestDiff_DeterministicOrder(t *testing.T) {
	new := week(
		event("LES3", "HIS", "103", false),
		event("LES1", "MAT", "101", false),
		event("LES2", "ENG", "102", false),
	)

	diff := Diff(nil, new)

	require.Len(t, diff.Added, 3)
	assert.Equal(t, "LES1", diff.Added[0].LessonID)
	assert.Equal(t, "LES2", diff.Added[1].LessonID)
	assert.Equal(t, "LES3", diff.Added[2].LessonID)
}

func ptr(t TimetableData) *TimetableData { return &t }

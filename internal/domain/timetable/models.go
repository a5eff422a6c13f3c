// Package timetable holds the timetable domain model: events, week metadata,
// the assembled weekly payload, and the diff between two versions of a week.
package timetable

import (
	"fmt"
	"time"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/shared"
)

// FormatVersion is the version stamp carried by every TimetableData payload.
const FormatVersion = 2

// Event is one lesson occurrence. All fields are plain values so two events
// can be compared with ==; absent optional fields are empty strings.
type Event struct {
	Title           string `json:"title"`
	Level           string `json:"level,omitempty"`
	AcademicYear    string `json:"academicYear,omitempty"`
	Date            string `json:"date,omitempty"`
	DayOfWeek       string `json:"dayOfWeek"`
	TeacherFull     string `json:"teacherFull"`
	TeacherShort    string `json:"teacherShort"`
	Location        string `json:"location"`
	TimeSlot        string `json:"timeSlot"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	TimeRange       string `json:"timeRange"`
	Cancelled       bool   `json:"cancelled"`
	LessonID        string `json:"lessonId,omitempty"`
	Description     string `json:"description,omitempty"`
	HasHomeworkNote bool   `json:"hasHomeworkNote"`
}

// WeekInfo identifies one timetable week.
type WeekInfo struct {
	WeekNumber int    `json:"weekNumber"`
	Year       int    `json:"year"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Offset     int    `json:"offset"`
	WeekKey    string `json:"weekKey"`
}

// Validate checks the week identity invariants.
func (w WeekInfo) Validate() error {
	if w.WeekNumber < 1 || w.WeekNumber > 53 {
		return shared.NewDomainError("timetable", "Validate", shared.ErrValidation,
			fmt.Sprintf("week number %d out of range [1,53]", w.WeekNumber))
	}
	if w.WeekKey == "" {
		return shared.NewDomainError("timetable", "Validate", shared.ErrValidation, "empty week key")
	}
	return nil
}

// StudentInfo is the student identity parsed from the timetable page.
type StudentInfo struct {
	StudentName string `json:"studentName"`
	ClassName   string `json:"className"`
}

// TimetableData is the full payload for one student week. It is what gets
// serialized into weekly_timetable_states.timetable_blob.
type TimetableData struct {
	StudentInfo   StudentInfo `json:"studentInfo"`
	WeekInfo      WeekInfo    `json:"weekInfo"`
	Events        []Event     `json:"events"`
	FormatVersion int         `json:"formatVersion"`
}

// Validate checks that every dated event falls inside the week bounds.
func (t TimetableData) Validate() error {
	if err := t.WeekInfo.Validate(); err != nil {
		return err
	}
	for _, ev := range t.Events {
		if ev.Date == "" {
			continue
		}
		if ev.Date < t.WeekInfo.StartDate || ev.Date > t.WeekInfo.EndDate {
			return shared.NewDomainError("timetable", "Validate", shared.ErrValidation,
				fmt.Sprintf("event date %s outside week %s..%s", ev.Date, t.WeekInfo.StartDate, t.WeekInfo.EndDate))
		}
	}
	return nil
}

// WeekDiff is the change set between two versions of one week.
type WeekDiff struct {
	Added   []Event  `json:"added"`
	Updated []Event  `json:"updated"`
	Removed []string `json:"removed"`
}

// Empty reports whether the diff carries no changes.
func (d WeekDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Cookie is one upstream cookie record. cookies_blob is a JSON array of
// these; only name and value are required.
type Cookie struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Domain  string `json:"domain,omitempty"`
	Path    string `json:"path,omitempty"`
	Expires string `json:"expires,omitempty"`
}

// UserSession is the persisted per-student session record. The access code is
// the sole client credential after the initial sync; the cookie blob holds the
// upstream cookies captured at initial sync or refresh time.
type UserSession struct {
	StudentID             string
	AccessCode            string
	AccessCodeGeneratedAt time.Time
	CookiesBlob           []byte
	CookiesUpdatedAt      time.Time
	CreatedAt             time.Time
	LastAccessedAt        time.Time
}

// CookiesFresh reports whether the stored cookies are at most maxAge old.
func (s UserSession) CookiesFresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.CookiesUpdatedAt) <= maxAge
}

// WeeklyState is the persisted snapshot of one (student, week) pair.
type WeeklyState struct {
	ID            int64
	StudentID     string
	WeekKey       string
	TimetableBlob []byte
	LastUpdatedAt time.Time
}

// TeacherCacheEntry maps teacher initials to a full name, with a TTL.
type TeacherCacheEntry struct {
	Initials  string
	FullName  string
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the entry is still usable at the given instant.
func (e TeacherCacheEntry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

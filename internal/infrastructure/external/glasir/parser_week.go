package glasir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
	"github.com/glasir-hub/glasir-sync-api/pkg/dateutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEK GRID PARSER
// ══════════════════════════════════════════════════════════════════════════════

// ParseStatus tags the outcome of a week-page parse.
type ParseStatus int

const (
	// ParseSuccess means data was extracted; warnings may still be present.
	ParseSuccess ParseStatus = iota

	// ParseStructureError means the HTML was malformed beyond recovery.
	ParseStructureError

	// ParseFailure means the page lacked the expected timetable markers.
	ParseFailure
)

// ParseResult is the tagged outcome of parsing one week page.
type ParseResult struct {
	Status      ParseStatus
	StudentInfo timetable.StudentInfo
	WeekInfo    timetable.WeekInfo
	Events      []timetable.Event
	Warnings    []string
	ErrMessage  string
}

var (
	reStudentInfo = regexp.MustCompile(`Næmingatímatalva\s*:\s*(.*?)\s*,\s*([\w\s]+)\b`)
	reClassToken  = regexp.MustCompile(`^[\w\s]+`)
	reDateRange   = regexp.MustCompile(`(\d{1,2}\.\d{1,2}\.\d{4})\s*-\s*(\d{1,2}\.\d{1,2}\.\d{4})`)
	reDayDate     = regexp.MustCompile(`^(\p{L}+)\s+(\d{1,2}/\d{1,2})`)
	reLessonClass = regexp.MustCompile(`^lektionslinje_lesson\d+`)
	// Splits a fused code like "BV3" into subject letters and a level digit
	// or single capital.
	reSubjectLevel = regexp.MustCompile(`^([a-zA-Z]+)(\d*|[A-Z]?)$`)
)

func parseFailed(msg string, warnings []string) ParseResult {
	return ParseResult{Status: ParseFailure, ErrMessage: msg, Warnings: warnings}
}

// ParseWeekPage parses a timetable week page into events plus the student
// and week identity found on it. teacherMap resolves initials to full names;
// unknown initials fall through unchanged. The function performs no I/O.
func ParseWeekPage(pageHTML string, teacherMap map[string]string) ParseResult {
	if strings.TrimSpace(pageHTML) == "" {
		return parseFailed("empty HTML content", nil)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return ParseResult{Status: ParseStructureError, ErrMessage: fmt.Sprintf("invalid HTML structure: %v", err)}
	}

	var warnings []string

	studentInfo, w := parseStudentInfo(doc)
	warnings = append(warnings, w...)

	weekInfo, w, ok := parseWeekIdentity(doc, pageHTML)
	warnings = append(warnings, w...)
	if !ok {
		return parseFailed("failed to determine year/week number from date range", warnings)
	}

	table := doc.Find("table.time_8_16").First()
	if table.Length() == 0 {
		if hasNoEventsMessage(doc) {
			return ParseResult{Status: ParseSuccess, StudentInfo: studentInfo, WeekInfo: weekInfo, Warnings: warnings}
		}
		return parseFailed("timetable grid not found and no explicit no-events message present", warnings)
	}

	events, w := parseGridRows(table, teacherMap, weekInfo.Year)
	warnings = append(warnings, w...)

	return ParseResult{
		Status:      ParseSuccess,
		StudentInfo: studentInfo,
		WeekInfo:    weekInfo,
		Events:      events,
		Warnings:    warnings,
	}
}

func parseStudentInfo(doc *goquery.Document) (timetable.StudentInfo, []string) {
	var warnings []string

	td := doc.Find("td").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "Næmingatímatalva")
	}).First()
	if td.Length() == 0 {
		return timetable.StudentInfo{}, []string{"could not find td containing Næmingatímatalva"}
	}

	fullText := strings.Join(strings.Fields(td.Text()), " ")
	m := reStudentInfo.FindStringSubmatch(fullText)
	if m == nil {
		warnings = append(warnings, fmt.Sprintf("student info regex failed on text: %q", fullText))
		return timetable.StudentInfo{}, warnings
	}

	name := strings.TrimSpace(m[1])
	class := strings.TrimSpace(m[2])
	// The class token can trail into neighbouring markup text.
	if cm := reClassToken.FindString(class); cm != "" {
		class = strings.TrimSpace(cm)
	}
	return timetable.StudentInfo{StudentName: name, ClassName: class}, warnings
}

// parseWeekIdentity derives the week's identity from the DD.MM.YYYY date
// range. The ISO calendar of the start date is authoritative; the selected
// week anchor ("Vika N") is only cross-checked.
func parseWeekIdentity(doc *goquery.Document, pageHTML string) (timetable.WeekInfo, []string, bool) {
	var warnings []string

	m := reDateRange.FindStringSubmatch(pageHTML)
	if m == nil {
		warnings = append(warnings, "could not parse date range (DD.MM.YYYY - DD.MM.YYYY)")
		return timetable.WeekInfo{}, warnings, false
	}

	startDate := dateutil.ToISODate(m[1], 0)
	endDate := dateutil.ToISODate(m[2], 0)
	if startDate == "" {
		warnings = append(warnings, fmt.Sprintf("could not normalize start date %q", m[1]))
		return timetable.WeekInfo{}, warnings, false
	}
	if endDate == "" {
		warnings = append(warnings, fmt.Sprintf("could not normalize end date %q", m[2]))
	}

	isoYear, isoWeek, err := dateutil.ISOWeek(startDate)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("iso week derivation failed: %v", err))
		return timetable.WeekInfo{}, warnings, false
	}

	weekLink := doc.Find("a.UgeKnapValgt").First()
	if weekLink.Length() > 0 {
		text := strings.TrimSpace(weekLink.Text())
		if rest, found := strings.CutPrefix(text, "Vika "); found {
			if linkWeek, err := strconv.Atoi(rest); err == nil && linkWeek != isoWeek {
				warnings = append(warnings, fmt.Sprintf(
					"week number mismatch: anchor says %d, iso calendar says %d; using iso calendar", linkWeek, isoWeek))
			}
		}
	}

	return timetable.WeekInfo{
		WeekNumber: isoWeek,
		Year:       isoYear,
		StartDate:  startDate,
		EndDate:    endDate,
		WeekKey:    dateutil.WeekKey(isoYear, isoWeek),
	}, warnings, true
}

func hasNoEventsMessage(doc *goquery.Document) bool {
	found := false
	doc.Find("p, div.alert, td.header").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		for _, phrase := range noEventPhrases {
			if strings.Contains(text, phrase) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func parseGridRows(table *goquery.Selection, teacherMap map[string]string, isoYear int) ([]timetable.Event, []string) {
	var events []timetable.Event
	var warnings []string

	currentDay := ""
	currentDate := ""

	table.Find("tr").Each(func(rowIndex int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}

		first := cells.First()
		if first.HasClass("lektionslinje_1") || first.HasClass("lektionslinje_1_aktuel") {
			text := strings.Join(strings.Fields(first.Text()), " ")
			if m := reDayDate.FindStringSubmatch(text); m != nil {
				currentDay = m[1]
				currentDate = m[2]
			} else {
				// A header that fails the day regex invalidates the
				// running day context for subsequent cells.
				warnings = append(warnings, fmt.Sprintf("row %d: day header regex failed on %q", rowIndex, text))
				currentDay = ""
				currentDate = ""
			}
		}
		if currentDay == "" || currentDate == "" {
			return
		}

		dayEN := dayNames[currentDay]
		if dayEN == "" {
			dayEN = currentDay
		}

		colIndex := 1
		cells.Each(func(cellIndex int, cell *goquery.Selection) {
			colspan := cellColspan(cell)
			if cellIndex == 0 {
				colIndex += colspan
				return
			}
			defer func() { colIndex += colspan }()

			if !isLessonCell(cell) {
				return
			}

			ev, ws, ok := parseLessonCell(cell, lessonCellContext{
				rowIndex:  rowIndex,
				cellIndex: cellIndex,
				colIndex:  colIndex,
				colspan:   colspan,
				dayEN:     dayEN,
				datePart:  currentDate,
				isoYear:   isoYear,
			}, teacherMap)
			warnings = append(warnings, ws...)
			if ok {
				events = append(events, ev)
			}
		})
	})

	return events, warnings
}

type lessonCellContext struct {
	rowIndex  int
	cellIndex int
	colIndex  int
	colspan   int
	dayEN     string
	datePart  string
	isoYear   int
}

func parseLessonCell(cell *goquery.Selection, lcc lessonCellContext, teacherMap map[string]string) (timetable.Event, []string, bool) {
	var warnings []string

	anchors := cell.Find("a")
	if anchors.Length() < 3 {
		warnings = append(warnings, fmt.Sprintf(
			"row %d, cell %d: lesson cell has only %d links, skipping", lcc.rowIndex, lcc.cellIndex, anchors.Length()))
		return timetable.Event{}, warnings, false
	}

	rawCode := strings.TrimSpace(anchors.Eq(0).Text())
	teacherShort := strings.TrimSpace(anchors.Eq(1).Text())
	rawRoom := strings.TrimSpace(anchors.Eq(2).Text())

	title, level, yearCode, w := parseSubjectCode(rawCode)
	warnings = append(warnings, w...)

	teacherFull := teacherMap[teacherShort]
	if teacherFull == "" {
		teacherFull = teacherShort
	}
	// Directory entries sometimes carry their initials, e.g. "Jón (JOH)".
	if i := strings.Index(teacherFull, " ("); i >= 0 {
		teacherFull = teacherFull[:i]
	}

	location := strings.TrimSpace(strings.ReplaceAll(rawRoom, "st.", ""))

	slot, timeRange := timeSlotFor(lcc.colIndex, lcc.colspan)
	if slot == "" {
		warnings = append(warnings, fmt.Sprintf("row %d, cell %d: unknown time slot for column %d", lcc.rowIndex, lcc.cellIndex, lcc.colIndex))
	}
	startTime, endTime, _ := dateutil.ParseTimeRange(timeRange)

	isoDate := dateutil.ToISODate(lcc.datePart, lcc.isoYear)

	lessonID := ""
	if span := cell.Find(`span[id^="MyWindow"][id$="Main"]`).First(); span.Length() > 0 {
		id, _ := span.Attr("id")
		if len(id) > 12 {
			lessonID = id[8 : len(id)-4]
		} else {
			warnings = append(warnings, fmt.Sprintf("row %d, cell %d: lesson span has unexpected id %q", lcc.rowIndex, lcc.cellIndex, id))
		}
	} else {
		warnings = append(warnings, fmt.Sprintf("row %d, cell %d: no lesson id span for %s on %s", lcc.rowIndex, lcc.cellIndex, title, isoDate))
	}

	hasNote := cell.Find(`input[type="image"][src*="note.gif"]`).Length() > 0
	if hasNote && lessonID == "" {
		warnings = append(warnings, fmt.Sprintf("row %d, cell %d: homework note present but no lesson id for %s on %s", lcc.rowIndex, lcc.cellIndex, title, isoDate))
	}

	if isoDate == "" || startTime == "" || endTime == "" {
		warnings = append(warnings, fmt.Sprintf(
			"row %d, cell %d: missing date/time info (date=%q start=%q end=%q), skipping event",
			lcc.rowIndex, lcc.cellIndex, isoDate, startTime, endTime))
		return timetable.Event{}, warnings, false
	}

	return timetable.Event{
		Title:           title,
		Level:           level,
		AcademicYear:    dateutil.FormatAcademicYear(yearCode),
		Date:            isoDate,
		DayOfWeek:       lcc.dayEN,
		TeacherFull:     teacherFull,
		TeacherShort:    teacherShort,
		Location:        location,
		TimeSlot:        slot,
		StartTime:       startTime,
		EndTime:         endTime,
		TimeRange:       timeRange,
		Cancelled:       isCancelledCell(cell),
		LessonID:        lessonID,
		HasHomeworkNote: hasNote,
	}, warnings, true
}

// parseSubjectCode splits a raw class code into title, level, and academic
// year code. The upstream format is unstable; each arity gets its own
// explicit branch.
func parseSubjectCode(rawCode string) (title, level, yearCode string, warnings []string) {
	parts := strings.Split(rawCode, "-")
	title = rawCode

	switch {
	// Exam format: "Várroynd-MAT-A-xxxx-2425"
	case parts[0] == "Várroynd" && len(parts) >= 5:
		title = parts[0] + "-" + parts[1]
		level = parts[2]
		yearCode = parts[4]
	// Standard format: "MAT-A-TEAM-2425"
	case len(parts) >= 4:
		title = parts[0]
		level = parts[1]
		yearCode = parts[3]
	// Fused format: "BV3-2425-22y"
	case len(parts) == 3:
		if m := reSubjectLevel.FindStringSubmatch(parts[0]); m != nil {
			title = m[1]
			level = m[2]
		} else {
			title = parts[0]
		}
		yearCode = parts[1]
	default:
		warnings = append(warnings, fmt.Sprintf("unexpected subject code format: %q", rawCode))
	}
	return title, level, yearCode, warnings
}

// timeSlotFor maps a grid column to its teaching slot. A colspan covering
// most of the grid means a whole-day event.
func timeSlotFor(colIndex, colspan int) (slot, timeRange string) {
	if colspan >= allDayColspan {
		return "All day", "08:10-15:25"
	}
	for _, ts := range timeSlots {
		if colIndex >= ts.minCol && colIndex <= ts.maxCol {
			return ts.slot, ts.startTime + "-" + ts.endTime
		}
	}
	return "", ""
}

func isLessonCell(cell *goquery.Selection) bool {
	classes, _ := cell.Attr("class")
	for _, cls := range strings.Fields(classes) {
		if reLessonClass.MatchString(cls) {
			return true
		}
	}
	return false
}

func isCancelledCell(cell *goquery.Selection) bool {
	classes, _ := cell.Attr("class")
	for _, cls := range strings.Fields(classes) {
		if cancelledClasses[cls] {
			return true
		}
	}
	return false
}

func cellColspan(cell *goquery.Selection) int {
	raw, ok := cell.Attr("colspan")
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

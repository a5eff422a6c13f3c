package glasir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLname(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"query string",
			`<script>var url = "/i/udvalg.asp?fname=Henry&lname=TOK1&timer=123";</script>`,
			"TOK1",
		},
		{
			"xmlhttp send",
			`<script>xmlhttp.send("fname=Henry&lname=32,7&timer=1");</script>`,
			"32",
		},
		{
			"myupdate positional",
			`<script>MyUpdate('/i/udvalg.asp','stude','q',1,32187)</script>`,
			"32187",
		},
		{
			"hidden input",
			`<input type="hidden" name="lname" value="TOK9">`,
			"TOK9",
		},
		{
			"comma truncation",
			`href="?lname=ABC,DEF"`,
			"ABC",
		},
		{
			"absent",
			`<html><body>nothing here</body></html>`,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLname(tt.html))
		})
	}
}

func TestParseTeacherMap_Select(t *testing.T) {
	html := `<select name="laerer">
		<option value="-1">Vel lærara</option>
		<option value="JOH">Jón</option>
		<option value="ABC">Anna Berg Clementsen</option>
	</select>`

	m := ParseTeacherMap(html)

	assert.Equal(t, map[string]string{
		"JOH": "Jón",
		"ABC": "Anna Berg Clementsen",
	}, m)
}

func TestParseTeacherMap_RegexFallback(t *testing.T) {
	html := `<div>Jón Johnson (<a href="#">JOH</a>)<br>Anna Berg (AB)</div>`

	m := ParseTeacherMap(html)

	assert.Equal(t, "Jón Johnson", m["JOH"])
	assert.Equal(t, "Anna Berg", m["AB"])
}

func TestParseTeacherMap_Empty(t *testing.T) {
	assert.Empty(t, ParseTeacherMap("<html><body></body></html>"))
}

func TestParseHomework(t *testing.T) {
	html := `<html><body>
		<input type="hidden" id="LektionsID123" value="LES1">
		<p><b>Heimaarbeiði</b><br>Read <b>chapter 4</b><br><i>pages 10-20</i></p>
	</body></html>`

	m := ParseHomework(html)

	require.Contains(t, m, "LES1")
	assert.Equal(t, "Read **chapter 4**\n*pages 10-20*", m["LES1"])
}

func TestParseHomework_NoNote(t *testing.T) {
	html := `<html><body>
		<input type="hidden" id="LektionsID123" value="LES1">
		<p>Some unrelated text</p>
	</body></html>`

	assert.Empty(t, ParseHomework(html))
}

func TestParseHomework_NoLessonID(t *testing.T) {
	html := `<p><b>Heimaarbeiði</b><br>text</p>`

	assert.Empty(t, ParseHomework(html))
}

func TestParseAvailableOffsets(t *testing.T) {
	html := `<div>
		<a onclick="skemaVis('1','2','3',0,v=-1);">&lt;</a>
		<a onclick="skemaVis('1','2','3',0,v=0);">Vika 17</a>
		<a onclick="skemaVis('1','2','3',0,v=1);">&gt;</a>
		<a onclick="skemaVis('1','2','3',0,v=1);">dup</a>
		<a onclick="somethingElse();">noise</a>
	</div>`

	assert.Equal(t, []int{-1, 0, 1}, ParseAvailableOffsets(html))
}

func TestParseAvailableOffsets_None(t *testing.T) {
	assert.Empty(t, ParseAvailableOffsets(`<a href="#">no nav</a>`))
	assert.Empty(t, ParseAvailableOffsets(""))
}

// weekFixture is the single-lesson week page used across the grid tests:
// one Monday lesson spanning columns 2..25 (slot 1).
const weekFixture = `<html><body>
<table><tr><td><b>Næmingatímatalva</b> : Rókur Kvilt Meitilberg , 22y</td></tr></table>
<div>21.04.2025 - 27.04.2025</div>
<a class="UgeKnapValgt" onclick="v=0">Vika 17</a>
<table class="time_8_16">
<tr>
  <td class="lektionslinje_1">M&aacute;nadagur 21/04</td>
  <td colspan="24" class="lektionslinje_lesson0">
    <a href="#">MAT-A-TEAM-2425</a>
    <a href="#">JOH</a>
    <a href="#">st. 101</a>
    <span id="MyWindowLES1Main"></span>
  </td>
</tr>
</table>
</body></html>`

func TestParseWeekPage_SingleLesson(t *testing.T) {
	result := ParseWeekPage(weekFixture, map[string]string{"JOH": "Jón"})

	require.Equal(t, ParseSuccess, result.Status, "errmsg: %s", result.ErrMessage)

	assert.Equal(t, "Rókur Kvilt Meitilberg", result.StudentInfo.StudentName)
	assert.Equal(t, "22y", result.StudentInfo.ClassName)

	assert.Equal(t, 17, result.WeekInfo.WeekNumber)
	assert.Equal(t, 2025, result.WeekInfo.Year)
	assert.Equal(t, "2025-04-21", result.WeekInfo.StartDate)
	assert.Equal(t, "2025-04-27", result.WeekInfo.EndDate)
	assert.Equal(t, "2025-W17", result.WeekInfo.WeekKey)

	require.Len(t, result.Events, 1)
	ev := result.Events[0]
	assert.Equal(t, "MAT", ev.Title)
	assert.Equal(t, "A", ev.Level)
	assert.Equal(t, "2024-2025", ev.AcademicYear)
	assert.Equal(t, "2025-04-21", ev.Date)
	assert.Equal(t, "Monday", ev.DayOfWeek)
	assert.Equal(t, "Jón", ev.TeacherFull)
	assert.Equal(t, "JOH", ev.TeacherShort)
	assert.Equal(t, "101", ev.Location)
	assert.Equal(t, "1", ev.TimeSlot)
	assert.Equal(t, "08:10-09:40", ev.TimeRange)
	assert.Equal(t, "08:10", ev.StartTime)
	assert.Equal(t, "09:40", ev.EndTime)
	assert.False(t, ev.Cancelled)
	assert.Equal(t, "LES1", ev.LessonID)
	assert.False(t, ev.HasHomeworkNote)
}

func TestParseWeekPage_Idempotent(t *testing.T) {
	teacherMap := map[string]string{"JOH": "Jón"}
	first := ParseWeekPage(weekFixture, teacherMap)
	second := ParseWeekPage(weekFixture, teacherMap)

	assert.Equal(t, first, second)
}

func TestParseWeekPage_CancelledAndHomework(t *testing.T) {
	html := `<html><body>
<td>Næmingatímatalva : Test Student , 22y</td>
<div>21.04.2025 - 27.04.2025</div>
<table class="time_8_16">
<tr>
  <td class="lektionslinje_1_aktuel">T&yacute;sdagur 22/04</td>
  <td colspan="25" class="lektionslinje_lessoncancelled">
    <a href="#">PHY-B-TEAM-2425</a>
    <a href="#">PHY</a>
    <a href="#">st. 201</a>
    <span id="MyWindowLES2Main"></span>
    <input type="image" src="/images/note.gif">
  </td>
</tr>
</table>
</body></html>`

	result := ParseWeekPage(html, nil)

	require.Equal(t, ParseSuccess, result.Status)
	require.Len(t, result.Events, 1)
	ev := result.Events[0]
	assert.True(t, ev.Cancelled)
	assert.True(t, ev.HasHomeworkNote)
	assert.Equal(t, "LES2", ev.LessonID)
	assert.Equal(t, "Tuesday", ev.DayOfWeek)
	// Unknown initials fall through as their own short form.
	assert.Equal(t, "PHY", ev.TeacherFull)
}

func TestParseWeekPage_FusedSubjectCode(t *testing.T) {
	html := `<html><body>
<div>21.04.2025 - 27.04.2025</div>
<table class="time_8_16">
<tr>
  <td class="lektionslinje_1">Mikudagur 23/04</td>
  <td colspan="30" class="lektionslinje_lesson0">
    <a href="#">BV3-2425-22y</a>
    <a href="#">AB</a>
    <a href="#">st. 303</a>
    <span id="MyWindowLES3Main"></span>
  </td>
</tr>
</table>
</body></html>`

	result := ParseWeekPage(html, nil)

	require.Equal(t, ParseSuccess, result.Status)
	require.Len(t, result.Events, 1)
	ev := result.Events[0]
	assert.Equal(t, "BV", ev.Title)
	assert.Equal(t, "3", ev.Level)
	assert.Equal(t, "2024-2025", ev.AcademicYear)
	// Cell starts at column 2, colspan 30 -> next lesson would start at 32;
	// this one is still slot 1.
	assert.Equal(t, "1", ev.TimeSlot)
}

func TestParseWeekPage_ExamSubjectCode(t *testing.T) {
	html := `<html><body>
<div>21.04.2025 - 27.04.2025</div>
<table class="time_8_16">
<tr>
  <td class="lektionslinje_1">H&oacute;sdagur 24/04</td>
  <td colspan="130" class="lektionslinje_lesson0">
    <a href="#">V&aacute;rroynd-MAT-A-TEAM-2425</a>
    <a href="#">JOH</a>
    <a href="#">st. 101</a>
    <span id="MyWindowLES4Main"></span>
  </td>
</tr>
</table>
</body></html>`

	result := ParseWeekPage(html, nil)

	require.Equal(t, ParseSuccess, result.Status)
	require.Len(t, result.Events, 1)
	ev := result.Events[0]
	assert.Equal(t, "Várroynd-MAT", ev.Title)
	assert.Equal(t, "A", ev.Level)
	assert.Equal(t, "2024-2025", ev.AcademicYear)
	assert.Equal(t, "All day", ev.TimeSlot)
	assert.Equal(t, "08:10-15:25", ev.TimeRange)
}

func TestParseWeekPage_MissingLessonID(t *testing.T) {
	html := `<html><body>
<div>21.04.2025 - 27.04.2025</div>
<table class="time_8_16">
<tr>
  <td class="lektionslinje_1">M&aacute;nadagur 21/04</td>
  <td colspan="24" class="lektionslinje_lesson0">
    <a href="#">MAT-A-TEAM-2425</a>
    <a href="#">JOH</a>
    <a href="#">st. 101</a>
  </td>
</tr>
</table>
</body></html>`

	result := ParseWeekPage(html, nil)

	require.Equal(t, ParseSuccess, result.Status)
	require.Len(t, result.Events, 1)
	assert.Empty(t, result.Events[0].LessonID)
	assert.NotEmpty(t, result.Warnings)
}

func TestParseWeekPage_NoEventsPhrase(t *testing.T) {
	html := `<html><body>
<div>14.07.2025 - 20.07.2025</div>
<p>Ongi skei&eth; hesa vikuna</p>
</body></html>`

	// The phrase check is case-insensitive on the tag text.
	result := ParseWeekPage(html, nil)

	require.Equal(t, ParseSuccess, result.Status)
	assert.Empty(t, result.Events)
	assert.Equal(t, 29, result.WeekInfo.WeekNumber)
}

func TestParseWeekPage_MissingTableNoPhrase(t *testing.T) {
	html := `<html><body><div>21.04.2025 - 27.04.2025</div><p>login page</p></body></html>`

	result := ParseWeekPage(html, nil)

	assert.Equal(t, ParseFailure, result.Status)
}

func TestParseWeekPage_MissingDateRange(t *testing.T) {
	result := ParseWeekPage(`<html><body><table class="time_8_16"></table></body></html>`, nil)

	assert.Equal(t, ParseFailure, result.Status)
}

func TestParseWeekPage_Empty(t *testing.T) {
	assert.Equal(t, ParseFailure, ParseWeekPage("", nil).Status)
	assert.Equal(t, ParseFailure, ParseWeekPage("   ", nil).Status)
}

func TestParseWeekPage_YearBoundary(t *testing.T) {
	html := `<html><body>
<div>30.12.2024 - 05.01.2025</div>
<table class="time_8_16">
<tr>
  <td class="lektionslinje_1">M&aacute;nadagur 30/12</td>
  <td colspan="24" class="lektionslinje_lesson0">
    <a href="#">MAT-A-TEAM-2425</a>
    <a href="#">JOH</a>
    <a href="#">st. 101</a>
    <span id="MyWindowLES9Main"></span>
  </td>
</tr>
</table>
</body></html>`

	result := ParseWeekPage(html, nil)

	require.Equal(t, ParseSuccess, result.Status)
	// 2024-12-30 belongs to ISO week 1 of 2025.
	assert.Equal(t, 2025, result.WeekInfo.Year)
	assert.Equal(t, 1, result.WeekInfo.WeekNumber)
	assert.Equal(t, "2025-W01", result.WeekInfo.WeekKey)
}

func TestParseSubjectCode(t *testing.T) {
	tests := []struct {
		raw      string
		title    string
		level    string
		yearCode string
	}{
		{"MAT-A-TEAM-2425", "MAT", "A", "2425"},
		{"Várroynd-MAT-A-TEAM-2425", "Várroynd-MAT", "A", "2425"},
		{"BV3-2425-22y", "BV", "3", "2425"},
		{"MATB-2425-22y", "MATB", "", "2425"},
		{"oddball", "oddball", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			title, level, yearCode, _ := parseSubjectCode(tt.raw)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.yearCode, yearCode)
		})
	}
}

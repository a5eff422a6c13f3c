// Package glasir implements the upstream Glasir timetable site client:
// a retrying HTML fetcher, the page parsers, and the session-scoped
// extractor that drives the site's form-POST endpoints.
package glasir

// ══════════════════════════════════════════════════════════════════════════════
// UPSTREAM ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// TimetablePath is the initial timetable page; its HTML carries the
	// lname session token and the student identity line.
	TimetablePath = "/132n/"

	teachersPath = "/i/teachers.asp"
	weekPath     = "/i/udvalg.asp"
	notePath     = "/i/note.asp"
)

// formFname is the constant fname field the site expects on every POST.
const formFname = "Henry"

// ══════════════════════════════════════════════════════════════════════════════
// HTML CONTRACT ANCHORS
// ══════════════════════════════════════════════════════════════════════════════

// dayNames maps the Faroese day headers to English names.
var dayNames = map[string]string{
	"Mánadagur":    "Monday",
	"Týsdagur":     "Tuesday",
	"Mikudagur":    "Wednesday",
	"Hósdagur":     "Thursday",
	"Fríggjadagur": "Friday",
	"Leygardagur":  "Saturday",
	"Sunnudagur":   "Sunday",
}

// cancelledClasses is the set of lesson-cell classes that mark a lesson as
// cancelled.
var cancelledClasses = map[string]bool{
	"lektionslinje_lesson1":         true,
	"lektionslinje_lesson2":         true,
	"lektionslinje_lesson3":         true,
	"lektionslinje_lesson4":         true,
	"lektionslinje_lesson5":         true,
	"lektionslinje_lesson7":         true,
	"lektionslinje_lesson10":        true,
	"lektionslinje_lessoncancelled": true,
}

// noEventPhrases appear on pages for weeks with no scheduled teaching;
// a missing grid plus one of these is an empty week, not a parse failure.
var noEventPhrases = []string{
	"ongi skeið",
	"frídagur",
	"eingin undirvísing",
}

// timeSlot is one column range of the weekly grid.
type timeSlot struct {
	minCol, maxCol int
	slot           string
	startTime      string
	endTime        string
}

var timeSlots = []timeSlot{
	{2, 25, "1", "08:10", "09:40"},
	{26, 50, "2", "10:05", "11:35"},
	{51, 71, "3", "12:10", "13:40"},
	{72, 90, "4", "13:55", "15:25"},
	{91, 111, "5", "15:30", "17:00"},
	{112, 131, "6", "17:15", "18:45"},
}

// allDayColspan is the colspan at or above which a cell covers the whole day.
const allDayColspan = 90

// defaultHeaders mimic a desktop browser; the site serves degraded HTML to
// unknown user agents.
var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

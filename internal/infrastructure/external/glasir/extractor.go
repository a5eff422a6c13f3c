package glasir

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXTRACTOR - session-scoped upstream operations
// ══════════════════════════════════════════════════════════════════════════════

// Extractor drives the site's form-POST endpoints for one authenticated
// session. It owns the lname token captured at bootstrap; every call stamps
// a fresh millisecond-epoch timer into its payload.
type Extractor struct {
	fetcher *Fetcher
	lname   string
	logger  *slog.Logger
	debug   bool

	// homeworkConcurrency caps the note fan-out per week
	homeworkConcurrency int

	// now is swapped out in tests
	now func() time.Time
}

// NewExtractor creates an extractor bound to a fetcher and session token.
func NewExtractor(fetcher *Fetcher, lname string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		fetcher:             fetcher,
		lname:               lname,
		logger:              logger,
		debug:               fetcher.config.Debug,
		homeworkConcurrency: 20,
		now:                 time.Now,
	}
}

// Lname returns the session token the extractor was bootstrapped with.
func (e *Extractor) Lname() string {
	return e.lname
}

// Close releases the extractor's fetcher.
func (e *Extractor) Close() {
	e.fetcher.Close()
}

func (e *Extractor) timer() string {
	return strconv.FormatInt(e.now().UnixMilli(), 10)
}

// Bootstrap opens the timetable landing page with the fetcher's cookies and
// captures the session token. Redirects are not followed; a non-200 means
// the cookies were rejected, a 200 without lname means the site changed.
func Bootstrap(ctx context.Context, fetcher *Fetcher, logger *slog.Logger) (*Extractor, string, error) {
	resp, err := fetcher.Get(ctx, TimetablePath, nil)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != 200 {
		return nil, "", shared.NewDomainError("glasir", "Bootstrap", shared.ErrAuthFailed,
			fmt.Sprintf("timetable page returned status %d", resp.StatusCode))
	}
	lname := ExtractLname(resp.Body)
	if lname == "" {
		return nil, "", shared.NewDomainError("glasir", "Bootstrap", shared.ErrUpstreamProtocol,
			"timetable page contained no lname session token")
	}
	return NewExtractor(fetcher, lname, logger), resp.Body, nil
}

// FetchTeacherMap fetches and parses the teacher directory. Failures yield
// an empty map; events then carry initials instead of full names.
func (e *Extractor) FetchTeacherMap(ctx context.Context) map[string]string {
	form := url.Values{
		"fname": {formFname},
		"lname": {e.lname},
		"timer": {e.timer()},
	}

	resp, err := e.fetcher.PostForm(ctx, teachersPath, form, nil)
	if err != nil {
		e.logger.Warn("teacher map fetch failed", "error", err)
		return map[string]string{}
	}
	if !resp.OK() {
		e.logger.Warn("teacher map fetch returned non-2xx", "status", resp.StatusCode)
		return map[string]string{}
	}

	teacherMap := ParseTeacherMap(resp.Body)
	if e.debug {
		e.logger.Debug("fetched teacher map", "entries", len(teacherMap))
	}
	return teacherMap
}

// FetchWeekHTML fetches the raw week grid for one offset. A 3xx response is
// surfaced as a session-loss protocol error rather than followed; the site
// redirects to its login page once cookies stop being honored.
func (e *Extractor) FetchWeekHTML(ctx context.Context, offset int, studentID string) (string, error) {
	form := url.Values{
		"fname": {formFname},
		"q":     {"stude"},
		"v":     {strconv.Itoa(offset)},
		"lname": {e.lname},
		"timex": {e.timer()},
	}
	if studentID != "" {
		form.Set("id", studentID)
	}

	resp, err := e.fetcher.PostForm(ctx, weekPath, form, nil)
	if err != nil {
		return "", err
	}
	if resp.Redirect() {
		return "", shared.NewDomainError("glasir", "FetchWeekHTML", shared.ErrUpstreamProtocol,
			fmt.Sprintf("week fetch for offset %d redirected with status %d, session likely lost", offset, resp.StatusCode))
	}
	return resp.Body, nil
}

// FetchHomework fetches note pages for the given lesson ids concurrently
// and returns {lesson_id -> homework text}. Per-lesson failures are logged
// and omitted, never fatal.
func (e *Extractor) FetchHomework(ctx context.Context, lessonIDs []string) map[string]string {
	results := make(map[string]string)
	if len(lessonIDs) == 0 {
		return results
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, e.homeworkConcurrency)
	)

	for _, lessonID := range lessonIDs {
		wg.Add(1)
		go func(lessonID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := e.fetchOneHomework(ctx, lessonID)
			if err != nil {
				e.logger.Warn("homework fetch failed", "lesson_id", lessonID, "error", err)
				return
			}
			if text == "" {
				return
			}
			mu.Lock()
			results[lessonID] = text
			mu.Unlock()
		}(lessonID)
	}
	wg.Wait()

	if e.debug {
		e.logger.Debug("fetched homework", "found", len(results), "requested", len(lessonIDs))
	}
	return results
}

func (e *Extractor) fetchOneHomework(ctx context.Context, lessonID string) (string, error) {
	form := url.Values{
		"fname":      {formFname},
		"q":          {lessonID},
		"MyFunktion": {"ReadNotesToLessonWithLessonRID"},
		"lname":      {e.lname},
		"timer":      {e.timer()},
	}

	resp, err := e.fetcher.PostForm(ctx, notePath, form, nil)
	if err != nil {
		return "", err
	}
	if resp.Redirect() {
		return "", shared.NewDomainError("glasir", "FetchHomework", shared.ErrUpstreamProtocol,
			fmt.Sprintf("note fetch redirected with status %d, session likely lost", resp.StatusCode))
	}
	if !resp.OK() {
		return "", &shared.UpstreamHTTPError{Op: "FetchHomework", URL: notePath, StatusCode: resp.StatusCode}
	}
	return ParseHomework(resp.Body)[lessonID], nil
}

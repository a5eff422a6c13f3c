// Package sync contains the write-side application services: initial sync,
// incremental sync, and session refresh, plus the per-week fetch/parse
// pipeline they share.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/shared"
	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
	"github.com/glasir-hub/glasir-sync-api/internal/infrastructure/external/glasir"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEK PIPELINE
// One offset in, one WeekResult out: fetch, parse, homework merge.
// ══════════════════════════════════════════════════════════════════════════════

// WeekOutcome tags a WeekResult variant.
type WeekOutcome int

const (
	// WeekSuccess means the week parsed and carries events.
	WeekSuccess WeekOutcome = iota

	// WeekSuccessNoData means the week parsed but holds no lessons
	// (holiday weeks, "ongi skeið" pages).
	WeekSuccessNoData

	// WeekFetchFailed means the upstream request for the week failed.
	WeekFetchFailed

	// WeekParseFailed means the HTML arrived but could not be parsed.
	WeekParseFailed
)

// WeekResult is the outcome of the pipeline for one offset.
type WeekResult struct {
	Offset     int
	Outcome    WeekOutcome
	Data       *timetable.TimetableData
	Warnings   []string
	Classifier string
	HTTPStatus int
	ErrMessage string
}

// Failed reports whether the result is one of the failure variants.
func (r WeekResult) Failed() bool {
	return r.Outcome == WeekFetchFailed || r.Outcome == WeekParseFailed
}

// Session is the authenticated upstream handle the pipeline runs against.
// glasir.Extractor satisfies it.
type Session interface {
	FetchTeacherMap(ctx context.Context) map[string]string
	FetchWeekHTML(ctx context.Context, offset int, studentID string) (string, error)
	FetchHomework(ctx context.Context, lessonIDs []string) map[string]string
	Close()
}

// ConnectFunc validates a cookie set against the upstream and returns an
// authenticated session plus the landing page HTML.
type ConnectFunc func(ctx context.Context, cookies []timetable.Cookie) (Session, string, error)

// fetchWeek runs the full pipeline for one offset.
func (s *Service) fetchWeek(ctx context.Context, sess Session, offset int, studentID string, teacherMap map[string]string) WeekResult {
	pageHTML, err := sess.FetchWeekHTML(ctx, offset, studentID)
	if err != nil {
		return fetchFailedResult(offset, err)
	}
	return s.pipelineFromHTML(ctx, sess, offset, studentID, pageHTML, teacherMap)
}

// pipelineFromHTML is the parse half of the pipeline, split out so the
// orchestrator can reuse the offset-0 HTML it fetched for navigation.
func (s *Service) pipelineFromHTML(ctx context.Context, sess Session, offset int, studentID, pageHTML string, teacherMap map[string]string) WeekResult {
	parsed := glasir.ParseWeekPage(pageHTML, teacherMap)

	switch parsed.Status {
	case glasir.ParseStructureError:
		return WeekResult{
			Offset:     offset,
			Outcome:    WeekParseFailed,
			Warnings:   parsed.Warnings,
			Classifier: "structure_error",
			ErrMessage: parsed.ErrMessage,
		}
	case glasir.ParseFailure:
		return WeekResult{
			Offset:     offset,
			Outcome:    WeekParseFailed,
			Warnings:   parsed.Warnings,
			Classifier: "parse_failed",
			ErrMessage: parsed.ErrMessage,
		}
	}

	warnings := parsed.Warnings
	events := parsed.Events

	// Homework fan-out covers only lessons that both flag a note and
	// carry a trackable id. Failures degrade to warnings.
	var noteIDs []string
	for _, ev := range events {
		if ev.HasHomeworkNote && ev.LessonID != "" {
			noteIDs = append(noteIDs, ev.LessonID)
		}
	}
	if len(noteIDs) > 0 {
		homework := sess.FetchHomework(ctx, noteIDs)
		for i := range events {
			if text, ok := homework[events[i].LessonID]; ok {
				events[i].Description = text
			}
		}
		if len(homework) < len(noteIDs) {
			warnings = append(warnings,
				fmt.Sprintf("homework found for %d of %d flagged lessons", len(homework), len(noteIDs)))
		}
	}

	weekInfo := parsed.WeekInfo
	weekInfo.Offset = offset

	data := &timetable.TimetableData{
		StudentInfo:   parsed.StudentInfo,
		WeekInfo:      weekInfo,
		Events:        events,
		FormatVersion: timetable.FormatVersion,
	}
	if err := data.Validate(); err != nil {
		warnings = append(warnings, fmt.Sprintf("validation: %v", err))
	}

	outcome := WeekSuccess
	if len(events) == 0 {
		outcome = WeekSuccessNoData
	}
	return WeekResult{Offset: offset, Outcome: outcome, Data: data, Warnings: warnings}
}

func fetchFailedResult(offset int, err error) WeekResult {
	result := WeekResult{
		Offset:     offset,
		Outcome:    WeekFetchFailed,
		Classifier: classifyFetchError(err),
		ErrMessage: err.Error(),
	}

	var httpErr *shared.UpstreamHTTPError
	if errors.As(err, &httpErr) {
		result.HTTPStatus = httpErr.StatusCode
	}
	return result
}

func classifyFetchError(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, shared.ErrUpstreamProtocol):
		return "session_lost"
	case errors.Is(err, shared.ErrUpstreamTransport):
		return "upstream_transport"
	default:
		return "fetch_failed"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MULTI-WEEK ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Symbolic selector values accepted by sync requests.
const (
	SelectorAll            = "all"
	SelectorCurrentForward = "current_forward"
)

// Selector names the weeks a sync should cover: either an explicit offset
// list, or one of the symbolic values resolved against upstream navigation.
type Selector struct {
	Offsets []int
	Symbol  string
}

// Validate rejects selectors that name neither form.
func (sel Selector) Validate() error {
	if sel.Symbol == "" {
		return nil
	}
	if sel.Symbol != SelectorAll && sel.Symbol != SelectorCurrentForward {
		return shared.NewDomainError("sync", "Selector", shared.ErrInvalidInput,
			fmt.Sprintf("unknown selector %q", sel.Symbol))
	}
	return nil
}

// collectWeeks resolves the selector and fans the pipeline out across the
// resolved offsets. Per-offset failures are captured in the results, never
// returned as an error; only an unresolvable symbolic selector fails.
func (s *Service) collectWeeks(ctx context.Context, sess Session, studentID string, teacherMap map[string]string, sel Selector) ([]WeekResult, error) {
	var (
		offsets []int
		seed    *WeekResult
	)

	if sel.Symbol != "" {
		// Symbolic selectors need the offset-0 page for its navigation
		// anchors; the page doubles as the offset-0 pipeline input.
		pageHTML, err := sess.FetchWeekHTML(ctx, 0, studentID)
		if err != nil {
			return nil, fmt.Errorf("resolve selector %q: %w", sel.Symbol, err)
		}

		available := glasir.ParseAvailableOffsets(pageHTML)
		if sel.Symbol == SelectorCurrentForward {
			forward := available[:0]
			for _, off := range available {
				if off >= 0 {
					forward = append(forward, off)
				}
			}
			available = forward
		}
		// An empty resolution yields an empty result set, never a
		// fabricated offset.
		if len(available) == 0 {
			s.logger.Warn("selector resolved to no offsets",
				slog.String("selector", sel.Symbol))
		}
		offsets = available

		if containsOffset(offsets, 0) {
			zero := s.pipelineFromHTML(ctx, sess, 0, studentID, pageHTML, teacherMap)
			seed = &zero
		}
	} else {
		offsets = dedupeOffsets(sel.Offsets)
	}

	results := make([]WeekResult, len(offsets))
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.weekConcurrency)

	for i, offset := range offsets {
		if seed != nil && offset == 0 {
			results[i] = *seed
			continue
		}

		wg.Add(1)
		go func(i, offset int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = s.fetchWeek(ctx, sess, offset, studentID, teacherMap)
		}(i, offset)
	}
	wg.Wait()

	sortWeekResults(results)
	s.logWeekSummary(results)
	return results, nil
}

func containsOffset(offsets []int, target int) bool {
	for _, off := range offsets {
		if off == target {
			return true
		}
	}
	return false
}

// dedupeOffsets drops repeated offsets, keeping first-seen order.
func dedupeOffsets(offsets []int) []int {
	seen := make(map[int]bool, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, off := range offsets {
		if seen[off] {
			continue
		}
		seen[off] = true
		out = append(out, off)
	}
	return out
}

// sortWeekResults orders successes by week number ascending; results
// without a week number (failures included) sort last, by offset.
func sortWeekResults(results []WeekResult) {
	sort.SliceStable(results, func(i, j int) bool {
		wi, wj := weekNumberOf(results[i]), weekNumberOf(results[j])
		if (wi == 0) != (wj == 0) {
			return wi != 0
		}
		if wi != wj {
			return wi < wj
		}
		return results[i].Offset < results[j].Offset
	})
}

func weekNumberOf(r WeekResult) int {
	if r.Data == nil {
		return 0
	}
	return r.Data.WeekInfo.WeekNumber
}

// logWeekSummary emits grouped failure lines and a totals line.
func (s *Service) logWeekSummary(results []WeekResult) {
	type failureGroup struct {
		offsets []int
	}

	succeeded := 0
	groups := make(map[string]*failureGroup)
	var order []string

	for _, r := range results {
		if !r.Failed() {
			succeeded++
			continue
		}
		key := r.Classifier + ": " + truncateMessage(r.ErrMessage, 120)
		g, ok := groups[key]
		if !ok {
			g = &failureGroup{}
			groups[key] = g
			order = append(order, key)
		}
		g.offsets = append(g.offsets, r.Offset)
	}

	for _, key := range order {
		s.logger.Warn("week fetch failures",
			slog.String("failure", key),
			slog.Any("offsets", groups[key].offsets),
		)
	}
	s.logger.Info("week fan-out complete",
		slog.Int("requested", len(results)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", len(results)-succeeded),
	)
}

func truncateMessage(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	return msg[:max] + "..."
}

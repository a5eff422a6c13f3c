package sync

import (
	"context"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/shared"
	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeStore struct {
	mu       stdsync.Mutex
	sessions map[string]*timetable.UserSession
	weeks    map[string]*timetable.WeeklyState
	teachers map[string]timetable.TeacherCacheEntry
	nextID   int64

	inTx bool
	// teacherWrites records, per ReplaceTeacherMap call, whether it ran
	// inside WithTx.
	teacherWrites []bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*timetable.UserSession),
		weeks:    make(map[string]*timetable.WeeklyState),
		teachers: make(map[string]timetable.TeacherCacheEntry),
	}
}

func weekStateKey(studentID, weekKey string) string { return studentID + "|" + weekKey }

func (f *fakeStore) GetSessionByStudentID(_ context.Context, studentID string) (*timetable.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[studentID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeStore) GetSessionByAccessCode(_ context.Context, accessCode string) (*timetable.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.AccessCode == accessCode {
			copied := *s
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeStore) InsertSession(_ context.Context, session *timetable.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[session.StudentID]; ok {
		return shared.ErrAlreadyExists
	}
	copied := *session
	f.sessions[session.StudentID] = &copied
	return nil
}

func (f *fakeStore) RotateSession(_ context.Context, studentID, accessCode string, cookiesBlob []byte, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[studentID]
	if !ok {
		return shared.ErrNotFound
	}
	s.AccessCode = accessCode
	s.AccessCodeGeneratedAt = now
	s.CookiesBlob = cookiesBlob
	s.CookiesUpdatedAt = now
	s.LastAccessedAt = now
	return nil
}

func (f *fakeStore) TouchSession(_ context.Context, studentID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[studentID]
	if !ok {
		return shared.ErrNotFound
	}
	s.LastAccessedAt = now
	return nil
}

func (f *fakeStore) GetWeeklyState(_ context.Context, studentID, weekKey string) (*timetable.WeeklyState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.weeks[weekStateKey(studentID, weekKey)]; ok {
		copied := *w
		return &copied, nil
	}
	return nil, shared.ErrNotFound
}

func (f *fakeStore) UpsertWeeklyState(_ context.Context, studentID, weekKey string, blob []byte, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := weekStateKey(studentID, weekKey)
	if w, ok := f.weeks[key]; ok {
		w.TimetableBlob = blob
		w.LastUpdatedAt = now
		return nil
	}
	f.nextID++
	f.weeks[key] = &timetable.WeeklyState{
		ID:            f.nextID,
		StudentID:     studentID,
		WeekKey:       weekKey,
		TimetableBlob: blob,
		LastUpdatedAt: now,
	}
	return nil
}

func (f *fakeStore) TeacherMap(_ context.Context, now time.Time) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := make(map[string]string)
	for _, e := range f.teachers {
		if e.Valid(now) {
			m[e.Initials] = e.FullName
		}
	}
	return m, nil
}

func (f *fakeStore) ReplaceTeacherMap(_ context.Context, entries []timetable.TeacherCacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teacherWrites = append(f.teacherWrites, f.inTx)
	for _, e := range entries {
		f.teachers[e.Initials] = e
	}
	return nil
}

func (f *fakeStore) WithTx(_ context.Context, fn func(timetable.Store) error) error {
	f.mu.Lock()
	f.inTx = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inTx = false
		f.mu.Unlock()
	}()
	return fn(f)
}

type fakeSession struct {
	mu         stdsync.Mutex
	weekHTML   map[int]string
	weekErr    map[int]error
	teacherMap map[string]string
	homework   map[string]string
	weekCalls  []int
	closed     bool
}

func (f *fakeSession) FetchTeacherMap(context.Context) map[string]string {
	if f.teacherMap == nil {
		return map[string]string{}
	}
	return f.teacherMap
}

func (f *fakeSession) FetchWeekHTML(_ context.Context, offset int, _ string) (string, error) {
	f.mu.Lock()
	f.weekCalls = append(f.weekCalls, offset)
	f.mu.Unlock()

	if err, ok := f.weekErr[offset]; ok {
		return "", err
	}
	if html, ok := f.weekHTML[offset]; ok {
		return html, nil
	}
	return "<html><body>frídagur</body></html>", nil
}

func (f *fakeSession) FetchHomework(_ context.Context, lessonIDs []string) map[string]string {
	out := make(map[string]string)
	for _, id := range lessonIDs {
		if text, ok := f.homework[id]; ok {
			out[id] = text
		}
	}
	return out
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSession) callCount(offset int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.weekCalls {
		if o == offset {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

func lessonCell(lessonID, code, teacher, room string) string {
	return `<td colspan="24" class="lektionslinje_lesson0">
<a href="#">` + code + `</a>
<a href="#">` + teacher + `</a>
<a href="#">` + room + `</a>
<span id="MyWindow` + lessonID + `Main"></span>
</td>`
}

func weekPage(dateRange, dayHeader string, cells ...string) string {
	return `<html><body>
<table><tr><td>Næmingatímatalva : Test Student , 22y</td></tr></table>
<div>` + dateRange + `</div>
<table class="time_8_16"><tr>
<td class="lektionslinje_1">` + dayHeader + `</td>
` + strings.Join(cells, "\n") + `
</tr></table>
</body></html>`
}

func week17Page(cells ...string) string {
	return weekPage("21.04.2025 - 27.04.2025", "Mánadagur 21/04", cells...)
}

func week18Page(cells ...string) string {
	return weekPage("28.04.2025 - 04.05.2025", "Mánadagur 28/04", cells...)
}

var testCookies = []timetable.Cookie{{Name: "ASPSESSIONID", Value: "abc"}}

func newTestService(store timetable.Store, sess *fakeSession, basePage string) *Service {
	connect := func(context.Context, []timetable.Cookie) (Session, string, error) {
		return sess, basePage, nil
	}
	svc := NewService(store, connect, DefaultServiceConfig())
	svc.now = func() time.Time { return time.Date(2025, 4, 22, 12, 0, 0, 0, time.UTC) }
	return svc
}

// ─────────────────────────────────────────────────────────────────────────────
// Initial sync
// ─────────────────────────────────────────────────────────────────────────────

func TestInitialSync(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML:   map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
		teacherMap: map[string]string{"JOH": "Jón"},
	}
	svc := newTestService(store, sess, `<a onclick="v=0">Vika 17</a>`)

	result, err := svc.InitialSync(context.Background(), "S1", testCookies)

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessCode)
	require.Len(t, result.InitialData, 1)

	data := result.InitialData[0]
	assert.Equal(t, "2025-W17", data.WeekInfo.WeekKey)
	require.Len(t, data.Events, 1)
	assert.Equal(t, "MAT", data.Events[0].Title)
	assert.Equal(t, "Jón", data.Events[0].TeacherFull)

	stored, err := store.GetSessionByStudentID(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, result.AccessCode, stored.AccessCode)

	_, err = store.GetWeeklyState(context.Background(), "S1", "2025-W17")
	assert.NoError(t, err)

	// Teacher map cached on first use.
	cached, err := store.TeacherMap(context.Background(), svc.now())
	require.NoError(t, err)
	assert.Equal(t, "Jón", cached["JOH"])
}

func TestInitialSync_AlreadyExists(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{weekHTML: map[int]string{0: week17Page()}}
	svc := newTestService(store, sess, `<a onclick="v=0">Vika 17</a>`)

	_, err := svc.InitialSync(context.Background(), "S1", testCookies)
	require.NoError(t, err)

	_, err = svc.InitialSync(context.Background(), "S1", testCookies)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestInitialSync_Validation(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeSession{}, "")

	_, err := svc.InitialSync(context.Background(), "", testCookies)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.InitialSync(context.Background(), "S1", nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestInitialSync_AuthFailed(t *testing.T) {
	connect := func(context.Context, []timetable.Cookie) (Session, string, error) {
		return nil, "", shared.NewDomainError("glasir", "Bootstrap", shared.ErrAuthFailed, "status 302")
	}
	svc := NewService(newFakeStore(), connect, DefaultServiceConfig())

	_, err := svc.InitialSync(context.Background(), "S1", testCookies)
	assert.ErrorIs(t, err, shared.ErrAuthFailed)
}

func TestInitialSync_NoNavigationOffsets(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	// Landing page carries no week navigation anchors at all.
	svc := newTestService(store, sess, "<html><body></body></html>")

	result, err := svc.InitialSync(context.Background(), "S1", testCookies)

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessCode, "session is still registered")
	assert.Empty(t, result.InitialData)
	assert.Empty(t, store.weeks, "no baselines without navigable offsets")
	assert.Equal(t, 0, sess.callCount(0), "no offsets means no week fetches")
}

// ─────────────────────────────────────────────────────────────────────────────
// Sync
// ─────────────────────────────────────────────────────────────────────────────

func initialSync(t *testing.T, store *fakeStore, sess *fakeSession) (string, *Service) {
	t.Helper()
	svc := newTestService(store, sess, `<a onclick="v=0">Vika 17</a>`)
	result, err := svc.InitialSync(context.Background(), "S1", testCookies)
	require.NoError(t, err)
	return result.AccessCode, svc
}

func TestSync_NoOpResync(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	accessCode, svc := initialSync(t, store, sess)

	result, err := svc.Sync(context.Background(), accessCode, Selector{Offsets: []int{0}})

	require.NoError(t, err)
	entry, ok := result.Diffs["2025-W17"]
	require.True(t, ok)
	assert.Nil(t, entry.Error)
	assert.Empty(t, entry.Added)
	assert.Empty(t, entry.Updated)
	assert.Empty(t, entry.Removed)
	assert.Equal(t, svc.now(), result.SyncedAt)

	stored, err := store.GetSessionByStudentID(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, svc.now(), stored.LastAccessedAt)
}

func TestSync_AddUpdateRemove(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	accessCode, svc := initialSync(t, store, sess)

	// LES1 vanished: same content moved to a new id LES3, plus a new LES2.
	sess.weekHTML[0] = week17Page(
		lessonCell("LES3", "MAT-A-TEAM-2425", "JOH", "st. 102"),
		lessonCell("LES2", "PHY-B-TEAM-2425", "PHY", "st. 201"),
	)

	result, err := svc.Sync(context.Background(), accessCode, Selector{Offsets: []int{0}})

	require.NoError(t, err)
	entry := result.Diffs["2025-W17"]
	addedIDs := make([]string, 0, len(entry.Added))
	for _, ev := range entry.Added {
		addedIDs = append(addedIDs, ev.LessonID)
	}
	assert.ElementsMatch(t, []string{"LES2", "LES3"}, addedIDs)
	assert.Equal(t, []string{"LES1"}, entry.Removed)
	assert.Empty(t, entry.Updated)
}

func TestSync_UpdateInPlace(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	accessCode, svc := initialSync(t, store, sess)

	sess.weekHTML[0] = week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 102"))

	result, err := svc.Sync(context.Background(), accessCode, Selector{Offsets: []int{0}})

	require.NoError(t, err)
	entry := result.Diffs["2025-W17"]
	require.Len(t, entry.Updated, 1)
	assert.Equal(t, "102", entry.Updated[0].Location)
	assert.Empty(t, entry.Added)
	assert.Empty(t, entry.Removed)
}

func TestSync_MissingAccessCode(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeSession{}, "")

	_, err := svc.Sync(context.Background(), "", Selector{Offsets: []int{0}})
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestSync_UnknownAccessCode(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeSession{}, "")

	_, err := svc.Sync(context.Background(), "nope", Selector{Offsets: []int{0}})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestSync_CookiesExpired(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	accessCode, svc := initialSync(t, store, sess)

	store.sessions["S1"].CookiesUpdatedAt = svc.now().Add(-25 * time.Hour)

	_, err := svc.Sync(context.Background(), accessCode, Selector{Offsets: []int{0}})
	assert.ErrorIs(t, err, shared.ErrCookiesExpired)
}

func TestSync_CookieAgeExactlyAtBoundary(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	accessCode, svc := initialSync(t, store, sess)

	store.sessions["S1"].CookiesUpdatedAt = svc.now().Add(-24 * time.Hour)

	_, err := svc.Sync(context.Background(), accessCode, Selector{Offsets: []int{0}})
	assert.NoError(t, err, "exactly 24h old cookies are still fresh")
}

func TestSync_FailedOffsetBecomesUnknownEntry(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
		weekErr: map[int]error{
			1: &shared.UpstreamHTTPError{Op: "FetchWeekHTML", URL: "/i/udvalg.asp", StatusCode: 503},
		},
	}
	accessCode, svc := initialSync(t, store, sess)

	result, err := svc.Sync(context.Background(), accessCode, Selector{Offsets: []int{0, 1}})

	require.NoError(t, err)
	entry, ok := result.Diffs["UNKNOWN-1"]
	require.True(t, ok)
	require.NotNil(t, entry.Error)
	assert.Equal(t, "upstream_transport", entry.Error.Classifier)
	assert.Equal(t, 503, entry.Error.HTTPStatus)

	_, ok = result.Diffs["2025-W17"]
	assert.True(t, ok, "healthy offsets still sync")
}

func TestSync_DuplicateOffsetsFetchOnce(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	accessCode, svc := initialSync(t, store, sess)
	before := sess.callCount(0)

	_, err := svc.Sync(context.Background(), accessCode, Selector{Offsets: []int{0, 0, 0}})

	require.NoError(t, err)
	assert.Equal(t, before+1, sess.callCount(0))
}

func TestSync_SymbolicSelectorCurrentForward(t *testing.T) {
	store := newFakeStore()
	week17 := week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))
	// Offset-0 page carries the navigation anchors the selector resolves.
	week17 = strings.Replace(week17, "</body>",
		`<a onclick="v=-1">Vika 16</a><a onclick="v=0">Vika 17</a><a onclick="v=1">Vika 18</a></body>`, 1)

	sess := &fakeSession{
		weekHTML: map[int]string{
			0: week17,
			1: week18Page(lessonCell("LES9", "ENG-C-TEAM-2425", "ENG", "st. 301")),
		},
	}
	accessCode, svc := initialSync(t, store, sess)

	result, err := svc.Sync(context.Background(), accessCode, Selector{Symbol: SelectorCurrentForward})

	require.NoError(t, err)
	assert.Contains(t, result.Diffs, "2025-W17")
	assert.Contains(t, result.Diffs, "2025-W18")
	assert.Equal(t, 0, sess.callCount(-1), "past weeks are excluded by current_forward")
}

func TestSync_SelectorAllWithoutNavigation(t *testing.T) {
	store := newFakeStore()
	// The offset-0 page the selector resolves against has no navigation
	// anchors, so "all" resolves to nothing.
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	accessCode, svc := initialSync(t, store, sess)
	weeksBefore := len(store.weeks)

	result, err := svc.Sync(context.Background(), accessCode, Selector{Symbol: SelectorAll})

	require.NoError(t, err)
	assert.Empty(t, result.Diffs)
	assert.Equal(t, svc.now(), result.SyncedAt)
	assert.Len(t, store.weeks, weeksBefore, "no weekly state written")

	stored, err := store.GetSessionByStudentID(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, svc.now(), stored.LastAccessedAt, "access time is still touched")
}

func TestSync_CurrentForwardWithOnlyPastWeeks(t *testing.T) {
	store := newFakeStore()
	week17 := week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))
	week17 = strings.Replace(week17, "</body>",
		`<a onclick="v=-2">Vika 15</a><a onclick="v=-1">Vika 16</a></body>`, 1)

	sess := &fakeSession{weekHTML: map[int]string{0: week17}}
	accessCode, svc := initialSync(t, store, sess)

	result, err := svc.Sync(context.Background(), accessCode, Selector{Symbol: SelectorCurrentForward})

	require.NoError(t, err)
	assert.Empty(t, result.Diffs, "all navigable weeks lie in the past")
	assert.Equal(t, 0, sess.callCount(-1))
	assert.Equal(t, 0, sess.callCount(-2))
}

func TestSync_InvalidSelector(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeSession{}, "")

	_, err := svc.Sync(context.Background(), "code", Selector{Symbol: "sideways"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

// ─────────────────────────────────────────────────────────────────────────────
// Session refresh
// ─────────────────────────────────────────────────────────────────────────────

func TestSessionRefresh_RotatesAccessCode(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	oldCode, svc := initialSync(t, store, sess)

	newCode, err := svc.SessionRefresh(context.Background(), "S1", testCookies)

	require.NoError(t, err)
	assert.NotEqual(t, oldCode, newCode)

	_, err = svc.Sync(context.Background(), oldCode, Selector{Offsets: []int{0}})
	assert.ErrorIs(t, err, shared.ErrForbidden, "old access code no longer accepted")

	_, err = svc.Sync(context.Background(), newCode, Selector{Offsets: []int{0}})
	assert.NoError(t, err, "new access code works")
}

func TestSessionRefresh_NoSession(t *testing.T) {
	sess := &fakeSession{weekHTML: map[int]string{}}
	svc := newTestService(newFakeStore(), sess, "")

	_, err := svc.SessionRefresh(context.Background(), "ghost", testCookies)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSessionRefresh_AuthFailed(t *testing.T) {
	connect := func(context.Context, []timetable.Cookie) (Session, string, error) {
		return nil, "", shared.NewDomainError("glasir", "Bootstrap", shared.ErrAuthFailed, "status 302")
	}
	svc := NewService(newFakeStore(), connect, DefaultServiceConfig())

	_, err := svc.SessionRefresh(context.Background(), "S1", testCookies)
	assert.ErrorIs(t, err, shared.ErrAuthFailed)
}

// ─────────────────────────────────────────────────────────────────────────────
// Teacher cache
// ─────────────────────────────────────────────────────────────────────────────

func TestTeacherCacheRefreshRunsInTransaction(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML:   map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
		teacherMap: map[string]string{"JOH": "Jón"},
	}
	svc := newTestService(store, sess, `<a onclick="v=0">Vika 17</a>`)

	_, err := svc.InitialSync(context.Background(), "S1", testCookies)

	require.NoError(t, err)
	require.NotEmpty(t, store.teacherWrites)
	for _, inTx := range store.teacherWrites {
		assert.True(t, inTx, "directory replacement must be atomic")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline details
// ─────────────────────────────────────────────────────────────────────────────

func TestPipeline_HomeworkMerge(t *testing.T) {
	store := newFakeStore()
	cell := strings.Replace(
		lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"),
		"</td>", `<input type="image" src="/i/note.gif"></td>`, 1)
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(cell)},
		homework: map[string]string{"LES1": "Read chapter **4**"},
	}
	svc := newTestService(store, sess, `<a onclick="v=0">Vika 17</a>`)

	result, err := svc.InitialSync(context.Background(), "S1", testCookies)

	require.NoError(t, err)
	require.Len(t, result.InitialData, 1)
	require.Len(t, result.InitialData[0].Events, 1)
	ev := result.InitialData[0].Events[0]
	assert.True(t, ev.HasHomeworkNote)
	assert.Equal(t, "Read chapter **4**", ev.Description)
}

func TestPipeline_NoEventsWeek(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: `<html><body><p>Ongi skeið hesa vikuna</p>
<td>Næmingatímatalva : Test Student , 22y</td>
<div>14.07.2025 - 20.07.2025</div></body></html>`},
	}
	svc := newTestService(store, sess, `<a onclick="v=0">Vika 29</a>`)

	result, err := svc.InitialSync(context.Background(), "S1", testCookies)

	require.NoError(t, err)
	require.Len(t, result.InitialData, 1)
	assert.Empty(t, result.InitialData[0].Events)
	assert.Equal(t, "2025-W29", result.InitialData[0].WeekInfo.WeekKey)
}

func TestFetchWeeks_LegacyView(t *testing.T) {
	store := newFakeStore()
	sess := &fakeSession{
		weekHTML: map[int]string{0: week17Page(lessonCell("LES1", "MAT-A-TEAM-2425", "JOH", "st. 101"))},
	}
	svc := newTestService(store, sess, "")

	data, err := svc.FetchWeeks(context.Background(), testCookies, "S1", Selector{Offsets: []int{0}})

	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, "2025-W17", data[0].WeekInfo.WeekKey)

	// Read-only: nothing persisted.
	assert.Empty(t, store.weeks)
	assert.Empty(t, store.sessions)
}

func TestDedupeOffsets(t *testing.T) {
	assert.Equal(t, []int{0, 1, -1}, dedupeOffsets([]int{0, 1, 0, -1, 1}))
	assert.Empty(t, dedupeOffsets(nil))
}

func TestSortWeekResults(t *testing.T) {
	w17 := &timetable.TimetableData{WeekInfo: timetable.WeekInfo{WeekNumber: 17}}
	w18 := &timetable.TimetableData{WeekInfo: timetable.WeekInfo{WeekNumber: 18}}

	results := []WeekResult{
		{Offset: 3, Outcome: WeekFetchFailed},
		{Offset: 1, Outcome: WeekSuccess, Data: w18},
		{Offset: 0, Outcome: WeekSuccess, Data: w17},
	}
	sortWeekResults(results)

	assert.Equal(t, 17, results[0].Data.WeekInfo.WeekNumber)
	assert.Equal(t, 18, results[1].Data.WeekInfo.WeekNumber)
	assert.True(t, results[2].Failed(), "results without a week number sort last")
}

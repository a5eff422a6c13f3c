package sync

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/shared"
	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
	"github.com/glasir-hub/glasir-sync-api/internal/infrastructure/external/glasir"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC SERVICE
// initial_sync / sync / session_refresh, plus the legacy read-only views.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// CookieMaxAge is how long stored upstream cookies stay usable before
	// sync rejects with COOKIES_EXPIRED. Exactly at the boundary is fresh.
	CookieMaxAge = 24 * time.Hour

	// TeacherCacheTTL is the lifetime of teacher_cache rows.
	TeacherCacheTTL = 24 * time.Hour

	// accessCodeBytes yields 256 bits of entropy per access code.
	accessCodeBytes = 32
)

// ServiceConfig configures the sync service.
type ServiceConfig struct {
	// WeekConcurrency caps the week fan-out per request.
	WeekConcurrency int

	// CookieMaxAge overrides the default freshness window (tests only).
	CookieMaxAge time.Duration

	// Logger for warnings and fan-out summaries.
	Logger *slog.Logger
}

// DefaultServiceConfig returns production settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		WeekConcurrency: 5,
		CookieMaxAge:    CookieMaxAge,
	}
}

// Service implements the sync engine over a store and an upstream connector.
type Service struct {
	store           timetable.Store
	connect         ConnectFunc
	logger          *slog.Logger
	cookieMaxAge    time.Duration
	weekConcurrency int

	// injectable in tests
	now           func() time.Time
	newAccessCode func() (string, error)
}

// NewService creates the sync service.
func NewService(store timetable.Store, connect ConnectFunc, config ServiceConfig) *Service {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WeekConcurrency <= 0 {
		config.WeekConcurrency = DefaultServiceConfig().WeekConcurrency
	}
	if config.CookieMaxAge <= 0 {
		config.CookieMaxAge = CookieMaxAge
	}

	return &Service{
		store:           store,
		connect:         connect,
		logger:          config.Logger,
		cookieMaxAge:    config.CookieMaxAge,
		weekConcurrency: config.WeekConcurrency,
		now:             func() time.Time { return time.Now().UTC() },
		newAccessCode:   generateAccessCode,
	}
}

// generateAccessCode mints a URL-safe bearer token with 256 bits of entropy.
func generateAccessCode() (string, error) {
	buf := make([]byte, accessCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Initial sync
// ─────────────────────────────────────────────────────────────────────────────

// InitialSyncResult is the outcome of a successful initial sync.
type InitialSyncResult struct {
	AccessCode  string
	InitialData []timetable.TimetableData
}

// InitialSync registers a student: validates the cookies, scrapes every
// navigable week, and stores the session plus per-week baselines in one
// transaction.
func (s *Service) InitialSync(ctx context.Context, studentID string, cookies []timetable.Cookie) (*InitialSyncResult, error) {
	if studentID == "" {
		return nil, shared.NewDomainError("sync", "InitialSync", shared.ErrInvalidInput, "student_id is required")
	}
	if len(cookies) == 0 {
		return nil, shared.NewDomainError("sync", "InitialSync", shared.ErrInvalidInput, "cookies are required")
	}

	if _, err := s.store.GetSessionByStudentID(ctx, studentID); err == nil {
		return nil, shared.NewDomainError("sync", "InitialSync", shared.ErrAlreadyExists,
			fmt.Sprintf("session for student %s already exists", studentID))
	} else if !shared.IsNotFound(err) {
		return nil, err
	}

	sess, pageHTML, err := s.connect(ctx, cookies)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	teacherMap := s.teacherMap(ctx, sess)

	offsets := glasir.ParseAvailableOffsets(pageHTML)
	if len(offsets) == 0 {
		s.logger.Warn("no navigable week offsets on landing page, registering session without baselines",
			slog.String("student_id", studentID))
	}

	results, err := s.collectWeeks(ctx, sess, studentID, teacherMap, Selector{Offsets: offsets})
	if err != nil {
		return nil, err
	}

	accessCode, err := s.newAccessCode()
	if err != nil {
		return nil, fmt.Errorf("generate access code: %w", err)
	}

	now := s.now()
	cookiesBlob, err := json.Marshal(cookies)
	if err != nil {
		return nil, fmt.Errorf("marshal cookies: %w", err)
	}

	var initialData []timetable.TimetableData
	err = s.store.WithTx(ctx, func(tx timetable.Store) error {
		session := &timetable.UserSession{
			StudentID:             studentID,
			AccessCode:            accessCode,
			AccessCodeGeneratedAt: now,
			CookiesBlob:           cookiesBlob,
			CookiesUpdatedAt:      now,
			CreatedAt:             now,
			LastAccessedAt:        now,
		}
		if err := tx.InsertSession(ctx, session); err != nil {
			return err
		}

		seen := make(map[string]bool)
		for _, r := range results {
			if r.Failed() {
				continue
			}
			weekKey := r.Data.WeekInfo.WeekKey
			if seen[weekKey] {
				s.logger.Warn("duplicate week key across offsets, keeping first",
					slog.String("week_key", weekKey), slog.Int("offset", r.Offset))
				continue
			}
			seen[weekKey] = true

			blob, err := json.Marshal(r.Data)
			if err != nil {
				return fmt.Errorf("marshal week %s: %w", weekKey, err)
			}
			if err := tx.UpsertWeeklyState(ctx, studentID, weekKey, blob, now); err != nil {
				return err
			}
			initialData = append(initialData, *r.Data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &InitialSyncResult{AccessCode: accessCode, InitialData: initialData}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sync
// ─────────────────────────────────────────────────────────────────────────────

// WeekError describes a failed offset inside a sync response.
type WeekError struct {
	Classifier string `json:"classifier"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Message    string `json:"message"`
}

// WeekDiffEntry is one entry of the diff map: either a diff or an error.
type WeekDiffEntry struct {
	Added   []timetable.Event `json:"added,omitempty"`
	Updated []timetable.Event `json:"updated,omitempty"`
	Removed []string          `json:"removed,omitempty"`
	Error   *WeekError        `json:"error,omitempty"`
}

// SyncResult is the outcome of one sync call.
type SyncResult struct {
	Diffs    map[string]WeekDiffEntry
	SyncedAt time.Time
}

// Sync fetches the selected weeks, diffs them against the stored baselines,
// and upserts the new snapshots. Failed offsets appear in the diff map
// under a synthetic "UNKNOWN-{offset}" key.
func (s *Service) Sync(ctx context.Context, accessCode string, sel Selector) (*SyncResult, error) {
	if accessCode == "" {
		return nil, shared.NewDomainError("sync", "Sync", shared.ErrUnauthenticated, "missing access code")
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	session, err := s.store.GetSessionByAccessCode(ctx, accessCode)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.NewDomainError("sync", "Sync", shared.ErrForbidden, "unknown access code")
		}
		return nil, err
	}

	now := s.now()
	if !session.CookiesFresh(now, s.cookieMaxAge) {
		return nil, shared.NewDomainError("sync", "Sync", shared.ErrCookiesExpired, "Cookies expired")
	}

	var cookies []timetable.Cookie
	if err := json.Unmarshal(session.CookiesBlob, &cookies); err != nil {
		return nil, fmt.Errorf("unmarshal stored cookies: %w", err)
	}

	sess, _, err := s.connect(ctx, cookies)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	teacherMap := s.teacherMap(ctx, sess)

	results, err := s.collectWeeks(ctx, sess, session.StudentID, teacherMap, sel)
	if err != nil {
		return nil, err
	}

	diffs := make(map[string]WeekDiffEntry, len(results))
	type weekWrite struct {
		weekKey string
		blob    []byte
	}
	var writes []weekWrite

	for _, r := range results {
		if r.Failed() {
			key := fmt.Sprintf("UNKNOWN-%d", r.Offset)
			diffs[key] = WeekDiffEntry{Error: &WeekError{
				Classifier: r.Classifier,
				HTTPStatus: r.HTTPStatus,
				Message:    r.ErrMessage,
			}}
			continue
		}

		weekKey := r.Data.WeekInfo.WeekKey
		if _, dup := diffs[weekKey]; dup {
			s.logger.Warn("duplicate week key across offsets, keeping first",
				slog.String("week_key", weekKey), slog.Int("offset", r.Offset))
			continue
		}

		var old *timetable.TimetableData
		stored, err := s.store.GetWeeklyState(ctx, session.StudentID, weekKey)
		if err == nil {
			var prev timetable.TimetableData
			if jsonErr := json.Unmarshal(stored.TimetableBlob, &prev); jsonErr != nil {
				s.logger.Warn("stored week blob unreadable, treating as absent",
					slog.String("week_key", weekKey), slog.Any("error", jsonErr))
			} else {
				old = &prev
			}
		} else if !shared.IsNotFound(err) {
			return nil, err
		}

		diff := timetable.Diff(old, *r.Data)
		diffs[weekKey] = WeekDiffEntry{
			Added:   emptyIfNil(diff.Added),
			Updated: emptyIfNil(diff.Updated),
			Removed: emptyIfNilStrings(diff.Removed),
		}

		blob, err := json.Marshal(r.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal week %s: %w", weekKey, err)
		}
		writes = append(writes, weekWrite{weekKey: weekKey, blob: blob})
	}

	err = s.store.WithTx(ctx, func(tx timetable.Store) error {
		for _, w := range writes {
			if err := tx.UpsertWeeklyState(ctx, session.StudentID, w.weekKey, w.blob, now); err != nil {
				return err
			}
		}
		return tx.TouchSession(ctx, session.StudentID, now)
	})
	if err != nil {
		return nil, err
	}

	return &SyncResult{Diffs: diffs, SyncedAt: now}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Session refresh
// ─────────────────────────────────────────────────────────────────────────────

// SessionRefresh validates fresh cookies, then atomically rotates the
// access code and cookie blob. The old access code stops working.
func (s *Service) SessionRefresh(ctx context.Context, studentID string, newCookies []timetable.Cookie) (string, error) {
	if studentID == "" {
		return "", shared.NewDomainError("sync", "SessionRefresh", shared.ErrInvalidInput, "student_id is required")
	}
	if len(newCookies) == 0 {
		return "", shared.NewDomainError("sync", "SessionRefresh", shared.ErrInvalidInput, "new_cookies are required")
	}

	sess, _, err := s.connect(ctx, newCookies)
	if err != nil {
		return "", err
	}
	sess.Close()

	if _, err := s.store.GetSessionByStudentID(ctx, studentID); err != nil {
		if shared.IsNotFound(err) {
			return "", shared.NewDomainError("sync", "SessionRefresh", shared.ErrNotFound,
				fmt.Sprintf("no session for student %s", studentID))
		}
		return "", err
	}

	accessCode, err := s.newAccessCode()
	if err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}

	cookiesBlob, err := json.Marshal(newCookies)
	if err != nil {
		return "", fmt.Errorf("marshal cookies: %w", err)
	}

	if err := s.store.RotateSession(ctx, studentID, accessCode, cookiesBlob, s.now()); err != nil {
		return "", err
	}

	return accessCode, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Legacy read-only views
// ─────────────────────────────────────────────────────────────────────────────

// FetchWeeks serves the legacy cookie-authenticated profile endpoints:
// fetch and parse the selected weeks without touching stored baselines.
func (s *Service) FetchWeeks(ctx context.Context, cookies []timetable.Cookie, studentID string, sel Selector) ([]timetable.TimetableData, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	sess, _, err := s.connect(ctx, cookies)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	teacherMap := s.teacherMap(ctx, sess)

	results, err := s.collectWeeks(ctx, sess, studentID, teacherMap, sel)
	if err != nil {
		return nil, err
	}

	data := make([]timetable.TimetableData, 0, len(results))
	for _, r := range results {
		if !r.Failed() {
			data = append(data, *r.Data)
		}
	}
	return data, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Teacher map (read-through cache)
// ─────────────────────────────────────────────────────────────────────────────

// teacherMap returns the cached teacher directory, refreshing it from the
// upstream when the cache is cold. Cache failures degrade to an upstream
// fetch; events then still resolve teacher names this request.
func (s *Service) teacherMap(ctx context.Context, sess Session) map[string]string {
	now := s.now()

	cached, err := s.store.TeacherMap(ctx, now)
	if err != nil {
		s.logger.Warn("teacher cache read failed", slog.Any("error", err))
	} else if len(cached) > 0 {
		return cached
	}

	fresh := sess.FetchTeacherMap(ctx)
	if len(fresh) == 0 {
		return map[string]string{}
	}

	entries := make([]timetable.TeacherCacheEntry, 0, len(fresh))
	for initials, fullName := range fresh {
		entries = append(entries, timetable.TeacherCacheEntry{
			Initials:  initials,
			FullName:  fullName,
			CachedAt:  now,
			ExpiresAt: now.Add(TeacherCacheTTL),
		})
	}
	// Delete+insert of the directory must be atomic so concurrent syncs
	// never observe a half-replaced cache.
	err = s.store.WithTx(ctx, func(tx timetable.Store) error {
		return tx.ReplaceTeacherMap(ctx, entries)
	})
	if err != nil {
		s.logger.Warn("teacher cache write failed", slog.Any("error", err))
	}

	return fresh
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func emptyIfNil(events []timetable.Event) []timetable.Event {
	if events == nil {
		return []timetable.Event{}
	}
	return events
}

func emptyIfNilStrings(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

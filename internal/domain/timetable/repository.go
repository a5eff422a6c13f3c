package timetable

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACE
// The contract for persistence. The implementation lives in
// infrastructure/persistence/postgres.
// ══════════════════════════════════════════════════════════════════════════════

// Store provides access to sessions, weekly timetable snapshots, and the
// teacher cache. Write paths run inside WithTx so each request commits or
// rolls back as a unit.
type Store interface {
	// GetSessionByStudentID returns the session row for a student.
	// Returns shared.ErrNotFound when absent.
	GetSessionByStudentID(ctx context.Context, studentID string) (*UserSession, error)

	// GetSessionByAccessCode looks a session up by its unique access code.
	// Returns shared.ErrNotFound when the code is unknown.
	GetSessionByAccessCode(ctx context.Context, accessCode string) (*UserSession, error)

	// InsertSession creates a session row. Returns shared.ErrAlreadyExists
	// when the student already has one.
	InsertSession(ctx context.Context, session *UserSession) error

	// RotateSession atomically replaces the access code and cookies,
	// stamping all rotation timestamps to now.
	RotateSession(ctx context.Context, studentID, accessCode string, cookiesBlob []byte, now time.Time) error

	// TouchSession updates last_accessed_at.
	TouchSession(ctx context.Context, studentID string, now time.Time) error

	// GetWeeklyState returns the stored snapshot for (student, week), or
	// shared.ErrNotFound.
	GetWeeklyState(ctx context.Context, studentID, weekKey string) (*WeeklyState, error)

	// UpsertWeeklyState writes a snapshot keyed by (student, week).
	UpsertWeeklyState(ctx context.Context, studentID, weekKey string, timetableBlob []byte, now time.Time) error

	// TeacherMap returns {initials -> full name} from non-expired cache
	// rows. An empty map means the cache is cold.
	TeacherMap(ctx context.Context, now time.Time) (map[string]string, error)

	// ReplaceTeacherMap upserts fresh cache entries for the given initials.
	ReplaceTeacherMap(ctx context.Context, entries []TeacherCacheEntry) error

	// WithTx runs fn against a transactional view of the store. fn's
	// error rolls the transaction back and is returned unchanged.
	WithTx(ctx context.Context, fn func(Store) error) error
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/shared"
	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Store implements timetable.Store for PostgreSQL. The zero-value q is the
// pool; WithTx hands callbacks a Store whose q is the transaction, so the
// same query methods serve both paths.
type Store struct {
	conn *Connection
	q    Querier
}

// NewStore creates a Store backed by the connection pool.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn, q: conn.Pool()}
}

var _ timetable.Store = (*Store)(nil)

// WithTx runs fn against a transaction-scoped view of the store.
func (s *Store) WithTx(ctx context.Context, fn func(timetable.Store) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&Store{conn: s.conn, q: tx})
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// User sessions
// ─────────────────────────────────────────────────────────────────────────────

const sessionColumns = `student_id, access_code, access_code_generated_at,
	   cookies_blob, cookies_updated_at, created_at, last_accessed_at`

// GetSessionByStudentID returns the session for a student.
func (s *Store) GetSessionByStudentID(ctx context.Context, studentID string) (*timetable.UserSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_sessions WHERE student_id = $1`, sessionColumns)
	return s.scanSession(s.q.QueryRow(ctx, query, studentID))
}

// GetSessionByAccessCode returns the session holding the given access code.
func (s *Store) GetSessionByAccessCode(ctx context.Context, accessCode string) (*timetable.UserSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_sessions WHERE access_code = $1`, sessionColumns)
	return s.scanSession(s.q.QueryRow(ctx, query, accessCode))
}

// InsertSession creates a session row.
func (s *Store) InsertSession(ctx context.Context, session *timetable.UserSession) error {
	query := `
		INSERT INTO user_sessions (
			student_id, access_code, access_code_generated_at,
			cookies_blob, cookies_updated_at, created_at, last_accessed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.q.Exec(ctx, query,
		session.StudentID,
		session.AccessCode,
		session.AccessCodeGeneratedAt,
		session.CookiesBlob,
		session.CookiesUpdatedAt,
		session.CreatedAt,
		session.LastAccessedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("postgres", "InsertSession", shared.ErrAlreadyExists,
				fmt.Sprintf("session for student %s already exists", session.StudentID))
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// RotateSession replaces the access code and cookies in one statement.
func (s *Store) RotateSession(ctx context.Context, studentID, accessCode string, cookiesBlob []byte, now time.Time) error {
	query := `
		UPDATE user_sessions SET
			access_code = $1,
			access_code_generated_at = $2,
			cookies_blob = $3,
			cookies_updated_at = $2,
			last_accessed_at = $2
		WHERE student_id = $4
	`

	result, err := s.q.Exec(ctx, query, accessCode, now, cookiesBlob, studentID)
	if err != nil {
		return fmt.Errorf("failed to rotate session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.NewDomainError("postgres", "RotateSession", shared.ErrNotFound,
			fmt.Sprintf("no session for student %s", studentID))
	}

	return nil
}

// TouchSession updates last_accessed_at.
func (s *Store) TouchSession(ctx context.Context, studentID string, now time.Time) error {
	query := `UPDATE user_sessions SET last_accessed_at = $1 WHERE student_id = $2`

	result, err := s.q.Exec(ctx, query, now, studentID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.NewDomainError("postgres", "TouchSession", shared.ErrNotFound,
			fmt.Sprintf("no session for student %s", studentID))
	}

	return nil
}

func (s *Store) scanSession(row pgx.Row) (*timetable.UserSession, error) {
	var session timetable.UserSession

	err := row.Scan(
		&session.StudentID,
		&session.AccessCode,
		&session.AccessCodeGeneratedAt,
		&session.CookiesBlob,
		&session.CookiesUpdatedAt,
		&session.CreatedAt,
		&session.LastAccessedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	return &session, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Weekly timetable states
// ─────────────────────────────────────────────────────────────────────────────

// GetWeeklyState returns the stored snapshot for (student, week).
func (s *Store) GetWeeklyState(ctx context.Context, studentID, weekKey string) (*timetable.WeeklyState, error) {
	query := `
		SELECT id, student_id, week_key, timetable_blob, last_updated_at
		FROM weekly_timetable_states
		WHERE student_id = $1 AND week_key = $2
	`

	var state timetable.WeeklyState
	err := s.q.QueryRow(ctx, query, studentID, weekKey).Scan(
		&state.ID,
		&state.StudentID,
		&state.WeekKey,
		&state.TimetableBlob,
		&state.LastUpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan weekly state: %w", err)
	}

	return &state, nil
}

// UpsertWeeklyState writes a snapshot keyed by (student, week).
func (s *Store) UpsertWeeklyState(ctx context.Context, studentID, weekKey string, timetableBlob []byte, now time.Time) error {
	query := `
		INSERT INTO weekly_timetable_states (student_id, week_key, timetable_blob, last_updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, week_key) DO UPDATE SET
			timetable_blob = EXCLUDED.timetable_blob,
			last_updated_at = EXCLUDED.last_updated_at
	`

	if _, err := s.q.Exec(ctx, query, studentID, weekKey, timetableBlob, now); err != nil {
		return fmt.Errorf("failed to upsert weekly state for %s: %w", weekKey, err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Teacher cache
// ─────────────────────────────────────────────────────────────────────────────

// TeacherMap returns {initials -> full name} from non-expired rows.
func (s *Store) TeacherMap(ctx context.Context, now time.Time) (map[string]string, error) {
	query := `SELECT initials, full_name FROM teacher_cache WHERE expires_at > $1`

	rows, err := s.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query teacher cache: %w", err)
	}
	defer rows.Close()

	teacherMap := make(map[string]string)
	for rows.Next() {
		var initials, fullName string
		if err := rows.Scan(&initials, &fullName); err != nil {
			return nil, fmt.Errorf("failed to scan teacher cache row: %w", err)
		}
		teacherMap[initials] = fullName
	}

	return teacherMap, rows.Err()
}

// ReplaceTeacherMap upserts fresh cache entries.
func (s *Store) ReplaceTeacherMap(ctx context.Context, entries []timetable.TeacherCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO teacher_cache (initials, full_name, cached_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (initials) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at
	`

	for _, entry := range entries {
		if _, err := s.q.Exec(ctx, query, entry.Initials, entry.FullName, entry.CachedAt, entry.ExpiresAt); err != nil {
			return fmt.Errorf("failed to upsert teacher %s: %w", entry.Initials, err)
		}
	}

	return nil
}

package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_user_sessions",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_weekly_timetable_states",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_teacher_cache",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE USER SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create user_sessions table
-- Version: 001

-- One row per registered student. The access code is the only credential
-- the API accepts; cookies_blob holds the upstream session cookies as JSON.
CREATE TABLE IF NOT EXISTS user_sessions (
    student_id TEXT PRIMARY KEY,
    access_code TEXT NOT NULL UNIQUE,
    access_code_generated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    cookies_blob JSONB NOT NULL,
    cookies_updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    last_accessed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_sessions_access_code ON user_sessions(access_code);
CREATE INDEX IF NOT EXISTS idx_user_sessions_last_accessed_at ON user_sessions(last_accessed_at);
`

const migration001Down = `
DROP TABLE IF EXISTS user_sessions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE WEEKLY TIMETABLE STATES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create weekly_timetable_states table
-- Version: 002

-- One snapshot per (student, ISO week). timetable_blob is the parsed
-- timetable JSON that diffs are computed against on the next sync.
CREATE TABLE IF NOT EXISTS weekly_timetable_states (
    id BIGSERIAL PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES user_sessions(student_id) ON DELETE CASCADE,
    week_key TEXT NOT NULL,
    timetable_blob JSONB NOT NULL,
    last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(student_id, week_key)
);

CREATE INDEX IF NOT EXISTS idx_weekly_states_student_id ON weekly_timetable_states(student_id);
`

const migration002Down = `
DROP TABLE IF EXISTS weekly_timetable_states;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE TEACHER CACHE
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create teacher_cache table
-- Version: 003

-- Shared across all students. Rows past expires_at are ignored by reads
-- and overwritten on the next refresh.
CREATE TABLE IF NOT EXISTS teacher_cache (
    initials TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    cached_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_cache_window CHECK (cached_at < expires_at)
);

CREATE INDEX IF NOT EXISTS idx_teacher_cache_expires_at ON teacher_cache(expires_at);
`

const migration003Down = `
DROP TABLE IF EXISTS teacher_cache;
`

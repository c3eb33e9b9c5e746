package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS courses (
    tag TEXT PRIMARY KEY,
    source_name TEXT NOT NULL,
    policy TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    records INTEGER NOT NULL DEFAULT 0,
    uploaded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS student_records (
    course_tag TEXT NOT NULL REFERENCES courses(tag) ON DELETE CASCADE,
    row_index INTEGER NOT NULL,
    student_id TEXT NOT NULL,
    name TEXT,
    raw_grade_1 TEXT,
    raw_grade_2 TEXT,
    grade_1 REAL,
    grade_2 REAL,
    average_grade REAL,
    present_count INTEGER NOT NULL,
    total_count INTEGER NOT NULL,
    attendance_pct REAL,
    attendance_bonus REAL NOT NULL,
    final_score REAL,
    final_score_rounded REAL,
    PRIMARY KEY (course_tag, row_index)
);
`,
	},
	{
		Version:     2,
		Description: "Add raw_rosters table for re-deriving uploads",
		SQL: `
CREATE TABLE IF NOT EXISTS raw_rosters (
    course_tag TEXT PRIMARY KEY,
    source_name TEXT NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL,
    stored_at DATETIME NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "Add ingest_runs table for upload auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS ingest_runs (
    batch_id TEXT PRIMARY KEY,
    origin TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    rosters_ok INTEGER NOT NULL DEFAULT 0,
    rosters_failed INTEGER NOT NULL DEFAULT 0,
    records INTEGER NOT NULL DEFAULT 0,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_student_records_name ON student_records(name);
`,
	},
	{
		Version:     4,
		Description: "Add quality flag counts to ingest_runs",
		SQL:         `ALTER TABLE ingest_runs ADD COLUMN quality_flags TEXT;`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Info().Int("version", m.Version).Str("description", m.Description).Msg("migrations: applying")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

package store

import (
	"database/sql"
	"time"
)

// IngestRun audits one batch of rosters processed together.
type IngestRun struct {
	BatchID       string
	Origin        string // "upload", "cli", "ftp", "demo"
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	RostersOK     int
	RostersFailed int
	Records       int
	ErrorMessage  sql.NullString
	QualityFlags  sql.NullString // JSON object of flag counts
}

// StartIngestRun records the start of a batch.
func (s *Store) StartIngestRun(batchID, origin string) (*IngestRun, error) {
	run := &IngestRun{
		BatchID:   batchID,
		Origin:    origin,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO ingest_runs (batch_id, origin, started_at)
		VALUES (?, ?, ?)
	`, run.BatchID, run.Origin, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun stores the batch outcome.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			rosters_ok = ?,
			rosters_failed = ?,
			records = ?,
			error_message = ?,
			quality_flags = ?
		WHERE batch_id = ?
	`, run.FinishedAt, run.RostersOK, run.RostersFailed, run.Records, run.ErrorMessage, run.QualityFlags, run.BatchID)
	return err
}

// RecentIngestRuns returns the latest batches, newest first.
func (s *Store) RecentIngestRuns(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT batch_id, origin, started_at, finished_at, rosters_ok, rosters_failed, records, error_message, quality_flags
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.BatchID, &r.Origin, &r.StartedAt, &r.FinishedAt, &r.RostersOK, &r.RostersFailed, &r.Records, &r.ErrorMessage, &r.QualityFlags); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

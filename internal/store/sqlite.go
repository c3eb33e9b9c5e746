package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/rollbook/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the SQLite database at path with the pragmas the server relies on.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// ReplaceCourse swaps every stored record of course.Tag for records.
func (s *Store) ReplaceCourse(course models.Course, records []models.DerivedRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", course.Tag, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM student_records WHERE course_tag = ?`, course.Tag); err != nil {
		return fmt.Errorf("clear records %s: %w", course.Tag, err)
	}

	uploadedAt := course.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`
		INSERT INTO courses (tag, source_name, policy, batch_id, records, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tag) DO UPDATE SET
			source_name = excluded.source_name,
			policy = excluded.policy,
			batch_id = excluded.batch_id,
			records = excluded.records,
			uploaded_at = excluded.uploaded_at
	`, course.Tag, course.SourceName, course.Policy, course.BatchID, len(records), uploadedAt); err != nil {
		return fmt.Errorf("upsert course %s: %w", course.Tag, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO student_records (course_tag, row_index, student_id, name, raw_grade_1, raw_grade_2, grade_1, grade_2, average_grade, present_count, total_count, attendance_pct, attendance_bonus, final_score, final_score_rounded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var name sql.NullString
		if r.NameValid {
			name = sql.NullString{String: r.Name, Valid: true}
		}
		if _, err := stmt.Exec(course.Tag, r.Row, r.ID, name, r.RawGrade1, r.RawGrade2,
			r.Grade1, r.Grade2, models.NullFloat(r.AverageGrade), r.PresentCount, r.TotalCount,
			models.NullFloat(r.AttendancePct), r.AttendanceBonus,
			models.NullFloat(r.FinalScore), models.NullFloat(r.FinalScoreRounded)); err != nil {
			return fmt.Errorf("insert record %s/%d: %w", course.Tag, r.Row, err)
		}
	}

	return tx.Commit()
}

func (s *Store) ListCourses() ([]models.Course, error) {
	rows, err := s.db.Query(`SELECT tag, source_name, policy, batch_id, records, uploaded_at FROM courses ORDER BY tag`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.Tag, &c.SourceName, &c.Policy, &c.BatchID, &c.Records, &c.UploadedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (s *Store) GetCourse(tag string) (*models.Course, error) {
	var c models.Course
	err := s.db.QueryRow(`SELECT tag, source_name, policy, batch_id, records, uploaded_at FROM courses WHERE tag = ?`, tag).
		Scan(&c.Tag, &c.SourceName, &c.Policy, &c.BatchID, &c.Records, &c.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCourse removes a course with its records and raw roster.
func (s *Store) DeleteCourse(tag string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM student_records WHERE course_tag = ?`,
		`DELETE FROM raw_rosters WHERE course_tag = ?`,
	} {
		if _, err := tx.Exec(q, tag); err != nil {
			return false, err
		}
	}
	res, err := tx.Exec(`DELETE FROM courses WHERE tag = ?`, tag)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

const recordColumns = `course_tag, row_index, student_id, name, raw_grade_1, raw_grade_2, grade_1, grade_2, average_grade, present_count, total_count, attendance_pct, attendance_bonus, final_score, final_score_rounded`

// CourseRecords returns one course's records in roster order.
func (s *Store) CourseRecords(tag string) ([]models.DerivedRecord, error) {
	return s.queryRecords(`SELECT `+recordColumns+` FROM student_records WHERE course_tag = ? ORDER BY row_index`, tag)
}

// AllRecords returns every stored record, grouped by course upload order.
func (s *Store) AllRecords() ([]models.DerivedRecord, error) {
	return s.queryRecords(`
		SELECT ` + recordColumns + `
		FROM student_records r
		JOIN courses c ON c.tag = r.course_tag
		ORDER BY c.uploaded_at, r.course_tag, r.row_index
	`)
}

func (s *Store) queryRecords(query string, args ...any) ([]models.DerivedRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DerivedRecord
	for rows.Next() {
		var (
			r                        models.DerivedRecord
			name                     sql.NullString
			avg, pct, final, rounded sql.NullFloat64
		)
		if err := rows.Scan(&r.CourseTag, &r.Row, &r.ID, &name, &r.RawGrade1, &r.RawGrade2,
			&r.Grade1, &r.Grade2, &avg, &r.PresentCount, &r.TotalCount, &pct,
			&r.AttendanceBonus, &final, &rounded); err != nil {
			return nil, err
		}
		r.Name, r.NameValid = name.String, name.Valid
		r.AverageGrade = models.FromNull(avg)
		r.AttendancePct = models.FromNull(pct)
		r.FinalScore = models.FromNull(final)
		r.FinalScoreRounded = models.FromNull(rounded)
		records = append(records, r)
	}
	return records, rows.Err()
}

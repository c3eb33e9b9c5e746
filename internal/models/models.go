package models

import (
	"database/sql"
	"math"
	"time"
)

// Mark is one attendance session cell.
type Mark struct {
	Value   string
	Missing bool
}

// StudentRecord is one raw roster row after schema detection.
type StudentRecord struct {
	Row        int // 0-based position in the roster
	ID         string
	Name       string
	NameValid  bool
	RawGrade1  string
	RawGrade2  string
	Attendance []Mark
}

type DerivedRecord struct {
	CourseTag         string
	Row               int
	ID                string
	Name              string
	NameValid         bool
	RawGrade1         string
	RawGrade2         string
	Grade1            sql.NullFloat64
	Grade2            sql.NullFloat64
	AverageGrade      float64 // NaN when undefined
	PresentCount      int
	TotalCount        int
	AttendancePct     float64 // NaN when TotalCount == 0
	AttendanceBonus   float64
	FinalScore        float64
	FinalScoreRounded float64
}

// Named reports whether the record may appear in aggregates and charts.
func (r DerivedRecord) Named() bool {
	return r.NameValid
}

type CourseSummary struct {
	CourseTag         string
	Students          int
	MeanFinalScore    float64 // NaN when no student has a defined score
	MeanAttendancePct float64
}

type OverallSummary struct {
	Students          int
	MeanFinalScore    float64
	MeanAttendancePct float64
}

type Summary struct {
	Courses []CourseSummary // sorted by CourseTag
	Overall OverallSummary
}

// Course returns the summary for tag.
func (s Summary) Course(tag string) (CourseSummary, bool) {
	for _, c := range s.Courses {
		if c.CourseTag == tag {
			return c, true
		}
	}
	return CourseSummary{}, false
}

// Course is a stored roster upload.
type Course struct {
	Tag        string
	SourceName string
	Policy     string // "zero" or "exclude"
	BatchID    string
	Records    int
	UploadedAt time.Time
}

// NullFloat converts a NaN-propagating value to its nullable form.
func NullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// FromNull is the inverse of NullFloat.
func FromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

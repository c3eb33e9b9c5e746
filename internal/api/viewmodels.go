package api

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/report"
	"github.com/lox/rollbook/internal/store"
	"github.com/lox/rollbook/internal/summary"
)

// IndexData is the upload and overview page.
type IndexData struct {
	Summary       models.Summary
	Courses       []models.Course
	FinalBars     summary.Series
	AttendBars    summary.Series
	Commentary    string
	Runs          []store.IngestRun
	Upload        *UploadResult
	DefaultPolicy string
}

// CourseData is the per-course detail page.
type CourseData struct {
	Course     models.Course
	Summary    models.CourseSummary
	Rows       []RecordRow
	Unnamed    int
	Charts     summary.CourseCharts
	Commentary string
}

// RecordRow is a derived record with its data-quality flags.
type RecordRow struct {
	models.DerivedRecord
	Flags []string
}

// StudentData lists a student's rows across courses.
type StudentData struct {
	Query    string
	Students []string
	Rows     []models.DerivedRecord
}

// UploadResult reports one upload batch back to the page.
type UploadResult struct {
	BatchID  string          `json:"batch_id"`
	Stored   []CourseView    `json:"stored"`
	Failures []UploadFailure `json:"failures"`
	Flags    map[string]int  `json:"quality_flags"`
}

type UploadFailure struct {
	Source   string `json:"source"`
	Category string `json:"category,omitempty"`
	Error    string `json:"error"`
}

// CourseView is the JSON shape of a stored course.
type CourseView struct {
	Tag        string    `json:"tag"`
	SourceName string    `json:"source_name"`
	Policy     string    `json:"policy"`
	BatchID    string    `json:"batch_id"`
	Records    int       `json:"records"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func courseViewOf(c models.Course) CourseView {
	return CourseView{
		Tag:        c.Tag,
		SourceName: c.SourceName,
		Policy:     c.Policy,
		BatchID:    c.BatchID,
		Records:    c.Records,
		UploadedAt: c.UploadedAt,
	}
}

// CourseDetailView is the JSON shape of /api/courses/{tag}.
type CourseDetailView struct {
	Course  CourseView          `json:"course"`
	Summary report.CourseView   `json:"summary"`
	Records []report.RecordView `json:"records"`
}

// SummaryResponse is the JSON shape of /api/summary.
type SummaryResponse struct {
	report.SummaryView
	FinalBars  summary.Series `json:"final_bars"`
	AttendBars summary.Series `json:"attendance_bars"`
	Commentary string         `json:"commentary"`
}

type IngestRunView struct {
	BatchID       string         `json:"batch_id"`
	Origin        string         `json:"origin"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	RostersOK     int            `json:"rosters_ok"`
	RostersFailed int            `json:"rosters_failed"`
	Records       int            `json:"records"`
	Error         string         `json:"error,omitempty"`
	QualityFlags  map[string]int `json:"quality_flags,omitempty"`
}

func ingestRunViewOf(r store.IngestRun) IngestRunView {
	v := IngestRunView{
		BatchID:       r.BatchID,
		Origin:        r.Origin,
		StartedAt:     r.StartedAt,
		RostersOK:     r.RostersOK,
		RostersFailed: r.RostersFailed,
		Records:       r.Records,
		Error:         r.ErrorMessage.String,
	}
	if r.QualityFlags.Valid {
		if err := json.Unmarshal([]byte(r.QualityFlags.String), &v.QualityFlags); err != nil {
			log.Warn().Err(err).Str("batch", r.BatchID).Msg("decode quality flags")
		}
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		v.FinishedAt = &t
	}
	return v
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/ingest"
	"github.com/lox/rollbook/internal/report"
	"github.com/lox/rollbook/internal/scoring"
	"github.com/lox/rollbook/internal/summary"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode json response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	courses, err := s.store.ListCourses()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"schema_version": version,
		"courses":        len(courses),
	})
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.AllRecords()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sum := summary.Aggregate(records)
	final, attend := summary.CourseBars(sum)
	writeJSON(w, http.StatusOK, SummaryResponse{
		SummaryView: report.SummaryViewOf(sum),
		FinalBars:   final,
		AttendBars:  attend,
		Commentary:  s.commentary(r.Context(), overallKey, overallScope, records),
	})
}

func (s *Server) handleAPICourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.store.ListCourses()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]CourseView, 0, len(courses))
	for _, c := range courses {
		views = append(views, courseViewOf(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPICourse(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	data, err := s.courseData(r.Context(), tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("course %q not found", tag))
		return
	}

	view := CourseDetailView{
		Course: courseViewOf(data.Course),
		Summary: report.CourseView{
			Course:            tag,
			Students:          data.Summary.Students,
			MeanFinalScore:    report.Ptr(data.Summary.MeanFinalScore),
			MeanAttendancePct: report.Ptr(data.Summary.MeanAttendancePct),
		},
		Records: make([]report.RecordView, 0, len(data.Rows)),
	}
	for _, row := range data.Rows {
		rv := report.RecordViewOf(row.DerivedRecord)
		rv.Flags = row.Flags
		view.Records = append(view.Records, rv)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAPICourseCharts(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	course, err := s.store.GetCourse(tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if course == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("course %q not found", tag))
		return
	}
	records, err := s.store.CourseRecords(tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary.ChartsFor(records))
}

func (s *Server) handleAPIDeleteCourse(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	deleted, err := s.store.DeleteCourse(tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, fmt.Errorf("course %q not found", tag))
		return
	}
	s.Invalidate()
	log.Info().Str("course", tag).Msg("course deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIRederive(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	policy := s.cfg.Policy
	if p := r.URL.Query().Get("policy"); p != "" {
		var err error
		if policy, err = scoring.ParsePolicy(p); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	batch, err := s.importer(policy).Rederive(r.Context(), tag, policy)
	switch {
	case errors.Is(err, ingest.ErrNoRawRoster):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.Invalidate()

	stored := make([]CourseView, 0, len(batch.Courses))
	for _, c := range batch.Courses {
		stored = append(stored, courseViewOf(c))
	}
	writeJSON(w, http.StatusOK, UploadResult{BatchID: batch.ID, Stored: stored, Failures: []UploadFailure{}})
}

func (s *Server) handleAPIStudents(w http.ResponseWriter, r *http.Request) {
	data, err := s.studentData(r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if data.Query == "" {
		writeJSON(w, http.StatusOK, map[string]any{"students": data.Students})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    data.Query,
		"records": report.RecordViews(data.Rows),
	})
}

// handleAPIRecords exports derived records, optionally for one course.
func (s *Server) handleAPIRecords(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil || format == report.FormatTable {
		format = report.FormatJSON
	}

	records, err := s.store.AllRecords()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tag := r.URL.Query().Get("course"); tag != "" {
		records = summary.ByCourse(records, tag)
	}

	if format == report.FormatCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="records.csv"`)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := report.WriteRecords(w, format, records); err != nil {
		log.Error().Err(err).Msg("export records")
	}
}

func (s *Server) handleAPIIngestRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.RecentIngestRuns(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]IngestRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, ingestRunViewOf(run))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	result, status, err := s.upload(w, r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/ingest"
	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/narrative"
	"github.com/lox/rollbook/internal/roster"
	"github.com/lox/rollbook/internal/scoring"
	"github.com/lox/rollbook/internal/summary"
)

const overallScope = "all courses"

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("template error")
	}
}

func (s *Server) indexData(ctx context.Context) (*IndexData, error) {
	records, err := s.store.AllRecords()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	courses, err := s.store.ListCourses()
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	runs, err := s.store.RecentIngestRuns(5)
	if err != nil {
		log.Warn().Err(err).Msg("load ingest runs")
	}

	sum := summary.Aggregate(records)
	final, attend := summary.CourseBars(sum)
	return &IndexData{
		Summary:       sum,
		Courses:       courses,
		FinalBars:     final,
		AttendBars:    attend,
		Commentary:    s.commentary(ctx, overallKey, overallScope, records),
		Runs:          runs,
		DefaultPolicy: string(s.cfg.Policy),
	}, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := s.indexData(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	result, status, err := s.upload(w, r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	data, err := s.indexData(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data.Upload = result
	s.render(w, "index.html", data)
}

// upload reads the multipart form, imports every roster file and returns
// the per-file outcome. The error status is meaningful only when err != nil.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (*UploadResult, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err)
	}

	policy := s.cfg.Policy
	if p := r.FormValue("policy"); p != "" {
		var err error
		if policy, err = scoring.ParsePolicy(p); err != nil {
			return nil, http.StatusBadRequest, err
		}
	}

	files := r.MultipartForm.File["rosters"]
	if len(files) == 0 {
		return nil, http.StatusBadRequest, errors.New("no roster files uploaded")
	}

	result := &UploadResult{Stored: []CourseView{}, Failures: []UploadFailure{}}
	var sources []ingest.Source
	for _, fh := range files {
		if !ingest.IsRosterFile(fh.Filename) {
			result.Failures = append(result.Failures, UploadFailure{Source: fh.Filename, Error: "unsupported file type"})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		sources = append(sources, ingest.ReaderSource{SourceName: fh.Filename, Data: data})
	}

	if len(sources) > 0 {
		batch, err := s.importer(policy).Import(r.Context(), "upload", sources...)
		if batch != nil {
			result.BatchID = batch.ID
			result.Flags = batch.Flags
			for _, c := range batch.Courses {
				result.Stored = append(result.Stored, courseViewOf(c))
			}
			for _, o := range batch.Result.Failures() {
				result.Failures = append(result.Failures, failureOf(o))
			}
			if len(batch.Courses) > 0 {
				s.Invalidate()
			}
		}
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
	}
	return result, http.StatusOK, nil
}

func failureOf(o ingest.Outcome) UploadFailure {
	f := UploadFailure{Source: o.Source, Error: o.Err.Error()}
	var se *roster.StructuralError
	if errors.As(o.Err, &se) {
		f.Category = string(se.Category)
	}
	return f
}

func (s *Server) courseData(ctx context.Context, tag string) (*CourseData, error) {
	course, err := s.store.GetCourse(tag)
	if err != nil || course == nil {
		return nil, err
	}
	records, err := s.store.CourseRecords(tag)
	if err != nil {
		return nil, err
	}

	data := &CourseData{
		Course:     *course,
		Charts:     summary.ChartsFor(records),
		Commentary: s.commentary(ctx, courseKey(tag), tag, records),
	}
	if cs, ok := summary.Aggregate(records).Course(tag); ok {
		data.Summary = cs
	} else {
		data.Summary = models.CourseSummary{CourseTag: tag, MeanFinalScore: math.NaN(), MeanAttendancePct: math.NaN()}
	}
	for _, rec := range records {
		if !rec.Named() {
			data.Unnamed++
		}
		data.Rows = append(data.Rows, RecordRow{DerivedRecord: rec, Flags: ingest.ValidateRecord(rec, s.sentinel())})
	}
	return data, nil
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	data, err := s.courseData(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, "course.html", data)
}

func (s *Server) studentData(name string) (*StudentData, error) {
	records, err := s.store.AllRecords()
	if err != nil {
		return nil, err
	}
	data := &StudentData{
		Query:    strings.TrimSpace(name),
		Students: summary.Students(records),
	}
	if data.Query != "" {
		data.Rows = summary.ByStudent(records, data.Query)
	}
	return data, nil
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	data, err := s.studentData(r.URL.Query().Get("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "student.html", data)
}

// commentary returns cached commentary for key, writing it about scope on
// first use.
func (s *Server) commentary(ctx context.Context, key, scope string, records []models.DerivedRecord) string {
	if v, ok := s.narratives.Get(key); ok {
		return v.(string)
	}

	text, err := s.narrator.Write(ctx, narrative.FactsFor(scope, records))
	if err != nil {
		log.Warn().Err(err).Str("scope", scope).Msg("write commentary")
		return ""
	}
	s.narratives.Set(key, text, cache.DefaultExpiration)
	return text
}

func (s *Server) sentinel() string {
	if s.cfg.Schema.ErrorSentinel != "" {
		return s.cfg.Schema.ErrorSentinel
	}
	return scoring.DefaultErrorSentinel
}

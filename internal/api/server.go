// Package api serves the roster dashboard pages and the JSON API.
package api

import (
	"context"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/imagegen"
	"github.com/lox/rollbook/internal/ingest"
	"github.com/lox/rollbook/internal/narrative"
	"github.com/lox/rollbook/internal/roster"
	"github.com/lox/rollbook/internal/scoring"
	"github.com/lox/rollbook/internal/store"
)

type Config struct {
	Addr           string
	Schema         roster.Schema
	Policy         scoring.Policy
	MaxUploadBytes int64
	CardTTL        time.Duration
	CommentaryTTL  time.Duration
	CORSOrigins    []string
}

type Server struct {
	store *store.Store
	cfg   Config
	tmpl  *template.Template

	narrator   narrative.Writer
	narratives *cache.Cache

	cards      *imagegen.CardCache
	imageCache *imagegen.Cache
	imageGen   *imagegen.Generator
	genMu      sync.Mutex // prevents concurrent generation of the same background
}

func NewServer(s *store.Store, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Schema.NameColumn == "" {
		cfg.Schema = roster.DefaultSchema()
	}
	if cfg.Policy == "" {
		cfg.Policy = scoring.PolicyZero
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	if cfg.CardTTL <= 0 {
		cfg.CardTTL = 10 * time.Minute
	}
	if cfg.CommentaryTTL <= 0 {
		cfg.CommentaryTTL = time.Hour
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	return &Server{
		store:      s,
		cfg:        cfg,
		tmpl:       newTemplates(),
		narrator:   narrative.Template{},
		narratives: cache.New(cfg.CommentaryTTL, 2*cfg.CommentaryTTL),
		cards:      imagegen.NewCardCache(cfg.CardTTL),
	}
}

// SetNarrator replaces the deterministic commentary writer.
func (s *Server) SetNarrator(w narrative.Writer) {
	s.narrator = w
}

// SetImageGenerator enables generated card backgrounds. gen may be nil to
// only serve backgrounds already in cache.
func (s *Server) SetImageGenerator(gen *imagegen.Generator, cache *imagegen.Cache) {
	s.imageGen = gen
	s.imageCache = cache
}

// Invalidate drops cached cards and commentary after rosters change.
func (s *Server) Invalidate() {
	s.cards.Invalidate()
	s.narratives.Flush()
}

// Cache keys keep course tags apart from the school-wide entries.
const overallKey = "overall"

func courseKey(tag string) string {
	return "course:" + tag
}

func (s *Server) importer(policy scoring.Policy) *ingest.Importer {
	return ingest.NewImporter(s.store, ingest.NewProcessor(s.cfg.Schema, policy))
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/upload", s.handleUpload)
	r.Get("/courses/{tag}", s.handleCourse)
	r.Get("/courses/{tag}/card.png", s.handleCourseCard)
	r.Get("/students", s.handleStudents)
	r.Get("/card.png", s.handleOverallCard)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"Content-Length"},
			MaxAge:         300,
		}))
		api.Get("/summary", s.handleAPISummary)
		api.Get("/courses", s.handleAPICourses)
		api.Get("/courses/{tag}", s.handleAPICourse)
		api.Get("/courses/{tag}/charts", s.handleAPICourseCharts)
		api.Delete("/courses/{tag}", s.handleAPIDeleteCourse)
		api.Post("/courses/{tag}/rederive", s.handleAPIRederive)
		api.Get("/students", s.handleAPIStudents)
		api.Get("/records", s.handleAPIRecords)
		api.Get("/ingest-runs", s.handleAPIIngestRuns)
		api.Post("/upload", s.handleAPIUpload)
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// requestLogger logs each request through the global zerolog logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/rollbook/internal/api"
	"github.com/lox/rollbook/internal/imagegen"
	"github.com/lox/rollbook/internal/ingest"
	"github.com/lox/rollbook/internal/logging"
	"github.com/lox/rollbook/internal/narrative"
	"github.com/lox/rollbook/internal/report"
	"github.com/lox/rollbook/internal/roster"
	"github.com/lox/rollbook/internal/scoring"
	"github.com/lox/rollbook/internal/store"
	"github.com/lox/rollbook/internal/summary"
	"github.com/lox/rollbook/internal/synth"
)

type Globals struct {
	EnvFile   kongdotenv.ENVFileConfig `name:"env-file" default:".env" help:"Path to a .env file."`
	DB        string                   `default:"data/rollbook.db" env:"ROLLBOOK_DB" help:"Path to the SQLite database."`
	LogLevel  string                   `default:"info" env:"LOG_LEVEL" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string                   `default:"console" env:"LOG_FORMAT" enum:"console,json" help:"Log output format."`

	AbsentGrades string `default:"zero" env:"ROLLBOOK_ABSENT_GRADES" enum:"zero,exclude" help:"How absent or erroneous grades enter the average."`

	IDColumn         string `default:"N°" help:"Header of the student number column."`
	NameColumn       string `default:"NOMBRES" help:"Header of the student name column."`
	Grade1Column     string `default:"nota1" help:"Header of the first grade column."`
	Grade2Column     string `default:"nota 2" help:"Header of the second grade column."`
	AttendancePrefix string `default:"asistencia" help:"Prefix shared by attendance columns."`
	PresentMarker    string `default:"P" help:"Attendance cell value meaning present."`
	ErrorSentinel    string `default:"#DIV/0!" help:"Spreadsheet error value treated as an absent grade."`
}

func (g *Globals) Schema() roster.Schema {
	return roster.Schema{
		IDColumn:         g.IDColumn,
		NameColumn:       g.NameColumn,
		GradeColumns:     [2]string{g.Grade1Column, g.Grade2Column},
		AttendancePrefix: g.AttendancePrefix,
		PresentMarker:    g.PresentMarker,
		ErrorSentinel:    g.ErrorSentinel,
	}
}

func (g *Globals) Policy() scoring.Policy {
	p, err := scoring.ParsePolicy(g.AbsentGrades)
	if err != nil {
		return scoring.PolicyZero
	}
	return p
}

func (g *Globals) OpenStore() (*store.Store, func(), error) {
	if dir := filepath.Dir(g.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := store.Open(g.DB)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug().Str("db", g.DB).Msg("database migrated")
	return st, func() { db.Close() }, nil
}

func (g *Globals) Importer(st *store.Store, workers int) *ingest.Importer {
	proc := ingest.NewProcessor(g.Schema(), g.Policy())
	if workers > 0 {
		proc.SetWorkers(workers)
	}
	return ingest.NewImporter(st, proc)
}

type FTPFlags struct {
	FTPAddr     string        `name:"ftp-addr" env:"ROLLBOOK_FTP_ADDR" help:"FTP server (host:port) to poll for rosters."`
	FTPUser     string        `name:"ftp-user" env:"ROLLBOOK_FTP_USER" help:"FTP user."`
	FTPPassword string        `name:"ftp-password" env:"ROLLBOOK_FTP_PASSWORD" help:"FTP password."`
	FTPDir      string        `name:"ftp-dir" env:"ROLLBOOK_FTP_DIR" default:"/" help:"FTP directory holding rosters."`
	FTPTimeout  time.Duration `name:"ftp-timeout" default:"30s" help:"FTP dial and transfer timeout."`
}

func (f FTPFlags) Client() *ingest.FTPClient {
	return ingest.NewFTPClient(ingest.FTPConfig{
		Addr:     f.FTPAddr,
		User:     f.FTPUser,
		Password: f.FTPPassword,
		Dir:      f.FTPDir,
		Timeout:  f.FTPTimeout,
	})
}

type ServeCmd struct {
	FTPFlags `embed:""`

	Addr         string        `default:":8080" env:"ROLLBOOK_ADDR" help:"HTTP listen address."`
	PollInterval time.Duration `default:"15m" help:"How often to poll the FTP server."`
	NoPoll       bool          `help:"Disable FTP polling."`
	CacheDir     string        `default:"data/cards" help:"Directory for generated card backgrounds."`
	OpenAIKey    string        `name:"openai-key" env:"OPENAI_API_KEY" help:"Enables generated commentary and card backgrounds."`
	CORSOrigins  []string      `name:"cors-origin" default:"*" help:"Allowed CORS origins for /api."`
}

func (c *ServeCmd) Run(g *Globals) error {
	st, closeDB, err := g.OpenStore()
	if err != nil {
		return err
	}
	defer closeDB()

	server := api.NewServer(st, api.Config{
		Addr:        c.Addr,
		Schema:      g.Schema(),
		Policy:      g.Policy(),
		CORSOrigins: c.CORSOrigins,
	})

	if c.OpenAIKey != "" {
		if w, err := narrative.NewOpenAI(c.OpenAIKey, 0); err != nil {
			log.Warn().Err(err).Msg("openai commentary disabled")
		} else {
			server.SetNarrator(narrative.Fallback{Primary: w, Secondary: narrative.Template{}})
		}
		if gen, err := imagegen.NewGenerator(c.OpenAIKey); err != nil {
			log.Warn().Err(err).Msg("card backgrounds disabled")
		} else {
			server.SetImageGenerator(gen, imagegen.NewCache(c.CacheDir, 7*24*time.Hour))
		}
	} else {
		server.SetImageGenerator(nil, imagegen.NewCache(c.CacheDir, 7*24*time.Hour))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case c.NoPoll:
		log.Info().Msg("polling disabled (--no-poll)")
	case c.FTPAddr == "":
		log.Info().Msg("no FTP server configured, polling disabled")
	default:
		scheduler := ingest.NewScheduler(g.Importer(st, 0), c.Client(), c.PollInterval)
		scheduler.OnImport(func(*ingest.Batch) { server.Invalidate() })
		go scheduler.Run(ctx)
	}

	return server.Run(ctx)
}

type ProcessCmd struct {
	Paths   []string `arg:"" type:"path" help:"Roster files (.csv, .xlsx) or directories of them."`
	Format  string   `short:"f" default:"table" enum:"table,csv,json" help:"Output format."`
	Workers int      `default:"4" help:"Rosters processed concurrently."`
	DryRun  bool     `help:"Derive and print without storing."`
}

func (c *ProcessCmd) Run(g *Globals) error {
	sources, err := ingest.PathSources(c.Paths)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no roster files in %s", strings.Join(c.Paths, ", "))
	}

	format, err := report.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var result *ingest.Result
	if c.DryRun {
		proc := ingest.NewProcessor(g.Schema(), g.Policy())
		proc.SetWorkers(c.Workers)
		result = proc.Ingest(ctx, sources...)
	} else {
		st, closeDB, err := g.OpenStore()
		if err != nil {
			return err
		}
		defer closeDB()

		batch, err := g.Importer(st, c.Workers).Import(ctx, "cli", sources...)
		if err != nil {
			return err
		}
		result = batch.Result
		log.Info().Str("batch", batch.ID).Int("courses", len(batch.Courses)).Msg("rosters stored")
	}

	for _, o := range result.Failures() {
		log.Error().Err(o.Err).Str("source", o.Source).Msg("roster skipped")
	}
	if err := report.WriteRecords(os.Stdout, format, result.Records()); err != nil {
		return err
	}
	if len(result.Succeeded()) == 0 {
		return fmt.Errorf("no roster could be processed: %w", result.Err())
	}
	return nil
}

type SummaryCmd struct {
	Format string `short:"f" default:"table" enum:"table,csv,json" help:"Output format."`
	Course string `help:"Only summarise this course tag."`
}

func (c *SummaryCmd) Run(g *Globals) error {
	st, closeDB, err := g.OpenStore()
	if err != nil {
		return err
	}
	defer closeDB()

	records, err := st.AllRecords()
	if err != nil {
		return err
	}
	if c.Course != "" {
		records = summary.ByCourse(records, c.Course)
		if len(records) == 0 {
			return fmt.Errorf("no named students stored for course %q", c.Course)
		}
	}
	format, err := report.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	return report.WriteSummary(os.Stdout, format, summary.Aggregate(records))
}

type FetchCmd struct {
	FTPFlags `embed:""`
}

func (c *FetchCmd) Run(g *Globals) error {
	if c.FTPAddr == "" {
		return fmt.Errorf("--ftp-addr is required")
	}
	st, closeDB, err := g.OpenStore()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sources, err := c.Client().Fetch(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		log.Info().Str("addr", c.FTPAddr).Msg("no rosters on server")
		return nil
	}
	batch, err := g.Importer(st, 0).Import(ctx, "ftp", sources...)
	if err != nil {
		return err
	}
	log.Info().
		Str("batch", batch.ID).
		Int("stored", len(batch.Courses)).
		Int("failed", len(batch.Result.Failures())).
		Msg("fetch complete")
	return nil
}

type DemoCmd struct {
	Courses  int    `default:"3" help:"Number of synthetic courses."`
	Students int    `default:"30" help:"Students per course."`
	Sessions int    `default:"20" help:"Attendance sessions per course."`
	Seed     uint64 `default:"1" help:"Random seed."`
}

func (c *DemoCmd) Run(g *Globals) error {
	st, closeDB, err := g.OpenStore()
	if err != nil {
		return err
	}
	defer closeDB()

	schema := g.Schema()
	sources := make([]ingest.Source, 0, c.Courses)
	for i := range c.Courses {
		sources = append(sources, ingest.ReaderSource{
			SourceName: fmt.Sprintf("demo-%d.csv", i+1),
			Data:       synth.CSV(c.Seed+uint64(i), c.Students, c.Sessions, schema),
		})
	}

	batch, err := g.Importer(st, 0).Import(context.Background(), "demo", sources...)
	if err != nil {
		return err
	}
	if err := batch.Result.Err(); err != nil {
		return err
	}
	log.Info().Str("batch", batch.ID).Int("courses", len(batch.Courses)).Msg("demo rosters stored")
	return nil
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Run the dashboard and JSON API."`
	Process ProcessCmd `cmd:"" help:"Derive scores from roster files and store them."`
	Summary SummaryCmd `cmd:"" help:"Print per-course and overall summaries."`
	Fetch   FetchCmd   `cmd:"" help:"Import rosters from an FTP server once."`
	Demo    DemoCmd    `cmd:"" help:"Store synthetic rosters for trying out the dashboard."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("rollbook"),
		kong.Description("Grade and attendance scoring for course rosters."),
		kong.UsageOnError(),
	)
	logging.Setup(cli.LogLevel, cli.LogFormat)

	if err := kctx.Run(&cli.Globals); err != nil {
		log.Fatal().Err(err).Str("command", kctx.Command()).Msg("command failed")
	}
}

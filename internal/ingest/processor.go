// Package ingest reads rosters from their sources, derives them and
// persists the results.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/rollbook/internal/metrics"
	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/roster"
	"github.com/lox/rollbook/internal/scoring"
)

// MaxRosterBytes bounds a single roster read.
const MaxRosterBytes = 32 << 20

// Outcome is the result of processing one source.
type Outcome struct {
	Source  string
	Tag     string
	Payload []byte
	Roster  *roster.Roster
	Records []models.DerivedRecord
	Err     error
}

// Result keeps outcomes in source order.
type Result struct {
	Outcomes []Outcome
}

// Records concatenates the derived records of every successful roster,
// preserving roster arrival order and row order.
func (r *Result) Records() []models.DerivedRecord {
	var out []models.DerivedRecord
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.Records...)
		}
	}
	return out
}

func (r *Result) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o)
		}
	}
	return out
}

func (r *Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Err joins every per-roster failure, or nil.
func (r *Result) Err() error {
	var errs []error
	for _, o := range r.Failures() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

type Processor struct {
	schema  roster.Schema
	policy  scoring.Policy
	workers int
}

func NewProcessor(schema roster.Schema, policy scoring.Policy) *Processor {
	return &Processor{schema: schema, policy: policy, workers: 4}
}

// SetWorkers bounds how many rosters are processed at once.
func (p *Processor) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	p.workers = n
}

func (p *Processor) Policy() scoring.Policy { return p.policy }

func (p *Processor) sentinel() string {
	if p.schema.ErrorSentinel != "" {
		return p.schema.ErrorSentinel
	}
	return scoring.DefaultErrorSentinel
}

// Ingest processes every source independently. A failing roster never
// affects its siblings; failures are reported in the result.
func (p *Processor) Ingest(ctx context.Context, sources ...Source) *Result {
	res := &Result{Outcomes: make([]Outcome, len(sources))}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, src := range sources {
		g.Go(func() error {
			res.Outcomes[i] = p.Process(ctx, src)
			return nil
		})
	}
	g.Wait()
	return res
}

// Process reads and derives a single source.
func (p *Processor) Process(ctx context.Context, src Source) Outcome {
	start := time.Now()
	out := Outcome{Source: src.Name(), Tag: roster.CourseTag(src.Name())}

	payload, err := readSource(ctx, src)
	if err != nil {
		out.Err = fmt.Errorf("read %s: %w", src.Name(), err)
		p.recordFailure(out)
		return out
	}
	out.Payload = payload

	out.Roster, out.Err = roster.Read(src.Name(), bytes.NewReader(payload), p.schema)
	if out.Err != nil {
		p.recordFailure(out)
		return out
	}

	out.Records = scoring.DeriveRoster(out.Roster, p.policy)
	metrics.DeriveLatency.Observe(time.Since(start).Seconds())
	metrics.RostersProcessed.WithLabelValues("ok").Inc()
	metrics.RecordsDerived.WithLabelValues(out.Tag).Add(float64(len(out.Records)))

	log.Debug().
		Str("source", out.Source).
		Str("course", out.Tag).
		Int("records", len(out.Records)).
		Int("sessions", len(out.Roster.Descriptor.Attendance)).
		Msg("roster derived")
	return out
}

func (p *Processor) recordFailure(o Outcome) {
	metrics.RostersProcessed.WithLabelValues("failed").Inc()

	category := "read"
	var se *roster.StructuralError
	if errors.As(o.Err, &se) {
		category = string(se.Category)
	}
	metrics.RosterErrors.WithLabelValues(category).Inc()
	log.Warn().Err(o.Err).Str("source", o.Source).Str("category", category).Msg("roster rejected")
}

func readSource(ctx context.Context, src Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxRosterBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxRosterBytes {
		return nil, fmt.Errorf("roster larger than %d bytes", MaxRosterBytes)
	}
	return data, nil
}

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/roster"
	"github.com/lox/rollbook/internal/scoring"
	"github.com/lox/rollbook/internal/store"
)

// ErrNoRawRoster is returned when a course cannot be derived again because
// its original file was never kept.
var ErrNoRawRoster = errors.New("no stored roster for course")

// Batch is the outcome of one import.
type Batch struct {
	ID      string
	Result  *Result
	Courses []models.Course
	Flags   map[string]int // quality flag counts over every derived record
}

// Importer processes rosters and persists every successful one as a course.
type Importer struct {
	store *store.Store
	proc  *Processor
}

func NewImporter(s *store.Store, proc *Processor) *Importer {
	return &Importer{store: s, proc: proc}
}

func (im *Importer) Processor() *Processor { return im.proc }

// Import processes sources as one batch. Rosters sharing a course tag are
// stored in arrival order, so the last one wins. The returned error is
// non-nil only when persisting fails; per-roster failures are in the result.
func (im *Importer) Import(ctx context.Context, origin string, sources ...Source) (*Batch, error) {
	batch := &Batch{ID: uuid.NewString()}

	run, err := im.store.StartIngestRun(batch.ID, origin)
	if err != nil {
		log.Error().Err(err).Str("batch", batch.ID).Msg("start ingest run")
	}

	batch.Result = im.proc.Ingest(ctx, sources...)
	batch.Flags = CountFlags(batch.Result.Records(), im.proc.sentinel())

	var storeErr error
	for _, o := range batch.Result.Succeeded() {
		course, err := im.persist(batch.ID, o, im.proc.Policy())
		if err != nil {
			storeErr = errors.Join(storeErr, err)
			continue
		}
		batch.Courses = append(batch.Courses, course)
	}

	if run != nil {
		run.RostersOK = len(batch.Courses)
		run.RostersFailed = len(batch.Result.Outcomes) - len(batch.Courses)
		run.Records = len(batch.Result.Records())
		if err := errors.Join(batch.Result.Err(), storeErr); err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if flags := FlagCountsJSON(batch.Flags); flags != "" {
			run.QualityFlags = sql.NullString{String: flags, Valid: true}
		}
		if err := im.store.CompleteIngestRun(run); err != nil {
			log.Error().Err(err).Str("batch", batch.ID).Msg("complete ingest run")
		}
	}

	log.Info().
		Str("batch", batch.ID).
		Str("origin", origin).
		Int("rosters", len(sources)).
		Int("stored", len(batch.Courses)).
		Int("failed", len(batch.Result.Failures())).
		Msg("import complete")

	return batch, storeErr
}

func (im *Importer) persist(batchID string, o Outcome, policy scoring.Policy) (models.Course, error) {
	course := models.Course{
		Tag:        o.Tag,
		SourceName: o.Source,
		Policy:     string(policy),
		BatchID:    batchID,
		Records:    len(o.Records),
		UploadedAt: time.Now().UTC(),
	}
	if err := im.store.ReplaceCourse(course, o.Records); err != nil {
		return course, fmt.Errorf("store course %s: %w", o.Tag, err)
	}
	if len(o.Payload) > 0 {
		if _, err := im.store.StoreRawRoster(o.Tag, o.Source, o.Payload); err != nil {
			return course, fmt.Errorf("store raw roster %s: %w", o.Tag, err)
		}
	}
	return course, nil
}

// Changed drops sources whose content is identical to the roster already
// kept for their course. Unreadable sources are kept so Import reports them.
func (im *Importer) Changed(ctx context.Context, sources []Source) ([]Source, error) {
	out := make([]Source, 0, len(sources))
	for _, src := range sources {
		data, err := readSource(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out = append(out, src)
			continue
		}
		stored, err := im.store.RawRosterHash(roster.CourseTag(src.Name()))
		if err != nil {
			return nil, err
		}
		if stored == store.PayloadHash(data) {
			log.Debug().Str("source", src.Name()).Msg("roster unchanged, skipping")
			continue
		}
		out = append(out, ReaderSource{SourceName: src.Name(), Data: data})
	}
	return out, nil
}

// Rederive recomputes a stored course from its kept roster under policy.
func (im *Importer) Rederive(ctx context.Context, tag string, policy scoring.Policy) (*Batch, error) {
	raw, err := im.store.GetRawRoster(tag)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w %q", ErrNoRawRoster, tag)
	}

	proc := NewProcessor(im.proc.schema, policy)
	sub := &Importer{store: im.store, proc: proc}
	batch, err := sub.Import(ctx, "rederive", ReaderSource{SourceName: raw.SourceName, Data: raw.Payload})
	if err != nil {
		return batch, err
	}
	return batch, batch.Result.Err()
}

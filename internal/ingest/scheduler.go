package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Fetcher lists the rosters currently in a drop. *FTPClient is the
// production implementation.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Source, error)
	Addr() string
}

// Scheduler polls a roster drop and imports whatever rosters changed.
type Scheduler struct {
	importer *Importer
	fetcher  Fetcher
	interval time.Duration

	// onImport runs after every successful poll, e.g. to invalidate caches.
	onImport func(*Batch)
}

func NewScheduler(importer *Importer, fetcher Fetcher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{importer: importer, fetcher: fetcher, interval: interval}
}

// OnImport registers a callback run after each imported batch.
func (s *Scheduler) OnImport(fn func(*Batch)) {
	s.onImport = fn
}

func (s *Scheduler) Run(ctx context.Context) {
	s.poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler: shutting down")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	log.Info().Str("addr", s.fetcher.Addr()).Msg("scheduler: polling roster drop")
	sources, err := s.fetcher.Fetch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: fetch rosters")
		return
	}
	sources, err = s.importer.Changed(ctx, sources)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: compare rosters")
		return
	}
	if len(sources) == 0 {
		log.Debug().Msg("scheduler: no changed rosters")
		return
	}

	batch, err := s.importer.Import(ctx, "ftp", sources...)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: import rosters")
	}
	if batch != nil && s.onImport != nil {
		s.onImport(batch)
	}
}

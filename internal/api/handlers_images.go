package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/imagegen"
	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/summary"
)

func (s *Server) handleOverallCard(w http.ResponseWriter, r *http.Request) {
	s.serveCard(w, r, "")
}

func (s *Server) handleCourseCard(w http.ResponseWriter, r *http.Request) {
	s.serveCard(w, r, chi.URLParam(r, "tag"))
}

// serveCard renders the summary card for a course, or for every course when
// tag is empty. It uses a cached background when one exists and kicks off
// background generation when it doesn't.
func (s *Server) serveCard(w http.ResponseWriter, r *http.Request, tag string) {
	key := overallKey
	if tag != "" {
		key = courseKey(tag)
	}
	if data, ok := s.cards.Get(key); ok {
		servePNG(w, data)
		return
	}

	card, found, err := s.cardData(tag)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}

	theme := imagegen.ThemeFor(card.MeanFinal)
	var data []byte
	if bg, ok := s.background(theme); ok {
		data, err = imagegen.GenerateCard(bg, card)
	} else {
		if s.imageGen != nil {
			go s.generateAndCache(theme)
		}
		data, err = imagegen.GenerateFallbackCard(card)
	}
	if err != nil {
		log.Error().Err(err).Str("card", key).Msg("render card")
		http.Error(w, "Failed to render card", http.StatusInternalServerError)
		return
	}

	s.cards.Set(key, data)
	servePNG(w, data)
}

func (s *Server) cardData(tag string) (imagegen.CardData, bool, error) {
	var (
		records []models.DerivedRecord
		err     error
		title   = "All courses"
	)
	if tag == "" {
		records, err = s.store.AllRecords()
	} else {
		var course *models.Course
		if course, err = s.store.GetCourse(tag); err != nil || course == nil {
			return imagegen.CardData{}, false, err
		}
		title = course.Tag
		records, err = s.store.CourseRecords(tag)
	}
	if err != nil {
		return imagegen.CardData{}, false, err
	}

	overall := summary.Aggregate(records).Overall
	card := imagegen.CardData{
		Title:          title,
		Students:       overall.Students,
		MeanFinal:      overall.MeanFinalScore,
		MeanAttendance: overall.MeanAttendancePct,
	}
	for _, b := range summary.Bands(records) {
		card.Bands = append(card.Bands, imagegen.BandCount{Label: b.Label, Count: b.Count})
	}
	return card, true, nil
}

func (s *Server) background(theme imagegen.Theme) ([]byte, bool) {
	if s.imageCache == nil {
		return nil, false
	}
	return s.imageCache.Get(theme)
}

func (s *Server) generateAndCache(theme imagegen.Theme) {
	if s.imageGen == nil || s.imageCache == nil {
		return
	}
	if !s.genMu.TryLock() {
		return
	}
	defer s.genMu.Unlock()

	if _, ok := s.imageCache.Get(theme); ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	data, err := s.imageGen.Generate(ctx, theme)
	if err != nil {
		log.Error().Err(err).Str("theme", string(theme)).Msg("background generation failed")
		return
	}
	if err := s.imageCache.Set(theme, data); err != nil {
		log.Error().Err(err).Msg("cache background")
		return
	}
	s.cards.Invalidate()
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}

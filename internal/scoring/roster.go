package scoring

import (
	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/roster"
)

// OptionsFor takes the markers from a roster schema.
func OptionsFor(schema roster.Schema, p Policy) Options {
	opts := Options{
		Policy:        p,
		PresentMarker: schema.PresentMarker,
		ErrorSentinel: schema.ErrorSentinel,
	}
	if opts.Policy == "" {
		opts.Policy = PolicyZero
	}
	if opts.PresentMarker == "" {
		opts.PresentMarker = DefaultPresentMarker
	}
	if opts.ErrorSentinel == "" {
		opts.ErrorSentinel = DefaultErrorSentinel
	}
	return opts
}

// DeriveRoster derives every row of r and stamps it with the roster's tag.
func DeriveRoster(r *roster.Roster, p Policy) []models.DerivedRecord {
	return DeriveAll(r.Records, r.Tag, OptionsFor(r.Schema, p))
}

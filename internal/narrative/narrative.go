// Package narrative writes short commentary about a course or the whole
// school from derived records.
package narrative

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/summary"
)

// Thresholds for the counts called out in commentary.
const (
	PassingScore     = 4.0
	LowAttendancePct = 50.0
)

// Facts are the numbers commentary is written from.
type Facts struct {
	Scope          string // course tag or "all courses"
	Students       int
	MeanFinal      float64
	MeanAttendance float64
	Failing        int // rounded final below PassingScore
	LowAttendance  int // attendance below LowAttendancePct
	Undefined      int // named students with no final score
	Bands          []summary.Band
}

// FactsFor gathers facts for the named records in records.
func FactsFor(scope string, records []models.DerivedRecord) Facts {
	named := summary.Named(records)
	agg := summary.Aggregate(named)

	f := Facts{
		Scope:          scope,
		Students:       agg.Overall.Students,
		MeanFinal:      agg.Overall.MeanFinalScore,
		MeanAttendance: agg.Overall.MeanAttendancePct,
		Bands:          summary.Bands(named),
	}
	for _, r := range named {
		switch {
		case math.IsNaN(r.FinalScoreRounded):
			f.Undefined++
		case r.FinalScoreRounded < PassingScore:
			f.Failing++
		}
		if !math.IsNaN(r.AttendancePct) && r.AttendancePct < LowAttendancePct {
			f.LowAttendance++
		}
	}
	return f
}

// Writer turns facts into prose.
type Writer interface {
	Write(ctx context.Context, f Facts) (string, error)
}

// Template writes deterministic commentary without any external service.
type Template struct{}

func (Template) Write(_ context.Context, f Facts) (string, error) {
	if f.Students == 0 {
		return fmt.Sprintf("No named students in %s yet.", f.Scope), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d %s", capitalise(f.Scope), f.Students, plural(f.Students, "student", "students"))
	if math.IsNaN(f.MeanFinal) {
		b.WriteString(" and no final scores could be computed.")
	} else {
		fmt.Fprintf(&b, " with a mean final score of %.1f", f.MeanFinal)
		if !math.IsNaN(f.MeanAttendance) {
			fmt.Fprintf(&b, " and mean attendance of %.0f%%", f.MeanAttendance)
		}
		b.WriteString(".")
	}

	if f.Failing > 0 {
		fmt.Fprintf(&b, " %d %s below %.1f.", f.Failing, plural(f.Failing, "student is", "students are"), PassingScore)
	} else if !math.IsNaN(f.MeanFinal) {
		b.WriteString(" Every student with a score is passing.")
	}
	if f.LowAttendance > 0 {
		fmt.Fprintf(&b, " %d attended fewer than half of the sessions.", f.LowAttendance)
	}
	if f.Undefined > 0 {
		fmt.Fprintf(&b, " %d %s no final score.", f.Undefined, plural(f.Undefined, "has", "have"))
	}
	if top := topBand(f.Bands); top != "" {
		fmt.Fprintf(&b, " The most common band is %s.", top)
	}
	return b.String(), nil
}

func topBand(bands []summary.Band) string {
	best, label := 0, ""
	for _, b := range bands {
		if b.Count > best {
			best, label = b.Count, b.Label
		}
	}
	return label
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Fallback tries Primary and falls back to Secondary on any error.
type Fallback struct {
	Primary   Writer
	Secondary Writer
}

func (f Fallback) Write(ctx context.Context, facts Facts) (string, error) {
	if f.Primary != nil {
		text, err := f.Primary.Write(ctx, facts)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		log.Warn().Err(err).Str("scope", facts.Scope).Msg("narrative: primary writer failed, using fallback")
	}
	return f.Secondary.Write(ctx, facts)
}

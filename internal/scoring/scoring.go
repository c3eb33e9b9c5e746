// Package scoring turns raw roster rows into derived grade/attendance records.
//
// Every function here is pure: malformed cells degrade to absent values and an
// empty attendance denominator yields NaN, which then propagates through the
// final score instead of failing the row.
package scoring

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lox/rollbook/internal/models"
)

const (
	DefaultPresentMarker = "P"
	DefaultErrorSentinel = "#DIV/0!"
)

// Policy decides how an absent grade enters the average.
type Policy string

const (
	// PolicyZero fills absent grades with 0 before averaging.
	PolicyZero Policy = "zero"
	// PolicyExclude averages only the grades that are present.
	PolicyExclude Policy = "exclude"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyZero:
		return PolicyZero, nil
	case PolicyExclude:
		return PolicyExclude, nil
	}
	return "", fmt.Errorf("unknown absent grade policy %q (want zero or exclude)", s)
}

type Options struct {
	Policy        Policy
	PresentMarker string
	ErrorSentinel string
}

func DefaultOptions() Options {
	return Options{
		Policy:        PolicyZero,
		PresentMarker: DefaultPresentMarker,
		ErrorSentinel: DefaultErrorSentinel,
	}
}

// CleanGrade parses a raw grade cell. Decimal commas are accepted; the error
// sentinel, blanks and anything unparseable come back as absent.
func CleanGrade(raw, sentinel string) sql.NullFloat64 {
	s := strings.TrimSpace(raw)
	if s == "" || s == sentinel {
		return sql.NullFloat64{}
	}
	s = strings.ReplaceAll(s, ",", ".")
	if s == sentinel {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// ApplyPolicy returns the grade pair as it should be reported and averaged.
func ApplyPolicy(p Policy, g1, g2 sql.NullFloat64) (sql.NullFloat64, sql.NullFloat64, float64) {
	if p == PolicyZero {
		if !g1.Valid {
			g1 = sql.NullFloat64{Float64: 0, Valid: true}
		}
		if !g2.Valid {
			g2 = sql.NullFloat64{Float64: 0, Valid: true}
		}
		return g1, g2, (g1.Float64 + g2.Float64) / 2
	}

	var sum float64
	var n int
	for _, g := range []sql.NullFloat64{g1, g2} {
		if g.Valid {
			sum += g.Float64
			n++
		}
	}
	if n == 0 {
		return g1, g2, math.NaN()
	}
	return g1, g2, sum / float64(n)
}

// Tally is the attendance count for one student.
type Tally struct {
	Present int
	Total   int
	Pct     float64
}

// TallyAttendance counts exact matches of the present marker over the
// non-missing marks. Pct is NaN when no mark was recorded.
func TallyAttendance(marks []models.Mark, present string) Tally {
	var t Tally
	for _, m := range marks {
		if m.Missing {
			continue
		}
		t.Total++
		if m.Value == present {
			t.Present++
		}
	}
	if t.Total == 0 {
		t.Pct = math.NaN()
		return t
	}
	t.Pct = RoundTo(float64(t.Present)/float64(t.Total)*100, 2)
	return t
}

// Bonus maps an attendance percentage onto the 1-7 grade scale.
func Bonus(pct float64) float64 {
	switch {
	case math.IsNaN(pct):
		return 1
	case pct >= 80:
		return 7
	case pct >= 60:
		return 6 + (pct-60)/20
	case pct >= 40:
		return 5 + (pct-40)/20
	case pct >= 20:
		return 4 + (pct-20)/20
	default:
		return 1
	}
}

// FinalScore weights the grade average twice against the attendance bonus.
// The result is not clamped.
func FinalScore(average, bonus float64) (final, rounded float64) {
	final = (2*average + bonus) / 3
	return final, RoundTo(final, 1)
}

// RoundTo rounds half to even at the given number of decimals, matching
// how the dashboards have always displayed scores.
func RoundTo(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*p) / p
}

// Derive computes the derived record for one student.
func Derive(rec models.StudentRecord, tag string, opts Options) models.DerivedRecord {
	g1 := CleanGrade(rec.RawGrade1, opts.ErrorSentinel)
	g2 := CleanGrade(rec.RawGrade2, opts.ErrorSentinel)
	g1, g2, avg := ApplyPolicy(opts.Policy, g1, g2)

	tally := TallyAttendance(rec.Attendance, opts.PresentMarker)
	bonus := Bonus(tally.Pct)
	final, rounded := FinalScore(avg, bonus)

	return models.DerivedRecord{
		CourseTag:         tag,
		Row:               rec.Row,
		ID:                rec.ID,
		Name:              rec.Name,
		NameValid:         rec.NameValid,
		RawGrade1:         rec.RawGrade1,
		RawGrade2:         rec.RawGrade2,
		Grade1:            g1,
		Grade2:            g2,
		AverageGrade:      avg,
		PresentCount:      tally.Present,
		TotalCount:        tally.Total,
		AttendancePct:     tally.Pct,
		AttendanceBonus:   bonus,
		FinalScore:        final,
		FinalScoreRounded: rounded,
	}
}

// DeriveAll derives every record in order. Unnamed rows are kept.
func DeriveAll(recs []models.StudentRecord, tag string, opts Options) []models.DerivedRecord {
	out := make([]models.DerivedRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Derive(rec, tag, opts))
	}
	return out
}

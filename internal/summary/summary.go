// Package summary aggregates derived records into course and overall metrics
// and chart-ready series.
package summary

import (
	"math"
	"sort"

	"github.com/lox/rollbook/internal/models"
)

// Aggregate groups named records by course tag. Means skip NaN values and
// are NaN themselves when a group has no defined value.
func Aggregate(records []models.DerivedRecord) models.Summary {
	type acc struct {
		students   int
		final, pct mean
	}
	groups := make(map[string]*acc)
	var overall acc

	for _, r := range records {
		if !r.Named() {
			continue
		}
		g, ok := groups[r.CourseTag]
		if !ok {
			g = &acc{}
			groups[r.CourseTag] = g
		}
		for _, a := range []*acc{g, &overall} {
			a.students++
			a.final.add(r.FinalScoreRounded)
			a.pct.add(r.AttendancePct)
		}
	}

	s := models.Summary{
		Courses: make([]models.CourseSummary, 0, len(groups)),
		Overall: models.OverallSummary{
			Students:          overall.students,
			MeanFinalScore:    overall.final.value(),
			MeanAttendancePct: overall.pct.value(),
		},
	}
	for tag, g := range groups {
		s.Courses = append(s.Courses, models.CourseSummary{
			CourseTag:         tag,
			Students:          g.students,
			MeanFinalScore:    g.final.value(),
			MeanAttendancePct: g.pct.value(),
		})
	}
	sort.Slice(s.Courses, func(i, j int) bool {
		return s.Courses[i].CourseTag < s.Courses[j].CourseTag
	})
	return s
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.n++
}

func (m mean) value() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

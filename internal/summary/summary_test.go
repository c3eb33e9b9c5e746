package summary

import (
	"database/sql"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rollbook/internal/models"
)

func rec(tag, name string, final, pct float64) models.DerivedRecord {
	return models.DerivedRecord{
		CourseTag:         tag,
		Name:              name,
		NameValid:         name != "",
		FinalScoreRounded: final,
		AttendancePct:     pct,
		AverageGrade:      final,
		Grade1:            sql.NullFloat64{Float64: final, Valid: true},
	}
}

func TestAggregate_TwoRosters(t *testing.T) {
	s := Aggregate([]models.DerivedRecord{
		rec("courseA", "Ana", 6.2, 80),
		rec("courseB", "Luis", 4.0, 50),
	})

	require.Len(t, s.Courses, 2)
	a, ok := s.Course("courseA")
	require.True(t, ok)
	assert.Equal(t, 6.2, a.MeanFinalScore)
	assert.Equal(t, 80.0, a.MeanAttendancePct)
	assert.Equal(t, 1, a.Students)

	b, ok := s.Course("courseB")
	require.True(t, ok)
	assert.Equal(t, 4.0, b.MeanFinalScore)
	assert.Equal(t, 50.0, b.MeanAttendancePct)

	assert.InDelta(t, 5.1, s.Overall.MeanFinalScore, 1e-12)
	assert.Equal(t, 65.0, s.Overall.MeanAttendancePct)
	assert.Equal(t, 2, s.Overall.Students)

	_, ok = s.Course("courseC")
	assert.False(t, ok)
}

func TestAggregate_SkipsUnnamedAndNaN(t *testing.T) {
	s := Aggregate([]models.DerivedRecord{
		rec("4A", "Ana", 6, 100),
		rec("4A", "Luis", 4, math.NaN()),
		rec("4A", "", 1, 0),
	})

	require.Len(t, s.Courses, 1)
	c := s.Courses[0]
	assert.Equal(t, 2, c.Students)
	assert.Equal(t, 5.0, c.MeanFinalScore)
	assert.Equal(t, 100.0, c.MeanAttendancePct)
}

func TestAggregate_AllUndefined(t *testing.T) {
	s := Aggregate([]models.DerivedRecord{rec("4A", "Ana", math.NaN(), math.NaN())})
	require.Len(t, s.Courses, 1)
	assert.True(t, math.IsNaN(s.Courses[0].MeanFinalScore))
	assert.True(t, math.IsNaN(s.Overall.MeanAttendancePct))

	empty := Aggregate(nil)
	assert.Empty(t, empty.Courses)
	assert.True(t, math.IsNaN(empty.Overall.MeanFinalScore))
}

func TestAggregate_OrderIndependent(t *testing.T) {
	recs := []models.DerivedRecord{
		rec("b", "x", 5, 60),
		rec("a", "y", 6, 70),
		rec("b", "z", 3, 20),
	}
	reversed := []models.DerivedRecord{recs[2], recs[1], recs[0]}
	assert.Equal(t, Aggregate(recs), Aggregate(reversed))
	assert.Equal(t, "a", Aggregate(recs).Courses[0].CourseTag)
}

func TestBands(t *testing.T) {
	recs := []models.DerivedRecord{
		rec("c", "a", 1.0, 0),
		rec("c", "b", 3.8, 0),
		rec("c", "c", 3.9, 0),
		rec("c", "d", 5.5, 0),
		rec("c", "e", 6.9, 0),
		rec("c", "f", 7.0, 0),
		rec("c", "g", 0.3, 0),
		rec("c", "h", math.NaN(), 0),
		rec("c", "", 5.0, 0),
	}
	bands := Bands(recs)
	require.Len(t, bands, 5)

	counts := map[string]int{}
	for _, b := range bands {
		counts[b.Label] = b.Count
	}
	assert.Equal(t, 2, counts["<4"])
	assert.Equal(t, 1, counts["4.0–4.9"])
	assert.Equal(t, 1, counts["5.0–5.9"])
	assert.Equal(t, 0, counts["6.0–6.9"])
	assert.Equal(t, 2, counts["7.0"])
}

func TestHistogram(t *testing.T) {
	bins := Histogram([]float64{1, 2, 3, 4, 5, 6, 7, math.NaN()}, 3)
	require.Len(t, bins, 3)
	assert.Equal(t, 1.0, bins[0].Lo)
	assert.Equal(t, 7.0, bins[2].Hi)
	assert.Equal(t, 2, bins[0].Count)
	assert.Equal(t, 2, bins[1].Count)
	assert.Equal(t, 3, bins[2].Count, "max value lands in the closed last bin")

	single := Histogram([]float64{5, 5}, 7)
	require.Len(t, single, 7)
	total := 0
	for _, b := range single {
		total += b.Count
	}
	assert.Equal(t, 2, total)

	assert.Nil(t, Histogram([]float64{math.NaN()}, 7))
}

func TestFilters(t *testing.T) {
	recs := []models.DerivedRecord{
		rec("4A", "Ana", 6, 90),
		rec("4B", "ana", 5, 70),
		rec("4A", "", 1, 0),
		rec("4B", "Luis", 4, 40),
	}

	assert.Len(t, Named(recs), 3)
	assert.Len(t, ByCourse(recs, "4A"), 1)
	assert.Len(t, ByStudent(recs, " ANA "), 2)
	assert.Nil(t, ByStudent(recs, ""))
	assert.Equal(t, []string{"4A", "4B"}, Tags(recs))
	assert.Equal(t, []string{"Ana", "ana", "Luis"}, Students(recs))
}

func TestChartsFor(t *testing.T) {
	absent := rec("4A", "Luis", math.NaN(), math.NaN())
	absent.Grade1 = sql.NullFloat64{}
	c := ChartsFor([]models.DerivedRecord{
		rec("4A", "Ana", 6.2, 80),
		absent,
		rec("4A", "", 5, 50),
	})

	assert.Equal(t, []string{"Ana"}, c.Finals.Labels)
	assert.Equal(t, []string{"Ana"}, c.Attendance.Labels)
	require.Len(t, c.Scatter, 1)
	assert.Equal(t, Point{Label: "Ana", X: 80, Y: 6.2}, c.Scatter[0])

	assert.Equal(t, []string{"Ana", "Luis"}, c.Grades.Labels)
	require.NotNil(t, c.Grades.Grade1[0])
	assert.Nil(t, c.Grades.Grade1[1])
	assert.Len(t, c.Histogram, HistogramBins)
}

func TestCourseBars(t *testing.T) {
	s := Aggregate([]models.DerivedRecord{
		rec("4A", "Ana", 6, 80),
		rec("4B", "Luis", math.NaN(), 50),
	})
	final, att := CourseBars(s)
	assert.Equal(t, []string{"4A"}, final.Labels)
	assert.Equal(t, []string{"4A", "4B"}, att.Labels)
}

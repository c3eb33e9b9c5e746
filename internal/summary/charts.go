package summary

import (
	"math"

	"github.com/lox/rollbook/internal/models"
)

// Series is one bar/line dataset for the browser charts. Only defined
// values of named records are included.
type Series struct {
	Name   string    `json:"name"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Color  string    `json:"color"`
}

// Point is one student on the attendance vs final score scatter.
type Point struct {
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// GradeComparison pairs both grades per student; nil marks an absent grade.
type GradeComparison struct {
	Labels []string   `json:"labels"`
	Grade1 []*float64 `json:"grade1"`
	Grade2 []*float64 `json:"grade2"`
}

type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

type Band struct {
	Label string  `json:"label"`
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// CourseCharts bundles every dataset shown on a course page.
type CourseCharts struct {
	Averages   Series          `json:"averages"`
	Attendance Series          `json:"attendance"`
	Finals     Series          `json:"finals"`
	Grades     GradeComparison `json:"grades"`
	Scatter    []Point         `json:"scatter"`
	Histogram  []Bin           `json:"histogram"`
	Bands      []Band          `json:"bands"`
}

const HistogramBins = 7

// Left-closed edges; 3.9 falls in the second band.
var (
	bandEdges  = []float64{1, 3.9, 4.9, 5.9, 6.9, 7.1}
	bandLabels = []string{"<4", "4.0–4.9", "5.0–5.9", "6.0–6.9", "7.0"}
)

// Bands counts rounded final scores per grade band. Values outside the
// edges and NaN are not counted.
func Bands(records []models.DerivedRecord) []Band {
	bands := make([]Band, len(bandLabels))
	for i := range bands {
		bands[i] = Band{Label: bandLabels[i], Lo: bandEdges[i], Hi: bandEdges[i+1]}
	}
	for _, r := range records {
		if !r.Named() {
			continue
		}
		v := r.FinalScoreRounded
		for i := range bands {
			if v >= bands[i].Lo && v < bands[i].Hi {
				bands[i].Count++
				break
			}
		}
	}
	return bands
}

// Histogram splits the defined values into equal-width bins between their
// min and max. The last bin is closed on the right.
func Histogram(values []float64, bins int) []Bin {
	if bins <= 0 {
		return nil
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	var defined []float64
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		defined = append(defined, v)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if len(defined) == 0 {
		return nil
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lo: lo + float64(i)*width, Hi: lo + float64(i+1)*width}
	}
	out[bins-1].Hi = hi
	for _, v := range defined {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		out[idx].Count++
	}
	return out
}

// ChartsFor builds the course page datasets from one course's records.
func ChartsFor(records []models.DerivedRecord) CourseCharts {
	named := Named(records)
	c := CourseCharts{
		Averages:   Series{Name: "Promedio", Color: "#87ceeb"},
		Attendance: Series{Name: "% Asistencia", Color: "#2e7d32"},
		Finals:     Series{Name: "Promedio final", Color: "#f08080"},
		Scatter:    []Point{},
		Bands:      Bands(named),
	}

	var finals []float64
	for _, r := range named {
		if !math.IsNaN(r.AverageGrade) {
			c.Averages.Labels = append(c.Averages.Labels, r.Name)
			c.Averages.Values = append(c.Averages.Values, r.AverageGrade)
		}
		if !math.IsNaN(r.AttendancePct) {
			c.Attendance.Labels = append(c.Attendance.Labels, r.Name)
			c.Attendance.Values = append(c.Attendance.Values, r.AttendancePct)
		}
		if !math.IsNaN(r.FinalScoreRounded) {
			c.Finals.Labels = append(c.Finals.Labels, r.Name)
			c.Finals.Values = append(c.Finals.Values, r.FinalScoreRounded)
			finals = append(finals, r.FinalScoreRounded)
		}
		if !math.IsNaN(r.AttendancePct) && !math.IsNaN(r.FinalScoreRounded) {
			c.Scatter = append(c.Scatter, Point{Label: r.Name, X: r.AttendancePct, Y: r.FinalScoreRounded})
		}
		c.Grades.Labels = append(c.Grades.Labels, r.Name)
		c.Grades.Grade1 = append(c.Grades.Grade1, gradePtr(r.Grade1.Float64, r.Grade1.Valid))
		c.Grades.Grade2 = append(c.Grades.Grade2, gradePtr(r.Grade2.Float64, r.Grade2.Valid))
	}
	c.Histogram = Histogram(finals, HistogramBins)
	return c
}

// CourseBars returns the per-course mean final score and attendance series.
func CourseBars(s models.Summary) (final, attendance Series) {
	final = Series{Name: "Promedio final", Color: "#87ceeb"}
	attendance = Series{Name: "% Asistencia", Color: "#2e7d32"}
	for _, c := range s.Courses {
		if !math.IsNaN(c.MeanFinalScore) {
			final.Labels = append(final.Labels, c.CourseTag)
			final.Values = append(final.Values, c.MeanFinalScore)
		}
		if !math.IsNaN(c.MeanAttendancePct) {
			attendance.Labels = append(attendance.Labels, c.CourseTag)
			attendance.Values = append(attendance.Values, c.MeanAttendancePct)
		}
	}
	return final, attendance
}

func gradePtr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// Package report renders derived records and summaries as terminal tables,
// CSV or JSON.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/lox/rollbook/internal/models"
)

type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatCSV, FormatJSON:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// RecordView is the JSON shape of a derived record. Undefined values are null.
type RecordView struct {
	Course          string   `json:"course"`
	Row             int      `json:"row"`
	ID              string   `json:"id"`
	Name            *string  `json:"name"`
	Grade1          *float64 `json:"grade1"`
	Grade2          *float64 `json:"grade2"`
	AverageGrade    *float64 `json:"average_grade"`
	Present         int      `json:"present"`
	Sessions        int      `json:"sessions"`
	AttendancePct   *float64 `json:"attendance_pct"`
	AttendanceBonus float64  `json:"attendance_bonus"`
	FinalScore      *float64 `json:"final_score"`
	FinalRounded    *float64 `json:"final_score_rounded"`
	Flags           []string `json:"flags,omitempty"`
}

type CourseView struct {
	Course            string   `json:"course"`
	Students          int      `json:"students"`
	MeanFinalScore    *float64 `json:"mean_final_score"`
	MeanAttendancePct *float64 `json:"mean_attendance_pct"`
}

type SummaryView struct {
	Courses []CourseView `json:"courses"`
	Overall CourseView   `json:"overall"`
}

// Ptr returns nil for NaN and infinities.
func Ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func RecordViewOf(r models.DerivedRecord) RecordView {
	v := RecordView{
		Course:          r.CourseTag,
		Row:             r.Row,
		ID:              r.ID,
		Present:         r.PresentCount,
		Sessions:        r.TotalCount,
		AverageGrade:    Ptr(r.AverageGrade),
		AttendancePct:   Ptr(r.AttendancePct),
		AttendanceBonus: r.AttendanceBonus,
		FinalScore:      Ptr(r.FinalScore),
		FinalRounded:    Ptr(r.FinalScoreRounded),
	}
	if r.NameValid {
		name := r.Name
		v.Name = &name
	}
	if r.Grade1.Valid {
		v.Grade1 = Ptr(r.Grade1.Float64)
	}
	if r.Grade2.Valid {
		v.Grade2 = Ptr(r.Grade2.Float64)
	}
	return v
}

func RecordViews(records []models.DerivedRecord) []RecordView {
	out := make([]RecordView, 0, len(records))
	for _, r := range records {
		out = append(out, RecordViewOf(r))
	}
	return out
}

func SummaryViewOf(s models.Summary) SummaryView {
	v := SummaryView{
		Courses: make([]CourseView, 0, len(s.Courses)),
		Overall: CourseView{
			Course:            "all",
			Students:          s.Overall.Students,
			MeanFinalScore:    Ptr(s.Overall.MeanFinalScore),
			MeanAttendancePct: Ptr(s.Overall.MeanAttendancePct),
		},
	}
	for _, c := range s.Courses {
		v.Courses = append(v.Courses, CourseView{
			Course:            c.CourseTag,
			Students:          c.Students,
			MeanFinalScore:    Ptr(c.MeanFinalScore),
			MeanAttendancePct: Ptr(c.MeanAttendancePct),
		})
	}
	return v
}

var recordHeader = []string{"Course", "N°", "Name", "Grade 1", "Grade 2", "Average", "Present", "Sessions", "Attendance %", "Bonus", "Final", "Final (1dp)"}

func recordRow(r models.DerivedRecord, blank string) []string {
	name := r.Name
	if !r.NameValid {
		name = blank
	}
	return []string{
		r.CourseTag,
		r.ID,
		name,
		nullNum(r.Grade1.Float64, r.Grade1.Valid, 2, blank),
		nullNum(r.Grade2.Float64, r.Grade2.Valid, 2, blank),
		Num(r.AverageGrade, 2, blank),
		strconv.Itoa(r.PresentCount),
		strconv.Itoa(r.TotalCount),
		Num(r.AttendancePct, 2, blank),
		Num(r.AttendanceBonus, 2, blank),
		Num(r.FinalScore, 4, blank),
		Num(r.FinalScoreRounded, 1, blank),
	}
}

// Num formats v with the given decimals, or blank when undefined.
func Num(v float64, decimals int, blank string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return blank
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

func nullNum(v float64, ok bool, decimals int, blank string) string {
	if !ok {
		return blank
	}
	return Num(v, decimals, blank)
}

// WriteRecords renders one row per derived record.
func WriteRecords(w io.Writer, format Format, records []models.DerivedRecord) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, RecordViews(records))
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(recordHeader); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write(recordRow(r, "")); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		table := tablewriter.NewWriter(w)
		table.SetHeader(recordHeader)
		for _, r := range records {
			table.Append(recordRow(r, "-"))
		}
		table.Render()
		return nil
	}
}

var summaryHeader = []string{"Course", "Students", "Mean final", "Mean attendance %"}

func summaryRows(s models.Summary, blank string) [][]string {
	rows := make([][]string, 0, len(s.Courses)+1)
	for _, c := range s.Courses {
		rows = append(rows, []string{c.CourseTag, strconv.Itoa(c.Students), Num(c.MeanFinalScore, 2, blank), Num(c.MeanAttendancePct, 2, blank)})
	}
	return rows
}

func overallRow(s models.Summary, blank string) []string {
	return []string{"All", strconv.Itoa(s.Overall.Students), Num(s.Overall.MeanFinalScore, 2, blank), Num(s.Overall.MeanAttendancePct, 2, blank)}
}

// WriteSummary renders per-course means followed by the overall line.
func WriteSummary(w io.Writer, format Format, s models.Summary) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, SummaryViewOf(s))
	case FormatCSV:
		cw := csv.NewWriter(w)
		cw.Write(summaryHeader)
		for _, row := range summaryRows(s, "") {
			cw.Write(row)
		}
		cw.Write(overallRow(s, ""))
		cw.Flush()
		return cw.Error()
	default:
		table := tablewriter.NewWriter(w)
		table.SetHeader(summaryHeader)
		table.AppendBulk(summaryRows(s, "-"))
		table.SetFooter(overallRow(s, "-"))
		table.Render()
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

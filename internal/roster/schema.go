package roster

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingColumn is matched by every StructuralError.
var ErrMissingColumn = errors.New("missing required column")

// Category names the kind of column a roster lacks.
type Category string

const (
	CategoryName       Category = "name"
	CategoryGrades     Category = "grades"
	CategoryAttendance Category = "attendance"
)

// StructuralError reports a roster that cannot be processed at all.
type StructuralError struct {
	Source   string
	Category Category
	Columns  []string // the expected header names that were not found
}

func (e *StructuralError) Error() string {
	if len(e.Columns) == 0 {
		return fmt.Sprintf("roster %s: missing %s columns", e.Source, e.Category)
	}
	return fmt.Sprintf("roster %s: missing %s columns %q", e.Source, e.Category, e.Columns)
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrMissingColumn
}

// Schema names the columns a roster is expected to carry.
type Schema struct {
	IDColumn         string
	NameColumn       string
	GradeColumns     [2]string
	AttendancePrefix string
	PresentMarker    string
	ErrorSentinel    string
}

func DefaultSchema() Schema {
	return Schema{
		IDColumn:         "N°",
		NameColumn:       "NOMBRES",
		GradeColumns:     [2]string{"nota1", "nota 2"},
		AttendancePrefix: "asistencia",
		PresentMarker:    "P",
		ErrorSentinel:    "#DIV/0!",
	}
}

// Descriptor is the result of scanning a header once: where each field
// lives in a row. ID is -1 when the roster has no id column.
type Descriptor struct {
	ID                int
	Name              int
	Grades            [2]int
	Attendance        []int
	AttendanceColumns []string
	Width             int
}

// Detect scans header and locates the schema's columns.
func (s Schema) Detect(source string, header []string) (Descriptor, error) {
	d := Descriptor{ID: -1, Name: -1, Grades: [2]int{-1, -1}, Width: len(header)}

	for i, raw := range header {
		col := normalizeHeader(raw)
		switch {
		case col == s.IDColumn && d.ID < 0:
			d.ID = i
		case col == s.NameColumn && d.Name < 0:
			d.Name = i
		case col == s.GradeColumns[0] && d.Grades[0] < 0:
			d.Grades[0] = i
		case col == s.GradeColumns[1] && d.Grades[1] < 0:
			d.Grades[1] = i
		case s.AttendancePrefix != "" && strings.HasPrefix(col, s.AttendancePrefix):
			d.Attendance = append(d.Attendance, i)
			d.AttendanceColumns = append(d.AttendanceColumns, col)
		}
	}

	if d.Name < 0 {
		return d, &StructuralError{Source: source, Category: CategoryName, Columns: []string{s.NameColumn}}
	}
	var missing []string
	for i, idx := range d.Grades {
		if idx < 0 {
			missing = append(missing, s.GradeColumns[i])
		}
	}
	if len(missing) > 0 {
		return d, &StructuralError{Source: source, Category: CategoryGrades, Columns: missing}
	}
	if len(d.Attendance) == 0 {
		return d, &StructuralError{Source: source, Category: CategoryAttendance, Columns: []string{s.AttendancePrefix + "*"}}
	}
	return d, nil
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimSpace(s)
}

var missingTokens = map[string]bool{
	"":         true,
	"NA":       true,
	"#NA":      true,
	"N/A":      true,
	"n/a":      true,
	"#N/A":     true,
	"#N/A N/A": true,
	"NaN":      true,
	"nan":      true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"-1.#IND":  true,
	"1.#QNAN":  true,
	"-1.#QNAN": true,
	"NULL":     true,
	"null":     true,
	"None":     true,
	"<NA>":     true,
}

// IsMissing reports whether a cell carries no recorded value.
func IsMissing(cell string) bool {
	return missingTokens[cell]
}

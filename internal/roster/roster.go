// Package roster reads course rosters into typed student records.
package roster

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lox/rollbook/internal/models"
)

// Roster is one course table after schema detection.
type Roster struct {
	Source     string
	Tag        string
	Schema     Schema
	Descriptor Descriptor
	Records    []models.StudentRecord
}

// CourseTag derives the provenance label for a roster from its source name.
func CourseTag(source string) string {
	base := filepath.Base(strings.ReplaceAll(source, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse builds a roster from an already split table.
func Parse(source string, header []string, rows [][]string, schema Schema) (*Roster, error) {
	desc, err := schema.Detect(source, header)
	if err != nil {
		return nil, err
	}

	r := &Roster{
		Source:     source,
		Tag:        CourseTag(source),
		Schema:     schema,
		Descriptor: desc,
		Records:    make([]models.StudentRecord, 0, len(rows)),
	}
	for i, row := range rows {
		r.Records = append(r.Records, desc.record(i, row))
	}
	return r, nil
}

func (d Descriptor) record(i int, row []string) models.StudentRecord {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	rec := models.StudentRecord{
		Row:        i,
		ID:         strconv.Itoa(i + 1),
		RawGrade1:  cell(d.Grades[0]),
		RawGrade2:  cell(d.Grades[1]),
		Attendance: make([]models.Mark, len(d.Attendance)),
	}
	if d.ID >= 0 {
		if id := strings.TrimSpace(cell(d.ID)); !IsMissing(id) {
			rec.ID = id
		}
	}
	name := cell(d.Name)
	if !IsMissing(name) && strings.TrimSpace(name) != "" {
		rec.Name = strings.TrimSpace(name)
		rec.NameValid = true
	}
	for j, idx := range d.Attendance {
		v := cell(idx)
		rec.Attendance[j] = models.Mark{Value: v, Missing: IsMissing(v)}
	}
	return rec
}

// Read dispatches on the source extension.
func Read(source string, r io.Reader, schema Schema) (*Roster, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(source, r, schema)
	default:
		return ReadCSV(source, r, schema)
	}
}

// ReadCSV reads a comma or semicolon separated roster.
func ReadCSV(source string, r io.Reader, schema Schema) (*Roster, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	table, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", source, err)
	}
	if len(table) == 0 {
		return nil, &StructuralError{Source: source, Category: CategoryName, Columns: []string{schema.NameColumn}}
	}
	return Parse(source, table[0], table[1:], schema)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(source string, r io.Reader, schema Schema) (*Roster, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", source, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", source)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s/%s: %w", source, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, &StructuralError{Source: source, Category: CategoryName, Columns: []string{schema.NameColumn}}
	}
	return Parse(source, rows[0], rows[1:], schema)
}

// detectDelimiter looks at the header line only. Spreadsheet exports from
// locales with a decimal comma use semicolons.
func detectDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	if strings.Count(line, "\t") > strings.Count(line, ",") {
		return '\t'
	}
	return ','
}

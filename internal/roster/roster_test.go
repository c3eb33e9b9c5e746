package roster

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCourseTag(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"4A.csv", "4A"},
		{"uploads/3B.xlsx", "3B"},
		{`C:\rosters\2C.csv`, "2C"},
		{"curso.2024.csv", "curso.2024"},
		{"4A.v2.csv", "4A.v2"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, CourseTag(tt.source))
		})
	}
}

func TestDetect(t *testing.T) {
	s := DefaultSchema()
	header := []string{"\ufeffN°", "NOMBRES ", "nota1", "nota 2", "asistencia 1", "otro", "asistencia 2"}

	d, err := s.Detect("4A.csv", header)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ID)
	assert.Equal(t, 1, d.Name)
	assert.Equal(t, [2]int{2, 3}, d.Grades)
	assert.Equal(t, []int{4, 6}, d.Attendance)
	assert.Equal(t, []string{"asistencia 1", "asistencia 2"}, d.AttendanceColumns)
}

func TestDetect_Missing(t *testing.T) {
	s := DefaultSchema()
	tests := []struct {
		name   string
		header []string
		want   Category
	}{
		{"no name", []string{"nota1", "nota 2", "asistencia1"}, CategoryName},
		{"one grade", []string{"NOMBRES", "nota1", "asistencia1"}, CategoryGrades},
		{"no attendance", []string{"NOMBRES", "nota1", "nota 2"}, CategoryAttendance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Detect("bad.csv", tt.header)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingColumn))

			var se *StructuralError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.want, se.Category)
			assert.Equal(t, "bad.csv", se.Source)
		})
	}
}

func TestReadCSV(t *testing.T) {
	data := strings.Join([]string{
		"N°,NOMBRES,nota1,nota 2,asistencia1,asistencia2,asistencia3",
		`1,Ana,"6,0",5.5,P,A,`,
		`2,,#DIV/0!,4,P`,
		`,Luis,NA,,,,`,
	}, "\n")

	r, err := ReadCSV("4A.csv", strings.NewReader(data), DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, "4A", r.Tag)
	require.Len(t, r.Records, 3)

	ana := r.Records[0]
	assert.Equal(t, "1", ana.ID)
	assert.Equal(t, "Ana", ana.Name)
	assert.True(t, ana.NameValid)
	assert.Equal(t, "6,0", ana.RawGrade1)
	assert.Equal(t, "5.5", ana.RawGrade2)
	require.Len(t, ana.Attendance, 3)
	assert.False(t, ana.Attendance[0].Missing)
	assert.True(t, ana.Attendance[2].Missing)

	short := r.Records[1]
	assert.False(t, short.NameValid)
	assert.True(t, short.Attendance[1].Missing, "short rows pad as missing")

	luis := r.Records[2]
	assert.Equal(t, "3", luis.ID, "row number when id cell is empty")
	assert.True(t, luis.NameValid)
}

func TestIsMissing(t *testing.T) {
	for _, cell := range []string{"", "NA", "#NA", "N/A", "n/a", "#N/A", "#N/A N/A", "NaN", "nan",
		"-NaN", "-nan", "1.#IND", "-1.#IND", "1.#QNAN", "-1.#QNAN", "NULL", "null", "None", "<NA>"} {
		assert.True(t, IsMissing(cell), "%q", cell)
	}
	for _, cell := range []string{"P", "A", "0", "na", "-", "#DIV/0!"} {
		assert.False(t, IsMissing(cell), "%q", cell)
	}
}

func TestReadCSV_SpreadsheetMissingMarkers(t *testing.T) {
	data := strings.Join([]string{
		"NOMBRES,nota1,nota 2,asistencia1,asistencia2,asistencia3,asistencia4,asistencia5,asistencia6",
		"Ana,6,5,P,#NA,-1.#IND,1.#QNAN,#N/A N/A,-nan",
	}, "\n")

	r, err := ReadCSV("4A.csv", strings.NewReader(data), DefaultSchema())
	require.NoError(t, err)
	require.Len(t, r.Records, 1)

	marks := r.Records[0].Attendance
	require.Len(t, marks, 6)
	assert.False(t, marks[0].Missing)
	for _, m := range marks[1:] {
		assert.True(t, m.Missing, "%q", m.Value)
	}
}

func TestReadCSV_Semicolon(t *testing.T) {
	data := "NOMBRES;nota1;nota 2;asistencia1\nAna;6,5;5,5;P\n"
	r, err := ReadCSV("3B.csv", strings.NewReader(data), DefaultSchema())
	require.NoError(t, err)
	require.Len(t, r.Records, 1)
	assert.Equal(t, "6,5", r.Records[0].RawGrade1)
	assert.Equal(t, -1, r.Descriptor.ID)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV("empty.csv", strings.NewReader(""), DefaultSchema())
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"N°", "NOMBRES", "nota1", "nota 2", "asistencia1", "asistencia2"},
		{1, "Ana", 6.5, "#DIV/0!", "P", "A"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	r, err := Read("2C.xlsx", &buf, DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, "2C", r.Tag)
	require.Len(t, r.Records, 1)
	assert.Equal(t, "Ana", r.Records[0].Name)
	assert.Equal(t, "6.5", r.Records[0].RawGrade1)
	assert.Equal(t, "#DIV/0!", r.Records[0].RawGrade2)
	assert.Equal(t, "P", r.Records[0].Attendance[0].Value)
}

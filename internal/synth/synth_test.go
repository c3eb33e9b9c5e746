package synth

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rollbook/internal/roster"
)

func TestRows_Deterministic(t *testing.T) {
	schema := roster.DefaultSchema()
	h1, r1 := Rows(42, 30, 12, schema)
	h2, r2 := Rows(42, 30, 12, schema)
	assert.Equal(t, h1, h2)
	assert.Equal(t, r1, r2)

	_, r3 := Rows(43, 30, 12, schema)
	assert.NotEqual(t, r1, r3)
}

func TestRows_Shape(t *testing.T) {
	header, rows := Rows(7, 10, 5, roster.DefaultSchema())
	require.Len(t, header, 9)
	assert.Equal(t, "asistencia5", header[8])
	require.Len(t, rows, 10)
	for _, row := range rows {
		assert.Len(t, row, len(header))
	}
}

func TestRoster(t *testing.T) {
	r := Roster("demo", 1, 25, 8)
	assert.Equal(t, "demo", r.Tag)
	require.Len(t, r.Records, 25)
	assert.Len(t, r.Descriptor.Attendance, 8)
}

func TestCSV_RoundTrip(t *testing.T) {
	data := CSV(9, 12, 6, roster.DefaultSchema())
	r, err := roster.ReadCSV("9B.csv", bytes.NewReader(data), roster.DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, "9B", r.Tag)
	assert.Len(t, r.Records, 12)
}

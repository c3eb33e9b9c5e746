// Package synth generates seeded roster fixtures for tests and demos.
package synth

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/lox/rollbook/internal/roster"
)

var (
	firstNames = []string{"Ana", "Luis", "Pedro", "Marta", "Camila", "Diego", "Sofía", "Matías", "Valentina", "Benjamín", "Isidora", "Tomás", "Josefa", "Vicente", "Fernanda", "Joaquín"}
	lastNames  = []string{"Rojas", "Soto", "Díaz", "Paz", "Muñoz", "González", "Contreras", "Silva", "Morales", "Fuentes", "Reyes", "Castillo"}
)

// Rows returns a roster table in the shape of schema. The same seed always
// yields the same table. Some cells are deliberately messy: decimal commas,
// the error sentinel, blank names and missing attendance marks.
func Rows(seed uint64, students, sessions int, schema roster.Schema) (header []string, rows [][]string) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	header = []string{schema.IDColumn, schema.NameColumn, schema.GradeColumns[0], schema.GradeColumns[1]}
	for s := 1; s <= sessions; s++ {
		header = append(header, fmt.Sprintf("%s%d", schema.AttendancePrefix, s))
	}

	for i := 0; i < students; i++ {
		// each student has a latent ability and attendance habit
		ability := 2.5 + rng.Float64()*4.5
		habit := 0.3 + rng.Float64()*0.7

		row := []string{strconv.Itoa(i + 1), name(rng)}
		if rng.IntN(20) == 0 {
			row[1] = ""
		}
		row = append(row, grade(rng, ability, schema.ErrorSentinel), grade(rng, ability, schema.ErrorSentinel))

		for s := 0; s < sessions; s++ {
			switch {
			case rng.IntN(25) == 0:
				row = append(row, "")
			case rng.Float64() < habit:
				row = append(row, schema.PresentMarker)
			default:
				row = append(row, "A")
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

func name(rng *rand.Rand) string {
	return firstNames[rng.IntN(len(firstNames))] + " " + lastNames[rng.IntN(len(lastNames))]
}

func grade(rng *rand.Rand, ability float64, sentinel string) string {
	if rng.IntN(15) == 0 {
		return sentinel
	}
	g := ability + rng.NormFloat64()*0.6
	g = min(7, max(1, g))
	s := strconv.FormatFloat(g, 'f', 1, 64)
	if rng.IntN(2) == 0 {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}

// Roster returns a parsed roster for the default schema tagged with tag.
func Roster(tag string, seed uint64, students, sessions int) *roster.Roster {
	schema := roster.DefaultSchema()
	header, rows := Rows(seed, students, sessions, schema)
	r, err := roster.Parse(tag+".csv", header, rows, schema)
	if err != nil {
		// generated headers always satisfy the schema
		panic(err)
	}
	return r
}

// CSV renders a generated roster as CSV bytes.
func CSV(seed uint64, students, sessions int, schema roster.Schema) []byte {
	header, rows := Rows(seed, students, sessions, schema)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(header)
	w.WriteAll(rows)
	return buf.Bytes()
}

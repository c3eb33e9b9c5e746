package ingest

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/roster"
	"github.com/lox/rollbook/internal/scoring"
)

const (
	FlagNameMissing      = "name_missing"
	FlagGradeUnparseable = "grade_unparseable"
	FlagGradeOutOfRange  = "grade_out_of_range"
	FlagNoAttendance     = "no_attendance"
	FlagFinalOutOfRange  = "final_out_of_range"
	FlagFinalUndefined   = "final_undefined"
)

// Conventional grading scale. Values outside it are flagged, never clamped.
const (
	minGrade = 1.0
	maxGrade = 7.0
)

// ValidateRecord returns data-quality flags for a derived record.
func ValidateRecord(r models.DerivedRecord, sentinel string) []string {
	var flags []string

	if !r.NameValid {
		flags = append(flags, FlagNameMissing)
	}

	unparseable, outOfRange := false, false
	for _, raw := range []string{r.RawGrade1, r.RawGrade2} {
		raw = strings.TrimSpace(raw)
		g := scoring.CleanGrade(raw, sentinel)
		if !g.Valid && raw != sentinel && !roster.IsMissing(raw) {
			unparseable = true
		}
		if g.Valid && (g.Float64 < minGrade || g.Float64 > maxGrade) {
			outOfRange = true
		}
	}
	if unparseable {
		flags = append(flags, FlagGradeUnparseable)
	}
	if outOfRange {
		flags = append(flags, FlagGradeOutOfRange)
	}

	if r.TotalCount == 0 {
		flags = append(flags, FlagNoAttendance)
	}

	switch {
	case math.IsNaN(r.FinalScore):
		flags = append(flags, FlagFinalUndefined)
	case r.FinalScore < 0 || r.FinalScore > maxGrade:
		flags = append(flags, FlagFinalOutOfRange)
	}

	return flags
}

// CountFlags tallies flags across records, keyed by flag name.
func CountFlags(records []models.DerivedRecord, sentinel string) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		for _, f := range ValidateRecord(r, sentinel) {
			counts[f]++
		}
	}
	return counts
}

// FlagCountsJSON encodes counts for the ingest run audit; empty counts
// encode as "".
func FlagCountsJSON(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	b, err := json.Marshal(counts)
	if err != nil {
		return ""
	}
	return string(b)
}

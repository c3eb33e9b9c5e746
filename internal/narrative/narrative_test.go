package narrative

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rollbook/internal/models"
)

func rec(name string, final, pct float64) models.DerivedRecord {
	return models.DerivedRecord{
		CourseTag:         "4A",
		Name:              name,
		NameValid:         name != "",
		FinalScoreRounded: final,
		AttendancePct:     pct,
	}
}

func TestFactsFor(t *testing.T) {
	f := FactsFor("4A", []models.DerivedRecord{
		rec("Ana", 6.2, 80),
		rec("Luis", 3, 10),
		rec("Pedro", math.NaN(), math.NaN()),
		rec("", 1, 0),
	})

	assert.Equal(t, 3, f.Students)
	assert.InDelta(t, 4.6, f.MeanFinal, 1e-9)
	assert.InDelta(t, 45.0, f.MeanAttendance, 1e-9)
	assert.Equal(t, 1, f.Failing)
	assert.Equal(t, 1, f.LowAttendance)
	assert.Equal(t, 1, f.Undefined)
	require.Len(t, f.Bands, 5)
}

func TestTemplate(t *testing.T) {
	f := FactsFor("4A", []models.DerivedRecord{
		rec("Ana", 6.2, 80),
		rec("Luis", 3, 10),
	})
	text, err := Template{}.Write(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t,
		"4A has 2 students with a mean final score of 4.6 and mean attendance of 45%. "+
			"1 student is below 4.0. 1 attended fewer than half of the sessions. The most common band is <4.",
		text)
}

func TestTemplate_Empty(t *testing.T) {
	text, err := Template{}.Write(context.Background(), FactsFor("all courses", nil))
	require.NoError(t, err)
	assert.Equal(t, "No named students in all courses yet.", text)
}

func TestTemplate_AllPassing(t *testing.T) {
	f := FactsFor("all courses", []models.DerivedRecord{rec("Ana", 6.2, 80)})
	text, err := Template{}.Write(context.Background(), f)
	require.NoError(t, err)
	assert.Contains(t, text, "All courses has 1 student")
	assert.Contains(t, text, "Every student with a score is passing.")
}

type stubWriter struct {
	text string
	err  error
}

func (s stubWriter) Write(context.Context, Facts) (string, error) { return s.text, s.err }

func TestFallback(t *testing.T) {
	ctx := context.Background()

	text, err := Fallback{Primary: stubWriter{text: "from model"}, Secondary: stubWriter{text: "template"}}.Write(ctx, Facts{})
	require.NoError(t, err)
	assert.Equal(t, "from model", text)

	text, err = Fallback{Primary: stubWriter{err: errors.New("quota")}, Secondary: stubWriter{text: "template"}}.Write(ctx, Facts{})
	require.NoError(t, err)
	assert.Equal(t, "template", text)

	text, err = Fallback{Primary: stubWriter{text: "  "}, Secondary: stubWriter{text: "template"}}.Write(ctx, Facts{})
	require.NoError(t, err)
	assert.Equal(t, "template", text)

	text, err = Fallback{Secondary: Template{}}.Write(ctx, Facts{Scope: "4B"})
	require.NoError(t, err)
	assert.Equal(t, "No named students in 4B yet.", text)
}

func TestPrompt(t *testing.T) {
	p := Prompt(Facts{Scope: "4A", Students: 2, MeanFinal: math.NaN(), MeanAttendance: 45})
	assert.Contains(t, p, "Scope: 4A")
	assert.Contains(t, p, "Mean final score: unknown")
	assert.Contains(t, p, "Mean attendance percent: 45")
}

func TestNewOpenAI_NoKey(t *testing.T) {
	_, err := NewOpenAI("", 0)
	assert.Error(t, err)
}

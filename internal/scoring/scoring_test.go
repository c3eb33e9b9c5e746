package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rollbook/internal/models"
	"github.com/lox/rollbook/internal/roster"
)

func TestBonus(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		want float64
	}{
		{"full attendance", 100, 7},
		{"at 80", 80, 7},
		{"just below 80", 79.99, 6 + 19.99/20},
		{"at 60", 60, 6},
		{"at 70", 70, 6.5},
		{"at 40", 40, 5},
		{"at 50", 50, 5.5},
		{"at 20", 20, 4},
		{"at 30", 30, 4.5},
		{"just below 20", 19.99, 1},
		{"zero", 0, 1},
		{"negative", -5, 1},
		{"NaN", math.NaN(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Bonus(tt.pct), 1e-9)
		})
	}
}

func TestBonus_Range(t *testing.T) {
	for pct := 0.0; pct <= 100; pct += 0.25 {
		b := Bonus(pct)
		require.GreaterOrEqual(t, b, 1.0, "pct %v", pct)
		require.LessOrEqual(t, b, 7.0, "pct %v", pct)
		if pct >= 80 {
			require.Equal(t, 7.0, b, "pct %v", pct)
		}
	}
}

func TestCleanGrade(t *testing.T) {
	tests := []struct {
		raw   string
		want  float64
		valid bool
	}{
		{"5,5", 5.5, true},
		{"6.0", 6.0, true},
		{" 4,25 ", 4.25, true},
		{"7", 7, true},
		{"#DIV/0!", 0, false},
		{"", 0, false},
		{"None", 0, false},
		{"nan", 0, false},
		{"abc", 0, false},
		{"1,234.5", 0, false},
		{"Inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := CleanGrade(tt.raw, DefaultErrorSentinel)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.InDelta(t, tt.want, got.Float64, 1e-9)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Exclude")
	require.NoError(t, err)
	assert.Equal(t, PolicyExclude, p)

	p, err = ParsePolicy("zero")
	require.NoError(t, err)
	assert.Equal(t, PolicyZero, p)

	_, err = ParsePolicy("drop")
	assert.Error(t, err)
}

func TestApplyPolicy(t *testing.T) {
	six := CleanGrade("6", DefaultErrorSentinel)
	absent := CleanGrade("#DIV/0!", DefaultErrorSentinel)

	g1, g2, avg := ApplyPolicy(PolicyZero, six, absent)
	assert.True(t, g1.Valid)
	assert.True(t, g2.Valid)
	assert.Equal(t, 0.0, g2.Float64)
	assert.Equal(t, 3.0, avg)

	g1, g2, avg = ApplyPolicy(PolicyExclude, six, absent)
	assert.True(t, g1.Valid)
	assert.False(t, g2.Valid)
	assert.Equal(t, 6.0, avg)

	_, _, avg = ApplyPolicy(PolicyExclude, absent, absent)
	assert.True(t, math.IsNaN(avg))

	_, _, avg = ApplyPolicy(PolicyZero, absent, absent)
	assert.Equal(t, 0.0, avg)
}

func marks(values ...string) []models.Mark {
	out := make([]models.Mark, len(values))
	for i, v := range values {
		out[i] = models.Mark{Value: v, Missing: v == ""}
	}
	return out
}

func TestTallyAttendance(t *testing.T) {
	t.Run("missing excluded from denominator", func(t *testing.T) {
		got := TallyAttendance(marks("P", "A", "", "P", "J"), "P")
		assert.Equal(t, 2, got.Present)
		assert.Equal(t, 4, got.Total)
		assert.Equal(t, 50.0, got.Pct)
	})

	t.Run("case sensitive marker", func(t *testing.T) {
		got := TallyAttendance(marks("p", "P", " P"), "P")
		assert.Equal(t, 1, got.Present)
		assert.Equal(t, 3, got.Total)
		assert.Equal(t, 33.33, got.Pct)
	})

	t.Run("rounds to two decimals", func(t *testing.T) {
		got := TallyAttendance(marks("P", "P", "A"), "P")
		assert.Equal(t, 66.67, got.Pct)
	})

	t.Run("no recorded marks", func(t *testing.T) {
		got := TallyAttendance(marks("", ""), "P")
		assert.Equal(t, 0, got.Total)
		assert.True(t, math.IsNaN(got.Pct))
	})
}

func TestFinalScore(t *testing.T) {
	final, rounded := FinalScore(5.75, 7)
	assert.InDelta(t, 18.5/3, final, 1e-12)
	assert.Equal(t, 6.2, rounded)

	// no clamping on malformed inputs
	final, _ = FinalScore(10, 7)
	assert.Greater(t, final, 7.0)

	final, rounded = FinalScore(math.NaN(), 7)
	assert.True(t, math.IsNaN(final))
	assert.True(t, math.IsNaN(rounded))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 6.2, RoundTo(6.16666, 1))
	assert.Equal(t, 0.12, RoundTo(0.125, 2))
	assert.Equal(t, 2.0, RoundTo(2.5, 0))
	assert.True(t, math.IsNaN(RoundTo(math.NaN(), 2)))
}

func scenarioRoster(t *testing.T, csv string) *roster.Roster {
	t.Helper()
	r, err := roster.ReadCSV("4A.csv", strings.NewReader(csv), roster.DefaultSchema())
	require.NoError(t, err)
	return r
}

func TestDerive_ScenarioA(t *testing.T) {
	r := scenarioRoster(t, strings.Join([]string{
		"N°,NOMBRES,nota1,nota 2,asistencia1,asistencia2,asistencia3,asistencia4,asistencia5,asistencia6,asistencia7,asistencia8,asistencia9,asistencia10",
		`1,Ana Rojas,"6,0","5,5",P,P,P,P,P,P,P,P,A,A`,
		`2,Luis Soto,"4,0","4,0",P,A,A,A,A,A,A,A,A,A`,
	}, "\n"))

	got := DeriveRoster(r, PolicyZero)
	require.Len(t, got, 2)

	ana := got[0]
	assert.Equal(t, "4A", ana.CourseTag)
	assert.Equal(t, "1", ana.ID)
	assert.Equal(t, 8, ana.PresentCount)
	assert.Equal(t, 10, ana.TotalCount)
	assert.Equal(t, 80.0, ana.AttendancePct)
	assert.Equal(t, 7.0, ana.AttendanceBonus)
	assert.Equal(t, 5.75, ana.AverageGrade)
	assert.Equal(t, 6.2, ana.FinalScoreRounded)

	luis := got[1]
	assert.Equal(t, 10.0, luis.AttendancePct)
	assert.Equal(t, 1.0, luis.AttendanceBonus)
	assert.InDelta(t, 3.0, luis.FinalScore, 1e-12)
}

func TestDerive_ScenarioB(t *testing.T) {
	r := scenarioRoster(t, strings.Join([]string{
		"N°,NOMBRES,nota1,nota 2,asistencia1,asistencia2",
		"1,Pedro Diaz,#DIV/0!,#DIV/0!,,",
	}, "\n"))

	zero := DeriveRoster(r, PolicyZero)[0]
	assert.Equal(t, 0.0, zero.AverageGrade)
	assert.True(t, math.IsNaN(zero.AttendancePct))
	assert.Equal(t, 1.0, zero.AttendanceBonus)
	assert.InDelta(t, 1.0/3, zero.FinalScore, 1e-12)
	assert.Equal(t, 0.3, zero.FinalScoreRounded)

	exclude := DeriveRoster(r, PolicyExclude)[0]
	assert.False(t, exclude.Grade1.Valid)
	assert.True(t, math.IsNaN(exclude.AverageGrade))
	assert.Equal(t, 1.0, exclude.AttendanceBonus)
	assert.True(t, math.IsNaN(exclude.FinalScore))
}

func TestDerive_Deterministic(t *testing.T) {
	r := scenarioRoster(t, strings.Join([]string{
		"NOMBRES,nota1,nota 2,asistencia_a,asistencia_b,asistencia_c",
		`Ana,"6,5",x,P,A,`,
		`,5,5,P,P,P`,
	}, "\n"))

	first := DeriveRoster(r, PolicyExclude)
	second := DeriveRoster(r, PolicyExclude)
	require.Len(t, first, 2)
	for i := range first {
		assert.Equal(t, first[i].FinalScore, second[i].FinalScore)
		assert.Equal(t, first[i].AttendancePct, second[i].AttendancePct)
		assert.Equal(t, first[i].Grade1, second[i].Grade1)
	}

	// unnamed rows survive derivation
	assert.False(t, first[1].NameValid)
	assert.Equal(t, "2", first[1].ID)
}

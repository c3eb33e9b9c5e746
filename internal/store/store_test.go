package store

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rollbook/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	require.NoError(t, store.Migrate())
	return store
}

func sampleRecords(tag string) []models.DerivedRecord {
	return []models.DerivedRecord{
		{
			CourseTag:         tag,
			Row:               0,
			ID:                "1",
			Name:              "Ana",
			NameValid:         true,
			RawGrade1:         "6,0",
			RawGrade2:         "5,5",
			Grade1:            sql.NullFloat64{Float64: 6, Valid: true},
			Grade2:            sql.NullFloat64{Float64: 5.5, Valid: true},
			AverageGrade:      5.75,
			PresentCount:      8,
			TotalCount:        10,
			AttendancePct:     80,
			AttendanceBonus:   7,
			FinalScore:        18.5 / 3,
			FinalScoreRounded: 6.2,
		},
		{
			CourseTag:         tag,
			Row:               1,
			ID:                "2",
			RawGrade1:         "#DIV/0!",
			AverageGrade:      math.NaN(),
			AttendancePct:     math.NaN(),
			AttendanceBonus:   1,
			FinalScore:        math.NaN(),
			FinalScoreRounded: math.NaN(),
		},
	}
}

func TestMigrate(t *testing.T) {
	store := setupTestStore(t)
	v, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	// second run is a no-op
	require.NoError(t, store.Migrate())
}

func TestReplaceCourse_RoundTrip(t *testing.T) {
	store := setupTestStore(t)

	course := models.Course{Tag: "4A", SourceName: "4A.csv", Policy: "zero", BatchID: "b1"}
	require.NoError(t, store.ReplaceCourse(course, sampleRecords("4A")))

	got, err := store.CourseRecords("4A")
	require.NoError(t, err)
	require.Len(t, got, 2)

	ana := got[0]
	assert.Equal(t, "Ana", ana.Name)
	assert.True(t, ana.NameValid)
	assert.Equal(t, 5.5, ana.Grade2.Float64)
	assert.Equal(t, 80.0, ana.AttendancePct)
	assert.Equal(t, 6.2, ana.FinalScoreRounded)

	blank := got[1]
	assert.False(t, blank.NameValid)
	assert.False(t, blank.Grade1.Valid)
	assert.True(t, math.IsNaN(blank.AttendancePct), "NaN survives as NULL")
	assert.True(t, math.IsNaN(blank.FinalScore))
	assert.Equal(t, "#DIV/0!", blank.RawGrade1)

	c, err := store.GetCourse("4A")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 2, c.Records)
	assert.Equal(t, "zero", c.Policy)
}

func TestReplaceCourse_Replaces(t *testing.T) {
	store := setupTestStore(t)

	course := models.Course{Tag: "4A", SourceName: "4A.csv", Policy: "zero", BatchID: "b1"}
	require.NoError(t, store.ReplaceCourse(course, sampleRecords("4A")))

	course.BatchID = "b2"
	course.Policy = "exclude"
	require.NoError(t, store.ReplaceCourse(course, sampleRecords("4A")[:1]))

	got, err := store.CourseRecords("4A")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	courses, err := store.ListCourses()
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "b2", courses[0].BatchID)
	assert.Equal(t, "exclude", courses[0].Policy)
}

func TestAllRecordsAndDelete(t *testing.T) {
	store := setupTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, store.ReplaceCourse(models.Course{Tag: "B", SourceName: "B.csv", Policy: "zero", BatchID: "x", UploadedAt: now}, sampleRecords("B")))
	require.NoError(t, store.ReplaceCourse(models.Course{Tag: "A", SourceName: "A.csv", Policy: "zero", BatchID: "x", UploadedAt: now.Add(time.Second)}, sampleRecords("A")))

	all, err := store.AllRecords()
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "B", all[0].CourseTag, "upload order wins over tag order")

	_, err = store.StoreRawRoster("B", "B.csv", []byte("NOMBRES\n"))
	require.NoError(t, err)

	deleted, err := store.DeleteCourse("B")
	require.NoError(t, err)
	assert.True(t, deleted)

	raw, err := store.GetRawRoster("B")
	require.NoError(t, err)
	assert.Nil(t, raw)

	deleted, err = store.DeleteCourse("B")
	require.NoError(t, err)
	assert.False(t, deleted)

	missing, err := store.GetCourse("B")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRawRoster(t *testing.T) {
	store := setupTestStore(t)

	payload := []byte("N°,NOMBRES,nota1,nota 2,asistencia1\n1,Ana,6,5,P\n")
	hash, err := store.StoreRawRoster("4A", "4A.csv", payload)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	got, err := store.GetRawRoster("4A")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, payload, got.Payload)
	assert.Equal(t, "4A.csv", got.SourceName)

	_, err = store.StoreRawRoster("4A", "4A-v2.csv", []byte("other"))
	require.NoError(t, err)
	got, err = store.GetRawRoster("4A")
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), got.Payload)
}

func TestIngestRuns(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartIngestRun("batch-1", "upload")
	require.NoError(t, err)
	run.RostersOK = 2
	run.RostersFailed = 1
	run.Records = 40
	run.ErrorMessage = sql.NullString{String: "roster bad.csv: missing name columns", Valid: true}
	run.QualityFlags = sql.NullString{String: `{"name_missing":3}`, Valid: true}
	require.NoError(t, store.CompleteIngestRun(run))

	runs, err := store.RecentIngestRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].RostersOK)
	assert.Equal(t, 1, runs[0].RostersFailed)
	assert.True(t, runs[0].FinishedAt.Valid)
	assert.Contains(t, runs[0].ErrorMessage.String, "missing name")
	assert.Equal(t, `{"name_missing":3}`, runs[0].QualityFlags.String)
}

package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/dose"
	"github.com/talgya/brushsim/internal/engine"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// finishedRun drives a short simulation to completion and returns its summary.
func finishedRun(t *testing.T, start time.Time) engine.RunSummary {
	t.Helper()
	p := brush.DefaultParams()
	p.NoduleRows = 2
	p.NodulesPerRow = 4
	p.ProcessTime = 0.5
	p.DataDensity = brush.DensityLow

	sim, err := engine.NewSimulation(p, engine.Options{Timestep: 0.1})
	require.NoError(t, err)
	sim.Now = func() time.Time { return start }

	var got engine.RunSummary
	sim.OnRunEnd = func(s engine.RunSummary) { got = s }
	require.NoError(t, sim.Start())
	sim.RunToCompletion(context.Background())
	require.True(t, got.Completed)
	return got
}

func TestSaveAndGetRun(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sum := finishedRun(t, start)
	cov := dose.Measure(sum.Snapshot.Grid, dose.DefaultLowThreshold)

	rec, err := NewRunRecord(sum, cov, "report body")
	require.NoError(t, err)
	events := []engine.Event{
		{Tick: 0, Kind: "started", Description: "Starting simulation..."},
		{Tick: 5, Elapsed: 0.5, Kind: "completed", Description: "Simulation complete"},
	}
	require.NoError(t, db.SaveRun(rec, events))

	got, err := db.GetRun(sum.ID)
	require.NoError(t, err)
	assert.Equal(t, sum.ID, got.ID)
	assert.True(t, got.Completed)
	assert.Equal(t, int64(5), got.Ticks)
	assert.Equal(t, start, got.StartedAt)
	assert.Equal(t, "report body", got.Report)
	assert.Equal(t, cov.WaferCells, got.WaferCells)
	assert.InDelta(t, sum.Snapshot.Grid.Total(), got.TotalDose, 1e-9)

	p, err := got.Params()
	require.NoError(t, err)
	assert.Equal(t, sum.Snapshot.Params, p)

	archived, err := db.RunEvents(sum.ID)
	require.NoError(t, err)
	assert.Equal(t, events, archived)

	latest, err := db.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, sum.ID, latest.ID)
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = db.LatestRun()
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		sum := finishedRun(t, base.Add(time.Duration(i)*time.Minute))
		rec, err := NewRunRecord(sum, dose.Measure(sum.Snapshot.Grid, dose.DefaultLowThreshold), "r")
		require.NoError(t, err)
		require.NoError(t, db.SaveRun(rec, nil))
		ids = append(ids, sum.ID)
	}

	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Empty(t, runs[0].Report, "listing omits reports")
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveMeta("k", "v1"))
	require.NoError(t, db.SaveMeta("k", "v2"))
	v, err := db.GetMeta("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestArchive(t *testing.T) {
	db := openTestDB(t)
	sum := finishedRun(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	rec, err := db.Archive(sum, dose.DefaultLowThreshold, nil)
	require.NoError(t, err)
	assert.Contains(t, rec.Report, "Brush-Wafer Contact Simulator Configuration")
	assert.Contains(t, rec.Report, "DOSE SUMMARY:")

	got, err := db.GetRun(sum.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Report, got.Report)

	_, err = db.Archive(engine.RunSummary{ID: "empty"}, dose.DefaultLowThreshold, nil)
	assert.Error(t, err)
}

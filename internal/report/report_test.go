package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/dose"
	"github.com/talgya/brushsim/internal/engine"
)

func staggeredParams() brush.Params {
	p := brush.DefaultParams()
	p.BrushLength = 300
	p.BrushDiameter = 50
	p.NoduleRows = 4
	p.NodulesPerRow = 5
	p.NodulePitch = 50
	p.NoduleDiameter = 8
	p.NoduleStartOdd = 10
	p.NoduleStartEven = 35
	p.BrushContour = brush.ContourFlat
	p.BrushCompression = 1
	p.ProcessTime = 1
	return p
}

func snapshot(t *testing.T) engine.Snapshot {
	t.Helper()
	sim, err := engine.NewSimulation(staggeredParams(), engine.Options{Timestep: 0.1})
	require.NoError(t, err)
	sim.Disable(brush.NoduleKey{Row: 1, Index: 2})
	require.NoError(t, sim.Start())
	sim.Tick()
	return sim.Snapshot()
}

var exportedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestFilename(t *testing.T) {
	assert.Equal(t, "brush_config_2026-01-02T03-04-05.txt", Filename(exportedAt))
}

func TestTextReport(t *testing.T) {
	snap := snapshot(t)
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, snap, nil, exportedAt))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Brush-Wafer Contact Simulator Configuration\n"))
	for _, want := range []string{
		"Export Date: 2026-01-02 03:04:05\n",
		strings.Repeat("=", 50) + "\n",
		"Circumference: 157.08 mm\n",
		"Total Nodules: 20\n",
		"Active Nodules: 19\n",
		"Disabled Nodules: 1\n",
		"DISABLED NODULES:\nRow 2, Nodule 3 (ID: 1-2)\n",
		"Data Density: medium\n",
		"Row Offset: 25.0 mm\n",
		"Brush Coverage Length: 210 mm\n",
		"Row\tIndex\tAxial Pos (mm)\tCircum Pos (mm)\tAngle (rad)\tStatus\n" + strings.Repeat("=", 70) + "\n",
		"1\t1\t10.00\t\t0.00\t\t0.000\tACTIVE\n",
		"2\t3\t135.00\t\t39.27\t\t1.571\tDISABLED\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "DOSE SUMMARY")
}

func TestTextReportOmitsDisabledSectionWhenNoneDisabled(t *testing.T) {
	sim, err := engine.NewSimulation(staggeredParams(), engine.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Text(&buf, sim.Snapshot(), nil, exportedAt))
	assert.NotContains(t, buf.String(), "DISABLED NODULES:")
	assert.Contains(t, buf.String(), "Disabled Nodules: 0\n")
}

func TestTextReportDoseSummary(t *testing.T) {
	snap := snapshot(t)
	cov := dose.Measure(snap.Grid, dose.DefaultLowThreshold)

	var buf bytes.Buffer
	require.NoError(t, Text(&buf, snap, &cov, exportedAt))
	out := buf.String()
	assert.Contains(t, out, "DOSE SUMMARY:\n")
	assert.Contains(t, out, "State: running at 0:00.1\n")
	assert.Less(t, strings.Index(out, "DOSE SUMMARY"), strings.Index(out, "DETAILED NODULE POSITIONS"))
}

func TestNodulesCSV(t *testing.T) {
	snap := snapshot(t)
	var buf bytes.Buffer
	require.NoError(t, NodulesCSV(&buf, snap))

	var records []NoduleRecord
	require.NoError(t, gocsv.UnmarshalString(buf.String(), &records))
	require.Len(t, records, 20)
	assert.Equal(t, 1, records[0].Row)
	assert.Equal(t, 1, records[0].Index)
	assert.Equal(t, "DISABLED", records[7].Status)
	assert.Equal(t, 135.0, records[7].AxialPos)
	assert.True(t, strings.HasPrefix(buf.String(), "row,index,axial_pos_mm,"))
}

func TestGridCSVOnlyWaferCells(t *testing.T) {
	snap := snapshot(t)
	var buf bytes.Buffer
	require.NoError(t, GridCSV(&buf, snap.Grid, snap.Params.WaferDiameter))

	var records []CellRecord
	require.NoError(t, gocsv.UnmarshalString(buf.String(), &records))
	cov := dose.Measure(snap.Grid, dose.DefaultLowThreshold)
	assert.Len(t, records, cov.WaferCells)

	var total float64
	for _, r := range records {
		total += r.Dose
	}
	assert.InDelta(t, snap.Grid.Total(), total, 1e-9)
}

func TestGapAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*brush.Params)
		gaps    bool
		worst   float64
		message string
	}{
		{"defaults overlap", func(p *brush.Params) {}, false, -3, "Good Coverage: Nodules overlap - no gaps expected"},
		{"wide stagger", func(p *brush.Params) {
			p.NoduleStartOdd, p.NoduleStartEven, p.NodulePitch = 10, 35, 50
		}, true, 17, "Gap Warning: 17.0mm gaps between adjacent rows may create non-contacted areas"},
		{"single nodule per row ignores pitch", func(p *brush.Params) {
			p.NodulesPerRow = 1
			p.NodulePitch = 100
		}, false, 0, "Good Coverage: Nodules overlap - no gaps expected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := brush.DefaultParams()
			tt.mutate(&p)
			g := GapAnalysis(p)
			assert.Equal(t, tt.gaps, g.HasGaps)
			assert.InDelta(t, tt.worst, g.WorstGap, 1e-9)
			assert.Equal(t, tt.message, g.Message)
		})
	}
}

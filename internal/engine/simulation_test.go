package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/dose"
)

func testParams() brush.Params {
	p := brush.DefaultParams()
	p.BrushLength = 300
	p.BrushDiameter = 50
	p.BrushSpeed = 120
	p.WaferSpeed = 40
	p.WaferDiameter = 300
	p.NoduleRows = 4
	p.NodulesPerRow = 5
	p.NodulePitch = 50
	p.NoduleDiameter = 8
	p.NoduleStartOdd = 10
	p.NoduleStartEven = 35
	p.BrushContour = brush.ContourFlat
	p.BrushCompression = 1
	p.DataDensity = brush.DensityMedium
	p.ProcessTime = 2
	return p
}

func newSim(t *testing.T, p brush.Params) *Simulation {
	t.Helper()
	sim, err := NewSimulation(p, Options{Timestep: 0.05})
	require.NoError(t, err)
	return sim
}

func TestAccumulateBottomRowAtTimeZero(t *testing.T) {
	layout, err := brush.NewLayout(testParams())
	require.NoError(t, err)
	g := dose.NewGrid(100)
	acc := Accumulator{DoseIncrement: DefaultDoseIncrement}

	// Row 3 sits at 3π/2, the bottom of the brush, at t=0.
	n := acc.Accumulate(g, layout, brush.NewDisabledSet(), 0)
	assert.Equal(t, 5, n)

	// Contact radius is 8/300*50 = 1.33 cells: five cells per nodule.
	assert.InDelta(t, 5*5*DefaultDoseIncrement, g.Total(), 1e-9)

	// 35 mm lies 115 mm left of the brush midpoint, so it lands on the far
	// side of the wafer: x = (150-115)/3.
	assert.InDelta(t, DefaultDoseIncrement, g.At(11, 50), 1e-12)
	// 185 mm lies 35 mm right: x = (150+35)/3.
	assert.InDelta(t, DefaultDoseIncrement, g.At(61, 50), 1e-12)

	disabled := brush.NewDisabledSet()
	disabled.Add(brush.NoduleKey{Row: 3, Index: 0})
	g.Reset()
	assert.Equal(t, 4, acc.Accumulate(g, layout, disabled, 0))
	assert.Zero(t, g.At(11, 50))
}

func TestAccumulateSkipsNodulesOffWafer(t *testing.T) {
	p := testParams()
	p.WaferDiameter = 100 // radius 50: only 135 and 185 remain on the wafer
	layout, err := brush.NewLayout(p)
	require.NoError(t, err)

	g := dose.NewGrid(p.Resolution())
	assert.Equal(t, 2, Accumulator{DoseIncrement: 1}.Accumulate(g, layout, brush.NewDisabledSet(), 0))
}

func TestAccumulateRespectsPredicate(t *testing.T) {
	p := testParams()
	p.BrushContour = brush.ContourTaperLeft
	p.ContourDepth = 2
	p.BrushCompression = 0
	layout, err := brush.NewLayout(p)
	require.NoError(t, err)

	// Only the 235 mm nodule of row 3 is high enough.
	g := dose.NewGrid(p.Resolution())
	assert.Equal(t, 1, Accumulator{DoseIncrement: 1}.Accumulate(g, layout, brush.NewDisabledSet(), 0))
}

func TestNewSimulationRejectsInvalidParams(t *testing.T) {
	p := testParams()
	p.BrushLength = 0
	_, err := NewSimulation(p, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, brush.ErrInvalidParams))
}

func TestStateTransitions(t *testing.T) {
	sim := newSim(t, testParams())
	assert.Equal(t, StateIdle, sim.State())
	assert.ErrorIs(t, sim.Stop(), ErrNotRunning)

	require.NoError(t, sim.Start())
	assert.Equal(t, StateRunning, sim.State())
	assert.ErrorIs(t, sim.Start(), ErrAlreadyRunning)

	for i := 0; i < 10; i++ {
		require.True(t, sim.Tick())
	}
	before := sim.Snapshot()
	require.Positive(t, before.Grid.Total())

	require.NoError(t, sim.Stop())
	assert.Equal(t, StateStopped, sim.State())
	assert.False(t, sim.Tick(), "stopped simulation does not tick")
	assert.Equal(t, before.Grid.Cells(), sim.Snapshot().Grid.Cells(), "stop keeps dose")

	require.NoError(t, sim.Start())
	st := sim.Status()
	assert.Zero(t, st.Elapsed)
	assert.Zero(t, st.Total, "start clears the grid")

	sim.Tick()
	sim.Clear()
	st = sim.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.Tick)
}

func TestRunSelfTerminatesAtProcessTime(t *testing.T) {
	p := testParams()
	p.ProcessTime = 2
	sim, err := NewSimulation(p, Options{Timestep: 0.5})
	require.NoError(t, err)

	var ended []RunSummary
	sim.OnRunEnd = func(s RunSummary) { ended = append(ended, s) }

	require.NoError(t, sim.Start())
	ticks := sim.RunToCompletion(context.Background())

	assert.Equal(t, 4, ticks)
	assert.Equal(t, StateStopped, sim.State())
	assert.InDelta(t, 2.0, sim.Status().Elapsed, 1e-12)
	require.Len(t, ended, 1)
	assert.True(t, ended[0].Completed)
	assert.Equal(t, uint64(4), ended[0].Snapshot.Tick)
	assert.NotEmpty(t, ended[0].ID)
}

func TestDoseNonDecreasingDuringRun(t *testing.T) {
	sim := newSim(t, testParams())
	require.NoError(t, sim.Start())

	prev := sim.Snapshot().Grid.Cells()
	for sim.Tick() {
		cur := sim.Snapshot().Grid.Cells()
		for i := range cur {
			require.GreaterOrEqual(t, cur[i], prev[i])
			require.GreaterOrEqual(t, cur[i], 0.0)
		}
		prev = cur
	}
	assert.Positive(t, sim.Status().Total)
}

func TestRunsAreDeterministic(t *testing.T) {
	run := func() Snapshot {
		sim := newSim(t, testParams())
		require.NoError(t, sim.Start())
		sim.RunToCompletion(context.Background())
		return sim.Snapshot()
	}
	a, b := run(), run()
	assert.Equal(t, a.Grid.Cells(), b.Grid.Cells())
	assert.Equal(t, a.Nodules, b.Nodules)
}

func TestClearThenStartReproducesLayout(t *testing.T) {
	sim := newSim(t, testParams())
	require.NoError(t, sim.Start())
	sim.Tick()
	first := sim.Snapshot().Nodules

	sim.Clear()
	require.NoError(t, sim.Start())
	assert.Equal(t, first, sim.Snapshot().Nodules)
}

func TestDisablingKeepsPastDose(t *testing.T) {
	sim := newSim(t, testParams())
	require.NoError(t, sim.Start())
	for i := 0; i < 10; i++ {
		sim.Tick()
	}
	before := sim.Snapshot()

	for _, n := range before.Nodules {
		sim.Disable(n.Key())
	}
	after := sim.Snapshot()
	assert.Equal(t, before.Grid.Cells(), after.Grid.Cells(), "disabling alters no dose")

	for i := 0; i < 10; i++ {
		sim.Tick()
	}
	final := sim.Snapshot()
	assert.Equal(t, before.Grid.Cells(), final.Grid.Cells(), "disabled nodules deposit nothing")

	// Layout is unaffected by the disabled set.
	for i := range before.Nodules {
		assert.Equal(t, before.Nodules[i].Nodule, final.Nodules[i].Nodule)
		assert.True(t, final.Nodules[i].Disabled)
	}
	assert.Zero(t, final.ActiveNodules())
}

func TestToggleAndReset(t *testing.T) {
	sim := newSim(t, testParams())
	k := brush.NoduleKey{Row: 1, Index: 2}
	assert.True(t, sim.Toggle(k))
	assert.Equal(t, []brush.NoduleKey{k}, sim.Snapshot().Disabled)

	sim.Clear()
	assert.Len(t, sim.Snapshot().Disabled, 1, "clear keeps disabled nodules")

	sim.Reset()
	assert.Empty(t, sim.Snapshot().Disabled)

	sim.Disable(k)
	sim.ClearDisabled()
	assert.Empty(t, sim.Snapshot().Disabled)
}

func TestSetParamsReinitializesGrid(t *testing.T) {
	sim := newSim(t, testParams())
	k := brush.NoduleKey{Row: 0, Index: 0}
	sim.Disable(k)
	require.NoError(t, sim.Start())
	for i := 0; i < 5; i++ {
		sim.Tick()
	}
	require.Positive(t, sim.Status().Total)

	p := testParams()
	p.DataDensity = brush.DensityLow
	require.NoError(t, sim.SetParams(p))

	snap := sim.Snapshot()
	assert.Equal(t, StateRunning, snap.State, "run continues")
	assert.Equal(t, 50, snap.Grid.Resolution())
	assert.Zero(t, snap.Grid.Total())
	assert.Equal(t, []brush.NoduleKey{k}, snap.Disabled, "disabled set survives edits")

	bad := p
	bad.NodulesPerRow = 0
	assert.ErrorIs(t, sim.SetParams(bad), brush.ErrInvalidParams)
	assert.Equal(t, p, sim.Params(), "invalid params are refused")
}

func TestSubscribeReceivesEvents(t *testing.T) {
	sim := newSim(t, testParams())
	id, ch := sim.Subscribe()

	require.NoError(t, sim.Start())
	select {
	case e := <-ch:
		assert.Equal(t, "started", e.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	sim.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	assert.NotEmpty(t, sim.RecentEvents(10))
}

func TestSubscribeWithHistoryDoesNotRepeat(t *testing.T) {
	sim := newSim(t, testParams())
	require.NoError(t, sim.Start())

	id, history, ch := sim.SubscribeWithHistory(50)
	defer sim.Unsubscribe(id)
	require.Len(t, history, 1)
	assert.Equal(t, "started", history[0].Kind)

	require.NoError(t, sim.Stop())
	select {
	case e := <-ch:
		assert.Equal(t, "stopped", e.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Kind)
	default:
	}
}

func TestRunSummaryHoldsOnlyItsOwnEvents(t *testing.T) {
	p := testParams()
	p.ProcessTime = 0.2
	sim := newSim(t, p)

	var runs []RunSummary
	sim.OnRunEnd = func(sum RunSummary) { runs = append(runs, sum) }

	require.NoError(t, sim.Start())
	sim.RunToCompletion(context.Background())

	p.BrushCompression = 2
	require.NoError(t, sim.SetParams(p))
	sim.Toggle(brush.NoduleKey{Row: 0, Index: 0})

	require.NoError(t, sim.Start())
	sim.Toggle(brush.NoduleKey{Row: 1, Index: 1})
	sim.RunToCompletion(context.Background())

	require.Len(t, runs, 2)
	kinds := func(events []Event) []string {
		var out []string
		for _, e := range events {
			out = append(out, e.Kind)
		}
		return out
	}
	assert.Equal(t, []string{"started", "completed"}, kinds(runs[0].Events))
	assert.Equal(t, []string{"started", "nodule", "completed"}, kinds(runs[1].Events))

	// Events after a run ends are not carried into the next one.
	sim.Clear()
	require.NoError(t, sim.Start())
	require.NoError(t, sim.Stop())
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"started", "stopped"}, kinds(runs[2].Events))
}

func TestEngineStopBeforeRun(t *testing.T) {
	eng := NewEngine()
	eng.Interval = time.Millisecond
	ticks := 0
	eng.OnTick = func(uint64) { ticks++ }

	eng.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	eng.Run(ctx)

	assert.NoError(t, ctx.Err(), "Run returns without waiting for ctx")
	assert.Zero(t, ticks)
	assert.False(t, eng.Running())
}

func TestEngineRunsTicksUntilStopped(t *testing.T) {
	sim := newSim(t, testParams())
	require.NoError(t, sim.Start())

	eng := NewEngine()
	eng.Interval = time.Millisecond
	eng.SetSpeed(10)
	eng.OnTick = func(uint64) {
		if !sim.Tick() {
			eng.Stop()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	eng.Run(ctx)

	assert.Equal(t, StateStopped, sim.State())
	assert.False(t, eng.Running())
	assert.GreaterOrEqual(t, eng.Tick(), uint64(40))
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "0:05.5", SimTime(5.5))
	assert.Equal(t, "2:03.0", SimTime(123))
}

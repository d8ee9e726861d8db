package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/dose"
)

// DefaultTimestep is the simulated time advanced per tick, in seconds.
const DefaultTimestep = 1.0 / 60

var (
	ErrAlreadyRunning = errors.New("engine: simulation already running")
	ErrNotRunning     = errors.New("engine: simulation not running")
)

// State is the run state of the simulation clock.
type State uint8

const (
	StateIdle    State = iota // grid initialized, not running
	StateRunning              // ticks advance time and deposit dose
	StateStopped              // halted by the user or the process time
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText lets State encode as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateIdle, StateRunning, StateStopped} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Options tunes a Simulation. Zero values fall back to defaults.
type Options struct {
	Timestep      float64 // simulated seconds per tick
	DoseIncrement float64 // dose per contacting nodule per tick
}

// Simulation holds the complete contact simulation state.
// All methods are safe to call from other goroutines, but ticks must come
// from a single driver (the Engine loop or a headless caller).
type Simulation struct {
	mu sync.Mutex

	layout   *brush.Layout
	disabled brush.DisabledSet
	grid     *dose.Grid
	acc      Accumulator
	timestep float64

	state     State
	tick      uint64  // ticks since the last Start
	elapsed   float64 // simulated seconds since the last Start
	contacts  uint64  // nodule contact events since the last Start
	runID     string
	startedAt time.Time

	events    []Event
	runEvents []Event // events of the current run, from its "started" on
	recording bool
	subs      map[string]chan Event

	// OnRunEnd is called, outside the lock, when a run stops by itself or
	// via Stop.
	OnRunEnd func(RunSummary)

	// Now is the wall clock used for run timestamps.
	Now func() time.Time
}

// RunSummary describes a finished (or user-stopped) run.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Completed  bool // reached the process time
	Contacts   uint64
	Snapshot   Snapshot
	Events     []Event // this run's events only, oldest first
}

// NewSimulation validates p and builds an idle simulation.
func NewSimulation(p brush.Params, opts Options) (*Simulation, error) {
	layout, err := brush.NewLayout(p)
	if err != nil {
		return nil, err
	}
	if opts.Timestep <= 0 {
		opts.Timestep = DefaultTimestep
	}
	if opts.DoseIncrement <= 0 {
		opts.DoseIncrement = DefaultDoseIncrement
	}

	return &Simulation{
		layout:   layout,
		disabled: brush.NewDisabledSet(),
		grid:     dose.NewGrid(p.Resolution()),
		acc:      Accumulator{DoseIncrement: opts.DoseIncrement},
		timestep: opts.Timestep,
		subs:     make(map[string]chan Event),
		Now:      time.Now,
	}, nil
}

// State returns the current run state.
func (s *Simulation) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Params returns the active parameter set.
func (s *Simulation) Params() brush.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout.Params
}

// Layout returns the active layout. Layouts are immutable, so the pointer
// stays valid after a later SetParams.
func (s *Simulation) Layout() *brush.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

// Timestep returns the simulated seconds advanced per tick.
func (s *Simulation) Timestep() float64 { return s.timestep }

// Start begins a new run from Idle or Stopped: time resets to zero and the
// grid is cleared.
func (s *Simulation) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return ErrAlreadyRunning
	}
	s.resetRunLocked()
	s.state = StateRunning
	s.runID = uuid.NewString()
	s.startedAt = s.Now()
	s.runEvents = nil
	s.recording = true

	slog.Info("simulation started",
		"run", s.runID,
		"nodules", len(s.layout.Nodules),
		"disabled", len(s.disabled),
		"process_time", s.layout.Params.ProcessTime,
		"resolution", s.grid.Resolution(),
	)
	s.emitLocked("started", "Starting simulation...")
	return nil
}

// Stop halts a running simulation, keeping the dose accumulated so far.
func (s *Simulation) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StateStopped
	s.emitLocked("stopped", "Simulation stopped")
	summary := s.summaryLocked(false)
	hook := s.OnRunEnd
	s.mu.Unlock()

	slog.Info("simulation stopped", "run", summary.ID, "elapsed", SimTime(summary.Snapshot.Elapsed))
	if hook != nil {
		hook(summary)
	}
	return nil
}

// Clear stops any run and zeroes the grid. Disabled nodules are kept.
func (s *Simulation) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.resetRunLocked()
	s.emitLocked("cleared", "Heat map cleared - Ready to simulate")
}

// Reset clears the grid and re-enables every nodule.
func (s *Simulation) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.resetRunLocked()
	s.disabled.Clear()
	s.emitLocked("cleared", "Ready to simulate")
}

func (s *Simulation) resetRunLocked() {
	s.recording = false
	s.tick = 0
	s.elapsed = 0
	s.contacts = 0
	s.grid.Reset()
}

// SetParams replaces the parameter set. The layout is regenerated and the
// grid reinitialized, discarding accumulated dose, even mid-run; a running
// simulation keeps running with the new geometry on its next tick.
func (s *Simulation) SetParams(p brush.Params) error {
	layout, err := brush.NewLayout(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.layout = layout
	s.grid = dose.NewGrid(p.Resolution())
	s.emitLocked("params", fmt.Sprintf("parameters updated: %d nodules, %s contour", len(layout.Nodules), p.BrushContour))
	slog.Info("parameters updated",
		"nodules", len(layout.Nodules),
		"contour", p.BrushContour,
		"compression", p.BrushCompression,
		"resolution", p.Resolution(),
		"state", s.state,
	)
	return nil
}

// Disable excludes a nodule from contact from the next tick on.
func (s *Simulation) Disable(k brush.NoduleKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled.Add(k)
	s.emitLocked("nodule", fmt.Sprintf("Disabled nodule %d-%d", k.Row, k.Index))
}

// Enable re-admits a nodule from the next tick on.
func (s *Simulation) Enable(k brush.NoduleKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled.Remove(k)
	s.emitLocked("nodule", fmt.Sprintf("Reactivated nodule %d-%d", k.Row, k.Index))
}

// Toggle flips a nodule's disabled state and reports whether it is now
// disabled. Already accumulated dose is never altered.
func (s *Simulation) Toggle(k brush.NoduleKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	disabled := s.disabled.Toggle(k)
	if disabled {
		s.emitLocked("nodule", fmt.Sprintf("Disabled nodule %d-%d", k.Row, k.Index))
	} else {
		s.emitLocked("nodule", fmt.Sprintf("Reactivated nodule %d-%d", k.Row, k.Index))
	}
	return disabled
}

// ClearDisabled re-enables every nodule.
func (s *Simulation) ClearDisabled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled.Clear()
	s.emitLocked("nodule", "Selected nodules cleared - All nodules active")
}

// Tick advances a running simulation by one timestep and reports whether it
// did any work. The run stops itself once elapsed time reaches the process
// time.
func (s *Simulation) Tick() bool {
	s.mu.Lock()

	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	if s.elapsed >= s.layout.Params.ProcessTime {
		summary := s.completeLocked()
		s.mu.Unlock()
		s.finish(summary)
		return false
	}

	n := s.acc.Accumulate(s.grid, s.layout, s.disabled, s.elapsed)
	s.contacts += uint64(n)
	s.tick++
	s.elapsed = float64(s.tick) * s.timestep

	if s.elapsed < s.layout.Params.ProcessTime {
		s.mu.Unlock()
		return true
	}
	summary := s.completeLocked()
	s.mu.Unlock()
	s.finish(summary)
	return true
}

func (s *Simulation) completeLocked() RunSummary {
	s.state = StateStopped
	s.emitLocked("completed", "Simulation complete")
	return s.summaryLocked(true)
}

func (s *Simulation) finish(summary RunSummary) {
	slog.Info("simulation complete",
		"run", summary.ID,
		"ticks", summary.Snapshot.Tick,
		"elapsed", SimTime(summary.Snapshot.Elapsed),
		"contacts", summary.Contacts,
	)
	if s.OnRunEnd != nil {
		s.OnRunEnd(summary)
	}
}

func (s *Simulation) summaryLocked(completed bool) RunSummary {
	events := make([]Event, len(s.runEvents))
	copy(events, s.runEvents)
	s.recording = false
	return RunSummary{
		ID:         s.runID,
		StartedAt:  s.startedAt,
		FinishedAt: s.Now(),
		Completed:  completed,
		Contacts:   s.contacts,
		Snapshot:   s.snapshotLocked(),
		Events:     events,
	}
}

// RunToCompletion ticks until the run stops or ctx is cancelled and returns
// the number of ticks taken. It is the headless driver for batch runs.
func (s *Simulation) RunToCompletion(ctx context.Context) int {
	ticks := 0
	for ctx.Err() == nil {
		if !s.Tick() {
			break
		}
		ticks++
	}
	return ticks
}

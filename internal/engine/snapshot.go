package engine

import (
	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/dose"
)

// NoduleStatus is a nodule with its contact and disabled flags, as handed to
// renderers and exporters.
type NoduleStatus struct {
	brush.Nodule
	Margin     float64 `json:"margin"` // compression still needed to touch
	Contacting bool    `json:"contacting"`
	Disabled   bool    `json:"disabled"`
}

// Snapshot is a deep copy of the simulation taken between ticks. Nothing in
// it aliases live simulation state.
type Snapshot struct {
	RunID         string            `json:"run_id,omitempty"`
	State         State             `json:"state"`
	Tick          uint64            `json:"tick"`
	Elapsed       float64           `json:"elapsed"`
	Params        brush.Params      `json:"params"`
	Nodules       []NoduleStatus    `json:"nodules"`
	Disabled      []brush.NoduleKey `json:"disabled"`
	NoduleDensity float64           `json:"nodule_density"` // per cm²
	Grid          *dose.Grid        `json:"-"`
}

// ActiveNodules counts nodules that are not disabled.
func (s Snapshot) ActiveNodules() int {
	n := 0
	for _, ns := range s.Nodules {
		if !ns.Disabled {
			n++
		}
	}
	return n
}

// ContactingNodules counts enabled nodules that reach the wafer.
func (s Snapshot) ContactingNodules() int {
	n := 0
	for _, ns := range s.Nodules {
		if ns.Contacting && !ns.Disabled {
			n++
		}
	}
	return n
}

// Snapshot copies the current state for read-only consumers.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Simulation) snapshotLocked() Snapshot {
	l := s.layout
	nodules := make([]NoduleStatus, len(l.Nodules))
	for i, n := range l.Nodules {
		nodules[i] = NoduleStatus{
			Nodule:     n,
			Margin:     l.Predicate.Margin(n),
			Contacting: l.Predicate.Contacts(n),
			Disabled:   s.disabled.Has(n.Key()),
		}
	}
	return Snapshot{
		RunID:         s.runID,
		State:         s.state,
		Tick:          s.tick,
		Elapsed:       s.elapsed,
		Params:        l.Params,
		Nodules:       nodules,
		Disabled:      s.disabled.Keys(),
		NoduleDensity: l.Density(),
		Grid:          s.grid.Clone(),
	}
}

// Status is the cheap subset of a Snapshot, without copying the grid.
type Status struct {
	RunID    string  `json:"run_id,omitempty"`
	State    State   `json:"state"`
	Tick     uint64  `json:"tick"`
	Elapsed  float64 `json:"elapsed"`
	Progress float64 `json:"progress"` // 0..1 of the process time
	Nodules  int     `json:"nodules"`
	Disabled int     `json:"disabled"`
	Contacts uint64  `json:"contacts"`
	Total    float64 `json:"total_dose"`
}

// Status returns the current run status.
func (s *Simulation) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress := s.elapsed / s.layout.Params.ProcessTime
	if progress > 1 {
		progress = 1
	}
	return Status{
		RunID:    s.runID,
		State:    s.state,
		Tick:     s.tick,
		Elapsed:  s.elapsed,
		Progress: progress,
		Nodules:  len(s.layout.Nodules),
		Disabled: len(s.disabled),
		Contacts: s.contacts,
		Total:    s.grid.Total(),
	}
}

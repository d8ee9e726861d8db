package engine

import (
	"math"

	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/dose"
)

// DefaultDoseIncrement is the dose one contacting nodule deposits per tick.
// It has no physical unit; see DESIGN.md.
const DefaultDoseIncrement = 0.2

// Accumulator deposits contact dose onto the wafer grid.
type Accumulator struct {
	DoseIncrement float64
}

// Accumulate records one tick of contact at simulated time t and returns the
// number of nodules that deposited dose. Only cells inside each contact disk
// are touched.
//
// The brush is modelled as spanning the wafer through its centre: nodules
// right of the brush midpoint land at the wafer angle, nodules left of it on
// the opposite side.
func (a Accumulator) Accumulate(g *dose.Grid, l *brush.Layout, disabled brush.DisabledSet, t float64) int {
	p := l.Params
	brushRot, waferRot := brush.Rotation(p, t)

	res := float64(g.Resolution())
	waferRadius := p.WaferDiameter / 2
	scale := res / p.WaferDiameter // cells per mm
	contactRadius := math.Max(1, p.NoduleDiameter/p.WaferDiameter*res/2)
	mid := p.BrushLength / 2

	contacts := 0
	for _, n := range l.Nodules {
		if disabled.Has(n.Key()) {
			continue
		}
		if !brush.AtContactLine(n, p, brushRot) {
			continue
		}
		if !l.Predicate.Contacts(n) {
			continue
		}

		offset := n.AxialPos - mid
		r := math.Abs(offset)
		if r > waferRadius {
			continue
		}
		theta := waferRot
		if offset <= 0 {
			theta += math.Pi
		}

		cx := (waferRadius + r*math.Cos(theta)) * scale
		cy := (waferRadius + r*math.Sin(theta)) * scale
		g.DepositDisk(cx, cy, contactRadius, a.DoseIncrement)
		contacts++
	}
	return contacts
}

package report

import (
	"fmt"
	"math"

	"github.com/talgya/brushsim/internal/brush"
)

// Gaps is the coverage check between staggered rows.
type Gaps struct {
	RowOffset float64 `json:"row_offset"` // |startEven - startOdd|
	EdgeGap   float64 `json:"edge_gap"`   // row offset minus nodule diameter
	PitchGap  float64 `json:"pitch_gap"`  // worst stagger within the pitch minus nodule diameter
	WorstGap  float64 `json:"worst_gap"`
	HasGaps   bool    `json:"has_gaps"`
	Message   string  `json:"message"`
}

// GapAnalysis reports whether adjacent staggered rows leave bare strips
// between nodule edges.
func GapAnalysis(p brush.Params) Gaps {
	offset := math.Abs(p.NoduleStartEven - p.NoduleStartOdd)
	g := Gaps{
		RowOffset: offset,
		EdgeGap:   offset - p.NoduleDiameter,
	}
	if p.NodulesPerRow > 1 {
		g.PitchGap = math.Max(offset, p.NodulePitch-offset) - p.NoduleDiameter
	}
	g.WorstGap = math.Max(g.EdgeGap, g.PitchGap)
	g.HasGaps = g.WorstGap > 0

	if g.HasGaps {
		g.Message = fmt.Sprintf("Gap Warning: %.1fmm gaps between adjacent rows may create non-contacted areas", g.WorstGap)
	} else {
		g.Message = "Good Coverage: Nodules overlap - no gaps expected"
	}
	return g
}

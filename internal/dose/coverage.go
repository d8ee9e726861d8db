package dose

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultLowThreshold is the dose at or below which contacted cells count as
// low contact.
const DefaultLowThreshold = 3.0

// Coverage summarizes the dose over the cells whose centre lies on the wafer.
type Coverage struct {
	WaferCells   int     `json:"wafer_cells"`
	Uncontacted  int     `json:"uncontacted"`
	Low          int     `json:"low"`
	Adequate     int     `json:"adequate"`
	LowThreshold float64 `json:"low_threshold"`

	// Statistics over contacted cells only.
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Max    float64 `json:"max"`
	CV     float64 `json:"cv"` // coefficient of variation, 0 = perfectly uniform
}

// ContactedFraction returns the share of wafer cells with any dose.
func (c Coverage) ContactedFraction() float64 {
	if c.WaferCells == 0 {
		return 0
	}
	return float64(c.WaferCells-c.Uncontacted) / float64(c.WaferCells)
}

// Class is a coverage category for a single cell.
type Class uint8

const (
	ClassOutside Class = iota // not on the wafer
	ClassUncontacted
	ClassLow
	ClassAdequate
)

// Classify returns the coverage class of cell (x, y).
func (g *Grid) Classify(x, y int, lowThreshold float64) Class {
	if !g.InWafer(x, y) {
		return ClassOutside
	}
	v := g.At(x, y)
	switch {
	case v == 0:
		return ClassUncontacted
	case v <= lowThreshold:
		return ClassLow
	default:
		return ClassAdequate
	}
}

// Measure computes the coverage summary of g.
func Measure(g *Grid, lowThreshold float64) Coverage {
	cov := Coverage{LowThreshold: lowThreshold}
	var contacted []float64

	for y := 0; y < g.res; y++ {
		for x := 0; x < g.res; x++ {
			switch g.Classify(x, y, lowThreshold) {
			case ClassOutside:
				continue
			case ClassUncontacted:
				cov.Uncontacted++
			case ClassLow:
				cov.Low++
				contacted = append(contacted, g.At(x, y))
			case ClassAdequate:
				cov.Adequate++
				contacted = append(contacted, g.At(x, y))
			}
			cov.WaferCells++
		}
	}

	if len(contacted) == 0 {
		return cov
	}
	cov.Max = floats.Max(contacted)
	if len(contacted) == 1 {
		cov.Mean = contacted[0]
		return cov
	}
	cov.Mean, cov.StdDev = stat.MeanStdDev(contacted, nil)
	if cov.Mean > 0 {
		cov.CV = cov.StdDev / cov.Mean
	}
	return cov
}

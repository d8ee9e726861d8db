package brush

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// MinContourDepth floors the divisor when heights are scaled by the contour
// depth, so a zero-depth contour still draws.
const MinContourDepth = 0.1

const (
	noiseSeed      = 1729
	noiseFrequency = 6.0
)

// contourNoise is read-only after construction and safe to share.
var contourNoise = opensimplex.New(noiseSeed)

// Height returns the surface height offset of the brush at axialPos.
// It is a pure function of axialPos/BrushLength and the contour parameters.
func Height(axialPos float64, p Params) float64 {
	pos := axialPos / p.BrushLength

	switch p.BrushContour {
	case ContourConcave:
		return p.ContourDepth * (1 - 4*(pos-0.5)*(pos-0.5))
	case ContourConvex:
		return -p.ContourDepth * (1 - 4*(pos-0.5)*(pos-0.5))
	case ContourTaperLeft:
		return p.ContourDepth * pos
	case ContourTaperRight:
		return p.ContourDepth * (1 - pos)
	case ContourRandom:
		return p.ContourDepth * math.Sin(pos*17.3) * math.Cos(pos*23.7)
	case ContourNoise:
		return p.ContourDepth * contourNoise.Eval2(pos*noiseFrequency, 0)
	default:
		return 0
	}
}

// ScaledHeight normalizes h by the contour depth, floored at MinContourDepth.
func ScaledHeight(h, depth float64) float64 {
	return h / math.Max(depth, MinContourDepth)
}

// ProfilePoint is one sample of the profile diagram.
type ProfilePoint struct {
	AxialPos      float64 `json:"axial_pos"`
	Height        float64 `json:"height"`
	DisplayHeight float64 `json:"display_height"`
	Scaled        float64 `json:"scaled"`
}

// Profile is the sampled side view of the brush contour together with the
// wafer reference line.
type Profile struct {
	Name        string         `json:"name"`
	Points      []ProfilePoint `json:"points"`
	WaferHeight float64        `json:"wafer_height"` // display units
	WaferScaled float64        `json:"wafer_scaled"`
}

// displayInverted reports whether the diagram draws the contour upside down.
func displayInverted(c Contour) bool {
	return c == ContourTaperLeft || c == ContourTaperRight || c == ContourRandom || c == ContourNoise
}

// SampleProfile samples the contour at n+1 evenly spaced axial positions.
// The wafer line sits at the lowest nodule height plus the compression.
func SampleProfile(p Params, n int) Profile {
	if n < 1 {
		n = 1
	}
	prof := Profile{
		Name:   p.BrushContour.Name(p.ContourDepth),
		Points: make([]ProfilePoint, 0, n+1),
	}

	for i := 0; i <= n; i++ {
		axial := float64(i) / float64(n) * p.BrushLength
		h := Height(axial, p)
		display := h
		if displayInverted(p.BrushContour) {
			display = -h
		}
		prof.Points = append(prof.Points, ProfilePoint{
			AxialPos:      axial,
			Height:        h,
			DisplayHeight: display,
			Scaled:        ScaledHeight(display, p.ContourDepth),
		})
	}

	minHeight := 0.0
	nodules := GenerateNodules(p)
	for i, n := range nodules {
		if i == 0 || n.SurfaceHeight < minHeight {
			minHeight = n.SurfaceHeight
		}
	}

	wafer := minHeight + p.BrushCompression
	if p.BrushContour == ContourTaperLeft || p.BrushContour == ContourTaperRight {
		offset := p.ContourDepth
		if offset == 0 {
			offset = 1
		}
		wafer -= offset
	}
	prof.WaferHeight = wafer
	prof.WaferScaled = ScaledHeight(wafer, p.ContourDepth)
	return prof
}

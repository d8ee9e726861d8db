// Package brush models the nodule-studded roller brush: its parameters,
// surface contour, nodule layout, and which nodules reach the wafer.
package brush

import (
	"errors"
	"fmt"
	"math"
)

// Contour is the brush's axial height profile.
type Contour string

const (
	ContourFlat       Contour = "flat"
	ContourConcave    Contour = "concave"
	ContourConvex     Contour = "convex"
	ContourTaperLeft  Contour = "taperLeft"
	ContourTaperRight Contour = "taperRight"
	ContourRandom     Contour = "random"
	ContourNoise      Contour = "noise" // simplex noise, smoother than random
)

// Contours lists every supported contour in display order.
var Contours = []Contour{
	ContourFlat, ContourConcave, ContourConvex,
	ContourTaperLeft, ContourTaperRight, ContourRandom, ContourNoise,
}

// Valid reports whether c is a known contour.
func (c Contour) Valid() bool {
	for _, k := range Contours {
		if c == k {
			return true
		}
	}
	return false
}

// Flipped reports whether the contour compares heights with inverted sign
// when deciding contact order (concave and convex profiles).
func (c Contour) Flipped() bool {
	return c == ContourConcave || c == ContourConvex
}

// Name returns the label shown next to the profile diagram.
func (c Contour) Name(depth float64) string {
	switch c {
	case ContourFlat:
		return "Flat Profile"
	case ContourConcave:
		return fmt.Sprintf("Concave Profile (%gmm depth)", depth)
	case ContourConvex:
		return fmt.Sprintf("Convex Profile (%gmm height)", depth)
	case ContourTaperLeft:
		return fmt.Sprintf("Left Taper (%gmm rise)", depth)
	case ContourTaperRight:
		return fmt.Sprintf("Right Taper (%gmm rise)", depth)
	case ContourRandom:
		return fmt.Sprintf("Random Profile (±%gmm variation)", depth)
	case ContourNoise:
		return fmt.Sprintf("Noise Profile (±%gmm variation)", depth)
	default:
		return "Unknown Profile"
	}
}

// Density selects the dose grid resolution.
type Density string

const (
	DensityLow    Density = "low"
	DensityMedium Density = "medium"
	DensityHigh   Density = "high"
)

// Valid reports whether d is a known density.
func (d Density) Valid() bool {
	return d == DensityLow || d == DensityMedium || d == DensityHigh
}

// Resolution returns the grid side length for the density.
// Unknown values fall back to medium.
func (d Density) Resolution() int {
	switch d {
	case DensityLow:
		return 50
	case DensityHigh:
		return 200
	default:
		return 100
	}
}

// Params is the full geometry and process configuration. Lengths are in mm,
// speeds in rev/min, ProcessTime in seconds. Params is a value: edits replace
// it wholesale.
type Params struct {
	BrushLength      float64 `yaml:"brush_length" json:"brush_length"`
	BrushDiameter    float64 `yaml:"brush_diameter" json:"brush_diameter"`
	BrushSpeed       float64 `yaml:"brush_speed" json:"brush_speed"`
	WaferSpeed       float64 `yaml:"wafer_speed" json:"wafer_speed"`
	WaferDiameter    float64 `yaml:"wafer_diameter" json:"wafer_diameter"`
	NoduleRows       int     `yaml:"nodule_rows" json:"nodule_rows"`
	NodulesPerRow    int     `yaml:"nodules_per_row" json:"nodules_per_row"`
	NodulePitch      float64 `yaml:"nodule_pitch" json:"nodule_pitch"`
	NoduleDiameter   float64 `yaml:"nodule_diameter" json:"nodule_diameter"`
	NoduleStartOdd   float64 `yaml:"nodule_start_odd" json:"nodule_start_odd"`
	NoduleStartEven  float64 `yaml:"nodule_start_even" json:"nodule_start_even"`
	BrushContour     Contour `yaml:"brush_contour" json:"brush_contour"`
	ContourDepth     float64 `yaml:"contour_depth" json:"contour_depth"`
	BrushCompression float64 `yaml:"brush_compression" json:"brush_compression"`
	DataDensity      Density `yaml:"data_density" json:"data_density"`
	ProcessTime      float64 `yaml:"process_time" json:"process_time"`
}

// DefaultParams returns the stock 300 mm brush against a 300 mm wafer.
func DefaultParams() Params {
	return Params{
		BrushLength:      300,
		BrushDiameter:    50,
		BrushSpeed:       300,
		WaferSpeed:       50,
		WaferDiameter:    300,
		NoduleRows:       8,
		NodulesPerRow:    30,
		NodulePitch:      10,
		NoduleDiameter:   8,
		NoduleStartOdd:   5,
		NoduleStartEven:  10,
		BrushContour:     ContourFlat,
		ContourDepth:     0.5,
		BrushCompression: 1,
		DataDensity:      DensityMedium,
		ProcessTime:      30,
	}
}

// Resolution is shorthand for p.DataDensity.Resolution().
func (p Params) Resolution() int {
	return p.DataDensity.Resolution()
}

// Circumference returns the brush circumference in mm.
func (p Params) Circumference() float64 {
	return math.Pi * p.BrushDiameter
}

// ErrInvalidParams is wrapped by every ParamError.
var ErrInvalidParams = errors.New("brush: invalid parameters")

// ParamError describes the first field of a Params that violates its
// constraint.
type ParamError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("brush: %s = %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return ErrInvalidParams
}

// Validate checks every constraint and returns a *ParamError for the first
// violation. Nothing downstream is initialized from params that fail here.
func (p Params) Validate() error {
	floats := []struct {
		name  string
		value float64
		min   float64
		open  bool // strictly greater than min
	}{
		{"brush_length", p.BrushLength, 0, true},
		{"brush_diameter", p.BrushDiameter, 0, true},
		{"wafer_diameter", p.WaferDiameter, 0, true},
		{"nodule_pitch", p.NodulePitch, 0, true},
		{"process_time", p.ProcessTime, 0, true},
		{"nodule_diameter", p.NoduleDiameter, 0, false},
		{"nodule_start_odd", p.NoduleStartOdd, 0, false},
		{"nodule_start_even", p.NoduleStartEven, 0, false},
		{"contour_depth", p.ContourDepth, 0, false},
		{"brush_compression", p.BrushCompression, 0, false},
	}
	for _, f := range floats {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ParamError{Field: f.name, Value: f.value, Reason: "must be finite"}
		}
		if f.open && f.value <= f.min {
			return &ParamError{Field: f.name, Value: f.value, Reason: "must be > 0"}
		}
		if !f.open && f.value < f.min {
			return &ParamError{Field: f.name, Value: f.value, Reason: "must be >= 0"}
		}
	}

	// Speeds may be negative (reverse rotation) but must be finite.
	if math.IsNaN(p.BrushSpeed) || math.IsInf(p.BrushSpeed, 0) {
		return &ParamError{Field: "brush_speed", Value: p.BrushSpeed, Reason: "must be finite"}
	}
	if math.IsNaN(p.WaferSpeed) || math.IsInf(p.WaferSpeed, 0) {
		return &ParamError{Field: "wafer_speed", Value: p.WaferSpeed, Reason: "must be finite"}
	}

	if p.NoduleRows < 1 {
		return &ParamError{Field: "nodule_rows", Value: p.NoduleRows, Reason: "must be >= 1"}
	}
	if p.NodulesPerRow < 1 {
		return &ParamError{Field: "nodules_per_row", Value: p.NodulesPerRow, Reason: "must be >= 1"}
	}
	if !p.BrushContour.Valid() {
		return &ParamError{Field: "brush_contour", Value: p.BrushContour, Reason: "unknown contour"}
	}
	if !p.DataDensity.Valid() {
		return &ParamError{Field: "data_density", Value: p.DataDensity, Reason: "must be low, medium or high"}
	}
	return nil
}

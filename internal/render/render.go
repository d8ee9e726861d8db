// Package render turns a dose grid into images: the heat ramp and the two
// coverage views used to spot bare and under-cleaned areas.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/talgya/brushsim/internal/dose"
)

// Mode selects how cells are coloured.
type Mode string

const (
	ModeHeat        Mode = "heat"        // colour ramp by dose
	ModeUncontacted Mode = "uncontacted" // black = never touched, white = touched
	ModeLow         Mode = "low"         // black = never touched, grey = low, white = adequate
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown render mode")

// ParseMode maps a query value to a Mode. Empty selects the heat ramp.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeHeat:
		return ModeHeat, nil
	case ModeUncontacted, ModeLow:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Options tune the heatmap.
type Options struct {
	Mode          Mode
	Normalization float64 // dose at the top of the ramp
	LowThreshold  float64
	Scale         int // pixels per cell edge
}

// DefaultNormalization is the dose mapped to full intensity.
const DefaultNormalization = 15.0

var (
	unlit = color.RGBA{60, 60, 60, 255}
	black = color.RGBA{0, 0, 0, 255}
	grey  = color.RGBA{128, 128, 128, 255}
	white = color.RGBA{255, 255, 255, 255}
)

// Ramp maps a dose to the heat colour: grey for zero, then dark green
// through bright green, yellow and orange to red as dose approaches
// norm.
func Ramp(d, norm float64) color.RGBA {
	if d <= 0 {
		return unlit
	}
	if norm <= 0 {
		norm = DefaultNormalization
	}
	i := math.Min(d/norm, 1)

	var r, g, b float64
	switch {
	case i < 0.2:
		t := i / 0.2
		r, g, b = t*50, 150+t*105, t*50
	case i < 0.4:
		t := (i - 0.2) / 0.2
		r, g, b = 50+t*100, 255, 50-t*50
	case i < 0.6:
		t := (i - 0.4) / 0.2
		r, g, b = 150+t*105, 255, 0
	case i < 0.8:
		t := (i - 0.6) / 0.2
		r, g, b = 255, 255-t*100, 0
	default:
		t := (i - 0.8) / 0.2
		r, g, b = 255, 155-t*155, t*50
	}
	return color.RGBA{uint8(math.Floor(r)), uint8(math.Floor(g)), uint8(math.Floor(b)), 255}
}

// CellColor returns the colour of cell (x, y) under opts. Cells off the
// wafer are transparent.
func CellColor(g *dose.Grid, x, y int, opts Options) color.RGBA {
	class := g.Classify(x, y, opts.LowThreshold)
	if class == dose.ClassOutside {
		return color.RGBA{}
	}
	switch opts.Mode {
	case ModeUncontacted:
		if class == dose.ClassUncontacted {
			return black
		}
		return white
	case ModeLow:
		switch class {
		case dose.ClassUncontacted:
			return black
		case dose.ClassLow:
			return grey
		default:
			return white
		}
	default:
		return Ramp(g.At(x, y), opts.Normalization)
	}
}

// Heatmap draws g with row 0 at the top.
func Heatmap(g *dose.Grid, opts Options) *image.RGBA {
	if opts.Scale < 1 {
		opts.Scale = 1
	}
	if opts.LowThreshold <= 0 {
		opts.LowThreshold = dose.DefaultLowThreshold
	}
	res := g.Resolution()
	img := image.NewRGBA(image.Rect(0, 0, res*opts.Scale, res*opts.Scale))
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			c := CellColor(g, x, y, opts)
			for dy := 0; dy < opts.Scale; dy++ {
				for dx := 0; dx < opts.Scale; dx++ {
					img.SetRGBA(x*opts.Scale+dx, y*opts.Scale+dy, c)
				}
			}
		}
	}
	return img
}

// WritePNG encodes the heatmap of g as PNG.
func WritePNG(w io.Writer, g *dose.Grid, opts Options) error {
	if err := png.Encode(w, Heatmap(g, opts)); err != nil {
		return fmt.Errorf("encoding heatmap: %w", err)
	}
	return nil
}

package brush

import "math"

// NoduleKey identifies a nodule by row and index. It is stable across
// regenerations as long as the row/index enumeration is unchanged.
type NoduleKey struct {
	Row   int `json:"row"`
	Index int `json:"index"`
}

// Nodule is a single raised contact point on the brush surface.
type Nodule struct {
	Row           int     `json:"row"`
	Index         int     `json:"index"`
	AxialPos      float64 `json:"axial_pos"`  // mm along the brush axis
	CircumPos     float64 `json:"circum_pos"` // mm around the circumference
	Angle         float64 `json:"angle"`      // radians, [0, 2π)
	SurfaceHeight float64 `json:"surface_height"`
}

// Key returns the nodule's identity.
func (n Nodule) Key() NoduleKey {
	return NoduleKey{Row: n.Row, Index: n.Index}
}

// GenerateNodules lays out nodules row by row. Rows alternate between the odd
// and even start offsets, counting row 0 as the first (odd) row. Nodules past
// the end of the brush are dropped.
func GenerateNodules(p Params) []Nodule {
	if p.NoduleRows <= 0 || p.NodulesPerRow <= 0 {
		return nil
	}
	circumference := p.Circumference()
	nodules := make([]Nodule, 0, p.NoduleRows*p.NodulesPerRow)

	for row := 0; row < p.NoduleRows; row++ {
		frac := float64(row) / float64(p.NoduleRows)
		circumPos := frac * circumference
		angle := frac * 2 * math.Pi

		start := p.NoduleStartOdd
		if row%2 == 1 {
			start = p.NoduleStartEven
		}

		for i := 0; i < p.NodulesPerRow; i++ {
			axial := start + float64(i)*p.NodulePitch
			if axial > p.BrushLength {
				continue
			}
			nodules = append(nodules, Nodule{
				Row:           row,
				Index:         i,
				AxialPos:      axial,
				CircumPos:     circumPos,
				Angle:         angle,
				SurfaceHeight: Height(axial, p),
			})
		}
	}
	return nodules
}

// Layout is the generated nodule set for one Params together with its
// contact predicate. A Layout is immutable; a parameter change builds a new
// one.
type Layout struct {
	Params    Params
	Nodules   []Nodule
	Predicate Predicate
}

// NewLayout validates p and generates its nodules and predicate.
func NewLayout(p Params) (*Layout, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	nodules := GenerateNodules(p)
	return &Layout{
		Params:    p,
		Nodules:   nodules,
		Predicate: NewPredicate(p, nodules),
	}, nil
}

// Find returns the nodule with the given key.
func (l *Layout) Find(key NoduleKey) (Nodule, bool) {
	for _, n := range l.Nodules {
		if n.Key() == key {
			return n, true
		}
	}
	return Nodule{}, false
}

// Density returns nodules per cm² of brush surface.
func (l *Layout) Density() float64 {
	area := l.Params.Circumference() * l.Params.BrushLength // mm²
	if area <= 0 {
		return 0
	}
	return float64(len(l.Nodules)) / area * 100
}

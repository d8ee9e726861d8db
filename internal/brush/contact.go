package brush

import "math"

// Predicate decides which nodules reach the wafer at the configured
// compression. The extremal height is computed once per Params.
//
// Nodules are pressed toward a common reference plane: the highest point
// touches first at zero compression and more compression brings lower points
// into contact, so the contacting set only grows with compression.
//
// Concave and convex contours rank heights with the sign flipped. Their
// displayed tall points are the last to touch, not the first. This is how the
// contours are defined and must not be "fixed".
type Predicate struct {
	compression float64
	flipped     bool
	extremum    float64 // max(h), or max(-h) when flipped
}

// NewPredicate builds the predicate for p over the given nodules.
func NewPredicate(p Params, nodules []Nodule) Predicate {
	pr := Predicate{
		compression: p.BrushCompression,
		flipped:     p.BrushContour.Flipped(),
		extremum:    math.Inf(-1),
	}
	for _, n := range nodules {
		pr.extremum = math.Max(pr.extremum, pr.effective(n.SurfaceHeight))
	}
	return pr
}

func (pr Predicate) effective(h float64) float64 {
	if pr.flipped {
		return -h
	}
	return h
}

// Margin returns how much compression n needs before it touches the wafer.
// Zero for the first-touching nodules.
func (pr Predicate) Margin(n Nodule) float64 {
	return pr.extremum - pr.effective(n.SurfaceHeight)
}

// Contacts reports whether n touches the wafer.
func (pr Predicate) Contacts(n Nodule) bool {
	return pr.compression >= pr.Margin(n)
}

// WithCompression returns a copy of pr evaluated at a different compression.
// The extremum does not depend on compression so nothing is recomputed.
func (pr Predicate) WithCompression(c float64) Predicate {
	pr.compression = c
	return pr
}

// ContactSet returns the keys of every contacting nodule.
func (pr Predicate) ContactSet(nodules []Nodule) map[NoduleKey]bool {
	set := make(map[NoduleKey]bool)
	for _, n := range nodules {
		if pr.Contacts(n) {
			set[n.Key()] = true
		}
	}
	return set
}

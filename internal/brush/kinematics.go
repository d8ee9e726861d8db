package brush

import "math"

// Rotation returns the brush and wafer rotation angles in radians after t
// simulated seconds. Speeds are rev/min.
func Rotation(p Params, t float64) (brushRot, waferRot float64) {
	brushRot = p.BrushSpeed * t / 60 * 2 * math.Pi
	waferRot = p.WaferSpeed * t / 60 * 2 * math.Pi
	return brushRot, waferRot
}

// AtContactLine reports whether n is passing the bottom of the brush, where
// brush and wafer meet. The nodule counts as there while its vertical
// offset is within one nodule radius of the lowest point.
func AtContactLine(n Nodule, p Params, brushRot float64) bool {
	radius := p.BrushDiameter / 2
	vertical := math.Sin(n.Angle+brushRot) * radius
	return vertical <= -(radius - p.NoduleDiameter/2)
}

// Package dose holds the contact dose grid laid over the wafer and the
// coverage statistics derived from it.
package dose

import "math"

// Grid is a square resolution×resolution matrix of non-negative dose values
// stored row-major. It spans the wafer's bounding square: cell (0,0) is the
// corner at (-R, -R) in wafer coordinates.
type Grid struct {
	res   int
	cells []float64
}

// NewGrid allocates an all-zero grid.
func NewGrid(resolution int) *Grid {
	if resolution <= 0 {
		resolution = 1
	}
	return &Grid{res: resolution, cells: make([]float64, resolution*resolution)}
}

// Resolution returns the side length in cells.
func (g *Grid) Resolution() int { return g.res }

// Index returns the linear slice index for cell (x, y).
func (g *Grid) Index(x, y int) int { return y*g.res + x }

// InBounds reports whether (x, y) is a cell of the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.res && y >= 0 && y < g.res
}

// At returns the dose in cell (x, y).
func (g *Grid) At(x, y int) float64 {
	return g.cells[g.Index(x, y)]
}

// Cells exposes the backing slice. Callers outside the simulation driver must
// treat it as read-only.
func (g *Grid) Cells() []float64 { return g.cells }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := &Grid{res: g.res, cells: make([]float64, len(g.cells))}
	copy(c.cells, g.cells)
	return c
}

// Reset zeroes every cell.
func (g *Grid) Reset() {
	for i := range g.cells {
		g.cells[i] = 0
	}
}

// Total returns the summed dose.
func (g *Grid) Total() float64 {
	sum := 0.0
	for _, v := range g.cells {
		sum += v
	}
	return sum
}

// CellCenter returns the centre of cell (x, y) in wafer coordinates, for a
// wafer of the given diameter.
func (g *Grid) CellCenter(x, y int, waferDiameter float64) (float64, float64) {
	size := waferDiameter / float64(g.res)
	return (float64(x)+0.5)*size - waferDiameter/2, (float64(y)+0.5)*size - waferDiameter/2
}

// InWafer reports whether the centre of cell (x, y) lies on the wafer disk.
func (g *Grid) InWafer(x, y int) bool {
	// Work in cell units so the wafer diameter cancels out.
	half := float64(g.res) / 2
	dx := float64(x) + 0.5 - half
	dy := float64(y) + 0.5 - half
	return dx*dx+dy*dy <= half*half
}

// DepositDisk adds amount to every cell within radius cells of the cell
// containing (cx, cy), both in cell units. Cells outside the grid are
// skipped. It returns the number of cells touched. Amount must be >= 0.
func (g *Grid) DepositDisk(cx, cy, radius, amount float64) int {
	if amount < 0 || math.IsNaN(cx) || math.IsNaN(cy) {
		return 0
	}
	ci := int(math.Floor(cx))
	cj := int(math.Floor(cy))
	reach := int(math.Ceil(radius))
	r2 := radius * radius

	touched := 0
	for dy := -reach; dy <= reach; dy++ {
		y := cj + dy
		if y < 0 || y >= g.res {
			continue
		}
		for dx := -reach; dx <= reach; dx++ {
			x := ci + dx
			if x < 0 || x >= g.res {
				continue
			}
			if float64(dx*dx+dy*dy) > r2 {
				continue
			}
			g.cells[y*g.res+x] += amount
			touched++
		}
	}
	return touched
}

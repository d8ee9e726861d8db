package report

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/talgya/brushsim/internal/dose"
	"github.com/talgya/brushsim/internal/engine"
)

// NoduleRecord is one row of the nodule CSV export. Row and index are
// 1-based to match the text report.
type NoduleRecord struct {
	Row           int     `csv:"row"`
	Index         int     `csv:"index"`
	AxialPos      float64 `csv:"axial_pos_mm"`
	CircumPos     float64 `csv:"circum_pos_mm"`
	Angle         float64 `csv:"angle_rad"`
	SurfaceHeight float64 `csv:"surface_height_mm"`
	Margin        float64 `csv:"contact_margin_mm"`
	Contacting    bool    `csv:"contacting"`
	Status        string  `csv:"status"`
}

// CellRecord is one in-wafer cell of the dose grid export.
type CellRecord struct {
	X    int     `csv:"x"`
	Y    int     `csv:"y"`
	PosX float64 `csv:"pos_x_mm"`
	PosY float64 `csv:"pos_y_mm"`
	Dose float64 `csv:"dose"`
}

// NodulesCSV writes every nodule of snap with its status.
func NodulesCSV(w io.Writer, snap engine.Snapshot) error {
	records := make([]NoduleRecord, 0, len(snap.Nodules))
	for _, ns := range snap.Nodules {
		status := "ACTIVE"
		if ns.Disabled {
			status = "DISABLED"
		}
		records = append(records, NoduleRecord{
			Row:           ns.Row + 1,
			Index:         ns.Index + 1,
			AxialPos:      ns.AxialPos,
			CircumPos:     ns.CircumPos,
			Angle:         ns.Angle,
			SurfaceHeight: ns.SurfaceHeight,
			Margin:        ns.Margin,
			Contacting:    ns.Contacting,
			Status:        status,
		})
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("writing nodules: %w", err)
	}
	return nil
}

// GridCSV writes every cell whose centre lies on the wafer.
func GridCSV(w io.Writer, g *dose.Grid, waferDiameter float64) error {
	res := g.Resolution()
	records := make([]CellRecord, 0, res*res)
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			if !g.InWafer(x, y) {
				continue
			}
			px, py := g.CellCenter(x, y, waferDiameter)
			records = append(records, CellRecord{X: x, Y: y, PosX: px, PosY: py, Dose: g.At(x, y)})
		}
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("writing grid: %w", err)
	}
	return nil
}

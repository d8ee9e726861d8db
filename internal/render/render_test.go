package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/brushsim/internal/dose"
)

func TestRamp(t *testing.T) {
	tests := []struct {
		dose float64
		want color.RGBA
	}{
		{0, color.RGBA{60, 60, 60, 255}},
		{1.5, color.RGBA{25, 202, 25, 255}},
		{3, color.RGBA{50, 255, 50, 255}},
		{7.5, color.RGBA{202, 255, 0, 255}},
		{15, color.RGBA{255, 0, 49, 255}}, // floor of 49.99...
		{40, color.RGBA{255, 0, 49, 255}}, // clamped
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Ramp(tt.dose, 15), "dose %v", tt.dose)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHeat, m)

	m, err = ParseMode("low")
	require.NoError(t, err)
	assert.Equal(t, ModeLow, m)

	_, err = ParseMode("sepia")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func testGrid() *dose.Grid {
	g := dose.NewGrid(10)
	g.DepositDisk(5, 5, 0, 1) // low
	g.DepositDisk(4, 5, 0, 5) // adequate
	return g
}

func TestCoverageViews(t *testing.T) {
	g := testGrid()
	low := Options{Mode: ModeLow, LowThreshold: 3}
	assert.Equal(t, grey, CellColor(g, 5, 5, low))
	assert.Equal(t, white, CellColor(g, 4, 5, low))
	assert.Equal(t, black, CellColor(g, 6, 5, low))

	uncontacted := Options{Mode: ModeUncontacted, LowThreshold: 3}
	assert.Equal(t, white, CellColor(g, 5, 5, uncontacted))
	assert.Equal(t, black, CellColor(g, 6, 5, uncontacted))

	assert.Equal(t, color.RGBA{}, CellColor(g, 0, 0, low), "corner is off the wafer")
}

func TestHeatmapScale(t *testing.T) {
	g := testGrid()
	img := Heatmap(g, Options{Mode: ModeHeat, Normalization: 15, Scale: 3})
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, Ramp(5, 15), img.RGBAAt(4*3+2, 5*3+1))
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).A)
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, testGrid(), Options{}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dy())
}

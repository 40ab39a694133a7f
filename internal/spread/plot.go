package spread

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// RenderPerimeterPNG draws the projected perimeter and the ignition points
// on a lat/lon scatter and returns the encoded PNG.
func RenderPerimeterPNG(result *Result, ignition []Point) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Spread %s - %.1f ha over %.0f h",
		result.SimulationID, result.TotalAreaHectares, result.SimulationDurationHours)
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	if len(result.Perimeter) > 0 {
		pts := make(plotter.XYs, len(result.Perimeter))
		for i, pt := range result.Perimeter {
			pts[i] = plotter.XY{X: pt.Longitude, Y: pt.Latitude}
		}
		burned, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		burned.GlyphStyle.Color = color.RGBA{R: 217, G: 72, B: 15, A: 255}
		burned.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(burned)
		p.Legend.Add("burned cells", burned)
	}

	if len(ignition) > 0 {
		pts := make(plotter.XYs, len(ignition))
		for i, pt := range ignition {
			pts[i] = plotter.XY{X: pt.Longitude, Y: pt.Latitude}
		}
		origin, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		origin.GlyphStyle.Color = color.RGBA{R: 20, G: 20, B: 20, A: 255}
		origin.GlyphStyle.Radius = vg.Points(3)
		p.Add(origin)
		p.Legend.Add("ignition", origin)
	}

	p.Legend.Top = true
	p.Legend.Left = true

	writer, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("render perimeter plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode perimeter plot: %w", err)
	}
	return buf.Bytes(), nil
}

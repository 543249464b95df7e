// Package monitor renders recorded trips for offline inspection: static PNG
// plots of the approach profile and an HTML chart endpoint for browsing a
// trip's cue timeline.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/stride-data/waypoint/internal/geo"
)

// TrailPlotter writes trip plots as PNG files into an output directory.
type TrailPlotter struct {
	outputDir string
	distance  geo.DistanceFunc
}

func NewTrailPlotter(outputDir string) *TrailPlotter {
	return &TrailPlotter{outputDir: outputDir, distance: geo.Haversine}
}

// PlotApproach renders distance-to-destination against elapsed time for one
// trip and returns the written file path.
func (tp *TrailPlotter) PlotApproach(tripID string, points []geo.Point, dest geo.Point) (string, error) {
	if len(points) == 0 {
		return "", fmt.Errorf("trip %s has no recorded positions", tripID)
	}
	if err := os.MkdirAll(tp.outputDir, 0o755); err != nil {
		return "", err
	}

	start := points[0].Timestamp
	pts := make(plotter.XYs, 0, len(points))
	for i, p := range points {
		x := float64(i)
		if !p.Timestamp.IsZero() && !start.IsZero() {
			x = p.Timestamp.Sub(start).Seconds()
		}
		pts = append(pts, plotter.XY{X: x, Y: tp.distance(p, dest)})
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Approach profile %s", tripID)
	pl.X.Label.Text = "elapsed (s)"
	pl.Y.Label.Text = "distance to destination (m)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", err
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1.5)
	pl.Add(line)
	pl.Legend.Add("approach", line)
	pl.Legend.Top = true

	outFile := filepath.Join(tp.outputDir, fmt.Sprintf("approach_%s.png", tripID))
	if err := pl.Save(10*vg.Inch, 5*vg.Inch, outFile); err != nil {
		return "", fmt.Errorf("save approach plot: %w", err)
	}
	return outFile, nil
}

// PlotTrail renders the recorded lat/lon trail of a trip and returns the
// written file path.
func (tp *TrailPlotter) PlotTrail(tripID string, points []geo.Point) (string, error) {
	if len(points) == 0 {
		return "", fmt.Errorf("trip %s has no recorded positions", tripID)
	}
	if err := os.MkdirAll(tp.outputDir, 0o755); err != nil {
		return "", err
	}

	pts := make(plotter.XYs, 0, len(points))
	for _, p := range points {
		pts = append(pts, plotter.XY{X: p.Lon, Y: p.Lat})
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Trail %s", tripID)
	pl.X.Label.Text = "longitude"
	pl.Y.Label.Text = "latitude"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", err
	}
	line.Color = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	line.Width = vg.Points(1)
	pl.Add(line)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return "", err
	}
	scatter.Radius = vg.Points(1.5)
	pl.Add(scatter)

	outFile := filepath.Join(tp.outputDir, fmt.Sprintf("trail_%s.png", tripID))
	if err := pl.Save(8*vg.Inch, 8*vg.Inch, outFile); err != nil {
		return "", fmt.Errorf("save trail plot: %w", err)
	}
	return outFile, nil
}

// trip-report renders a standalone HTML report for a recorded trip: the
// approach profile, the cue timeline, and optional PNG plots of the trail.
//
// Usage:
//
//	trip-report -db waypoint.db [-trip <trip-id>] [-out report.html] [-plots dir]
//
// Without -trip the most recent trip is reported.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/stride-data/waypoint/internal/geo"
	"github.com/stride-data/waypoint/internal/monitor"
	"github.com/stride-data/waypoint/internal/tripdb"
)

var (
	dbFile   = flag.String("db", "waypoint.db", "Trip database path")
	tripID   = flag.String("trip", "", "Trip ID (defaults to the most recent trip)")
	outFile  = flag.String("out", "trip-report.html", "Output HTML file")
	plotsDir = flag.String("plots", "", "Also write PNG plots into this directory")
)

func main() {
	flag.Parse()

	db, err := tripdb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open trip database: %v", err)
	}
	defer db.Close()

	trip, err := selectTrip(db, *tripID)
	if err != nil {
		log.Fatal(err)
	}

	points, err := db.TripPositions(trip.TripID)
	if err != nil {
		log.Fatalf("failed to load positions: %v", err)
	}
	if len(points) == 0 {
		log.Fatalf("trip %s has no recorded positions", trip.TripID)
	}
	cues, err := db.TripCues(trip.TripID)
	if err != nil {
		log.Fatalf("failed to load cues: %v", err)
	}

	page := components.NewPage()
	page.SetPageTitle("Trip report " + trip.TripID)
	page.AddCharts(approachChart(trip, points), cueChart(cues))

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s (%d samples, %d cues)", *outFile, len(points), len(cues))

	if *plotsDir != "" {
		tp := monitor.NewTrailPlotter(*plotsDir)
		if path, err := tp.PlotApproach(trip.TripID, points, trip.Dest); err != nil {
			log.Printf("approach plot failed: %v", err)
		} else {
			log.Printf("wrote %s", path)
		}
		if path, err := tp.PlotTrail(trip.TripID, points); err != nil {
			log.Printf("trail plot failed: %v", err)
		} else {
			log.Printf("wrote %s", path)
		}
	}
}

func selectTrip(db *tripdb.DB, id string) (*tripdb.Trip, error) {
	trips, err := db.Trips(0)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	if len(trips) == 0 {
		return nil, fmt.Errorf("no trips recorded in %s", *dbFile)
	}
	if id == "" {
		return &trips[0], nil
	}
	for i := range trips {
		if trips[i].TripID == id {
			return &trips[i], nil
		}
	}
	return nil, fmt.Errorf("trip %s not found", id)
}

func approachChart(trip *tripdb.Trip, points []geo.Point) *charts.Line {
	xAxis := make([]string, 0, len(points))
	data := make([]opts.LineData, 0, len(points))
	start := points[0].Timestamp
	for i, p := range points {
		label := fmt.Sprintf("%d", i)
		if !p.Timestamp.IsZero() && !start.IsZero() {
			label = fmt.Sprintf("%.0fs", p.Timestamp.Sub(start).Seconds())
		}
		xAxis = append(xAxis, label)
		data = append(data, opts.LineData{Value: geo.Haversine(p, trip.Dest)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Approach profile",
			Subtitle: fmt.Sprintf("trip=%s mode=%s outcome=%s", trip.TripID, trip.Mode, trip.Outcome),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance to destination (m)"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("approach", data)
	return line
}

func cueChart(cues []tripdb.Cue) *charts.Bar {
	kinds := []string{"left-turn", "right-turn", "continue-straight", "arrival"}
	haptic := map[string]int{}
	fallback := map[string]int{}
	for _, c := range cues {
		if c.Channel == "haptic" {
			haptic[c.Kind]++
		} else {
			fallback[c.Kind]++
		}
	}

	hapticBars := make([]opts.BarData, 0, len(kinds))
	fallbackBars := make([]opts.BarData, 0, len(kinds))
	for _, k := range kinds {
		hapticBars = append(hapticBars, opts.BarData{Value: haptic[k]})
		fallbackBars = append(fallbackBars, opts.BarData{Value: fallback[k]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Cues by channel"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(kinds)
	bar.AddSeries("haptic", hapticBars)
	bar.AddSeries("fallback", fallbackBars)
	return bar
}

package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/stride-data/waypoint/internal/geo"
	"github.com/stride-data/waypoint/internal/tripdb"
)

// WebServer serves trip inspection charts from the trip database.
type WebServer struct {
	db       *tripdb.DB
	distance geo.DistanceFunc
}

func NewWebServer(db *tripdb.DB) *WebServer {
	return &WebServer{db: db, distance: geo.Haversine}
}

// RegisterRoutes mounts the chart handlers on mux.
func (ws *WebServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/monitor/trip-chart", ws.handleTripChart)
	mux.HandleFunc("/monitor/cue-summary", ws.handleCueSummary)
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleTripChart renders one trip as an HTML line chart of distance to
// destination over the sample sequence, with the fired cues as a scatter
// overlay. Query params: trip_id (required).
func (ws *WebServer) handleTripChart(w http.ResponseWriter, r *http.Request) {
	tripID := r.URL.Query().Get("trip_id")
	if tripID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "trip_id is required")
		return
	}

	trip, err := ws.findTrip(tripID)
	if err != nil {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	points, err := ws.db.TripPositions(tripID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("loading positions: %v", err))
		return
	}
	if len(points) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no positions recorded for trip")
		return
	}
	cues, err := ws.db.TripCues(tripID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("loading cues: %v", err))
		return
	}

	xAxis := make([]string, 0, len(points))
	approach := make([]opts.LineData, 0, len(points))
	for i, p := range points {
		xAxis = append(xAxis, fmt.Sprintf("%d", i))
		approach = append(approach, opts.LineData{Value: ws.distance(p, trip.Dest)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Trip " + tripID,
			Theme:     "dark",
			Width:     "1100px",
			Height:    "550px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Approach profile",
			Subtitle: fmt.Sprintf("trip=%s mode=%s cues=%d", tripID, trip.Mode, len(cues)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance to destination (m)"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("approach", approach)

	// Cue markers: nearest sample by firing time.
	markers := make([]opts.LineData, len(points))
	for i := range markers {
		markers[i] = opts.LineData{Value: "-"}
	}
	for _, c := range cues {
		idx := nearestSample(points, c)
		markers[idx] = opts.LineData{Value: ws.distance(points[idx], trip.Dest), Name: c.Kind}
	}
	line.AddSeries("cues", markers, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCueSummary renders a bar chart of cue counts by kind and channel
// across the most recent trips.
func (ws *WebServer) handleCueSummary(w http.ResponseWriter, r *http.Request) {
	trips, err := ws.db.Trips(50)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("loading trips: %v", err))
		return
	}

	haptic := map[string]int{}
	fallback := map[string]int{}
	for _, trip := range trips {
		cues, err := ws.db.TripCues(trip.TripID)
		if err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("loading cues: %v", err))
			return
		}
		for _, c := range cues {
			if c.Channel == "haptic" {
				haptic[c.Kind]++
			} else {
				fallback[c.Kind]++
			}
		}
	}

	kinds := []string{"left-turn", "right-turn", "continue-straight", "arrival"}
	hapticBars := make([]opts.BarData, 0, len(kinds))
	fallbackBars := make([]opts.BarData, 0, len(kinds))
	for _, k := range kinds {
		hapticBars = append(hapticBars, opts.BarData{Value: haptic[k]})
		fallbackBars = append(fallbackBars, opts.BarData{Value: fallback[k]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Cue summary",
			Theme:     "dark",
			Width:     "900px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Cue delivery by channel",
			Subtitle: fmt.Sprintf("last %d trips", len(trips)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(kinds)
	bar.AddSeries("haptic", hapticBars)
	bar.AddSeries("fallback", fallbackBars)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) findTrip(tripID string) (*tripdb.Trip, error) {
	trips, err := ws.db.Trips(0)
	if err != nil {
		return nil, fmt.Errorf("loading trips: %v", err)
	}
	for i := range trips {
		if trips[i].TripID == tripID {
			return &trips[i], nil
		}
	}
	return nil, fmt.Errorf("trip %s not found", tripID)
}

// nearestSample picks the position index closest in time to the cue. Samples
// are in delivery order, so a linear scan is fine at trip scale.
func nearestSample(points []geo.Point, c tripdb.Cue) int {
	best := 0
	for i, p := range points {
		if p.Timestamp.IsZero() {
			continue
		}
		d := c.At.Sub(p.Timestamp)
		if d < 0 {
			d = -d
		}
		bd := c.At.Sub(points[best].Timestamp)
		if bd < 0 {
			bd = -bd
		}
		if d < bd {
			best = i
		}
	}
	return best
}

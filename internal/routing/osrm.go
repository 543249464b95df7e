// Package routing acquires pedestrian routes from an OSRM-compatible HTTP
// service and converts them into the internal route model.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stride-data/waypoint/internal/geo"
	"github.com/stride-data/waypoint/internal/monitoring"
	"github.com/stride-data/waypoint/internal/route"
)

var logf = monitoring.Component("routing")

const maxResponseBytes = 4 << 20

// OSRMPlanner calculates walking routes against an OSRM "route" service
// using the foot profile.
type OSRMPlanner struct {
	baseURL string
	client  *http.Client
}

// NewOSRMPlanner builds a planner against baseURL, e.g.
// "https://router.project-osrm.org". The context deadline of each
// CalculateRoute call bounds the request; the client timeout is a backstop.
func NewOSRMPlanner(baseURL string) *OSRMPlanner {
	return &OSRMPlanner{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 45 * time.Second},
	}
}

// Wire types for the OSRM response. Coordinates are [lon, lat] pairs.
type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Geometry osrmGeometry `json:"geometry"`
	Legs     []osrmLeg    `json:"legs"`
}

type osrmGeometry struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmStep struct {
	Distance float64      `json:"distance"`
	Name     string       `json:"name"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmManeuver struct {
	Location []float64 `json:"location"`
	Type     string    `json:"type"`
	Modifier string    `json:"modifier"`
}

// CalculateRoute requests a foot route with alternatives and returns the
// converted plan. An OSRM "NoRoute" answer maps to route.ErrNoRouteFound.
func (p *OSRMPlanner) CalculateRoute(ctx context.Context, origin, dest geo.Point) (*route.Plan, error) {
	reqURL := fmt.Sprintf("%s/route/v1/foot/%f,%f;%f,%f?%s",
		p.baseURL, origin.Lon, origin.Lat, dest.Lon, dest.Lat,
		url.Values{
			"overview":     {"full"},
			"geometries":   {"geojson"},
			"steps":        {"true"},
			"alternatives": {"true"},
		}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building route request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		// The transport wraps context errors; unwrap so callers can tell a
		// timeout from a provider failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("routing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading routing response: %w", err)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding routing response (status %d): %w", resp.StatusCode, err)
	}

	switch {
	case parsed.Code == "NoRoute" || (parsed.Code == "Ok" && len(parsed.Routes) == 0):
		return nil, route.ErrNoRouteFound
	case parsed.Code != "Ok":
		return nil, fmt.Errorf("routing provider returned %s: %s", parsed.Code, parsed.Message)
	}

	plan := &route.Plan{}
	for _, or := range parsed.Routes {
		r, err := convertRoute(or)
		if err != nil {
			logf("skipping unusable route alternative: %v", err)
			continue
		}
		plan.Routes = append(plan.Routes, r)
	}
	if len(plan.Routes) == 0 {
		return nil, route.ErrNoRouteFound
	}
	logf("plan ready: %d route(s), primary %.0fm, took %v",
		len(plan.Routes), plan.Primary().TotalDistanceM(), time.Since(start).Round(time.Millisecond))
	return plan, nil
}

func convertRoute(or osrmRoute) (*route.Route, error) {
	var steps []route.Step
	for _, leg := range or.Legs {
		for _, s := range leg.Steps {
			if len(s.Maneuver.Location) < 2 {
				continue
			}
			// The final "arrive" pseudo-step carries no maneuver to cue; its
			// location is still the destination anchor, so keep it as the
			// terminal step.
			steps = append(steps, route.Step{
				Instruction: instructionText(s),
				Anchor:      geo.Point{Lat: s.Maneuver.Location[1], Lon: s.Maneuver.Location[0]},
				DistanceM:   s.Distance,
			})
		}
	}

	var line geo.Polyline
	for _, c := range or.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		line = append(line, geo.Point{Lat: c[1], Lon: c[0]})
	}

	return route.New(uuid.NewString(), steps, line, or.Distance, or.Duration)
}

// instructionText renders an OSRM maneuver as guidance text, e.g.
// "Turn left onto Mill Lane". The maneuver modifier word is what the cue
// classifier keys on.
func instructionText(s osrmStep) string {
	var b strings.Builder
	switch s.Maneuver.Type {
	case "depart":
		b.WriteString("Head out")
	case "arrive":
		b.WriteString("Arrive at destination")
		return b.String()
	case "turn", "end of road", "fork", "merge", "continue":
		if s.Maneuver.Modifier == "" || s.Maneuver.Modifier == "straight" {
			b.WriteString("Continue straight")
		} else {
			b.WriteString("Turn ")
			b.WriteString(s.Maneuver.Modifier)
		}
	default:
		if s.Maneuver.Modifier != "" && s.Maneuver.Modifier != "straight" {
			b.WriteString("Keep ")
			b.WriteString(s.Maneuver.Modifier)
		} else {
			b.WriteString("Continue")
		}
	}
	if s.Name != "" {
		b.WriteString(" onto ")
		b.WriteString(s.Name)
	}
	return b.String()
}

// Package route holds the immutable model of a planned pedestrian trip: an
// ordered sequence of maneuver steps with geographic anchors, plus the route
// totals and geometry the progress tracker consumes. A Route is created once
// by a planner and never mutated afterwards.
package route

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stride-data/waypoint/internal/geo"
)

// ErrNoRouteFound is returned by planners when the routing provider produced
// no usable route between origin and destination. It is distinct from a
// calculation timeout, which the session layer reports separately.
var ErrNoRouteFound = errors.New("no route found")

// ErrEmptyRoute is returned when a route carries neither steps nor geometry
// and therefore has no destination to navigate towards.
var ErrEmptyRoute = errors.New("route has no steps or geometry")

// ManeuverKind classifies a step instruction into one of the cueable
// maneuver categories.
type ManeuverKind int

const (
	ManeuverStraight ManeuverKind = iota
	ManeuverLeft
	ManeuverRight
)

func (k ManeuverKind) String() string {
	switch k {
	case ManeuverLeft:
		return "left"
	case ManeuverRight:
		return "right"
	case ManeuverStraight:
		return "straight"
	default:
		return fmt.Sprintf("ManeuverKind(%d)", int(k))
	}
}

// Step is one instruction-bearing segment of a route, anchored at the
// geographic point where the maneuver happens. DistanceM is the length of
// the segment leading up to the anchor.
type Step struct {
	Instruction string
	Anchor      geo.Point
	DistanceM   float64
}

// Maneuver classifies the step instruction for cue selection. Anything that
// is not recognisably a left or right turn is treated as continue-straight.
func (s Step) Maneuver() ManeuverKind {
	return ClassifyInstruction(s.Instruction)
}

// ClassifyInstruction maps free-form instruction text onto a ManeuverKind.
// Matching is case-insensitive and tolerant of provider phrasing like
// "Turn sharp left onto Elm St" or "bear right".
func ClassifyInstruction(instruction string) ManeuverKind {
	text := strings.ToLower(instruction)
	// "left" / "right" may appear in street names ("Left Bank Rd"), so only
	// classify on the word appearing after a turn-ish verb or at the start.
	switch {
	case containsManeuverWord(text, "left"):
		return ManeuverLeft
	case containsManeuverWord(text, "right"):
		return ManeuverRight
	default:
		return ManeuverStraight
	}
}

var turnVerbs = []string{"turn", "bear", "keep", "sharp", "slight", "fork", "exit", "merge"}

func containsManeuverWord(text, direction string) bool {
	idx := strings.Index(text, direction)
	if idx < 0 {
		return false
	}
	if idx == 0 {
		return true
	}
	prefix := text[:idx]
	for _, verb := range turnVerbs {
		if strings.Contains(prefix, verb) {
			return true
		}
	}
	return false
}

// Route is an immutable description of a planned trip. Construct with New;
// accessors return copies so callers cannot alter traversal order.
type Route struct {
	id             string
	steps          []Step
	polyline       geo.Polyline
	totalDistanceM float64
	totalDurationS float64
}

// New validates and builds a Route. The step order must match traversal
// order from origin to destination; the route must carry at least a terminal
// point (zero-step routes where origin ~= destination are valid, but a route
// with neither steps nor geometry is not).
func New(id string, steps []Step, polyline geo.Polyline, totalDistanceM, totalDurationS float64) (*Route, error) {
	if len(steps) == 0 && len(polyline) == 0 {
		return nil, ErrEmptyRoute
	}
	if totalDistanceM < 0 {
		return nil, fmt.Errorf("total distance must be non-negative, got %f", totalDistanceM)
	}
	if totalDurationS < 0 {
		return nil, fmt.Errorf("total duration must be non-negative, got %f", totalDurationS)
	}
	r := &Route{
		id:             id,
		steps:          append([]Step(nil), steps...),
		polyline:       append(geo.Polyline(nil), polyline...),
		totalDistanceM: totalDistanceM,
		totalDurationS: totalDurationS,
	}
	return r, nil
}

// ID returns the route identifier assigned by the planner.
func (r *Route) ID() string { return r.id }

// NumSteps returns the number of maneuver steps.
func (r *Route) NumSteps() int { return len(r.steps) }

// Step returns the step at index i.
func (r *Route) Step(i int) Step { return r.steps[i] }

// Steps returns a copy of the ordered maneuver steps.
func (r *Route) Steps() []Step { return append([]Step(nil), r.steps...) }

// Polyline returns a copy of the route geometry.
func (r *Route) Polyline() geo.Polyline {
	return append(geo.Polyline(nil), r.polyline...)
}

// TotalDistanceM returns the planned trip length in metres.
func (r *Route) TotalDistanceM() float64 { return r.totalDistanceM }

// TotalDurationS returns the planned trip duration in seconds.
func (r *Route) TotalDurationS() float64 { return r.totalDurationS }

// Terminal returns the destination anchor: the last step's anchor, or the
// route's terminal geometry point when the route has no steps.
func (r *Route) Terminal() geo.Point {
	if len(r.steps) > 0 {
		return r.steps[len(r.steps)-1].Anchor
	}
	p, _ := r.polyline.Terminal()
	return p
}

// Plan is the result of one route calculation: a primary route plus zero or
// more alternatives, in provider preference order.
type Plan struct {
	Routes []*Route
}

// Primary returns the preferred route of the plan.
func (p *Plan) Primary() *Route {
	if p == nil || len(p.Routes) == 0 {
		return nil
	}
	return p.Routes[0]
}

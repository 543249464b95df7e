// Package session is the thin control surface over the progress tracker:
// it acquires routes from the planner with a bounded wait, starts and stops
// guidance, and forwards mode switches. It owns no navigation state itself.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stride-data/waypoint/internal/geo"
	"github.com/stride-data/waypoint/internal/monitoring"
	"github.com/stride-data/waypoint/internal/route"
	"github.com/stride-data/waypoint/internal/tracker"
)

var logf = monitoring.Component("session")

// ErrCalculationTimeout is returned when the planner did not answer within
// the route timeout. Distinct from route.ErrNoRouteFound, which means the
// planner answered and had nothing.
var ErrCalculationTimeout = errors.New("route calculation timed out")

// ErrNoCurrentPosition is returned when navigation is requested before any
// position sample has been received.
var ErrNoCurrentPosition = errors.New("no current position available")

// Planner produces route plans between two points. Implementations must
// honour ctx cancellation.
type Planner interface {
	CalculateRoute(ctx context.Context, origin, dest geo.Point) (*route.Plan, error)
}

// Controller drives the navigation session lifecycle.
type Controller struct {
	tracker    *tracker.Tracker
	planner    Planner
	timeout    time.Duration
	background atomic.Bool
}

// NewController builds a Controller. timeout bounds each route calculation;
// zero selects 30 seconds.
func NewController(tr *tracker.Tracker, planner Planner, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Controller{tracker: tr, planner: planner, timeout: timeout}
}

// Navigate plans a route from the last known position to dest and starts
// guidance in the given mode. Whatever the planner does, the tracker never
// stays in the calculating phase: it ends up navigating on success and idle
// on any failure.
func (c *Controller) Navigate(ctx context.Context, dest geo.Point, mode tracker.Mode) (*route.Route, error) {
	origin := c.tracker.Snapshot().LastKnown
	if origin == nil {
		return nil, ErrNoCurrentPosition
	}
	if err := c.tracker.BeginCalculating(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	plan, err := c.planner.CalculateRoute(ctx, *origin, dest)
	if err != nil {
		c.tracker.ResetToIdle()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrCalculationTimeout, c.timeout)
		}
		if errors.Is(err, route.ErrNoRouteFound) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("route calculation failed: %w", err)
	}

	r := plan.Primary()
	if r == nil {
		c.tracker.ResetToIdle()
		return nil, route.ErrNoRouteFound
	}
	if err := c.tracker.StartNavigation(r, mode); err != nil {
		c.tracker.ResetToIdle()
		return nil, err
	}
	return r, nil
}

// Stop ends the active session, cancelling any pending playback.
func (c *Controller) Stop() {
	c.tracker.StopNavigation()
}

// SetMode switches the guidance channel of the active session.
func (c *Controller) SetMode(mode tracker.Mode) error {
	return c.tracker.SetMode(mode)
}

// UpdatePosition feeds one position sample into the session.
func (c *Controller) UpdatePosition(p geo.Point) {
	c.tracker.UpdateProgress(p)
}

// State returns the tracker's navigation state.
func (c *Controller) State() tracker.NavigationState {
	return c.tracker.State()
}

// Snapshot returns the tracker snapshot plus the backgrounded flag.
func (c *Controller) Snapshot() Status {
	return Status{
		Snapshot:   c.tracker.Snapshot(),
		Background: c.background.Load(),
	}
}

// Status is the session view exposed to the host: the tracker snapshot plus
// whether the host reported itself backgrounded.
type Status struct {
	tracker.Snapshot
	Background bool `json:"background"`
}

// EnterBackground records that the host moved to the background. Guidance
// continues; position delivery cadence is the host's concern.
func (c *Controller) EnterBackground() {
	if c.background.CompareAndSwap(false, true) {
		logf("host backgrounded, state=%s", c.tracker.State().Phase)
	}
}

// EnterForeground records that the host returned to the foreground.
func (c *Controller) EnterForeground() {
	if c.background.CompareAndSwap(true, false) {
		logf("host foregrounded, state=%s", c.tracker.State().Phase)
	}
}

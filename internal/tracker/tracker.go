// Package tracker turns a stream of position samples into step-advancement
// and arrival decisions for an active route, and into feedback cue requests
// when the session is in haptic mode. It owns the navigation state machine
// and is the single source of truth for "is navigation active".
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stride-data/waypoint/internal/geo"
	"github.com/stride-data/waypoint/internal/monitoring"
	"github.com/stride-data/waypoint/internal/pattern"
	"github.com/stride-data/waypoint/internal/route"
)

var logf = monitoring.Component("tracker")

// ErrNotNavigating is returned by operations that require an active
// navigation session.
var ErrNotNavigating = errors.New("no active navigation session")

// ErrNavigationActive is returned when a route calculation is requested
// while a navigation session is already running.
var ErrNavigationActive = errors.New("navigation session already active")

// Phase is the top-level navigation lifecycle position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCalculating
	PhaseNavigating
	PhaseArrived
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCalculating:
		return "calculating"
	case PhaseNavigating:
		return "navigating"
	case PhaseArrived:
		return "arrived"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Mode selects the guidance channel while navigating.
type Mode int

const (
	ModeVisual Mode = iota
	ModeHaptic
)

func (m Mode) String() string {
	if m == ModeHaptic {
		return "haptic"
	}
	return "visual"
}

// ParseMode maps the wire names "visual" and "haptic" onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "visual":
		return ModeVisual, nil
	case "haptic":
		return ModeHaptic, nil
	default:
		return ModeVisual, fmt.Errorf("unknown navigation mode %q", s)
	}
}

// NavigationState pairs the lifecycle phase with the guidance mode. The mode
// field is meaningful only while navigating; it is retained through Arrived
// so the session summary can report how the trip was guided.
type NavigationState struct {
	Phase Phase `json:"phase"`
	Mode  Mode  `json:"mode"`
}

// CueSink is the feedback engine surface the tracker drives. Play requests
// are delivered through the cue dispatcher so position updates never wait on
// hardware; EnsureReady and StopAll are called inline on mode switches and
// session teardown.
type CueSink interface {
	Play(kind pattern.Kind) error
	StopAll() error
	EnsureReady() error
}

// Config carries the guidance thresholds. Zero values fall back to the
// defaults matching config.TuningConfig.
type Config struct {
	// StepProximityM advances the current step when the walker comes within
	// this distance of its anchor.
	StepProximityM float64
	// ArrivalM is the destination radius that completes the trip.
	ArrivalM float64
	// PreAlertM is the distance to the upcoming maneuver anchor at which a
	// feedback cue is requested.
	PreAlertM float64
	// MaxAccuracyM rejects samples whose reported horizontal accuracy is
	// worse than this bound.
	MaxAccuracyM float64
	// MaxSampleAge rejects samples older than this at delivery time.
	MaxSampleAge time.Duration
	// Distance is the great-circle distance function. Tests substitute a
	// synthetic metric here.
	Distance geo.DistanceFunc
}

func (c Config) withDefaults() Config {
	if c.StepProximityM <= 0 {
		c.StepProximityM = 50
	}
	if c.ArrivalM <= 0 {
		c.ArrivalM = 20
	}
	if c.PreAlertM <= 0 {
		c.PreAlertM = 100
	}
	if c.MaxAccuracyM <= 0 {
		c.MaxAccuracyM = 50
	}
	if c.MaxSampleAge <= 0 {
		c.MaxSampleAge = 10 * time.Second
	}
	if c.Distance == nil {
		c.Distance = geo.Haversine
	}
	return c
}

// Snapshot is a point-in-time view of the tracker, rich enough for an
// external component to persist and restore a session.
type Snapshot struct {
	State            NavigationState `json:"state"`
	RouteID          string          `json:"route_id,omitempty"`
	StepIndex        int             `json:"step_index"`
	StepsTotal       int             `json:"steps_total"`
	ProgressM        float64         `json:"progress_m"`
	ProgressFraction float64         `json:"progress_fraction"`
	LastKnown        *geo.Point      `json:"last_known,omitempty"`
}

// Tracker consumes position samples for the active route and requests
// feedback cues on qualifying transitions. Safe for concurrent use; cue
// requests are buffered and replayed in route order by RunCueDispatcher.
type Tracker struct {
	cfg  Config
	sink CueSink
	cues chan pattern.Kind
	perf *monitoring.PerfRecorder
	now  func() time.Time

	mu           sync.Mutex
	state        NavigationState
	rt           *route.Route
	stepIndex    int
	progressM    float64
	cueFired     []bool
	arrivalFired bool
	lastKnown    *geo.Point
}

// New builds a Tracker bound to the given cue sink.
func New(sink CueSink, cfg Config) *Tracker {
	return &Tracker{
		cfg:  cfg.withDefaults(),
		sink: sink,
		cues: make(chan pattern.Kind, 32),
		now:  time.Now,
	}
}

// SetPerfRecorder attaches a latency recorder sampled around cue playback.
func (t *Tracker) SetPerfRecorder(p *monitoring.PerfRecorder) { t.perf = p }

// State returns the current navigation state.
func (t *Tracker) State() NavigationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Snapshot returns a view of the tracker suitable for persistence or the
// status API.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		State:     t.state,
		StepIndex: t.stepIndex,
		ProgressM: t.progressM,
		LastKnown: t.lastKnown,
	}
	if t.rt != nil {
		s.RouteID = t.rt.ID()
		s.StepsTotal = t.rt.NumSteps()
		if total := t.rt.TotalDistanceM(); total > 0 {
			s.ProgressFraction = t.progressM / total
		}
	}
	return s
}

// BeginCalculating marks the start of a route acquisition. It is rejected
// while a navigation session is active; stop the session first.
func (t *Tracker) BeginCalculating() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Phase == PhaseNavigating {
		return ErrNavigationActive
	}
	t.state = NavigationState{Phase: PhaseCalculating}
	return nil
}

// ResetToIdle abandons a route calculation or a finished session and returns
// the tracker to idle. The last known position is retained.
func (t *Tracker) ResetToIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearSessionLocked()
}

func (t *Tracker) clearSessionLocked() {
	t.state = NavigationState{Phase: PhaseIdle}
	t.rt = nil
	t.stepIndex = 0
	t.progressM = 0
	t.cueFired = nil
	t.arrivalFired = false
	t.discardQueuedCuesLocked()
}

// discardQueuedCuesLocked empties the cue buffer so requests queued by a
// session do not play after that session ended or left haptic mode.
func (t *Tracker) discardQueuedCuesLocked() {
	for {
		select {
		case kind := <-t.cues:
			logf("discarding queued cue %s", kind)
		default:
			return
		}
	}
}

// StartNavigation begins guiding along r in the given mode. The feedback
// engine is not touched until a cue is actually due.
func (t *Tracker) StartNavigation(r *route.Route, mode Mode) error {
	if r == nil {
		return route.ErrEmptyRoute
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rt = r
	t.stepIndex = 0
	t.progressM = 0
	t.cueFired = make([]bool, r.NumSteps())
	t.arrivalFired = false
	t.state = NavigationState{Phase: PhaseNavigating, Mode: mode}
	logf("navigation started: route=%s steps=%d mode=%s", r.ID(), r.NumSteps(), mode)
	return nil
}

// SetMode switches the guidance channel without disturbing step index or
// progress. Switching into haptic warms up the feedback engine; switching
// into visual discards queued cues and cancels any in-flight playback.
// Engine trouble on either path
// is logged, not surfaced, because guidance continues either way.
func (t *Tracker) SetMode(mode Mode) error {
	t.mu.Lock()
	if t.state.Phase != PhaseNavigating {
		t.mu.Unlock()
		return ErrNotNavigating
	}
	prev := t.state.Mode
	t.state.Mode = mode
	if mode == ModeVisual && prev == ModeHaptic {
		t.discardQueuedCuesLocked()
	}
	t.mu.Unlock()

	if mode == prev {
		return nil
	}
	if mode == ModeHaptic {
		if err := t.sink.EnsureReady(); err != nil {
			logf("haptic warm-up failed, fallback cues remain active: %v", err)
		}
	} else {
		if err := t.sink.StopAll(); err != nil {
			logf("stopping playback on switch to visual: %v", err)
		}
	}
	return nil
}

// StopNavigation tears down the session, discards queued cues and stops any
// active playback. The hardware handle itself stays open for the next
// session.
func (t *Tracker) StopNavigation() {
	t.mu.Lock()
	active := t.state.Phase != PhaseIdle
	t.clearSessionLocked()
	t.mu.Unlock()

	if active {
		if err := t.sink.StopAll(); err != nil {
			logf("stopping playback on session end: %v", err)
		}
	}
}

// UpdateProgress feeds one position sample into the session. Samples are
// accepted in any phase; outside of navigation they only refresh the last
// known position. The call never blocks on the feedback hardware.
func (t *Tracker) UpdateProgress(p geo.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Even rejected samples are kept for diagnostics and as the origin of
	// the next route calculation.
	sample := p
	t.lastKnown = &sample

	if !t.acceptable(p) || t.state.Phase != PhaseNavigating {
		return
	}

	r := t.rt
	total := r.NumSteps()

	// Step advancement: within proximity of the current anchor means the
	// maneuver is happening, so the next step becomes current. One sample
	// advances at most one step.
	if t.stepIndex < total {
		if t.cfg.Distance(p, r.Step(t.stepIndex).Anchor) < t.cfg.StepProximityM {
			t.stepIndex++
		}
	}

	// Progress is the completed-step share of the planned length. This is a
	// deliberate approximation, not arc-length along the geometry; it is
	// coarse on routes with very uneven step lengths but matches what the
	// progress consumers expect.
	if total > 0 {
		t.progressM = float64(t.stepIndex) / float64(total) * r.TotalDistanceM()
	}

	if t.cfg.Distance(p, r.Terminal()) < t.cfg.ArrivalM {
		t.stepIndex = total
		t.progressM = r.TotalDistanceM()
		t.state.Phase = PhaseArrived
		if t.state.Mode == ModeHaptic && !t.arrivalFired {
			t.arrivalFired = true
			t.requestCueLocked(pattern.KindArrival)
		}
		logf("arrived: route=%s", r.ID())
		return
	}

	// Pre-alert for the upcoming maneuver, once per step.
	if t.state.Mode == ModeHaptic && t.stepIndex < total && !t.cueFired[t.stepIndex] {
		step := r.Step(t.stepIndex)
		if t.cfg.Distance(p, step.Anchor) < t.cfg.PreAlertM {
			t.cueFired[t.stepIndex] = true
			t.requestCueLocked(pattern.ForManeuver(step.Maneuver().String()))
		}
	}
}

// acceptable reports whether a sample is trustworthy enough to drive
// advancement and arrival decisions.
func (t *Tracker) acceptable(p geo.Point) bool {
	if p.HorizontalAccuracyM > t.cfg.MaxAccuracyM {
		return false
	}
	if !p.Timestamp.IsZero() && t.now().Sub(p.Timestamp) > t.cfg.MaxSampleAge {
		return false
	}
	return true
}

// requestCueLocked queues a cue for the dispatcher. The buffer preserves
// route order; on overflow the cue is dropped rather than blocking a
// position update.
func (t *Tracker) requestCueLocked(kind pattern.Kind) {
	select {
	case t.cues <- kind:
	default:
		logf("cue buffer full, dropping %s", kind)
	}
}

// Cues exposes the queued cue requests in route order.
func (t *Tracker) Cues() <-chan pattern.Kind { return t.cues }

// RunCueDispatcher forwards queued cues to the sink until ctx is cancelled.
// A single dispatcher preserves the route ordering of cue requests. Playback
// errors are logged only; the fallback channels have already been driven by
// the sink itself.
func (t *Tracker) RunCueDispatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case kind := <-t.cues:
			if err := t.sink.EnsureReady(); err != nil {
				logf("feedback engine not ready for %s: %v", kind, err)
			}
			start := time.Now()
			err := t.sink.Play(kind)
			if t.perf != nil {
				t.perf.Observe(time.Since(start))
			}
			if err != nil {
				logf("cue %s degraded to fallback: %v", kind, err)
			}
		}
	}
}

package haptic

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/stride-data/waypoint/internal/pattern"
)

// State is the lifecycle state of the haptic engine.
type State int

const (
	StateNotInitialized State = iota
	StateInitializing
	StateRunning
	StateStopped
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateNotInitialized:
		return "not-initialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FallbackDelegate receives the audio/visual rendition of a cue whenever
// hardware playback is unavailable, disabled, or fails. The delegate is
// invoked synchronously on the failure path of the triggering call, so
// callers and tests can rely on fallback always accompanying haptic
// unavailability.
type FallbackDelegate interface {
	PlayAudioFallback(p pattern.Pattern)
	ShowVisualFallback(p pattern.Pattern)
}

// CueEvent describes one delivered cue, on either channel. Events are
// published to subscribers for the debug tail and the trip log.
type CueEvent struct {
	Kind    pattern.Kind `json:"kind"`
	Channel string       `json:"channel"` // "haptic" or "fallback"
	At      time.Time    `json:"at"`
	Detail  string       `json:"detail,omitempty"`
}

// Config holds the engine failure policy.
type Config struct {
	// FailureThreshold is the consecutive-failure count at which the engine
	// enters the cooldown window and signals permanent degradation.
	FailureThreshold int
	// CooldownWindow is how long after the last failure the engine refuses
	// hardware access and routes straight to fallback.
	CooldownWindow time.Duration
}

// Engine owns the haptic hardware handle exclusively. It persists across
// navigation sessions (the device is not torn down between trips) and is
// reset only on explicit recovery or a device-initiated reset event.
//
// All haptic errors it returns are locally recoverable: every unavailable,
// disabled, or failed playback resolves into a synchronous fallback delegate
// call plus an error value for logging. Nothing here is fatal to the caller.
type Engine struct {
	factory  ActuatorFactory
	fallback FallbackDelegate
	cfg      Config

	mu           sync.Mutex
	act          Actuator
	state        State
	stateReason  error // populated while state == StateErrored
	enabled      bool  // session-level "haptic mode enabled" flag
	failures     int
	lastFailure  time.Time
	degraded     bool
	onDegraded   func()
	now          func() time.Time
	subscribers  map[string]chan CueEvent
	subscriberMu sync.Mutex
}

// NewEngine creates an engine around the given device factory and fallback
// delegate. Haptic playback starts disabled; the session controller enables
// it when the user selects haptic mode.
func NewEngine(factory ActuatorFactory, fallback FallbackDelegate, cfg Config) *Engine {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CooldownWindow <= 0 {
		cfg.CooldownWindow = 60 * time.Second
	}
	return &Engine{
		factory:     factory,
		fallback:    fallback,
		cfg:         cfg,
		state:       StateNotInitialized,
		now:         time.Now,
		subscribers: make(map[string]chan CueEvent),
	}
}

// SetOnDegraded registers the observer notified (once) when the consecutive
// failure count crosses the threshold. Hosts use this to disable the haptic
// toggle in their UI.
func (e *Engine) SetOnDegraded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDegraded = fn
}

// IsCapable reports whether haptic hardware is present. Pure capability
// query with no side effects; does not require initialization.
func (e *Engine) IsCapable() bool {
	return e.factory.Detect()
}

// State returns the current engine lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Degraded reports whether the engine has signalled permanent degradation.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// SetHapticEnabled flips the session-level haptic flag. Disabling does not
// tear down the hardware handle.
func (e *Engine) SetHapticEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// HapticEnabled reports the session-level haptic flag.
func (e *Engine) HapticEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// inCooldownLocked reports whether the engine is inside the failure cooldown
// window. Expiry of the window resets the failure counter.
func (e *Engine) inCooldownLocked() bool {
	if e.failures < e.cfg.FailureThreshold {
		return false
	}
	if e.now().Sub(e.lastFailure) < e.cfg.CooldownWindow {
		return true
	}
	e.failures = 0
	return false
}

// recordFailureLocked bumps the consecutive-failure count and reports
// whether this failure crossed the degradation threshold.
func (e *Engine) recordFailureLocked() (crossed bool) {
	e.failures++
	e.lastFailure = e.now()
	if e.failures >= e.cfg.FailureThreshold && !e.degraded {
		e.degraded = true
		return true
	}
	return false
}

// Initialize arms the hardware device.
//
// It fails with ErrEngineNotAvailable when no hardware is present, and with
// ErrEngineNotInitialized when called inside an active cooldown window (in
// which case no hardware access is attempted). A hardware-reported failure
// during start moves the engine to StateErrored, feeds the failure tracker,
// and surfaces a PlaybackError.
func (e *Engine) Initialize() error {
	if !e.factory.Detect() {
		return ErrEngineNotAvailable
	}

	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return nil
	}
	if e.inCooldownLocked() {
		e.mu.Unlock()
		return ErrEngineNotInitialized
	}

	e.state = StateInitializing
	e.mu.Unlock()

	act, err := e.factory.Open()

	e.mu.Lock()
	if err != nil {
		e.state = StateErrored
		e.stateReason = err
		crossed := e.recordFailureLocked()
		e.mu.Unlock()
		if crossed {
			e.notifyDegraded()
		}
		return &PlaybackError{Op: "initialize", Reason: err}
	}

	e.act = act
	e.state = StateRunning
	e.stateReason = nil
	e.mu.Unlock()

	go e.watch(act)
	logf("engine running")
	return nil
}

// watch consumes unsolicited device events for the lifetime of one actuator
// handle. A device-initiated reset re-runs the engine's own initialization
// path, the same recovery used by an explicit ResetEngine call.
func (e *Engine) watch(act Actuator) {
	for ev := range act.Events() {
		if ev == EventReset {
			logf("device reset itself, re-arming")
			if err := e.ResetEngine(); err != nil {
				logf("re-arm after device reset failed: %v", err)
			}
			return
		}
		logf("device event: %s", ev)
	}
}

// EnsureReady initializes the engine unless it is already running. Used when
// the session switches into haptic mode so future cues find the hardware
// armed.
func (e *Engine) EnsureReady() error {
	e.mu.Lock()
	running := e.state == StateRunning
	e.mu.Unlock()
	if running {
		return nil
	}
	return e.Initialize()
}

// Play synthesizes the catalog pattern for kind on the hardware.
//
// When haptic output is disabled, uninitialized, in cooldown, or the
// hardware rejects the waveform, the fallback delegate is invoked
// synchronously and a non-fatal error is returned for logging; the caller
// can always treat haptic failure as survivable.
func (e *Engine) Play(kind pattern.Kind) error {
	p, err := pattern.Lookup(kind)
	if err != nil {
		// Malformed catalog entries are programming errors; there is no
		// renderable cue to delegate.
		return fmt.Errorf("%w: %v", ErrPatternCreationFailed, err)
	}

	e.mu.Lock()

	if !e.enabled {
		e.mu.Unlock()
		e.delegateFallback(p, "haptic disabled")
		return ErrEngineNotAvailable
	}

	if e.inCooldownLocked() {
		e.mu.Unlock()
		e.delegateFallback(p, "cooldown")
		return ErrEngineNotInitialized
	}

	if e.state != StateRunning || e.act == nil {
		capable := e.factory.Detect()
		e.mu.Unlock()
		e.delegateFallback(p, "engine not running")
		if !capable {
			return ErrEngineNotAvailable
		}
		return ErrEngineNotInitialized
	}

	act := e.act
	e.mu.Unlock()

	if err := act.PlayWaveform(p.Pulses); err != nil {
		e.mu.Lock()
		crossed := e.recordFailureLocked()
		e.mu.Unlock()
		if crossed {
			e.notifyDegraded()
		}
		e.delegateFallback(p, err.Error())
		return &PlaybackError{Op: "play", Reason: err}
	}

	// One successful initialize-and-play sequence clears the failure count.
	e.mu.Lock()
	e.failures = 0
	e.mu.Unlock()

	e.publish(CueEvent{Kind: kind, Channel: "haptic", At: e.now()})
	return nil
}

// delegateFallback routes the cue to the audio and visual channels,
// synchronously with the failing call.
func (e *Engine) delegateFallback(p pattern.Pattern, detail string) {
	if e.fallback != nil {
		e.fallback.PlayAudioFallback(p)
		e.fallback.ShowVisualFallback(p)
	}
	e.publish(CueEvent{Kind: p.Kind, Channel: "fallback", At: e.now(), Detail: detail})
}

func (e *Engine) notifyDegraded() {
	logf("failure threshold crossed, haptic output permanently degraded")
	e.mu.Lock()
	fn := e.onDegraded
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// StopAll stops any in-flight playback without changing engine state.
func (e *Engine) StopAll() error {
	e.mu.Lock()
	act := e.act
	e.mu.Unlock()
	if act == nil {
		return nil
	}
	if err := act.StopPlayback(); err != nil {
		logf("stop playback: %v", err)
		return err
	}
	return nil
}

// ResetEngine stops playback, tears down the hardware handle, and
// re-initializes. Used both for explicit recovery and for device-initiated
// reset events.
func (e *Engine) ResetEngine() error {
	e.mu.Lock()
	if e.act != nil {
		if err := e.act.StopPlayback(); err != nil {
			logf("stop during reset: %v", err)
		}
		if err := e.act.Close(); err != nil {
			logf("close during reset: %v", err)
		}
		e.act = nil
	}
	e.state = StateNotInitialized
	e.mu.Unlock()

	return e.Initialize()
}

// Close releases the hardware handle and leaves the engine stopped. Used at
// process shutdown, not between trips.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.act != nil {
		err = e.act.Close()
		e.act = nil
	}
	e.state = StateStopped
	return err
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel receiving cue events. The returned ID
// identifies the channel for Unsubscribe.
func (e *Engine) Subscribe() (string, chan CueEvent) {
	id := randomID()
	ch := make(chan CueEvent, 16)
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	e.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a cue event channel.
func (e *Engine) Unsubscribe(id string) {
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	if ch, ok := e.subscribers[id]; ok {
		close(ch)
		delete(e.subscribers, id)
	}
}

func (e *Engine) publish(ev CueEvent) {
	e.subscriberMu.Lock()
	defer e.subscriberMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscribers miss events rather than block playback
		}
	}
}

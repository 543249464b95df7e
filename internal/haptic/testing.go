package haptic

import (
	"sync"

	"github.com/stride-data/waypoint/internal/pattern"
)

// TestableActuator implements Actuator with configurable behaviour for
// testing. It provides fine-grained control over playback errors and records
// every waveform submitted.
type TestableActuator struct {
	mu sync.Mutex

	// PlayError is returned by the next PlayWaveform call if set.
	PlayError error

	// StopError is returned by StopPlayback if set.
	StopError error

	// Played records every waveform submitted, in order.
	Played [][]pattern.Pulse

	// StopCalls records the number of StopPlayback calls.
	StopCalls int

	// Closed indicates whether Close was called.
	Closed bool

	events chan string
}

// NewTestableActuator creates a TestableActuator with an open event channel.
func NewTestableActuator() *TestableActuator {
	return &TestableActuator{events: make(chan string, 4)}
}

// PlayWaveform records the pulses or returns the scripted error.
func (a *TestableActuator) PlayWaveform(pulses []pattern.Pulse) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.PlayError != nil {
		err := a.PlayError
		return err
	}
	a.Played = append(a.Played, append([]pattern.Pulse(nil), pulses...))
	return nil
}

// StopPlayback records the call or returns the scripted error.
func (a *TestableActuator) StopPlayback() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.StopCalls++
	return a.StopError
}

// Events returns the scriptable event channel.
func (a *TestableActuator) Events() <-chan string { return a.events }

// EmitEvent injects an unsolicited device event (e.g. EventReset).
func (a *TestableActuator) EmitEvent(ev string) { a.events <- ev }

// Close marks the actuator closed and closes the event channel.
func (a *TestableActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.Closed {
		a.Closed = true
		close(a.events)
	}
	return nil
}

// PlayedCount returns the number of waveforms submitted so far.
func (a *TestableActuator) PlayedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Played)
}

// SetPlayError scripts the error returned by subsequent PlayWaveform calls.
func (a *TestableActuator) SetPlayError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PlayError = err
}

// TestableFactory implements ActuatorFactory for testing.
type TestableFactory struct {
	mu sync.Mutex

	// Capable is returned by Detect.
	Capable bool

	// OpenError is returned by Open if set.
	OpenError error

	// Actuator is returned by Open when OpenError is nil. When nil, Open
	// creates a fresh TestableActuator per call.
	Actuator Actuator

	// OpenCalls records the number of Open calls.
	OpenCalls int

	// LastOpened is the most recent actuator handed out.
	LastOpened *TestableActuator
}

// NewTestableFactory creates a capable factory that hands out fresh
// TestableActuators.
func NewTestableFactory() *TestableFactory {
	return &TestableFactory{Capable: true}
}

// Detect reports the scripted capability.
func (f *TestableFactory) Detect() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Capable
}

// Open returns the scripted actuator or error, counting the attempt.
func (f *TestableFactory) Open() (Actuator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls++
	if f.OpenError != nil {
		return nil, f.OpenError
	}
	if f.Actuator != nil {
		return f.Actuator, nil
	}
	a := NewTestableActuator()
	f.LastOpened = a
	return a, nil
}

// SetOpenError scripts the error returned by subsequent Open calls.
func (f *TestableFactory) SetOpenError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenError = err
}

// OpenCount returns the number of Open attempts made so far.
func (f *TestableFactory) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.OpenCalls
}

// RecordingFallback implements FallbackDelegate and records every delegated
// cue for assertions.
type RecordingFallback struct {
	mu     sync.Mutex
	Audio  []pattern.Pattern
	Visual []pattern.Pattern
}

// PlayAudioFallback records the audio cue.
func (r *RecordingFallback) PlayAudioFallback(p pattern.Pattern) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Audio = append(r.Audio, p)
}

// ShowVisualFallback records the visual cue.
func (r *RecordingFallback) ShowVisualFallback(p pattern.Pattern) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Visual = append(r.Visual, p)
}

// Counts returns how many audio and visual cues were delegated.
func (r *RecordingFallback) Counts() (audio, visual int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Audio), len(r.Visual)
}

package haptic

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. All of these are locally recoverable: they resolve
// into a fallback delegate call plus an error value for the immediate
// caller; none propagate as fatal.
var (
	// ErrEngineNotAvailable means there is no haptic hardware (capability
	// probe failed) or haptic mode is disabled for the session.
	ErrEngineNotAvailable = errors.New("haptic engine not available")

	// ErrEngineNotInitialized means the engine has not been started, or is
	// refusing hardware access inside a failure cooldown window.
	ErrEngineNotInitialized = errors.New("haptic engine not initialized")

	// ErrPatternCreationFailed means the catalog produced a malformed
	// waveform. This is a programming error, not a user-facing condition.
	ErrPatternCreationFailed = errors.New("pattern creation failed")
)

// PlaybackError wraps the hardware-reported reason for a failed
// initialization or playback attempt.
type PlaybackError struct {
	Op     string // "initialize" or "play"
	Reason error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("haptic %s failed: %v", e.Op, e.Reason)
}

func (e *PlaybackError) Unwrap() error { return e.Reason }

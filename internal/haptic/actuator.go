// Package haptic owns the lifecycle of the physical feedback device:
// capability detection, initialization, pattern playback, failure tracking
// with cooldown, reset, and transparent fallback delegation to audio/visual
// channels when hardware output is unavailable, disabled, or failing.
package haptic

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/stride-data/waypoint/internal/pattern"
)

// Actuator is the minimal interface for an opened haptic feedback device.
// This abstraction enables unit testing without real vibration hardware; the
// engine owns the handle exclusively.
type Actuator interface {
	// PlayWaveform submits the pulses to the hardware. It returns once the
	// device has accepted or rejected the waveform; the physical vibration
	// continues independently, and overlapping submissions are permitted.
	PlayWaveform(pulses []pattern.Pulse) error
	// StopPlayback cancels any in-flight waveform without closing the device.
	StopPlayback() error
	// Events delivers unsolicited device notifications. The device may
	// unilaterally reset itself (e.g. resource contention with another
	// process); such resets arrive here as EventReset.
	Events() <-chan string
	// Close releases the device handle.
	Close() error
}

// EventReset is the unsolicited device notification emitted when the
// hardware resource reset itself and lost its playback state.
const EventReset = "EV:RESET"

// ActuatorFactory creates actuator handles and answers capability queries.
// This abstraction enables dependency injection of device creation.
type ActuatorFactory interface {
	// Detect reports whether haptic hardware is present. Pure query, no
	// side effects, does not require an open handle.
	Detect() bool
	// Open opens and arms the device, returning a ready actuator.
	Open() (Actuator, error)
}

// PortOptions describes the serial connection parameters used when opening
// the actuator's serial link.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	if parity == "" {
		parity = "N"
	}
	switch parity {
	case "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	return opts, nil
}

// SerialMode converts the port options into the serial.Mode structure
// required by go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.StopBits(opts.StopBits),
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	return mode, nil
}

// ackTimeout bounds how long a waveform submission waits for the device to
// accept or reject it. Kept under the 100ms design ceiling for Play calls.
const ackTimeout = 80 * time.Millisecond

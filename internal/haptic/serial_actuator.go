package haptic

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/stride-data/waypoint/internal/monitoring"
	"github.com/stride-data/waypoint/internal/pattern"
)

var logf = monitoring.Component("haptic")

// SerialActuator drives a vibration driver board over a serial link. The
// wire protocol is line oriented:
//
//	-> WAV <intensity>,<sharpness>,<offset_ms>;...   submit a waveform
//	-> STP                                           stop playback
//	<- OK | ERR <reason>                             command acknowledgement
//	<- EV:RESET                                      device reset itself
//
// A reader goroutine splits inbound lines into acknowledgements (consumed by
// the command in flight) and events (surfaced through Events()).
type SerialActuator struct {
	port serial.Port

	mu     sync.Mutex // serialises command write + ack wait
	acks   chan string
	events chan string
	once   sync.Once
}

// newSerialActuator wraps an open port and starts the reader goroutine.
func newSerialActuator(port serial.Port) *SerialActuator {
	a := &SerialActuator{
		port:   port,
		acks:   make(chan string, 1),
		events: make(chan string, 4),
	}
	go a.readLoop()
	return a
}

func (a *SerialActuator) readLoop() {
	scan := bufio.NewScanner(a.port)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "EV:"):
			select {
			case a.events <- line:
			default:
				// drop events rather than stall the reader
			}
		default:
			select {
			case a.acks <- line:
			default:
			}
		}
	}
	if err := scan.Err(); err != nil && err != io.EOF {
		logf("serial reader stopped: %v", err)
	}
	close(a.events)
}

// command writes one line and waits for the device acknowledgement.
func (a *SerialActuator) command(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// discard any stale ack from an abandoned command
	select {
	case <-a.acks:
	default:
	}

	if _, err := a.port.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}

	select {
	case ack, ok := <-a.acks:
		if !ok {
			return fmt.Errorf("device closed during %q", line)
		}
		if strings.HasPrefix(ack, "ERR") {
			return fmt.Errorf("device rejected %q: %s", line, strings.TrimSpace(strings.TrimPrefix(ack, "ERR")))
		}
		return nil
	case <-time.After(ackTimeout):
		return fmt.Errorf("device did not acknowledge %q within %v", line, ackTimeout)
	}
}

// PlayWaveform encodes the pulses as a WAV command and submits it.
func (a *SerialActuator) PlayWaveform(pulses []pattern.Pulse) error {
	parts := make([]string, len(pulses))
	for i, p := range pulses {
		parts[i] = fmt.Sprintf("%.2f,%.2f,%d", p.Intensity, p.Sharpness, p.Offset.Milliseconds())
	}
	return a.command("WAV " + strings.Join(parts, ";"))
}

// StopPlayback cancels any in-flight waveform.
func (a *SerialActuator) StopPlayback() error {
	return a.command("STP")
}

// Events returns the unsolicited device notification channel. The channel
// closes when the serial link is lost or the actuator is closed.
func (a *SerialActuator) Events() <-chan string {
	return a.events
}

// Close releases the serial port. Safe to call more than once.
func (a *SerialActuator) Close() error {
	var err error
	a.once.Do(func() {
		err = a.port.Close()
	})
	return err
}

// SerialFactory opens SerialActuators at a fixed device path.
type SerialFactory struct {
	Path    string
	Options PortOptions

	// listPorts is swappable for tests; defaults to serial.GetPortsList.
	listPorts func() ([]string, error)
}

// NewSerialFactory creates a factory for the actuator at path.
func NewSerialFactory(path string, opts PortOptions) *SerialFactory {
	return &SerialFactory{Path: path, Options: opts, listPorts: serial.GetPortsList}
}

// Detect reports whether the configured device path is currently enumerated
// by the OS. No handle is opened.
func (f *SerialFactory) Detect() bool {
	if f.Path == "" {
		return false
	}
	list := f.listPorts
	if list == nil {
		list = serial.GetPortsList
	}
	ports, err := list()
	if err != nil {
		logf("port enumeration failed: %v", err)
		return false
	}
	for _, p := range ports {
		if p == f.Path {
			return true
		}
	}
	return false
}

// Open opens the serial link and arms the device with a PING handshake.
func (f *SerialFactory) Open() (Actuator, error) {
	mode, err := f.Options.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(f.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}

	a := newSerialActuator(port)
	if err := a.command("PING"); err != nil {
		a.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return a, nil
}

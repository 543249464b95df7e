// Package pattern defines the feedback pattern catalog: the four cue
// waveforms the haptic engine can synthesise, plus their audio fallback
// parameters. The shapes are part of the navigation contract — each pattern
// must stay perceptually distinct from the others (pulse count, intensity
// band, duration band), so the catalog is validated rather than trusted.
package pattern

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPattern indicates a catalog entry that violates its shape
// constraints. This is a programming error in the catalog, not a runtime
// hardware condition.
var ErrMalformedPattern = errors.New("malformed feedback pattern")

// Kind identifies one of the four cue patterns.
type Kind int

const (
	KindLeftTurn Kind = iota + 1
	KindRightTurn
	KindContinueStraight
	KindArrival
)

func (k Kind) String() string {
	switch k {
	case KindLeftTurn:
		return "left-turn"
	case KindRightTurn:
		return "right-turn"
	case KindContinueStraight:
		return "continue-straight"
	case KindArrival:
		return "arrival"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a wire/CLI name back onto a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindLeftTurn, KindRightTurn, KindContinueStraight, KindArrival} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown pattern kind %q", s)
}

// Pulse is one haptic transient. Intensity and Sharpness are normalised to
// [0, 1]; Offset is the delay from pattern start to this pulse.
type Pulse struct {
	Intensity float64
	Sharpness float64
	Offset    time.Duration
}

// Pattern is a single catalog entry. Immutable once defined; Lookup returns
// copies so callers cannot alter the catalog at runtime.
type Pattern struct {
	Kind        Kind
	Pulses      []Pulse
	Duration    time.Duration
	AudioFreqHz float64
	Description string
}

// The catalog. Shape contract:
//   - left turn: one short sharp pulse
//   - right turn: two short sharp pulses separated by a fixed gap
//   - continue straight: one long low-intensity pulse
//   - arrival: three medium pulses in quick succession
var catalog = map[Kind]Pattern{
	KindLeftTurn: {
		Kind:        KindLeftTurn,
		Pulses:      []Pulse{{Intensity: 0.85, Sharpness: 0.9, Offset: 0}},
		Duration:    150 * time.Millisecond,
		AudioFreqHz: 880,
		Description: "Turn left ahead",
	},
	KindRightTurn: {
		Kind: KindRightTurn,
		Pulses: []Pulse{
			{Intensity: 0.85, Sharpness: 0.9, Offset: 0},
			{Intensity: 0.85, Sharpness: 0.9, Offset: 250 * time.Millisecond},
		},
		Duration:    400 * time.Millisecond,
		AudioFreqHz: 1040,
		Description: "Turn right ahead",
	},
	KindContinueStraight: {
		Kind:        KindContinueStraight,
		Pulses:      []Pulse{{Intensity: 0.35, Sharpness: 0.15, Offset: 0}},
		Duration:    600 * time.Millisecond,
		AudioFreqHz: 660,
		Description: "Continue straight",
	},
	KindArrival: {
		Kind: KindArrival,
		Pulses: []Pulse{
			{Intensity: 0.6, Sharpness: 0.5, Offset: 0},
			{Intensity: 0.6, Sharpness: 0.5, Offset: 150 * time.Millisecond},
			{Intensity: 0.6, Sharpness: 0.5, Offset: 300 * time.Millisecond},
		},
		Duration:    450 * time.Millisecond,
		AudioFreqHz: 1320,
		Description: "You have arrived at your destination",
	},
}

// Lookup returns the catalog pattern for kind. The returned pattern is a
// copy; mutating it does not affect the catalog.
func Lookup(kind Kind) (Pattern, error) {
	p, ok := catalog[kind]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: no catalog entry for %v", ErrMalformedPattern, kind)
	}
	if err := p.Validate(); err != nil {
		return Pattern{}, err
	}
	p.Pulses = append([]Pulse(nil), p.Pulses...)
	return p, nil
}

// All returns copies of every catalog entry in kind order.
func All() []Pattern {
	out := make([]Pattern, 0, len(catalog))
	for _, k := range []Kind{KindLeftTurn, KindRightTurn, KindContinueStraight, KindArrival} {
		p := catalog[k]
		p.Pulses = append([]Pulse(nil), p.Pulses...)
		out = append(out, p)
	}
	return out
}

// Validate checks the per-kind shape constraints that keep the four cues
// perceptually distinct.
func (p Pattern) Validate() error {
	if len(p.Pulses) == 0 {
		return fmt.Errorf("%w: %v has no pulses", ErrMalformedPattern, p.Kind)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("%w: %v has non-positive duration", ErrMalformedPattern, p.Kind)
	}
	if p.AudioFreqHz <= 0 {
		return fmt.Errorf("%w: %v has non-positive audio frequency", ErrMalformedPattern, p.Kind)
	}
	for i, pulse := range p.Pulses {
		if pulse.Intensity <= 0 || pulse.Intensity > 1 {
			return fmt.Errorf("%w: %v pulse %d intensity %f outside (0, 1]", ErrMalformedPattern, p.Kind, i, pulse.Intensity)
		}
		if pulse.Sharpness < 0 || pulse.Sharpness > 1 {
			return fmt.Errorf("%w: %v pulse %d sharpness %f outside [0, 1]", ErrMalformedPattern, p.Kind, i, pulse.Sharpness)
		}
		if pulse.Offset < 0 || pulse.Offset > p.Duration {
			return fmt.Errorf("%w: %v pulse %d offset %v outside pattern duration", ErrMalformedPattern, p.Kind, i, pulse.Offset)
		}
	}

	switch p.Kind {
	case KindLeftTurn:
		if len(p.Pulses) != 1 || p.Pulses[0].Intensity < 0.7 || p.Duration > 250*time.Millisecond {
			return fmt.Errorf("%w: left turn must be a single short sharp pulse", ErrMalformedPattern)
		}
	case KindRightTurn:
		if len(p.Pulses) != 2 {
			return fmt.Errorf("%w: right turn must be two pulses", ErrMalformedPattern)
		}
		if gap := p.Pulses[1].Offset - p.Pulses[0].Offset; gap < 100*time.Millisecond {
			return fmt.Errorf("%w: right turn pulses need a perceivable gap, got %v", ErrMalformedPattern, gap)
		}
	case KindContinueStraight:
		if len(p.Pulses) != 1 || p.Pulses[0].Intensity > 0.5 || p.Duration < 400*time.Millisecond {
			return fmt.Errorf("%w: continue straight must be one long low-intensity pulse", ErrMalformedPattern)
		}
	case KindArrival:
		if len(p.Pulses) != 3 {
			return fmt.Errorf("%w: arrival must be three pulses", ErrMalformedPattern)
		}
		for i, pulse := range p.Pulses {
			if pulse.Intensity < 0.5 || pulse.Intensity > 0.7 {
				return fmt.Errorf("%w: arrival pulse %d intensity %f outside medium band", ErrMalformedPattern, i, pulse.Intensity)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrMalformedPattern, p.Kind)
	}
	return nil
}

// ForManeuver maps a maneuver classification name onto the matching cue
// kind. The tracker classifies instructions as left / right / straight.
func ForManeuver(maneuver string) Kind {
	switch maneuver {
	case "left":
		return KindLeftTurn
	case "right":
		return KindRightTurn
	default:
		return KindContinueStraight
	}
}

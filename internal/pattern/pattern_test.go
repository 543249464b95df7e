package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsValid(t *testing.T) {
	t.Parallel()

	for _, p := range All() {
		t.Run(p.Kind.String(), func(t *testing.T) {
			t.Parallel()
			assert.NoError(t, p.Validate())
		})
	}
}

func TestCatalogShapesAreDistinct(t *testing.T) {
	t.Parallel()

	left, err := Lookup(KindLeftTurn)
	require.NoError(t, err)
	right, err := Lookup(KindRightTurn)
	require.NoError(t, err)
	straight, err := Lookup(KindContinueStraight)
	require.NoError(t, err)
	arrival, err := Lookup(KindArrival)
	require.NoError(t, err)

	// Pulse counts separate left (1), right (2), and arrival (3).
	assert.Len(t, left.Pulses, 1)
	assert.Len(t, right.Pulses, 2)
	assert.Len(t, arrival.Pulses, 3)

	// Left and straight both have one pulse; intensity and duration bands
	// keep them apart.
	assert.Less(t, straight.Pulses[0].Intensity, left.Pulses[0].Intensity)
	assert.Greater(t, straight.Duration, left.Duration)

	// No two patterns collapse to the same (count, duration) shape.
	type shape struct {
		pulses   int
		duration time.Duration
	}
	seen := map[shape]Kind{}
	for _, p := range []Pattern{left, right, straight, arrival} {
		s := shape{pulses: len(p.Pulses), duration: p.Duration}
		if prior, dup := seen[s]; dup {
			t.Fatalf("patterns %v and %v share shape %+v", prior, p.Kind, s)
		}
		seen[s] = p.Kind
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()
		_, err := Lookup(Kind(99))
		assert.ErrorIs(t, err, ErrMalformedPattern)
	})

	t.Run("returned pattern is a copy", func(t *testing.T) {
		t.Parallel()
		p, err := Lookup(KindLeftTurn)
		require.NoError(t, err)
		p.Pulses[0].Intensity = 0.01

		again, err := Lookup(KindLeftTurn)
		require.NoError(t, err)
		assert.Equal(t, 0.85, again.Pulses[0].Intensity)
	})
}

func TestValidateRejectsMalformedShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    Pattern
	}{
		{
			name: "no pulses",
			p:    Pattern{Kind: KindLeftTurn, Duration: time.Second, AudioFreqHz: 880},
		},
		{
			name: "left turn too soft",
			p: Pattern{
				Kind:        KindLeftTurn,
				Pulses:      []Pulse{{Intensity: 0.2, Sharpness: 0.9}},
				Duration:    100 * time.Millisecond,
				AudioFreqHz: 880,
			},
		},
		{
			name: "right turn gap too small",
			p: Pattern{
				Kind: KindRightTurn,
				Pulses: []Pulse{
					{Intensity: 0.85, Sharpness: 0.9},
					{Intensity: 0.85, Sharpness: 0.9, Offset: 10 * time.Millisecond},
				},
				Duration:    400 * time.Millisecond,
				AudioFreqHz: 1040,
			},
		},
		{
			name: "straight collapsed into a sharp blip",
			p: Pattern{
				Kind:        KindContinueStraight,
				Pulses:      []Pulse{{Intensity: 0.9, Sharpness: 0.9}},
				Duration:    100 * time.Millisecond,
				AudioFreqHz: 660,
			},
		},
		{
			name: "arrival with two pulses",
			p: Pattern{
				Kind: KindArrival,
				Pulses: []Pulse{
					{Intensity: 0.6, Sharpness: 0.5},
					{Intensity: 0.6, Sharpness: 0.5, Offset: 150 * time.Millisecond},
				},
				Duration:    450 * time.Millisecond,
				AudioFreqHz: 1320,
			},
		},
		{
			name: "pulse offset beyond duration",
			p: Pattern{
				Kind:        KindLeftTurn,
				Pulses:      []Pulse{{Intensity: 0.85, Sharpness: 0.9, Offset: time.Second}},
				Duration:    150 * time.Millisecond,
				AudioFreqHz: 880,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.p.Validate(), ErrMalformedPattern)
		})
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindLeftTurn, KindRightTurn, KindContinueStraight, KindArrival} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("spiral")
	assert.Error(t, err)
}

func TestForManeuver(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindLeftTurn, ForManeuver("left"))
	assert.Equal(t, KindRightTurn, ForManeuver("right"))
	assert.Equal(t, KindContinueStraight, ForManeuver("straight"))
	assert.Equal(t, KindContinueStraight, ForManeuver(""))
}

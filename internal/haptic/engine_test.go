package haptic

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/waypoint/internal/pattern"
)

func newTestEngine(factory *TestableFactory) (*Engine, *RecordingFallback) {
	fb := &RecordingFallback{}
	e := NewEngine(factory, fb, Config{FailureThreshold: 3, CooldownWindow: time.Minute})
	return e, fb
}

func TestIsCapable(t *testing.T) {
	t.Parallel()

	factory := NewTestableFactory()
	e, _ := newTestEngine(factory)
	assert.True(t, e.IsCapable())

	factory.Capable = false
	assert.False(t, e.IsCapable())
	// Capability queries never open the device.
	assert.Equal(t, 0, factory.OpenCount())
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	t.Run("not capable", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		factory.Capable = false
		e, _ := newTestEngine(factory)

		err := e.Initialize()
		assert.ErrorIs(t, err, ErrEngineNotAvailable)
		assert.Equal(t, StateNotInitialized, e.State())
		assert.Equal(t, 0, factory.OpenCount())
	})

	t.Run("success reaches running", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, _ := newTestEngine(factory)

		require.NoError(t, e.Initialize())
		assert.Equal(t, StateRunning, e.State())
	})

	t.Run("idempotent while running", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, _ := newTestEngine(factory)

		require.NoError(t, e.Initialize())
		require.NoError(t, e.Initialize())
		assert.Equal(t, 1, factory.OpenCount())
	})

	t.Run("hardware failure records and errors", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		factory.SetOpenError(errors.New("driver busy"))
		e, _ := newTestEngine(factory)

		err := e.Initialize()
		var pe *PlaybackError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "initialize", pe.Op)
		assert.Equal(t, StateErrored, e.State())
	})
}

func TestFailureCooldown(t *testing.T) {
	t.Parallel()

	t.Run("three consecutive failures open the cooldown window", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		factory.SetOpenError(errors.New("driver busy"))
		e, _ := newTestEngine(factory)

		degradedSignals := 0
		e.SetOnDegraded(func() { degradedSignals++ })

		for i := 0; i < 3; i++ {
			var pe *PlaybackError
			require.ErrorAs(t, e.Initialize(), &pe)
		}
		assert.Equal(t, 3, factory.OpenCount())
		assert.Equal(t, 1, degradedSignals, "degradation signalled exactly once")
		assert.True(t, e.Degraded())

		// Inside the window: refused with EngineNotInitialized and no
		// hardware access attempted.
		err := e.Initialize()
		assert.ErrorIs(t, err, ErrEngineNotInitialized)
		assert.Equal(t, 3, factory.OpenCount())
	})

	t.Run("cooldown expiry resets the failure count", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		factory.SetOpenError(errors.New("driver busy"))
		e, _ := newTestEngine(factory)

		current := time.Unix(1000, 0)
		e.now = func() time.Time { return current }

		for i := 0; i < 3; i++ {
			require.Error(t, e.Initialize())
		}
		assert.ErrorIs(t, e.Initialize(), ErrEngineNotInitialized)

		// Jump past the window; the device has recovered.
		current = current.Add(2 * time.Minute)
		factory.SetOpenError(nil)

		require.NoError(t, e.Initialize())
		assert.Equal(t, StateRunning, e.State())

		e.mu.Lock()
		failures := e.failures
		e.mu.Unlock()
		assert.Equal(t, 0, failures)
	})

	t.Run("success resets the counter before the threshold", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		factory.SetOpenError(errors.New("driver busy"))
		e, _ := newTestEngine(factory)

		require.Error(t, e.Initialize())
		require.Error(t, e.Initialize())

		factory.SetOpenError(nil)
		require.NoError(t, e.Initialize())
		e.SetHapticEnabled(true)
		require.NoError(t, e.Play(pattern.KindLeftTurn))

		e.mu.Lock()
		failures := e.failures
		e.mu.Unlock()
		assert.Equal(t, 0, failures)
	})
}

func TestPlay(t *testing.T) {
	t.Parallel()

	t.Run("disabled session always falls back without touching hardware", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, fb := newTestEngine(factory)
		require.NoError(t, e.Initialize())
		// haptic mode left disabled

		err := e.Play(pattern.KindRightTurn)
		assert.ErrorIs(t, err, ErrEngineNotAvailable)

		audio, visual := fb.Counts()
		assert.Equal(t, 1, audio)
		assert.Equal(t, 1, visual)
		assert.Equal(t, 0, factory.LastOpened.PlayedCount())
	})

	t.Run("no hardware: fallback with EngineNotAvailable", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		factory.Capable = false
		e, fb := newTestEngine(factory)
		e.SetHapticEnabled(true)

		assert.ErrorIs(t, e.Initialize(), ErrEngineNotAvailable)

		err := e.Play(pattern.KindLeftTurn)
		assert.ErrorIs(t, err, ErrEngineNotAvailable)
		audio, visual := fb.Counts()
		assert.Equal(t, 1, audio)
		assert.Equal(t, 1, visual)
	})

	t.Run("capable but never initialized: EngineNotInitialized", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, fb := newTestEngine(factory)
		e.SetHapticEnabled(true)

		err := e.Play(pattern.KindLeftTurn)
		assert.ErrorIs(t, err, ErrEngineNotInitialized)
		audio, _ := fb.Counts()
		assert.Equal(t, 1, audio)
	})

	t.Run("hardware playback submits the catalog pulses", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, fb := newTestEngine(factory)
		require.NoError(t, e.Initialize())
		e.SetHapticEnabled(true)

		require.NoError(t, e.Play(pattern.KindArrival))

		act := factory.LastOpened
		require.Equal(t, 1, act.PlayedCount())
		assert.Len(t, act.Played[0], 3) // arrival is three pulses

		audio, visual := fb.Counts()
		assert.Zero(t, audio)
		assert.Zero(t, visual)
	})

	t.Run("playback failure feeds tracker and falls back synchronously", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, fb := newTestEngine(factory)
		require.NoError(t, e.Initialize())
		e.SetHapticEnabled(true)

		factory.LastOpened.SetPlayError(errors.New("overcurrent"))
		err := e.Play(pattern.KindLeftTurn)

		var pe *PlaybackError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "play", pe.Op)

		// Fallback happened on the same call, not a later cycle.
		audio, visual := fb.Counts()
		assert.Equal(t, 1, audio)
		assert.Equal(t, 1, visual)
	})

	t.Run("repeated playback failures degrade and enter cooldown", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, fb := newTestEngine(factory)
		require.NoError(t, e.Initialize())
		e.SetHapticEnabled(true)
		factory.LastOpened.SetPlayError(errors.New("overcurrent"))

		degraded := false
		e.SetOnDegraded(func() { degraded = true })

		for i := 0; i < 3; i++ {
			var pe *PlaybackError
			require.ErrorAs(t, e.Play(pattern.KindLeftTurn), &pe)
		}
		assert.True(t, degraded)

		// In cooldown: no further hardware attempts, straight to fallback.
		before := factory.LastOpened.PlayedCount()
		err := e.Play(pattern.KindLeftTurn)
		assert.ErrorIs(t, err, ErrEngineNotInitialized)
		assert.Equal(t, before, factory.LastOpened.PlayedCount())

		audio, _ := fb.Counts()
		assert.Equal(t, 4, audio)
	})

	t.Run("unknown kind is a programming error without fallback", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, fb := newTestEngine(factory)
		require.NoError(t, e.Initialize())
		e.SetHapticEnabled(true)

		err := e.Play(pattern.Kind(42))
		assert.ErrorIs(t, err, ErrPatternCreationFailed)
		audio, visual := fb.Counts()
		assert.Zero(t, audio)
		assert.Zero(t, visual)
	})
}

func TestStopAll(t *testing.T) {
	t.Parallel()

	factory := NewTestableFactory()
	e, _ := newTestEngine(factory)

	// No-op before initialization.
	assert.NoError(t, e.StopAll())

	require.NoError(t, e.Initialize())
	require.NoError(t, e.StopAll())
	assert.Equal(t, 1, factory.LastOpened.StopCalls)
	assert.Equal(t, StateRunning, e.State(), "StopAll leaves engine state unchanged")
}

func TestResetEngine(t *testing.T) {
	t.Parallel()

	t.Run("explicit reset reopens the device", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, _ := newTestEngine(factory)
		require.NoError(t, e.Initialize())
		first := factory.LastOpened

		require.NoError(t, e.ResetEngine())
		assert.True(t, first.Closed)
		assert.Equal(t, 2, factory.OpenCount())
		assert.Equal(t, StateRunning, e.State())
	})

	t.Run("device-initiated reset re-arms transparently", func(t *testing.T) {
		t.Parallel()
		factory := NewTestableFactory()
		e, _ := newTestEngine(factory)
		require.NoError(t, e.Initialize())

		factory.LastOpened.EmitEvent(EventReset)

		// The watch goroutine reacts; poll briefly for the reopen.
		deadline := time.After(time.Second)
		for factory.OpenCount() < 2 {
			select {
			case <-deadline:
				t.Fatal("engine did not re-arm after device reset")
			case <-time.After(5 * time.Millisecond):
			}
		}
		assert.Equal(t, StateRunning, e.State())
	})
}

func TestCueEventSubscription(t *testing.T) {
	t.Parallel()

	factory := NewTestableFactory()
	e, _ := newTestEngine(factory)
	require.NoError(t, e.Initialize())
	e.SetHapticEnabled(true)

	id, ch := e.Subscribe()
	defer e.Unsubscribe(id)

	require.NoError(t, e.Play(pattern.KindLeftTurn))
	e.SetHapticEnabled(false)
	_ = e.Play(pattern.KindRightTurn)

	first := <-ch
	assert.Equal(t, pattern.KindLeftTurn, first.Kind)
	assert.Equal(t, "haptic", first.Channel)

	second := <-ch
	assert.Equal(t, pattern.KindRightTurn, second.Kind)
	assert.Equal(t, "fallback", second.Channel)
}

func TestPortOptions(t *testing.T) {
	t.Parallel()

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()
		opts, err := PortOptions{}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, 115200, opts.BaudRate)
		assert.Equal(t, 8, opts.DataBits)
		assert.Equal(t, 1, opts.StopBits)
		assert.Equal(t, "N", opts.Parity)
	})

	t.Run("parity aliases", func(t *testing.T) {
		t.Parallel()
		opts, err := PortOptions{Parity: "even"}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, "E", opts.Parity)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		t.Parallel()
		_, err := PortOptions{DataBits: 3}.Normalize()
		assert.Error(t, err)
		_, err = PortOptions{StopBits: 5}.Normalize()
		assert.Error(t, err)
		_, err = PortOptions{Parity: "M"}.Normalize()
		assert.Error(t, err)
	})

	t.Run("serial mode conversion", func(t *testing.T) {
		t.Parallel()
		mode, err := PortOptions{BaudRate: 9600, Parity: "odd"}.SerialMode()
		require.NoError(t, err)
		assert.Equal(t, 9600, mode.BaudRate)
	})
}

func TestSerialFactoryDetect(t *testing.T) {
	t.Parallel()

	f := NewSerialFactory("/dev/ttyHAP0", PortOptions{})

	f.listPorts = func() ([]string, error) {
		return []string{"/dev/ttyUSB0", "/dev/ttyHAP0"}, nil
	}
	assert.True(t, f.Detect())

	f.listPorts = func() ([]string, error) {
		return []string{"/dev/ttyUSB0"}, nil
	}
	assert.False(t, f.Detect())

	f.listPorts = func() ([]string, error) {
		return nil, errors.New("enumeration failed")
	}
	assert.False(t, f.Detect())

	empty := NewSerialFactory("", PortOptions{})
	assert.False(t, empty.Detect())
}

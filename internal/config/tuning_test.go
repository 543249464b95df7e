package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetStepProximityM(); got != 50.0 {
		t.Errorf("GetStepProximityM() = %v, want 50", got)
	}
	if got := cfg.GetArrivalM(); got != 20.0 {
		t.Errorf("GetArrivalM() = %v, want 20", got)
	}
	if got := cfg.GetPreAlertM(); got != 100.0 {
		t.Errorf("GetPreAlertM() = %v, want 100", got)
	}
	if got := cfg.GetMaxAccuracyM(); got != 50.0 {
		t.Errorf("GetMaxAccuracyM() = %v, want 50", got)
	}
	if got := cfg.GetMaxSampleAge(); got != 10*time.Second {
		t.Errorf("GetMaxSampleAge() = %v, want 10s", got)
	}
	if got := cfg.GetFailureThreshold(); got != 3 {
		t.Errorf("GetFailureThreshold() = %v, want 3", got)
	}
	if got := cfg.GetCooldownWindow(); got != 60*time.Second {
		t.Errorf("GetCooldownWindow() = %v, want 60s", got)
	}
	if got := cfg.GetRouteTimeout(); got != 30*time.Second {
		t.Errorf("GetRouteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetBaudRate(); got != 115200 {
		t.Errorf("GetBaudRate() = %v, want 115200", got)
	}
	if got := cfg.GetParity(); got != "N" {
		t.Errorf("GetParity() = %q, want N", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	t.Run("partial config keeps defaults", func(t *testing.T) {
		path := writeConfig(t, `{"arrival_m": 15.0, "cooldown_window": "2m"}`)
		cfg, err := LoadTuningConfig(path)
		if err != nil {
			t.Fatalf("LoadTuningConfig: %v", err)
		}
		if got := cfg.GetArrivalM(); got != 15.0 {
			t.Errorf("GetArrivalM() = %v, want 15", got)
		}
		if got := cfg.GetCooldownWindow(); got != 2*time.Minute {
			t.Errorf("GetCooldownWindow() = %v, want 2m", got)
		}
		if got := cfg.GetStepProximityM(); got != 50.0 {
			t.Errorf("GetStepProximityM() = %v, want default 50", got)
		}
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for non-json extension")
		}
	})

	t.Run("rejects negative threshold", func(t *testing.T) {
		path := writeConfig(t, `{"step_proximity_m": -5}`)
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for negative step_proximity_m")
		}
	})

	t.Run("rejects unparseable duration", func(t *testing.T) {
		path := writeConfig(t, `{"route_timeout": "soon"}`)
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for unparseable route_timeout")
		}
	})

	t.Run("rejects zero failure threshold", func(t *testing.T) {
		path := writeConfig(t, `{"failure_threshold": 0}`)
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for zero failure_threshold")
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		path := writeConfig(t, `{"arrival_m": `)
		if _, err := LoadTuningConfig(path); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})
}

func TestMustLoadDefaultConfig(t *testing.T) {
	// The canonical defaults file must load and agree with the compiled-in
	// fallbacks.
	cfg := MustLoadDefaultConfig()
	if got := cfg.GetStepProximityM(); got != 50.0 {
		t.Errorf("defaults file step_proximity_m = %v, want 50", got)
	}
	if got := cfg.GetFailureThreshold(); got != 3 {
		t.Errorf("defaults file failure_threshold = %v, want 3", got)
	}
}

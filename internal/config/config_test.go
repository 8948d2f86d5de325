package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/reframe/internal/compose"
	"github.com/andresmejia3/reframe/internal/engine"
	"github.com/andresmejia3/reframe/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvPath, "")

	cfg, resolved, exists, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if !strings.HasSuffix(resolved, filepath.Join(".config", "reframe", "config.toml")) {
		t.Errorf("unexpected resolved path %q", resolved)
	}
	if cfg.Engine.Mode != "auto" || cfg.Compose.Fallback != "blur" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !filepath.IsAbs(cfg.Store.DSN) {
		t.Errorf("expected store path to be expanded, got %q", cfg.Store.DSN)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, _, _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for an explicit missing config")
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `
[engine]
mode = "2"
workers = 4

[compose]
fallback = "PAD"
`)
	t.Setenv(EnvPath, path)

	cfg, resolved, exists, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %q to be loaded, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Engine.Mode != "2" || cfg.Engine.Workers != 4 {
		t.Errorf("engine section not applied: %+v", cfg.Engine)
	}
	if cfg.Compose.Fallback != "pad" {
		t.Errorf("expected fallback to be lower-cased, got %q", cfg.Compose.Fallback)
	}
	// Untouched keys keep their defaults.
	if cfg.Engine.DualAreaRatio != 0.60 || cfg.Compose.Width != 1080 {
		t.Errorf("defaults lost: %+v %+v", cfg.Engine, cfg.Compose)
	}
}

func TestLoadNormalizesOutOfRange(t *testing.T) {
	path := writeConfig(t, `
[engine]
sample_interval_single = 0
confidence_threshold = 1.7
dual_area_ratio = 0.5
dual_hysteresis = 0.9
dead_zone_px = -3.0
workers = 0
`)
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	e := cfg.Engine
	if e.SampleIntervalSingle != 5 || e.ConfidenceThreshold != 1 || e.DeadZonePx != 0 || e.Workers != 1 {
		t.Errorf("values not clamped: %+v", e)
	}
	if e.DualHysteresis != 0.5 {
		t.Errorf("hysteresis should be capped at the area ratio, got %v", e.DualHysteresis)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"mode":      "[engine]\nmode = \"three\"\n",
		"fallback":  "[compose]\nfallback = \"stretch\"\n",
		"strategy":  "[detector]\norder = [\"socket\", \"cloud\"]\n",
		"duplicate": "[detector]\norder = [\"pigo\", \"pigo\"]\n",
		"empty":     "[detector]\norder = []\n",
		"format":    "[logging]\nformat = \"xml\"\n",
		"unknown":   "[engine]\nsmoothness = 0.5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := Load(writeConfig(t, body))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadSyntaxError(t *testing.T) {
	_, _, _, err := Load(writeConfig(t, "[engine\n"))
	if err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("expected a parse error, got %v", err)
	}
}

func TestSampleMatchesDefaults(t *testing.T) {
	cfg := Default()
	if err := Parse([]byte(Sample()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config is invalid: %v", err)
	}

	want := Default()
	want.normalize()
	if cfg.Engine != want.Engine || cfg.Compose != want.Compose || cfg.Logging != want.Logging {
		t.Errorf("sample drifted from defaults:\n got %+v\nwant %+v", cfg, want)
	}
	if strings.Join(cfg.Detector.Order, ",") != strings.Join(want.Detector.Order, ",") {
		t.Errorf("sample detector order %v, want %v", cfg.Detector.Order, want.Detector.Order)
	}
}

func TestEngineConfigScalesWithFPS(t *testing.T) {
	cfg := Default()
	cfg.normalize()

	e := cfg.EngineConfig(25)
	if e.SampleIntervals[types.Dual] != 25 || e.TransitionFrames[types.Dual] != 25 {
		t.Errorf("dual intervals should be one second at 25fps, got %v / %v", e.SampleIntervals, e.TransitionFrames)
	}
	if e.SampleIntervals[types.Single] != 5 || e.TransitionFrames[types.Single] != 4 {
		t.Errorf("single intervals should be fixed frame counts, got %v / %v", e.SampleIntervals, e.TransitionFrames)
	}
	if e.LossTimeout != 3*time.Second || e.Mode != engine.ModeAuto || !e.Lookahead {
		t.Errorf("unexpected engine config: %+v", e)
	}
}

func TestLoadDerivesPortraitHeight(t *testing.T) {
	cfg, _, _, err := Load(writeConfig(t, "[compose]\nwidth = 720\nheight = 720\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Compose.Width != 720 || cfg.Compose.Height != 1280 {
		t.Errorf("compose size = %dx%d, want 720x1280", cfg.Compose.Width, cfg.Compose.Height)
	}
}

func TestEngineConfigCarriesActivityTuning(t *testing.T) {
	path := writeConfig(t, `
[engine]
activity_area_boost = 0.2
match_distance_px = 0.0
motion_bonus = true
motion_dead_zone_px = -1.0
motion_sensitivity = 0.1
motion_cap = 4.0
`)
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	e := cfg.EngineConfig(30)
	if e.ActivityAreaBoost != 0.2 || e.MatchDistancePx != 200 {
		t.Errorf("activity tuning not applied: boost=%v match=%v", e.ActivityAreaBoost, e.MatchDistancePx)
	}
	if !e.MotionBonus || e.MotionDeadZonePx != 0 || e.MotionSensitivity != 0.1 || e.MotionCap != 4 {
		t.Errorf("motion tuning not applied: %+v", e)
	}
}

func TestComposeAndDetectorOptions(t *testing.T) {
	cfg := Default()
	cfg.Compose.Width = 721
	cfg.normalize()

	opts := cfg.ComposeOptions()
	if opts.Width != 720 || opts.Height != 1280 || opts.Fallback != compose.FallbackBlur {
		t.Errorf("unexpected compose options: %+v", opts)
	}

	d := cfg.DetectorOptions()
	if d.SocketTimeout != 500*time.Millisecond || d.WorkerTimeout != 30*time.Second {
		t.Errorf("unexpected detector timeouts: %+v", d)
	}
	d.Order[0] = "changed"
	if cfg.Detector.Order[0] != "socket" {
		t.Error("DetectorOptions must not alias the config slice")
	}
}

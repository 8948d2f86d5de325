// Package config loads reframe settings from TOML. Values are layered:
// built-in defaults, then the config file, then CLI flags applied by the
// caller.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPath names the environment variable consulted when no --config is given.
const EnvPath = "REFRAME_CONFIG"

// Engine holds framing engine tunables.
type Engine struct {
	SampleIntervalSingle  int     `toml:"sample_interval_single"`
	SampleIntervalDual    float64 `toml:"sample_interval_dual_seconds"`
	Lookahead             bool    `toml:"lookahead"`
	ConfidenceThreshold   float64 `toml:"confidence_threshold"`
	RelativeSizeThreshold float64 `toml:"relative_size_threshold"`
	CrowdThreshold        int     `toml:"crowd_threshold"`
	Mode                  string  `toml:"mode"`
	DualAreaRatio         float64 `toml:"dual_area_ratio"`
	DualHysteresis        float64 `toml:"dual_hysteresis"`
	DeadZonePx            float64 `toml:"dead_zone_px"`
	LossTimeout           float64 `toml:"loss_timeout_seconds"`
	TransitionSingle      int     `toml:"transition_frames_single"`
	TransitionDual        float64 `toml:"transition_dual_seconds"`
	Smoothing             float64 `toml:"smoothing"`
	SpeakerFocus          bool    `toml:"speaker_focus"`
	MARThreshold          float64 `toml:"mar_threshold"`
	ScoreDiffThreshold    float64 `toml:"score_diff_threshold"`
	DualSpeakerScore      float64 `toml:"dual_speaker_score"`
	ActivityDecay         float64 `toml:"activity_decay"`
	ActivityAreaBoost     float64 `toml:"activity_area_boost"`
	MatchDistancePx       float64 `toml:"match_distance_px"`
	MotionBonus           bool    `toml:"motion_bonus"`
	MotionDeadZonePx      float64 `toml:"motion_dead_zone_px"`
	MotionSensitivity     float64 `toml:"motion_sensitivity"`
	MotionCap             float64 `toml:"motion_cap"`
	SceneCutThreshold     int     `toml:"scene_cut_threshold"`
	Workers               int     `toml:"workers"`
}

// Compose holds output canvas settings.
type Compose struct {
	Width       int     `toml:"width"`
	Height      int     `toml:"height"`
	DualZoomOut float64 `toml:"dual_zoom_out"`
	Fallback    string  `toml:"fallback"`
	BlurRadius  int     `toml:"blur_radius"`
}

// Detector holds the strategy chain and per-strategy settings.
type Detector struct {
	Order           []string `toml:"order"`
	SocketPath      string   `toml:"socket_path"`
	SocketTimeoutMS int      `toml:"socket_timeout_ms"`
	Python          string   `toml:"python"`
	Script          string   `toml:"script"`
	WorkerTimeout   int      `toml:"worker_timeout_seconds"`
	Cascade         string   `toml:"cascade"`
	MinFaceSize     int      `toml:"min_face_size"`
}

// Store selects where runs are recorded.
type Store struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reframe.
type Config struct {
	Engine   Engine   `toml:"engine"`
	Compose  Compose  `toml:"compose"`
	Detector Detector `toml:"detector"`
	Store    Store    `toml:"store"`
	Logging  Logging  `toml:"logging"`
}

// Load reads the file at path, or at $REFRAME_CONFIG when path is empty,
// over the defaults. A missing file is not an error when neither was set
// explicitly. It returns the resolved path and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPath)
		explicit = path != ""
	}
	if !explicit {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return nil, "", false, err
		}
	}

	resolved, err := expandPath(path)
	if err != nil {
		return nil, "", false, err
	}

	exists := true
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		exists = false
	case err != nil:
		return nil, "", false, fmt.Errorf("open config: %w", err)
	default:
		if err := Parse(data, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// Parse decodes TOML into cfg. Unknown keys are rejected so typos surface.
func Parse(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s", ErrInvalid, strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reframe/config.toml")
}

// Sample returns the commented sample configuration.
func Sample() string { return sampleConfig }

// Encode renders cfg as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

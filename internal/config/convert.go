package config

import (
	"math"
	"time"

	"github.com/andresmejia3/reframe/internal/compose"
	"github.com/andresmejia3/reframe/internal/detector"
	"github.com/andresmejia3/reframe/internal/engine"
	"github.com/andresmejia3/reframe/internal/types"
)

// EngineConfig builds the framing engine configuration for a clip at fps.
// Dual intervals are given in seconds and scale with the frame rate.
func (c *Config) EngineConfig(fps float64) engine.Config {
	e := c.Engine
	cfg := engine.DefaultConfig(fps)
	perSecond := func(sec float64) int {
		return max(1, int(math.Round(sec*cfg.FPS)))
	}

	cfg.SampleIntervals = map[types.LayoutMode]int{
		types.Single: e.SampleIntervalSingle,
		types.Dual:   perSecond(e.SampleIntervalDual),
	}
	cfg.TransitionFrames = map[types.LayoutMode]int{
		types.Single: e.TransitionSingle,
		types.Dual:   perSecond(e.TransitionDual),
	}
	cfg.Lookahead = e.Lookahead
	cfg.ConfidenceThreshold = e.ConfidenceThreshold
	cfg.RelativeSizeThreshold = e.RelativeSizeThreshold
	cfg.CrowdThreshold = e.CrowdThreshold
	cfg.Mode = engine.ForcedMode(e.Mode)
	cfg.DualAreaRatio = e.DualAreaRatio
	cfg.DualHysteresis = e.DualHysteresis
	cfg.DeadZonePx = e.DeadZonePx
	cfg.LossTimeout = time.Duration(e.LossTimeout * float64(time.Second))
	cfg.Smoothing = e.Smoothing
	cfg.SpeakerFocus = e.SpeakerFocus
	cfg.MARThreshold = e.MARThreshold
	cfg.ScoreDiffThreshold = e.ScoreDiffThreshold
	cfg.DualSpeakerScore = e.DualSpeakerScore
	cfg.ActivityDecay = e.ActivityDecay
	cfg.ActivityAreaBoost = e.ActivityAreaBoost
	cfg.MatchDistancePx = e.MatchDistancePx
	cfg.MotionBonus = e.MotionBonus
	cfg.MotionDeadZonePx = e.MotionDeadZonePx
	cfg.MotionSensitivity = e.MotionSensitivity
	cfg.MotionCap = e.MotionCap
	cfg.Normalize()
	return cfg
}

// ComposeOptions returns the compositor settings.
func (c *Config) ComposeOptions() compose.Options {
	opts := compose.Options{
		Width:       c.Compose.Width,
		Height:      c.Compose.Height,
		DualZoomOut: c.Compose.DualZoomOut,
		Fallback:    compose.Fallback(c.Compose.Fallback),
		BlurRadius:  c.Compose.BlurRadius,
	}
	opts.Normalize()
	return opts
}

// DetectorOptions returns the detector chain settings.
func (c *Config) DetectorOptions() detector.Options {
	d := c.Detector
	return detector.Options{
		Order:         append([]string(nil), d.Order...),
		SocketPath:    d.SocketPath,
		SocketTimeout: time.Duration(d.SocketTimeoutMS) * time.Millisecond,
		Python:        d.Python,
		Script:        d.Script,
		WorkerTimeout: time.Duration(d.WorkerTimeout) * time.Second,
		Cascade:       d.Cascade,
		MinFaceSize:   d.MinFaceSize,
	}
}

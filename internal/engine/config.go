package engine

import (
	"math"
	"time"

	"github.com/andresmejia3/reframe/internal/types"
)

// ForcedMode pins the layout instead of letting the decider choose.
type ForcedMode string

const (
	ModeAuto ForcedMode = "auto"
	ModeOne  ForcedMode = "1"
	ModeTwo  ForcedMode = "2"
)

// Config holds every tunable of the framing engine. The numeric defaults are
// product-tuned values, not invariants.
type Config struct {
	FPS float64

	// Detection sampling
	SampleIntervals map[types.LayoutMode]int
	Lookahead       bool

	// Candidate filter
	ConfidenceThreshold   float64
	RelativeSizeThreshold float64
	CrowdThreshold        int

	// Layout decider
	Mode           ForcedMode
	DualAreaRatio  float64
	DualHysteresis float64

	// Stabilizer / transitions
	DeadZonePx       float64
	LossTimeout      time.Duration
	TransitionFrames map[types.LayoutMode]int
	Smoothing        float64 // EMA weight of the newest box, 1 disables smoothing

	// Speaker activity
	SpeakerFocus       bool
	MARThreshold       float64
	ScoreDiffThreshold float64
	DualSpeakerScore   float64
	ActivityDecay      float64
	ActivityAreaBoost  float64
	MatchDistancePx    float64

	// Motion bonus
	MotionBonus       bool
	MotionDeadZonePx  float64
	MotionSensitivity float64
	MotionCap         float64
}

const (
	defaultFPS            = 30.0
	defaultSingleInterval = 5
	defaultSingleSteps    = 4
	maxActivityScore      = 20.0
	talkingGain           = 1.5
)

// DefaultConfig returns the stock configuration for a clip at the given frame rate.
func DefaultConfig(fps float64) Config {
	if fps <= 0 {
		fps = defaultFPS
	}
	second := int(math.Round(fps))
	return Config{
		FPS: fps,
		SampleIntervals: map[types.LayoutMode]int{
			types.Single: defaultSingleInterval,
			types.Dual:   second,
		},
		Lookahead:             true,
		ConfidenceThreshold:   0.30,
		RelativeSizeThreshold: 0.35,
		CrowdThreshold:        7,
		Mode:                  ModeAuto,
		DualAreaRatio:         0.60,
		DualHysteresis:        0.05,
		DeadZonePx:            40,
		LossTimeout:           3 * time.Second,
		TransitionFrames: map[types.LayoutMode]int{
			types.Single: defaultSingleSteps,
			types.Dual:   second,
		},
		Smoothing:          0.7,
		SpeakerFocus:       false,
		MARThreshold:       0.03,
		ScoreDiffThreshold: 1.5,
		DualSpeakerScore:   4.0,
		ActivityDecay:      0.5,
		ActivityAreaBoost:  0.05,
		MatchDistancePx:    200,
		MotionBonus:        false,
		MotionDeadZonePx:   3.0,
		MotionSensitivity:  0.05,
		MotionCap:          2.5,
	}
}

// Normalize clamps out-of-range values in place and fills missing maps.
func (c *Config) Normalize() {
	if c.FPS <= 0 || math.IsNaN(c.FPS) {
		c.FPS = defaultFPS
	}
	def := DefaultConfig(c.FPS)

	if c.SampleIntervals == nil {
		c.SampleIntervals = def.SampleIntervals
	}
	for mode, n := range c.SampleIntervals {
		if n < 1 {
			c.SampleIntervals[mode] = 1
		}
	}
	if c.TransitionFrames == nil {
		c.TransitionFrames = def.TransitionFrames
	}
	for mode, n := range c.TransitionFrames {
		if n < 1 {
			c.TransitionFrames[mode] = 1
		}
	}

	c.ConfidenceThreshold = clamp(c.ConfidenceThreshold, 0, 1)
	c.RelativeSizeThreshold = clamp(c.RelativeSizeThreshold, 0, 1)
	c.DualAreaRatio = clamp(c.DualAreaRatio, 0, 1)
	c.DualHysteresis = clamp(c.DualHysteresis, 0, c.DualAreaRatio)
	c.Smoothing = clamp(c.Smoothing, 0.05, 1)
	if c.CrowdThreshold < 1 {
		c.CrowdThreshold = def.CrowdThreshold
	}

	switch c.Mode {
	case ModeAuto, ModeOne, ModeTwo:
	default:
		c.Mode = ModeAuto
	}

	c.DeadZonePx = math.Max(0, c.DeadZonePx)
	if c.LossTimeout < 0 {
		c.LossTimeout = 0
	}
	c.MARThreshold = math.Max(0, c.MARThreshold)
	c.ScoreDiffThreshold = math.Max(0, c.ScoreDiffThreshold)
	c.DualSpeakerScore = clamp(c.DualSpeakerScore, 0, maxActivityScore)
	c.ActivityDecay = math.Max(0, c.ActivityDecay)
	c.ActivityAreaBoost = math.Max(0, c.ActivityAreaBoost)
	if c.MatchDistancePx <= 0 {
		c.MatchDistancePx = def.MatchDistancePx
	}
	c.MotionDeadZonePx = math.Max(0, c.MotionDeadZonePx)
	c.MotionSensitivity = math.Max(0, c.MotionSensitivity)
	c.MotionCap = math.Max(0, c.MotionCap)
}

// lossTimeoutFrames converts the detection-loss timeout into frames.
func (c *Config) lossTimeoutFrames() int {
	return int(math.Ceil(c.LossTimeout.Seconds() * c.FPS))
}

// transitionSteps returns the interpolation length for mode; unknown modes use the single-subject length.
func (c *Config) transitionSteps(mode types.LayoutMode) int {
	if n, ok := c.TransitionFrames[mode]; ok && n > 0 {
		return n
	}
	if n, ok := c.TransitionFrames[types.Single]; ok && n > 0 {
		return n
	}
	return defaultSingleSteps
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}

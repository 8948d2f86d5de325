package config

import (
	"math"
	"strings"

	"github.com/andresmejia3/reframe/internal/compose"
)

// normalize clamps out-of-range numbers and fills blanks. Structural
// problems are left for Validate.
func (c *Config) normalize() {
	c.normalizeEngine()
	c.normalizeCompose()
	c.normalizeDetector()
	c.normalizeStore()
	c.normalizeLogging()
}

func (c *Config) normalizeEngine() {
	e := &c.Engine
	if e.SampleIntervalSingle < 1 {
		e.SampleIntervalSingle = defaultSampleIntervalSingle
	}
	if e.SampleIntervalDual <= 0 {
		e.SampleIntervalDual = defaultSampleIntervalDual
	}
	if e.TransitionSingle < 1 {
		e.TransitionSingle = defaultTransitionSingle
	}
	if e.TransitionDual <= 0 {
		e.TransitionDual = defaultTransitionDual
	}
	if e.LossTimeout < 0 {
		e.LossTimeout = 0
	}
	e.ConfidenceThreshold = clampUnit(e.ConfidenceThreshold)
	e.RelativeSizeThreshold = clampUnit(e.RelativeSizeThreshold)
	e.DualAreaRatio = clampUnit(e.DualAreaRatio)
	e.DualHysteresis = math.Min(clampUnit(e.DualHysteresis), e.DualAreaRatio)
	e.Smoothing = clampUnit(e.Smoothing)
	e.DeadZonePx = math.Max(0, e.DeadZonePx)
	e.MARThreshold = math.Max(0, e.MARThreshold)
	e.ScoreDiffThreshold = math.Max(0, e.ScoreDiffThreshold)
	e.ActivityDecay = math.Max(0, e.ActivityDecay)
	e.ActivityAreaBoost = math.Max(0, e.ActivityAreaBoost)
	if e.MatchDistancePx <= 0 {
		e.MatchDistancePx = defaultMatchDistancePx
	}
	e.MotionDeadZonePx = math.Max(0, e.MotionDeadZonePx)
	e.MotionSensitivity = math.Max(0, e.MotionSensitivity)
	e.MotionCap = math.Max(0, e.MotionCap)
	if e.CrowdThreshold < 1 {
		e.CrowdThreshold = Default().Engine.CrowdThreshold
	}
	if e.SceneCutThreshold < 0 {
		e.SceneCutThreshold = 0
	}
	if e.Workers < 1 {
		e.Workers = 1
	}
	e.Mode = strings.ToLower(strings.TrimSpace(e.Mode))
	if e.Mode == "" {
		e.Mode = "auto"
	}
}

func (c *Config) normalizeCompose() {
	p := &c.Compose
	p.Width -= p.Width % 2
	if p.Width < 2 {
		p.Width = defaultWidth
	}
	p.Height = compose.HeightFor(p.Width)
	if p.DualZoomOut < 1 {
		p.DualZoomOut = defaultDualZoomOut
	}
	if p.BlurRadius < 0 {
		p.BlurRadius = 0
	}
	p.Fallback = strings.ToLower(strings.TrimSpace(p.Fallback))
	if p.Fallback == "" {
		p.Fallback = "blur"
	}
}

func (c *Config) normalizeDetector() {
	d := &c.Detector
	order := d.Order[:0]
	for _, name := range d.Order {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			order = append(order, name)
		}
	}
	d.Order = order
	if d.SocketTimeoutMS <= 0 {
		d.SocketTimeoutMS = defaultSocketTimeoutMS
	}
	if d.WorkerTimeout <= 0 {
		d.WorkerTimeout = defaultWorkerTimeout
	}
	if d.MinFaceSize <= 0 {
		d.MinFaceSize = defaultMinFaceSize
	}
}

func (c *Config) normalizeStore() {
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		c.Store.DSN = defaultStoreDSN
	}
	// Only file paths get home expansion; connection URLs are left alone.
	if strings.HasPrefix(c.Store.DSN, "~") {
		if expanded, err := expandPath(c.Store.DSN); err == nil {
			c.Store.DSN = expanded
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

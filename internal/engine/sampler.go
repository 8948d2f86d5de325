package engine

import "github.com/andresmejia3/reframe/internal/types"

// Sampler decides on which frames the external detector runs. The interval
// depends on the layout currently being tracked.
type Sampler struct {
	intervals map[types.LayoutMode]int
	elapsed   int
	started   bool
}

// NewSampler builds a sampler from a per-mode interval map.
func NewSampler(intervals map[types.LayoutMode]int) *Sampler {
	return &Sampler{intervals: intervals}
}

// Interval returns the sampling interval in frames for mode. Unknown modes
// fall back to the single-subject interval.
func (s *Sampler) Interval(mode types.LayoutMode) int {
	if n, ok := s.intervals[mode]; ok && n > 0 {
		return n
	}
	if n, ok := s.intervals[types.Single]; ok && n > 0 {
		return n
	}
	return defaultSingleInterval
}

// Next advances one frame and reports whether the detector should run on it.
// It must be called exactly once per frame.
func (s *Sampler) Next(mode types.LayoutMode) bool {
	if !s.started || s.elapsed >= s.Interval(mode) {
		s.started = true
		s.elapsed = 1
		return true
	}
	s.elapsed++
	return false
}

// Reset makes the next frame a sample.
func (s *Sampler) Reset() {
	s.started = false
	s.elapsed = 0
}

// WantsLookahead reports whether a sample with usable detections is short of
// what mode needs, so the following frame should be evaluated immediately.
func WantsLookahead(mode types.LayoutMode, usable int) bool {
	return usable < mode.Required()
}

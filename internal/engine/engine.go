// Package engine turns per-frame detector output into a stable framing
// decision: layout mode plus the subject boxes to crop around.
//
// The engine is a sequential state machine. Feed it every frame of a segment
// in order: call SampleDue once per frame, run the detector when it returns
// true, then call Step with the sample (or nil).
package engine

import (
	"log/slog"

	"github.com/andresmejia3/reframe/internal/types"
)

// Sample carries detector output for a sampled frame.
type Sample struct {
	Detections []types.Detection
	SceneCut   bool
}

// FrameDecision is what the compositor should apply to one frame.
type FrameDecision struct {
	Frame      int
	Mode       types.LayoutMode
	Boxes      []types.BBox // subject boxes in source pixels, primary first
	Transition bool         // Boxes come from an interpolation step
	Sampled    bool
}

// Engine is the per-segment framing state machine. It is not safe for
// concurrent use; create one per segment.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	sampler *Sampler
	tracker *ActivityTracker
	decider *LayoutDecider
	stab    *Stabilizer
	trans   Transition
	mode    types.LayoutMode
	timeout int
}

// New creates an engine. cfg is normalized; a nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Engine {
	cfg.Normalize()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{
		cfg:     cfg,
		log:     logger,
		sampler: NewSampler(cfg.SampleIntervals),
		stab:    NewStabilizer(cfg.DeadZonePx),
		mode:    types.NoSubject,
	}
	e.tracker = NewActivityTracker(&e.cfg)
	e.decider = NewLayoutDecider(&e.cfg)
	e.timeout = e.cfg.lossTimeoutFrames()
	return e
}

// Config returns the normalized configuration in use.
func (e *Engine) Config() Config { return e.cfg }

// Mode returns the layout currently applied.
func (e *Engine) Mode() types.LayoutMode { return e.mode }

// Subjects returns the tracked subject slots.
func (e *Engine) Subjects() []TrackedSubject { return e.tracker.Subjects() }

// SampleDue advances the sampler by one frame and reports whether the
// detector should run on it.
func (e *Engine) SampleDue() bool {
	return e.sampler.Next(e.mode)
}

// Filter applies the configured candidate filter.
func (e *Engine) Filter(dets []types.Detection) FilterResult {
	return Filter(dets, e.cfg.ConfidenceThreshold, e.cfg.RelativeSizeThreshold, e.cfg.CrowdThreshold)
}

// NeedsLookahead reports whether dets fall short of the current layout and
// the following frame should be evaluated right away.
func (e *Engine) NeedsLookahead(dets []types.Detection) bool {
	if !e.cfg.Lookahead {
		return false
	}
	res := e.Filter(dets)
	return !res.Crowd && WantsLookahead(e.mode, len(res.Kept))
}

// Step advances the state machine by one frame. sample is nil on frames the
// detector did not run on.
func (e *Engine) Step(frame int, sample *Sample) FrameDecision {
	dec := FrameDecision{Frame: frame, Sampled: sample != nil}

	if sample != nil {
		e.observe(frame, sample)
	} else if e.holding() && !e.stab.CanHold(frame, e.timeout) {
		e.clear(frame, types.NoSubject, "detection lost")
	}

	if e.holding() {
		if e.trans.Active() {
			dec.Boxes = e.trans.Next()
			dec.Transition = true
		} else {
			dec.Boxes = e.stab.Stable()
		}
	}
	dec.Mode = e.mode
	return dec
}

func (e *Engine) observe(frame int, s *Sample) {
	if s.SceneCut {
		e.trans.Cancel()
	}

	res := e.Filter(s.Detections)
	if res.Crowd {
		e.log.Debug("crowd detected", "frame", frame, "raw", res.Raw)
		e.clear(frame, types.Crowd, "crowd")
		e.tracker.Reset()
		return
	}

	obs := e.tracker.Update(res.Kept)
	scores := make([]float64, len(obs))
	for i, o := range obs {
		scores[i] = o.Score
	}

	d := e.decider.Decide(res, scores)
	e.log.Debug("sample",
		"frame", frame,
		"raw", res.Raw,
		"kept", len(res.Kept),
		"decision", d.Mode.String(),
		"reason", d.Reason,
	)

	if d.Mode == types.NoSubject {
		if e.holding() && e.stab.CanHold(frame, e.timeout) {
			return
		}
		e.clear(frame, types.NoSubject, d.Reason)
		return
	}

	boxes := make([]types.BBox, len(d.Subjects))
	for i, idx := range d.Subjects {
		boxes[i] = obs[idx].Box
	}

	if d.Mode != e.mode {
		e.trans.Cancel()
	} else if e.trans.Active() {
		// A running transition finishes before the next one may start.
		e.stab.Touch(frame)
		return
	}

	p := e.stab.Propose(frame, d.Mode, boxes, s.SceneCut)
	if p.Accepted && !p.Jump {
		e.trans.Start(p.From, p.To, e.cfg.transitionSteps(d.Mode))
	}
	e.setMode(frame, d.Mode, d.Reason)
}

func (e *Engine) holding() bool {
	return e.mode == types.Single || e.mode == types.Dual
}

func (e *Engine) clear(frame int, mode types.LayoutMode, reason string) {
	e.trans.Cancel()
	e.stab.Reset()
	e.setMode(frame, mode, reason)
}

func (e *Engine) setMode(frame int, mode types.LayoutMode, reason string) {
	if mode != e.mode {
		e.log.Info("layout change",
			"frame", frame,
			"from", e.mode.String(),
			"to", mode.String(),
			"reason", reason,
		)
	}
	e.mode = mode
	e.decider.Settle(mode)
}

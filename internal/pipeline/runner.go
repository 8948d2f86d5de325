// Package pipeline drives frames of one segment through detection, the
// framing engine, composition and recording.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/andresmejia3/reframe/internal/compose"
	"github.com/andresmejia3/reframe/internal/detector"
	"github.com/andresmejia3/reframe/internal/engine"
	"github.com/andresmejia3/reframe/internal/scenecut"
	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/types"
)

// Segment is one independently processed stretch of video.
type Segment struct {
	Index  int
	FPS    float64
	Width  int // source frame size
	Height int
	Source FrameSource
	Sink   FrameSink
}

// Result summarizes a processed segment.
type Result struct {
	Segment     int
	Frames      int
	Samples     int
	Lookaheads  int
	SceneCuts   int
	Detector    string
	Segments    []timeline.Segment
	Labels      []timeline.Label
	Coordinates []timeline.CoordinateEntry
}

// Runner holds what is shared by all segments of a run. Run may be called
// concurrently for different segments.
type Runner struct {
	Engine            engine.Config
	Compose           compose.Options
	SceneCutThreshold int
	Detectors         *detector.Session
	Log               *slog.Logger

	// Progress, if set, is called once per output frame.
	Progress func()
}

// Run processes seg to completion. Frames are handled strictly in order.
func (r *Runner) Run(ctx context.Context, seg Segment) (Result, error) {
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("segment", seg.Index)

	cfg := r.Engine
	cfg.FPS = seg.FPS
	// Segments run concurrently and Normalize writes into the maps.
	cfg.SampleIntervals = maps.Clone(cfg.SampleIntervals)
	cfg.TransitionFrames = maps.Clone(cfg.TransitionFrames)
	eng := engine.New(cfg, log)
	comp := compose.New(r.Compose)
	cuts := scenecut.New(r.SceneCutThreshold)
	rec := timeline.NewRecorder(seg.FPS, seg.Width, seg.Height)
	src := NewLookahead(seg.Source)
	release := func(*Frame) {}
	if rl, ok := seg.Source.(Releaser); ok {
		release = rl.Release
	}

	res := Result{Segment: seg.Index}
	if d, err := r.Detectors.Detector(ctx); err == nil {
		res.Detector = d.Name()
	} else {
		log.Warn("no detector, every frame falls back", "error", err)
	}

	detect := func(f *Frame) []types.Detection {
		if !f.Detected {
			f.Detections = r.Detectors.DetectOrEmpty(ctx, f.Index, f.Image)
			f.Detected = true
		}
		return f.Detections
	}
	usable := func(dets []types.Detection) int {
		fr := eng.Filter(dets)
		if fr.Crowd {
			return 0
		}
		return len(fr.Kept)
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read frame %d: %w", res.Frames, err)
		}

		var sample *engine.Sample
		if eng.SampleDue() {
			res.Samples++
			dets := detect(f)
			cut, err := cuts.Check(f.Image)
			if err != nil {
				log.Warn("scene cut check failed", "frame", f.Index, "error", err)
			}
			if cut {
				res.SceneCuts++
				log.Debug("scene cut", "frame", f.Index)
			}

			if eng.NeedsLookahead(dets) {
				if next, err := src.Peek(); err == nil {
					res.Lookaheads++
					if nd := detect(next); usable(nd) > usable(dets) {
						log.Debug("lookahead recovered subjects", "frame", f.Index, "next", next.Index)
						dets = nd
					}
				}
			}
			sample = &engine.Sample{Detections: dets, SceneCut: cut}
		}

		dec := eng.Step(f.Index, sample)
		out := comp.Compose(f.Image, dec.Mode, dec.Boxes)
		rec.Record(f.Index, dec.Mode, dec.Boxes)
		release(f)

		if err := seg.Sink.Write(out); err != nil {
			return res, fmt.Errorf("write frame %d: %w", res.Frames, err)
		}
		res.Frames++
		if r.Progress != nil {
			r.Progress()
		}
	}

	res.Segments = rec.Segments()
	res.Labels = timeline.Labels(res.Segments)
	res.Coordinates = rec.Coordinates()
	log.Info("segment done",
		"frames", res.Frames,
		"samples", res.Samples,
		"lookaheads", res.Lookaheads,
		"scene_cuts", res.SceneCuts,
		"timeline_segments", len(res.Segments),
	)
	return res, nil
}

// Package timeline records the per-frame layout and subject coordinates of a
// processed segment and compresses them into time ranges.
package timeline

import (
	"math"

	"github.com/andresmejia3/reframe/internal/types"
)

// Segment is a contiguous run of frames sharing one layout mode. End is
// exclusive, so consecutive segments share a boundary.
type Segment struct {
	StartFrame int
	EndFrame   int
	Start      float64 // seconds
	End        float64 // seconds
	Mode       types.LayoutMode
}

// Label is a timeline entry as consumed by caption placement: "1" for a
// full-height single view, "2" for the stacked dual view.
type Label struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Mode  string  `json:"mode"`
}

// CoordinateEntry is the framing of one output frame. Each face is
// [x1, y1, x2, y2, height/source_height].
type CoordinateEntry struct {
	Frame        int          `json:"frame"`
	SourceWidth  int          `json:"source_width"`
	SourceHeight int          `json:"source_height"`
	Faces        [][5]float64 `json:"faces"`
}

type run struct {
	start, end int
	mode       types.LayoutMode
}

// Recorder accumulates frames in order. It is not safe for concurrent use.
type Recorder struct {
	fps    float64
	srcW   int
	srcH   int
	runs   []run
	coords []CoordinateEntry
	next   int
}

// NewRecorder creates a recorder for a source of the given size and rate.
func NewRecorder(fps float64, srcW, srcH int) *Recorder {
	if fps <= 0 || math.IsNaN(fps) {
		fps = 30
	}
	return &Recorder{fps: fps, srcW: srcW, srcH: srcH}
}

// Record appends one output frame. Frames are numbered by arrival; the
// frame argument is kept in the coordinate log as given.
func (r *Recorder) Record(frame int, mode types.LayoutMode, boxes []types.BBox) {
	i := r.next
	r.next++
	if n := len(r.runs); n > 0 && r.runs[n-1].mode == mode {
		r.runs[n-1].end = r.next
	} else {
		r.runs = append(r.runs, run{start: i, end: r.next, mode: mode})
	}

	faces := make([][5]float64, 0, len(boxes))
	for _, b := range boxes {
		b = r.clip(b)
		rel := 0.0
		if r.srcH > 0 {
			rel = b.Height() / float64(r.srcH)
		}
		faces = append(faces, [5]float64{b.X1, b.Y1, b.X2, b.Y2, rel})
	}
	r.coords = append(r.coords, CoordinateEntry{
		Frame:        frame,
		SourceWidth:  r.srcW,
		SourceHeight: r.srcH,
		Faces:        faces,
	})
}

func (r *Recorder) clip(b types.BBox) types.BBox {
	w, h := float64(r.srcW), float64(r.srcH)
	return types.BBox{
		X1: math.Min(math.Max(b.X1, 0), w),
		Y1: math.Min(math.Max(b.Y1, 0), h),
		X2: math.Min(math.Max(b.X2, 0), w),
		Y2: math.Min(math.Max(b.Y2, 0), h),
	}
}

// Frames returns the number of recorded frames.
func (r *Recorder) Frames() int { return r.next }

// Duration returns the recorded duration in seconds.
func (r *Recorder) Duration() float64 { return r.seconds(r.next) }

func (r *Recorder) seconds(frame int) float64 { return float64(frame) / r.fps }

// Segments returns the recorded frames merged into per-mode runs. The
// segments tile [0, Duration()).
func (r *Recorder) Segments() []Segment {
	out := make([]Segment, len(r.runs))
	for i, rn := range r.runs {
		out[i] = Segment{
			StartFrame: rn.start,
			EndFrame:   rn.end,
			Start:      r.seconds(rn.start),
			End:        r.seconds(rn.end),
			Mode:       rn.mode,
		}
	}
	return out
}

// Coordinates returns the per-frame coordinate log.
func (r *Recorder) Coordinates() []CoordinateEntry {
	return append([]CoordinateEntry(nil), r.coords...)
}

// Labels collapses segments to caption labels and merges neighbours that
// end up with the same label. No-subject and crowd frames use the single
// label since their fallback fills the whole canvas.
func Labels(segs []Segment) []Label {
	out := make([]Label, 0, len(segs))
	for _, s := range segs {
		l := s.Mode.Label()
		if n := len(out); n > 0 && out[n-1].Mode == l {
			out[n-1].End = s.End
			continue
		}
		out = append(out, Label{Start: s.Start, End: s.End, Mode: l})
	}
	return out
}

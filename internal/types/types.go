package types

import "math"

// Epsilon guards ratio denominators against degenerate geometry.
const Epsilon = 1e-6

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Point is a 2D landmark in source pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// BBox is an axis-aligned box [X1,Y1,X2,Y2] in source pixels.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Finite reports whether every corner is a real number.
func (b BBox) Finite() bool {
	return Finite(b.X1) && Finite(b.Y1) && Finite(b.X2) && Finite(b.Y2)
}

func (b BBox) Width() float64  { return math.Max(0, b.X2-b.X1) }
func (b BBox) Height() float64 { return math.Max(0, b.Y2-b.Y1) }
func (b BBox) Area() float64   { return b.Width() * b.Height() }

// Center returns the box midpoint.
func (b BBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Lerp interpolates between b and to; t=0 yields b, t=1 yields to.
func (b BBox) Lerp(to BBox, t float64) BBox {
	return BBox{
		X1: b.X1 + (to.X1-b.X1)*t,
		Y1: b.Y1 + (to.Y1-b.Y1)*t,
		X2: b.X2 + (to.X2-b.X2)*t,
		Y2: b.Y2 + (to.Y2-b.Y2)*t,
	}
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Mouth holds the four inner-lip landmarks used for the openness ratio.
type Mouth struct {
	Top, Bottom, Left, Right Point
}

// Detection is one detector hit for a single frame.
type Detection struct {
	Box       BBox
	Score     float64
	Landmarks []Point // free-form (e.g. 5-point eyes/nose/mouth corners)
	Mouth     *Mouth  // optional, enables openness computation
	MAR       float64 // detector-supplied openness, used when HasMAR
	HasMAR    bool
}

// Center is the derived box center.
func (d Detection) Center() Point { return d.Box.Center() }

// Area is the derived box area.
func (d Detection) Area() float64 { return d.Box.Area() }

// LayoutMode is the per-frame composition layout.
type LayoutMode int

const (
	NoSubject LayoutMode = iota
	Single
	Dual
	Crowd
)

func (m LayoutMode) String() string {
	switch m {
	case Single:
		return "single"
	case Dual:
		return "dual"
	case Crowd:
		return "crowd"
	default:
		return "none"
	}
}

// ParseLayoutMode is the inverse of String. Unknown names map to NoSubject.
func ParseLayoutMode(s string) LayoutMode {
	switch s {
	case "single":
		return Single
	case "dual":
		return Dual
	case "crowd":
		return Crowd
	default:
		return NoSubject
	}
}

// Label is the downstream timeline label: "2" for Dual, "1" for every single-canvas layout.
func (m LayoutMode) Label() string {
	if m == Dual {
		return "2"
	}
	return "1"
}

// Required is the number of subjects the mode needs to stay satisfied.
func (m LayoutMode) Required() int {
	switch m {
	case Single:
		return 1
	case Dual:
		return 2
	default:
		return 0
	}
}

package engine

import (
	"sort"

	"github.com/andresmejia3/reframe/internal/types"
)

// Proposal is the Stabilizer's answer to a candidate position.
type Proposal struct {
	Accepted bool         // a new stable position was taken
	Jump     bool         // apply directly, no interpolation
	From     []types.BBox // previous stable boxes, nil on a jump
	To       []types.BBox
}

// Stabilizer suppresses sub-threshold jitter, keeps Dual slot identity and
// remembers when a subject was last seen for the hold timeout.
type Stabilizer struct {
	deadZone    float64
	mode        types.LayoutMode
	stable      []types.BBox
	lastSuccess int
	seen        bool
}

// NewStabilizer creates a stabilizer with the given dead zone in pixels.
func NewStabilizer(deadZone float64) *Stabilizer {
	return &Stabilizer{deadZone: deadZone, mode: types.NoSubject}
}

// Propose offers new candidate boxes for mode at frame. A layout change or a
// scene cut replaces the stable position outright.
func (s *Stabilizer) Propose(frame int, mode types.LayoutMode, boxes []types.BBox, cut bool) Proposal {
	s.Touch(frame)
	next := append([]types.BBox(nil), boxes...)

	if mode != s.mode || len(s.stable) != len(next) || cut {
		if mode == types.Dual && len(next) == 2 {
			sort.SliceStable(next, func(i, j int) bool {
				return next[i].Center().X < next[j].Center().X
			})
		}
		s.mode = mode
		s.stable = next
		return Proposal{Accepted: true, Jump: true, To: s.Stable()}
	}

	if mode == types.Dual && len(next) == 2 {
		next = keepIdentity(s.stable, next)
	}

	moved := false
	for i := range next {
		if types.Distance(next[i].Center(), s.stable[i].Center()) >= s.deadZone {
			moved = true
			break
		}
	}
	if !moved {
		return Proposal{To: s.Stable()}
	}

	from := s.Stable()
	s.stable = next
	return Proposal{Accepted: true, From: from, To: s.Stable()}
}

// keepIdentity returns next ordered to minimise squared center movement
// against prev, so the two halves do not swap subjects.
func keepIdentity(prev, next []types.BBox) []types.BBox {
	sq := func(a, b types.BBox) float64 {
		d := types.Distance(a.Center(), b.Center())
		return d * d
	}
	keep := sq(prev[0], next[0]) + sq(prev[1], next[1])
	swap := sq(prev[0], next[1]) + sq(prev[1], next[0])
	if swap < keep {
		return []types.BBox{next[1], next[0]}
	}
	return next
}

// Touch records a successful sample at frame.
func (s *Stabilizer) Touch(frame int) {
	s.lastSuccess = frame
	s.seen = true
}

// CanHold reports whether fewer than timeout frames have passed since the
// last success.
func (s *Stabilizer) CanHold(frame, timeout int) bool {
	return s.seen && len(s.stable) > 0 && frame-s.lastSuccess < timeout
}

// Stable returns a copy of the current stable boxes.
func (s *Stabilizer) Stable() []types.BBox {
	return append([]types.BBox(nil), s.stable...)
}

// Mode returns the layout the stable boxes belong to.
func (s *Stabilizer) Mode() types.LayoutMode { return s.mode }

// Reset forgets all stable positions.
func (s *Stabilizer) Reset() {
	s.mode = types.NoSubject
	s.stable = nil
	s.seen = false
}

package engine

import (
	"math"
	"sort"

	"github.com/andresmejia3/reframe/internal/types"
)

const (
	maxSlots         = 2
	maxMissedSamples = 3
)

// TrackedSubject is one of at most two short-horizon subject slots.
type TrackedSubject struct {
	Box    types.BBox // smoothed
	Last   types.Detection
	Score  float64 // activity, bounded to [0, 20]
	Missed int     // samples since last match
}

// ActivityTracker keeps per-subject talking/motion scores across samples.
// Correspondence is nearest-center matching with a distance cutoff.
type ActivityTracker struct {
	cfg   *Config
	slots []*TrackedSubject
}

// NewActivityTracker creates an empty tracker.
func NewActivityTracker(cfg *Config) *ActivityTracker {
	return &ActivityTracker{cfg: cfg}
}

// Observation is the per-candidate output of an Update.
type Observation struct {
	Score float64
	Box   types.BBox // smoothed box of the slot the candidate landed in
}

// Update matches the largest (at most two) detections to the slots and
// returns one observation per detection in dets. Detections past the second
// are not tracked and get a zero score with their raw box.
func (t *ActivityTracker) Update(dets []types.Detection) []Observation {
	obs := make([]Observation, len(dets))
	for i, d := range dets {
		obs[i] = Observation{Box: d.Box}
	}

	n := len(dets)
	if n > maxSlots {
		n = maxSlots
	}
	cands := dets[:n]

	slotFor := t.match(cands)

	// Camera motion estimate: the smallest displacement among matched subjects.
	disp := make([]float64, n)
	global := math.Inf(1)
	for i, si := range slotFor {
		if si < 0 {
			continue
		}
		disp[i] = types.Distance(cands[i].Center(), t.slots[si].Last.Center())
		global = math.Min(global, disp[i])
	}

	matched := make([]bool, len(t.slots))
	next := make([]*TrackedSubject, 0, maxSlots)
	for i, d := range cands {
		talking := Openness(d) > t.cfg.MARThreshold
		si := slotFor[i]
		if si < 0 {
			start := 0.0
			if talking {
				start = 1.0
			}
			s := &TrackedSubject{Box: d.Box, Last: d, Score: start}
			next = append(next, s)
			obs[i] = Observation{Score: s.Score, Box: s.Box}
			continue
		}

		s := t.slots[si]
		matched[si] = true
		delta := -t.cfg.ActivityDecay
		if talking {
			delta = talkingGain
		}
		if t.cfg.MotionBonus {
			delta += t.motionBonus(disp[i] - global)
		}
		s.Score = clamp(s.Score+delta, 0, maxActivityScore)
		s.Box = s.Box.Lerp(d.Box, t.cfg.Smoothing)
		s.Last = d
		s.Missed = 0
		next = append(next, s)
		obs[i] = Observation{Score: s.Score, Box: s.Box}
	}

	// Unmatched slots linger briefly if there is room.
	for si, s := range t.slots {
		if matched[si] || len(next) >= maxSlots {
			continue
		}
		s.Missed++
		if s.Missed <= maxMissedSamples {
			next = append(next, s)
		}
	}
	t.slots = next
	return obs
}

// match pairs candidates with slots greedily by ascending center distance.
// The result maps candidate index to slot index, or -1.
func (t *ActivityTracker) match(cands []types.Detection) []int {
	type pair struct {
		c, s int
		d    float64
	}
	var pairs []pair
	for ci, c := range cands {
		for si, s := range t.slots {
			d := types.Distance(c.Center(), s.Last.Center())
			if d <= t.cfg.MatchDistancePx {
				pairs = append(pairs, pair{ci, si, d})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].d < pairs[j].d })

	slotFor := make([]int, len(cands))
	for i := range slotFor {
		slotFor[i] = -1
	}
	taken := make(map[int]bool)
	for _, p := range pairs {
		if slotFor[p.c] >= 0 || taken[p.s] {
			continue
		}
		slotFor[p.c] = p.s
		taken[p.s] = true
	}
	return slotFor
}

func (t *ActivityTracker) motionBonus(compensated float64) float64 {
	excess := compensated - t.cfg.MotionDeadZonePx
	if excess <= 0 {
		return 0
	}
	return math.Min(excess*t.cfg.MotionSensitivity, t.cfg.MotionCap)
}

// Subjects returns a snapshot of the tracked slots.
func (t *ActivityTracker) Subjects() []TrackedSubject {
	out := make([]TrackedSubject, len(t.slots))
	for i, s := range t.slots {
		out[i] = *s
	}
	return out
}

// Reset clears all slots.
func (t *ActivityTracker) Reset() {
	t.slots = nil
}

// Openness returns the mouth-aspect-ratio of a detection: vertical inner-lip
// distance over horizontal distance. Undefined geometry yields 0.
func Openness(d types.Detection) float64 {
	if d.HasMAR {
		if !types.Finite(d.MAR) || d.MAR < 0 {
			return 0
		}
		return d.MAR
	}
	if d.Mouth == nil {
		return 0
	}
	horizontal := types.Distance(d.Mouth.Left, d.Mouth.Right)
	if horizontal < types.Epsilon {
		return 0
	}
	r := types.Distance(d.Mouth.Top, d.Mouth.Bottom) / horizontal
	if !types.Finite(r) {
		return 0
	}
	return r
}

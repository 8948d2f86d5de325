package engine

import (
	"sort"

	"github.com/andresmejia3/reframe/internal/types"
)

// LayoutDecision is the decider's verdict for one sampled frame.
// Subjects indexes into the filtered detections, primary first.
type LayoutDecision struct {
	Mode     types.LayoutMode
	Subjects []int
	Reason   string
}

// LayoutDecider chooses among NoSubject, Single, Dual and Crowd. It remembers
// the last mode so Dual can hold with a slightly lower area ratio.
type LayoutDecider struct {
	cfg     *Config
	current types.LayoutMode
}

// NewLayoutDecider creates a decider starting in NoSubject.
func NewLayoutDecider(cfg *Config) *LayoutDecider {
	return &LayoutDecider{cfg: cfg, current: types.NoSubject}
}

// Current returns the mode the decider last settled on.
func (l *LayoutDecider) Current() types.LayoutMode { return l.current }

// Settle records the mode the engine actually applied.
func (l *LayoutDecider) Settle(mode types.LayoutMode) { l.current = mode }

// Decide applies the transition rules in order. scores holds one activity
// score per entry of res.Kept.
func (l *LayoutDecider) Decide(res FilterResult, scores []float64) LayoutDecision {
	if res.Crowd {
		return LayoutDecision{Mode: types.Crowd, Reason: "crowd"}
	}
	kept := res.Kept
	if len(kept) == 0 {
		return LayoutDecision{Mode: types.NoSubject, Reason: "no detections"}
	}

	score := func(i int) float64 {
		if i < len(scores) {
			return scores[i]
		}
		return 0
	}

	switch l.cfg.Mode {
	case ModeOne:
		return LayoutDecision{Mode: types.Single, Subjects: []int{l.largest(kept, score)}, Reason: "forced single"}
	case ModeTwo:
		if len(kept) >= 2 {
			order := l.byEffectiveArea(kept, score)
			return LayoutDecision{Mode: types.Dual, Subjects: order[:2], Reason: "forced dual"}
		}
		return LayoutDecision{Mode: types.Single, Subjects: []int{0}, Reason: "forced dual, one subject"}
	}

	if len(kept) == 1 {
		return LayoutDecision{Mode: types.Single, Subjects: []int{0}, Reason: "one subject"}
	}

	order := l.byEffectiveArea(kept, score)
	a, b := order[0], order[1]

	if l.cfg.SpeakerFocus {
		sa, sb := score(a), score(b)
		if diff := sa - sb; diff > l.cfg.ScoreDiffThreshold {
			return LayoutDecision{Mode: types.Single, Subjects: []int{a}, Reason: "speaker focus"}
		} else if -diff > l.cfg.ScoreDiffThreshold {
			return LayoutDecision{Mode: types.Single, Subjects: []int{b}, Reason: "speaker focus"}
		}
		if sa > l.cfg.DualSpeakerScore && sb > l.cfg.DualSpeakerScore {
			return LayoutDecision{Mode: types.Dual, Subjects: []int{a, b}, Reason: "two active speakers"}
		}
	}

	largest := l.effectiveArea(kept[a], score(a))
	second := l.effectiveArea(kept[b], score(b))
	if largest < types.Epsilon {
		return LayoutDecision{Mode: types.Single, Subjects: []int{a}, Reason: "degenerate area"}
	}

	threshold := l.cfg.DualAreaRatio
	if l.current == types.Dual {
		threshold -= l.cfg.DualHysteresis
	}
	if second/largest > threshold {
		return LayoutDecision{Mode: types.Dual, Subjects: []int{a, b}, Reason: "size ratio"}
	}
	return LayoutDecision{Mode: types.Single, Subjects: []int{a}, Reason: "size ratio"}
}

// effectiveArea inflates area slightly by activity when speaker focus is on.
func (l *LayoutDecider) effectiveArea(d types.Detection, score float64) float64 {
	area := d.Area()
	if l.cfg.SpeakerFocus {
		area *= 1 + l.cfg.ActivityAreaBoost*score
	}
	return area
}

func (l *LayoutDecider) byEffectiveArea(kept []types.Detection, score func(int) float64) []int {
	order := make([]int, len(kept))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return l.effectiveArea(kept[order[i]], score(order[i])) > l.effectiveArea(kept[order[j]], score(order[j]))
	})
	return order
}

func (l *LayoutDecider) largest(kept []types.Detection, score func(int) float64) int {
	return l.byEffectiveArea(kept, score)[0]
}

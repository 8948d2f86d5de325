package engine

import (
	"sort"

	"github.com/andresmejia3/reframe/internal/types"
)

// FilterResult is the outcome of candidate filtering for one sampled frame.
type FilterResult struct {
	Kept  []types.Detection // sorted by area, largest first
	Raw   int
	Crowd bool
}

// Filter drops low-confidence and relatively small detections. Crowd marking
// uses the raw count so small background faces cannot mask a crowd.
func Filter(dets []types.Detection, confidence, relativeSize float64, crowdThreshold int) FilterResult {
	res := FilterResult{Raw: len(dets)}
	if crowdThreshold > 0 && len(dets) >= crowdThreshold {
		res.Crowd = true
	}

	confident := make([]types.Detection, 0, len(dets))
	maxArea := 0.0
	for _, d := range dets {
		// Non-finite geometry never reaches the tracker.
		if !d.Box.Finite() || !types.Finite(d.Score) {
			continue
		}
		if d.Score < confidence {
			continue
		}
		area := d.Area()
		if area < types.Epsilon {
			continue
		}
		if area > maxArea {
			maxArea = area
		}
		confident = append(confident, d)
	}

	minArea := relativeSize * maxArea
	for _, d := range confident {
		if d.Area() < minArea {
			continue
		}
		res.Kept = append(res.Kept, d)
	}

	sort.SliceStable(res.Kept, func(i, j int) bool {
		return res.Kept[i].Area() > res.Kept[j].Area()
	})
	return res
}

package engine

import "github.com/andresmejia3/reframe/internal/types"

// face builds a detection centered at (cx, cy) with the given size.
func face(cx, cy, w, h, score float64) types.Detection {
	return types.Detection{
		Box:   types.BBox{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
		Score: score,
	}
}

// talking marks a detection with a detector-supplied openness value.
func talking(d types.Detection, mar float64) types.Detection {
	d.MAR = mar
	d.HasMAR = true
	return d
}

func testConfig() Config {
	cfg := DefaultConfig(30)
	cfg.Smoothing = 1
	return cfg
}

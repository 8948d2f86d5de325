package compose

import (
	"image"
	"math"

	"github.com/andresmejia3/reframe/internal/types"
)

// SingleCrop returns the largest window of the given aspect (w/h) that fits
// in a srcW x srcH frame, centered on center and clamped to the frame.
func SingleCrop(srcW, srcH int, center types.Point, aspect float64) image.Rectangle {
	w, h := fitAspect(float64(srcW), float64(srcH), aspect)
	return place(srcW, srcH, center, w, h)
}

// DualCrop returns the window for one half of a stacked dual layout: the
// subject box grown by zoom at the half-canvas aspect, shrunk to fit the
// frame when the zoom asks for more than exists.
func DualCrop(srcW, srcH int, box types.BBox, zoom, aspect float64) image.Rectangle {
	h := box.Height()
	if aspect > 0 {
		h = math.Max(h, box.Width()/aspect)
	}
	h = math.Max(h*zoom, 1)
	w := h * aspect

	maxW, maxH := fitAspect(float64(srcW), float64(srcH), aspect)
	if w > maxW || h > maxH {
		w, h = maxW, maxH
	}
	return place(srcW, srcH, box.Center(), w, h)
}

// fitAspect returns the largest w x h of the given aspect inside W x H.
func fitAspect(W, H, aspect float64) (float64, float64) {
	if aspect <= 0 || W <= 0 || H <= 0 {
		return math.Max(W, 0), math.Max(H, 0)
	}
	if W/H > aspect {
		return H * aspect, H
	}
	return W, W / aspect
}

// place positions a w x h window centered on center, clamped to the frame.
func place(srcW, srcH int, center types.Point, w, h float64) image.Rectangle {
	cw := min(max(int(math.Round(w)), 1), srcW)
	ch := min(max(int(math.Round(h)), 1), srcH)

	cx, cy := center.X, center.Y
	if math.IsNaN(cx) || math.IsNaN(cy) {
		cx, cy = float64(srcW)/2, float64(srcH)/2
	}
	x0 := int(math.Round(cx - float64(cw)/2))
	y0 := int(math.Round(cy - float64(ch)/2))
	x0 = min(max(x0, 0), srcW-cw)
	y0 = min(max(y0, 0), srcH-ch)
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

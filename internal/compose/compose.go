// Package compose renders 9:16 output frames from source frames and the
// engine's framing decisions.
package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/nfnt/resize"
)

// Fallback selects what is drawn when no subject is being framed.
type Fallback string

const (
	FallbackPad  Fallback = "pad"  // letterbox the full frame
	FallbackZoom Fallback = "zoom" // static center crop
	FallbackBlur Fallback = "blur" // full frame over a blurred zoomed background
)

// ParseFallback validates a fallback name.
func ParseFallback(s string) (Fallback, error) {
	switch f := Fallback(s); f {
	case FallbackPad, FallbackZoom, FallbackBlur:
		return f, nil
	}
	return "", fmt.Errorf("unknown fallback %q (want pad, zoom or blur)", s)
}

// Options configures the output canvas.
type Options struct {
	Width       int
	Height      int
	DualZoomOut float64 // crop height per dual subject, as a multiple of its box
	Fallback    Fallback
	BlurRadius  int // box blur radius at output resolution
}

// DefaultOptions returns a 1080x1920 canvas with the blur fallback.
func DefaultOptions() Options {
	return Options{
		Width:       1080,
		Height:      1920,
		DualZoomOut: 2.2,
		Fallback:    FallbackBlur,
		BlurRadius:  40,
	}
}

// HeightFor returns the 9:16 canvas height for width, rounded to even.
func HeightFor(width int) int {
	return int(math.Round(float64(width)*16/9/2)) * 2
}

// Normalize replaces unusable values with defaults. The canvas is always
// 9:16; Height is derived from Width.
func (o *Options) Normalize() {
	def := DefaultOptions()
	// Even dimensions keep yuv420p encoders happy and the dual halves equal.
	o.Width -= o.Width % 2
	if o.Width < 2 {
		o.Width = def.Width
	}
	o.Height = HeightFor(o.Width)
	if o.DualZoomOut < 1 {
		o.DualZoomOut = def.DualZoomOut
	}
	if _, err := ParseFallback(string(o.Fallback)); err != nil {
		o.Fallback = def.Fallback
	}
	if o.BlurRadius < 0 {
		o.BlurRadius = 0
	}
}

// Aspect is the canvas width over height.
func (o Options) Aspect() float64 { return float64(o.Width) / float64(o.Height) }

// Compositor draws frames onto a reused canvas. It is not safe for
// concurrent use.
type Compositor struct {
	opts   Options
	canvas *image.RGBA
}

// New creates a compositor; opts is normalized.
func New(opts Options) *Compositor {
	opts.Normalize()
	return &Compositor{
		opts:   opts,
		canvas: image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
	}
}

// Options returns the normalized options.
func (c *Compositor) Options() Options { return c.opts }

// Compose renders src for the given layout. Boxes are subject boxes in
// source pixels, primary first. The returned image is the compositor's
// canvas and is overwritten by the next call.
func (c *Compositor) Compose(src *image.RGBA, mode types.LayoutMode, boxes []types.BBox) *image.RGBA {
	switch {
	case mode == types.Dual && len(boxes) >= 2:
		c.dual(src, boxes[0], boxes[1])
	case (mode == types.Single || mode == types.Dual) && len(boxes) >= 1:
		c.single(src, boxes[0])
	default:
		c.fallback(src)
	}
	return c.canvas
}

// Crops returns the source rectangles Compose would sample for the layout.
// Fallback layouts report the window they center on.
func (c *Compositor) Crops(srcW, srcH int, mode types.LayoutMode, boxes []types.BBox) []image.Rectangle {
	switch {
	case mode == types.Dual && len(boxes) >= 2:
		a := c.halfAspect()
		return []image.Rectangle{
			DualCrop(srcW, srcH, boxes[0], c.opts.DualZoomOut, a),
			DualCrop(srcW, srcH, boxes[1], c.opts.DualZoomOut, a),
		}
	case (mode == types.Single || mode == types.Dual) && len(boxes) >= 1:
		return []image.Rectangle{SingleCrop(srcW, srcH, boxes[0].Center(), c.opts.Aspect())}
	}
	return []image.Rectangle{image.Rect(0, 0, srcW, srcH)}
}

func (c *Compositor) halfAspect() float64 {
	return float64(c.opts.Width) / float64(c.opts.Height/2)
}

func (c *Compositor) single(src *image.RGBA, box types.BBox) {
	b := src.Bounds()
	r := SingleCrop(b.Dx(), b.Dy(), box.Center(), c.opts.Aspect()).Add(b.Min)
	c.blit(src.SubImage(r), c.canvas.Bounds())
}

func (c *Compositor) dual(src *image.RGBA, top, bottom types.BBox) {
	b := src.Bounds()
	a := c.halfAspect()
	half := c.opts.Height / 2

	rt := DualCrop(b.Dx(), b.Dy(), top, c.opts.DualZoomOut, a).Add(b.Min)
	rb := DualCrop(b.Dx(), b.Dy(), bottom, c.opts.DualZoomOut, a).Add(b.Min)
	c.blit(src.SubImage(rt), image.Rect(0, 0, c.opts.Width, half))
	c.blit(src.SubImage(rb), image.Rect(0, half, c.opts.Width, c.opts.Height))
}

func (c *Compositor) fallback(src *image.RGBA) {
	b := src.Bounds()
	center := types.Point{X: float64(b.Dx()) / 2, Y: float64(b.Dy()) / 2}

	switch c.opts.Fallback {
	case FallbackZoom:
		r := SingleCrop(b.Dx(), b.Dy(), center, c.opts.Aspect()).Add(b.Min)
		c.blit(src.SubImage(r), c.canvas.Bounds())
	case FallbackBlur:
		c.blurredBackground(src, center)
		c.blit(src, c.letterbox(b))
	default:
		draw.Draw(c.canvas, c.canvas.Bounds(), image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)
		c.blit(src, c.letterbox(b))
	}
}

// letterbox returns where the full source lands when fit to canvas width.
func (c *Compositor) letterbox(src image.Rectangle) image.Rectangle {
	w, h := fitAspect(float64(c.opts.Width), float64(c.opts.Height), float64(src.Dx())/float64(src.Dy()))
	dw, dh := max(int(w), 1), max(int(h), 1)
	x0 := (c.opts.Width - dw) / 2
	y0 := (c.opts.Height - dh) / 2
	return image.Rect(x0, y0, x0+dw, y0+dh)
}

// blurredBackground fills the canvas with a blurred center zoom of src. The
// blur runs at quarter resolution and is scaled back up.
func (c *Compositor) blurredBackground(src *image.RGBA, center types.Point) {
	const shrink = 4
	b := src.Bounds()
	r := SingleCrop(b.Dx(), b.Dy(), center, c.opts.Aspect()).Add(b.Min)

	sw, sh := max(c.opts.Width/shrink, 1), max(c.opts.Height/shrink, 1)
	small := resize.Resize(uint(sw), uint(sh), src.SubImage(r), resize.Bilinear)
	bg := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.Draw(bg, bg.Bounds(), small, small.Bounds().Min, draw.Src)
	boxBlur(bg, c.opts.BlurRadius/shrink)

	c.blit(bg, c.canvas.Bounds())
}

// blit scales img into dst on the canvas.
func (c *Compositor) blit(img image.Image, dst image.Rectangle) {
	if dst.Empty() {
		return
	}
	scaled := resize.Resize(uint(dst.Dx()), uint(dst.Dy()), img, resize.Bilinear)
	draw.Draw(c.canvas, dst, scaled, scaled.Bounds().Min, draw.Src)
}

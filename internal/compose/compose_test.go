package compose

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/andresmejia3/reframe/internal/types"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	black = color.RGBA{A: 255}
)

// splitFrame returns a w x h frame, red on the left half and blue on the right.
func splitFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetRGBA(x, y, red)
			} else {
				img.SetRGBA(x, y, blue)
			}
		}
	}
	return img
}

func bbox(cx, cy, w, h float64) types.BBox {
	return types.BBox{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}
}

func TestSingleCrop(t *testing.T) {
	const aspect = 9.0 / 16.0
	tests := []struct {
		name   string
		center types.Point
		wantX0 int
	}{
		{"Centered", types.Point{X: 960, Y: 540}, 656},
		{"Clamped left", types.Point{X: 10, Y: 540}, 0},
		{"Clamped right", types.Point{X: 1915, Y: 540}, 1920 - 608},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SingleCrop(1920, 1080, tt.center, aspect)
			if r.Dx() != 608 || r.Dy() != 1080 {
				t.Errorf("size = %dx%d, want 608x1080", r.Dx(), r.Dy())
			}
			if r.Min.X != tt.wantX0 {
				t.Errorf("x0 = %d, want %d", r.Min.X, tt.wantX0)
			}
			if !r.In(image.Rect(0, 0, 1920, 1080)) {
				t.Errorf("crop %v leaves the frame", r)
			}
		})
	}
}

func TestDualCrop(t *testing.T) {
	const aspect = 1080.0 / 960.0
	frame := image.Rect(0, 0, 1920, 1080)

	r := DualCrop(1920, 1080, bbox(400, 500, 200, 200), 2.2, aspect)
	if r.Dy() != 440 {
		t.Errorf("height = %d, want 440", r.Dy())
	}
	if got := float64(r.Dx()) / float64(r.Dy()); math.Abs(got-aspect) > 0.01 {
		t.Errorf("aspect = %.3f, want %.3f", got, aspect)
	}
	if !r.In(frame) {
		t.Errorf("crop %v leaves the frame", r)
	}

	huge := DualCrop(1920, 1080, bbox(100, 100, 900, 900), 2.2, aspect)
	if !huge.In(frame) || huge.Dy() != 1080 {
		t.Errorf("oversized crop = %v, want full height inside the frame", huge)
	}

	degenerate := DualCrop(1920, 1080, types.BBox{X1: 50, Y1: 50, X2: 50, Y2: 50}, 2.2, aspect)
	if degenerate.Empty() || !degenerate.In(frame) {
		t.Errorf("degenerate crop = %v, want a non-empty window in the frame", degenerate)
	}
}

func TestNormalizeForcesPortraitAspect(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"Default size", 1080, 1920, 1080, 1920},
		{"Square request", 1080, 1080, 1080, 1920},
		{"Landscape request", 1920, 1080, 1920, 3414},
		{"Odd width", 721, 0, 720, 1280},
		{"Height only", 0, 1280, 1080, 1920},
		{"Negative width", -4, 100, 1080, 1920},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Options{Width: tt.width, Height: tt.height}
			o.Normalize()
			if o.Width != tt.wantW || o.Height != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", o.Width, o.Height, tt.wantW, tt.wantH)
			}
			if o.Height%2 != 0 {
				t.Errorf("height %d is odd", o.Height)
			}
		})
	}
}

func TestCompositorCrops(t *testing.T) {
	c := New(Options{Width: 108, Fallback: FallbackPad})
	frame := image.Rect(0, 0, 1920, 1080)
	left, right := bbox(500, 540, 200, 200), bbox(1400, 540, 200, 200)

	single := c.Crops(1920, 1080, types.Single, []types.BBox{right})
	if len(single) != 1 || single[0].Dy() != 1080 || !single[0].In(frame) {
		t.Fatalf("single crops = %v, want one full-height window", single)
	}
	if !image.Pt(1400, 540).In(single[0]) {
		t.Errorf("single crop %v does not contain the subject", single[0])
	}

	dual := c.Crops(1920, 1080, types.Dual, []types.BBox{left, right})
	if len(dual) != 2 {
		t.Fatalf("dual crops = %v, want two windows", dual)
	}
	if !image.Pt(500, 540).In(dual[0]) || !image.Pt(1400, 540).In(dual[1]) {
		t.Errorf("dual crops %v are not in subject order", dual)
	}

	for _, mode := range []types.LayoutMode{types.NoSubject, types.Crowd} {
		got := c.Crops(1920, 1080, mode, nil)
		if len(got) != 1 || got[0] != frame {
			t.Errorf("%s crops = %v, want the full frame", mode, got)
		}
	}
}

func TestComposeCanvasSize(t *testing.T) {
	c := New(Options{Width: 108, Height: 192, DualZoomOut: 2.2, Fallback: FallbackPad})
	src := splitFrame(640, 360)

	for _, mode := range []types.LayoutMode{types.NoSubject, types.Single, types.Dual, types.Crowd} {
		out := c.Compose(src, mode, []types.BBox{bbox(150, 180, 60, 60), bbox(490, 180, 60, 60)})
		if out.Bounds() != image.Rect(0, 0, 108, 192) {
			t.Errorf("%s: canvas = %v, want 108x192", mode, out.Bounds())
		}
	}
}

func TestComposeDualStacksSubjects(t *testing.T) {
	c := New(Options{Width: 108, Height: 192, DualZoomOut: 2.2, Fallback: FallbackPad})
	src := splitFrame(640, 360)

	out := c.Compose(src, types.Dual, []types.BBox{bbox(150, 180, 60, 60), bbox(490, 180, 60, 60)})
	if got := out.RGBAAt(54, 48); got != red {
		t.Errorf("top half = %v, want red", got)
	}
	if got := out.RGBAAt(54, 144); got != blue {
		t.Errorf("bottom half = %v, want blue", got)
	}
}

func TestComposeSingleFollowsSubject(t *testing.T) {
	c := New(Options{Width: 108, Height: 192, Fallback: FallbackPad})
	src := splitFrame(640, 360)

	if got := c.Compose(src, types.Single, []types.BBox{bbox(60, 180, 60, 60)}).RGBAAt(54, 96); got != red {
		t.Errorf("left subject: center pixel = %v, want red", got)
	}
	if got := c.Compose(src, types.Single, []types.BBox{bbox(600, 180, 60, 60)}).RGBAAt(54, 96); got != blue {
		t.Errorf("right subject: center pixel = %v, want blue", got)
	}
}

func TestComposePadFallback(t *testing.T) {
	c := New(Options{Width: 108, Height: 192, Fallback: FallbackPad})
	src := image.NewRGBA(image.Rect(0, 0, 640, 360))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+3] = 255, 255
	}

	out := c.Compose(src, types.NoSubject, nil)
	if got := out.RGBAAt(54, 5); got != black {
		t.Errorf("letterbox bar = %v, want black", got)
	}
	if got := out.RGBAAt(54, 96); got != red {
		t.Errorf("frame center = %v, want red", got)
	}
}

func TestComposeBlurFallbackFillsCanvas(t *testing.T) {
	c := New(Options{Width: 108, Height: 192, Fallback: FallbackBlur, BlurRadius: 16})
	src := image.NewRGBA(image.Rect(0, 0, 640, 360))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+3] = 255, 255
	}

	out := c.Compose(src, types.Crowd, nil)
	if got := out.RGBAAt(54, 5); got.R < 200 {
		t.Errorf("background = %v, want blurred red, not a black bar", got)
	}
}

func TestBoxBlurUniformIsStable(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 10, 20, 30, 255
	}
	boxBlur(img, 5)
	if got := img.RGBAAt(16, 16); got != (color.RGBA{10, 20, 30, 255}) {
		t.Errorf("uniform pixel changed to %v", got)
	}
}

func TestParseFallback(t *testing.T) {
	for _, s := range []string{"pad", "zoom", "blur"} {
		if _, err := ParseFallback(s); err != nil {
			t.Errorf("ParseFallback(%q) error: %v", s, err)
		}
	}
	if _, err := ParseFallback("stretch"); err == nil {
		t.Error("expected error for unknown fallback")
	}
}

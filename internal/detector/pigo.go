package detector

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/andresmejia3/reframe/internal/types"
	pigo "github.com/esimov/pigo/core"
)

// Cascade tuning for the in-process fallback.
const (
	pigoShiftFactor  = 0.1
	pigoScaleFactor  = 1.1
	pigoIoUThreshold = 0.2
	pigoMinQuality   = 5.0
)

// PigoOptions configures the pigo strategy.
type PigoOptions struct {
	CascadePath string
	MinSize     int
	MaxSize     int
}

// PigoDetector is a pure-Go face detector. It returns boxes only; no
// landmarks, so mouth openness is unknown. The classifier is read-only
// after unpacking, so Detect is safe for concurrent use.
type PigoDetector struct {
	classifier *pigo.Pigo
	opts       PigoOptions
}

// OpenPigo loads and unpacks the cascade file.
func OpenPigo(_ context.Context, opts PigoOptions) (*PigoDetector, error) {
	if opts.CascadePath == "" {
		return nil, fmt.Errorf("no cascade file configured")
	}
	data, err := os.ReadFile(opts.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	if opts.MinSize <= 0 {
		opts.MinSize = 20
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1000
	}
	return &PigoDetector{classifier: classifier, opts: opts}, nil
}

func (p *PigoDetector) Name() string { return "pigo" }

func (p *PigoDetector) Detect(ctx context.Context, img *image.RGBA) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	params := pigo.CascadeParams{
		MinSize:     p.opts.MinSize,
		MaxSize:     p.opts.MaxSize,
		ShiftFactor: pigoShiftFactor,
		ScaleFactor: pigoScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: grayscale(img),
			Rows:   b.Dy(),
			Cols:   b.Dx(),
			Dim:    b.Dx(),
		},
	}
	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, pigoIoUThreshold)
	return fromPigo(dets), nil
}

func (p *PigoDetector) Close() error { return nil }

// fromPigo converts cascade hits (center plus diameter) into boxes,
// dropping low-quality ones. Quality maps to confidence as Q/100.
func fromPigo(dets []pigo.Detection) []types.Detection {
	var out []types.Detection
	for _, d := range dets {
		if d.Q < pigoMinQuality {
			continue
		}
		half := float64(d.Scale) / 2
		out = append(out, types.Detection{
			Box: types.BBox{
				X1: float64(d.Col) - half,
				Y1: float64(d.Row) - half,
				X2: float64(d.Col) + half,
				Y2: float64(d.Row) + half,
			},
			Score: math.Min(float64(d.Q)/100, 1),
		})
	}
	return out
}

// grayscale converts img to 8-bit luma with integer BT.601 weights.
func grayscale(img *image.RGBA) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			r, g, bl := uint32(row[x*4]), uint32(row[x*4+1]), uint32(row[x*4+2])
			gray[y*w+x] = uint8((r*299 + g*587 + bl*114) / 1000)
		}
	}
	return gray
}

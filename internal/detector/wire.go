package detector

import (
	"image"

	"github.com/andresmejia3/reframe/internal/types"
)

// Request is the socket detector's input frame.
type Request struct {
	Height int    `msgpack:"h"`
	Width  int    `msgpack:"w"`
	Data   []byte `msgpack:"d"` // RGB uint8, row-major, shape (H, W, 3)
}

// WireDetection is one face as sent by the detector services.
type WireDetection struct {
	X          float32   `msgpack:"x"`
	Y          float32   `msgpack:"y"`
	Width      float32   `msgpack:"w"`
	Height     float32   `msgpack:"h"`
	Confidence float32   `msgpack:"c"`
	Landmarks  []float32 `msgpack:"l"`            // [x1,y1, ..., x5,y5]
	Mouth      []float32 `msgpack:"mo,omitempty"` // [top, bottom, left, right] as x,y pairs
	MAR        *float32  `msgpack:"m,omitempty"`
}

// Response is what the detector services answer with.
type Response struct {
	Detections  []WireDetection `msgpack:"detections"`
	InferenceMs float32         `msgpack:"inference_ms"`
	Error       string          `msgpack:"error,omitempty"`
}

// toDetections converts wire detections into engine detections.
func toDetections(ws []WireDetection) []types.Detection {
	out := make([]types.Detection, 0, len(ws))
	for _, w := range ws {
		d := types.Detection{
			Box: types.BBox{
				X1: float64(w.X),
				Y1: float64(w.Y),
				X2: float64(w.X + w.Width),
				Y2: float64(w.Y + w.Height),
			},
			Score: float64(w.Confidence),
		}
		for j := 0; j*2+1 < len(w.Landmarks); j++ {
			d.Landmarks = append(d.Landmarks, types.Point{X: float64(w.Landmarks[j*2]), Y: float64(w.Landmarks[j*2+1])})
		}
		if len(w.Mouth) >= 8 {
			p := func(i int) types.Point { return types.Point{X: float64(w.Mouth[i]), Y: float64(w.Mouth[i+1])} }
			d.Mouth = &types.Mouth{Top: p(0), Bottom: p(2), Left: p(4), Right: p(6)}
		}
		if w.MAR != nil && types.Finite(float64(*w.MAR)) {
			d.MAR = float64(*w.MAR)
			d.HasMAR = true
		}
		out = append(out, d)
	}
	return out
}

// RGBAToRGB packs img into tightly packed RGB, reusing dst when it is big
// enough.
func RGBAToRGB(img *image.RGBA, dst []byte) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	need := w * h * 3
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]

	o := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			dst[o], dst[o+1], dst[o+2] = row[x], row[x+1], row[x+2]
			o += 3
		}
	}
	return dst
}

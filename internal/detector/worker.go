package detector

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/andresmejia3/reframe/internal/worker"
	"github.com/vmihailenco/msgpack/v5"
)

// WorkerDetector feeds raw RGBA frames to a Python subprocess. Calls are
// serialized since the process handles one frame at a time.
type WorkerDetector struct {
	mu     sync.Mutex
	w      *worker.PythonWorker
	width  int
	height int

	// restart replaces a worker whose stream fell out of sync. Nil keeps the
	// broken one, so every later frame fails.
	restart func(ctx context.Context) (*worker.PythonWorker, error)
}

// OpenWorker starts the subprocess for frames of the given size.
func OpenWorker(ctx context.Context, cfg worker.Config) (*WorkerDetector, error) {
	w, err := worker.NewPythonWorker(ctx, 0, cfg)
	if err != nil {
		return nil, err
	}
	d := NewWorkerDetector(w, cfg.Width, cfg.Height)
	d.restart = func(ctx context.Context) (*worker.PythonWorker, error) {
		return worker.NewPythonWorker(ctx, 0, cfg)
	}

	// A blank frame proves the script loaded its model and speaks the protocol.
	blank := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	if _, err := d.Detect(ctx, blank); err != nil {
		d.Close()
		return nil, fmt.Errorf("worker warm-up failed: %w", err)
	}
	return d, nil
}

// NewWorkerDetector wraps an already running worker.
func NewWorkerDetector(w *worker.PythonWorker, width, height int) *WorkerDetector {
	return &WorkerDetector{w: w, width: width, height: height}
}

func (d *WorkerDetector) Name() string { return "worker" }

func (d *WorkerDetector) Detect(ctx context.Context, img *image.RGBA) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() != d.width || b.Dy() != d.height {
		return nil, fmt.Errorf("frame is %dx%d, worker expects %dx%d", b.Dx(), b.Dy(), d.width, d.height)
	}

	data := img.Pix
	if img.Stride != b.Dx()*4 || len(data) != b.Dx()*b.Dy()*4 {
		packed := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			copy(packed.Pix[y*packed.Stride:(y+1)*packed.Stride], img.Pix[y*img.Stride:])
		}
		data = packed.Pix
	}

	payload, err := d.process(ctx, data)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := msgpack.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode worker response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python worker error: %s", resp.Error)
	}
	return toDetections(resp.Detections), nil
}

func (d *WorkerDetector) process(ctx context.Context, data []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w.Broken() && d.restart != nil {
		d.w.Close()
		w, err := d.restart(ctx)
		if err != nil {
			return nil, fmt.Errorf("restart worker: %w", err)
		}
		d.w = w
	}
	return d.w.ProcessFrame(data)
}

func (d *WorkerDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w.Close()
}

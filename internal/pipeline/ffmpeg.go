package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/utils"
)

// Clip is one output video cut from a source.
type Clip struct {
	Index  int
	Input  string
	Output string
	Range  utils.Range
	Info   utils.VideoInfo
}

// RunClip decodes the clip range, runs it and encodes the result next to
// its timeline and coordinate artifacts.
func (r *Runner) RunClip(ctx context.Context, clip Clip) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	decoder := utils.NewFFmpegRawDecoder(ctx, clip.Input, clip.Range)
	decoderOut, err := decoder.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("create decoder pipe: %w", err)
	}
	if err := decoder.Start(); err != nil {
		return Result{}, fmt.Errorf("start decoder: %w", err)
	}

	opts := r.Compose
	opts.Normalize()
	encoder := utils.NewFFmpegEncoder(ctx, clip.Output, clip.Info.FPS, opts.Width, opts.Height, audioSource(clip), clip.Range)
	encoderIn, err := encoder.StdinPipe()
	if err != nil {
		cancel()
		decoder.Wait()
		return Result{}, fmt.Errorf("create encoder pipe: %w", err)
	}
	if err := encoder.Start(); err != nil {
		cancel()
		decoder.Wait()
		return Result{}, fmt.Errorf("start encoder: %w", err)
	}

	res, runErr := r.Run(ctx, Segment{
		Index:  clip.Index,
		FPS:    clip.Info.FPS,
		Width:  clip.Info.Width,
		Height: clip.Info.Height,
		Source: NewRawSource(decoderOut, clip.Info.Width, clip.Info.Height),
		Sink:   NewWriterSink(encoderIn),
	})
	if runErr != nil {
		cancel()
	}

	encoderIn.Close()
	encErr := encoder.Wait()
	// Drain anything left so the decoder can exit on its own.
	io.Copy(io.Discard, decoderOut)
	decErr := decoder.Wait()

	switch {
	case runErr != nil:
		if encErr != nil {
			utils.ShowError("Encoder process failed", encErr, encoder)
		}
		return res, runErr
	case decErr != nil:
		utils.ShowError("Decoder process failed", decErr, decoder)
		return res, fmt.Errorf("%w: decode %s: %v", utils.ErrUnreadableSource, clip.Input, decErr)
	case res.Frames == 0:
		return res, fmt.Errorf("%w: no frames in %s", utils.ErrUnreadableSource, clip.Input)
	case encErr != nil:
		utils.ShowError("Encoder process failed", encErr, encoder)
		return res, fmt.Errorf("encode %s: %w", clip.Output, encErr)
	}

	if err := timeline.WriteArtifacts(clip.Output, res.Labels, res.Coordinates); err != nil {
		return res, err
	}
	return res, nil
}

func audioSource(c Clip) string {
	if c.Info.HasAudio {
		return c.Input
	}
	return ""
}

// ForEach runs fn for indices [0, n) on up to workers goroutines. Every
// index runs even if others fail; the failures are joined.
func ForEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if workers < 1 {
		workers = 1
	}
	tasks := make(chan int)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for w := 0; w < min(workers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				if err := fn(ctx, i); err != nil {
					errs[i] = fmt.Errorf("segment %d: %w", i, err)
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			errs[i] = fmt.Errorf("segment %d: %w", i, ctx.Err())
			continue
		}
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return errors.Join(errs...)
}

package pipeline

import (
	"errors"
	"image"
	"io"
	"sync"

	"github.com/andresmejia3/reframe/internal/types"
)

// Frame is one decoded source frame. Detections caches a detector result
// computed early by the lookahead.
type Frame struct {
	Index      int
	Image      *image.RGBA
	Detections []types.Detection
	Detected   bool
}

// FrameSource yields frames in order and io.EOF at the end.
type FrameSource interface {
	Next() (*Frame, error)
}

// FrameSink consumes composed output frames in order.
type FrameSink interface {
	Write(img *image.RGBA) error
}

// Releaser is implemented by sources that recycle frame buffers.
type Releaser interface {
	Release(f *Frame)
}

// Lookahead buffers at most one frame ahead of the consumer without
// changing the order frames are delivered in.
type Lookahead struct {
	src     FrameSource
	pending *Frame
	err     error
}

// NewLookahead wraps src.
func NewLookahead(src FrameSource) *Lookahead {
	return &Lookahead{src: src}
}

// Next returns the buffered frame if there is one, else reads from the source.
func (l *Lookahead) Next() (*Frame, error) {
	if l.pending != nil {
		f := l.pending
		l.pending = nil
		return f, nil
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.src.Next()
}

// Peek returns the frame Next will return, reading it if needed.
func (l *Lookahead) Peek() (*Frame, error) {
	if l.pending != nil {
		return l.pending, nil
	}
	if l.err != nil {
		return nil, l.err
	}
	f, err := l.src.Next()
	if err != nil {
		l.err = err
		return nil, err
	}
	l.pending = f
	return f, nil
}

// RawSource reads tightly packed RGBA frames of a fixed size from r.
type RawSource struct {
	r      io.Reader
	width  int
	height int
	next   int
	pool   sync.Pool
}

// NewRawSource creates a source of width x height RGBA frames.
func NewRawSource(r io.Reader, width, height int) *RawSource {
	return &RawSource{r: r, width: width, height: height}
}

// Next reads one frame. A trailing partial frame is treated as the end.
func (s *RawSource) Next() (*Frame, error) {
	img, _ := s.pool.Get().(*image.RGBA)
	if img == nil {
		img = image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	}
	if _, err := io.ReadFull(s.r, img.Pix); err != nil {
		s.pool.Put(img)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	f := &Frame{Index: s.next, Image: img}
	s.next++
	return f, nil
}

// Release hands the frame's buffer back for reuse.
func (s *RawSource) Release(f *Frame) {
	if f == nil || f.Image == nil {
		return
	}
	s.pool.Put(f.Image)
	f.Image = nil
}

// WriterSink writes canvases as raw RGBA to w.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink creates a sink over w.
func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

func (s *WriterSink) Write(img *image.RGBA) error {
	b := img.Bounds()
	if img.Stride == b.Dx()*4 {
		_, err := s.w.Write(img.Pix[:b.Dx()*b.Dy()*4])
		return err
	}
	for y := 0; y < b.Dy(); y++ {
		if _, err := s.w.Write(img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]); err != nil {
			return err
		}
	}
	return nil
}

// Package detector wraps the external face detectors behind one interface
// and picks a working one from an ordered list of strategies.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/andresmejia3/reframe/internal/types"
)

// ErrNoStrategy is returned when every strategy in a chain failed to open.
var ErrNoStrategy = errors.New("no detector strategy available")

// Detector returns the subjects found in one frame. An empty result is valid.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img *image.RGBA) ([]types.Detection, error)
	Close() error
}

// Strategy is one named way of obtaining a Detector.
type Strategy struct {
	Name string
	Open func(ctx context.Context) (Detector, error)
}

// Attempt records the outcome of opening one strategy.
type Attempt struct {
	Name string
	Err  error
}

// Chain is an ordered list of strategies; the first that opens wins.
type Chain []Strategy

// Open tries each strategy in order. The attempts list covers every
// strategy tried, including the successful one.
func (c Chain) Open(ctx context.Context) (Detector, []Attempt, error) {
	attempts := make([]Attempt, 0, len(c))
	var errs []error
	for _, s := range c {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}
		d, err := s.Open(ctx)
		attempts = append(attempts, Attempt{Name: s.Name, Err: err})
		if err == nil {
			return d, attempts, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	if len(errs) == 0 {
		return nil, attempts, ErrNoStrategy
	}
	return nil, attempts, fmt.Errorf("%w: %w", ErrNoStrategy, errors.Join(errs...))
}

// Session owns the detector shared by all segments of a run. The chain is
// opened on first use, once.
type Session struct {
	chain Chain
	log   *slog.Logger

	once     sync.Once
	det      Detector
	attempts []Attempt
	err      error
}

// NewSession creates a session over chain. A nil logger discards output.
func NewSession(chain Chain, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{chain: chain, log: logger}
}

// Detector opens the chain on the first call and returns the same result
// on every later call.
func (s *Session) Detector(ctx context.Context) (Detector, error) {
	s.once.Do(func() {
		s.det, s.attempts, s.err = s.chain.Open(ctx)
		for _, a := range s.attempts {
			if a.Err != nil {
				s.log.Warn("detector strategy unavailable", "strategy", a.Name, "error", a.Err)
			}
		}
		if s.det != nil {
			s.log.Info("detector ready", "strategy", s.det.Name())
		}
	})
	return s.det, s.err
}

// Attempts returns the strategy outcomes of the opening call.
func (s *Session) Attempts() []Attempt {
	return append([]Attempt(nil), s.attempts...)
}

// DetectOrEmpty runs the detector on img. A failure for this one frame is
// logged and reported as no detections.
func (s *Session) DetectOrEmpty(ctx context.Context, frame int, img *image.RGBA) []types.Detection {
	d, err := s.Detector(ctx)
	if err != nil {
		return nil
	}
	dets, err := d.Detect(ctx, img)
	if err != nil {
		s.log.Warn("detection failed", "frame", frame, "strategy", d.Name(), "error", err)
		return nil
	}
	return dets
}

// Close releases the detector if one was opened.
func (s *Session) Close() error {
	if s.det == nil {
		return nil
	}
	return s.det.Close()
}

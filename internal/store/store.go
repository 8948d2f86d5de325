// Package store persists processed runs: which source and range produced
// which output, the layout timeline, and the per-frame coordinate log.
//
// Two backends share one schema: PostgreSQL through pgx for shared setups
// and SQLite for a single workstation.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andresmejia3/reframe/internal/timeline"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run describes one processed clip.
type Run struct {
	ID        uuid.UUID
	VideoID   string
	Source    string
	Output    string
	Clip      int
	Start     float64 // clip range in the source, seconds
	End       float64
	FPS       float64
	Frames    int
	Detector  string
	CreatedAt time.Time

	// Filled by ListRuns.
	Segments int
	Dual     float64 // seconds spent in the split layout
}

// Store is implemented by both backends.
type Store interface {
	// EnsureVideo registers a source video, refreshing its path and timestamp.
	EnsureVideo(ctx context.Context, videoID, path string) error
	// SaveRun writes a run with its timeline and coordinate log in one
	// transaction. A zero run ID is replaced with a fresh one.
	SaveRun(ctx context.Context, run *Run, segs []timeline.Segment, coords []timeline.CoordinateEntry) error
	// ListRuns returns the newest runs first. limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	// RunTimeline returns a run and its segments in order.
	RunTimeline(ctx context.Context, id uuid.UUID) (Run, []timeline.Segment, error)
	// RunCoordinates returns the coordinate log of a run in frame order.
	RunCoordinates(ctx context.Context, id uuid.UUID) ([]timeline.CoordinateEntry, error)
	// Reset drops every table.
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open picks the backend from dsn: postgres:// and postgresql:// URLs or
// key=value strings go to PostgreSQL, anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, errors.New("empty database address")
	case isPostgres(dsn):
		return NewPostgres(ctx, dsn)
	default:
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// flatten packs coordinate faces into one slice of five values per face.
func flatten(faces [][5]float64) []float64 {
	out := make([]float64, 0, len(faces)*5)
	for _, f := range faces {
		out = append(out, f[:]...)
	}
	return out
}

func unflatten(vals []float64) ([][5]float64, error) {
	if len(vals)%5 != 0 {
		return nil, fmt.Errorf("face list has %d values, not a multiple of 5", len(vals))
	}
	out := make([][5]float64, len(vals)/5)
	for i := range out {
		copy(out[i][:], vals[i*5:])
	}
	return out, nil
}

func prepareRun(run *Run) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}

func dualSeconds(segs []timeline.Segment) float64 {
	var d float64
	for _, s := range segs {
		if s.Mode.Label() == "2" {
			d += s.End - s.Start
		}
	}
	return d
}

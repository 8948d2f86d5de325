package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/types"
)

// Postgres stores runs in PostgreSQL. A pool is used because clips of one
// run finish concurrently.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and makes sure the schema exists.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			video_id TEXT NOT NULL REFERENCES video_metadata(id) ON DELETE CASCADE,
			source TEXT NOT NULL,
			output TEXT NOT NULL,
			clip INT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL,
			fps DOUBLE PRECISION NOT NULL,
			frames INT NOT NULL,
			detector TEXT NOT NULL,
			segment_count INT NOT NULL,
			dual_seconds DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS layout_segments (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			start_frame INT NOT NULL,
			end_frame INT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL,
			mode TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS frame_coords (
			run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			frame INT NOT NULL,
			source_width INT NOT NULL,
			source_height INT NOT NULL,
			faces DOUBLE PRECISION[] NOT NULL,
			PRIMARY KEY (run_id, frame)
		);
		CREATE INDEX IF NOT EXISTS layout_segments_run_id_idx ON layout_segments (run_id);
		CREATE INDEX IF NOT EXISTS runs_video_id_idx ON runs (video_id);
	`)
	return err
}

// Close terminates the pool.
func (s *Postgres) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Postgres) EnsureVideo(ctx context.Context, videoID, path string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	return err
}

func (s *Postgres) SaveRun(ctx context.Context, run *Run, segs []timeline.Segment, coords []timeline.CoordinateEntry) error {
	prepareRun(run)
	run.Segments = len(segs)
	run.Dual = dualSeconds(segs)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, video_id, source, output, clip, start_time, end_time, fps, frames,
			detector, segment_count, dual_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, run.ID, run.VideoID, run.Source, run.Output, run.Clip, run.Start, run.End, run.FPS, run.Frames,
		run.Detector, run.Segments, run.Dual, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, seg := range segs {
		batch.Queue(`
			INSERT INTO layout_segments (run_id, start_frame, end_frame, start_time, end_time, mode)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, run.ID, seg.StartFrame, seg.EndFrame, seg.Start, seg.End, seg.Mode.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert segments: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"frame_coords"},
		[]string{"run_id", "frame", "source_width", "source_height", "faces"},
		pgx.CopyFromSlice(len(coords), func(i int) ([]any, error) {
			c := coords[i]
			return []any{run.ID, c.Frame, c.SourceWidth, c.SourceHeight, flatten(c.Faces)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy coordinates: %w", err)
	}
	return tx.Commit(ctx)
}

const runColumns = `id, video_id, source, output, clip, start_time, end_time, fps, frames,
	detector, segment_count, dual_seconds, created_at`

func scanPostgresRun(row pgx.Row) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.VideoID, &r.Source, &r.Output, &r.Clip, &r.Start, &r.End, &r.FPS,
		&r.Frames, &r.Detector, &r.Segments, &r.Dual, &r.CreatedAt)
	return r, err
}

func (s *Postgres) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, clip ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Postgres) RunTimeline(ctx context.Context, id uuid.UUID) (Run, []timeline.Segment, error) {
	run, err := scanPostgresRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, nil, ErrNotFound
	}
	if err != nil {
		return Run{}, nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT start_frame, end_frame, start_time, end_time, mode
		FROM layout_segments WHERE run_id = $1 ORDER BY start_frame
	`, id)
	if err != nil {
		return run, nil, err
	}
	defer rows.Close()

	var segs []timeline.Segment
	for rows.Next() {
		var seg timeline.Segment
		var mode string
		if err := rows.Scan(&seg.StartFrame, &seg.EndFrame, &seg.Start, &seg.End, &mode); err != nil {
			return run, nil, err
		}
		seg.Mode = types.ParseLayoutMode(mode)
		segs = append(segs, seg)
	}
	return run, segs, rows.Err()
}

func (s *Postgres) RunCoordinates(ctx context.Context, id uuid.UUID) ([]timeline.CoordinateEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT frame, source_width, source_height, faces
		FROM frame_coords WHERE run_id = $1 ORDER BY frame
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timeline.CoordinateEntry
	for rows.Next() {
		var c timeline.CoordinateEntry
		var flat []float64
		if err := rows.Scan(&c.Frame, &c.SourceWidth, &c.SourceHeight, &flat); err != nil {
			return nil, err
		}
		if c.Faces, err = unflatten(flat); err != nil {
			return nil, fmt.Errorf("frame %d: %w", c.Frame, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
func (s *Postgres) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS frame_coords CASCADE;
		DROP TABLE IF EXISTS layout_segments CASCADE;
		DROP TABLE IF EXISTS runs CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}

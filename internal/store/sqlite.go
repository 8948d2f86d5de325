package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS video_metadata (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	indexed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	video_id TEXT NOT NULL REFERENCES video_metadata(id) ON DELETE CASCADE,
	source TEXT NOT NULL,
	output TEXT NOT NULL,
	clip INTEGER NOT NULL,
	start_time REAL NOT NULL,
	end_time REAL NOT NULL,
	fps REAL NOT NULL,
	frames INTEGER NOT NULL,
	detector TEXT NOT NULL,
	segment_count INTEGER NOT NULL,
	dual_seconds REAL NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS layout_segments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	start_frame INTEGER NOT NULL,
	end_frame INTEGER NOT NULL,
	start_time REAL NOT NULL,
	end_time REAL NOT NULL,
	mode TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS frame_coords (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	frame INTEGER NOT NULL,
	source_width INTEGER NOT NULL,
	source_height INTEGER NOT NULL,
	faces TEXT NOT NULL,
	PRIMARY KEY (run_id, frame)
);
CREATE INDEX IF NOT EXISTS layout_segments_run_id_idx ON layout_segments (run_id);
CREATE INDEX IF NOT EXISTS runs_video_id_idx ON runs (video_id);
`

// timeLayout keeps a fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite stores runs in a local database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens or creates the database at path and applies the schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	// Pragmas go in the DSN so every pooled connection gets them.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) EnsureVideo(ctx context.Context, videoID, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET indexed_at = excluded.indexed_at, path = excluded.path
	`, videoID, path, time.Now().UTC().Format(timeLayout))
	return err
}

func (s *SQLite) SaveRun(ctx context.Context, run *Run, segs []timeline.Segment, coords []timeline.CoordinateEntry) error {
	prepareRun(run)
	run.Segments = len(segs)
	run.Dual = dualSeconds(segs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, video_id, source, output, clip, start_time, end_time, fps, frames,
			detector, segment_count, dual_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID.String(), run.VideoID, run.Source, run.Output, run.Clip, run.Start, run.End, run.FPS,
		run.Frames, run.Detector, run.Segments, run.Dual, run.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	segStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO layout_segments (run_id, start_frame, end_frame, start_time, end_time, mode)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare segments: %w", err)
	}
	defer segStmt.Close()
	for _, seg := range segs {
		if _, err := segStmt.ExecContext(ctx, run.ID.String(), seg.StartFrame, seg.EndFrame, seg.Start, seg.End, seg.Mode.String()); err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}
	}

	coordStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frame_coords (run_id, frame, source_width, source_height, faces)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare coordinates: %w", err)
	}
	defer coordStmt.Close()
	for _, c := range coords {
		faces, err := json.Marshal(flatten(c.Faces))
		if err != nil {
			return fmt.Errorf("marshal faces: %w", err)
		}
		if _, err := coordStmt.ExecContext(ctx, run.ID.String(), c.Frame, c.SourceWidth, c.SourceHeight, string(faces)); err != nil {
			return fmt.Errorf("insert coordinates: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (Run, error) {
	var (
		r       Run
		id      string
		created string
	)
	err := row.Scan(&id, &r.VideoID, &r.Source, &r.Output, &r.Clip, &r.Start, &r.End, &r.FPS,
		&r.Frames, &r.Detector, &r.Segments, &r.Dual, &created)
	if err != nil {
		return r, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return r, fmt.Errorf("parse run id: %w", err)
	}
	if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return r, fmt.Errorf("parse created_at: %w", err)
	}
	return r, nil
}

func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, clip ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLite) RunTimeline(ctx context.Context, id uuid.UUID) (Run, []timeline.Segment, error) {
	run, err := scanSQLiteRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, ErrNotFound
	}
	if err != nil {
		return Run{}, nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT start_frame, end_frame, start_time, end_time, mode
		FROM layout_segments WHERE run_id = ? ORDER BY start_frame
	`, id.String())
	if err != nil {
		return run, nil, fmt.Errorf("list segments: %w", err)
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

func (s *SQLite) RunCoordinates(ctx context.Context, id uuid.UUID) ([]timeline.CoordinateEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, source_width, source_height, faces
		FROM frame_coords WHERE run_id = ? ORDER BY frame
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list coordinates: %w", err)
	}
	defer rows.Close()

	var out []timeline.CoordinateEntry
	for rows.Next() {
		var (
			c     timeline.CoordinateEntry
			faces string
			flat  []float64
		)
		if err := rows.Scan(&c.Frame, &c.SourceWidth, &c.SourceHeight, &faces); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(faces), &flat); err != nil {
			return nil, fmt.Errorf("frame %d: %w", c.Frame, err)
		}
		if c.Faces, err = unflatten(flat); err != nil {
			return nil, fmt.Errorf("frame %d: %w", c.Frame, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS frame_coords;
		DROP TABLE IF EXISTS layout_segments;
		DROP TABLE IF EXISTS runs;
		DROP TABLE IF EXISTS video_metadata;
	`)
	return err
}

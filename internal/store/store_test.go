package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/types"
)

func sampleRun() (Run, []timeline.Segment, []timeline.CoordinateEntry) {
	run := Run{
		VideoID:  "vid_123",
		Source:   "/tmp/video.mp4",
		Output:   "/tmp/video_clip0.mp4",
		Start:    10,
		End:      12,
		FPS:      30,
		Frames:   60,
		Detector: "pigo",
	}
	segs := []timeline.Segment{
		{StartFrame: 0, EndFrame: 30, Start: 0, End: 1, Mode: types.Single},
		{StartFrame: 30, EndFrame: 60, Start: 1, End: 2, Mode: types.Dual},
	}
	coords := []timeline.CoordinateEntry{
		{Frame: 0, SourceWidth: 1920, SourceHeight: 1080, Faces: [][5]float64{{10, 20, 110, 140, 0.111}}},
		{Frame: 1, SourceWidth: 1920, SourceHeight: 1080, Faces: [][5]float64{}},
		{Frame: 2, SourceWidth: 1920, SourceHeight: 1080, Faces: [][5]float64{{1, 2, 3, 4, 0.5}, {5, 6, 7, 8, 0.25}}},
	}
	return run, segs, coords
}

// exerciseStore runs the same scenario against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.EnsureVideo(ctx, "vid_123", "/tmp/video.mp4"); err != nil {
		t.Fatalf("EnsureVideo failed: %v", err)
	}
	// Registering twice refreshes instead of failing.
	if err := s.EnsureVideo(ctx, "vid_123", "/tmp/moved.mp4"); err != nil {
		t.Fatalf("EnsureVideo (again) failed: %v", err)
	}

	run, segs, coords := sampleRun()
	if err := s.SaveRun(ctx, &run, segs, coords); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if run.ID == uuid.Nil {
		t.Fatal("SaveRun did not assign a run id")
	}

	second, _, _ := sampleRun()
	second.Clip = 1
	second.CreatedAt = run.CreatedAt.Add(time.Second)
	if err := s.SaveRun(ctx, &second, segs[:1], nil); err != nil {
		t.Fatalf("SaveRun (second) failed: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("Expected newest run first, got clip %d", runs[0].Clip)
	}
	if runs[1].Segments != 2 || runs[1].Dual != 1 {
		t.Errorf("Expected 2 segments with 1s dual, got %d / %.2f", runs[1].Segments, runs[1].Dual)
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("ListRuns(1) = %d runs, err %v", len(limited), err)
	}

	got, gotSegs, err := s.RunTimeline(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunTimeline failed: %v", err)
	}
	if got.Detector != "pigo" || got.Frames != 60 || got.Start != 10 {
		t.Errorf("Unexpected run: %+v", got)
	}
	if len(gotSegs) != 2 || gotSegs[1].Mode != types.Dual || gotSegs[1].StartFrame != 30 {
		t.Errorf("Unexpected segments: %+v", gotSegs)
	}

	gotCoords, err := s.RunCoordinates(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunCoordinates failed: %v", err)
	}
	if len(gotCoords) != 3 {
		t.Fatalf("Expected 3 coordinate entries, got %d", len(gotCoords))
	}
	if len(gotCoords[1].Faces) != 0 || len(gotCoords[2].Faces) != 2 || gotCoords[2].Faces[1][4] != 0.25 {
		t.Errorf("Unexpected coordinates: %+v", gotCoords)
	}

	if _, _, err := s.RunTimeline(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown run, got %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListRuns(ctx, 0); err == nil {
		t.Error("Expected ListRuns to fail after Reset dropped the tables")
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "nested", "reframe.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer s.Close(ctx)

	exerciseStore(t, s)
}

func TestSQLiteRejectsUnknownVideo(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "reframe.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer s.Close(ctx)

	run, segs, coords := sampleRun()
	if err := s.SaveRun(ctx, &run, segs, coords); err == nil {
		t.Fatal("Expected foreign key failure for an unregistered video")
	}
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected the failed run to be rolled back, found %d", len(runs))
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cases := []struct {
		dsn      string
		postgres bool
	}{
		{"postgres://user:pw@localhost:5432/reframe", true},
		{"postgresql://localhost/reframe", true},
		{"host=localhost user=reframe dbname=reframe", true},
		{"/var/lib/reframe/runs.db", false},
		{"sqlite://runs.db", false},
	}
	for _, tc := range cases {
		if got := isPostgres(tc.dsn); got != tc.postgres {
			t.Errorf("isPostgres(%q) = %v, want %v", tc.dsn, got, tc.postgres)
		}
	}

	ctx := context.Background()
	if _, err := Open(ctx, "  "); err == nil {
		t.Error("Expected error for empty address")
	}
	s, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close(ctx)
	if _, ok := s.(*SQLite); !ok {
		t.Errorf("Expected *SQLite, got %T", s)
	}
}

func TestFlatten(t *testing.T) {
	faces := [][5]float64{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}}
	back, err := unflatten(flatten(faces))
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 || back[1] != faces[1] {
		t.Errorf("unflatten(flatten) = %v", back)
	}
	if _, err := unflatten([]float64{1, 2, 3}); err == nil {
		t.Error("Expected error for a partial face")
	}
}

// TestPostgresIntegration runs the store scenario against a real Postgres
// container. It requires Docker to be running.
func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// testcontainers panics when the docker socket is missing.
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("reframe_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	s, err := Open(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)
	if _, ok := s.(*Postgres); !ok {
		t.Fatalf("Expected *Postgres, got %T", s)
	}

	exerciseStore(t, s)
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}

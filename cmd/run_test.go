package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/pipeline"
	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/types"
	"github.com/andresmejia3/reframe/internal/utils"
)

func TestFmtTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{65, "00:01:05"},
		{3661, "01:01:01"},
	}

	for _, tt := range tests {
		if got := fmtTime(tt.seconds); got != tt.want {
			t.Errorf("fmtTime(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestParseClip(t *testing.T) {
	tests := []struct {
		spec    string
		want    utils.Range
		wantErr bool
	}{
		{"10s-40s", utils.Range{Start: 10 * time.Second, End: 40 * time.Second}, false},
		{"1m-1m30s", utils.Range{Start: time.Minute, End: 90 * time.Second}, false},
		{"01:05-02:00", utils.Range{Start: 65 * time.Second, End: 120 * time.Second}, false},
		{"00:00:01.5-3", utils.Range{Start: 1500 * time.Millisecond, End: 3 * time.Second}, false},
		{"12.5-", utils.Range{Start: 12500 * time.Millisecond}, false},
		{"-20s", utils.Range{End: 20 * time.Second}, false},
		{"40s-10s", utils.Range{}, true},
		{"10s-10s", utils.Range{}, true},
		{"10s", utils.Range{}, true},
		{"abc-10s", utils.Range{}, true},
		{"1:2:3:4-5", utils.Range{}, true},
		{"1.5:00-2:00", utils.Range{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseClip(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseClip(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseClip(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestParseClips(t *testing.T) {
	whole, err := parseClips(nil, time.Minute)
	if err != nil || len(whole) != 1 || whole[0] != (utils.Range{}) {
		t.Fatalf("parseClips(nil) = %v, %v; want one open range", whole, err)
	}

	got, err := parseClips([]string{"0-10s", "50s-90s"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if got[1].End != 0 {
		t.Errorf("Expected a range past the end to run to the end, got %+v", got[1])
	}

	if _, err := parseClips([]string{"70s-80s"}, time.Minute); err == nil {
		t.Error("Expected error for a clip starting after the end")
	}
	// Unknown duration disables the bounds check.
	if _, err := parseClips([]string{"70s-80s"}, 0); err != nil {
		t.Errorf("Unexpected error with unknown duration: %v", err)
	}
}

func TestClipOutputPath(t *testing.T) {
	if got := clipOutputPath("/out/talk.mp4", 0, 1); got != "/out/talk.mp4" {
		t.Errorf("single clip: got %s", got)
	}
	if got := clipOutputPath("/out/talk.mp4", 2, 3); got != "/out/talk_clip2.mp4" {
		t.Errorf("third clip: got %s", got)
	}
	if got := clipOutputPath("talk", 1, 2); got != "talk_clip1" {
		t.Errorf("no extension: got %s", got)
	}
}

func TestExpectedFrames(t *testing.T) {
	info := utils.VideoInfo{FPS: 25, Duration: time.Minute}
	ranges := []utils.Range{
		{Start: 0, End: 10 * time.Second},
		{Start: 50 * time.Second},
	}
	if got := expectedFrames(context.Background(), "unused.mp4", ranges, info); got != 500 {
		t.Errorf("expectedFrames = %d, want 500", got)
	}

	info.Duration = 0
	if got := expectedFrames(context.Background(), "unused.mp4", ranges[1:], info); got != 0 {
		t.Errorf("expectedFrames with unknown duration = %d, want 0", got)
	}
}

func TestValidateRunFlags(t *testing.T) {
	// Create a temp file for valid input
	dir := t.TempDir()
	input := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(input, []byte("not really a video"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		opts    runOptions
		wantErr bool
	}{
		{
			name: "Valid Options",
			opts: runOptions{InputPath: input, OutputPath: filepath.Join(dir, "out.mp4"), NumEngines: 2},
		},
		{
			name: "Engines clamped",
			opts: runOptions{InputPath: input, OutputPath: filepath.Join(dir, "out.mp4"), NumEngines: 0},
		},
		{
			name:    "Missing input",
			opts:    runOptions{InputPath: filepath.Join(dir, "missing.mp4"), OutputPath: "out.mp4"},
			wantErr: true,
		},
		{
			name:    "Input is a directory",
			opts:    runOptions{InputPath: dir, OutputPath: "out.mp4"},
			wantErr: true,
		},
		{
			name:    "Empty output",
			opts:    runOptions{InputPath: input, OutputPath: "  "},
			wantErr: true,
		},
		{
			name:    "Output overwrites input",
			opts:    runOptions{InputPath: input, OutputPath: filepath.Join(dir, ".", "video.mp4")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Silence the error box
			oldStderr := os.Stderr
			_, w, _ := os.Pipe()
			os.Stderr = w
			defer func() {
				w.Close()
				os.Stderr = oldStderr
			}()

			if err := validateRunFlags(&tt.opts); (err != nil) != tt.wantErr {
				t.Errorf("validateRunFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.opts.NumEngines < 1 {
				t.Errorf("Expected engines to be clamped to 1, got %d", tt.opts.NumEngines)
			}
		})
	}
}

func newRunFlagsCmd() *cobra.Command {
	c := &cobra.Command{Use: "run"}
	c.Flags().String("mode", "auto", "")
	c.Flags().String("fallback", "blur", "")
	c.Flags().Bool("speaker-focus", false, "")
	c.Flags().Int("engines", 2, "")
	return c
}

func TestApplyRunFlags(t *testing.T) {
	t.Run("only changed flags override", func(t *testing.T) {
		c := config.Default()
		c.Engine.Mode = "2"
		c.Engine.Workers = 4
		cmd := newRunFlagsCmd()
		cmd.Flags().Set("fallback", "BLUR")

		opts := runOptions{Mode: "auto", Fallback: "BLUR", NumEngines: 2, NoStore: true, NoLookahead: true}
		if err := applyRunFlags(cmd, &c, opts); err != nil {
			t.Fatalf("applyRunFlags failed: %v", err)
		}
		if c.Engine.Mode != "2" || c.Engine.Workers != 4 {
			t.Errorf("Unset flags overrode config: mode %q, workers %d", c.Engine.Mode, c.Engine.Workers)
		}
		if c.Compose.Fallback != "blur" {
			t.Errorf("Expected fallback blur, got %q", c.Compose.Fallback)
		}
		if c.Store.Enabled || c.Engine.Lookahead {
			t.Error("Expected --no-store and --no-lookahead to disable store and lookahead")
		}
	})

	t.Run("help defaults match config defaults", func(t *testing.T) {
		def := config.Default()
		want := map[string]string{
			"mode":          def.Engine.Mode,
			"fallback":      def.Compose.Fallback,
			"speaker-focus": strconv.FormatBool(def.Engine.SpeakerFocus),
			"engines":       strconv.Itoa(def.Engine.Workers),
		}
		for name, v := range want {
			if got := runCmd.Flags().Lookup(name).DefValue; got != v {
				t.Errorf("--%s default = %q, config default = %q", name, got, v)
			}
		}
	})

	t.Run("invalid mode", func(t *testing.T) {
		c := config.Default()
		cmd := newRunFlagsCmd()
		cmd.Flags().Set("mode", "3")
		if err := applyRunFlags(cmd, &c, runOptions{Mode: "3"}); err == nil {
			t.Error("Expected error for mode 3")
		}
	})

	t.Run("engines clamped", func(t *testing.T) {
		c := config.Default()
		cmd := newRunFlagsCmd()
		cmd.Flags().Set("engines", "0")
		if err := applyRunFlags(cmd, &c, runOptions{Mode: "auto", Fallback: "pad"}); err != nil {
			t.Fatal(err)
		}
		if c.Engine.Workers != 1 {
			t.Errorf("Expected 1 worker, got %d", c.Engine.Workers)
		}
	})
}

func TestPostgresFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "")
	if got := postgresFromEnv(); got != "" {
		t.Errorf("Expected no DSN without POSTGRES_HOST, got %q", got)
	}

	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "reframe")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "runs")
	t.Setenv("POSTGRES_PORT", "")
	if got, want := postgresFromEnv(), "postgres://reframe:secret@db:5432/runs"; got != want {
		t.Errorf("postgresFromEnv() = %q, want %q", got, want)
	}
}

// TestRunRecorderSave records a finished clip the way runReframe does and
// reads it back through the list and timeline renderers.
func TestRunRecorderSave(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := store.NewSQLite(ctx, filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer s.Close(ctx)
	if err := s.EnsureVideo(ctx, "vid_1", "/videos/talk.mp4"); err != nil {
		t.Fatal(err)
	}

	rec := &runRecorder{store: s, videoID: "vid_1", source: "/videos/talk.mp4"}
	clip := pipeline.Clip{
		Index:  1,
		Input:  "/videos/talk.mp4",
		Output: "/out/talk_clip1.mp4",
		Range:  utils.Range{Start: 10 * time.Second},
		Info:   utils.VideoInfo{FPS: 30, Duration: 14 * time.Second},
	}
	res := pipeline.Result{
		Frames:   120,
		Detector: "pigo",
		Segments: []timeline.Segment{
			{StartFrame: 0, EndFrame: 60, Start: 0, End: 2, Mode: types.Single},
			{StartFrame: 60, EndFrame: 120, Start: 2, End: 4, Mode: types.Dual},
		},
		Coordinates: []timeline.CoordinateEntry{
			{Frame: 0, SourceWidth: 1920, SourceHeight: 1080, Faces: [][5]float64{{1, 2, 3, 4, 0.2}}},
		},
	}

	id, err := rec.save(ctx, clip, res)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns = %d runs, err %v", len(runs), err)
	}
	got := runs[0]
	if got.ID.String() != id {
		t.Errorf("Expected run %s, got %s", id, got.ID)
	}
	if got.Start != 10 || got.End != 14 {
		t.Errorf("Expected open range to end at the video duration, got %.1f-%.1f", got.Start, got.End)
	}
	if got.Dual != 2 || got.Segments != 2 {
		t.Errorf("Expected 2 segments with 2s dual, got %d / %.1f", got.Segments, got.Dual)
	}

	listing := renderRuns(runs)
	for _, want := range []string{id, "talk.mp4", "00:00:10 -> 00:00:14", "pigo"} {
		if !strings.Contains(listing, want) {
			t.Errorf("Run listing missing %q:\n%s", want, listing)
		}
	}

	_, segs, err := s.RunTimeline(ctx, got.ID)
	if err != nil {
		t.Fatal(err)
	}
	table := renderSegments(segs)
	if !strings.Contains(table, "dual") || !strings.Contains(table, "2.00s") {
		t.Errorf("Unexpected segment table:\n%s", table)
	}
}

func TestRenderTablePadsRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, nil)
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Errorf("Unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("Expected empty output without headers")
	}
}

func TestDualSeconds(t *testing.T) {
	segs := []timeline.Segment{
		{Start: 0, End: 1.5, Mode: types.Dual},
		{Start: 1.5, End: 2, Mode: types.Crowd},
		{Start: 2, End: 3, Mode: types.Dual},
	}
	if got := dualSeconds(segs); got != 2.5 {
		t.Errorf("dualSeconds = %v, want 2.5", got)
	}
}

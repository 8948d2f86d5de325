package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/utils"
)

var timelineExport string

var timelineCmd = &cobra.Command{
	Use:   "timeline <run_id>",
	Short: "Show the layout timeline of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runTimeline(cmd.Context(), args[0])
	},
}

func init() {
	timelineCmd.Flags().StringVarP(&timelineExport, "export", "x", "", "Write timeline.json and coords.json for the run into this directory")
	rootCmd.AddCommand(timelineCmd)
}

func runTimeline(ctx context.Context, arg string) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		utils.ShowError("Invalid run ID", err, nil)
		return err
	}
	s, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}

	run, segs, err := s.RunTimeline(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Printf("❌ No run with ID %s.\n", id)
		return err
	}
	if err != nil {
		utils.ShowError("Failed to load timeline", err, nil)
		return err
	}

	fmt.Printf("📼 %s (clip %d, %s -> %s)\n", run.Source, run.Clip, fmtTime(run.Start), fmtTime(run.End))
	fmt.Printf("🎬 %s, %d frames @ %.2f fps, detector %s\n", run.Output, run.Frames, run.FPS, run.Detector)
	fmt.Println(renderSegments(segs))

	if timelineExport == "" {
		return nil
	}
	coords, err := s.RunCoordinates(ctx, id)
	if err != nil {
		utils.ShowError("Failed to load coordinates", err, nil)
		return err
	}
	if err := os.MkdirAll(timelineExport, 0755); err != nil {
		utils.ShowError("Failed to create export directory", err, nil)
		return err
	}
	target := filepath.Join(timelineExport, filepath.Base(run.Output))
	if err := timeline.WriteArtifacts(target, timeline.Labels(segs), coords); err != nil {
		utils.ShowError("Failed to export artifacts", err, nil)
		return err
	}
	tl, cp := timeline.ArtifactPaths(target)
	fmt.Fprintf(os.Stderr, "💾 Wrote %s and %s\n", tl, cp)
	return nil
}

func renderSegments(segs []timeline.Segment) string {
	headers := []string{"Start", "End", "Duration", "Frames", "Mode", "Label"}
	rows := make([][]string, 0, len(segs))
	for _, s := range segs {
		rows = append(rows, []string{
			fmtTime(s.Start),
			fmtTime(s.End),
			strconv.FormatFloat(s.End-s.Start, 'f', 2, 64) + "s",
			strconv.Itoa(s.EndFrame - s.StartFrame),
			s.Mode.String(),
			s.Mode.Label(),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignRight})
}

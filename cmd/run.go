package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/detector"
	"github.com/andresmejia3/reframe/internal/logging"
	"github.com/andresmejia3/reframe/internal/pipeline"
	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/timeline"
	"github.com/andresmejia3/reframe/internal/utils"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	InputPath    string
	OutputPath   string
	Clips        []string
	Mode         string
	Fallback     string
	SpeakerFocus bool
	NumEngines   int
	NoStore      bool
	NoLookahead  bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reframe a landscape video into a vertical one",
	Long: "Decodes the input (or each --clip range of it), follows the people on screen and writes a 9:16 video " +
		"per clip together with its timeline.json and coords.json.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := applyRunFlags(cmd, cfg, runOpts); err != nil {
			utils.ShowError("Invalid options", err, nil)
			return err
		}
		return runReframe(cmd.Context(), runOpts)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.InputPath, "input", "i", "", "Path to the source video")
	runCmd.Flags().StringVarP(&runOpts.OutputPath, "output", "o", "", "Path of the vertical video (clips get a _clipN suffix)")
	runCmd.Flags().StringArrayVarP(&runOpts.Clips, "clip", "c", nil, "Clip range, e.g. 10s-40s, 01:05-02:00 or 12.5- (repeatable)")
	runCmd.Flags().StringVarP(&runOpts.Mode, "mode", "m", "auto", "Layout: auto, 1 (always single) or 2 (always split)")
	runCmd.Flags().StringVarP(&runOpts.Fallback, "fallback", "f", "blur", "Framing without subjects: pad, zoom or blur")
	runCmd.Flags().BoolVar(&runOpts.SpeakerFocus, "speaker-focus", false, "Prefer the person who is talking")
	runCmd.Flags().IntVarP(&runOpts.NumEngines, "engines", "e", 2, "Number of clips processed in parallel")
	runCmd.Flags().BoolVar(&runOpts.NoStore, "no-store", false, "Do not record the run in the database")
	runCmd.Flags().BoolVar(&runOpts.NoLookahead, "no-lookahead", false, "Disable the one-frame lookahead on missed detections")

	runCmd.MarkFlagRequired("input")
	runCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags layers the run flags the user set over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts runOptions) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Engine.Mode = strings.ToLower(strings.TrimSpace(opts.Mode))
	}
	if flags.Changed("fallback") {
		cfg.Compose.Fallback = strings.ToLower(strings.TrimSpace(opts.Fallback))
	}
	if flags.Changed("speaker-focus") {
		cfg.Engine.SpeakerFocus = opts.SpeakerFocus
	}
	if flags.Changed("engines") {
		cfg.Engine.Workers = max(1, opts.NumEngines)
	}
	if opts.NoLookahead {
		cfg.Engine.Lookahead = false
	}
	if opts.NoStore {
		cfg.Store.Enabled = false
	}
	return cfg.Validate()
}

// runReframe probes the source, processes every clip on the worker pool and
// records each finished clip.
func runReframe(ctx context.Context, opts runOptions) error {
	if err := validateRunFlags(&opts); err != nil {
		return err
	}

	info, err := utils.ProbeVideo(ctx, opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to probe input video", err, nil)
		return err
	}

	ranges, err := parseClips(opts.Clips, info.Duration)
	if err != nil {
		utils.ShowError("Invalid clip range", err, nil)
		return err
	}
	clips := make([]pipeline.Clip, len(ranges))
	for i, r := range ranges {
		clips[i] = pipeline.Clip{
			Index:  i,
			Input:  opts.InputPath,
			Output: clipOutputPath(opts.OutputPath, i, len(ranges)),
			Range:  r,
			Info:   info,
		}
	}
	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0755); err != nil {
		utils.ShowError("Failed to create output directory", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "📼 Source: %dx%d @ %.2f fps, %s\n", info.Width, info.Height, info.FPS, fmtTime(info.Duration.Seconds()))
	workers := min(cfg.Engine.Workers, len(clips))
	fmt.Fprintf(os.Stderr, "⚙️  Processing %d clip(s) on %d engine(s)...\n", len(clips), workers)

	chain, err := detector.BuildChain(cfg.DetectorOptions(), info.Width, info.Height)
	if err != nil {
		utils.ShowError("Invalid detector configuration", err, nil)
		return err
	}
	session := detector.NewSession(chain, logger.With("component", "detector"))
	defer session.Close()

	runs := openRunStore(ctx, opts.InputPath)

	total := expectedFrames(ctx, opts.InputPath, ranges, info)
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("🎬 Reframing"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(logging.IsTerminal(os.Stderr)),
	)

	runner := &pipeline.Runner{
		Engine:            cfg.EngineConfig(info.FPS),
		Compose:           cfg.ComposeOptions(),
		SceneCutThreshold: cfg.Engine.SceneCutThreshold,
		Detectors:         session,
		Log:               logger,
		Progress:          func() { bar.Add(1) },
	}

	outcomes := make([]clipOutcome, len(clips))
	runErr := pipeline.ForEach(ctx, len(clips), workers, func(ctx context.Context, i int) error {
		clip := clips[i]
		res, err := runner.RunClip(ctx, clip)
		outcomes[i] = clipOutcome{Clip: clip, Result: res, Err: err}
		if err != nil {
			return err
		}
		if runs != nil {
			id, err := runs.save(ctx, clip, res)
			if err != nil {
				// The video is already written; a failed record is not fatal.
				logger.Warn("failed to record run", "clip", i, "error", err)
			}
			outcomes[i].RunID = id
		}
		return nil
	})
	bar.Finish()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Println(renderRunSummary(outcomes))

	if runErr != nil {
		if errors.Is(runErr, utils.ErrUnreadableSource) {
			utils.ShowError("Source video could not be decoded", runErr, nil)
		} else {
			utils.ShowError("Some clips failed", runErr, nil)
		}
		return runErr
	}
	fmt.Fprintf(os.Stderr, "🏁 Reframe Complete. Wrote %d clip(s).\n", len(clips))
	return nil
}

// clipOutcome is what the summary reports for one clip.
type clipOutcome struct {
	Clip   pipeline.Clip
	Result pipeline.Result
	RunID  string
	Err    error
}

func renderRunSummary(outcomes []clipOutcome) string {
	headers := []string{"Clip", "Range", "Output", "Frames", "Samples", "Dual", "Detector", "Run"}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		output := filepath.Base(o.Clip.Output)
		if o.Err != nil {
			output = "failed: " + o.Err.Error()
		}
		rows = append(rows, []string{
			strconv.Itoa(o.Clip.Index),
			fmtRange(o.Clip.Range, o.Clip.Info.Duration),
			output,
			strconv.Itoa(o.Result.Frames),
			strconv.Itoa(o.Result.Samples),
			fmtTime(dualSeconds(o.Result.Segments)),
			o.Result.Detector,
			shortID(o.RunID),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight})
}

// runRecorder saves finished clips of one source video.
type runRecorder struct {
	store   store.Store
	videoID string
	source  string
}

// openRunStore returns nil when recording is disabled or the store cannot
// be reached. Reframing does not depend on it.
func openRunStore(ctx context.Context, source string) *runRecorder {
	if !cfg.Store.Enabled {
		return nil
	}
	s, err := openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Run will not be recorded: %v\n", err)
		return nil
	}
	videoID, err := utils.GenerateVideoID(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Run will not be recorded: %v\n", err)
		return nil
	}
	if err := s.EnsureVideo(ctx, videoID, source); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Run will not be recorded: %v\n", err)
		return nil
	}
	fmt.Fprintf(os.Stderr, "📼 Processing Video ID: %s\n", videoID[:12])
	return &runRecorder{store: s, videoID: videoID, source: source}
}

func (r *runRecorder) save(ctx context.Context, clip pipeline.Clip, res pipeline.Result) (string, error) {
	end := clip.Range.End
	if end <= 0 {
		end = clip.Info.Duration
	}
	run := store.Run{
		VideoID:  r.videoID,
		Source:   r.source,
		Output:   clip.Output,
		Clip:     clip.Index,
		Start:    clip.Range.Start.Seconds(),
		End:      end.Seconds(),
		FPS:      clip.Info.FPS,
		Frames:   res.Frames,
		Detector: res.Detector,
	}
	if err := r.store.SaveRun(ctx, &run, res.Segments, res.Coordinates); err != nil {
		return "", err
	}
	return run.ID.String(), nil
}

// validateRunFlags ensures all CLI arguments are valid before starting heavy processes.
func validateRunFlags(opts *runOptions) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			utils.ShowError("Input file does not exist", err, nil)
			return err
		}
		utils.ShowError("Unable to access input file", err, nil)
		return err
	}
	if info.IsDir() {
		err := fmt.Errorf("%s is a directory", opts.InputPath)
		utils.ShowError("Input path is a directory, expected a video file", err, nil)
		return err
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		err := errors.New("output path is empty")
		utils.ShowError("Missing output path", err, nil)
		return err
	}
	in, _ := filepath.Abs(opts.InputPath)
	out, _ := filepath.Abs(opts.OutputPath)
	if in == out {
		err := fmt.Errorf("refusing to overwrite %s", opts.InputPath)
		utils.ShowError("Output path equals input path", err, nil)
		return err
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	return nil
}

// parseClips turns clip flags into ranges. No flags means the whole video.
// duration may be zero when the container does not report it.
func parseClips(specs []string, duration time.Duration) ([]utils.Range, error) {
	if len(specs) == 0 {
		return []utils.Range{{}}, nil
	}
	ranges := make([]utils.Range, 0, len(specs))
	for _, spec := range specs {
		r, err := parseClip(spec)
		if err != nil {
			return nil, err
		}
		if duration > 0 {
			if r.Start >= duration {
				return nil, fmt.Errorf("clip %q starts after the end of the video (%s)", spec, fmtTime(duration.Seconds()))
			}
			if r.End > duration {
				r.End = 0
			}
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// parseClip reads "START-END". Either side may be a Go duration (10s,
// 1m30s), a clock time (01:05, 00:01:05.5) or plain seconds. An empty END
// runs to the end of the video.
func parseClip(spec string) (utils.Range, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return utils.Range{}, fmt.Errorf("clip %q: expected START-END", spec)
	}
	start, err := parseClipTime(startStr)
	if err != nil {
		return utils.Range{}, fmt.Errorf("clip %q: start: %w", spec, err)
	}
	var end time.Duration
	if strings.TrimSpace(endStr) != "" {
		if end, err = parseClipTime(endStr); err != nil {
			return utils.Range{}, fmt.Errorf("clip %q: end: %w", spec, err)
		}
		if end <= start {
			return utils.Range{}, fmt.Errorf("clip %q: end must be after start", spec)
		}
	}
	return utils.Range{Start: start, End: end}, nil
}

func parseClipTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
		var total float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid clock time %q", s)
			}
			// Only the seconds field may carry a fraction.
			if i < len(parts)-1 && v != float64(int(v)) {
				return 0, fmt.Errorf("invalid clock time %q", s)
			}
			total = total*60 + v
		}
		return time.Duration(total * float64(time.Second)), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative time %q", s)
		}
		return d, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return time.Duration(v * float64(time.Second)), nil
}

// clipOutputPath derives the output of clip i. A single clip writes to
// output itself.
func clipOutputPath(output string, i, n int) string {
	if n <= 1 {
		return output
	}
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s_clip%d%s", strings.TrimSuffix(output, ext), i, ext)
}

// expectedFrames estimates the progress bar total. It returns 0 when
// unknown.
func expectedFrames(ctx context.Context, input string, ranges []utils.Range, info utils.VideoInfo) int64 {
	if len(ranges) == 1 && ranges[0] == (utils.Range{}) {
		if n := utils.GetTotalFrames(ctx, input); n > 0 {
			return int64(n)
		}
	}
	var total int64
	for _, r := range ranges {
		length := r.Length()
		if length == 0 {
			if info.Duration <= 0 {
				return 0
			}
			length = info.Duration - r.Start
		}
		total += int64(length.Seconds() * info.FPS)
	}
	return total
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

func fmtRange(r utils.Range, duration time.Duration) string {
	end := r.End
	if end <= 0 {
		end = duration
	}
	return fmtTime(r.Start.Seconds()) + " -> " + fmtTime(end.Seconds())
}

func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

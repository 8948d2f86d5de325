package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrUnreadableSource is returned when ffprobe or ffmpeg cannot open the
// input. It is fatal for the segment being processed.
var ErrUnreadableSource = errors.New("unreadable source video")

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps exec.Cmd with a buffer on Stderr so a crashing child
// (ffmpeg, the Python detector) does not take its logs with it.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand prepares a command bound to ctx. It does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and, if s captured any, the
// child's stderr.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 REFRAME ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nPROCESS LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Video Probing ---

// VideoInfo is what the pipeline needs to know about a source.
type VideoInfo struct {
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration
	HasAudio bool
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType     string `json:"codec_type"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeVideo reads stream geometry, frame rate and duration with ffprobe.
func ProbeVideo(ctx context.Context, path string) (VideoInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe not found: %w", err)
	}
	cmd := NewSafeCommand(ctx, "ffprobe", "-v", "error",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,avg_frame_rate:format=duration",
		"-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("%w: %s: %v %s", ErrUnreadableSource, path, err, strings.TrimSpace(cmd.Stderr.String()))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (VideoInfo, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return VideoInfo{}, fmt.Errorf("%w: ffprobe JSON parse error: %v", ErrUnreadableSource, err)
	}

	var info VideoInfo
	foundVideo := false
	for _, s := range res.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width, info.Height = s.Width, s.Height
			info.FPS = ParseFrameRate(s.AvgFrameRate)
			if info.FPS <= 0 {
				info.FPS = ParseFrameRate(s.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo || info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("%w: no video stream", ErrUnreadableSource)
	}
	if info.FPS <= 0 {
		return VideoInfo{}, fmt.Errorf("%w: unknown frame rate", ErrUnreadableSource)
	}
	if secs, err := strconv.ParseFloat(res.Format.Duration, 64); err == nil && secs > 0 {
		info.Duration = time.Duration(secs * float64(time.Second))
	}
	return info, nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25". It
// returns 0 for anything it cannot use.
func ParseFrameRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0
	}
	return n / d
}

// GetTotalFrames uses ffprobe to count frames for the progress bar.
// It returns 0 if the count fails, allowing callers to fall back to a spinner.
func GetTotalFrames(ctx context.Context, path string) int {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0
	}

	// 1. Fast Path: container metadata. Instant, but may be "N/A" for VFR.
	fast := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-show_entries", "stream=nb_frames", "-of", "json", path)
	if out, err := fast.Output(); err == nil {
		var res ffprobeOutput
		if json.Unmarshal(out, &res) == nil && len(res.Streams) > 0 {
			if count, err := strconv.Atoi(res.Streams[0].NbFrames); err == nil && count > 0 {
				return count
			}
		}
	}

	// 2. Slow Path: count packets.
	fmt.Fprintf(os.Stderr, "⏳ Metadata missing. Counting frames (this may take a moment)...\n")
	slow := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	out, err := slow.Output()
	if err != nil {
		return 0
	}
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil || len(res.Streams) == 0 {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbReadPackets)
	if err != nil {
		return 0
	}
	return count
}

// --- 3. Video Engine ---

// Range is a clip window within a source. A zero End means "to the end".
type Range struct {
	Start time.Duration
	End   time.Duration
}

// Length returns End-Start, or 0 when the range is open.
func (r Range) Length() time.Duration {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r Range) inputArgs() []string {
	var args []string
	if r.Start > 0 {
		args = append(args, "-ss", fmtSeconds(r.Start))
	}
	if l := r.Length(); l > 0 {
		args = append(args, "-t", fmtSeconds(l))
	}
	return args
}

func fmtSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// NewFFmpegRawDecoder streams the clip range of inputPath to stdout as raw
// RGBA frames at the source resolution.
func NewFFmpegRawDecoder(ctx context.Context, inputPath string, r Range) *SafeCommand {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, r.inputArgs()...)
	args = append(args, "-i", inputPath, "-f", "rawvideo", "-pix_fmt", "rgba", "-")
	return NewSafeCommand(ctx, "ffmpeg", args...)
}

// NewFFmpegEncoder reads raw RGBA frames of width x height from stdin and
// writes an H.264 file. When audioSource is set, the audio of the same clip
// range is muxed in if the source has any.
func NewFFmpegEncoder(ctx context.Context, outputPath string, fps float64, width, height int, audioSource string, r Range) *SafeCommand {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
	}
	if audioSource != "" {
		args = append(args, r.inputArgs()...)
		args = append(args, "-i", audioSource, "-map", "0:v:0", "-map", "1:a:0?", "-c:a", "aac", "-shortest")
	}
	args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p", "-movflags", "+faststart", outputPath)
	return NewSafeCommand(ctx, "ffmpeg", args...)
}

// GenerateVideoID creates a deterministic hash for the video file
// based on its path, size, and modification time.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

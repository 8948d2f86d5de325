package cmd

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/reframe/internal/compose"
	"github.com/andresmejia3/reframe/internal/detector"
	"github.com/andresmejia3/reframe/internal/engine"
	"github.com/andresmejia3/reframe/internal/types"
	"github.com/andresmejia3/reframe/internal/utils"
)

var (
	detectStrategies []string
	detectPreview    string
)

var detectCmd = &cobra.Command{
	Use:   "detect <image_path>",
	Short: "Run the detector chain on one image and show the layout it leads to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if cmd.Flags().Changed("strategy") {
			cfg.Detector.Order = detectStrategies
			if err := cfg.Validate(); err != nil {
				utils.ShowError("Invalid detector strategy", err, nil)
				return err
			}
		}
		return runDetect(cmd.Context(), args[0])
	},
}

func init() {
	detectCmd.Flags().StringSliceVarP(&detectStrategies, "strategy", "s", nil, "Detector strategies to try, in order (socket, worker, pigo)")
	detectCmd.Flags().StringVarP(&detectPreview, "preview", "p", "", "Write the composed vertical frame to this PNG")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(ctx context.Context, imagePath string) error {
	img, err := loadRGBA(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}
	b := img.Bounds()

	chain, err := detector.BuildChain(cfg.DetectorOptions(), b.Dx(), b.Dy())
	if err != nil {
		utils.ShowError("Invalid detector configuration", err, nil)
		return err
	}
	session := detector.NewSession(chain, logger.With("component", "detector"))
	defer session.Close()

	fmt.Fprintln(os.Stderr, "🚀 Starting detector...")
	det, err := session.Detector(ctx)
	for _, a := range session.Attempts() {
		status := "ok"
		if a.Err != nil {
			status = a.Err.Error()
		}
		fmt.Fprintf(os.Stderr, "   %-7s %s\n", a.Name, status)
	}
	if err != nil {
		utils.ShowError("No detector strategy could be opened", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing frame...")
	dets, err := det.Detect(ctx, img)
	if err != nil {
		utils.ShowError("Detection failed", err, nil)
		return err
	}

	ecfg := cfg.EngineConfig(30)
	res := engine.Filter(dets, ecfg.ConfidenceThreshold, ecfg.RelativeSizeThreshold, ecfg.CrowdThreshold)
	decision := engine.NewLayoutDecider(&ecfg).Decide(res, nil)

	if len(dets) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
	} else {
		fmt.Println(renderDetections(dets, res, float64(b.Dy())))
	}
	fmt.Printf("📐 Layout: %s (%s), %d of %d candidate(s) kept\n", decision.Mode, decision.Reason, len(res.Kept), res.Raw)

	boxes := make([]types.BBox, len(decision.Subjects))
	for i, idx := range decision.Subjects {
		boxes[i] = res.Kept[idx].Box
	}
	comp := compose.New(cfg.ComposeOptions())
	for _, r := range comp.Crops(b.Dx(), b.Dy(), decision.Mode, boxes) {
		fmt.Printf("✂️  Crop: %s\n", fmtRect(r))
	}

	if detectPreview == "" {
		return nil
	}
	out := comp.Compose(img, decision.Mode, boxes)
	if err := writePNG(detectPreview, out); err != nil {
		utils.ShowError("Failed to write preview", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "🖼️  Preview written to %s\n", detectPreview)
	return nil
}

func renderDetections(dets []types.Detection, res engine.FilterResult, frameHeight float64) string {
	kept := make(map[types.BBox]bool, len(res.Kept))
	for _, d := range res.Kept {
		kept[d.Box] = true
	}

	headers := []string{"#", "Box", "Score", "Height", "MAR", "Kept"}
	rows := make([][]string, 0, len(dets))
	for i, d := range dets {
		mar := "-"
		if d.HasMAR {
			mar = strconv.FormatFloat(d.MAR, 'f', 2, 64)
		} else if d.Mouth != nil {
			mar = strconv.FormatFloat(engine.Openness(d), 'f', 2, 64)
		}
		keep := ""
		if kept[d.Box] {
			keep = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			fmtBox(d.Box),
			strconv.FormatFloat(d.Score, 'f', 2, 64),
			strconv.FormatFloat(d.Box.Height()/frameHeight, 'f', 3, 64),
			mar,
			keep,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight})
}

func fmtBox(b types.BBox) string {
	parts := []string{
		strconv.Itoa(int(b.X1)), strconv.Itoa(int(b.Y1)),
		strconv.Itoa(int(b.X2)), strconv.Itoa(int(b.Y2)),
	}
	return strings.Join(parts, ",")
}

func fmtRect(r image.Rectangle) string {
	return fmt.Sprintf("%d,%d %dx%d", r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

// loadRGBA decodes a JPEG or PNG into a tightly packed RGBA image.
func loadRGBA(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact file suffixes, appended to the output video's base name.
const (
	TimelineSuffix = ".timeline.json"
	CoordsSuffix   = ".coords.json"
)

// ArtifactPaths returns the timeline and coordinate log paths for a video.
func ArtifactPaths(videoPath string) (timelinePath, coordsPath string) {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	return base + TimelineSuffix, base + CoordsSuffix
}

// WriteArtifacts writes both artifacts next to videoPath.
func WriteArtifacts(videoPath string, labels []Label, coords []CoordinateEntry) error {
	tl, co := ArtifactPaths(videoPath)
	if labels == nil {
		labels = []Label{}
	}
	if coords == nil {
		coords = []CoordinateEntry{}
	}
	if err := writeJSON(tl, labels); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	if err := writeJSON(co, coords); err != nil {
		return fmt.Errorf("write coordinates: %w", err)
	}
	return nil
}

// ReadLabels loads a timeline artifact.
func ReadLabels(path string) ([]Label, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []Label
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return labels, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

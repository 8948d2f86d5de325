// Package scenecut flags hard cuts between sampled frames using a
// perceptual hash.
package scenecut

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// DefaultThreshold is the Hamming distance (of 64 bits) above which two
// sampled frames are considered different shots.
const DefaultThreshold = 18

// Detector compares each checked frame against the previous one. It is not
// safe for concurrent use.
type Detector struct {
	threshold int
	last      *goimagehash.ImageHash
}

// New creates a detector. A threshold <= 0 disables detection.
func New(threshold int) *Detector {
	return &Detector{threshold: threshold}
}

// Enabled reports whether Check can ever return true.
func (d *Detector) Enabled() bool { return d.threshold > 0 }

// Check hashes img and reports whether it starts a new shot. The first
// frame after New or Reset is never a cut.
func (d *Detector) Check(img image.Image) (bool, error) {
	if !d.Enabled() {
		return false, nil
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false, fmt.Errorf("perception hash: %w", err)
	}

	prev := d.last
	d.last = hash
	if prev == nil {
		return false, nil
	}
	dist, err := prev.Distance(hash)
	if err != nil {
		return false, fmt.Errorf("hash distance: %w", err)
	}
	return dist > d.threshold, nil
}

// Reset forgets the previous frame.
func (d *Detector) Reset() { d.last = nil }

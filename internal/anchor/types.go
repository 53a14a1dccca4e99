// Package anchor finds the HUD reticle (a warm ring or a magenta cross) that
// the signature readout is positioned relative to.
package anchor

import (
	"image"

	"sigscan/internal/mask"
	"sigscan/pkg/geometry"
)

// Method identifies how an anchor was obtained.
type Method string

const (
	MethodRing       Method = "ring"
	MethodCross      Method = "cross"
	MethodCalibrated Method = "calibrated"
)

// Anchor is a located reticle. Size is the ring diameter or the cross
// extent in pixels. Angle is the HUD rotation in degrees, 0 if unknown.
type Anchor struct {
	Center geometry.Point2D `json:"center"`
	Size   float64          `json:"size"`
	Angle  float64          `json:"angle"`
	Score  float64          `json:"score"`
	Method Method           `json:"method"`
}

// Candidate is a shape considered during detection, in image coordinates.
type Candidate struct {
	Center   geometry.Point2D `json:"center"`
	Size     float64          `json:"size"`
	Shape    float64          `json:"shape"` // ring score or cluster score
	Score    float64          `json:"score"` // ranking score
	Accepted bool             `json:"accepted"`
}

// Detection is the outcome of one detector run. Found is false when nothing
// cleared the thresholds; that is a normal result, not an error.
type Detection struct {
	Anchor     Anchor
	Found      bool
	Candidates []Candidate
	// SearchRect is the part of the image that was searched. Mask covers
	// exactly that rectangle.
	SearchRect image.Rectangle
	Mask       *mask.Mask
}

// Detector locates an anchor in a screenshot.
type Detector interface {
	Detect(img image.Image) (Detection, error)
}

// Band is a search rectangle expressed as fractions of the image size.
type Band struct {
	Left, Right float64
	Top, Bottom float64
}

// FullFrame searches the whole image.
var FullFrame = Band{Left: 0, Right: 1, Top: 0, Bottom: 1}

// Rect converts the band to pixels for a w x h image.
func (b Band) Rect(w, h int) image.Rectangle {
	return image.Rect(
		int(float64(w)*b.Left), int(float64(h)*b.Top),
		int(float64(w)*b.Right), int(float64(h)*b.Bottom),
	).Intersect(image.Rect(0, 0, w, h))
}

// resolutionScale is the size factor relative to a 1080p frame, never below 1.
func resolutionScale(w, h int, base float64) float64 {
	if base <= 0 {
		return 1
	}
	return max(1.0, float64(min(w, h))/base)
}

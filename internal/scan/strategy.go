package scan

import (
	"context"
	"image"

	"sigscan/internal/anchor"
	"sigscan/internal/errs"
	"sigscan/internal/region"
	"sigscan/pkg/geometry"
)

// DefaultGazeRadius is the half-size of the square read around a gaze point.
const DefaultGazeRadius = 150

// Proposal is what a Strategy produces for one screenshot. Crop is set only
// when Outcome is OutcomeFound.
type Proposal struct {
	Outcome Outcome
	Region  region.Region
	Anchor  *anchor.Anchor
	Crop    *image.NRGBA
	// Rotation is the angle in degrees the frame was straightened by about
	// the anchor before Region was cut; Region is in that frame.
	Rotation  float64
	Detection *anchor.Detection
}

// Strategy proposes the readout region of a screenshot. Not finding one is
// reported through Proposal.Outcome; errors are reserved for failures.
type Strategy interface {
	Name() string
	Locate(ctx context.Context, img *image.NRGBA) (Proposal, error)
}

// GazeProvider reports where the player is looking, in image coordinates.
type GazeProvider interface {
	Gaze(ctx context.Context) (image.Point, bool)
}

// NoGaze is the provider used when no eye tracker is present.
type NoGaze struct{}

func (NoGaze) Gaze(context.Context) (image.Point, bool) { return image.Point{}, false }

// Gaze reads a square around the gaze point.
type Gaze struct {
	Provider GazeProvider
	Radius   int
}

// NewGaze returns a gaze strategy; a nil provider means NoGaze.
func NewGaze(p GazeProvider) *Gaze {
	if p == nil {
		p = NoGaze{}
	}
	return &Gaze{Provider: p, Radius: DefaultGazeRadius}
}

func (g *Gaze) Name() string { return "gaze" }

func (g *Gaze) Locate(ctx context.Context, img *image.NRGBA) (Proposal, error) {
	pt, ok := g.Provider.Gaze(ctx)
	if !ok {
		return Proposal{Outcome: OutcomeAnchorNotFound}, nil
	}
	r := region.Region{X1: pt.X - g.Radius, Y1: pt.Y - g.Radius, X2: pt.X + g.Radius, Y2: pt.Y + g.Radius}
	return cropped(img, r), nil
}

// FixedRegion reads a user-calibrated rectangle as is.
type FixedRegion struct {
	Region region.Region
}

func (f FixedRegion) Name() string { return "fixed_region" }

func (f FixedRegion) Locate(_ context.Context, img *image.NRGBA) (Proposal, error) {
	return cropped(img, f.Region), nil
}

func cropped(img *image.NRGBA, r region.Region) Proposal {
	b := img.Bounds()
	r, ok := region.Clamp(r, b.Dx(), b.Dy())
	if !ok {
		return Proposal{Outcome: OutcomeRegionInvalid}
	}
	return Proposal{Outcome: OutcomeFound, Region: r, Crop: region.Crop(img, r)}
}

// CalibratedAnchor uses a user-calibrated reticle position instead of
// detecting one.
type CalibratedAnchor struct {
	Center   geometry.Point2D
	Diameter float64
	Params   region.Params
}

func (c CalibratedAnchor) Name() string { return "calibrated_anchor" }

func (c CalibratedAnchor) Locate(_ context.Context, img *image.NRGBA) (Proposal, error) {
	a := anchor.Anchor{Center: c.Center, Size: c.Diameter, Score: 1, Method: anchor.MethodCalibrated}
	return fromAnchor(img, a, c.Params)
}

// Detected runs an anchor detector and derives the region from its result.
type Detected struct {
	name     string
	detector anchor.Detector
	params   region.Params
}

// NewDetected wraps d as a strategy called name.
func NewDetected(name string, d anchor.Detector, p region.Params) *Detected {
	return &Detected{name: name, detector: d, params: p}
}

func (d *Detected) Name() string { return d.name }

func (d *Detected) Locate(_ context.Context, img *image.NRGBA) (Proposal, error) {
	det, err := d.detector.Detect(img)
	if err != nil {
		return Proposal{}, errs.Wrap(err, errs.CodeInternal, "anchor detection failed").With("strategy", d.name)
	}
	if !det.Found {
		return Proposal{Outcome: OutcomeAnchorNotFound, Detection: &det}, nil
	}
	prop, err := fromAnchor(img, det.Anchor, d.params)
	prop.Detection = &det
	return prop, err
}

func fromAnchor(img *image.NRGBA, a anchor.Anchor, p region.Params) (Proposal, error) {
	prop := Proposal{Anchor: &a}
	b := img.Bounds()
	r, ok := region.Locate(a, p, b.Dx(), b.Dy())
	if !ok {
		prop.Outcome = OutcomeRegionInvalid
		return prop, nil
	}
	crop, err := region.Extract(img, a, r, p)
	if err != nil {
		return prop, errs.Wrap(err, errs.CodeInternal, "region extraction failed")
	}
	prop.Outcome, prop.Region, prop.Crop = OutcomeFound, r, crop
	if p.NeedsRotation(a) {
		prop.Rotation = a.Angle
	}
	return prop, nil
}

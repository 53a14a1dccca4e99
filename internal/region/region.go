// Package region turns an anchor into the rectangle that holds the
// signature readout and cuts it out of the screenshot.
package region

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"sigscan/internal/anchor"
	"sigscan/internal/imageio"
	"sigscan/pkg/geometry"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Region is a pixel rectangle. X2 and Y2 are exclusive.
type Region struct {
	X1 int `json:"x1" mapstructure:"x1"`
	Y1 int `json:"y1" mapstructure:"y1"`
	X2 int `json:"x2" mapstructure:"x2"`
	Y2 int `json:"y2" mapstructure:"y2"`
}

// FromRect converts an image.Rectangle.
func FromRect(r image.Rectangle) Region {
	return Region{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

func (r Region) Width() int  { return r.X2 - r.X1 }
func (r Region) Height() int { return r.Y2 - r.Y1 }

// Empty reports whether the region has no area.
func (r Region) Empty() bool { return r.X2 <= r.X1 || r.Y2 <= r.Y1 }

// Rect converts to an image.Rectangle.
func (r Region) Rect() image.Rectangle { return image.Rect(r.X1, r.Y1, r.X2, r.Y2) }

// Outline returns the corners of r, clockwise from the top left, as they lie
// in the original frame when r was taken from a copy rotated by degrees
// about center.
func (r Region) Outline(center geometry.Point2D, degrees float64) [4]image.Point {
	corners := [4]geometry.Point2D{
		geometry.NewPoint2D(float64(r.X1), float64(r.Y1)),
		geometry.NewPoint2D(float64(r.X2), float64(r.Y1)),
		geometry.NewPoint2D(float64(r.X2), float64(r.Y2)),
		geometry.NewPoint2D(float64(r.X1), float64(r.Y2)),
	}
	var out [4]image.Point
	for i, c := range corners {
		out[i] = c.RotateAround(center, -degrees).ToImagePoint()
	}
	return out
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// Clamp limits r to [0,w) x [0,h). It reports false when nothing with
// positive area is left; the returned region is then meaningless.
func Clamp(r Region, w, h int) (Region, bool) {
	c := Region{
		X1: min(max(r.X1, 0), w),
		Y1: min(max(r.Y1, 0), h),
		X2: min(max(r.X2, 0), w),
		Y2: min(max(r.Y2, 0), h),
	}
	if c.Empty() {
		return Region{}, false
	}
	return c, true
}

// Params places the readout relative to an anchor. All values are
// multiples of the anchor size.
type Params struct {
	OffsetXMult  float64 `mapstructure:"offset_x_mult"`
	OffsetYMult  float64 `mapstructure:"offset_y_mult"`
	PaddingXMult float64 `mapstructure:"padding_x_mult"`
	PaddingYMult float64 `mapstructure:"padding_y_mult"`
	// MinRotation is the smallest anchor angle (degrees) worth undoing.
	MinRotation float64 `mapstructure:"min_rotation"`
}

// DefaultParams returns the stock HUD layout: readout up and to the right
// of the reticle.
func DefaultParams() Params {
	return Params{
		OffsetXMult:  5.0,
		OffsetYMult:  -3.5,
		PaddingXMult: 1.5,
		PaddingYMult: 1.0,
		MinRotation:  1,
	}
}

// Target returns the readout center for a.
func (p Params) Target(a anchor.Anchor) geometry.Point2D {
	return geometry.NewPoint2D(
		a.Center.X+math.Trunc(a.Size*p.OffsetXMult),
		a.Center.Y+math.Trunc(a.Size*p.OffsetYMult),
	)
}

// Locate computes the readout rectangle for a in a w x h image, clamped to
// the image. It reports false when the clamped rectangle is empty.
func Locate(a anchor.Anchor, p Params, w, h int) (Region, bool) {
	t := p.Target(a)
	cx, cy := int(t.X), int(t.Y)
	px := int(a.Size * p.PaddingXMult)
	py := int(a.Size * p.PaddingYMult)
	return Clamp(Region{X1: cx - px, Y1: cy - py, X2: cx + px, Y2: cy + py}, w, h)
}

// NeedsRotation reports whether a's angle is large enough to straighten.
func (p Params) NeedsRotation(a anchor.Anchor) bool {
	return math.Abs(a.Angle) > p.MinRotation
}

// RotateAbout returns a copy of img rotated by degrees (counter-clockwise on
// screen) about center, same size, bilinear, uncovered pixels black.
func RotateAbout(img image.Image, center geometry.Point2D, degrees float64) (*image.NRGBA, error) {
	src := imageio.ToNRGBA(img)
	mat, err := imageio.ToMat(src)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	rot := gocv.GetRotationMatrix2D(image.Point{X: int(math.Round(center.X)), Y: int(math.Round(center.Y))}, degrees, 1.0)
	defer rot.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpAffineWithParams(mat, &dst, rot, image.Point{X: mat.Cols(), Y: mat.Rows()},
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})

	return imageio.FromMat(dst)
}

// Crop cuts r out of img as a new zero-origin image.
func Crop(img image.Image, r Region) *image.NRGBA {
	b := img.Bounds()
	return imaging.Crop(img, r.Rect().Add(b.Min))
}

// Extract applies the rotation rule and crops: when a carries a rotation
// above MinRotation the image is first straightened about the anchor center.
func Extract(img image.Image, a anchor.Anchor, r Region, p Params) (*image.NRGBA, error) {
	if !p.NeedsRotation(a) {
		return Crop(img, r), nil
	}
	rotated, err := RotateAbout(img, a.Center, a.Angle)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate image: %w", err)
	}
	return Crop(rotated, r), nil
}

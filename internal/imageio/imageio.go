// Package imageio loads screenshots and converts between Go images and
// OpenCV Mats.
package imageio

import (
	"fmt"
	"image"
	"os"

	"sigscan/internal/errs"

	"github.com/disintegration/imaging"
	"github.com/sunshineplan/imgconv"
	"gocv.io/x/gocv"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode opens and decodes a screenshot. The result always has a zero origin
// and is owned by the caller.
func Decode(path string) (*image.NRGBA, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Wrap(err, errs.CodeInvalidInput, "open screenshot").With("path", path)
	}
	img, err := imgconv.Open(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeInvalidInput, "decode screenshot").With("path", path)
	}
	return imaging.Clone(img), nil
}

// ToNRGBA returns a zero-origin NRGBA copy of img. The input is never modified.
func ToNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// ToMat converts an NRGBA image into a 3-channel BGR Mat. The caller closes it.
func ToMat(img *image.NRGBA) (gocv.Mat, error) {
	b := img.Bounds()
	if img.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		img = imaging.Clone(img)
		b = img.Bounds()
	}
	rgba, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, img.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to wrap image: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

// FromMat converts a 3-channel BGR Mat back into an NRGBA image.
func FromMat(mat gocv.Mat) (*image.NRGBA, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(mat, &rgba, gocv.ColorBGRToRGBA)

	out := image.NewNRGBA(image.Rect(0, 0, rgba.Cols(), rgba.Rows()))
	copy(out.Pix, rgba.ToBytes())
	return out, nil
}

// GrayToMat wraps a grayscale image in a single-channel Mat. The caller closes it.
func GrayToMat(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	pix := img.Pix
	if img.Stride != b.Dx() || b.Min != (image.Point{}) {
		pix = make([]byte, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			pix = append(pix, img.Pix[off:off+b.Dx()]...)
		}
	}
	return gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, pix)
}

// MatToGray copies a single-channel Mat into a new grayscale image.
func MatToGray(mat gocv.Mat) (*image.Gray, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	if mat.Channels() != 1 {
		return nil, fmt.Errorf("expected 1 channel, got %d", mat.Channels())
	}
	out := image.NewGray(image.Rect(0, 0, mat.Cols(), mat.Rows()))
	copy(out.Pix, mat.ToBytes())
	return out, nil
}

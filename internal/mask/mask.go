// Package mask selects HUD-colored pixels from a screenshot region.
package mask

import (
	"image"

	"sigscan/internal/imageio"
	"sigscan/pkg/colorutil"

	"gocv.io/x/gocv"
)

// Kind selects how a Profile classifies pixels.
type Kind int

const (
	// ChannelDiff scores pixels by red minus blue. Warm HUD elements score
	// high against cool backgrounds.
	ChannelDiff Kind = iota
	// RGBThreshold selects pixels whose channels all fall inside per-channel bounds.
	RGBThreshold
	// HSVRange selects pixels inside a hue/saturation/value box (OpenCV ranges).
	HSVRange
)

func (k Kind) String() string {
	switch k {
	case ChannelDiff:
		return "channel-diff"
	case RGBThreshold:
		return "rgb-threshold"
	case HSVRange:
		return "hsv-range"
	default:
		return "unknown"
	}
}

// Profile is a named color rule.
type Profile struct {
	Name string
	Kind Kind

	// RGBThreshold bounds, inclusive.
	MinR, MinG, MinB uint8
	MaxR, MaxG, MaxB uint8

	// ChannelDiff: a pixel is selected when R-B >= MinRedBlueDiff.
	MinRedBlueDiff int

	// HSVRange bounds.
	HSV colorutil.HSVRange

	// Gaussian blur applied to the intensity map. Zero size disables it.
	BlurSize  int
	BlurSigma float64
}

// WarmRing isolates orange/yellow HUD rings. The intensity map is R-B
// shifted by 128 and clipped, so a neutral pixel sits at mid-gray.
func WarmRing() Profile {
	return Profile{
		Name:           "warm-ring",
		Kind:           ChannelDiff,
		MinRedBlueDiff: 60,
		BlurSize:       5,
		BlurSigma:      1.5,
	}
}

// MagentaCross isolates pink/magenta crosshair markers.
func MagentaCross() Profile {
	return Profile{
		Name: "magenta-cross",
		Kind: RGBThreshold,
		MinR: 180, MaxR: 255,
		MinG: 0, MaxG: 100,
		MinB: 180, MaxB: 255,
	}
}

// WithBlur returns a copy of p with a different blur kernel.
func (p Profile) WithBlur(size int, sigma float64) Profile {
	if size > 0 && size%2 == 0 {
		size++
	}
	p.BlurSize = size
	p.BlurSigma = sigma
	return p
}

// Mask is the result of applying a Profile. Bits has one entry per pixel in
// row-major order. Intensity is the raw score map and Smoothed is the
// blurred map that circle search runs on (the same image when no blur is set).
type Mask struct {
	Width, Height int
	Bits          []bool
	Intensity     *image.Gray
	Smoothed      *image.Gray
	count         int
}

// At reports whether pixel (x, y) is selected. Out of range is false.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Count returns the number of selected pixels.
func (m *Mask) Count() int { return m.count }

// Empty reports whether no pixel was selected.
func (m *Mask) Empty() bool { return m.count == 0 }

// Gray renders the selection as a black/white image.
func (m *Mask) Gray() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, on := range m.Bits {
		if on {
			out.Pix[i] = 255
		}
	}
	return out
}

// Apply classifies every pixel of img with profile p. The input is not
// modified; the mask has the same dimensions as img.
func Apply(img image.Image, p Profile) *Mask {
	src := imageio.ToNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	m := &Mask{
		Width:     w,
		Height:    h,
		Bits:      make([]bool, w*h),
		Intensity: image.NewGray(image.Rect(0, 0, w, h)),
	}

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			r, g, b := int(row[x*4]), int(row[x*4+1]), int(row[x*4+2])
			v, on := classify(p, r, g, b)
			i := y*w + x
			m.Intensity.Pix[i] = v
			if on {
				m.Bits[i] = true
				m.count++
			}
		}
	}

	m.Smoothed = m.Intensity
	if p.BlurSize > 0 && w > 0 && h > 0 {
		if blurred, err := blur(m.Intensity, p.BlurSize, p.BlurSigma); err == nil {
			m.Smoothed = blurred
		}
	}
	return m
}

func classify(p Profile, r, g, b int) (uint8, bool) {
	switch p.Kind {
	case ChannelDiff:
		diff := r - b
		return clip(diff + 128), diff >= p.MinRedBlueDiff
	case RGBThreshold:
		on := r >= int(p.MinR) && r <= int(p.MaxR) &&
			g >= int(p.MinG) && g <= int(p.MaxG) &&
			b >= int(p.MinB) && b <= int(p.MaxB)
		if on {
			return 255, true
		}
		return 0, false
	case HSVRange:
		if p.HSV.Contains(colorutil.RGBToHSV(uint8(r), uint8(g), uint8(b))) {
			return 255, true
		}
		return 0, false
	}
	return 0, false
}

func clip(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func blur(src *image.Gray, size int, sigma float64) (*image.Gray, error) {
	mat, err := imageio.GrayToMat(src)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.GaussianBlur(mat, &out, image.Point{X: size, Y: size}, sigma, sigma, gocv.BorderDefault)
	return imageio.MatToGray(out)
}

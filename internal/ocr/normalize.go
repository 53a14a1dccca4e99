package ocr

import (
	"fmt"
	"image"
	"strings"

	"sigscan/internal/imageio"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Strategy names a way of turning the cropped readout into OCR input.
type Strategy string

const (
	// StrategyRaw is grayscale only. It keeps anti-aliasing and works when
	// text contrast is already strong.
	StrategyRaw Strategy = "raw"
	// StrategyAdaptive is grayscale plus local Gaussian thresholding, for
	// uneven backgrounds.
	StrategyAdaptive Strategy = "adaptive"
	// StrategyColorMask keeps only cream/white text pixels.
	StrategyColorMask Strategy = "colormask"
)

// DefaultStrategies is the order a Reader tries.
var DefaultStrategies = []Strategy{StrategyColorMask, StrategyRaw, StrategyAdaptive}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyRaw, StrategyAdaptive, StrategyColorMask:
		return st, nil
	}
	return "", fmt.Errorf("unknown OCR strategy %q", s)
}

// NormalizeParams tunes the normalizers.
type NormalizeParams struct {
	Upscale int
	// Invert produces dark text on a light background.
	Invert bool

	AdaptiveBlock int
	AdaptiveC     float32

	// Text color rule for StrategyColorMask.
	TextMinR, TextMinG, TextMinB int
	TextMinSum                   int
}

// DefaultNormalizeParams returns the settings tuned for the HUD font.
func DefaultNormalizeParams() NormalizeParams {
	return NormalizeParams{
		Upscale:       4,
		Invert:        true,
		AdaptiveBlock: 31,
		AdaptiveC:     -10,
		TextMinR:      180,
		TextMinG:      180,
		TextMinB:      140,
		TextMinSum:    500,
	}
}

// Normalize prepares img for OCR with strategy s: single-channel
// conversion, upscaling with Lanczos resampling and optional inversion.
func Normalize(img image.Image, s Strategy, p NormalizeParams) (*image.NRGBA, error) {
	var out *image.NRGBA
	switch s {
	case StrategyRaw:
		out = imaging.Grayscale(img)
	case StrategyAdaptive:
		th, err := adaptive(img, p)
		if err != nil {
			return nil, err
		}
		out = th
	case StrategyColorMask:
		out = TextMask(img, p)
	default:
		return nil, fmt.Errorf("unknown OCR strategy %q", s)
	}

	if p.Upscale > 1 {
		b := out.Bounds()
		out = imaging.Resize(out, b.Dx()*p.Upscale, b.Dy()*p.Upscale, imaging.Lanczos)
	}
	if p.Invert {
		out = imaging.Invert(out)
	}
	return out, nil
}

// TextMask marks pixels matching the readout color rule white on black.
func TextMask(img image.Image, p NormalizeParams) *image.NRGBA {
	src := imageio.ToNRGBA(img)
	b := src.Bounds()
	out := image.NewNRGBA(b)
	for i := 0; i+3 < len(src.Pix); i += 4 {
		r, g, bl := int(src.Pix[i]), int(src.Pix[i+1]), int(src.Pix[i+2])
		var v uint8
		if r > p.TextMinR && g > p.TextMinG && bl > p.TextMinB && r+g+bl > p.TextMinSum {
			v = 255
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 255
	}
	return out
}

func adaptive(img image.Image, p NormalizeParams) (*image.NRGBA, error) {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()

	g := image.NewGray(b)
	for i := range g.Pix {
		g.Pix[i] = gray.Pix[i*4]
	}
	src, err := imageio.GrayToMat(g)
	if err != nil {
		return nil, fmt.Errorf("failed to convert region: %w", err)
	}
	defer src.Close()

	block := p.AdaptiveBlock
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.AdaptiveThreshold(src, &dst, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, block, p.AdaptiveC)

	th, err := imageio.MatToGray(dst)
	if err != nil {
		return nil, err
	}
	return imaging.Clone(th), nil
}

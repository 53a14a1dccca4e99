// Package colorutil provides shared color utilities for the signature scanner.
package colorutil

import (
	"image/color"
	"math"
)

// Overlay colors used for debug artifacts.
var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red    = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Cyan   = color.RGBA{R: 0, G: 255, B: 255, A: 255}
)

// HSV is a color in OpenCV units: H 0-180, S and V 0-255.
type HSV struct {
	H, S, V float64
}

// RGBToHSV converts 8-bit RGB components to HSV.
func RGBToHSV(r, g, b uint8) HSV {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	hi := math.Max(rf, math.Max(gf, bf))
	lo := math.Min(rf, math.Min(gf, bf))
	diff := hi - lo

	out := HSV{V: hi * 255}
	if hi > 0 {
		out.S = diff / hi * 255
	}

	var deg float64
	switch {
	case diff == 0:
	case hi == rf:
		deg = 60 * math.Mod((gf-bf)/diff, 6)
	case hi == gf:
		deg = 60 * ((bf-rf)/diff + 2)
	default:
		deg = 60 * ((rf-gf)/diff + 4)
	}
	if deg < 0 {
		deg += 360
	}
	out.H = deg / 2
	return out
}

// HSVRange is an inclusive box in HSV space. Hue does not wrap; split red
// ranges into two.
type HSVRange struct {
	Min, Max HSV
}

// Contains reports whether c lies inside the range.
func (r HSVRange) Contains(c HSV) bool {
	return c.H >= r.Min.H && c.H <= r.Max.H &&
		c.S >= r.Min.S && c.S <= r.Max.S &&
		c.V >= r.Min.V && c.V <= r.Max.V
}

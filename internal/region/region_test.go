package region

import (
	"image"
	"image/color"
	"testing"

	"sigscan/internal/anchor"
	"sigscan/pkg/geometry"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ring(x, y, size, angle float64) anchor.Anchor {
	return anchor.Anchor{Center: geometry.NewPoint2D(x, y), Size: size, Angle: angle}
}

func TestLocateDefaultOffsets(t *testing.T) {
	r, ok := Locate(ring(720, 540, 50, 0), DefaultParams(), 1920, 1080)
	require.True(t, ok)
	assert.Equal(t, Region{X1: 895, Y1: 315, X2: 1045, Y2: 415}, r)
	assert.Equal(t, 150, r.Width())
	assert.Equal(t, 100, r.Height())
}

func TestLocateClampsToImage(t *testing.T) {
	// Unclamped: (1825,-75)-(1975,25).
	r, ok := Locate(ring(1650, 150, 50, 0), DefaultParams(), 1920, 1080)
	require.True(t, ok)

	assert.Equal(t, Region{X1: 1825, Y1: 0, X2: 1920, Y2: 25}, r)
	assert.True(t, r.Rect().In(image.Rect(0, 0, 1920, 1080)))
}

func TestLocateCollapsedRegionFails(t *testing.T) {
	_, ok := Locate(ring(1900, 100, 50, 0), DefaultParams(), 1920, 1080)
	assert.False(t, ok)

	_, ok = Locate(ring(500, 500, 0, 0), DefaultParams(), 1920, 1080)
	assert.False(t, ok, "zero-size anchor gives zero-area region")
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Region
		want Region
		ok   bool
	}{
		{"inside", Region{10, 10, 20, 20}, Region{10, 10, 20, 20}, true},
		{"partial", Region{-5, -5, 20, 200}, Region{0, 0, 20, 100}, true},
		{"outside right", Region{150, 10, 200, 20}, Region{}, false},
		{"outside above", Region{10, -50, 20, -10}, Region{}, false},
		{"inverted", Region{20, 20, 10, 30}, Region{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Clamp(tt.in, 100, 100)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.False(t, got.Empty())
			}
		})
	}
}

func TestNeedsRotation(t *testing.T) {
	p := DefaultParams()
	assert.False(t, p.NeedsRotation(ring(0, 0, 10, 0.9)))
	assert.False(t, p.NeedsRotation(ring(0, 0, 10, -1)))
	assert.True(t, p.NeedsRotation(ring(0, 0, 10, 1.5)))
	assert.True(t, p.NeedsRotation(ring(0, 0, 10, -12)))
}

func square(img *image.NRGBA, cx, cy, half int) {
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
}

func TestRotateAbout(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	square(img, 100, 50, 4)
	before := append([]byte(nil), img.Pix...)

	out, err := RotateAbout(img, geometry.NewPoint2D(100, 100), 90)
	require.NoError(t, err)

	assert.Equal(t, img.Bounds(), out.Bounds())
	assert.Equal(t, uint8(255), out.NRGBAAt(50, 100).R, "point above center turns to the left")
	assert.Equal(t, uint8(0), out.NRGBAAt(100, 50).R)
	assert.Equal(t, before, img.Pix, "input untouched")
}

func TestRotateAboutFillsCornersBlack(t *testing.T) {
	img := imaging.New(100, 100, color.NRGBA{200, 200, 200, 255})

	out, err := RotateAbout(img, geometry.NewPoint2D(50, 50), 45)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, out.NRGBAAt(1, 1), "uncovered corner")
	assert.Equal(t, color.NRGBA{200, 200, 200, 255}, out.NRGBAAt(50, 50))
}

func TestRotatedPointFollowsImage(t *testing.T) {
	want := geometry.NewPoint2D(100, 50).RotateAround(geometry.NewPoint2D(100, 100), 90)
	assert.InDelta(t, 50, want.X, 1e-9)
	assert.InDelta(t, 100, want.Y, 1e-9)
}

func TestOutline(t *testing.T) {
	r := Region{X1: 90, Y1: 40, X2: 110, Y2: 60}
	center := geometry.NewPoint2D(100, 100)

	assert.Equal(t, [4]image.Point{image.Pt(90, 40), image.Pt(110, 40), image.Pt(110, 60), image.Pt(90, 60)}, r.Outline(center, 0))
	// Straightening by 90 moved the right of the anchor to the top.
	assert.Equal(t, [4]image.Point{image.Pt(160, 90), image.Pt(160, 110), image.Pt(140, 110), image.Pt(140, 90)}, r.Outline(center, 90))
}

func TestExtractCropsWithoutRotation(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	square(img, 30, 30, 0)

	crop, err := Extract(img, ring(10, 10, 5, 0.5), Region{20, 20, 40, 50}, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 30), crop.Bounds())
	assert.Equal(t, uint8(255), crop.NRGBAAt(10, 10).R)
}

func TestExtractStraightensRotatedHUD(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	// Readout that should sit at (150, 100) after straightening a HUD tilted
	// 90 degrees clockwise about (100, 100).
	square(img, 100, 150, 3)

	crop, err := Extract(img, ring(100, 100, 10, 90), Region{140, 90, 160, 110}, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, uint8(255), crop.NRGBAAt(10, 10).R)
}

package scan

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"testing"

	"sigscan/internal/anchor"
	"sigscan/internal/errs"
	"sigscan/internal/match"
	"sigscan/internal/ocr"
	"sigscan/internal/region"
	"sigscan/internal/sigdb"
	"sigscan/pkg/geometry"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	background = color.RGBA{20, 30, 60, 255}
	orange     = color.RGBA{255, 160, 0, 255}
	cream      = color.RGBA{240, 235, 200, 255}
)

func blankFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	return img
}

func drawRing(img *image.RGBA, cx, cy, r0, r1 float64) {
	for y := int(cy - r1 - 1); y <= int(cy+r1+1); y++ {
		for x := int(cx - r1 - 1); x <= int(cx+r1+1); x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if d >= r0 && d <= r1 {
				img.SetRGBA(x, y, orange)
			}
		}
	}
}

func drawText(img *image.RGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(cream),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// hudFrame is a 1080p screenshot with a 50 px ring at (720, 540) and the
// readout text where the ring places it.
func hudFrame(text string) *image.RGBA {
	img := blankFrame()
	drawRing(img, 720, 540, 21, 25)
	drawText(img, 950, 369, text)
	return img
}

// darkTextOCR returns text whenever its input contains dark pixels, which
// is how the normalizer presents readout text.
func darkTextOCR(text string) ocr.Recognizer {
	return ocr.RecognizerFunc(func(_ context.Context, img image.Image, _ string) (ocr.Recognition, error) {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if r, _, _, _ := img.At(x, y).RGBA(); r < 0x8000 {
					return ocr.Recognition{Text: text, Confidences: []float64{0.9}}, nil
				}
			}
		}
		return ocr.Recognition{}, nil
	})
}

func testMatcher() *match.Matcher {
	db := sigdb.Empty()
	db.Exact[1900] = "E-type Asteroid"
	db.Deposits = []sigdb.Deposit{{Name: "E-type Asteroid", Signature: 1900, Kind: sigdb.KindSpace}}
	return match.New(db, match.DefaultRules(), nil)
}

func newScanner(rec ocr.Recognizer, opts ...Option) *Scanner {
	return New(ocr.NewReader(rec), testMatcher(), opts...)
}

func TestScanRingEndToEnd(t *testing.T) {
	s := newScanner(darkTextOCR("1,900"))

	res, err := s.ScanImage(context.Background(), hudFrame("1,900"), "frame.png")
	require.NoError(t, err)

	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, "ring", res.Method)
	assert.Equal(t, 1900, res.Signature)
	assert.Equal(t, "1,900", res.Text)
	assert.Equal(t, ocr.StrategyColorMask, res.OCRStrategy)

	require.NotNil(t, res.Anchor)
	assert.Equal(t, anchor.MethodRing, res.Anchor.Method)
	assert.InDelta(t, 720, res.Anchor.Center.X, 3)
	assert.InDelta(t, 540, res.Anchor.Center.Y, 3)

	require.NotNil(t, res.Region)
	assert.True(t, res.Region.Rect().In(image.Rect(0, 0, 1920, 1080)))
	assert.True(t, image.Rect(950, 358, 985, 371).In(res.Region.Rect()), "region %s holds the readout", res.Region)

	require.NotEmpty(t, res.Matches)
	top := res.Matches[0]
	assert.Equal(t, match.CategoryKnown, top.Category)
	assert.Equal(t, "E-type Asteroid", top.Name)
	assert.Equal(t, 1.0, top.Confidence)
	assert.NotEqual(t, res.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Empty(t, res.DebugFiles)
}

func TestScanFixedRegionFirst(t *testing.T) {
	fr := FixedRegion{Region: region.Region{X1: 940, Y1: 350, X2: 1000, Y2: 380}}
	s := newScanner(darkTextOCR("1,900"), WithStrategies(append([]Strategy{fr}, DefaultStrategies(zerolog.Nop())...)...))

	res, err := s.ScanImage(context.Background(), hudFrame("1,900"), "")
	require.NoError(t, err)
	assert.Equal(t, "fixed_region", res.Method)
	assert.Nil(t, res.Anchor)
	assert.Equal(t, region.Region{X1: 940, Y1: 350, X2: 1000, Y2: 380}, *res.Region)
	assert.Len(t, res.Attempts, 1)
}

func TestScanFallsThroughStrategies(t *testing.T) {
	// The fixed rectangle misses the readout; the ring strategy finds it.
	fr := FixedRegion{Region: region.Region{X1: 0, Y1: 0, X2: 100, Y2: 100}}
	s := newScanner(darkTextOCR("1,900"), WithStrategies(append([]Strategy{NewGaze(nil), fr}, DefaultStrategies(zerolog.Nop())...)...))

	res, err := s.ScanImage(context.Background(), hudFrame("1,900"), "")
	require.NoError(t, err)
	assert.Equal(t, "ring", res.Method)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, OutcomeAnchorNotFound, res.Attempts[0].Outcome)
	assert.Equal(t, OutcomeNoSignature, res.Attempts[1].Outcome)
	assert.Equal(t, OutcomeFound, res.Attempts[2].Outcome)
}

type fixedGaze image.Point

func (g fixedGaze) Gaze(context.Context) (image.Point, bool) { return image.Point(g), true }

func TestScanGaze(t *testing.T) {
	s := newScanner(darkTextOCR("1,900"), WithStrategies(NewGaze(fixedGaze{X: 960, Y: 1000})))

	res, err := s.ScanImage(context.Background(), hudFrame("1,900"), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSignature, res.Outcome, "readout is outside the gaze square")
	assert.Equal(t, region.Region{X1: 810, Y1: 850, X2: 1110, Y2: 1080}, *res.Attempts[0].Region)

	s = newScanner(darkTextOCR("1,900"), WithStrategies(NewGaze(fixedGaze{X: 967, Y: 365})))
	res, err = s.ScanImage(context.Background(), hudFrame("1,900"), "")
	require.NoError(t, err)
	assert.Equal(t, "gaze", res.Method)
	assert.Equal(t, 1900, res.Signature)
}

func TestScanCalibratedAnchor(t *testing.T) {
	img := blankFrame()
	drawText(img, 950, 369, "1,900")
	cal := CalibratedAnchor{Center: geometry.NewPoint2D(720, 540), Diameter: 50, Params: region.DefaultParams()}
	s := newScanner(darkTextOCR("1,900"), WithStrategies(cal))

	res, err := s.ScanImage(context.Background(), img, "")
	require.NoError(t, err)
	assert.Equal(t, "calibrated_anchor", res.Method)
	assert.Equal(t, anchor.MethodCalibrated, res.Anchor.Method)
	assert.Equal(t, region.Region{X1: 895, Y1: 315, X2: 1045, Y2: 415}, *res.Region)
	assert.Equal(t, 1900, res.Signature)
}

func TestScanNoAnchor(t *testing.T) {
	calls := 0
	rec := ocr.RecognizerFunc(func(context.Context, image.Image, string) (ocr.Recognition, error) {
		calls++
		return ocr.Recognition{}, nil
	})
	s := newScanner(rec)

	res, err := s.ScanImage(context.Background(), blankFrame(), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnchorNotFound, res.Outcome)
	assert.Zero(t, res.Signature)
	assert.Empty(t, res.Matches)
	assert.Zero(t, calls)
	assert.Equal(t, []string{"ring", "cross"}, s.Strategies())
}

func TestScanRegionInvalid(t *testing.T) {
	cal := CalibratedAnchor{Center: geometry.NewPoint2D(1900, 540), Diameter: 50, Params: region.DefaultParams()}
	s := newScanner(darkTextOCR("1,900"), WithStrategies(cal))

	res, err := s.ScanImage(context.Background(), blankFrame(), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRegionInvalid, res.Outcome)
}

func TestScanNoSignature(t *testing.T) {
	rec := ocr.RecognizerFunc(func(context.Context, image.Image, string) (ocr.Recognition, error) {
		return ocr.Recognition{Text: "--"}, nil
	})
	s := newScanner(rec)

	res, err := s.ScanImage(context.Background(), hudFrame("--"), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSignature, res.Outcome, "ring region was read even though cross found nothing")
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, "--", res.Attempts[0].Text)
	assert.Equal(t, OutcomeAnchorNotFound, res.Attempts[1].Outcome)
}

func TestScanNoMatch(t *testing.T) {
	s := newScanner(darkTextOCR("1,234"))

	res, err := s.ScanImage(context.Background(), hudFrame("1,234"), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.Equal(t, 1234, res.Signature)
	assert.Empty(t, res.Matches)
}

func TestScanOCRUnavailable(t *testing.T) {
	s := newScanner(nil)

	res, err := s.ScanImage(context.Background(), hudFrame("1,900"), "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeOCRUnavailable))
	assert.Zero(t, res.Signature)
}

func TestScanOCRFailureIsReported(t *testing.T) {
	rec := ocr.RecognizerFunc(func(context.Context, image.Image, string) (ocr.Recognition, error) {
		return ocr.Recognition{}, errs.New(errs.CodeOCRFailed, "engine crashed")
	})
	s := newScanner(rec)

	res, err := s.ScanImage(context.Background(), hudFrame("1,900"), "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeOCRFailed))
	assert.Equal(t, OutcomeNoSignature, res.Outcome)
}

func TestScanFileDecodeError(t *testing.T) {
	s := newScanner(darkTextOCR("1,900"))

	_, err := s.ScanFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = s.ScanFile(context.Background(), bad)
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newScanner(darkTextOCR("1,900"))

	_, err := s.ScanImage(ctx, hudFrame("1,900"), "")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestScanDebugArtifacts(t *testing.T) {
	dir := t.TempDir()
	s := newScanner(darkTextOCR("1,900"), WithDebugDir(dir))

	res, err := s.ScanImage(context.Background(), hudFrame("1,900"), "")
	require.NoError(t, err)

	scanDir := filepath.Join(dir, res.ID.String())
	for _, name := range []string{
		"00_original.png",
		"01_mask_ring.png",
		"02_detection_ring.png",
		"03_sig_crop_ring.png",
		"04_ocr_input_ring_colormask.png",
		"99_summary.txt",
	} {
		path := filepath.Join(scanDir, name)
		assert.FileExists(t, path)
		assert.Contains(t, res.DebugFiles, path)
	}

	summary, err := os.ReadFile(filepath.Join(scanDir, "99_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "signature: 1900")
	assert.Contains(t, string(summary), "E-type Asteroid")
}

func TestFromAnchorRecordsRotation(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1440, 1080))
	a := anchor.Anchor{Center: geometry.NewPoint2D(720, 540), Size: 50, Angle: 12, Method: anchor.MethodCross}

	prop, err := fromAnchor(img, a, region.DefaultParams())
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, prop.Outcome)
	assert.Equal(t, 12.0, prop.Rotation)
	assert.Equal(t, prop.Region.Outline(a.Center, 12), regionOutline(prop))
	assert.NotEqual(t, prop.Region.Rect().Min, regionOutline(prop)[0], "outline follows the tilt")

	a.Angle = 0.5
	prop, err = fromAnchor(img, a, region.DefaultParams())
	require.NoError(t, err)
	assert.Zero(t, prop.Rotation)
	r := prop.Region
	assert.Equal(t, [4]image.Point{image.Pt(r.X1, r.Y1), image.Pt(r.X2, r.Y1), image.Pt(r.X2, r.Y2), image.Pt(r.X1, r.Y2)}, regionOutline(prop))
}

func TestResultSignatures(t *testing.T) {
	r := Result{Signature: 3100, Candidates: []ocr.Candidate{{Value: 1900}, {Value: 3100}}}
	assert.Equal(t, []int{3100, 1900}, r.Signatures())
	assert.Nil(t, Result{}.Signatures())
}

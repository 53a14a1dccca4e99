package anchor

import (
	"fmt"
	"image"
	"math"
	"sort"

	"sigscan/internal/imageio"
	"sigscan/internal/mask"
	"sigscan/pkg/geometry"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// RingParams tunes ring detection. Pixel sizes are given for a 1080p frame
// and scale up with resolution.
type RingParams struct {
	Profile mask.Profile

	// Search band. Ultrawide frames (aspect above UltrawideAspect) use their
	// own horizontal band since the HUD sits on the middle screen.
	Band            Band
	UltrawideBand   Band
	UltrawideAspect float64

	BaseHeight    float64
	BaseMinRadius float64
	BaseMaxRadius float64
	BaseMinDist   float64

	HoughDP     float64
	HoughParam1 float64 // Canny high threshold
	HoughParam2 float64 // accumulator threshold

	// Ring score sampling.
	Samples    int
	InnerFrac  float64
	EdgeFrac   float64
	MinSamples int

	MinRingScore   float64
	DistanceWeight float64

	// RefineRadius snaps Hough circles to the outer edge of the ring mask.
	RefineRadius bool
}

// DefaultRingParams returns the tuning used for the stock HUD.
func DefaultRingParams() RingParams {
	return RingParams{
		Profile:         mask.WarmRing(),
		Band:            Band{Left: 0.25, Right: 0.50, Top: 0.25, Bottom: 0.75},
		UltrawideBand:   Band{Left: 0.35, Right: 0.50, Top: 0.25, Bottom: 0.75},
		UltrawideAspect: 2.5,

		BaseHeight:    1080,
		BaseMinRadius: 12,
		BaseMaxRadius: 50,
		BaseMinDist:   40,

		HoughDP:     1,
		HoughParam1: 100,
		HoughParam2: 30,

		Samples:    24,
		InnerFrac:  0.3,
		EdgeFrac:   0.9,
		MinSamples: 10,

		MinRingScore:   0.2,
		DistanceWeight: 0.5,
		RefineRadius:   true,
	}
}

// WithBand returns a copy of p searching b on every aspect ratio.
func (p RingParams) WithBand(b Band) RingParams {
	p.Band = b
	p.UltrawideBand = b
	return p
}

func (p RingParams) bandFor(w, h int) image.Rectangle {
	if h > 0 && float64(w)/float64(h) > p.UltrawideAspect {
		return p.UltrawideBand.Rect(w, h)
	}
	return p.Band.Rect(w, h)
}

// radii returns the Hough radius bounds and minimum center spacing for a
// w x h frame.
func (p RingParams) radii(w, h int) (minR, maxR, minDist int) {
	s := resolutionScale(w, h, p.BaseHeight)
	return int(p.BaseMinRadius * s), int(p.BaseMaxRadius * s), int(p.BaseMinDist * s)
}

// ScoreRing measures how hollow a circle is: the contrast between the mean
// brightness sampled at EdgeFrac of the radius and at InnerFrac, normalized
// to [0,1]. A bright ring on a dark field scores high, a solid disc scores 0.
func (p RingParams) ScoreRing(gray *image.Gray, center geometry.Point2D, radius float64) float64 {
	b := gray.Bounds()
	inner := make([]float64, 0, p.Samples)
	edge := make([]float64, 0, p.Samples)

	sample := func(pts []geometry.Point2D, dst []float64) []float64 {
		for _, pt := range pts {
			x, y := int(pt.X), int(pt.Y)
			if (image.Point{X: x, Y: y}).In(b) {
				dst = append(dst, float64(gray.GrayAt(x, y).Y))
			}
		}
		return dst
	}
	inner = sample(geometry.GenerateCirclePoints(center.X, center.Y, radius*p.InnerFrac, p.Samples), inner)
	edge = sample(geometry.GenerateCirclePoints(center.X, center.Y, radius*p.EdgeFrac, p.Samples), edge)

	if len(inner) < p.MinSamples || len(edge) < p.MinSamples {
		return 0
	}

	innerMean := stat.Mean(inner, nil)
	edgeMean := stat.Mean(edge, nil)
	if edgeMean <= innerMean {
		return 0
	}
	contrast := (edgeMean - innerMean) / max(1, edgeMean)
	return min(1, contrast*2)
}

// RingDetector finds the HUD ring with a Hough circle search over the
// warm-color map.
type RingDetector struct {
	params RingParams
	log    zerolog.Logger
}

// NewRingDetector creates a ring detector.
func NewRingDetector(params RingParams, log zerolog.Logger) *RingDetector {
	return &RingDetector{params: params, log: log}
}

// Params returns the detector's parameters.
func (d *RingDetector) Params() RingParams { return d.params }

// Detect searches the HUD band of img for a hollow ring.
func (d *RingDetector) Detect(img image.Image) (Detection, error) {
	p := d.params
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	search := p.bandFor(w, h)
	det := Detection{SearchRect: search}
	if search.Empty() {
		return det, nil
	}

	crop := imaging.Crop(img, search.Add(b.Min))
	m := mask.Apply(crop, p.Profile)
	det.Mask = m

	minR, maxR, minDist := p.radii(w, h)
	d.log.Debug().
		Int("width", w).Int("height", h).
		Str("band", search.String()).
		Int("min_radius", minR).Int("max_radius", maxR).
		Msg("ring search")

	if m.Empty() {
		d.log.Debug().Msg("ring mask empty")
		return det, nil
	}

	circles, err := houghCircles(m.Smoothed, p, minR, maxR, minDist)
	if err != nil {
		return det, err
	}
	if len(circles) == 0 {
		d.log.Debug().Msg("no circles found")
		return det, nil
	}

	bw, bh := float64(search.Dx()), float64(search.Dy())
	mid := geometry.NewPoint2D(bw/2, bh/2)
	diag := math.Hypot(bw, bh)
	offset := geometry.NewPoint2D(float64(search.Min.X), float64(search.Min.Y))

	best := -1
	for _, c := range circles {
		center, radius := c.center, c.radius
		if p.RefineRadius {
			center, radius = refineRing(m, center, radius, float64(maxR))
		}

		ring := p.ScoreRing(m.Intensity, center, radius)
		score := ring - p.DistanceWeight*center.Distance(mid)/diag

		cand := Candidate{
			Center: center.Add(offset),
			Size:   radius * 2,
			Shape:  ring,
			Score:  score,
		}
		d.log.Debug().
			Float64("x", cand.Center.X).Float64("y", cand.Center.Y).
			Float64("r", radius).Float64("ring", ring).Float64("score", score).
			Msg("circle")

		if ring > p.MinRingScore && (best < 0 || score > det.Candidates[best].Score) {
			best = len(det.Candidates)
		}
		det.Candidates = append(det.Candidates, cand)
	}

	if best < 0 {
		d.log.Debug().Int("circles", len(circles)).Msg("no ring-shaped circle")
		return det, nil
	}

	det.Candidates[best].Accepted = true
	c := det.Candidates[best]
	det.Found = true
	det.Anchor = Anchor{
		Center: c.Center,
		Size:   c.Size,
		Score:  c.Score,
		Method: MethodRing,
	}
	return det, nil
}

type circle struct {
	center geometry.Point2D
	radius float64
}

func houghCircles(gray *image.Gray, p RingParams, minR, maxR, minDist int) ([]circle, error) {
	mat, err := imageio.GrayToMat(gray)
	if err != nil {
		return nil, fmt.Errorf("failed to convert mask: %w", err)
	}
	defer mat.Close()

	circles := gocv.NewMat()
	defer circles.Close()

	gocv.HoughCirclesWithParams(mat, &circles, gocv.HoughGradient,
		p.HoughDP, float64(max(1, minDist)),
		p.HoughParam1, p.HoughParam2,
		minR, maxR)

	if circles.Empty() || circles.Cols() == 0 {
		return nil, nil
	}

	out := make([]circle, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		out[i] = circle{
			center: geometry.Point2D{
				X: float64(circles.GetFloatAt(0, i*3)),
				Y: float64(circles.GetFloatAt(0, i*3+1)),
			},
			radius: float64(circles.GetFloatAt(0, i*3+2)),
		}
	}
	return out, nil
}

// refineRing walks outward from a Hough circle at fixed angles and snaps the
// circle to the outer edge of the ring in the mask. Hough may lock onto the
// inner or outer edge of a thick ring; the outer edge is the HUD diameter.
func refineRing(m *mask.Mask, center geometry.Point2D, radius, maxR float64) (geometry.Point2D, float64) {
	const numAngles = 32
	start := radius * 0.6
	limit := min(radius*1.5, maxR*1.2)

	var pts []geometry.Point2D
	for i := 0; i < numAngles; i++ {
		a := float64(i) * 2 * math.Pi / numAngles
		dx, dy := math.Cos(a), math.Sin(a)

		onRing := false
		edge := -1.0
		for step := start; step <= limit; step += 0.5 {
			on := m.At(int(center.X+dx*step+0.5), int(center.Y+dy*step+0.5))
			if on {
				onRing = true
				edge = step
			} else if onRing {
				break
			}
		}
		if edge > 0 {
			pts = append(pts, geometry.NewPoint2D(center.X+dx*edge, center.Y+dy*edge))
		}
	}

	if len(pts) < numAngles/2 {
		return center, radius
	}

	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	refined := geometry.NewPoint2D(sx/float64(len(pts)), sy/float64(len(pts)))

	dists := make([]float64, len(pts))
	for i, p := range pts {
		dists[i] = p.Distance(refined)
	}
	sort.Float64s(dists)
	r := stat.Quantile(0.5, stat.Empirical, dists, nil)
	if r <= 0 {
		return center, radius
	}
	return refined, r
}

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
)

// CrossParams tunes cross/cluster detection. Pixel sizes are for a 1080p
// frame and scale with resolution.
type CrossParams struct {
	Profile mask.Profile
	Band    Band

	BaseHeight      float64
	BaseMinPixels   float64 // smallest component kept
	BaseGroupRadius float64 // components closer than this are one group
	BaseMinSize     float64 // smallest accepted group extent

	MaxAspect float64
}

// DefaultCrossParams returns the tuning for the magenta crosshair.
func DefaultCrossParams() CrossParams {
	return CrossParams{
		Profile:         mask.MagentaCross(),
		Band:            FullFrame,
		BaseHeight:      1080,
		BaseMinPixels:   10,
		BaseGroupRadius: 40,
		BaseMinSize:     10,
		MaxAspect:       3,
	}
}

// WithBand returns a copy of p restricted to b.
func (p CrossParams) WithBand(b Band) CrossParams {
	p.Band = b
	return p
}

// CrossDetector finds the crosshair by clustering connected components of
// the magenta mask.
type CrossDetector struct {
	params CrossParams
	log    zerolog.Logger
}

// NewCrossDetector creates a cross detector.
func NewCrossDetector(params CrossParams, log zerolog.Logger) *CrossDetector {
	return &CrossDetector{params: params, log: log}
}

type component struct {
	label      int
	bbox       image.Rectangle // exclusive max
	area       int
	cx, cy     float64
	assignedTo int
}

type cluster struct {
	members []int
	bbox    image.Rectangle
	area    int
	aspect  float64
	score   float64
}

// Detect searches img for the best cross-shaped cluster. The angle is taken
// from the topmost extremity of the cluster: how far it leans from straight
// up, positive when it leans right.
func (d *CrossDetector) Detect(img image.Image) (Detection, error) {
	p := d.params
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	search := p.Band.Rect(w, h)
	det := Detection{SearchRect: search}
	if search.Empty() {
		return det, nil
	}

	crop := imaging.Crop(img, search.Add(b.Min))
	m := mask.Apply(crop, p.Profile)
	det.Mask = m
	if m.Empty() {
		d.log.Debug().Msg("cross mask empty")
		return det, nil
	}

	scale := resolutionScale(w, h, p.BaseHeight)
	minPixels := int(p.BaseMinPixels * scale)
	groupRadius := p.BaseGroupRadius * scale
	minSize := int(p.BaseMinSize * scale)

	labels, comps, err := components(m, minPixels)
	if err != nil {
		return det, err
	}
	d.log.Debug().Int("components", len(comps)).Msg("cross components")
	if len(comps) == 0 {
		return det, nil
	}

	clusters := groupComponents(comps, groupRadius)
	offset := geometry.NewPoint2D(float64(search.Min.X), float64(search.Min.Y))

	best := -1
	bestScore := 0.0
	for i := range clusters {
		c := &clusters[i]
		size := max(c.bbox.Dx(), c.bbox.Dy())
		accepted := c.aspect <= p.MaxAspect && size >= minSize
		center := geometry.NewPoint2D(
			float64(c.bbox.Min.X+c.bbox.Max.X)/2,
			float64(c.bbox.Min.Y+c.bbox.Max.Y)/2,
		)
		det.Candidates = append(det.Candidates, Candidate{
			Center: center.Add(offset),
			Size:   float64(size),
			Shape:  c.aspect,
			Score:  c.score,
		})
		d.log.Debug().
			Str("bbox", c.bbox.Add(search.Min).String()).
			Int("pixels", c.area).Float64("aspect", c.aspect).Float64("score", c.score).
			Msg("cluster")

		if accepted && (best < 0 || c.score > bestScore) {
			best = i
			bestScore = c.score
		}
	}

	if best < 0 {
		return det, nil
	}

	c := clusters[best]
	centroid, top := clusterPixels(labels, comps, c)
	det.Candidates[best].Accepted = true
	det.Candidates[best].Center = centroid.Add(offset)
	det.Found = true
	det.Anchor = Anchor{
		Center: centroid.Add(offset),
		Size:   float64(max(c.bbox.Dx(), c.bbox.Dy())),
		Angle:  topAngle(centroid, top),
		Score:  c.score,
		Method: MethodCross,
	}
	return det, nil
}

// components labels the mask and returns the label map along with every
// component of at least minPixels pixels.
func components(m *mask.Mask, minPixels int) (labelMap, []component, error) {
	mat, err := imageio.GrayToMat(m.Gray())
	if err != nil {
		return labelMap{}, nil, fmt.Errorf("failed to convert mask: %w", err)
	}
	defer mat.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(mat, &labels, &stats, &centroids)

	lm := labelMap{w: m.Width, h: m.Height, ids: make([]int32, m.Width*m.Height)}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			lm.ids[y*m.Width+x] = labels.GetIntAt(y, x)
		}
	}

	var comps []component
	for i := 1; i < n; i++ {
		area := int(stats.GetIntAt(i, int(gocv.CCStatArea)))
		if area < minPixels {
			continue
		}
		left := int(stats.GetIntAt(i, int(gocv.CCStatLeft)))
		top := int(stats.GetIntAt(i, int(gocv.CCStatTop)))
		cw := int(stats.GetIntAt(i, int(gocv.CCStatWidth)))
		ch := int(stats.GetIntAt(i, int(gocv.CCStatHeight)))
		comps = append(comps, component{
			label:      i,
			bbox:       image.Rect(left, top, left+cw, top+ch),
			area:       area,
			cx:         centroids.GetDoubleAt(i, 0),
			cy:         centroids.GetDoubleAt(i, 1),
			assignedTo: -1,
		})
	}
	return lm, comps, nil
}

type labelMap struct {
	w, h int
	ids  []int32
}

func (l labelMap) at(x, y int) int { return int(l.ids[y*l.w+x]) }

// groupComponents greedily clusters components, largest first. A component
// joins a cluster when its centroid lies within radius of any member's.
func groupComponents(comps []component, radius float64) []cluster {
	order := make([]int, len(comps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return comps[order[a]].area > comps[order[b]].area })

	var clusters []cluster
	for _, seed := range order {
		if comps[seed].assignedTo >= 0 {
			continue
		}
		id := len(clusters)
		members := []int{seed}
		comps[seed].assignedTo = id

		for grown := true; grown; {
			grown = false
			for _, j := range order {
				if comps[j].assignedTo >= 0 {
					continue
				}
				for _, k := range members {
					if math.Hypot(comps[j].cx-comps[k].cx, comps[j].cy-comps[k].cy) <= radius {
						comps[j].assignedTo = id
						members = append(members, j)
						grown = true
						break
					}
				}
			}
		}

		c := cluster{members: members, bbox: comps[seed].bbox}
		for _, k := range members {
			c.bbox = c.bbox.Union(comps[k].bbox)
			c.area += comps[k].area
		}
		long := float64(max(c.bbox.Dx(), c.bbox.Dy()))
		short := float64(max(1, min(c.bbox.Dx(), c.bbox.Dy())))
		c.aspect = long / short
		c.score = float64(c.area) / (c.aspect * c.aspect)
		clusters = append(clusters, c)
	}
	return clusters
}

// clusterPixels returns the pixel centroid of a cluster and the midpoint of
// its topmost pixel row.
func clusterPixels(labels labelMap, comps []component, c cluster) (geometry.Point2D, geometry.Point2D) {
	want := make(map[int]bool, len(c.members))
	for _, k := range c.members {
		want[comps[k].label] = true
	}

	var sx, sy float64
	n := 0
	topY := -1
	topMinX, topMaxX := 0, 0
	for y := c.bbox.Min.Y; y < c.bbox.Max.Y; y++ {
		for x := c.bbox.Min.X; x < c.bbox.Max.X; x++ {
			if !want[labels.at(x, y)] {
				continue
			}
			sx += float64(x)
			sy += float64(y)
			n++
			if topY < 0 {
				topY, topMinX, topMaxX = y, x, x
			} else if y == topY {
				topMaxX = x
			}
		}
	}
	if n == 0 {
		mid := geometry.NewPoint2D(float64(c.bbox.Min.X+c.bbox.Max.X)/2, float64(c.bbox.Min.Y+c.bbox.Max.Y)/2)
		return mid, mid
	}
	centroid := geometry.NewPoint2D(sx/float64(n), sy/float64(n))
	top := geometry.NewPoint2D(float64(topMinX+topMaxX)/2, float64(topY))
	return centroid, top
}

// topAngle is atan2(top.x-c.x, -(top.y-c.y)) in degrees: 0 when the top
// extremity is straight above the centroid.
func topAngle(c, top geometry.Point2D) float64 {
	dx := top.X - c.X
	dy := top.Y - c.Y
	if math.Abs(dx) < 1 && math.Abs(dy) < 1 {
		return 0
	}
	return math.Atan2(dx, -dy) * 180 / math.Pi
}

package scan

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"sigscan/internal/imageio"
	"sigscan/pkg/colorutil"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// debugWriter saves intermediate images for one scan. A nil writer does
// nothing. Write failures are logged and otherwise ignored.
type debugWriter struct {
	dir   string
	log   zerolog.Logger
	files []string
}

func newDebugWriter(root string, id uuid.UUID, log zerolog.Logger) *debugWriter {
	if root == "" {
		return nil
	}
	dir := filepath.Join(root, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("cannot create debug directory")
		return nil
	}
	return &debugWriter{dir: dir, log: log}
}

// Files returns the paths written so far.
func (d *debugWriter) Files() []string {
	if d == nil {
		return nil
	}
	return d.files
}

func (d *debugWriter) image(name string, img image.Image) {
	if d == nil || img == nil {
		return
	}
	path := filepath.Join(d.dir, name+".png")
	if err := imaging.Save(img, path); err != nil {
		d.log.Warn().Err(err).Str("path", path).Msg("failed to save debug image")
		return
	}
	d.files = append(d.files, path)
}

// detection writes the strategy's mask and an overlay of the search area,
// candidates, anchor and readout region.
func (d *debugWriter) detection(name string, src *image.NRGBA, prop Proposal) {
	if d == nil {
		return
	}
	if det := prop.Detection; det != nil && det.Mask != nil {
		d.image("01_mask_"+name, det.Mask.Gray())
	}
	if prop.Detection == nil && prop.Outcome != OutcomeFound {
		return
	}

	mat, err := imageio.ToMat(src)
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to convert debug overlay")
		return
	}
	defer mat.Close()

	if det := prop.Detection; det != nil {
		gocv.Rectangle(&mat, det.SearchRect, colorutil.Yellow, 1)
		for _, c := range det.Candidates {
			col := colorutil.Red
			if c.Accepted {
				col = colorutil.Green
			}
			gocv.Circle(&mat, c.Center.ToImagePoint(), int(c.Size/2), col, 2)
		}
	}
	if prop.Outcome == OutcomeFound {
		corners := regionOutline(prop)
		for i, c := range corners {
			gocv.Line(&mat, c, corners[(i+1)%len(corners)], colorutil.Cyan, 2)
		}
		if a := prop.Anchor; a != nil {
			mid := image.Pt((corners[0].X+corners[2].X)/2, (corners[0].Y+corners[2].Y)/2)
			gocv.Line(&mat, a.Center.ToImagePoint(), mid, colorutil.White, 1)
			label := fmt.Sprintf("%s %.0fpx %.1fdeg", a.Method, a.Size, a.Angle)
			if prop.Rotation != 0 {
				label += " (region straightened)"
			}
			top := min(corners[0].Y, corners[1].Y)
			gocv.PutText(&mat, label, image.Pt(corners[0].X, max(top-5, 15)),
				gocv.FontHersheyPlain, 1.0, colorutil.White, 1)
		}
	}

	path := filepath.Join(d.dir, "02_detection_"+name+".png")
	if !gocv.IMWrite(path, mat) {
		d.log.Warn().Str("path", path).Msg("failed to save detection overlay")
		return
	}
	d.files = append(d.files, path)
}

// regionOutline places the readout region on the unrotated screenshot.
func regionOutline(prop Proposal) [4]image.Point {
	if prop.Rotation == 0 || prop.Anchor == nil {
		r := prop.Region
		return [4]image.Point{image.Pt(r.X1, r.Y1), image.Pt(r.X2, r.Y1), image.Pt(r.X2, r.Y2), image.Pt(r.X1, r.Y2)}
	}
	return prop.Region.Outline(prop.Anchor.Center, prop.Rotation)
}

func (d *debugWriter) summary(res *Result) {
	if d == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "scan:      %s\n", res.ID)
	fmt.Fprintf(&b, "source:    %s\n", res.Source)
	fmt.Fprintf(&b, "outcome:   %s\n", res.Outcome)
	fmt.Fprintf(&b, "duration:  %s\n", res.Duration)
	if res.Method != "" {
		fmt.Fprintf(&b, "method:    %s\n", res.Method)
	}
	if res.Anchor != nil {
		a := res.Anchor
		fmt.Fprintf(&b, "anchor:    (%.1f, %.1f) size %.1f angle %.1f score %.3f\n",
			a.Center.X, a.Center.Y, a.Size, a.Angle, a.Score)
	}
	if res.Region != nil {
		fmt.Fprintf(&b, "region:    %s\n", res.Region)
	}
	if res.Rotation != 0 {
		fmt.Fprintf(&b, "rotation:  %.1f deg about the anchor, region in the straightened frame\n", res.Rotation)
	}
	if res.Text != "" {
		fmt.Fprintf(&b, "ocr:       %q (%s)\n", res.Text, res.OCRStrategy)
	}
	if res.Signature != 0 {
		fmt.Fprintf(&b, "signature: %d %v\n", res.Signature, res.Signatures())
	}
	for _, a := range res.Attempts {
		fmt.Fprintf(&b, "attempt:   %-18s %s", a.Strategy, a.Outcome)
		if a.Text != "" {
			fmt.Fprintf(&b, " text=%q", a.Text)
		}
		if a.Error != "" {
			fmt.Fprintf(&b, " error=%s", a.Error)
		}
		b.WriteByte('\n')
	}
	for _, m := range res.Matches {
		fmt.Fprintf(&b, "match:     %-22s %-40s %.3f", m.Category, m.Name, m.Confidence)
		if m.EstimatedValue > 0 {
			fmt.Fprintf(&b, " value=%.0f", m.EstimatedValue)
		}
		b.WriteByte('\n')
	}

	path := filepath.Join(d.dir, "99_summary.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		d.log.Warn().Err(err).Str("path", path).Msg("failed to write debug summary")
		return
	}
	d.files = append(d.files, path)
}

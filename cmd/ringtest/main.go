// Command ringtest runs reticle detection on a screenshot and prints every
// candidate, for tuning detector parameters.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"sigscan/internal/anchor"
	"sigscan/internal/imageio"
	"sigscan/internal/region"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

func main() {
	imagePath := flag.String("image", "", "Path to screenshot (PNG, JPEG, BMP, TIFF or WebP)")
	detector := flag.String("detector", "ring", "Detector: ring or cross")
	full := flag.Bool("full", false, "Search the whole frame instead of the default band")
	crop := flag.String("crop", "", "Write the readout region to this PNG")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: ringtest -image <path> [-detector ring|cross] [-full] [-crop out.png] [-v]")
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	img, err := imageio.Decode(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	b := img.Bounds()
	fmt.Printf("Loaded image: %dx%d pixels\n", b.Dx(), b.Dy())

	var d anchor.Detector
	switch *detector {
	case "ring":
		params := anchor.DefaultRingParams()
		if *full {
			params = params.WithBand(anchor.FullFrame)
		}
		fmt.Printf("\nRing parameters:\n")
		fmt.Printf("  Band: x %.2f-%.2f  y %.2f-%.2f (ultrawide above %.1f:1)\n",
			params.Band.Left, params.Band.Right, params.Band.Top, params.Band.Bottom, params.UltrawideAspect)
		fmt.Printf("  Radius: %.0f-%.0f px at %.0fp, min distance %.0f\n",
			params.BaseMinRadius, params.BaseMaxRadius, params.BaseHeight, params.BaseMinDist)
		fmt.Printf("  Hough: dp=%.1f param1=%.0f param2=%.0f\n", params.HoughDP, params.HoughParam1, params.HoughParam2)
		fmt.Printf("  Ring score min: %.2f (%d samples)\n", params.MinRingScore, params.Samples)
		d = anchor.NewRingDetector(params, log)
	case "cross":
		params := anchor.DefaultCrossParams()
		fmt.Printf("\nCross parameters:\n")
		fmt.Printf("  Min pixels: %.0f  group radius: %.0f  min size: %.0f  max aspect: %.1f\n",
			params.BaseMinPixels, params.BaseGroupRadius, params.BaseMinSize, params.MaxAspect)
		d = anchor.NewCrossDetector(params, log)
	default:
		fmt.Fprintf(os.Stderr, "Unknown detector %q\n", *detector)
		os.Exit(1)
	}

	fmt.Printf("\nDetecting...\n")
	det, err := d.Detect(img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Search rect: %v, mask pixels: %d\n", det.SearchRect, maskCount(det))
	fmt.Printf("\n%-4s %10s %10s %8s %8s %8s %9s\n", "#", "X", "Y", "Size", "Shape", "Score", "Accepted")
	fmt.Println(strings.Repeat("-", 62))
	for i, c := range det.Candidates {
		fmt.Printf("%-4d %10.1f %10.1f %8.1f %8.3f %8.3f %9v\n",
			i+1, c.Center.X, c.Center.Y, c.Size, c.Shape, c.Score, c.Accepted)
	}

	if !det.Found {
		fmt.Printf("\nNo anchor found (%d candidates)\n", len(det.Candidates))
		os.Exit(2)
	}
	a := det.Anchor
	fmt.Printf("\nAnchor: (%.1f, %.1f) size %.1f angle %.1f° score %.3f\n",
		a.Center.X, a.Center.Y, a.Size, a.Angle, a.Score)

	params := region.DefaultParams()
	r, ok := region.Locate(a, params, b.Dx(), b.Dy())
	if !ok {
		fmt.Printf("Readout region collapsed at the frame edge\n")
		os.Exit(2)
	}
	fmt.Printf("Readout region: %s\n", r)

	if *crop != "" {
		out, err := region.Extract(img, a, r, params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Extract failed: %v\n", err)
			os.Exit(1)
		}
		if err := imaging.Save(out, *crop); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save crop: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *crop)
	}
}

func maskCount(det anchor.Detection) int {
	if det.Mask == nil {
		return 0
	}
	return det.Mask.Count()
}

// Command normtest normalizes one frame around a given anchor and reports
// where the anchor lands in the crop.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"cell-tracker/internal/detect"
	"cell-tracker/internal/image"
	"cell-tracker/internal/normalize"
	"cell-tracker/pkg/geometry"
)

func main() {
	imagePath := flag.String("image", "", "Path to frame (TIFF or PNG)")
	out := flag.String("o", "normalized.tif", "Output path")
	ax := flag.Float64("x", -1, "Anchor X (default: largest object)")
	ay := flag.Float64("y", -1, "Anchor Y (default: largest object)")
	theta := flag.Float64("angle", -90, "Motion heading of the anchor in degrees")
	reference := flag.Float64("reference", -90, "Heading the motion is turned to")
	crop := flag.Int("crop", 128, "Output edge length")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: normtest -image <path> [-x X -y Y] [-angle deg] [-crop 128] [-o out.tif]")
		os.Exit(1)
	}

	frame, err := image.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}

	det := detect.NewDetector(detect.DefaultParams())
	anchor := geometry.Point2D{X: *ax, Y: *ay}
	if *ax < 0 || *ay < 0 {
		res, err := det.DetectImage(frame.Image)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
			os.Exit(1)
		}
		largest, ok := detect.SelectLargest(res.Detections)
		if !ok {
			fmt.Fprintln(os.Stderr, "No object found; pass -x and -y")
			os.Exit(1)
		}
		anchor = largest.Pixel().ToFloat()
	}

	n := &normalize.Normalizer{CropSize: *crop, ReferenceAngle: *reference}
	plan := normalize.Plan{Anchor: anchor, Rotation: normalize.RotationFor(*theta, *reference)}
	t := normalize.Transform(plan.Anchor, plan.Rotation, frame.Size(), *crop)

	fmt.Printf("=== Transform ===\n")
	fmt.Printf("Anchor: (%.1f, %.1f)\n", anchor.X, anchor.Y)
	fmt.Printf("Rotation: %.4f°\n", plan.Rotation)
	fmt.Printf("Matrix: [%.4f %.4f %.1f; %.4f %.4f %.1f]\n", t.A, t.B, t.TX, t.C, t.D, t.TY)
	expected := t.Apply(anchor)
	fmt.Printf("Anchor maps to: (%.2f, %.2f)\n", expected.X, expected.Y)
	if inv, ok := t.Inverse(); ok {
		corner := inv.Apply(geometry.Point2D{})
		fmt.Printf("Crop origin samples source (%.2f, %.2f)\n", corner.X, corner.Y)
	}

	img, err := n.Render(frame.Image, plan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render failed: %v\n", err)
		os.Exit(1)
	}
	if err := image.Save(*out, img); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *out)

	res, err := det.DetectImage(img)
	if err != nil || res.Empty() {
		return
	}
	centre := geometry.Point2D{X: float64(*crop) / 2, Y: float64(*crop) / 2}
	nearest, _ := detect.SelectNearest(res.Detections, &centre, res.Size)
	fmt.Printf("\n=== Residual ===\n")
	fmt.Printf("Nearest object at (%.2f, %.2f), error %.2f px\n",
		nearest.Centroid.X, nearest.Centroid.Y, math.Hypot(nearest.Centroid.X-expected.X, nearest.Centroid.Y-expected.Y))
}

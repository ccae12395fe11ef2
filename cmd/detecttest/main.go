// Command detecttest runs object detection on one frame and prints results.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"cell-tracker/internal/detect"
	"cell-tracker/internal/image"
	"cell-tracker/internal/sequence"
)

func main() {
	imagePath := flag.String("image", "", "Path to frame (TIFF or PNG)")
	minArea := flag.Float64("min-area", 16, "Drop contours with area <= this")
	threshold := flag.Float64("threshold", 0, "Binarization level")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: detecttest -image <path> [-min-area 16] [-threshold 0]")
		os.Exit(1)
	}

	frame, err := image.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d-bit frame: %dx%d pixels\n", frame.Depth, frame.Width(), frame.Height())

	if seq, idx, ok := sequence.ParseFrameName(filepath.Base(frame.Path)); ok {
		fmt.Printf("Sequence %d, frame %d\n", seq, idx)
	} else {
		fmt.Println("File name carries no sequence number or frame index")
	}

	params := detect.DefaultParams().WithMinArea(*minArea).WithThreshold(*threshold)
	fmt.Printf("\nDetection parameters:\n")
	fmt.Printf("  Min area: %.1f px²\n", params.MinArea)
	fmt.Printf("  Threshold: %.0f\n", params.Threshold)

	result, err := detect.NewDetector(params).DetectImage(frame.Image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nDetected %d objects:\n", result.Count())
	fmt.Printf("%-8s %10s %10s %10s %10s\n", "Object", "Area", "X", "Y", "Degenerate")
	for _, d := range result.Detections {
		fmt.Printf("%-8d %10.1f %10.2f %10.2f %10v\n",
			d.Object, d.Area, d.Centroid.X, d.Centroid.Y, d.Degenerate)
	}

	if largest, ok := detect.SelectLargest(result.Detections); ok {
		fmt.Printf("\nLargest: object %d\n", largest.Object)
	}
	if nearest, ok := detect.SelectNearest(result.Detections, nil, result.Size); ok {
		fmt.Printf("Nearest to centre: object %d\n", nearest.Object)
	}
}

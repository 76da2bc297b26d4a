// Command spotsynth renders a synthetic calibration array to a 16-bit image,
// for exercising spotcal without a camera.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	img "spotarray/internal/image"
	"spotarray/internal/synth"
	"spotarray/internal/version"
	"spotarray/pkg/geometry"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	outPath := flag.String("out", "", "Output image (.tif, .tiff or .png)")
	width := flag.Int("width", 512, "Image width in pixels")
	height := flag.Int("height", 512, "Image height in pixels")
	nx := flag.Int("nx", 10, "Spots along x")
	ny := flag.Int("ny", 10, "Spots along y")
	pitch := flag.Float64("pitch", 20, "Lattice pitch in pixels")
	quarterTurns := flag.Int("rotate", 0, "Rotate the lattice by this many quarter turns")
	reflect := flag.Bool("reflect", false, "Swap the lattice axes")
	cx := flag.Float64("cx", -1, "Array center x (default: image center)")
	cy := flag.Float64("cy", -1, "Array center y (default: image center)")
	sigma := flag.Float64("sigma", 2, "Spot Gaussian sigma in pixels")
	background := flag.Float64("background", 0.02, "Background level relative to spot amplitude")
	noise := flag.Float64("noise", 0.01, "Uniform noise amplitude relative to spot amplitude")
	seed := flag.Int64("seed", 1, "Noise seed")
	full := flag.Bool("full", false, "Keep the two corner spots that mark orientation")
	flip := flag.Bool("flip", false, "Mirror the rendered image left to right")
	rotateImage := flag.Int("rotate-image", 0, "Rotate the rendered image by 90, 180 or 270 degrees")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("spotsynth"))
		return
	}
	if *outPath == "" {
		fmt.Println("Usage: spotsynth -out <path.tif> [-nx 10 -ny 10] [-pitch 20] [-rotate k] [-reflect] [-flip]")
		os.Exit(1)
	}

	lattice := geometry.Rot90(*quarterTurns)
	if *reflect {
		lattice = lattice.Mul(geometry.Swap())
	}

	arr := synth.DefaultArray()
	arr.Nx, arr.Ny = *nx, *ny
	arr.M = geometry.Diag(*pitch, *pitch).Mul(lattice)
	arr.B = geometry.Point2D{X: float64(*width) / 2, Y: float64(*height) / 2}
	if *cx >= 0 {
		arr.B.X = *cx
	}
	if *cy >= 0 {
		arr.B.Y = *cy
	}
	arr.Sigma = *sigma
	arr.Background = *background
	arr.Noise = *noise
	arr.Seed = *seed
	arr.KeepParitySpots = *full

	frame, arr, err := render(arr, *width, *height, *flip)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	if *rotateImage != 0 {
		frame, err = img.Rotate(frame, *rotateImage)
		if err != nil {
			log.Fatalf("Failed to rotate image: %v", err)
		}
	}

	if err := img.Save(*outPath, frame); err != nil {
		log.Fatalf("Failed to write image: %v", err)
	}
	fmt.Printf("Wrote %dx%d image with %dx%d array, M=%v b=(%.1f, %.1f) to %s\n",
		frame.Width, frame.Height, arr.Nx, arr.Ny, arr.M, arr.B.X, arr.B.Y, *outPath)
}

// render draws arr and optionally mirrors the frame. It returns the array as
// it appears in the output, with M and B mirrored too.
func render(arr synth.Array, width, height int, flip bool) (img.Frame, synth.Array, error) {
	frame := arr.Render(width, height)
	if !flip {
		return frame, arr, nil
	}
	frame, err := img.FlipHorizontal(frame)
	if err != nil {
		return img.Frame{}, arr, err
	}
	arr.M = geometry.Diag(-1, 1).Mul(arr.M)
	arr.B.X = float64(width-1) - arr.B.X
	return frame, arr, nil
}

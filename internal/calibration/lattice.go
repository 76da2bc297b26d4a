package calibration

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/cmplx"
	"sort"

	"spotarray/internal/blob"
	img "spotarray/internal/image"
	"spotarray/pkg/geometry"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/dsp/fourier"
)

// EstimateLattice estimates the lattice vectors of a spot array from the
// peaks of the frame's Fourier magnitude. The zero order and its four
// nearest neighbors fix the two reciprocal vectors, which are inverted into
// the real-space columns of M.
func EstimateLattice(frame img.Frame, opts Options) (geometry.Mat2, error) {
	amp, err := fourierMagnitude(frame)
	if err != nil {
		return geometry.Mat2{}, err
	}

	blobs, err := blob.Detect(amp, opts.PeakParams, blob.FilterNone)
	if err != nil && !errors.Is(err, blob.ErrNoBlobs) {
		return geometry.Mat2{}, fmt.Errorf("fourier peak detection: %w", err)
	}
	if len(blobs) < 5 {
		return geometry.Mat2{}, fmt.Errorf("%w (found %d)", ErrInsufficientPeaks, len(blobs))
	}

	// Normalized frequencies, zero order at the origin.
	type peak struct {
		k    geometry.Point2D
		dist float64
	}
	peaks := make([]peak, len(blobs))
	for i, b := range blobs {
		k := geometry.Point2D{
			X: -0.5 + b.Center.X/float64(amp.Width),
			Y: -0.5 + b.Center.Y/float64(amp.Height),
		}
		peaks[i] = peak{k: k, dist: k.Norm()}
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].dist < peaks[j].dist })
	peaks = peaks[:5]

	left, right, bottom, top := 0, 0, 0, 0
	for i, p := range peaks {
		if p.k.X < peaks[left].k.X {
			left = i
		}
		if p.k.X > peaks[right].k.X {
			right = i
		}
		if p.k.Y < peaks[bottom].k.Y {
			bottom = i
		}
		if p.k.Y > peaks[top].k.Y {
			top = i
		}
	}

	// A reciprocal vector k maps to the real-space vector k/|k|^2.
	x := reciprocal(peaks[left].k, peaks[right].k, peaks[left].dist, peaks[right].dist)
	y := reciprocal(peaks[bottom].k, peaks[top].k, peaks[bottom].dist, peaks[top].dist)
	m := geometry.FromColumns(x, y)

	if opts.Debug {
		fmt.Printf("Lattice: %d Fourier peaks on %dx%d grid, M=%v\n", len(blobs), amp.Width, amp.Height, m)
	}
	if m.Singular() {
		return geometry.Mat2{}, fmt.Errorf("%w: Fourier estimate %v", ErrSingularLattice, m)
	}
	return m, nil
}

func reciprocal(lo, hi geometry.Point2D, dLo, dHi float64) geometry.Point2D {
	d := dLo + dHi
	return hi.Sub(lo).Scale(2 / (d * d))
}

// fourierMagnitude returns the blurred, centered magnitude of the 2D DFT of
// the frame's 8-bit rendition, zero-padded to a square power-of-two size.
func fourierMagnitude(frame img.Frame) (img.Frame, error) {
	if frame.Empty() {
		return img.Frame{}, fmt.Errorf("empty frame")
	}
	n := 1 << int(math.Ceil(math.Log2(float64(max(frame.Width, frame.Height)))))

	eight := img.To8Bit(frame)
	grid := make([][]complex128, n)
	for y := range grid {
		grid[y] = make([]complex128, n)
		if y < frame.Height {
			for x := 0; x < frame.Width; x++ {
				grid[y][x] = complex(float64(eight[y*frame.Width+x]), 0)
			}
		}
	}
	fft2(grid)

	// Shift the zero order to (n/2, n/2).
	amp := img.NewFrame(n, n)
	half := n / 2
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			amp.Set((x+half)%n, (y+half)%n, cmplx.Abs(grid[y][x]))
		}
	}

	k := 2*int(math.Ceil(float64(n)/1000)) + 1
	src := img.ToMat64(amp)
	defer src.Close()
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(src, &blurred, image.Point{k, k}, 0, 0, gocv.BorderDefault)

	return img.FromMat(blurred)
}

// fft2 replaces a in place with its forward 2D DFT, transforming rows then columns.
func fft2(a [][]complex128) {
	h := len(a)
	w := len(a[0])

	rowFFT := fourier.NewCmplxFFT(w)
	for y := 0; y < h; y++ {
		rowFFT.Coefficients(a[y], a[y])
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = a[y][x]
		}
		colFFT.Coefficients(col, col)
		for y := 0; y < h; y++ {
			a[y][x] = col[y]
		}
	}
}

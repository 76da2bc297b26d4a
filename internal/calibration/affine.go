package calibration

import (
	"fmt"
	"math"
	"sort"

	img "spotarray/internal/image"
	"spotarray/internal/moment"
	"spotarray/internal/sample"
	"spotarray/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// FitAffine computes the least-squares affine transform taking src points
// onto dst points. Both output coordinates share the design matrix
// [x y 1], so x' and y' are solved together as two right-hand sides.
func FitAffine(src, dst geometry.Vectors) (geometry.AffineTransform, error) {
	n := src.Len()
	if n != dst.Len() {
		return geometry.AffineTransform{}, fmt.Errorf("point count mismatch: %d vs %d", n, dst.Len())
	}
	if n < 3 {
		return geometry.AffineTransform{}, fmt.Errorf("need at least 3 points, got %d", n)
	}

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	design := mat.NewDense(n, 3, nil)
	design.SetCol(0, src.X)
	design.SetCol(1, src.Y)
	design.SetCol(2, ones)

	target := mat.NewDense(n, 2, nil)
	target.SetCol(0, dst.X)
	target.SetCol(1, dst.Y)

	var qr mat.QR
	qr.Factorize(design)
	var rows mat.Dense
	if err := qr.SolveTo(&rows, false, target); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("affine fit: %w", err)
	}

	// Column k of the solution holds row k of [M | t].
	return geometry.AffineTransform{
		A: rows.At(0, 0), B: rows.At(1, 0), TX: rows.At(2, 0),
		C: rows.At(0, 1), D: rows.At(1, 1), TY: rows.At(2, 1),
	}, nil
}

// ResidualError returns the mean distance between transformed src points and dst.
func ResidualError(src, dst geometry.Vectors, t geometry.AffineTransform) float64 {
	if src.Len() != dst.Len() || src.Len() == 0 {
		return math.Inf(1)
	}

	var total float64
	for i := 0; i < src.Len(); i++ {
		total += t.Apply(src.At(i)).Distance(dst.At(i))
	}
	return total / float64(src.Len())
}

// Refine measures the centroid of every spot and refits M and b to them by
// least squares. Spots with less than half the median integrated intensity
// (such as the two parity spots) are left out.
func Refine(frame img.Frame, o Orientation, size Size, opts Options) (Orientation, error) {
	psf, _ := honeWindow(o.M)
	predicted := o.Project(size)

	// Window from the truncated prediction so the window center is a whole pixel.
	anchors := geometry.NewVectors(predicted.Len())
	for i := range anchors.X {
		anchors.X[i] = math.Trunc(predicted.X[i])
		anchors.Y[i] = math.Trunc(predicted.Y[i])
	}
	windows, err := sample.Take(frame.Array(), anchors, sample.Square(psf), sample.DefaultOptions().WithClip(true))
	if err != nil {
		return o, fmt.Errorf("refine: %w", err)
	}
	subtractFloor(windows)

	mass := moment.Normalization(windows, true)
	offsets := moment.Positions(windows, true, true)

	sorted := append([]float64(nil), mass...)
	sort.Float64s(sorted)
	cut := sorted[len(sorted)/2] / 2

	lattice := geometry.GridCoords(size.Nx, size.Ny)
	var src, dst []geometry.Point2D
	for i, m := range mass {
		if !(m > cut) {
			continue
		}
		src = append(src, lattice.At(i))
		dst = append(dst, geometry.Point2D{X: anchors.X[i] + offsets.X[i], Y: anchors.Y[i] + offsets.Y[i]})
	}

	srcV := geometry.VectorsFromPoints(src...)
	dstV := geometry.VectorsFromPoints(dst...)
	t, err := FitAffine(srcV, dstV)
	if err != nil {
		return o, fmt.Errorf("refine: %w", err)
	}

	refined := o
	refined.M = t.Linear()
	refined.B = t.Offset()
	if err := refined.Validate(); err != nil {
		return o, fmt.Errorf("refine: %w", err)
	}
	refined.Residual = ResidualError(srcV, dstV, t)

	if opts.Debug {
		fmt.Printf("Refine: %d/%d spots, residual %.3f px, M=%v\n", len(src), predicted.Len(), refined.Residual, refined.M)
	}
	return refined, nil
}

// subtractFloor removes each window's minimum finite value.
func subtractFloor(s img.Stack) {
	for n := 0; n < s.Count; n++ {
		f := s.Frame(n)
		lo, _ := f.Range()
		if math.IsNaN(lo) {
			continue
		}
		for i, v := range f.Data {
			f.Data[i] = v - lo
		}
	}
}

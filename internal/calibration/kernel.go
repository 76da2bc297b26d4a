package calibration

import (
	"fmt"
	"image"
	"math"

	img "spotarray/internal/image"
	"spotarray/pkg/geometry"

	"gocv.io/x/gocv"
)

// Kernel is an 8-bit template of a spot array: bright at every lattice site
// and dark on a ring of sites one pitch outside the array, so that the
// correlation peaks only when the whole array is framed.
type Kernel struct {
	Mat      gocv.Mat
	Width    int
	Height   int
	Centers  geometry.Vectors // spot positions in kernel pixels
	MaxPitch int
}

// Close releases the template Mat.
func (k *Kernel) Close() error {
	return k.Mat.Close()
}

// BuildKernel renders the template for lattice m and array size. The canvas
// spans the padded array plus one pitch; the array center sits at
// (Width/2, Height/2).
func BuildKernel(m geometry.Mat2, size Size) (*Kernel, error) {
	if err := size.validate(); err != nil {
		return nil, err
	}
	if m.Singular() {
		return nil, fmt.Errorf("%w: %v", ErrSingularLattice, m)
	}
	maxPitch := int(m.MaxPitch())
	if maxPitch < 1 {
		return nil, fmt.Errorf("%w: pitch %.3f is below one pixel", ErrSingularLattice, m.MaxPitch())
	}

	array := geometry.GridCoords(size.Nx, size.Ny).Transform(m, geometry.Point2D{})
	padded := geometry.GridCoords(size.Nx+2, size.Ny+2).Transform(m, geometry.Point2D{})

	loX, hiX := span(padded.X)
	loY, hiY := span(padded.Y)
	width := int(hiX - loX + float64(maxPitch))
	height := int(hiY - loY + float64(maxPitch))

	half := geometry.Point2D{X: float64(width) / 2, Y: float64(height) / 2}
	array = array.Shift(half)
	padded = padded.Shift(half)

	// Weights balance so the template integrates to roughly zero.
	area := float64(size.Count())
	perimeter := float64(2*(size.Nx+size.Ny) + 4)

	canvas := img.NewFrame(width, height)
	paint(canvas, padded, -area)
	paint(canvas, array, perimeter)

	mat, err := img.ToMat8(canvas)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	return &Kernel{
		Mat:      mat,
		Width:    width,
		Height:   height,
		Centers:  array,
		MaxPitch: maxPitch,
	}, nil
}

func paint(f img.Frame, pts geometry.Vectors, v float64) {
	for i := range pts.X {
		x, y := int(pts.X[i]), int(pts.Y[i])
		if f.InBounds(x, y) {
			f.Set(x, y, v)
		}
	}
}

func span(vals []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// MatchKernel correlates the kernel with an 8-bit image and returns the array
// center at the best match along with the normalized correlation score. A
// kernel that does not fit inside the image scores 0 at the origin.
func MatchKernel(image8 gocv.Mat, k *Kernel) (geometry.Point2D, float64) {
	if image8.Empty() || k.Width > image8.Cols() || k.Height > image8.Rows() {
		return geometry.Point2D{}, 0
	}

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(image8, k.Mat, &result, gocv.TmCcoeffNormed, mask)
	if result.Empty() {
		return geometry.Point2D{}, 0
	}

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	score := float64(maxVal)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = 0
	}
	return matchCenter(maxLoc, k), score
}

func matchCenter(loc image.Point, k *Kernel) geometry.Point2D {
	return geometry.Point2D{
		X: float64(loc.X) + float64(k.Width)/2,
		Y: float64(loc.Y) + float64(k.Height)/2,
	}
}

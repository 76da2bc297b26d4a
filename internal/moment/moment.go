// Package moment computes statistical moments of image stacks: spot mass,
// centroid, variance/shear and the shape measures derived from them.
//
// Coordinates are measured from the window center: pixel column i maps to
// x = i - (w-1)/2 and row j to y = j - (h-1)/2.
package moment

import (
	"errors"
	"fmt"
	"math"

	img "spotarray/internal/image"
	"spotarray/pkg/geometry"
)

// ErrCenterCount is returned when Centers holds neither one center nor one
// per image.
var ErrCenterCount = errors.New("moment: centers must hold 1 or one per image")

// Options controls a moment evaluation.
type Options struct {
	// Centers shifts the trial functions to (x-cx)^mx (y-cy)^my. Nil means
	// no shift, a single center is shared by every image, otherwise there
	// is one center per image.
	Centers []geometry.Point2D

	// Normalize divides each result by the image's total intensity.
	// Images of zero mass get a factor of zero.
	Normalize bool

	// NaNSum treats NaN pixels as zero, matching clipped windows from sample.Take.
	NaNSum bool
}

// DefaultOptions returns normalized moments about the window center.
func DefaultOptions() Options {
	return Options{Normalize: true}
}

// Moment returns M[mx,my] for every image in the stack.
func Moment(images img.Stack, mx, my int, opts Options) ([]float64, error) {
	if err := checkCenters(opts.Centers, images.Count); err != nil {
		return nil, err
	}
	return evaluate(images, mx, my, opts), nil
}

func checkCenters(centers []geometry.Point2D, count int) error {
	if len(centers) <= 1 || len(centers) == count {
		return nil
	}
	return fmt.Errorf("%w: got %d for %d images", ErrCenterCount, len(centers), count)
}

// evaluate assumes the centers were checked.
func evaluate(images img.Stack, mx, my int, opts Options) []float64 {
	out := make([]float64, images.Count)
	w, h := images.Width, images.Height

	var recip []float64
	if opts.Normalize {
		if mx == 0 && my == 0 {
			for i := range out {
				out[i] = 1
			}
			return out
		}
		recip = reciprocals(Normalization(images, opts.NaNSum))
	}

	xs := make([]float64, w)
	ys := make([]float64, h)
	for n := 0; n < images.Count; n++ {
		var c geometry.Point2D
		switch len(opts.Centers) {
		case 0:
		case 1:
			c = opts.Centers[0]
		default:
			c = opts.Centers[n]
		}
		for i := range xs {
			xs[i] = math.Pow(float64(i)-float64(w-1)/2-c.X, float64(mx))
		}
		for j := range ys {
			ys[j] = math.Pow(float64(j)-float64(h-1)/2-c.Y, float64(my))
		}

		frame := images.Frame(n)
		var sum float64
		for j := 0; j < h; j++ {
			row := frame.Data[j*w : (j+1)*w]
			for i, v := range row {
				if opts.NaNSum && math.IsNaN(v) {
					continue
				}
				sum += v * xs[i] * ys[j]
			}
		}
		if recip != nil {
			sum *= recip[n]
		}
		out[n] = sum
	}
	return out
}

// Normalization returns the zeroth moment (total mass) of every image.
func Normalization(images img.Stack, nanSum bool) []float64 {
	out := make([]float64, images.Count)
	for n := range out {
		var sum float64
		for _, v := range images.Frame(n).Data {
			if nanSum && math.IsNaN(v) {
				continue
			}
			sum += v
		}
		out[n] = sum
	}
	return out
}

// Normalize returns a copy of the stack with every image divided by its mass.
// Zero-mass images come back all zero.
func Normalize(images img.Stack, nanSum bool) img.Stack {
	recip := reciprocals(Normalization(images, nanSum))
	out := images.Clone()
	for n, r := range recip {
		f := out.Frame(n)
		for i := range f.Data {
			f.Data[i] *= r
		}
	}
	return out
}

// Positions returns the first moments (M10, M01), the intensity-weighted
// centroid of each image relative to its window center.
func Positions(images img.Stack, normalize, nanSum bool) geometry.Vectors {
	opts := Options{Normalize: normalize, NaNSum: nanSum}
	return geometry.Vectors{
		X: evaluate(images, 1, 0, opts),
		Y: evaluate(images, 0, 1, opts),
	}
}

// Variances holds the second central moments of each image.
type Variances struct {
	M20 []float64 // x variance
	M02 []float64 // y variance
	M11 []float64 // xy shear
}

// Len returns the number of images described.
func (v Variances) Len() int {
	return len(v.M20)
}

// ComputeVariances returns the second moments about centers, or about each
// image's own centroid when centers is nil. A single center is shared by
// every image.
func ComputeVariances(images img.Stack, centers []geometry.Point2D, normalize, nanSum bool) (Variances, error) {
	if err := checkCenters(centers, images.Count); err != nil {
		return Variances{}, err
	}
	if normalize {
		images = Normalize(images, nanSum)
	}
	if len(centers) == 0 {
		centers = Positions(images, false, nanSum).Points()
	}
	opts := Options{Centers: centers, NaNSum: nanSum}
	return Variances{
		M20: evaluate(images, 2, 0, opts),
		M02: evaluate(images, 0, 2, opts),
		M11: evaluate(images, 1, 1, opts),
	}, nil
}

// eigen returns the eigenvalues of [[m20 m11] [m11 m02]], major first.
func eigen(m20, m02, m11 float64) (major, minor float64) {
	halfTrace := (m20 + m02) / 2
	det := m20*m02 - m11*m11
	disc := math.Sqrt(math.Max(halfTrace*halfTrace-det, 0))
	return halfTrace + disc, halfTrace - disc
}

// Ellipticity returns 1 - λminor/λmajor for each variance triplet: 0 for a
// circular spot, 1 for a spot collapsed onto a line. Triplets with no spread
// (λmajor <= 0) yield NaN.
func Ellipticity(v Variances) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		major, minor := eigen(v.M20[i], v.M02[i], v.M11[i])
		if !(major > 0) {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Min(math.Max(1-minor/major, 0), 1)
	}
	return out
}

// EllipticityAngle returns atan2(λmajor - M02, M11) for each spot, the
// angle in radians of the major axis measured from the y axis toward x.
// A triplet without shear (M11 = 0) returns 0.
func EllipticityAngle(v Variances) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		if v.M11[i] == 0 {
			continue
		}
		major, _ := eigen(v.M20[i], v.M02[i], v.M11[i])
		out[i] = math.Atan2(major-v.M02[i], v.M11[i])
	}
	return out
}

func reciprocals(norm []float64) []float64 {
	out := make([]float64, len(norm))
	for i, n := range norm {
		if n != 0 {
			out[i] = 1 / n
		}
	}
	return out
}

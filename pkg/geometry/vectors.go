package geometry

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrVectorShape is returned when input cannot be read as a list of 2-vectors.
var ErrVectorShape = errors.New("geometry: input is not a 2-vector or 2-vector array")

// Vectors is an ordered list of 2-vectors in canonical 2xN layout.
type Vectors struct {
	X []float64
	Y []float64
}

// NewVectors allocates n zero vectors.
func NewVectors(n int) Vectors {
	return Vectors{X: make([]float64, n), Y: make([]float64, n)}
}

// VectorsFromPoints copies points into 2xN layout.
func VectorsFromPoints(points ...Point2D) Vectors {
	v := NewVectors(len(points))
	for i, p := range points {
		v.X[i], v.Y[i] = p.X, p.Y
	}
	return v
}

// Len returns the number of vectors.
func (v Vectors) Len() int {
	return len(v.X)
}

// At returns vector i.
func (v Vectors) At(i int) Point2D {
	return Point2D{X: v.X[i], Y: v.Y[i]}
}

// Points returns the vectors as a slice of points.
func (v Vectors) Points() []Point2D {
	pts := make([]Point2D, v.Len())
	for i := range pts {
		pts[i] = v.At(i)
	}
	return pts
}

// Shift returns a copy with offset added to every vector.
func (v Vectors) Shift(offset Point2D) Vectors {
	out := NewVectors(v.Len())
	for i := range v.X {
		out.X[i] = v.X[i] + offset.X
		out.Y[i] = v.Y[i] + offset.Y
	}
	return out
}

// Transform returns m·v + b for every vector.
func (v Vectors) Transform(m Mat2, b Point2D) Vectors {
	return NewAffine(m, b).ApplyAll(v)
}

// GridCoords returns the coordinates of an nx by ny grid centered on the
// origin with unit spacing, in row-major order (x varies fastest).
func GridCoords(nx, ny int) Vectors {
	v := NewVectors(nx * ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			k := j*nx + i
			v.X[k] = float64(i) - float64(nx-1)/2
			v.Y[k] = float64(j) - float64(ny-1)/2
		}
	}
	return v
}

// Dense returns the vectors as a 2xN gonum matrix, or nil when empty.
func (v Vectors) Dense() *mat.Dense {
	n := v.Len()
	if n == 0 {
		return nil
	}
	d := mat.NewDense(2, n, nil)
	for i := 0; i < n; i++ {
		d.Set(0, i, v.X[i])
		d.Set(1, i, v.Y[i])
	}
	return d
}

// FormatVectors normalizes the accepted vector representations to 2xN layout:
// a single Point2D, [2]float64 or []float64 of length 2, a slice of points or
// pairs, an existing Vectors value, or a gonum matrix shaped 2xN (preferred) or
// Nx2.
func FormatVectors(in any) (Vectors, error) {
	switch v := in.(type) {
	case Vectors:
		if len(v.X) != len(v.Y) {
			return Vectors{}, fmt.Errorf("%w: %d x values, %d y values", ErrVectorShape, len(v.X), len(v.Y))
		}
		return v, nil
	case Point2D:
		return VectorsFromPoints(v), nil
	case []Point2D:
		return VectorsFromPoints(v...), nil
	case [2]float64:
		return VectorsFromPoints(Point2D{X: v[0], Y: v[1]}), nil
	case []float64:
		if len(v) != 2 {
			return Vectors{}, fmt.Errorf("%w: flat slice of length %d", ErrVectorShape, len(v))
		}
		return VectorsFromPoints(Point2D{X: v[0], Y: v[1]}), nil
	case [][2]float64:
		out := NewVectors(len(v))
		for i, p := range v {
			out.X[i], out.Y[i] = p[0], p[1]
		}
		return out, nil
	case mat.Matrix:
		r, c := v.Dims()
		switch {
		case r == 2:
			out := NewVectors(c)
			for i := 0; i < c; i++ {
				out.X[i], out.Y[i] = v.At(0, i), v.At(1, i)
			}
			return out, nil
		case c == 2:
			out := NewVectors(r)
			for i := 0; i < r; i++ {
				out.X[i], out.Y[i] = v.At(i, 0), v.At(i, 1)
			}
			return out, nil
		}
		return Vectors{}, fmt.Errorf("%w: matrix of shape %dx%d", ErrVectorShape, r, c)
	}
	return Vectors{}, fmt.Errorf("%w: unsupported type %T", ErrVectorShape, in)
}

package fit

import (
	"math"

	img "spotarray/internal/image"
	"spotarray/internal/moment"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Function is a model surface evaluated at window coordinates, where (0, 0)
// is the window center.
type Function interface {
	Name() string
	ParamNames() []string
	Eval(x, y float64, params []float64) float64
}

// Guesser is implemented by functions that can derive starting parameters
// from the data. Guess returns a len(ParamNames()) x images.Count matrix,
// or nil when the data gives no starting point.
type Guesser interface {
	Guess(images img.Stack) *mat.Dense
}

// Gaussian2D is c + a*exp(-r^T S^-1 r / 2) with r = (x-x0, y-y0) and
// covariance S = [[wx^2, wxy], [wxy, wy^2]].
// Parameters are ordered x0, y0, a, c, wx, wy, wxy.
type Gaussian2D struct{}

func (Gaussian2D) Name() string { return "gaussian2d" }

func (Gaussian2D) ParamNames() []string {
	return []string{"x0", "y0", "a", "c", "wx", "wy", "wxy"}
}

// Eval limits |wxy| to just under wx*wy so the covariance stays invertible.
func (Gaussian2D) Eval(x, y float64, p []float64) float64 {
	x0, y0, a, c, wx, wy, wxy := p[0], p[1], p[2], p[3], p[4], p[5], p[6]
	sxx := wx * wx
	syy := wy * wy
	limit := 0.999 * math.Abs(wx*wy)
	if math.Abs(wxy) > limit {
		wxy = math.Copysign(limit, wxy)
	}
	det := sxx*syy - wxy*wxy
	if det <= 0 {
		return math.Inf(1)
	}
	dx := x - x0
	dy := y - y0
	arg := (syy*dx*dx - 2*wxy*dx*dy + sxx*dy*dy) / det
	return c + a*math.Exp(-arg/2)
}

// Guess uses image moments: the centroid, peak-to-floor amplitude, the
// minimum as offset, and the second moments as widths and shear.
func (Gaussian2D) Guess(images img.Stack) *mat.Dense {
	norm := moment.Normalize(images, false)
	centers := moment.Positions(norm, false, false)
	v, err := moment.ComputeVariances(norm, centers.Points(), false, false)
	if err != nil {
		return nil
	}

	g := mat.NewDense(7, images.Count, nil)
	for n := 0; n < images.Count; n++ {
		data := images.Frame(n).Data
		lo, hi := floats.Min(data), floats.Max(data)
		g.SetCol(n, []float64{
			centers.X[n],
			centers.Y[n],
			hi - lo,
			lo,
			math.Sqrt(v.M20[n]),
			math.Sqrt(v.M02[n]),
			v.M11[n],
		})
	}
	return g
}

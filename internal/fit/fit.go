// Package fit fits model surfaces such as a 2D Gaussian to every image of a
// stack by least squares.
package fit

import (
	"errors"
	"fmt"
	"log"
	"math"

	img "spotarray/internal/image"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ErrGuessShape is returned when a supplied guess does not have one column
// per image and one row per parameter.
var ErrGuessShape = errors.New("fit: guess shape mismatch")

// Options tunes the optimizer.
type Options struct {
	MaxIterations int     // Nelder-Mead iterations per image
	Tolerance     float64 // absolute convergence on the normalized cost
	Debug         bool
}

// DefaultOptions returns settings suited to spot-sized windows.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 20000,
		Tolerance:     1e-12,
	}
}

// Fit fits fn to every image with default options. See FitWithOptions.
func Fit(images img.Stack, fn Function, guess *mat.Dense) (*mat.Dense, error) {
	return FitWithOptions(images, fn, guess, DefaultOptions())
}

// FitWithOptions fits fn to every image of the stack. The result has one
// column per image: row 0 holds the coefficient of determination R^2 and
// rows 1.. the fitted parameters.
//
// A nil fn fits Gaussian2D. With a nil guess, fn's Guesser is used when it
// has one, otherwise all parameters start at 1. A fit that fails or yields
// non-finite parameters reports R^2 = NaN and keeps the starting guess (NaN
// when there was none).
func FitWithOptions(images img.Stack, fn Function, guess *mat.Dense, opts Options) (*mat.Dense, error) {
	if fn == nil {
		fn = Gaussian2D{}
	}
	nParams := len(fn.ParamNames())
	if guess == nil {
		if g, ok := fn.(Guesser); ok {
			guess = g.Guess(images)
		}
	}
	hasGuess := guess != nil
	if guess != nil {
		r, c := guess.Dims()
		if r != nParams || c != images.Count {
			return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrGuessShape, r, c, nParams, images.Count)
		}
	}

	result := mat.NewDense(nParams+1, images.Count, nil)
	for n := 0; n < images.Count; n++ {
		p0 := make([]float64, nParams)
		if hasGuess {
			mat.Col(p0, n, guess)
		} else {
			for i := range p0 {
				p0[i] = 1
			}
		}

		frame := images.Frame(n)
		popt, r2, err := fitOne(frame, fn, p0, opts)
		if err != nil {
			if opts.Debug {
				log.Printf("Fit: image %d: %v", n, err)
			}
			r2 = math.NaN()
			popt = p0
			if !hasGuess {
				for i := range popt {
					popt[i] = math.NaN()
				}
			}
		}

		result.Set(0, n, r2)
		for i, v := range popt {
			result.Set(i+1, n, v)
		}
	}
	return result, nil
}

// fitOne minimizes the squared residual of one image with Nelder-Mead and
// returns the parameters with their R^2.
func fitOne(frame img.Frame, fn Function, p0 []float64, opts Options) ([]float64, float64, error) {
	w, h := frame.Width, frame.Height
	xs := make([]float64, w*h)
	ys := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			xs[j*w+i] = float64(i) - float64(w-1)/2
			ys[j*w+i] = float64(j) - float64(h-1)/2
		}
	}
	data := frame.Data
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, fmt.Errorf("non-finite data")
		}
	}

	cost := func(p []float64) float64 {
		var ss float64
		for k, v := range data {
			r := v - fn.Eval(xs[k], ys[k], p)
			ss += r * r
		}
		return ss
	}

	// Scale the cost so the convergence tolerance is independent of exposure.
	scale := stat.Variance(data, nil) * float64(len(data))
	if !(scale > 0) {
		return nil, 0, fmt.Errorf("image has no contrast")
	}
	problem := optimize.Problem{
		Func: func(p []float64) float64 { return cost(p) / scale },
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance,
			Iterations: 200,
		},
	}
	res, err := optimize.Minimize(problem, p0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, 0, fmt.Errorf("optimizer: %w", err)
	}
	switch res.Status {
	case optimize.FunctionConvergence, optimize.MethodConverge:
	default:
		return nil, 0, fmt.Errorf("optimizer stopped with status %v", res.Status)
	}

	popt := res.X
	if !allFinite(popt) {
		return nil, 0, fmt.Errorf("non-finite parameters %v", popt)
	}

	ssRes := cost(popt)
	mean := stat.Mean(data, nil)
	var ssTot float64
	for _, v := range data {
		ssTot += (v - mean) * (v - mean)
	}
	return popt, 1 - ssRes/ssTot, nil
}

func allFinite(x []float64) bool {
	if floats.HasNaN(x) {
		return false
	}
	for _, v := range x {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

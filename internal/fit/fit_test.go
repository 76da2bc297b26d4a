package fit

import (
	"math"
	"testing"

	img "spotarray/internal/image"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func render(w, h int, fn Function, p []float64) img.Frame {
	f := img.NewFrame(w, h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			f.Set(i, j, fn.Eval(float64(i)-float64(w-1)/2, float64(j)-float64(h-1)/2, p))
		}
	}
	return f
}

// plane has no Guesser, so fits start from all ones.
type plane struct{}

func (plane) Name() string         { return "plane" }
func (plane) ParamNames() []string { return []string{"c", "gx", "gy"} }
func (plane) Eval(x, y float64, p []float64) float64 {
	return p[0] + p[1]*x + p[2]*y
}

func TestFit_Gaussian2D(t *testing.T) {
	tests := []struct {
		name   string
		params []float64
	}{
		{"round", []float64{0, 0, 1, 0, 2, 2, 0}},
		{"offset elliptical", []float64{0.7, -1.2, 5, 0.05, 2, 1.5, 0.6}},
		{"bright", []float64{-2, 1, 4000, 10, 1.8, 2.4, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := render(21, 21, Gaussian2D{}, tt.params).Stack()

			result, err := Fit(s, Gaussian2D{}, nil)
			require.NoError(t, err)
			r, c := result.Dims()
			assert.Equal(t, 8, r)
			assert.Equal(t, 1, c)

			assert.InDelta(t, 1, result.At(0, 0), 1e-3, "R^2")
			assert.InDelta(t, tt.params[0], result.At(1, 0), 0.05, "x0")
			assert.InDelta(t, tt.params[1], result.At(2, 0), 0.05, "y0")
			assert.InDelta(t, tt.params[2], result.At(3, 0), 0.02*tt.params[2], "a")
			assert.InDelta(t, math.Abs(tt.params[4]), math.Abs(result.At(5, 0)), 0.05, "wx")
		})
	}
}

func TestGaussian2D_Guess(t *testing.T) {
	p := []float64{1, -1, 2, 0, 2, 3, 0}
	s := render(41, 41, Gaussian2D{}, p).Stack()

	g := Gaussian2D{}.Guess(s)
	assert.InDelta(t, 1, g.At(0, 0), 1e-3)
	assert.InDelta(t, -1, g.At(1, 0), 1e-3)
	assert.InDelta(t, 2, g.At(2, 0), 1e-9)
	assert.InDelta(t, 2, g.At(4, 0), 1e-2)
	assert.InDelta(t, 3, g.At(5, 0), 1e-2)
	assert.InDelta(t, 0, g.At(6, 0), 1e-6)
}

func TestFit_Failure(t *testing.T) {
	flat := img.NewFrame(9, 9)
	for i := range flat.Data {
		flat.Data[i] = 3
	}
	good := render(9, 9, Gaussian2D{}, []float64{0, 0, 1, 0, 1.5, 1.5, 0})
	s, err := img.StackOf(flat, good)
	require.NoError(t, err)

	guess := mat.NewDense(7, 2, []float64{
		0, 0,
		0, 0,
		1, 1,
		0, 0,
		1.5, 1.5,
		1.5, 1.5,
		0, 0,
	})
	result, err := Fit(s, Gaussian2D{}, guess)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(result.At(0, 0)), "flat image cannot be fitted")
	assert.Equal(t, 1.5, result.At(5, 0), "failed fits keep the guess")
	assert.InDelta(t, 1, result.At(0, 1), 1e-4)

	noGuess, err := Fit(flat.Stack(), plane{}, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(noGuess.At(0, 0)))
	assert.True(t, math.IsNaN(noGuess.At(1, 0)), "no guess means NaN parameters")
}

func TestFit_NoGuesser(t *testing.T) {
	s := render(11, 7, plane{}, []float64{2, 0.5, -0.25}).Stack()
	result, err := Fit(s, plane{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, result.At(0, 0), 1e-6)
	assert.InDelta(t, 2, result.At(1, 0), 1e-3)
	assert.InDelta(t, 0.5, result.At(2, 0), 1e-3)
	assert.InDelta(t, -0.25, result.At(3, 0), 1e-3)
}

func TestFit_GuessShape(t *testing.T) {
	s := img.NewStack(2, 5, 5)
	_, err := Fit(s, Gaussian2D{}, mat.NewDense(7, 1, nil))
	assert.ErrorIs(t, err, ErrGuessShape)
}

func TestFit_DefaultFunction(t *testing.T) {
	s := render(21, 21, Gaussian2D{}, []float64{0.5, -0.5, 3, 0.1, 2, 1.5, 0.3}).Stack()

	want, err := Fit(s, Gaussian2D{}, nil)
	require.NoError(t, err)
	got, err := Fit(s, nil, nil)
	require.NoError(t, err)

	r, _ := got.Dims()
	assert.Equal(t, len(Gaussian2D{}.ParamNames())+1, r)
	assert.True(t, mat.Equal(want, got))
}

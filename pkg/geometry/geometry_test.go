package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMat2_InverseAndMul(t *testing.T) {
	m := Mat2{A: 20, B: 3, C: -2, D: 18}
	inv, ok := m.Inverse()
	require.True(t, ok)
	assert.True(t, m.Mul(inv).Equal(Identity2(), 1e-9))

	_, ok = Mat2{A: 1, B: 2, C: 2, D: 4}.Inverse()
	assert.False(t, ok, "dependent columns must be singular")
}

func TestMat2_Rot90(t *testing.T) {
	p := Point2D{X: 1, Y: 0}
	tests := []struct {
		k    int
		want Point2D
	}{
		{0, Point2D{X: 1, Y: 0}},
		{1, Point2D{X: 0, Y: 1}},
		{2, Point2D{X: -1, Y: 0}},
		{3, Point2D{X: 0, Y: -1}},
		{-1, Point2D{X: 0, Y: -1}},
		{5, Point2D{X: 0, Y: 1}},
	}
	for _, tt := range tests {
		got := Rot90(tt.k).MulVec(p)
		assert.InDelta(t, tt.want.X, got.X, 1e-12, "k=%d", tt.k)
		assert.InDelta(t, tt.want.Y, got.Y, 1e-12, "k=%d", tt.k)
	}
	assert.True(t, Rot90(1).Mul(Rot90(3)).Equal(Identity2(), 1e-12))
}

func TestMat2_Pitch(t *testing.T) {
	m := FromColumns(Point2D{X: 3, Y: 4}, Point2D{X: 0, Y: 12})
	assert.Equal(t, 5.0, m.MinPitch())
	assert.Equal(t, 12.0, m.MaxPitch())
	assert.Equal(t, Mat2{A: 0, B: 3, C: 12, D: 4}, m.SwapColumns())
}

func TestAffineTransform_Inverse(t *testing.T) {
	tr := NewAffine(Mat2{A: 2, B: 1, C: 0.5, D: 3}, Point2D{X: 10, Y: -4})
	inv, ok := tr.Inverse()
	require.True(t, ok)

	p := Point2D{X: 7, Y: 2}
	back := inv.Apply(tr.Apply(p))
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
}

func TestFormatVectors(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		wantX []float64
		wantY []float64
	}{
		{"point", Point2D{X: 1, Y: 2}, []float64{1}, []float64{2}},
		{"pair", [2]float64{3, 4}, []float64{3}, []float64{4}},
		{"flat", []float64{5, 6}, []float64{5}, []float64{6}},
		{"points", []Point2D{{X: 1, Y: 2}, {X: 3, Y: 4}}, []float64{1, 3}, []float64{2, 4}},
		{"2xN", mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}), []float64{1, 2, 3}, []float64{4, 5, 6}},
		{"Nx2", mat.NewDense(3, 2, []float64{1, 4, 2, 5, 3, 6}), []float64{1, 2, 3}, []float64{4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FormatVectors(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantX, v.X)
			assert.Equal(t, tt.wantY, v.Y)
		})
	}

	_, err := FormatVectors([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrVectorShape)
	_, err = FormatVectors("nope")
	assert.ErrorIs(t, err, ErrVectorShape)
	_, err = FormatVectors(mat.NewDense(3, 3, nil))
	assert.ErrorIs(t, err, ErrVectorShape)
}

func TestVectors_Transform(t *testing.T) {
	v := VectorsFromPoints(Point2D{X: 1, Y: 0}, Point2D{X: 0, Y: 1})
	out := v.Transform(Diag(10, 20), Point2D{X: 100, Y: 200})
	assert.Equal(t, []float64{110, 100}, out.X)
	assert.Equal(t, []float64{200, 220}, out.Y)
	assert.Nil(t, Vectors{}.Dense())
	assert.False(t, Point2D{X: math.NaN()}.IsFinite())
}

func TestGridCoords(t *testing.T) {
	c := GridCoords(3, 2)
	assert.Equal(t, []float64{-1, 0, 1, -1, 0, 1}, c.X)
	assert.Equal(t, []float64{-0.5, -0.5, -0.5, 0.5, 0.5, 0.5}, c.Y)
	assert.Equal(t, 0, GridCoords(0, 4).Len())
}

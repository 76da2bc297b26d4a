package calibration

import (
	"fmt"
	"testing"

	img "spotarray/internal/image"
	"spotarray/internal/synth"
	"spotarray/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPoint(t *testing.T, want, got geometry.Point2D, tol float64, msg ...any) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, msg...)
	assert.InDelta(t, want.Y, got.Y, tol, msg...)
}

func TestDetectArray_RoundTrip(t *testing.T) {
	arr := synth.DefaultArray()
	frame := arr.Render(512, 512)

	o, err := DetectArray(frame, SquareSize(10), DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, o)

	assert.True(t, o.ParitySuccess)
	assert.True(t, o.M.Equal(arr.M, 0.6), "M = %v", o.M)
	assertPoint(t, arr.B, o.B, 1.0)
}

func TestDetectArray_Rotated(t *testing.T) {
	arr := synth.DefaultArray()
	arr.M = geometry.Diag(20, 20).Mul(geometry.Rot90(1))
	frame := arr.Render(512, 512)

	o, err := DetectArray(frame, SquareSize(10), DefaultOptions())
	require.NoError(t, err)

	assert.True(t, o.ParitySuccess)
	assert.True(t, o.M.Equal(arr.M, 0.6), "M = %v", o.M)
	assertPoint(t, arr.B, o.B, 1.0)
}

func TestDetectArray_NonSquare(t *testing.T) {
	tests := []struct {
		name string
		m    geometry.Mat2
		tol  float64
	}{
		{"axes", geometry.Diag(20, 20), 0.6},
		{"mirrored x", geometry.Diag(-20, 20), 0.6},
		{"unequal pitch", geometry.Diag(18, 24), 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arr := synth.DefaultArray()
			arr.Nx, arr.Ny = 8, 6
			arr.M = tt.m
			arr.B = geometry.Point2D{X: 250, Y: 262}
			frame := arr.Render(512, 512)

			o, err := DetectArray(frame, Size{Nx: 8, Ny: 6}, DefaultOptions())
			require.NoError(t, err)

			assert.True(t, o.ParitySuccess)
			assert.True(t, o.M.Equal(arr.M, tt.tol), "M = %v", o.M)
			assertPoint(t, arr.B, o.B, 1.0)
		})
	}
}

func TestDetectArray_ParityFallback(t *testing.T) {
	arr := synth.DefaultArray()
	arr.KeepParitySpots = true
	frame := arr.Render(512, 512)

	o, err := DetectArray(frame, SquareSize(10), DefaultOptions())
	require.NoError(t, err)

	assert.False(t, o.ParitySuccess)
	assert.Equal(t, 0, o.Rotation)
	assert.False(t, o.Reflected)
	assert.InDelta(t, 20, o.M.MinPitch(), 0.6)
	assert.InDelta(t, 20, o.M.MaxPitch(), 0.6)
	assertPoint(t, arr.B, o.B, 1.0)
}

func TestDetectArray_Prior(t *testing.T) {
	arr := synth.DefaultArray()
	arr.B = geometry.Point2D{X: 240, Y: 270}
	frame := arr.Render(512, 512)

	prior := Orientation{M: arr.M, B: geometry.Point2D{X: 256, Y: 256}}
	o, err := DetectArray(frame, SquareSize(10), DefaultOptions().WithPrior(prior))
	require.NoError(t, err)

	assert.True(t, o.M.Equal(arr.M, 1e-12))
	assertPoint(t, arr.B, o.B, 1.0)
}

func TestDetectArray_Refine(t *testing.T) {
	arr := synth.DefaultArray()
	arr.B = geometry.Point2D{X: 255.5, Y: 256.25}
	frame := arr.Render(512, 512)

	opts := DefaultOptions()
	opts.RefineAffine = true
	o, err := DetectArray(frame, SquareSize(10), opts)
	require.NoError(t, err)

	assert.True(t, o.M.Equal(arr.M, 0.05), "M = %v", o.M)
	assertPoint(t, arr.B, o.B, 0.1)
	assert.Less(t, o.Residual, 0.1)
}

func TestDetectArray_Errors(t *testing.T) {
	frame := synth.DefaultArray().Render(512, 512)

	tests := []struct {
		name    string
		frame   img.Frame
		size    Size
		opts    Options
		wantErr error
	}{
		{"bad size", frame, Size{Nx: 0, Ny: 3}, DefaultOptions(), ErrBadSize},
		{"blank frame", img.NewFrame(256, 256), SquareSize(10), DefaultOptions(), ErrInsufficientPeaks},
		{"singular prior", frame, SquareSize(10), DefaultOptions().WithPrior(Orientation{M: geometry.Diag(20, 0)}), ErrSingularLattice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DetectArray(tt.frame, tt.size, tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := DetectArray(img.Frame{}, SquareSize(10), DefaultOptions())
	assert.Error(t, err)
}

func TestEstimateLattice(t *testing.T) {
	frame := synth.DefaultArray().Render(512, 512)

	m, err := EstimateLattice(frame, DefaultOptions())
	require.NoError(t, err)

	// Sign and order of the columns are left to the parity check.
	assert.InDelta(t, 20, m.MinPitch(), 0.6)
	assert.InDelta(t, 20, m.MaxPitch(), 0.6)
	assert.InDelta(t, 400, abs(m.Det()), 25)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestResolveParity_Square(t *testing.T) {
	size := SquareSize(10)
	base := geometry.Diag(20, 20)

	for _, d := range dihedrals() {
		t.Run(fmt.Sprintf("rot%d_ref%t", d.rotation, d.reflected), func(t *testing.T) {
			arr := synth.DefaultArray()
			arr.M = base.Mul(d.m)
			frame := arr.Render(512, 512)

			fixed, res := ResolveParity(frame, base, arr.B, size, DefaultOptions())
			require.True(t, res.Success, res.Reason)
			assert.True(t, res.Fix.Equal(d.m, 1e-12), "fix %v want %v", res.Fix, d.m)
			assert.True(t, fixed.Equal(arr.M, 1e-12))
			assert.Equal(t, d.rotation, res.Rotation)
			assert.Equal(t, d.reflected, res.Reflected)
		})
	}
}

func TestResolveParity_NonSquare(t *testing.T) {
	size := Size{Nx: 8, Ny: 6}
	base := geometry.Diag(20, 20)

	for _, d := range dihedrals() {
		// Only transforms that keep the axes can map a rectangle onto itself.
		if d.m.B != 0 {
			continue
		}
		t.Run(fmt.Sprintf("rot%d_ref%t", d.rotation, d.reflected), func(t *testing.T) {
			arr := synth.DefaultArray()
			arr.Nx, arr.Ny = size.Nx, size.Ny
			arr.M = base.Mul(d.m)
			frame := arr.Render(512, 512)

			fixed, res := ResolveParity(frame, base, arr.B, size, DefaultOptions())
			require.True(t, res.Success, res.Reason)
			assert.True(t, fixed.Equal(arr.M, 1e-12))
		})
	}
}

func TestResolveParity_Failures(t *testing.T) {
	base := geometry.Diag(20, 20)

	full := synth.DefaultArray()
	full.KeepParitySpots = true

	tests := []struct {
		name  string
		frame img.Frame
		size  Size
	}{
		{"no missing spots", full.Render(512, 512), SquareSize(10)},
		{"too small", synth.DefaultArray().Render(512, 512), Size{Nx: 1, Ny: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed, res := ResolveParity(tt.frame, base, full.B, tt.size, DefaultOptions())
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Reason)
			assert.True(t, fixed.Equal(base, 0))
			assert.True(t, res.Fix.Equal(geometry.Identity2(), 0))
		})
	}
}

func TestRankHypotheses(t *testing.T) {
	h := func(name string, parity bool, score float64) Hypothesis[string] {
		return Hypothesis[string]{Value: name, ParitySuccess: parity, Score: score}
	}

	tests := []struct {
		name string
		in   []Hypothesis[string]
		want string
	}{
		{"single", []Hypothesis[string]{h("a", false, 0.1)}, "a"},
		{"parity beats score", []Hypothesis[string]{h("a", false, 0.9), h("b", true, 0.2)}, "b"},
		{"score among parity", []Hypothesis[string]{h("a", true, 0.3), h("b", true, 0.6)}, "b"},
		{"score among failures", []Hypothesis[string]{h("a", false, 0.7), h("b", false, 0.6)}, "a"},
		{"tie keeps first", []Hypothesis[string]{h("a", true, 0.5), h("b", true, 0.5)}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, err := RankHypotheses(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.in[i].Value)
		})
	}

	_, err := RankHypotheses[string](nil)
	assert.ErrorIs(t, err, ErrNoHypotheses)
}

func TestHone(t *testing.T) {
	arr := synth.DefaultArray()
	frame := arr.Render(512, 512)

	start := Orientation{M: arr.M, B: arr.B.Add(geometry.Point2D{X: -3, Y: 2})}
	for _, policy := range []OutlierPolicy{OutlierMean, OutlierMAD} {
		t.Run(policy.String(), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Outliers = policy
			o, err := Hone(frame, start, SquareSize(10), opts)
			require.NoError(t, err)
			assertPoint(t, arr.B, o.B, 0.5)
			assert.True(t, o.M.Equal(start.M, 0))
		})
	}
}

func TestHoneWindow(t *testing.T) {
	tests := []struct {
		m     geometry.Mat2
		psf   int
		sigma float64
	}{
		{geometry.Diag(20, 20), 21, 3},
		{geometry.Diag(20, 35), 21, 3},
		{geometry.Diag(7.9, 10), 7, 1},
		{geometry.Diag(40, 40), 41, 5},
	}
	for _, tt := range tests {
		psf, sigma := honeWindow(tt.m)
		assert.Equal(t, tt.psf, psf, "M=%v", tt.m)
		assert.Equal(t, tt.sigma, sigma, "M=%v", tt.m)
	}
}

func TestInliers(t *testing.T) {
	dx := []float64{1, 1, 1, 1, 9}
	dy := []float64{0, 0, 0, 0, 0}

	assert.Equal(t, []bool{true, true, true, true, false}, inliers(dx, dy, OutlierMean))
	assert.Equal(t, []bool{true, true, true, true, false}, inliers(dx, dy, OutlierMAD))
}

func TestBuildKernel(t *testing.T) {
	k, err := BuildKernel(geometry.Diag(20, 20), SquareSize(10))
	require.NoError(t, err)
	defer k.Close()

	// Padded array spans 11 pitches, plus one pitch of margin.
	assert.Equal(t, 240, k.Width)
	assert.Equal(t, 240, k.Height)
	assert.Equal(t, 20, k.MaxPitch)
	assert.Equal(t, 100, k.Centers.Len())
	assert.Equal(t, k.Width, k.Mat.Cols())
	assert.Equal(t, k.Height, k.Mat.Rows())

	_, err = BuildKernel(geometry.Diag(20, 0), SquareSize(10))
	assert.ErrorIs(t, err, ErrSingularLattice)
	_, err = BuildKernel(geometry.Diag(0.5, 0.5), SquareSize(10))
	assert.ErrorIs(t, err, ErrSingularLattice)
	_, err = BuildKernel(geometry.Diag(20, 20), Size{})
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestMatchKernel(t *testing.T) {
	arr := synth.DefaultArray()
	arr.B = geometry.Point2D{X: 230, Y: 280}
	image8, err := img.ToMat8(arr.Render(512, 512))
	require.NoError(t, err)
	defer image8.Close()

	k, err := BuildKernel(arr.M, SquareSize(10))
	require.NoError(t, err)
	defer k.Close()

	b, score := MatchKernel(image8, k)
	assert.Greater(t, score, 0.0)
	assertPoint(t, arr.B, b, 1.0)

	big, err := BuildKernel(geometry.Diag(60, 60), SquareSize(10))
	require.NoError(t, err)
	defer big.Close()
	b, score = MatchKernel(image8, big)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, geometry.Point2D{}, b)
}

func TestFitAffine(t *testing.T) {
	want := geometry.NewAffine(geometry.Mat2{A: 19.5, B: -1.2, C: 0.8, D: 20.3}, geometry.Point2D{X: 250, Y: 262})
	src := geometry.GridCoords(4, 3)
	dst := want.ApplyAll(src)

	got, err := FitAffine(src, dst)
	require.NoError(t, err)
	assert.True(t, got.Linear().Equal(want.Linear(), 1e-9))
	assertPoint(t, want.Offset(), got.Offset(), 1e-9)
	assert.InDelta(t, 0, ResidualError(src, dst, got), 1e-9)

	_, err = FitAffine(src, geometry.GridCoords(2, 2))
	assert.Error(t, err)
	_, err = FitAffine(geometry.GridCoords(2, 1), geometry.GridCoords(2, 1))
	assert.Error(t, err)

	// Points on one line leave the fit underdetermined.
	line := geometry.GridCoords(4, 1)
	_, err = FitAffine(line, want.ApplyAll(line))
	assert.Error(t, err)
}

func TestOrientation(t *testing.T) {
	o := Orientation{M: geometry.Diag(10, 20), B: geometry.Point2D{X: 100, Y: 50}}
	pts := o.Project(Size{Nx: 2, Ny: 2})
	require.Equal(t, 4, pts.Len())
	assertPoint(t, geometry.Point2D{X: 95, Y: 40}, pts.At(0), 1e-12)
	assertPoint(t, geometry.Point2D{X: 105, Y: 60}, pts.At(3), 1e-12)

	assert.NoError(t, o.Validate())
	assert.ErrorIs(t, Orientation{}.Validate(), ErrSingularLattice)
}

func TestOrientation_Locate(t *testing.T) {
	o := Orientation{M: geometry.Diag(10, 20), B: geometry.Point2D{X: 100, Y: 50}}
	size := Size{Nx: 2, Ny: 2}

	tests := []struct {
		name  string
		pixel geometry.Point2D
		want  geometry.Point2D
		index int
	}{
		{"on site", geometry.Point2D{X: 105, Y: 60}, geometry.Point2D{X: 0.5, Y: 0.5}, 3},
		{"near site", geometry.Point2D{X: 96, Y: 41}, geometry.Point2D{X: -0.4, Y: -0.45}, 0},
		{"center", geometry.Point2D{X: 100, Y: 50}, geometry.Point2D{}, 3},
		{"outside", geometry.Point2D{X: 200, Y: 50}, geometry.Point2D{X: 10, Y: 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, index, err := o.Locate(tt.pixel, size)
			require.NoError(t, err)
			assertPoint(t, tt.want, c, 1e-12)
			assert.Equal(t, tt.index, index)
		})
	}

	// Every projected spot maps back to its own index.
	arr := Orientation{M: geometry.Mat2{A: 19.5, B: -1.2, C: 0.8, D: 20.3}, B: geometry.Point2D{X: 250, Y: 262}}
	big := Size{Nx: 5, Ny: 3}
	pts := arr.Project(big)
	for i := 0; i < pts.Len(); i++ {
		_, index, err := arr.Locate(pts.At(i), big)
		require.NoError(t, err)
		assert.Equal(t, i, index)
	}

	_, _, err := Orientation{}.Locate(geometry.Point2D{}, size)
	assert.ErrorIs(t, err, ErrSingularLattice)
}

func TestParseOutlierPolicy(t *testing.T) {
	for _, p := range []OutlierPolicy{OutlierMean, OutlierMAD} {
		got, err := ParseOutlierPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParseOutlierPolicy("median")
	assert.Error(t, err)
}

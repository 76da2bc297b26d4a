// Package synth renders synthetic camera frames: Gaussian spots and
// rectangular spot arrays laid out the way a calibration pattern is projected.
package synth

import (
	"math"
	"math/rand"

	img "spotarray/internal/image"
	"spotarray/pkg/geometry"
)

// Spot is a 2D Gaussian.
type Spot struct {
	Center    geometry.Point2D
	Amplitude float64
	SigmaX    float64
	SigmaY    float64
	Angle     float64 // rotation of the x axis, radians
}

// RoundSpot returns an isotropic spot of unit amplitude.
func RoundSpot(center geometry.Point2D, sigma float64) Spot {
	return Spot{Center: center, Amplitude: 1, SigmaX: sigma, SigmaY: sigma}
}

// Render draws spots onto a new frame filled with background. Each spot is
// evaluated within 5 sigma of its center.
func Render(width, height int, background float64, spots ...Spot) img.Frame {
	f := img.NewFrame(width, height)
	if background != 0 {
		for i := range f.Data {
			f.Data[i] = background
		}
	}
	for _, s := range spots {
		addSpot(f, s)
	}
	return f
}

func addSpot(f img.Frame, s Spot) {
	reach := 5 * math.Max(s.SigmaX, s.SigmaY)
	x0 := max(0, int(math.Floor(s.Center.X-reach)))
	x1 := min(f.Width-1, int(math.Ceil(s.Center.X+reach)))
	y0 := max(0, int(math.Floor(s.Center.Y-reach)))
	y1 := min(f.Height-1, int(math.Ceil(s.Center.Y+reach)))

	cos, sin := math.Cos(s.Angle), math.Sin(s.Angle)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dx := float64(x) - s.Center.X
			dy := float64(y) - s.Center.Y
			u := cos*dx + sin*dy
			v := -sin*dx + cos*dy
			f.Add(x, y, s.Amplitude*math.Exp(-u*u/(2*s.SigmaX*s.SigmaX)-v*v/(2*s.SigmaY*s.SigmaY)))
		}
	}
}

// Array describes a rectangular calibration array of Nx by Ny spots placed at
// pixel M*c + B, where c runs over the centered lattice coordinates.
type Array struct {
	Nx, Ny int
	M      geometry.Mat2
	B      geometry.Point2D

	Sigma      float64
	Amplitude  float64
	Background float64

	// Noise adds uniform noise in [0, Noise) with the given seed.
	Noise float64
	Seed  int64

	// KeepParitySpots renders the full array instead of dropping the two
	// spots that mark the (+x, +y) corner.
	KeepParitySpots bool
}

// DefaultArray returns a 10x10 array with a 20 pixel pitch centered in a
// 512x512 frame.
func DefaultArray() Array {
	return Array{
		Nx:        10,
		Ny:        10,
		M:         geometry.Diag(20, 20),
		B:         geometry.Point2D{X: 256, Y: 256},
		Sigma:     2,
		Amplitude: 1,
	}
}

// ParityIndices returns the row-major indices of the two spots left out of a
// calibration array: the (+x, +y) corner and its -x neighbor.
func ParityIndices(nx, ny int) (corner, neighbor int) {
	return nx*ny - 1, nx*ny - 2
}

// Positions returns the pixel position of every spot, including the parity spots.
func (a Array) Positions() geometry.Vectors {
	return geometry.GridCoords(a.Nx, a.Ny).Transform(a.M, a.B)
}

// Render draws the array into a width x height frame.
func (a Array) Render(width, height int) img.Frame {
	pos := a.Positions()
	corner, neighbor := ParityIndices(a.Nx, a.Ny)
	amp := a.Amplitude
	if amp == 0 {
		amp = 1
	}

	spots := make([]Spot, 0, pos.Len())
	for i := 0; i < pos.Len(); i++ {
		if !a.KeepParitySpots && (i == corner || i == neighbor) {
			continue
		}
		spots = append(spots, Spot{Center: pos.At(i), Amplitude: amp, SigmaX: a.Sigma, SigmaY: a.Sigma})
	}
	f := Render(width, height, a.Background, spots...)

	if a.Noise > 0 {
		rng := rand.New(rand.NewSource(a.Seed))
		for i := range f.Data {
			f.Data[i] += a.Noise * rng.Float64()
		}
	}
	return f
}

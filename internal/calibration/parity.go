package calibration

import (
	"fmt"
	"math"
	"sort"

	img "spotarray/internal/image"
	"spotarray/internal/sample"
	"spotarray/pkg/geometry"
)

// ParityResult describes the outcome of the orientation check.
type ParityResult struct {
	Success bool
	Reason  string // why the check failed

	// Fix is the dihedral transform applied to the lattice: M_fixed = M * Fix.
	Fix       geometry.Mat2
	Rotation  int // degrees
	Reflected bool
}

// dihedral is one of the eight symmetries of the square lattice.
type dihedral struct {
	m         geometry.Mat2
	rotation  int
	reflected bool
}

func dihedrals() []dihedral {
	var out []dihedral
	for _, reflected := range []bool{false, true} {
		for k := 0; k < 4; k++ {
			m := geometry.Rot90(k)
			if reflected {
				m = m.Mul(geometry.Swap())
			}
			out = append(out, dihedral{m: m, rotation: 90 * k, reflected: reflected})
		}
	}
	return out
}

// ResolveParity fixes the rotation and reflection of lattice m using the two
// spots a calibration array leaves out: the (+x, +y) corner and its -x
// neighbor. It integrates the 8-bit intensity around every expected spot,
// expects exactly two dim spots, one of them at a corner, and returns the
// lattice rotated so those spots land at their canonical sites.
//
// On failure m is returned unchanged with Success false.
func ResolveParity(frame img.Frame, m geometry.Mat2, b geometry.Point2D, size Size, opts Options) (geometry.Mat2, ParityResult) {
	fail := func(format string, args ...any) (geometry.Mat2, ParityResult) {
		return m, ParityResult{Reason: fmt.Sprintf(format, args...), Fix: geometry.Identity2()}
	}

	if size.Count() < 3 {
		return fail("array %s is too small for a parity check", size)
	}

	w := max(1, int(0.1*float64(int(m.MaxPitch()))))
	positions := geometry.GridCoords(size.Nx, size.Ny).Transform(m, b)
	powers, err := sample.TakeIntegrated(
		img.Rescale8(frame).Array(),
		positions,
		sample.Square(2*w+1),
		sample.DefaultOptions().WithClip(true).WithNaNSum(true),
	)
	if err != nil {
		return fail("integrating spots: %v", err)
	}

	sorted := append([]float64(nil), powers...)
	sort.Float64s(sorted)
	threshold := sorted[1]
	var dim []int
	for i, p := range powers {
		if p <= threshold {
			dim = append(dim, i)
		}
	}
	if len(dim) != 2 {
		return fail("expected two dim spots, found %d", len(dim))
	}

	// Lattice coordinates of the dim spots, and which of them is a corner.
	coords := geometry.GridCoords(size.Nx, size.Ny)
	isCorner := func(i int) bool {
		ix, iy := i%size.Nx, i/size.Nx
		return (ix == 0 || ix == size.Nx-1) && (iy == 0 || iy == size.Ny-1)
	}
	var corner, neighbor geometry.Point2D
	switch {
	case isCorner(dim[0]) && !isCorner(dim[1]):
		corner, neighbor = coords.At(dim[0]), coords.At(dim[1])
	case isCorner(dim[1]) && !isCorner(dim[0]):
		corner, neighbor = coords.At(dim[1]), coords.At(dim[0])
	default:
		return fail("expected exactly one dim corner")
	}

	hx := float64(size.Nx-1) / 2
	hy := float64(size.Ny-1) / 2
	wantCorner := geometry.Point2D{X: hx, Y: hy}
	wantNeighbor := geometry.Point2D{X: hx - 1, Y: hy}

	for _, d := range dihedrals() {
		if near(d.m.MulVec(wantCorner), corner) && near(d.m.MulVec(wantNeighbor), neighbor) {
			fixed := m.Mul(d.m)
			if opts.Debug {
				fmt.Printf("Parity: dim corner at (%.1f, %.1f), rotation=%d reflected=%t\n",
					corner.X, corner.Y, d.rotation, d.reflected)
			}
			return fixed, ParityResult{
				Success:   true,
				Fix:       d.m,
				Rotation:  d.rotation,
				Reflected: d.reflected,
			}
		}
	}
	return fail("second dim spot at (%.1f, %.1f) is not beside the dim corner (%.1f, %.1f)",
		neighbor.X, neighbor.Y, corner.X, corner.Y)
}

func near(a, b geometry.Point2D) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

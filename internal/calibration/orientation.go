package calibration

import (
	"fmt"
	"math"

	"spotarray/pkg/geometry"
)

// Orientation maps centered lattice coordinates c of a spot array to camera
// pixels as M*c + B. The columns of M are the lattice vectors; B is the pixel
// position of the array center.
type Orientation struct {
	M geometry.Mat2    `json:"M"`
	B geometry.Point2D `json:"b"`

	// Diagnostics from the run that produced the orientation.
	ParitySuccess bool    `json:"parity_success"`
	Score         float64 `json:"score"`
	Rotation      int     `json:"rotation"` // degrees applied by the parity fix
	Reflected     bool    `json:"reflected"`
	Residual      float64 `json:"residual,omitempty"` // mean spot misfit after Refine, pixels
}

// Transform returns the orientation as an affine transform.
func (o Orientation) Transform() geometry.AffineTransform {
	return geometry.NewAffine(o.M, o.B)
}

// Project returns the pixel position of every spot of an array of the given
// size, in row-major lattice order.
func (o Orientation) Project(size Size) geometry.Vectors {
	return geometry.GridCoords(size.Nx, size.Ny).Transform(o.M, o.B)
}

// Locate maps a pixel back to centered lattice coordinates and returns the
// row-major index of the nearest site of an array of the given size. The
// index is -1 when the pixel lies beyond half a pitch outside the array.
func (o Orientation) Locate(p geometry.Point2D, size Size) (geometry.Point2D, int, error) {
	inv, ok := o.Transform().Inverse()
	if !ok {
		return geometry.Point2D{}, -1, fmt.Errorf("%w: %v", ErrSingularLattice, o.M)
	}
	c := inv.Apply(p)
	ix := int(math.Round(c.X + float64(size.Nx-1)/2))
	iy := int(math.Round(c.Y + float64(size.Ny-1)/2))
	if ix < 0 || ix >= size.Nx || iy < 0 || iy >= size.Ny {
		return c, -1, nil
	}
	return c, iy*size.Nx + ix, nil
}

// Validate checks that the lattice vectors span the plane.
func (o Orientation) Validate() error {
	if o.M.Singular() {
		return fmt.Errorf("%w: %v", ErrSingularLattice, o.M)
	}
	return nil
}

func (o Orientation) String() string {
	return fmt.Sprintf("M=%v b=(%.2f, %.2f) parity=%t score=%.3f", o.M, o.B.X, o.B.Y, o.ParitySuccess, o.Score)
}

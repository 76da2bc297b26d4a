package calibration

import (
	"errors"
	"fmt"

	"spotarray/internal/blob"
)

var (
	// ErrInsufficientPeaks is returned when the Fourier transform of the frame
	// shows fewer than five peaks (the zero order plus four neighbors).
	ErrInsufficientPeaks = errors.New("calibration: not enough spots found in Fourier transform; expected five, check exposure time")

	// ErrSingularLattice is returned when the lattice vectors are degenerate.
	ErrSingularLattice = errors.New("calibration: singular lattice matrix")

	// ErrBadSize is returned for arrays with fewer than one spot per axis.
	ErrBadSize = errors.New("calibration: array size must be positive")
)

// Size is the number of spots of a rectangular array along x and y.
type Size struct {
	Nx int `json:"nx"`
	Ny int `json:"ny"`
}

// SquareSize returns an n x n array size.
func SquareSize(n int) Size {
	return Size{Nx: n, Ny: n}
}

// Count returns the number of lattice sites.
func (s Size) Count() int {
	return s.Nx * s.Ny
}

// Square reports whether the array has as many columns as rows.
func (s Size) Square() bool {
	return s.Nx == s.Ny
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Nx, s.Ny)
}

func (s Size) validate() error {
	if s.Nx < 1 || s.Ny < 1 {
		return fmt.Errorf("%w: got %s", ErrBadSize, s)
	}
	return nil
}

// OutlierPolicy decides which per-spot offsets are ignored while honing.
type OutlierPolicy int

const (
	// OutlierMean drops offsets larger than the mean offset magnitude.
	OutlierMean OutlierPolicy = iota
	// OutlierMAD drops offsets beyond the median plus three scaled median
	// absolute deviations.
	OutlierMAD
)

func (p OutlierPolicy) String() string {
	switch p {
	case OutlierMean:
		return "mean"
	case OutlierMAD:
		return "mad"
	default:
		return "unknown"
	}
}

// ParseOutlierPolicy maps "mean" or "mad" to a policy.
func ParseOutlierPolicy(s string) (OutlierPolicy, error) {
	switch s {
	case "", "mean":
		return OutlierMean, nil
	case "mad":
		return OutlierMAD, nil
	default:
		return OutlierMean, fmt.Errorf("calibration: unknown outlier policy %q", s)
	}
}

// Options configures DetectArray.
type Options struct {
	// Prior skips Fourier lattice estimation and the parity check, reusing
	// the prior's lattice vectors. Its offset is ignored.
	Prior *Orientation

	// OrientationCheck resolves rotation and reflection from the two spots
	// missing at one corner of the array.
	OrientationCheck bool

	HonePasses int           // refinement passes after template matching
	Outliers   OutlierPolicy // offset rejection while honing

	// RefineAffine fits M and b to measured spot centroids after honing.
	RefineAffine bool

	// PeakParams configures blob detection in the Fourier magnitude.
	PeakParams blob.Params

	Debug bool // Enable debug output
}

// DefaultOptions returns options for a fresh calibration with parity check
// and two honing passes.
func DefaultOptions() Options {
	return Options{
		OrientationCheck: true,
		HonePasses:       2,
		Outliers:         OutlierMean,
		PeakParams:       DefaultPeakParams(),
	}
}

// DefaultPeakParams returns blob parameters for Fourier peaks: the bright
// default sweep starting at 50 so that sinc side lobes are ignored.
func DefaultPeakParams() blob.Params {
	return blob.DefaultParams().WithThresholds(50, 255, 10)
}

// WithPrior returns a copy of opts that reuses a known orientation.
func (o Options) WithPrior(prior Orientation) Options {
	o.Prior = &prior
	return o
}

// WithHonePasses returns a copy of opts with n refinement passes.
func (o Options) WithHonePasses(n int) Options {
	o.HonePasses = n
	return o
}

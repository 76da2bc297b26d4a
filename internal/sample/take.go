// Package sample crops fixed-size integration regions around points, the
// primitive used to gather per-spot data from spot arrays.
package sample

import (
	"errors"
	"fmt"
	"math"

	img "spotarray/internal/image"
	"spotarray/pkg/geometry"
)

var (
	// ErrBadRank is returned for input that is neither a single image nor a stack.
	ErrBadRank = errors.New("sample: images must have rank 2 or 3")

	// ErrOutOfRange is returned when a region leaves the image and clipping is off.
	ErrOutOfRange = errors.New("sample: region out of range")

	// ErrBadRegion is returned for non-positive region sizes.
	ErrBadRegion = errors.New("sample: region size must be positive")
)

// Region is the size of an integration window in pixels.
type Region struct {
	Width  int
	Height int
}

// Square returns an n x n region.
func Square(n int) Region {
	return Region{Width: n, Height: n}
}

// Options controls how windows are anchored and how out-of-range pixels are handled.
type Options struct {
	// Centered anchors the window on the point, spanning [-w/2, w-w/2) with
	// integer division. Otherwise the point is the window's lower-left corner.
	Centered bool

	// Clip allows windows to leave the image. Out-of-range samples become NaN.
	Clip bool

	// PerImage keeps the windows of every image in a stack separate
	// (image-major). By default windows are summed across the stack.
	PerImage bool

	// NaNSum skips NaN samples in TakeIntegrated instead of propagating them.
	NaNSum bool
}

// DefaultOptions returns centered, non-clipping sampling.
func DefaultOptions() Options {
	return Options{Centered: true}
}

// WithClip returns a copy of opts with clipping set.
func (o Options) WithClip(clip bool) Options {
	o.Clip = clip
	return o
}

// WithNaNSum returns a copy of opts that integrates only in-range samples.
func (o Options) WithNaNSum(nanSum bool) Options {
	o.NaNSum = nanSum
	return o
}

// Take crops a size window around each point from a single image (rank 2) or a
// stack (rank 3), returning one window per point.
func Take(images img.Array, points geometry.Vectors, size Region, opts Options) (img.Stack, error) {
	frames, err := framesOf(images)
	if err != nil {
		return img.Stack{}, err
	}
	if size.Width <= 0 || size.Height <= 0 {
		return img.Stack{}, fmt.Errorf("%w: %dx%d", ErrBadRegion, size.Width, size.Height)
	}

	k := points.Len()
	count := k
	if opts.PerImage {
		count = k * len(frames)
	}
	out := img.NewStack(count, size.Width, size.Height)
	if k == 0 {
		return out, nil
	}

	offX, offY := 0, 0
	if opts.Centered {
		offX, offY = size.Width/2, size.Height/2
	}
	width, height := frames[0].Width, frames[0].Height
	area := size.Width * size.Height

	for i := 0; i < k; i++ {
		px, py := points.X[i], points.Y[i]
		for wy := 0; wy < size.Height; wy++ {
			y := int(float64(wy-offY) + py)
			for wx := 0; wx < size.Width; wx++ {
				x := int(float64(wx-offX) + px)

				inside := x >= 0 && x < width && y >= 0 && y < height
				if !inside && !opts.Clip {
					return img.Stack{}, fmt.Errorf("%w: point %d at (%.1f, %.1f) reaches pixel (%d, %d) of %dx%d image",
						ErrOutOfRange, i, px, py, x, y, width, height)
				}

				for n, f := range frames {
					var v float64
					if inside {
						v = f.At(x, y)
					} else {
						v = math.NaN()
					}
					idx := i*area + wy*size.Width + wx
					if opts.PerImage {
						idx += n * k * area
						out.Data[idx] = v
					} else {
						out.Data[idx] += v
					}
				}
			}
		}
	}
	return out, nil
}

// TakeIntegrated is Take followed by summing each window, yielding one value
// per window. NaN samples from clipping propagate into the sum unless
// opts.NaNSum is set.
func TakeIntegrated(images img.Array, points geometry.Vectors, size Region, opts Options) ([]float64, error) {
	windows, err := Take(images, points, size, opts)
	if err != nil {
		return nil, err
	}
	sums := make([]float64, windows.Count)
	for i := range sums {
		if !opts.NaNSum {
			sums[i] = windows.Frame(i).Sum()
			continue
		}
		for _, v := range windows.Frame(i).Data {
			if !math.IsNaN(v) {
				sums[i] += v
			}
		}
	}
	return sums, nil
}

// TakeFrame is a convenience wrapper for a single frame.
func TakeFrame(frame img.Frame, points geometry.Vectors, size Region, opts Options) (img.Stack, error) {
	return Take(frame.Array(), points, size, opts)
}

// framesOf validates the array and splits it into frames.
func framesOf(a img.Array) ([]img.Frame, error) {
	switch a.Rank() {
	case 2, 3:
	default:
		return nil, fmt.Errorf("%w: got shape %v", ErrBadRank, a.Shape)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	if a.Rank() == 2 {
		return []img.Frame{{Width: a.Shape[1], Height: a.Shape[0], Data: a.Data}}, nil
	}
	s := img.Stack{Count: a.Shape[0], Height: a.Shape[1], Width: a.Shape[2], Data: a.Data}
	if s.Count == 0 {
		return nil, fmt.Errorf("%w: empty stack", ErrBadRank)
	}
	frames := make([]img.Frame, s.Count)
	for i := range frames {
		frames[i] = s.Frame(i)
	}
	return frames, nil
}

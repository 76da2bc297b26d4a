// Package image provides the intensity frame types shared by the analysis
// packages, along with loading, saving and OpenCV conversion.
package image

import (
	"errors"
	"fmt"
	"math"
)

// ErrShape is returned when buffers and declared dimensions disagree.
var ErrShape = errors.New("image: shape mismatch")

// Frame is a single height x width image of real intensities stored row-major:
// pixel (x, y) lives at Data[y*Width+x].
type Frame struct {
	Width  int
	Height int
	Data   []float64
}

// NewFrame allocates a zero frame.
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height, Data: make([]float64, width*height)}
}

// FrameFromRows builds a frame from a slice of equal-length rows.
func FrameFromRows(rows [][]float64) (Frame, error) {
	if len(rows) == 0 {
		return Frame{}, fmt.Errorf("%w: no rows", ErrShape)
	}
	w := len(rows[0])
	f := NewFrame(w, len(rows))
	for y, row := range rows {
		if len(row) != w {
			return Frame{}, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, y, len(row), w)
		}
		copy(f.Data[y*w:], row)
	}
	return f, nil
}

// At returns the intensity at column x, row y.
func (f Frame) At(x, y int) float64 {
	return f.Data[y*f.Width+x]
}

// Set stores v at column x, row y.
func (f Frame) Set(x, y int, v float64) {
	f.Data[y*f.Width+x] = v
}

// Add accumulates v at column x, row y.
func (f Frame) Add(x, y int, v float64) {
	f.Data[y*f.Width+x] += v
}

// InBounds reports whether (x, y) addresses a pixel.
func (f Frame) InBounds(x, y int) bool {
	return x >= 0 && x < f.Width && y >= 0 && y < f.Height
}

// Empty reports whether the frame has no pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Data) == 0
}

// Clone returns a deep copy.
func (f Frame) Clone() Frame {
	out := Frame{Width: f.Width, Height: f.Height, Data: make([]float64, len(f.Data))}
	copy(out.Data, f.Data)
	return out
}

// Range returns the minimum and maximum finite intensities. Both are NaN
// when the frame holds no finite values.
func (f Frame) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range f.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}

// Sum returns the total intensity.
func (f Frame) Sum() float64 {
	var s float64
	for _, v := range f.Data {
		s += v
	}
	return s
}

// Array returns the frame as a rank-2 array sharing its data.
func (f Frame) Array() Array {
	return Array{Shape: []int{f.Height, f.Width}, Data: f.Data}
}

// Stack returns the frame as a one-image stack sharing its data.
func (f Frame) Stack() Stack {
	return Stack{Count: 1, Width: f.Width, Height: f.Height, Data: f.Data}
}

// Stack is count images of identical size, stored image-major then row-major.
type Stack struct {
	Count  int
	Width  int
	Height int
	Data   []float64
}

// NewStack allocates a zero stack.
func NewStack(count, width, height int) Stack {
	return Stack{Count: count, Width: width, Height: height, Data: make([]float64, count*width*height)}
}

// StackOf copies frames into a new stack. All frames must share a size.
func StackOf(frames ...Frame) (Stack, error) {
	if len(frames) == 0 {
		return Stack{}, nil
	}
	w, h := frames[0].Width, frames[0].Height
	s := NewStack(len(frames), w, h)
	for i, f := range frames {
		if f.Width != w || f.Height != h {
			return Stack{}, fmt.Errorf("%w: frame %d is %dx%d, want %dx%d", ErrShape, i, f.Width, f.Height, w, h)
		}
		copy(s.Data[i*w*h:], f.Data)
	}
	return s, nil
}

// Frame returns image i as a frame sharing the stack's data.
func (s Stack) Frame(i int) Frame {
	n := s.Width * s.Height
	return Frame{Width: s.Width, Height: s.Height, Data: s.Data[i*n : (i+1)*n : (i+1)*n]}
}

// Clone returns a deep copy.
func (s Stack) Clone() Stack {
	out := s
	out.Data = make([]float64, len(s.Data))
	copy(out.Data, s.Data)
	return out
}

// Array returns the stack as a rank-3 array sharing its data.
func (s Stack) Array() Array {
	return Array{Shape: []int{s.Count, s.Height, s.Width}, Data: s.Data}
}

// Array is a shaped buffer for callers whose rank is only known at run time.
// The last two axes are always (height, width).
type Array struct {
	Shape []int
	Data  []float64
}

// Rank returns the number of axes.
func (a Array) Rank() int {
	return len(a.Shape)
}

// Validate checks that the shape accounts for every element.
func (a Array) Validate() error {
	n := 1
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %v", ErrShape, a.Shape)
		}
		n *= d
	}
	if n != len(a.Data) {
		return fmt.Errorf("%w: shape %v holds %d elements, buffer has %d", ErrShape, a.Shape, n, len(a.Data))
	}
	return nil
}

package image

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// To8Bit rescales a frame so its finite minimum maps to 0 and its maximum to
// 255, truncating toward zero. Constant frames and non-finite pixels map to 0.
// OpenCV's blob detector and template matcher only accept 8-bit input.
func To8Bit(f Frame) []uint8 {
	out := make([]uint8, len(f.Data))
	lo, hi := f.Range()
	if !(hi > lo) {
		return out
	}
	span := hi - lo
	for i, v := range f.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = uint8((v - lo) / span * 255)
	}
	return out
}

// Rescale8 returns To8Bit(f) widened back into a frame, for code that samples
// the 8-bit view with float arithmetic.
func Rescale8(f Frame) Frame {
	bytes := To8Bit(f)
	out := NewFrame(f.Width, f.Height)
	for i, b := range bytes {
		out.Data[i] = float64(b)
	}
	return out
}

// ToMat8 converts a frame to a single-channel 8-bit Mat via To8Bit.
// The caller owns the returned Mat and must Close it.
func ToMat8(f Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty frame")
	}
	m, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8U, To8Bit(f))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build 8-bit mat: %w", err)
	}
	return m, nil
}

// ToMat64 copies a frame into a single-channel float64 Mat.
// The caller owns the returned Mat and must Close it.
func ToMat64(f Frame) gocv.Mat {
	m := gocv.NewMatWithSize(f.Height, f.Width, gocv.MatTypeCV64F)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			m.SetDoubleAt(y, x, f.At(x, y))
		}
	}
	return m
}

// FromMat copies a single-channel 8-bit, 32-bit float or 64-bit float Mat
// into a frame.
func FromMat(m gocv.Mat) (Frame, error) {
	if m.Empty() {
		return Frame{}, fmt.Errorf("empty mat")
	}
	if m.Channels() != 1 {
		return Frame{}, fmt.Errorf("%w: expected 1 channel, got %d", ErrShape, m.Channels())
	}

	f := NewFrame(m.Cols(), m.Rows())
	switch m.Type() {
	case gocv.MatTypeCV8U:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				f.Set(x, y, float64(m.GetUCharAt(y, x)))
			}
		}
	case gocv.MatTypeCV32F:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				f.Set(x, y, float64(m.GetFloatAt(y, x)))
			}
		}
	case gocv.MatTypeCV64F:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				f.Set(x, y, m.GetDoubleAt(y, x))
			}
		}
	default:
		return Frame{}, fmt.Errorf("unsupported mat type %v", m.Type())
	}
	return f, nil
}

package image

import (
	"gocv.io/x/gocv"
)

// Rotate rotates a frame clockwise (as displayed, y down) by 90, 180 or 270
// degrees. Other angles return a copy.
func Rotate(f Frame, degrees int) (Frame, error) {
	src := ToMat64(f)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	switch ((degrees % 360) + 360) % 360 {
	case 90:
		gocv.Rotate(src, &dst, gocv.Rotate90Clockwise)
	case 180:
		gocv.Rotate(src, &dst, gocv.Rotate180Clockwise)
	case 270:
		gocv.Rotate(src, &dst, gocv.Rotate90CounterClockwise)
	default:
		return f.Clone(), nil
	}
	return FromMat(dst)
}

// FlipHorizontal mirrors a frame left to right.
func FlipHorizontal(f Frame) (Frame, error) {
	src := ToMat64(f)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Flip(src, &dst, 1)
	return FromMat(dst)
}

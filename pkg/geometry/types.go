// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
// X addresses image columns and Y addresses image rows.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// Norm returns the length of the point interpreted as a vector.
func (p Point2D) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// IsFinite reports whether both coordinates are finite.
func (p Point2D) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// AffineTransform represents a 2x3 affine transformation matrix.
// [a b tx]
// [c d ty]
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// NewAffine assembles a transform y = M·x + b from its linear part and offset.
func NewAffine(m Mat2, b Point2D) AffineTransform {
	return AffineTransform{
		A: m.A, B: m.B, TX: b.X,
		C: m.C, D: m.D, TY: b.Y,
	}
}

// Linear returns the 2x2 linear part of the transform.
func (t AffineTransform) Linear() Mat2 {
	return Mat2{A: t.A, B: t.B, C: t.C, D: t.D}
}

// Offset returns the translation part of the transform.
func (t AffineTransform) Offset() Point2D {
	return Point2D{X: t.TX, Y: t.TY}
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// ApplyAll applies the transform to every vector in v.
func (t AffineTransform) ApplyAll(v Vectors) Vectors {
	out := NewVectors(v.Len())
	for i := range v.X {
		p := t.Apply(v.At(i))
		out.X[i], out.Y[i] = p.X, p.Y
	}
	return out
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	inv, ok := t.Linear().Inverse()
	if !ok {
		return AffineTransform{}, false
	}
	off := inv.MulVec(t.Offset()).Scale(-1)
	return NewAffine(inv, off), true
}

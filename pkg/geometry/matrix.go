package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// singularTol is the determinant magnitude below which a Mat2 is treated as singular.
const singularTol = 1e-10

// Mat2 is a 2x2 matrix
//
//	[a b]
//	[c d]
//
// whose columns are the two lattice vectors when used as a lattice transform.
type Mat2 struct {
	A, B float64
	C, D float64
}

// Identity2 returns the 2x2 identity.
func Identity2() Mat2 {
	return Mat2{A: 1, D: 1}
}

// Diag returns a diagonal matrix.
func Diag(x, y float64) Mat2 {
	return Mat2{A: x, D: y}
}

// FromColumns builds a matrix from two column vectors.
func FromColumns(x, y Point2D) Mat2 {
	return Mat2{A: x.X, B: y.X, C: x.Y, D: y.Y}
}

// Rot90 returns the rotation by k quarter turns (counterclockwise in a
// y-up frame). k may be negative.
func Rot90(k int) Mat2 {
	switch ((k % 4) + 4) % 4 {
	case 1:
		return Mat2{A: 0, B: -1, C: 1, D: 0}
	case 2:
		return Mat2{A: -1, D: -1}
	case 3:
		return Mat2{A: 0, B: 1, C: -1, D: 0}
	default:
		return Identity2()
	}
}

// Swap returns the axis-exchanging reflection [[0 1] [1 0]].
func Swap() Mat2 {
	return Mat2{B: 1, C: 1}
}

// Col returns column j (0 or 1).
func (m Mat2) Col(j int) Point2D {
	if j == 0 {
		return Point2D{X: m.A, Y: m.C}
	}
	return Point2D{X: m.B, Y: m.D}
}

// SwapColumns returns the matrix with its two columns exchanged.
func (m Mat2) SwapColumns() Mat2 {
	return Mat2{A: m.B, B: m.A, C: m.D, D: m.C}
}

// Det returns the determinant.
func (m Mat2) Det() float64 {
	return m.A*m.D - m.B*m.C
}

// Singular reports whether the columns are (numerically) dependent.
func (m Mat2) Singular() bool {
	return math.Abs(m.Det()) < singularTol || math.IsNaN(m.Det())
}

// MinPitch returns the length of the shorter column.
func (m Mat2) MinPitch() float64 {
	return math.Min(m.Col(0).Norm(), m.Col(1).Norm())
}

// MaxPitch returns the length of the longer column.
func (m Mat2) MaxPitch() float64 {
	return math.Max(m.Col(0).Norm(), m.Col(1).Norm())
}

// Mul returns m·o.
func (m Mat2) Mul(o Mat2) Mat2 {
	var prod mat.Dense
	prod.Mul(m.Dense(), o.Dense())
	return Mat2FromDense(&prod)
}

// MulVec returns m·p.
func (m Mat2) MulVec(p Point2D) Point2D {
	return Point2D{
		X: m.A*p.X + m.B*p.Y,
		Y: m.C*p.X + m.D*p.Y,
	}
}

// Inverse returns the matrix inverse, or false when m is singular.
func (m Mat2) Inverse() (Mat2, bool) {
	if m.Singular() {
		return Mat2{}, false
	}
	var inv mat.Dense
	if err := inv.Inverse(m.Dense()); err != nil {
		return Mat2{}, false
	}
	return Mat2FromDense(&inv), true
}

// Equal reports whether two matrices agree to within tol in every entry.
func (m Mat2) Equal(o Mat2, tol float64) bool {
	return math.Abs(m.A-o.A) <= tol && math.Abs(m.B-o.B) <= tol &&
		math.Abs(m.C-o.C) <= tol && math.Abs(m.D-o.D) <= tol
}

// Dense returns m as a gonum matrix.
func (m Mat2) Dense() *mat.Dense {
	return mat.NewDense(2, 2, []float64{m.A, m.B, m.C, m.D})
}

// Mat2FromDense converts a 2x2 gonum matrix. It panics on other shapes,
// like gonum's own dimension checks.
func Mat2FromDense(d mat.Matrix) Mat2 {
	r, c := d.Dims()
	if r != 2 || c != 2 {
		panic(fmt.Sprintf("geometry: expected 2x2 matrix, got %dx%d", r, c))
	}
	return Mat2{A: d.At(0, 0), B: d.At(0, 1), C: d.At(1, 0), D: d.At(1, 1)}
}

// String formats the matrix row by row.
func (m Mat2) String() string {
	return fmt.Sprintf("[[%.4f %.4f] [%.4f %.4f]]", m.A, m.B, m.C, m.D)
}

// MarshalJSON encodes the matrix as nested rows.
func (m Mat2) MarshalJSON() ([]byte, error) {
	return json.Marshal([2][2]float64{{m.A, m.B}, {m.C, m.D}})
}

// UnmarshalJSON decodes nested rows.
func (m *Mat2) UnmarshalJSON(data []byte) error {
	var rows [2][2]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("geometry: decoding 2x2 matrix: %w", err)
	}
	*m = Mat2{A: rows[0][0], B: rows[0][1], C: rows[1][0], D: rows[1][1]}
	return nil
}

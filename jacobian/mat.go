package jacobian

import "github.com/go-gl/mathgl/mgl32"

// Mat3x9 is a 3×9 matrix stored as three 3×3 column blocks, one per
// triangle vertex: column 3k+j is column j of block k.
type Mat3x9 [3]mgl32.Mat3

// At returns the element at row, col.
func (m Mat3x9) At(row, col int) float32 {
	return m[col/3].At(row, col%3)
}

// Set sets the element at row, col.
func (m *Mat3x9) Set(row, col int, value float32) {
	m[col/3].Set(row, col%3, value)
}

// LeftMul returns the row vector g·m.
func (m Mat3x9) LeftMul(g mgl32.Vec3) [9]float32 {
	var out [9]float32
	for k := 0; k < 3; k++ {
		v := VecMat(g, m[k])
		out[3*k], out[3*k+1], out[3*k+2] = v[0], v[1], v[2]
	}
	return out
}

// VecMat returns the row vector g·m.
func VecMat(g mgl32.Vec3, m mgl32.Mat3) mgl32.Vec3 {
	return m.Transpose().Mul3x1(g)
}

// Adjugate returns the transposed cofactor matrix of m, so that
// Adjugate(m)·m = det(m)·I.
func Adjugate(m mgl32.Mat3) mgl32.Mat3 {
	c0, c1, c2 := m.Col(0), m.Col(1), m.Col(2)
	return mgl32.Mat3FromRows(c1.Cross(c2), c2.Cross(c0), c0.Cross(c1))
}

// axisCross returns the matrix whose column c is e_c × d, i.e. the map
// u ↦ u × d.
func axisCross(d mgl32.Vec3) mgl32.Mat3 {
	return mgl32.Mat3FromCols(
		mgl32.Vec3{1, 0, 0}.Cross(d),
		mgl32.Vec3{0, 1, 0}.Cross(d),
		mgl32.Vec3{0, 0, 1}.Cross(d),
	)
}

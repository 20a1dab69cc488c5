// Package jacobian computes the closed-form partial-derivative matrices of
// each stage of the forward shading model: SH illumination, vector
// normalization, barycentric interpolation and triangle geometry.
//
// All functions are pure and return fixed-size values; none allocate.
// Matrices map a column perturbation of the argument to a column
// perturbation of the result, so gradients chain as row vectors from the
// left (see VecMat and Mat3x9.LeftMul).
package jacobian

import (
	"math"

	"github.com/gmlewis/rastergrad/shading"
	"github.com/go-gl/mathgl/mgl32"
)

// DegenerateTolerance bounds |det(VP)| relative to the product of the
// vertex lengths below which a triangle contributes no barycentric gradient.
const DegenerateTolerance = 1e-6

// IlluminationWrtNormal returns ∂L/∂n, the derivative of the three-channel
// SH irradiance with respect to the direction. Row ch is the channel.
func IlluminationWrtNormal(dir mgl32.Vec3, shCoeff []float32) mgl32.Mat3 {
	x, y, z := dir[0], dir[1], dir[2]
	var j mgl32.Mat3
	for ch := 0; ch < shading.NumChannels; ch++ {
		c := shCoeff[ch*shading.NumBasis : (ch+1)*shading.NumBasis]
		j.Set(ch, 0, c[3]+c[4]*y+c[7]*z+2*c[8]*x)
		j.Set(ch, 1, c[1]+c[4]*x+c[5]*z-2*c[8]*y)
		j.Set(ch, 2, c[2]+c[5]*y+6*c[6]*z+c[7]*x)
	}
	return j
}

// IlluminationWrtCoefficients returns the derivative of the irradiance with
// respect to the nine coefficients of one channel: the SH basis at normal
// in row channel, zero elsewhere.
func IlluminationWrtCoefficients(normal mgl32.Vec3, channel int) Mat3x9 {
	var j Mat3x9
	for i, b := range shading.Basis(normal) {
		j.Set(channel, i, b)
	}
	return j
}

// AlbedoWrtBarycentric returns the derivative of the interpolated vertex
// color with respect to the barycentric weights: the colors as columns.
func AlbedoWrtBarycentric(c0, c1, c2 mgl32.Vec3) mgl32.Mat3 {
	return mgl32.Mat3FromCols(c0, c1, c2)
}

// NormalWrtBarycentric returns the derivative of the interpolated,
// unnormalized normal with respect to the barycentric weights.
func NormalWrtBarycentric(n0, n1, n2 mgl32.Vec3) mgl32.Mat3 {
	return mgl32.Mat3FromCols(n0, n1, n2)
}

// TexturedAlbedoWrtBarycentric chains the derivatives of a texture sample
// with respect to u and v through uv = Σ b_k uv_k.
func TexturedAlbedoWrtBarycentric(du, dv mgl32.Vec3, uv0, uv1, uv2 mgl32.Vec2) mgl32.Mat3 {
	col := func(uv mgl32.Vec2) mgl32.Vec3 {
		return du.Mul(uv[0]).Add(dv.Mul(uv[1]))
	}
	return mgl32.Mat3FromCols(col(uv0), col(uv1), col(uv2))
}

// NormalizationJacobian returns ∂(v/|v|)/∂v = (|v|²I - vvᵀ)/|v|³ where norm
// is |v|. It is zero when norm is below shading.MinNormalLength.
func NormalizationJacobian(v mgl32.Vec3, norm float32) mgl32.Mat3 {
	if norm < shading.MinNormalLength {
		return mgl32.Mat3{}
	}
	n2 := norm * norm
	n3 := n2 * norm
	var j mgl32.Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			e := -v[r] * v[c]
			if r == c {
				e += n2
			}
			j.Set(r, c, e/n3)
		}
	}
	return j
}

// BarycentricWrtVertexPositions returns the derivative of the barycentric
// weights b, defined by VP·b = P for the matrix VP with columns v0, v1, v2
// and a fixed point P, with respect to the nine vertex coordinates.
//
// With D = det(VP) and Adj its adjugate, ∂b_i/∂v_k[j] = -Adj(i,j)·b_k/D.
// Near-degenerate triangles (|D| small relative to |v0||v1||v2|) yield zero.
func BarycentricWrtVertexPositions(v0, v1, v2, bary mgl32.Vec3) Mat3x9 {
	vp := mgl32.Mat3FromCols(v0, v1, v2)
	d := vp.Det()
	scale := v0.Len() * v1.Len() * v2.Len()
	if scale == 0 || math.Abs(float64(d)) <= DegenerateTolerance*float64(scale) {
		return Mat3x9{}
	}
	adj := Adjugate(vp)
	var j Mat3x9
	for k := 0; k < 3; k++ {
		j[k] = adj.Mul(-bary[k] / d)
	}
	return j
}

// RigidVertexJacobians returns the derivatives of the face normal
// f = R(vj-vi) × R(vk-vi) with respect to vi, vj and vk. The own-vertex
// term ji is minus the sum of the other two, since translating all three
// vertices leaves f unchanged.
func RigidVertexJacobians(rotation mgl32.Mat3, vi, vj, vk mgl32.Vec3) (ji, jj, jk mgl32.Mat3) {
	a := rotation.Mul3x1(vj.Sub(vi))
	b := rotation.Mul3x1(vk.Sub(vi))
	jj = axisCross(b).Mul3(rotation)
	jk = axisCross(a).Mul3(rotation).Mul(-1)
	ji = jj.Add(jk).Mul(-1)
	return ji, jj, jk
}

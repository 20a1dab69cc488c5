// Package shading implements the forward pieces of the per-pixel shading
// model used by the rasterizer: second-order spherical harmonics (SH)
// irradiance, albedo sources and bilinear texture sampling.
package shading

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// NumBasis is the number of SH basis functions per color channel.
	NumBasis = 9
	// NumChannels is the number of color channels (RGB).
	NumChannels = 3
	// NumCoefficients is the number of SH coefficients per camera.
	NumCoefficients = NumBasis * NumChannels

	// MinNormalLength is the length below which a vector is treated as zero.
	MinNormalLength = 1e-8
)

// Basis evaluates the SH basis [1, y, z, x, xy, zy, 3z²-1, xz, x²-y²] at
// direction n.
func Basis(n mgl32.Vec3) [NumBasis]float32 {
	x, y, z := n[0], n[1], n[2]
	return [NumBasis]float32{
		1,
		y,
		z,
		x,
		x * y,
		z * y,
		3*z*z - 1,
		x * z,
		x*x - y*y,
	}
}

// Irradiance evaluates the three-channel SH lighting at direction n.
// coeff holds NumBasis coefficients per channel, channel-major.
func Irradiance(n mgl32.Vec3, coeff []float32) mgl32.Vec3 {
	basis := Basis(n)
	var light mgl32.Vec3
	for ch := 0; ch < NumChannels; ch++ {
		c := coeff[ch*NumBasis : (ch+1)*NumBasis]
		for j, b := range basis {
			light[ch] += c[j] * b
		}
	}
	return light
}

// Normalize returns v/|v| together with |v|. A vector shorter than
// MinNormalLength normalizes to zero.
func Normalize(v mgl32.Vec3) (mgl32.Vec3, float32) {
	norm := float32(math.Sqrt(float64(v.Dot(v))))
	if norm < MinNormalLength {
		return mgl32.Vec3{}, norm
	}
	return v.Mul(1 / norm), norm
}

// Hadamard returns the component-wise product of a and b.
func Hadamard(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// Shade returns the pixel color albedo ⊙ L(n).
func Shade(albedo, n mgl32.Vec3, coeff []float32) mgl32.Vec3 {
	return Hadamard(albedo, Irradiance(n, coeff))
}

// FaceNormal returns the unnormalized normal R(vj-vi) × R(vk-vi) of the
// triangle (vi, vj, vk) after rotation.
func FaceNormal(rotation mgl32.Mat3, vi, vj, vk mgl32.Vec3) mgl32.Vec3 {
	a := rotation.Mul3x1(vj.Sub(vi))
	b := rotation.Mul3x1(vk.Sub(vi))
	return a.Cross(b)
}

package jacobian_test

import (
	"math"
	"testing"

	"github.com/gmlewis/rastergrad/gradcheck"
	"github.com/gmlewis/rastergrad/jacobian"
	"github.com/gmlewis/rastergrad/shading"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const fdTol = 2e-2

func vec3(x []float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(x[0]), float32(x[1]), float32(x[2])}
}

func put3(y []float64, v mgl32.Vec3) {
	y[0], y[1], y[2] = float64(v[0]), float64(v[1]), float64(v[2])
}

func testCoefficients() []float32 {
	coeff := make([]float32, shading.NumCoefficients)
	for i := range coeff {
		coeff[i] = float32(math.Sin(float64(i)*1.7)) * 0.8
	}
	return coeff
}

func TestNormalizationJacobian(t *testing.T) {
	v := mgl32.Vec3{0.3, -1.2, 0.7}
	got := jacobian.NormalizationJacobian(v, v.Len())

	num := gradcheck.Jacobian(3, func(y, x []float64) {
		n, _ := shading.Normalize(vec3(x))
		put3(y, n)
	}, gradcheck.Float64s(v[:]), 0)

	r := gradcheck.Compare(gradcheck.Dense(3, 3, got.At), num)
	assert.True(t, r.Within(fdTol), r.String())
}

func TestNormalizationJacobianZeroVector(t *testing.T) {
	got := jacobian.NormalizationJacobian(mgl32.Vec3{}, 0)
	assert.Equal(t, mgl32.Mat3{}, got)
}

func TestIlluminationWrtNormal(t *testing.T) {
	coeff := testCoefficients()
	dir := mgl32.Vec3{0.2, 0.6, -0.77}
	got := jacobian.IlluminationWrtNormal(dir, coeff)

	num := gradcheck.Jacobian(3, func(y, x []float64) {
		put3(y, shading.Irradiance(vec3(x), coeff))
	}, gradcheck.Float64s(dir[:]), 0)

	r := gradcheck.Compare(gradcheck.Dense(3, 3, got.At), num)
	assert.True(t, r.Within(fdTol), r.String())
}

func TestIlluminationWrtCoefficients(t *testing.T) {
	coeff := testCoefficients()
	n := mgl32.Vec3{0.48, -0.6, 0.64}
	for ch := 0; ch < shading.NumChannels; ch++ {
		got := jacobian.IlluminationWrtCoefficients(n, ch)

		x0 := gradcheck.Float64s(coeff[ch*9 : ch*9+9])
		num := gradcheck.Jacobian(3, func(y, x []float64) {
			c := append([]float32(nil), coeff...)
			for i := range x {
				c[ch*9+i] = float32(x[i])
			}
			put3(y, shading.Irradiance(n, c))
		}, x0, 0)

		r := gradcheck.Compare(gradcheck.Dense(3, 9, got.At), num)
		assert.True(t, r.Within(fdTol), "channel %v: %v", ch, r)
		for row := 0; row < 3; row++ {
			if row == ch {
				continue
			}
			for col := 0; col < 9; col++ {
				assert.Zero(t, got.At(row, col))
			}
		}
	}
}

func TestAlbedoAndNormalWrtBarycentric(t *testing.T) {
	c0, c1, c2 := mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0.2, 0.3, 0.4}
	j := jacobian.AlbedoWrtBarycentric(c0, c1, c2)
	b := mgl32.Vec3{0.2, 0.5, 0.3}
	want := c0.Mul(b[0]).Add(c1.Mul(b[1])).Add(c2.Mul(b[2]))
	got := j.Mul3x1(b)
	assert.InDeltaSlice(t, want[:], got[:], 1e-6)

	n := jacobian.NormalWrtBarycentric(c0, c1, c2)
	assert.Equal(t, j, n)
	assert.Equal(t, c2, n.Col(2))
}

// solveBarycentric solves VP·b = p in float64 as the reference forward map.
func solveBarycentric(verts []float64, p *mat.VecDense) []float64 {
	vp := mat.NewDense(3, 3, nil)
	for k := 0; k < 3; k++ {
		for j := 0; j < 3; j++ {
			vp.Set(j, k, verts[3*k+j])
		}
	}
	var b mat.VecDense
	if err := b.SolveVec(vp, p); err != nil {
		panic(err)
	}
	return b.RawVector().Data
}

func TestBarycentricWrtVertexPositions(t *testing.T) {
	v0, v1, v2 := mgl32.Vec3{0, 0, 2}, mgl32.Vec3{1, 0, 3}, mgl32.Vec3{0, 1, 2.5}
	bary := mgl32.Vec3{0.2, 0.3, 0.5}
	got := jacobian.BarycentricWrtVertexPositions(v0, v1, v2, bary)

	p := v0.Mul(bary[0]).Add(v1.Mul(bary[1])).Add(v2.Mul(bary[2]))
	pv := mat.NewVecDense(3, gradcheck.Float64s(p[:]))

	x0 := gradcheck.Float64s([]float32{v0[0], v0[1], v0[2], v1[0], v1[1], v1[2], v2[0], v2[1], v2[2]})
	require.InDeltaSlice(t, gradcheck.Float64s(bary[:]), solveBarycentric(x0, pv), 1e-6)

	num := gradcheck.Jacobian(3, func(y, x []float64) {
		copy(y, solveBarycentric(x, pv))
	}, x0, 1e-5)

	r := gradcheck.Compare(gradcheck.Dense(3, 9, got.At), num)
	assert.True(t, r.Within(1e-3), r.String())
}

func TestBarycentricDegenerateTriangle(t *testing.T) {
	tests := []struct {
		name       string
		v0, v1, v2 mgl32.Vec3
	}{
		{"collinear", mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 1, 2}, mgl32.Vec3{2, 2, 3}},
		{"plane through origin", mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 1, 0}},
		{"repeated vertex", mgl32.Vec3{1, 2, 3}, mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 1, 5}},
		{"zero vertex", mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jacobian.BarycentricWrtVertexPositions(tt.v0, tt.v1, tt.v2, mgl32.Vec3{1.0 / 3, 1.0 / 3, 1.0 / 3})
			for r := 0; r < 3; r++ {
				for c := 0; c < 9; c++ {
					v := float64(got.At(r, c))
					require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
					assert.Zero(t, v)
				}
			}
		})
	}
}

func TestRigidVertexJacobians(t *testing.T) {
	rot := mgl32.Rotate3DY(0.4).Mul3(mgl32.Rotate3DX(-0.3))
	verts := []mgl32.Vec3{{0.1, 0.2, 0.3}, {1.1, -0.2, 0.5}, {0.3, 0.9, -0.4}}
	ji, jj, jk := jacobian.RigidVertexJacobians(rot, verts[0], verts[1], verts[2])

	for k, want := range []mgl32.Mat3{ji, jj, jk} {
		num := gradcheck.Jacobian(3, func(y, x []float64) {
			v := append([]mgl32.Vec3(nil), verts...)
			v[k] = vec3(x)
			put3(y, shading.FaceNormal(rot, v[0], v[1], v[2]))
		}, gradcheck.Float64s(verts[k][:]), 0)

		r := gradcheck.Compare(gradcheck.Dense(3, 3, want.At), num)
		assert.True(t, r.Within(fdTol), "vertex %v: %v", k, r)
	}

	sum := ji.Add(jj).Add(jk)
	assert.InDeltaSlice(t, make([]float32, 9), sum[:], 1e-5)
}

func TestTexturedAlbedoWrtBarycentric(t *testing.T) {
	tex := shading.Texture{Width: 4, Height: 4, Data: make([]float32, 4*4*3)}
	for i := range tex.Data {
		tex.Data[i] = float32((i*5)%13) / 12
	}
	uvs := []mgl32.Vec2{{0.3, 0.35}, {0.45, 0.3}, {0.35, 0.5}}
	bary := mgl32.Vec3{0.3, 0.3, 0.4}
	uvAt := func(b mgl32.Vec3) mgl32.Vec2 {
		return uvs[0].Mul(b[0]).Add(uvs[1].Mul(b[1])).Add(uvs[2].Mul(b[2]))
	}
	_, du, dv := tex.SampleGrad(uvAt(bary))
	got := jacobian.TexturedAlbedoWrtBarycentric(du, dv, uvs[0], uvs[1], uvs[2])

	num := gradcheck.Jacobian(3, func(y, x []float64) {
		put3(y, tex.Sample(uvAt(vec3(x))))
	}, gradcheck.Float64s(bary[:]), 1e-3)

	r := gradcheck.Compare(gradcheck.Dense(3, 3, got.At), num)
	assert.True(t, r.Within(fdTol), r.String())
}

func TestMat3x9LeftMul(t *testing.T) {
	var m jacobian.Mat3x9
	for r := 0; r < 3; r++ {
		for c := 0; c < 9; c++ {
			m.Set(r, c, float32(r*9+c))
		}
	}
	assert.Equal(t, float32(13), m.At(1, 4))
	got := m.LeftMul(mgl32.Vec3{1, 0, 2})
	for c := 0; c < 9; c++ {
		assert.Equal(t, m.At(0, c)+2*m.At(2, c), got[c])
	}
}

func TestAdjugate(t *testing.T) {
	m := mgl32.Mat3FromRows(mgl32.Vec3{2, 0, 1}, mgl32.Vec3{1, 3, 0}, mgl32.Vec3{0, 1, 4})
	got := jacobian.Adjugate(m).Mul3(m)
	want := mgl32.Ident3().Mul(m.Det())
	assert.InDeltaSlice(t, want[:], got[:], 1e-5)
}

package shading

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasis(t *testing.T) {
	n := mgl32.Vec3{0.5, -0.25, 2}
	got := Basis(n)
	want := [NumBasis]float32{1, -0.25, 2, 0.5, -0.125, -0.5, 11, 1, 0.1875}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6, "basis[%v]", i)
	}
}

func TestIrradianceConstantTerm(t *testing.T) {
	coeff := make([]float32, NumCoefficients)
	coeff[0], coeff[9], coeff[18] = 0.7, 0.2, 1
	got := Irradiance(mgl32.Vec3{0.3, 0.4, 0.5}, coeff)
	assert.InDelta(t, 0.7, got[0], 1e-6)
	assert.InDelta(t, 0.2, got[1], 1e-6)
	assert.InDelta(t, 1.0, got[2], 1e-6)
}

func TestIrradianceLinearTerm(t *testing.T) {
	// Same lighting as the sample scenes: ambient 0.7 minus a key light along x.
	coeff := make([]float32, NumCoefficients)
	for ch := 0; ch < NumChannels; ch++ {
		coeff[ch*NumBasis] = 0.7
		coeff[ch*NumBasis+3] = -0.5
	}
	got := Irradiance(mgl32.Vec3{1, 0, 0}, coeff)
	for ch := 0; ch < NumChannels; ch++ {
		assert.InDelta(t, 0.2, got[ch], 1e-6)
	}
}

func TestNormalize(t *testing.T) {
	n, norm := Normalize(mgl32.Vec3{3, 0, 4})
	assert.InDelta(t, 5, norm, 1e-6)
	assert.InDeltaSlice(t, []float32{0.6, 0, 0.8}, n[:], 1e-6)

	n, norm = Normalize(mgl32.Vec3{})
	assert.Equal(t, mgl32.Vec3{}, n)
	assert.Zero(t, norm)
}

func TestFaceNormal(t *testing.T) {
	got := FaceNormal(mgl32.Ident3(), mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0})
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, got)

	// A rotation of 90 degrees about x maps +z to -y.
	rot := mgl32.Rotate3DX(mgl32.DegToRad(90))
	got = FaceNormal(rot, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0})
	assert.InDeltaSlice(t, []float32{0, -1, 0}, got[:], 1e-6)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("vertexColor")
	require.NoError(t, err)
	assert.Equal(t, VertexColor, m)

	m, err = ParseMode("textured")
	require.NoError(t, err)
	assert.Equal(t, Textured, m)
	assert.Equal(t, "textured", m.String())

	_, err = ParseMode("shaded")
	assert.Error(t, err)
}

func checkerTexture() Texture {
	// 2x2 texture: red, green / blue, white.
	return Texture{
		Width:  2,
		Height: 2,
		Data: []float32{
			1, 0, 0, 0, 1, 0,
			0, 0, 1, 1, 1, 1,
		},
	}
}

func TestSampleAtTexelCenters(t *testing.T) {
	tex := checkerTexture()
	tests := []struct {
		uv   mgl32.Vec2
		want mgl32.Vec3
	}{
		{mgl32.Vec2{0.25, 0.25}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec2{0.75, 0.25}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec2{0.25, 0.75}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec2{0.75, 0.75}, mgl32.Vec3{1, 1, 1}},
		{mgl32.Vec2{0.5, 0.5}, mgl32.Vec3{0.5, 0.5, 0.5}},
		{mgl32.Vec2{-3, -3}, mgl32.Vec3{1, 0, 0}},
	}
	for _, tt := range tests {
		got := tex.Sample(tt.uv)
		assert.InDeltaSlice(t, tt.want[:], got[:], 1e-6, "Sample(%v)", tt.uv)
	}
}

func TestSampleClampsExtremeCoordinates(t *testing.T) {
	tex := checkerTexture()
	tests := []struct {
		uv   mgl32.Vec2
		want mgl32.Vec3
	}{
		{mgl32.Vec2{1e20, 0.25}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec2{1.5, 0.25}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec2{-1e20, 0.25}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec2{0.25, 1e20}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec2{1e20, 1e20}, mgl32.Vec3{1, 1, 1}},
	}
	for _, tt := range tests {
		got := tex.Sample(tt.uv)
		assert.InDeltaSlice(t, tt.want[:], got[:], 1e-6, "Sample(%v)", tt.uv)

		_, du, dv := tex.SampleGrad(tt.uv)
		if tt.uv[0] < 0 || tt.uv[0] > 1 {
			assert.Equal(t, mgl32.Vec3{}, du, "du at %v", tt.uv)
		}
		if tt.uv[1] < 0 || tt.uv[1] > 1 {
			assert.Equal(t, mgl32.Vec3{}, dv, "dv at %v", tt.uv)
		}
	}
}

func TestTapsWeightsSumToOne(t *testing.T) {
	tex := Texture{Width: 5, Height: 3, Data: make([]float32, 5*3*3)}
	for _, uv := range []mgl32.Vec2{{0.1, 0.9}, {0.37, 0.52}, {1.2, -0.1}, {0.5, 0.5}} {
		var sum float32
		for _, tap := range tex.Taps(uv) {
			assert.GreaterOrEqual(t, tap.Index, 0)
			assert.Less(t, tap.Index, 15)
			sum += tap.Weight
		}
		assert.InDelta(t, 1, sum, 1e-6, "uv=%v", uv)
	}
}

func TestSampleGradMatchesFiniteDifferences(t *testing.T) {
	tex := Texture{Width: 4, Height: 3, Data: make([]float32, 4*3*3)}
	for i := range tex.Data {
		tex.Data[i] = float32((i*7)%11) / 10
	}
	uv := mgl32.Vec2{0.41, 0.37}
	const h = 1e-3
	c, du, dv := tex.SampleGrad(uv)
	want := tex.Sample(uv)
	assert.InDeltaSlice(t, want[:], c[:], 1e-6)

	fdU := tex.Sample(mgl32.Vec2{uv[0] + h, uv[1]}).Sub(tex.Sample(mgl32.Vec2{uv[0] - h, uv[1]})).Mul(1 / (2 * h))
	fdV := tex.Sample(mgl32.Vec2{uv[0], uv[1] + h}).Sub(tex.Sample(mgl32.Vec2{uv[0], uv[1] - h})).Mul(1 / (2 * h))
	for i := 0; i < 3; i++ {
		assert.InDelta(t, fdU[i], du[i], 1e-2)
		assert.InDelta(t, fdV[i], dv[i], 1e-2)
	}
}

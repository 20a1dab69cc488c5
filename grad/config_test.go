package grad_test

import (
	"testing"

	"github.com/gmlewis/rastergrad/grad"
	"github.com/gmlewis/rastergrad/shading"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identityK = []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}

// extrinsics flattens cameras into the row-major [R | t] layout.
func extrinsics(cams ...grad.Camera) []float32 {
	var out []float32
	for _, c := range cams {
		e := c.Extrinsics()
		out = append(out, e[:]...)
	}
	return out
}

func intrinsics(n int) []float32 {
	var out []float32
	for i := 0; i < n; i++ {
		out = append(out, identityK...)
	}
	return out
}

func validOptions() grad.Options {
	return grad.Options{
		Faces:              []int32{0, 1, 2},
		TextureCoordinates: []float32{0, 0, 1, 0, 0, 1},
		NumVertices:        3,
		Extrinsics:         extrinsics(grad.Camera{Rotation: mgl32.Ident3(), Translation: mgl32.Vec3{0, 0, 2}}),
		Intrinsics:         identityK,
		RenderWidth:        4,
		RenderHeight:       2,
		Mode:               "vertexColor",
	}
}

func TestNewConfig(t *testing.T) {
	cfg, err := grad.NewConfig(validOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.NumVertices())
	assert.Equal(t, 1, cfg.NumCameras())
	assert.Equal(t, 8, cfg.PixelsPerCamera())
	assert.Equal(t, shading.VertexColor, cfg.Mode())
	assert.Equal(t, 1, cfg.Topology().NumFaces())
	assert.Equal(t, mgl32.Vec3{0, 0, 2}, cfg.Camera(0).Translation)

	f, ok := cfg.Topology().FaceIndex([3]int32{0, 1, 2})
	assert.True(t, ok)
	assert.Equal(t, 0, f)
	_, ok = cfg.Topology().FaceIndex([3]int32{2, 1, 0})
	assert.False(t, ok)
}

func TestNewConfigDefaultResolution(t *testing.T) {
	opts := validOptions()
	opts.RenderWidth, opts.RenderHeight = 0, 0
	cfg, err := grad.NewConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, grad.DefaultResolution, cfg.Width())
	assert.Equal(t, grad.DefaultResolution, cfg.Height())

	opts.RenderHeight = 7
	cfg, err = grad.NewConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Width())
	assert.Equal(t, 7, cfg.Height())
}

func TestNewConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *grad.Options)
	}{
		{"zero vertices", func(o *grad.Options) { o.NumVertices = 0 }},
		{"negative vertices", func(o *grad.Options) { o.NumVertices = -3 }},
		{"extrinsics not a multiple of 12", func(o *grad.Options) { o.Extrinsics = o.Extrinsics[:11] }},
		{"no cameras", func(o *grad.Options) { o.Extrinsics = nil; o.Intrinsics = nil }},
		{"intrinsics mismatch", func(o *grad.Options) { o.Intrinsics = intrinsics(2) }},
		{"negative width", func(o *grad.Options) { o.RenderWidth = -1 }},
		{"negative height", func(o *grad.Options) { o.RenderHeight = -1 }},
		{"unknown mode", func(o *grad.Options) { o.Mode = "phong" }},
		{"face index out of range", func(o *grad.Options) { o.Faces = []int32{0, 1, 3} }},
		{"negative face index", func(o *grad.Options) { o.Faces = []int32{0, -1, 2} }},
		{"ragged faces", func(o *grad.Options) { o.Faces = []int32{0, 1} }},
		{"textured without coordinates", func(o *grad.Options) {
			o.Mode = "textured"
			o.TextureCoordinates = nil
		}},
		{"textured with short coordinates", func(o *grad.Options) {
			o.Mode = "textured"
			o.TextureCoordinates = o.TextureCoordinates[:4]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			_, err := grad.NewConfig(opts)
			assert.ErrorIs(t, err, grad.ErrInvalidConfig)
		})
	}
}

func TestCameraExtrinsicsRoundTrip(t *testing.T) {
	cam := grad.Camera{
		Rotation:    mgl32.Rotate3DY(0.4).Mul3(mgl32.Rotate3DX(-0.3)),
		Translation: mgl32.Vec3{0.5, -1, 4},
		Intrinsics:  mgl32.Ident3(),
	}
	opts := validOptions()
	opts.Extrinsics = extrinsics(cam)
	cfg, err := grad.NewConfig(opts)
	require.NoError(t, err)
	got := cfg.Camera(0)
	assert.InDeltaSlice(t, cam.Rotation[:], got.Rotation[:], 1e-6)
	assert.Equal(t, cam.Translation, got.Translation)

	p := mgl32.Vec3{1, 2, 3}
	want, gotP := cam.Rotation.Mul3x1(p).Add(cam.Translation), got.ToCamera(p)
	assert.InDeltaSlice(t, want[:], gotP[:], 1e-6)
}

func TestCameraProject(t *testing.T) {
	cam := grad.Camera{
		Rotation:   mgl32.Ident3(),
		Intrinsics: mgl32.Mat3FromRows(mgl32.Vec3{100, 0, 32}, mgl32.Vec3{0, 100, 24}, mgl32.Vec3{0, 0, 1}),
	}
	px, ok := cam.Project(mgl32.Vec3{0.1, -0.2, 2})
	require.True(t, ok)
	assert.InDelta(t, 37, px[0], 1e-4)
	assert.InDelta(t, 14, px[1], 1e-4)

	_, ok = cam.Project(mgl32.Vec3{0, 0, -1})
	assert.False(t, ok)
}

func TestShapes(t *testing.T) {
	opts := validOptions()
	opts.Extrinsics = append(opts.Extrinsics, opts.Extrinsics...)
	opts.Intrinsics = intrinsics(2)
	cfg, err := grad.NewConfig(opts)
	require.NoError(t, err)

	s := cfg.Shapes(5, 8, 16)
	assert.Equal(t, grad.Shape{5, 3, 3}, s.VertexPositions)
	assert.Equal(t, grad.Shape{5, 3, 3}, s.VertexColors)
	assert.Equal(t, grad.Shape{5, 8, 16, 3}, s.Texture)
	assert.Equal(t, grad.Shape{5, 2, 27}, s.SHCoefficients)
	assert.Equal(t, 5*8*16*3, s.Texture.Size())
}

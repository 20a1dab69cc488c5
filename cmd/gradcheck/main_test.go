package main

import (
	"testing"

	"github.com/gmlewis/rastergrad/grad"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingCameras(t *testing.T) {
	ext, intr := ringCameras(3, 4, 64, 32)
	require.Len(t, ext, 3*grad.ExtrinsicsStride)
	require.Len(t, intr, 3*grad.IntrinsicsStride)

	cfg, err := grad.NewConfig(grad.Options{
		Faces:        []int32{0, 1, 2},
		NumVertices:  3,
		Extrinsics:   ext,
		Intrinsics:   intr,
		RenderWidth:  64,
		RenderHeight: 32,
		Mode:         "vertexColor",
	})
	require.NoError(t, err)
	for i := 0; i < cfg.NumCameras(); i++ {
		cam := cfg.Camera(i)
		assert.InDelta(t, 1, cam.Rotation.Det(), 1e-5, "camera %v", i)
		rrt, ident := cam.Rotation.Mul3(cam.Rotation.Transpose()), mgl32.Ident3()
		assert.InDeltaSlice(t, ident[:], rrt[:], 1e-5, "camera %v", i)
		// The origin lies on the optical axis, in front of the camera.
		o := cam.ToCamera(mgl32.Vec3{})
		assert.InDelta(t, 0, o[0], 1e-5)
		assert.InDelta(t, 0, o[1], 1e-5)
		assert.Greater(t, o[2], float32(0))
		px, ok := cam.Project(o)
		require.True(t, ok)
		assert.InDeltaSlice(t, []float32{32, 16}, px[:], 1e-3)
	}
}

func TestVisibleVertices(t *testing.T) {
	ext, intr := ringCameras(4, 4, 64, 64)
	cfg, err := grad.NewConfig(tetrahedron.Options(grad.Options{
		Extrinsics:   ext,
		Intrinsics:   intr,
		RenderWidth:  64,
		RenderHeight: 64,
		Mode:         "vertexColor",
	}))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 4, 4}, visibleVertices(cfg, tetrahedron.Positions))

	// Points far above and below the ring are out of view.
	assert.Equal(t, []int{0, 0, 0, 0}, visibleVertices(cfg, []float32{0, 100, 0, 0, -100, 0}))
}

func TestNewDevice(t *testing.T) {
	*workers = 3
	defer func() { *workers = 0 }()
	dev, err := newDevice("cpu")
	require.NoError(t, err)
	cpu, ok := dev.(*grad.CPUDevice)
	require.True(t, ok)
	assert.Equal(t, 3, cpu.Workers())
	dev.Close()

	_, err = newDevice("tpu")
	assert.Error(t, err)
}

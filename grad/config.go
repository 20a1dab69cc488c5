// Package grad computes the gradients of a differentiable triangle
// rasterizer with spherical-harmonics shading.
//
// Given the upstream gradient of a rendered image and the buffers of the
// forward pass (barycentric weights, face ids, vertex normals), Compute
// propagates the gradient back to vertex positions, vertex colors, the
// texture map and the per-camera SH coefficients. Every pixel of every
// camera scatters its contribution into shared output buffers with atomic
// adds, on the CPU or on a WebGPU device.
package grad

import (
	"fmt"

	"github.com/gmlewis/rastergrad/shading"
)

// Options are the construction-time settings of a gradient pass.
type Options struct {
	// Faces holds one vertex-index triple per triangle.
	Faces []int32
	// TextureCoordinates holds (u, v) per face-vertex. Required in
	// textured mode.
	TextureCoordinates []float32
	// NumVertices is the number of mesh vertices; it must be positive.
	NumVertices int
	// Extrinsics holds a row-major 3×4 [R | t] per camera.
	Extrinsics []float32
	// Intrinsics holds a row-major 3×3 K per camera.
	Intrinsics []float32
	// RenderWidth and RenderHeight are the image resolution. Zero selects
	// DefaultResolution.
	RenderWidth  int
	RenderHeight int
	// Mode is "vertexColor" or "textured".
	Mode string
	// FaceNormalGradients also routes the normal gradient into vertex
	// positions through the face normal of the hit triangle.
	FaceNormalGradients bool
}

// DefaultResolution is the render width and height used when Options
// leaves them zero.
const DefaultResolution = 512

// Config is the immutable configuration derived from Options. It is safe
// to share between goroutines and across Compute calls.
type Config struct {
	topology    *Topology
	cameras     []Camera
	numVertices int
	width       int
	height      int
	mode        shading.Mode
	faceNormals bool
}

// NewConfig validates opts and builds a Config. Every failure wraps
// ErrInvalidConfig.
func NewConfig(opts Options) (*Config, error) {
	if opts.NumVertices <= 0 {
		return nil, fmt.Errorf("%w: number of vertices must be > 0, got %v", ErrInvalidConfig, opts.NumVertices)
	}
	if opts.RenderWidth < 0 || opts.RenderHeight < 0 {
		return nil, fmt.Errorf("%w: render resolution must not be negative, got %vx%v", ErrInvalidConfig, opts.RenderWidth, opts.RenderHeight)
	}
	width, height := opts.RenderWidth, opts.RenderHeight
	if width == 0 {
		width = DefaultResolution
	}
	if height == 0 {
		height = DefaultResolution
	}
	mode, err := shading.ParseMode(opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cameras, err := camerasFromFlat(opts.Extrinsics, opts.Intrinsics)
	if err != nil {
		return nil, err
	}
	topology, err := newTopology(opts.Faces, opts.TextureCoordinates, opts.NumVertices, mode == shading.Textured)
	if err != nil {
		return nil, err
	}

	return &Config{
		topology:    topology,
		cameras:     cameras,
		numVertices: opts.NumVertices,
		width:       width,
		height:      height,
		mode:        mode,
		faceNormals: opts.FaceNormalGradients,
	}, nil
}

// NumVertices returns the number of mesh vertices.
func (c *Config) NumVertices() int { return c.numVertices }

// NumCameras returns the number of cameras.
func (c *Config) NumCameras() int { return len(c.cameras) }

// Camera returns camera i.
func (c *Config) Camera(i int) Camera { return c.cameras[i] }

// Width returns the render width in pixels.
func (c *Config) Width() int { return c.width }

// Height returns the render height in pixels.
func (c *Config) Height() int { return c.height }

// Mode returns the shading mode.
func (c *Config) Mode() shading.Mode { return c.mode }

// Topology returns the face and texture-coordinate tables.
func (c *Config) Topology() *Topology { return c.topology }

// FaceNormalGradients reports whether normal gradients also flow into
// positions through face normals.
func (c *Config) FaceNormalGradients() bool { return c.faceNormals }

// PixelsPerCamera returns Width·Height.
func (c *Config) PixelsPerCamera() int { return c.width * c.height }

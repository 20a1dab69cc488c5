package grad

import (
	"fmt"

	"github.com/gmlewis/rastergrad/shading"
)

// FaceIDStride is the number of int32 slots per pixel in the face-id
// buffer: three vertex indices and one slot the gradient pass ignores.
const FaceIDStride = 4

// Background is the face-id value the forward pass writes for pixels that
// hit no triangle. Any negative index is treated as background.
const Background int32 = -1

// Inputs are the flat, caller-owned buffers of one gradient pass. Shapes
// are listed per field; batch is derived from VertexPositions.
type Inputs struct {
	RenderGrad      []float32 // [batch, cameras, H, W, 3]
	VertexPositions []float32 // [batch, V, 3]
	VertexColors    []float32 // [batch, V, 3]
	Texture         []float32 // [batch, TextureHeight, TextureWidth, 3]
	TextureHeight   int
	TextureWidth    int
	SHCoefficients  []float32 // [batch, cameras, 27]
	VertexNormals   []float32 // [batch, cameras, V, 3]
	Barycentrics    []float32 // [batch, cameras, H, W, 3]
	FaceIDs         []int32   // [batch, cameras, H, W, 4]
}

// Outputs are the gradient buffers written by Compute. Each mirrors the
// shape of the matching input.
type Outputs struct {
	VertexPositions []float32 // [batch, V, 3]
	VertexColors    []float32 // [batch, V, 3]
	Texture         []float32 // [batch, texH, texW, 3]
	SHCoefficients  []float32 // [batch, cameras, 27]
}

// Shape is a tensor shape.
type Shape []int

// Size returns the number of elements.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// OutputShapes are the shapes of the four gradient buffers.
type OutputShapes struct {
	VertexPositions Shape
	VertexColors    Shape
	Texture         Shape
	SHCoefficients  Shape
}

// Shapes returns the output shapes for batch elements and a
// texHeight×texWidth texture.
func (c *Config) Shapes(batch, texHeight, texWidth int) OutputShapes {
	return OutputShapes{
		VertexPositions: Shape{batch, c.numVertices, 3},
		VertexColors:    Shape{batch, c.numVertices, 3},
		Texture:         Shape{batch, texHeight, texWidth, 3},
		SHCoefficients:  Shape{batch, c.NumCameras(), shading.NumCoefficients},
	}
}

// NewOutputs allocates zeroed gradient buffers matching in.
func NewOutputs(cfg *Config, in *Inputs) (*Outputs, error) {
	batch, err := cfg.checkInputs(in)
	if err != nil {
		return nil, err
	}
	s := cfg.Shapes(batch, in.TextureHeight, in.TextureWidth)
	return &Outputs{
		VertexPositions: make([]float32, s.VertexPositions.Size()),
		VertexColors:    make([]float32, s.VertexColors.Size()),
		Texture:         make([]float32, s.Texture.Size()),
		SHCoefficients:  make([]float32, s.SHCoefficients.Size()),
	}, nil
}

func (o *Outputs) zero() {
	for _, buf := range [][]float32{o.VertexPositions, o.VertexColors, o.Texture, o.SHCoefficients} {
		clear(buf)
	}
}

func checkLen(name string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %v has %v elements, want %v", ErrShape, name, got, want)
	}
	return nil
}

// checkInputs validates the size-derived quantities of in and returns the
// batch count.
func (c *Config) checkInputs(in *Inputs) (int, error) {
	perBatch := c.numVertices * 3
	if len(in.VertexPositions) == 0 || len(in.VertexPositions)%perBatch != 0 {
		return 0, fmt.Errorf("%w: vertex positions have %v elements, want a non-zero multiple of %v",
			ErrShape, len(in.VertexPositions), perBatch)
	}
	batch := len(in.VertexPositions) / perBatch
	if in.TextureHeight < 0 || in.TextureWidth < 0 {
		return 0, fmt.Errorf("%w: negative texture resolution %vx%v", ErrShape, in.TextureWidth, in.TextureHeight)
	}
	if c.mode == shading.Textured && (in.TextureHeight == 0 || in.TextureWidth == 0) {
		return 0, fmt.Errorf("%w: textured mode needs a non-empty texture", ErrShape)
	}

	cams, pixels := c.NumCameras(), c.PixelsPerCamera()
	checks := []struct {
		name      string
		got, want int
	}{
		{"render gradient", len(in.RenderGrad), batch * cams * pixels * 3},
		{"vertex colors", len(in.VertexColors), batch * c.numVertices * 3},
		{"texture", len(in.Texture), batch * in.TextureHeight * in.TextureWidth * 3},
		{"SH coefficients", len(in.SHCoefficients), batch * cams * shading.NumCoefficients},
		{"vertex normals", len(in.VertexNormals), batch * cams * c.numVertices * 3},
		{"barycentric buffer", len(in.Barycentrics), batch * cams * pixels * 3},
		{"face-id buffer", len(in.FaceIDs), batch * cams * pixels * FaceIDStride},
	}
	for _, ch := range checks {
		if err := checkLen(ch.name, ch.got, ch.want); err != nil {
			return 0, err
		}
	}
	return batch, nil
}

func (c *Config) checkOutputs(out *Outputs, batch, texHeight, texWidth int) error {
	s := c.Shapes(batch, texHeight, texWidth)
	if err := checkLen("vertex position gradient", len(out.VertexPositions), s.VertexPositions.Size()); err != nil {
		return err
	}
	if err := checkLen("vertex color gradient", len(out.VertexColors), s.VertexColors.Size()); err != nil {
		return err
	}
	if err := checkLen("texture gradient", len(out.Texture), s.Texture.Size()); err != nil {
		return err
	}
	return checkLen("SH coefficient gradient", len(out.SHCoefficients), s.SHCoefficients.Size())
}

// BatchView holds the slices of one batch element. Inputs are read-only;
// the gradient slices are write-shared and only ever atomically added to.
type BatchView struct {
	Batch int

	RenderGrad      []float32
	VertexPositions []float32
	VertexColors    []float32
	Texture         shading.Texture
	SHCoefficients  []float32
	VertexNormals   []float32
	Barycentrics    []float32
	FaceIDs         []int32

	VertexPositionGrad []float32
	VertexColorGrad    []float32
	TextureGrad        []float32
	SHCoefficientGrad  []float32
}

func window[T any](buf []T, b, stride int) []T {
	return buf[b*stride : (b+1)*stride : (b+1)*stride]
}

// bindBatch slices in and out at the fixed per-batch strides.
func bindBatch(c *Config, in *Inputs, out *Outputs, b int) *BatchView {
	cams, pixels := c.NumCameras(), c.PixelsPerCamera()
	vertexStride := c.numVertices * 3
	imageStride := cams * pixels * 3
	texStride := in.TextureHeight * in.TextureWidth * 3
	shStride := cams * shading.NumCoefficients

	return &BatchView{
		Batch:           b,
		RenderGrad:      window(in.RenderGrad, b, imageStride),
		VertexPositions: window(in.VertexPositions, b, vertexStride),
		VertexColors:    window(in.VertexColors, b, vertexStride),
		Texture: shading.Texture{
			Width:  in.TextureWidth,
			Height: in.TextureHeight,
			Data:   window(in.Texture, b, texStride),
		},
		SHCoefficients: window(in.SHCoefficients, b, shStride),
		VertexNormals:  window(in.VertexNormals, b, cams*vertexStride),
		Barycentrics:   window(in.Barycentrics, b, imageStride),
		FaceIDs:        window(in.FaceIDs, b, cams*pixels*FaceIDStride),

		VertexPositionGrad: window(out.VertexPositions, b, vertexStride),
		VertexColorGrad:    window(out.VertexColors, b, vertexStride),
		TextureGrad:        window(out.Texture, b, texStride),
		SHCoefficientGrad:  window(out.SHCoefficients, b, shStride),
	}
}

// Package forward is a CPU reference of the forward shading model that the
// gradient pass differentiates. It renders pixel colors from the same
// buffers grad.Compute reads, which makes it the ground truth for finite
// difference checks, and it synthesizes plausible forward buffers for
// tooling that has no rasterizer at hand.
package forward

import (
	"fmt"

	"github.com/gmlewis/rastergrad/grad"
	"github.com/gmlewis/rastergrad/shading"
	"github.com/go-gl/mathgl/mgl32"
)

// Frame addresses one batch element of a set of inputs.
type Frame struct {
	Config *grad.Config
	Inputs *grad.Inputs
	Batch  int
}

func vec3(buf []float32, i int) mgl32.Vec3 {
	return mgl32.Vec3{buf[3*i], buf[3*i+1], buf[3*i+2]}
}

func (f Frame) vertexStride() int { return f.Config.NumVertices() * 3 }

func (f Frame) pixelIndex(cam, pixel int) int {
	return (f.Batch*f.Config.NumCameras()+cam)*f.Config.PixelsPerCamera() + pixel
}

// Face returns the vertex triple at a pixel and whether it is covered.
func (f Frame) Face(cam, pixel int) ([3]int32, bool) {
	o := f.pixelIndex(cam, pixel) * grad.FaceIDStride
	ids := f.Inputs.FaceIDs
	tri := [3]int32{ids[o], ids[o+1], ids[o+2]}
	return tri, tri[0] >= 0 && tri[1] >= 0 && tri[2] >= 0
}

// Position returns the world-space position of vertex i.
func (f Frame) Position(i int) mgl32.Vec3 {
	return vec3(f.Inputs.VertexPositions[f.Batch*f.vertexStride():], i)
}

// Anchors returns, per pixel of every camera, the camera-space surface
// point Σ b_k·v_k implied by the barycentric buffer. Background pixels
// get the zero vector. Holding the anchors fixed while vertices move is
// what makes the barycentric weights a function of vertex positions.
func Anchors(f Frame) []mgl32.Vec3 {
	cfg := f.Config
	pixels := cfg.PixelsPerCamera()
	anchors := make([]mgl32.Vec3, cfg.NumCameras()*pixels)
	for cam := 0; cam < cfg.NumCameras(); cam++ {
		camera := cfg.Camera(cam)
		for p := 0; p < pixels; p++ {
			tri, ok := f.Face(cam, p)
			if !ok {
				continue
			}
			bary := vec3(f.Inputs.Barycentrics, f.pixelIndex(cam, p))
			var anchor mgl32.Vec3
			for k, id := range tri {
				anchor = anchor.Add(camera.ToCamera(f.Position(int(id))).Mul(bary[k]))
			}
			anchors[cam*pixels+p] = anchor
		}
	}
	return anchors
}

// Barycentrics solves [v0 v1 v2]·b = anchor for the camera-space vertices
// of a triangle. ok is false for a singular system.
func Barycentrics(v0, v1, v2, anchor mgl32.Vec3) (b mgl32.Vec3, ok bool) {
	m := mgl32.Mat3FromCols(v0, v1, v2)
	if m.Det() == 0 {
		return mgl32.Vec3{}, false
	}
	return m.Inv().Mul3x1(anchor), true
}

// Pixel shades a single pixel. With anchors nil the barycentric buffer is
// used as is; otherwise the weights are recomputed from the current vertex
// positions. Background pixels are black.
func Pixel(f Frame, anchors []mgl32.Vec3, cam, pixel int) (mgl32.Vec3, error) {
	cfg := f.Config
	tri, ok := f.Face(cam, pixel)
	if !ok {
		return mgl32.Vec3{}, nil
	}
	for _, id := range tri {
		if int(id) >= cfg.NumVertices() {
			return mgl32.Vec3{}, fmt.Errorf("%w: pixel %v of camera %v references vertex %v",
				grad.ErrVertexIndex, pixel, cam, id)
		}
	}

	camera := cfg.Camera(cam)
	var pos [3]mgl32.Vec3
	for k, id := range tri {
		pos[k] = f.Position(int(id))
	}

	bary := vec3(f.Inputs.Barycentrics, f.pixelIndex(cam, pixel))
	if anchors != nil {
		b, ok := Barycentrics(camera.ToCamera(pos[0]), camera.ToCamera(pos[1]), camera.ToCamera(pos[2]), anchors[cam*cfg.PixelsPerCamera()+pixel])
		if ok {
			bary = b
		}
	}

	var unnormalized mgl32.Vec3
	if cfg.FaceNormalGradients() {
		unnormalized = shading.FaceNormal(camera.Rotation, pos[0], pos[1], pos[2]).Mul(bary[0] + bary[1] + bary[2])
	} else {
		normals := f.Inputs.VertexNormals[(f.Batch*cfg.NumCameras()+cam)*f.vertexStride():]
		for k, id := range tri {
			unnormalized = unnormalized.Add(vec3(normals, int(id)).Mul(bary[k]))
		}
	}
	normal, _ := shading.Normalize(unnormalized)

	var albedo mgl32.Vec3
	switch cfg.Mode() {
	case shading.VertexColor:
		colors := f.Inputs.VertexColors[f.Batch*f.vertexStride():]
		for k, id := range tri {
			albedo = albedo.Add(vec3(colors, int(id)).Mul(bary[k]))
		}
	case shading.Textured:
		face, ok := cfg.Topology().FaceIndex(tri)
		if !ok {
			return mgl32.Vec3{}, fmt.Errorf("%w: pixel %v of camera %v hit %v", grad.ErrUnknownFace, pixel, cam, tri)
		}
		uvs := cfg.Topology().TexCoords(face)
		uv := uvs[0].Mul(bary[0]).Add(uvs[1].Mul(bary[1])).Add(uvs[2].Mul(bary[2]))
		albedo = Texture(f).Sample(uv)
	}

	sh := f.Inputs.SHCoefficients[(f.Batch*cfg.NumCameras()+cam)*shading.NumCoefficients:]
	return shading.Shade(albedo, normal, sh[:shading.NumCoefficients]), nil
}

// Texture returns the texture map of the frame's batch element.
func Texture(f Frame) shading.Texture {
	in := f.Inputs
	stride := in.TextureHeight * in.TextureWidth * 3
	return shading.Texture{
		Width:  in.TextureWidth,
		Height: in.TextureHeight,
		Data:   in.Texture[f.Batch*stride : (f.Batch+1)*stride],
	}
}

// Render shades every pixel of every camera into a [cameras, H, W, 3]
// image.
func Render(f Frame, anchors []mgl32.Vec3) ([]float32, error) {
	cfg := f.Config
	pixels := cfg.PixelsPerCamera()
	img := make([]float32, cfg.NumCameras()*pixels*3)
	for cam := 0; cam < cfg.NumCameras(); cam++ {
		for p := 0; p < pixels; p++ {
			c, err := Pixel(f, anchors, cam, p)
			if err != nil {
				return nil, err
			}
			copy(img[3*(cam*pixels+p):], c[:])
		}
	}
	return img, nil
}

// Loss is the scalar Σ g·C whose gradient the backward pass computes when
// g is the frame's upstream render gradient. It is accumulated in float64.
func Loss(f Frame, anchors []mgl32.Vec3) (float64, error) {
	img, err := Render(f, anchors)
	if err != nil {
		return 0, err
	}
	stride := len(img)
	g := f.Inputs.RenderGrad[f.Batch*stride : (f.Batch+1)*stride]
	var loss float64
	for i, c := range img {
		loss += float64(g[i]) * float64(c)
	}
	return loss, nil
}

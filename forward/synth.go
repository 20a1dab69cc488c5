package forward

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/gmlewis/rastergrad/grad"
	"github.com/gmlewis/rastergrad/jacobian"
	"github.com/gmlewis/rastergrad/shading"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoVisibleFaces is returned by Synthesize when every face of the mesh
// is degenerate as seen from some camera.
var ErrNoVisibleFaces = errors.New("no well-conditioned faces")

// VertexNormals returns area-weighted vertex normals of one batch element
// of positions, rotated into every camera: [cameras, V, 3]. Vertices used
// by no face get a zero normal.
func VertexNormals(cfg *grad.Config, positions []float32) []float32 {
	nv := cfg.NumVertices()
	world := make([]mgl32.Vec3, nv)
	topo := cfg.Topology()
	for f := 0; f < topo.NumFaces(); f++ {
		tri := topo.Face(f)
		v0, v1, v2 := vec3(positions, int(tri[0])), vec3(positions, int(tri[1])), vec3(positions, int(tri[2]))
		n := v1.Sub(v0).Cross(v2.Sub(v0))
		for _, id := range tri {
			world[id] = world[id].Add(n)
		}
	}

	out := make([]float32, cfg.NumCameras()*nv*3)
	for cam := 0; cam < cfg.NumCameras(); cam++ {
		rot := cfg.Camera(cam).Rotation
		for i, n := range world {
			n, _ = shading.Normalize(n)
			r := rot.Mul3x1(n)
			copy(out[3*(cam*nv+i):], r[:])
		}
	}
	return out
}

// SynthOptions control Synthesize.
type SynthOptions struct {
	// Batch is the number of batch elements; values below 1 mean 1.
	Batch int
	// Positions holds V×3 world-space vertex positions. Batch elements
	// after the first are jittered copies.
	Positions []float32
	// Colors holds V×3 vertex colors; random when nil.
	Colors []float32
	// TextureWidth and TextureHeight size a random texture map.
	TextureWidth  int
	TextureHeight int
	// Background is the fraction of pixels left uncovered.
	Background float64
	// Jitter scales the per-batch position noise.
	Jitter float32
}

// well-conditioned faces have |det| above this fraction of the product of
// their camera-space vertex lengths.
const minConditioning = 1e-3

func visibleFaces(cfg *grad.Config, positions []float32, cam int) []int32 {
	camera := cfg.Camera(cam)
	topo := cfg.Topology()
	var faces []int32
	for f := 0; f < topo.NumFaces(); f++ {
		tri := topo.Face(f)
		var v [3]mgl32.Vec3
		for k, id := range tri {
			v[k] = camera.ToCamera(vec3(positions, int(id)))
		}
		det := mgl32.Mat3FromCols(v[0], v[1], v[2]).Det()
		scale := v[0].Len() * v[1].Len() * v[2].Len()
		if scale > 0 && abs32(det) > minConditioning*scale && abs32(det) > jacobian.DegenerateTolerance {
			faces = append(faces, int32(f))
		}
	}
	return faces
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// randomBarycentric draws interior weights bounded away from the edges.
func randomBarycentric(rng *rand.Rand) mgl32.Vec3 {
	const floor = 0.05
	b := mgl32.Vec3{floor + rng.Float32(), floor + rng.Float32(), floor + rng.Float32()}
	return b.Mul(1 / (b[0] + b[1] + b[2]))
}

// Synthesize fills a grad.Inputs with plausible forward buffers: a random
// well-conditioned face and interior barycentrics per covered pixel,
// camera-space vertex normals, mild SH lighting and a random upstream
// gradient. It stands in for a rasterizer in tooling and tests.
func Synthesize(rng *rand.Rand, cfg *grad.Config, opts SynthOptions) (*grad.Inputs, error) {
	nv := cfg.NumVertices()
	if len(opts.Positions) != nv*3 {
		return nil, fmt.Errorf("%w: positions have %v elements, want %v", grad.ErrShape, len(opts.Positions), nv*3)
	}
	if opts.Colors != nil && len(opts.Colors) != nv*3 {
		return nil, fmt.Errorf("%w: colors have %v elements, want %v", grad.ErrShape, len(opts.Colors), nv*3)
	}
	batch := max(opts.Batch, 1)
	cams, pixels := cfg.NumCameras(), cfg.PixelsPerCamera()
	texels := opts.TextureWidth * opts.TextureHeight * 3

	in := &grad.Inputs{
		RenderGrad:      make([]float32, batch*cams*pixels*3),
		VertexPositions: make([]float32, 0, batch*nv*3),
		VertexColors:    make([]float32, 0, batch*nv*3),
		Texture:         make([]float32, batch*texels),
		TextureHeight:   opts.TextureHeight,
		TextureWidth:    opts.TextureWidth,
		SHCoefficients:  make([]float32, batch*cams*shading.NumCoefficients),
		VertexNormals:   make([]float32, 0, batch*cams*nv*3),
		Barycentrics:    make([]float32, batch*cams*pixels*3),
		FaceIDs:         make([]int32, batch*cams*pixels*grad.FaceIDStride),
	}

	for b := 0; b < batch; b++ {
		positions := append([]float32(nil), opts.Positions...)
		if b > 0 {
			for i := range positions {
				positions[i] += opts.Jitter * float32(rng.NormFloat64())
			}
		}
		in.VertexPositions = append(in.VertexPositions, positions...)
		in.VertexNormals = append(in.VertexNormals, VertexNormals(cfg, positions)...)
		if opts.Colors != nil {
			in.VertexColors = append(in.VertexColors, opts.Colors...)
		} else {
			for i := 0; i < nv*3; i++ {
				in.VertexColors = append(in.VertexColors, rng.Float32())
			}
		}
		for i := b * texels; i < (b+1)*texels; i++ {
			in.Texture[i] = rng.Float32()
		}

		for cam := 0; cam < cams; cam++ {
			sh := in.SHCoefficients[(b*cams+cam)*shading.NumCoefficients:]
			for ch := 0; ch < shading.NumChannels; ch++ {
				sh[ch*shading.NumBasis] = 1
				for j := 1; j < shading.NumBasis; j++ {
					sh[ch*shading.NumBasis+j] = 0.2 * (2*rng.Float32() - 1)
				}
			}

			faces := visibleFaces(cfg, positions, cam)
			if len(faces) == 0 {
				return nil, fmt.Errorf("%w: camera %v", ErrNoVisibleFaces, cam)
			}
			for p := 0; p < pixels; p++ {
				q := (b*cams+cam)*pixels + p
				ids := in.FaceIDs[q*grad.FaceIDStride : (q+1)*grad.FaceIDStride]
				if rng.Float64() < opts.Background {
					ids[0], ids[1], ids[2], ids[3] = grad.Background, grad.Background, grad.Background, grad.Background
					continue
				}
				f := faces[rng.Intn(len(faces))]
				tri := cfg.Topology().Face(int(f))
				ids[0], ids[1], ids[2], ids[3] = tri[0], tri[1], tri[2], f
				bary := randomBarycentric(rng)
				copy(in.Barycentrics[3*q:], bary[:])
				for c := 0; c < 3; c++ {
					in.RenderGrad[3*q+c] = 2*rng.Float32() - 1
				}
			}
		}
	}
	return in, nil
}

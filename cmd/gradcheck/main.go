// gradcheck runs the rasterizer backward pass on synthetic forward buffers
// and compares a random sample of its gradients with central finite
// differences of the reference forward shading.
//
// Usage:
//
//	gradcheck -mesh bunny.obj -mode vertexColor -device cpu -samples 32
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/gmlewis/rastergrad/forward"
	"github.com/gmlewis/rastergrad/grad"
	"github.com/gmlewis/rastergrad/gradcheck"
	"github.com/gmlewis/rastergrad/mesh"
	"github.com/gmlewis/rastergrad/shading"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	meshFile = flag.String("mesh", "", "OBJ or STL mesh to load (default: a built-in tetrahedron)")
	width    = flag.Int("width", 32, "Render width in pixels")
	height   = flag.Int("height", 32, "Render height in pixels")
	cameras  = flag.Int("cameras", 2, "Number of cameras placed around the mesh")
	batch    = flag.Int("batch", 1, "Number of batch elements")
	mode     = flag.String("mode", "vertexColor", "Shading mode: vertexColor or textured")
	device   = flag.String("device", "cpu", "Kernel device: cpu or webgpu")
	workers  = flag.Int("workers", 0, "CPU workers (0 = GOMAXPROCS)")
	texSize  = flag.Int("tex", 16, "Texture width and height in textured mode")
	samples  = flag.Int("samples", 16, "Number of parameters to check per tensor")
	seed     = flag.Int64("seed", 1, "Random seed")
	eps      = flag.Float64("eps", gradcheck.DefaultStep, "Finite-difference step")
	tol      = flag.Float64("tol", 2e-2, "Allowed absolute or relative error")
	verbose  = flag.Bool("v", false, "Log kernel progress")
)

// tetrahedron is used when no mesh file is given.
var tetrahedron = &mesh.Mesh{
	Positions: []float32{1, 1, 1, 1, -1, -1, -1, 1, -1, -1, -1, 1},
	Colors:    []float32{0.9, 0.2, 0.2, 0.2, 0.9, 0.2, 0.2, 0.2, 0.9, 0.8, 0.8, 0.2},
	Faces:     []int32{0, 1, 2, 0, 3, 1, 0, 2, 3, 1, 3, 2},
	TexCoords: []float32{
		0.3, 0.3, 0.7, 0.3, 0.5, 0.7,
		0.3, 0.3, 0.7, 0.3, 0.5, 0.7,
		0.3, 0.3, 0.7, 0.3, 0.5, 0.7,
		0.3, 0.3, 0.7, 0.3, 0.5, 0.7,
	},
}

func main() {
	flag.Parse()
	if *verbose {
		grad.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	m := tetrahedron
	if *meshFile != "" {
		var err error
		if m, err = mesh.Load(*meshFile, true); err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("Mesh: %v vertices, %v faces", m.NumVertices(), m.NumFaces())

	ext, intr := ringCameras(*cameras, 4, *width, *height)
	cfg, err := grad.NewConfig(m.Options(grad.Options{
		Extrinsics:   ext,
		Intrinsics:   intr,
		RenderWidth:  *width,
		RenderHeight: *height,
		Mode:         *mode,
	}))
	if err != nil {
		log.Fatal(err)
	}

	for cam, n := range visibleVertices(cfg, m.Positions) {
		if n == 0 {
			log.Fatalf("Camera %v sees none of the %v mesh vertices", cam, m.NumVertices())
		}
	}

	dev, err := newDevice(*device)
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Close()

	rng := rand.New(rand.NewSource(*seed))
	synth := forward.SynthOptions{
		Batch:      *batch,
		Positions:  m.Positions,
		Colors:     m.Colors,
		Background: 0.1,
		Jitter:     0.01,
	}
	if cfg.Mode() == shading.Textured {
		synth.TextureWidth, synth.TextureHeight = *texSize, *texSize
	}
	in, err := forward.Synthesize(rng, cfg, synth)
	if err != nil {
		log.Fatal(err)
	}
	out, err := grad.NewOutputs(cfg, in)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	if err := grad.Compute(dev, cfg, in, out); err != nil {
		log.Fatal(err)
	}
	log.Printf("Backward pass on %v: %v", *device, time.Since(start))

	ok := true
	for b := 0; b < max(*batch, 1); b++ {
		f := forward.Frame{Config: cfg, Inputs: in, Batch: b}
		anchors := forward.Anchors(f)
		for _, p := range tensors(cfg, in, out, b) {
			if len(p.param) == 0 {
				continue
			}
			r, err := check(rng, f, anchors, p)
			if err != nil {
				log.Fatal(err)
			}
			status := "ok"
			if !r.Within(*tol) {
				status, ok = "FAIL", false
			}
			log.Printf("batch %v %-18v %v: %v", b, p.name, status, r)
		}
	}
	if !ok {
		os.Exit(1)
	}
}

func newDevice(name string) (grad.Device, error) {
	switch name {
	case "cpu":
		d := grad.NewCPUDevice(*workers)
		log.Printf("CPU device with %v workers", d.Workers())
		return d, nil
	case "webgpu":
		return grad.NewWebGPUDevice()
	default:
		return nil, fmt.Errorf("unknown device %q, want cpu or webgpu", name)
	}
}

// ringCameras places n cameras on a circle of the given radius in the
// y=0.5 plane, all looking at the origin. Camera space has +z forward and
// +y down so that the pinhole intrinsics map the origin to the image center.
func ringCameras(n int, radius float32, w, h int) (ext, intr []float32) {
	flip := mgl32.Diag3(mgl32.Vec3{1, -1, -1})
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		eye := mgl32.Vec3{radius * float32(math.Sin(angle)), 0.5, radius * float32(math.Cos(angle))}
		view := mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
		cam := grad.Camera{
			Rotation:    flip.Mul3(view.Mat3()),
			Translation: flip.Mul3x1(view.Col(3).Vec3()),
		}
		e := cam.Extrinsics()
		ext = append(ext, e[:]...)

		f := float32(max(w, h))
		intr = append(intr, f, 0, float32(w)/2, 0, f, float32(h)/2, 0, 0, 1)
	}
	return ext, intr
}

// visibleVertices counts, per camera, the vertices of positions that
// project inside the image.
func visibleVertices(cfg *grad.Config, positions []float32) []int {
	counts := make([]int, cfg.NumCameras())
	for cam := range counts {
		camera := cfg.Camera(cam)
		for i := 0; i+2 < len(positions); i += 3 {
			p := camera.ToCamera(mgl32.Vec3{positions[i], positions[i+1], positions[i+2]})
			px, ok := camera.Project(p)
			if ok && px[0] >= 0 && px[0] < float32(cfg.Width()) && px[1] >= 0 && px[1] < float32(cfg.Height()) {
				counts[cam]++
			}
		}
	}
	return counts
}

type tensor struct {
	name     string
	param    []float32
	analytic []float32
}

func window(buf []float32, b int) []float32 {
	stride := len(buf) / max(*batch, 1)
	return buf[b*stride : (b+1)*stride]
}

func tensors(cfg *grad.Config, in *grad.Inputs, out *grad.Outputs, b int) []tensor {
	ts := []tensor{
		{"vertex positions", window(in.VertexPositions, b), window(out.VertexPositions, b)},
		{"SH coefficients", window(in.SHCoefficients, b), window(out.SHCoefficients, b)},
	}
	if cfg.Mode() == shading.Textured {
		return append(ts, tensor{"texture", window(in.Texture, b), window(out.Texture, b)})
	}
	return append(ts, tensor{"vertex colors", window(in.VertexColors, b), window(out.VertexColors, b)})
}

// check compares the analytic gradient of a random sample of p's entries
// with central differences of the forward loss.
func check(rng *rand.Rand, f forward.Frame, anchors []mgl32.Vec3, p tensor) (gradcheck.Report, error) {
	idx := rng.Perm(len(p.param))
	if len(idx) > *samples {
		idx = idx[:*samples]
	}
	analytic := make([]float64, len(idx))
	numeric := make([]float64, len(idx))
	var lossErr error
	for j, i := range idx {
		orig := p.param[i]
		g := gradcheck.Gradient(func(x []float64) float64 {
			p.param[i] = float32(x[0])
			loss, err := forward.Loss(f, anchors)
			if err != nil && lossErr == nil {
				lossErr = err
			}
			return loss
		}, []float64{float64(orig)}, *eps)
		p.param[i] = orig
		analytic[j], numeric[j] = float64(p.analytic[i]), g[0]
	}
	if lossErr != nil {
		return gradcheck.Report{}, lossErr
	}
	return gradcheck.CompareVectors(analytic, numeric), nil
}

package shading

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Texture is a view of an RGB texture stored row-major as [Height, Width, 3].
// Texel (x, y) is centered at uv ((x+0.5)/Width, (y+0.5)/Height); lookups
// outside the map clamp to the edge.
type Texture struct {
	Width  int
	Height int
	Data   []float32
}

// Tap is one bilinear filter tap: a texel index (y*Width + x) and its weight.
type Tap struct {
	Index  int
	Weight float32
}

type footprint struct {
	x0, x1, y0, y1 int
	fx, fy         float32
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (t Texture) footprint(uv mgl32.Vec2) footprint {
	// Clamped before the int conversion so huge coordinates cannot overflow.
	x := clampFloat(float64(uv[0])*float64(t.Width)-0.5, -1, float64(t.Width))
	y := clampFloat(float64(uv[1])*float64(t.Height)-0.5, -1, float64(t.Height))
	fx, fy := math.Floor(x), math.Floor(y)
	return footprint{
		x0: clampInt(int(fx), 0, t.Width-1),
		x1: clampInt(int(fx)+1, 0, t.Width-1),
		y0: clampInt(int(fy), 0, t.Height-1),
		y1: clampInt(int(fy)+1, 0, t.Height-1),
		fx: float32(x - fx),
		fy: float32(y - fy),
	}
}

// Taps returns the four bilinear taps sampled at uv. Weights sum to one.
func (t Texture) Taps(uv mgl32.Vec2) [4]Tap {
	f := t.footprint(uv)
	return [4]Tap{
		{Index: f.y0*t.Width + f.x0, Weight: (1 - f.fx) * (1 - f.fy)},
		{Index: f.y0*t.Width + f.x1, Weight: f.fx * (1 - f.fy)},
		{Index: f.y1*t.Width + f.x0, Weight: (1 - f.fx) * f.fy},
		{Index: f.y1*t.Width + f.x1, Weight: f.fx * f.fy},
	}
}

// Texel returns the color stored at texel index i.
func (t Texture) Texel(i int) mgl32.Vec3 {
	return mgl32.Vec3{t.Data[3*i], t.Data[3*i+1], t.Data[3*i+2]}
}

// Sample returns the bilinearly filtered color at uv.
func (t Texture) Sample(uv mgl32.Vec2) mgl32.Vec3 {
	var c mgl32.Vec3
	for _, tap := range t.Taps(uv) {
		c = c.Add(t.Texel(tap.Index).Mul(tap.Weight))
	}
	return c
}

// SampleGrad returns the filtered color at uv and its derivatives with
// respect to u and v. Derivatives vanish where the lookup is clamped.
func (t Texture) SampleGrad(uv mgl32.Vec2) (c, du, dv mgl32.Vec3) {
	f := t.footprint(uv)
	t00 := t.Texel(f.y0*t.Width + f.x0)
	t10 := t.Texel(f.y0*t.Width + f.x1)
	t01 := t.Texel(f.y1*t.Width + f.x0)
	t11 := t.Texel(f.y1*t.Width + f.x1)

	top := t00.Mul(1 - f.fx).Add(t10.Mul(f.fx))
	bottom := t01.Mul(1 - f.fx).Add(t11.Mul(f.fx))
	c = top.Mul(1 - f.fy).Add(bottom.Mul(f.fy))

	dfx := t10.Sub(t00).Mul(1 - f.fy).Add(t11.Sub(t01).Mul(f.fy))
	dfy := bottom.Sub(top)
	du = dfx.Mul(float32(t.Width))
	dv = dfy.Mul(float32(t.Height))
	return c, du, dv
}

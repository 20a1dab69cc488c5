// Package gradcheck compares analytic derivatives against central finite
// differences computed with gonum's diff/fd package.
package gradcheck

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// DefaultStep is the finite-difference step used when Step is zero. It is
// sized for functions evaluated in float32.
const DefaultStep = 1e-3

// Jacobian estimates the m×n Jacobian of f at x. f writes its m outputs to y.
func Jacobian(m int, f func(y, x []float64), x []float64, step float64) *mat.Dense {
	if step == 0 {
		step = DefaultStep
	}
	dst := mat.NewDense(m, len(x), nil)
	fd.Jacobian(dst, f, x, &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    step,
	})
	return dst
}

// Gradient estimates the gradient of the scalar function f at x.
func Gradient(f func(x []float64) float64, x []float64, step float64) []float64 {
	if step == 0 {
		step = DefaultStep
	}
	return fd.Gradient(nil, f, x, &fd.Settings{
		Formula: fd.Central,
		Step:    step,
	})
}

// Dense builds a rows×cols matrix from an accessor, typically a float32
// matrix method value such as mgl32.Mat3.At.
func Dense(rows, cols int, at func(row, col int) float32) *mat.Dense {
	d := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d.Set(i, j, float64(at(i, j)))
		}
	}
	return d
}

// Float64s widens a float32 slice.
func Float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Report summarizes the worst disagreement between two matrices.
type Report struct {
	MaxAbs float64
	MaxRel float64
	Row    int
	Col    int
}

func (r Report) String() string {
	return fmt.Sprintf("max abs %.3g, max rel %.3g at (%v,%v)", r.MaxAbs, r.MaxRel, r.Row, r.Col)
}

// Within reports whether every entry agrees within tol, either absolutely
// or relative to the larger magnitude.
func (r Report) Within(tol float64) bool {
	return r.MaxAbs <= tol || r.MaxRel <= tol
}

// relFloor keeps the relative error of near-zero entries from exploding.
const relFloor = 1e-3

// Compare returns the largest absolute and relative differences between
// analytic and numeric, which must have the same shape.
func Compare(analytic, numeric mat.Matrix) Report {
	ar, ac := analytic.Dims()
	nr, nc := numeric.Dims()
	if ar != nr || ac != nc {
		panic(fmt.Sprintf("gradcheck: shape mismatch %vx%v vs %vx%v", ar, ac, nr, nc))
	}
	var r Report
	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			a, n := analytic.At(i, j), numeric.At(i, j)
			abs := math.Abs(a - n)
			rel := abs / math.Max(relFloor, math.Max(math.Abs(a), math.Abs(n)))
			if abs > r.MaxAbs {
				r.MaxAbs, r.Row, r.Col = abs, i, j
			}
			if rel > r.MaxRel {
				r.MaxRel = rel
			}
		}
	}
	return r
}

// CompareVectors is Compare for two gradients of equal length.
func CompareVectors(analytic, numeric []float64) Report {
	return Compare(mat.NewDense(1, len(analytic), analytic), mat.NewDense(1, len(numeric), numeric))
}

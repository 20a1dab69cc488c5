package grad

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// ExtrinsicsStride is the number of floats per camera in the
	// extrinsics array: a row-major 3×4 [R | t].
	ExtrinsicsStride = 12
	// IntrinsicsStride is the number of floats per camera in the
	// intrinsics array: a row-major 3×3 K.
	IntrinsicsStride = 9
)

// Camera is a rigid transform from world to camera space plus a pinhole
// projection.
type Camera struct {
	Rotation    mgl32.Mat3
	Translation mgl32.Vec3
	Intrinsics  mgl32.Mat3
}

// ToCamera maps a world-space point to camera space: R·v + t.
func (c Camera) ToCamera(v mgl32.Vec3) mgl32.Vec3 {
	return c.Rotation.Mul3x1(v).Add(c.Translation)
}

// Project maps a camera-space point to pixel coordinates. It reports false
// for points at or behind the camera plane.
func (c Camera) Project(p mgl32.Vec3) (mgl32.Vec2, bool) {
	if p[2] <= 0 {
		return mgl32.Vec2{}, false
	}
	h := c.Intrinsics.Mul3x1(p)
	return mgl32.Vec2{h[0] / h[2], h[1] / h[2]}, true
}

// Extrinsics returns the camera's flat row-major [R | t].
func (c Camera) Extrinsics() [ExtrinsicsStride]float32 {
	var e [ExtrinsicsStride]float32
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			e[4*r+col] = c.Rotation.At(r, col)
		}
		e[4*r+3] = c.Translation[r]
	}
	return e
}

func camerasFromFlat(extrinsics, intrinsics []float32) ([]Camera, error) {
	if len(extrinsics) == 0 || len(extrinsics)%ExtrinsicsStride != 0 {
		return nil, fmt.Errorf("%w: camera extrinsics have wrong dimensionality: %v values, want a non-zero multiple of %v",
			ErrInvalidConfig, len(extrinsics), ExtrinsicsStride)
	}
	n := len(extrinsics) / ExtrinsicsStride
	if len(intrinsics) != n*IntrinsicsStride {
		return nil, fmt.Errorf("%w: camera intrinsics have %v values, want %v for %v cameras",
			ErrInvalidConfig, len(intrinsics), n*IntrinsicsStride, n)
	}

	cams := make([]Camera, n)
	for i := range cams {
		e := extrinsics[i*ExtrinsicsStride : (i+1)*ExtrinsicsStride]
		k := intrinsics[i*IntrinsicsStride : (i+1)*IntrinsicsStride]
		cams[i] = Camera{
			Rotation: mgl32.Mat3FromRows(
				mgl32.Vec3{e[0], e[1], e[2]},
				mgl32.Vec3{e[4], e[5], e[6]},
				mgl32.Vec3{e[8], e[9], e[10]},
			),
			Translation: mgl32.Vec3{e[3], e[7], e[11]},
			Intrinsics: mgl32.Mat3FromRows(
				mgl32.Vec3{k[0], k[1], k[2]},
				mgl32.Vec3{k[3], k[4], k[5]},
				mgl32.Vec3{k[6], k[7], k[8]},
			),
		}
	}
	return cams, nil
}

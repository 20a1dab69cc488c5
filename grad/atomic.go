package grad

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// atomicAdd adds delta to *addr with a compare-and-swap loop on the bits
// of the float.
func atomicAdd(addr *float32, delta float32) {
	if delta == 0 {
		return
	}
	p := (*uint32)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint32(p)
		next := math.Float32bits(math.Float32frombits(old) + delta)
		if atomic.CompareAndSwapUint32(p, old, next) {
			return
		}
	}
}

// atomicAdd3 adds v to the i-th 3-vector of buf.
func atomicAdd3(buf []float32, i int, v mgl32.Vec3) {
	atomicAdd(&buf[3*i], v[0])
	atomicAdd(&buf[3*i+1], v[1])
	atomicAdd(&buf[3*i+2], v[2])
}

func vec3At(buf []float32, i int) mgl32.Vec3 {
	return mgl32.Vec3{buf[3*i], buf[3*i+1], buf[3*i+2]}
}

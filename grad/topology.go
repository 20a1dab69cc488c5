package grad

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Topology is the immutable face list of a mesh with per face-vertex
// texture coordinates.
type Topology struct {
	faces     [][3]int32
	texCoords [][3]mgl32.Vec2
	lookup    map[[3]int32]int
}

func newTopology(faces []int32, texCoords []float32, numVertices int, needTexCoords bool) (*Topology, error) {
	if len(faces) == 0 || len(faces)%3 != 0 {
		return nil, fmt.Errorf("%w: faces have %v indices, want a non-zero multiple of 3", ErrInvalidConfig, len(faces))
	}
	n := len(faces) / 3
	if needTexCoords && len(texCoords) != n*6 {
		return nil, fmt.Errorf("%w: texture coordinates have %v values, want %v (u,v per face-vertex)",
			ErrInvalidConfig, len(texCoords), n*6)
	}
	if len(texCoords) != 0 && len(texCoords) != n*6 {
		return nil, fmt.Errorf("%w: texture coordinates have %v values, want 0 or %v", ErrInvalidConfig, len(texCoords), n*6)
	}

	t := &Topology{
		faces:  make([][3]int32, n),
		lookup: make(map[[3]int32]int, n),
	}
	for f := range t.faces {
		tri := [3]int32{faces[3*f], faces[3*f+1], faces[3*f+2]}
		for _, v := range tri {
			if v < 0 || int(v) >= numVertices {
				return nil, fmt.Errorf("%w: face %v references vertex %v, want [0,%v)", ErrInvalidConfig, f, v, numVertices)
			}
		}
		t.faces[f] = tri
		if _, ok := t.lookup[tri]; !ok {
			t.lookup[tri] = f
		}
	}
	if len(texCoords) != 0 {
		t.texCoords = make([][3]mgl32.Vec2, n)
		for f := range t.texCoords {
			for k := 0; k < 3; k++ {
				o := 6*f + 2*k
				t.texCoords[f][k] = mgl32.Vec2{texCoords[o], texCoords[o+1]}
			}
		}
	}
	return t, nil
}

// NumFaces returns the number of triangles.
func (t *Topology) NumFaces() int { return len(t.faces) }

// Face returns the vertex indices of face f.
func (t *Topology) Face(f int) [3]int32 { return t.faces[f] }

// HasTexCoords reports whether texture coordinates were supplied.
func (t *Topology) HasTexCoords() bool { return t.texCoords != nil }

// TexCoords returns the texture coordinates of the three corners of face f.
func (t *Topology) TexCoords(f int) [3]mgl32.Vec2 { return t.texCoords[f] }

// FaceIndex returns the first face whose vertex triple equals tri, in order.
func (t *Topology) FaceIndex(tri [3]int32) (int, bool) {
	f, ok := t.lookup[tri]
	return f, ok
}

// Package mesh loads triangle meshes into the indexed form the gradient
// pass works on.
package mesh

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fogleman/fauxgl"
	"github.com/gmlewis/rastergrad/grad"
)

// ErrUnsupportedFormat is returned by Load for unknown file extensions.
var ErrUnsupportedFormat = errors.New("mesh: unsupported file format")

// DefaultColor is the vertex color of meshes that carry none.
var DefaultColor = [3]float32{0.8, 0.8, 0.8}

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Positions []float32 // V×3
	Colors    []float32 // V×3
	Faces     []int32   // 3 per face
	TexCoords []float32 // 6 per face (u,v per corner); nil when the file has none
}

// Load reads an OBJ or STL file. With fit set the mesh is first scaled and
// centered into the bi-unit cube [-1,1]³.
func Load(path string, fit bool) (*Mesh, error) {
	var (
		m   *fauxgl.Mesh
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		m, err = fauxgl.LoadOBJ(path)
	case ".stl":
		m, err = fauxgl.LoadSTL(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("mesh: load %v: %w", path, err)
	}
	if len(m.Triangles) == 0 {
		return nil, fmt.Errorf("mesh: %v has no triangles", path)
	}
	if fit {
		m.BiUnitCube()
	}
	return FromTriangles(m), nil
}

// FromTriangles merges the corners of m's triangles that share a position
// into single vertices.
func FromTriangles(m *fauxgl.Mesh) *Mesh {
	out := &Mesh{Faces: make([]int32, 0, 3*len(m.Triangles))}
	index := make(map[fauxgl.Vector]int32)
	hasUV, hasColor := false, false
	for _, t := range m.Triangles {
		for _, v := range []fauxgl.Vertex{t.V1, t.V2, t.V3} {
			if v.Texture != (fauxgl.Vector{}) {
				hasUV = true
			}
			if v.Color != (fauxgl.Color{}) {
				hasColor = true
			}
		}
	}

	for _, t := range m.Triangles {
		for _, v := range []fauxgl.Vertex{t.V1, t.V2, t.V3} {
			id, ok := index[v.Position]
			if !ok {
				id = int32(len(out.Positions) / 3)
				index[v.Position] = id
				out.Positions = append(out.Positions, float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z))
				if hasColor {
					out.Colors = append(out.Colors, float32(v.Color.R), float32(v.Color.G), float32(v.Color.B))
				} else {
					out.Colors = append(out.Colors, DefaultColor[:]...)
				}
			}
			out.Faces = append(out.Faces, id)
			if hasUV {
				out.TexCoords = append(out.TexCoords, float32(v.Texture.X), float32(v.Texture.Y))
			}
		}
	}
	return out
}

// NumVertices returns the number of distinct vertices.
func (m *Mesh) NumVertices() int { return len(m.Positions) / 3 }

// NumFaces returns the number of triangles.
func (m *Mesh) NumFaces() int { return len(m.Faces) / 3 }

// Options returns base with the mesh topology filled in.
func (m *Mesh) Options(base grad.Options) grad.Options {
	base.Faces = m.Faces
	base.TextureCoordinates = m.TexCoords
	base.NumVertices = m.NumVertices()
	return base
}

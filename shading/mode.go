package shading

import "fmt"

// Mode selects where the albedo of a pixel comes from.
type Mode int

const (
	// VertexColor interpolates per-vertex colors.
	VertexColor Mode = iota
	// Textured samples a texture map at interpolated texture coordinates.
	Textured
)

func (m Mode) String() string {
	switch m {
	case VertexColor:
		return "vertexColor"
	case Textured:
		return "textured"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses the names accepted by String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "vertexColor":
		return VertexColor, nil
	case "textured":
		return Textured, nil
	}
	return 0, fmt.Errorf("unknown shading mode %q (want vertexColor or textured)", s)
}

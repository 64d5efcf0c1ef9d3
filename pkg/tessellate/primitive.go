package tessellate

import "github.com/samber/lo"

// Kind distinguishes how a primitive is drawn.
type Kind string

const (
	KindMesh  Kind = "mesh"
	KindCurve Kind = "curve"
)

// Primitive is a render-ready geometry buffer set. All arrays are flat:
// Vertices has 3 floats per vertex, Normals is empty or matches Vertices,
// Indices has 3 entries per triangle. Curves carry vertices only and are
// drawn as a line strip.
type Primitive struct {
	Kind     Kind      `json:"kind"`
	Name     string    `json:"name,omitempty"`
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals,omitempty"`
	Indices  []uint32  `json:"indices,omitempty"`
}

// VertexCount returns the number of vertices.
func (p *Primitive) VertexCount() int {
	return len(p.Vertices) / 3
}

// TriangleCount returns the number of indexed triangles.
func (p *Primitive) TriangleCount() int {
	return len(p.Indices) / 3
}

// IsEmpty returns true if the primitive has no geometry.
func (p *Primitive) IsEmpty() bool {
	return len(p.Vertices) == 0
}

// Bounds returns the axis-aligned bounds of a primitive set. ok is false
// when no primitive has vertices.
func Bounds(prims []*Primitive) (min, max [3]float32, ok bool) {
	for _, p := range lo.Filter(prims, func(p *Primitive, _ int) bool { return !p.IsEmpty() }) {
		for i := 0; i+2 < len(p.Vertices); i += 3 {
			for a := 0; a < 3; a++ {
				v := p.Vertices[i+a]
				if !ok || v < min[a] {
					min[a] = v
				}
				if !ok || v > max[a] {
					max[a] = v
				}
			}
			ok = true
		}
	}
	return min, max, ok
}
